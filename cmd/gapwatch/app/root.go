package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/gapwatch/internal/collector"
	"github.com/zjy-dev/gapwatch/internal/config"
	"github.com/zjy-dev/gapwatch/internal/exec"
	"github.com/zjy-dev/gapwatch/internal/history"
	"github.com/zjy-dev/gapwatch/internal/logger"
	"github.com/zjy-dev/gapwatch/internal/report"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	format     string
	noColor    bool

	cfg *config.Config

	// registry builds the collectors for a run.
	registry func(cfg *config.Config) (*collector.Registry, error)
}

// NewGapwatchCommand creates the root command for the gapwatch tool.
func NewGapwatchCommand() *cobra.Command {
	return newGapwatchCommand(&globalOptions{registry: newRegistry})
}

func newGapwatchCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gapwatch",
		Short: "Find undertested code and watch coverage trends.",
		Long: `gapwatch turns coverage reports into a prioritized list of undertested
functions, untested files and stale tests, builds follow-up test tasks, and
keeps a bounded history of coverage snapshots with trend alerts.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Flags override config values
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = opts.logLevel
			}
			if cmd.Flags().Changed("format") {
				cfg.Output.Format = opts.format
			}
			if opts.noColor {
				cfg.Log.Color = false
			}
			opts.cfg = cfg

			if cfg.Log.Dir != "" {
				if err := logger.InitWithFile(cfg.Log.Level, cfg.Log.Dir); err != nil {
					return err
				}
				logger.Debug("Logging to %s", logger.GetLogFilePath())
			} else {
				logger.Init(cfg.Log.Level)
				logger.SetLevel(cfg.Log.Level)
			}
			logger.SetColorEnable(cfg.Log.Color)
			if cfg.Source != "" {
				logger.Debug("Loaded config from %s", cfg.Source)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: gapwatch.yaml in ., ./configs or ~/.config/gapwatch)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "o", "text", "Output format: text, markdown, json, yaml")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(NewAnalyzeCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// projectRoot resolves the optional root argument, defaulting to ".".
func projectRoot(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("project root %s is not a directory", abs)
	}
	return abs, nil
}

// newRegistry builds the configured collectors in detection order.
func newRegistry(cfg *config.Config) (*collector.Registry, error) {
	reg := collector.Default(exec.NewCommandExecutor(), collector.Options{
		Commands:             cfg.Collectors.Commands,
		GcovrUncoveredReport: cfg.Collectors.GcovrUncoveredReport,
	})
	if len(cfg.Collectors.Enabled) == 0 {
		return reg, nil
	}
	return reg.Select(cfg.Collectors.Enabled)
}

// openStore opens the configured history backend. The returned func closes it.
func openStore(cfg *config.Config, root string) (history.Store, func(), error) {
	dir := cfg.HistoryDir(root)
	switch cfg.History.Backend {
	case "sqlite":
		store, err := history.NewSQLiteStore(filepath.Join(dir, history.DBFileName))
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return history.NewFileStore(dir), func() {}, nil
	}
}

// render writes v in the configured output format.
func render(w io.Writer, opts *globalOptions, v any) error {
	format, err := report.ParseFormat(opts.cfg.Output.Format)
	if err != nil {
		return err
	}
	return report.Render(w, format, v, report.Options{Color: opts.cfg.Log.Color && !opts.noColor})
}
