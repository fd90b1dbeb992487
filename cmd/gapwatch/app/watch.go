package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/gapwatch/internal/logger"
	"github.com/zjy-dev/gapwatch/internal/watch"
)

// ErrCriticalAlert is returned by "watch --fail-on-critical" when a critical
// alert fired.
var ErrCriticalAlert = errors.New("critical coverage alert")

// NewWatchCommand creates the "watch" subcommand.
func NewWatchCommand(g *globalOptions) *cobra.Command {
	var (
		mode           string
		metadata       map[string]string
		threshold      float64
		drop           float64
		limit          int
		failOnCritical bool
	)

	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Record a coverage snapshot and report the trend.",
		Long: `Record a coverage snapshot and compare it with the previous one.

Modes:
  collect  run the detected collector, append a snapshot to the history and
           report the trend and alerts (default)
  report   report the trend of the two latest stored snapshots without
           running anything

Examples:
  # Record a snapshot tagged with the current commit
  gapwatch watch --meta commit=$(git rev-parse HEAD)

  # Fail a CI job when coverage dropped sharply
  gapwatch watch --fail-on-critical --drop-threshold 2

  # Show the stored trend
  gapwatch watch --mode report`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(args)
			if err != nil {
				return err
			}
			cfg := g.cfg

			// Flags override config values
			if cmd.Flags().Changed("threshold") {
				cfg.Watch.CoverageThreshold = threshold
			}
			if cmd.Flags().Changed("drop-threshold") {
				cfg.Watch.DropThreshold = drop
			}
			if cmd.Flags().Changed("limit") {
				cfg.Watch.HistoryLimit = limit
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			registry, err := g.registry(cfg)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg, root)
			if err != nil {
				return err
			}
			defer closeStore()

			w, err := watch.New(root, registry, store, cfg.Watch)
			if err != nil {
				return err
			}

			var trend *watch.TrendReport
			switch mode {
			case "collect":
				ctx := cmd.Context()
				if ctx == nil {
					ctx = context.Background()
				}
				trend, err = w.CollectAndAnalyze(ctx, metadata)
				logger.Debug("Collection cycle ended: %s, watcher %s", w.Outcome(), w.State())
				if trend == nil {
					return err
				}
				if err != nil {
					logger.Warn("Snapshot was computed but not saved")
				}
			case "report":
				trend, err = w.Report()
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown mode %q (want collect or report)", mode)
			}

			if rerr := render(cmd.OutOrStdout(), g, trend); rerr != nil {
				return rerr
			}
			if err != nil {
				return err
			}
			if failOnCritical && trend.HasCritical() {
				return ErrCriticalAlert
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "collect", "collect or report")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "Metadata stored with the snapshot (key=value, repeatable)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Line coverage floor for warnings (overrides config)")
	cmd.Flags().Float64Var(&drop, "drop-threshold", 0, "Drop in percentage points that raises a critical alert (overrides config)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of stored snapshots (overrides config)")
	cmd.Flags().BoolVar(&failOnCritical, "fail-on-critical", false, "Exit with an error when a critical alert fires")

	return cmd
}
