package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/zjy-dev/gapwatch/internal/gap"
	"github.com/zjy-dev/gapwatch/internal/history"
	"github.com/zjy-dev/gapwatch/internal/watch"
)

// ConfigName is the base name of the configuration file (gapwatch.yaml).
const ConfigName = "gapwatch"

// EnvPrefix prefixes environment overrides, e.g. GAPWATCH_WATCH_DROP_THRESHOLD.
const EnvPrefix = "GAPWATCH"

// Config is the complete gapwatch configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Analysis   gap.Config       `mapstructure:"analysis"`
	Watch      watch.Config     `mapstructure:"watch"`
	History    HistoryConfig    `mapstructure:"history"`
	Collectors CollectorsConfig `mapstructure:"collectors"`
	Output     OutputConfig     `mapstructure:"output"`

	// Source is the file the configuration was read from, empty when only
	// defaults and environment variables applied.
	Source string `mapstructure:"-"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn warning error fatal"`
	Color bool   `mapstructure:"color"`
	// Dir enables a log file in this directory next to terminal output.
	Dir string `mapstructure:"dir"`
}

// HistoryConfig selects where snapshots are stored.
type HistoryConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=jsonl sqlite"`
	// Dir overrides <root>/.gapwatch/memory. Relative paths are resolved
	// against the project root.
	Dir string `mapstructure:"dir"`
}

// CollectorsConfig selects and customizes coverage collectors.
type CollectorsConfig struct {
	// Enabled lists collectors in detection order. Empty means all built-ins.
	Enabled []string `mapstructure:"enabled" validate:"dive,oneof=gocover coveragepy lcov gcovr"`

	// Commands overrides a collector's tool command line.
	Commands map[string][]string `mapstructure:"commands" validate:"dive,min=1"`

	GcovrUncoveredReport string `mapstructure:"gcovr_uncovered_report"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	Format string `mapstructure:"format" validate:"oneof=text markdown json yaml"`
}

// LoadConfig reads gapwatch.yaml from ".", "./configs" and
// "$HOME/.config/gapwatch", or from path when it is not empty. Defaults fill
// missing keys and GAPWATCH_* environment variables override file values.
// A missing file is only an error when path was given.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
		}
	}

	// A .env file in the working directory fills in variables that are not
	// already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Color: true},
		Analysis: gap.DefaultConfig(),
		Watch:    watch.DefaultConfig(),
		History:  HistoryConfig{Backend: "jsonl"},
		Output:   OutputConfig{Format: "text"},
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// HistoryDir resolves the history directory for the project at root.
func (c *Config) HistoryDir(root string) string {
	if c.History.Dir == "" {
		return history.DefaultDir(root)
	}
	if filepath.IsAbs(c.History.Dir) {
		return c.History.Dir
	}
	return filepath.Join(root, c.History.Dir)
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.color", d.Log.Color)
	v.SetDefault("log.dir", "")

	v.SetDefault("analysis.undertested_threshold", d.Analysis.UndertestedThreshold)
	v.SetDefault("analysis.high_complexity", d.Analysis.HighComplexity)
	v.SetDefault("analysis.moderate_complexity", d.Analysis.ModerateComplexity)
	v.SetDefault("analysis.target_coverage", d.Analysis.TargetCoverage)
	v.SetDefault("analysis.exclude_dirs", d.Analysis.ExcludeDirs)

	v.SetDefault("watch.coverage_threshold", d.Watch.CoverageThreshold)
	v.SetDefault("watch.drop_threshold", d.Watch.DropThreshold)
	v.SetDefault("watch.history_limit", d.Watch.HistoryLimit)
	v.SetDefault("watch.epsilon", d.Watch.Epsilon)
	v.SetDefault("watch.collect_timeout", d.Watch.CollectTimeout)

	v.SetDefault("history.backend", d.History.Backend)
	v.SetDefault("history.dir", "")

	v.SetDefault("collectors.enabled", []string{})
	v.SetDefault("collectors.gcovr_uncovered_report", "")

	v.SetDefault("output.format", d.Output.Format)
}
