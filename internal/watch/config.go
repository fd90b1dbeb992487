package watch

import "time"

// Config holds the watcher thresholds. Percentages are in [0,100].
type Config struct {
	// CoverageThreshold is the line coverage floor below which a warning is raised.
	CoverageThreshold float64 `mapstructure:"coverage_threshold" validate:"gte=0,lte=100"`

	// DropThreshold is the drop in percentage points between two consecutive
	// snapshots that raises a critical alert.
	DropThreshold float64 `mapstructure:"drop_threshold" validate:"gte=0,lte=100"`

	// HistoryLimit bounds the number of stored snapshots (0 = unbounded).
	HistoryLimit int `mapstructure:"history_limit" validate:"gte=0"`

	// Epsilon is the smallest change treated as a trend.
	Epsilon float64 `mapstructure:"epsilon" validate:"gte=0"`

	// CollectTimeout bounds one collector run (0 = no timeout).
	CollectTimeout time.Duration `mapstructure:"collect_timeout" validate:"gte=0"`
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		CoverageThreshold: 80,
		DropThreshold:     5,
		HistoryLimit:      100,
		Epsilon:           0.01,
		CollectTimeout:    120 * time.Second,
	}
}
