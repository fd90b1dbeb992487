package gap

// Config holds the cutoffs of the gap analysis.
type Config struct {
	// UndertestedThreshold is the coverage percentage at or above which a
	// function produces no gap.
	UndertestedThreshold float64 `mapstructure:"undertested_threshold" validate:"gt=0,lte=100"`
	HighComplexity       int     `mapstructure:"high_complexity" validate:"gte=1"`
	ModerateComplexity   int     `mapstructure:"moderate_complexity" validate:"gte=1,ltefield=HighComplexity"`
	TargetCoverage       float64 `mapstructure:"target_coverage" validate:"gte=0,lte=100"`

	// ExcludeDirs are directory names skipped at any depth.
	ExcludeDirs []string `mapstructure:"exclude_dirs"`
}

// DefaultConfig returns the default cutoffs.
func DefaultConfig() Config {
	return Config{
		UndertestedThreshold: 50,
		HighComplexity:       10,
		ModerateComplexity:   5,
		TargetCoverage:       80,
		ExcludeDirs: []string{
			"node_modules", "vendor", ".venv", "venv", ".git", "build", "dist",
			"__pycache__", ".pytest_cache", "coverage", ".coverage", "site-packages", ".gapwatch",
		},
	}
}
