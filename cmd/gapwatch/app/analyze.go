package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/gapwatch/internal/collector"
	"github.com/zjy-dev/gapwatch/internal/coverage"
	"github.com/zjy-dev/gapwatch/internal/gap"
	"github.com/zjy-dev/gapwatch/internal/logger"
	"github.com/zjy-dev/gapwatch/internal/report"
	"github.com/zjy-dev/gapwatch/internal/task"
)

// NewAnalyzeCommand creates the "analyze" subcommand.
func NewAnalyzeCommand(g *globalOptions) *cobra.Command {
	var (
		profile       string
		noRun         bool
		collectorName string
		reportDir     string
		timeout       time.Duration
		undertested   float64
		target        float64
	)

	cmd := &cobra.Command{
		Use:   "analyze [root]",
		Short: "Find coverage gaps and build follow-up test tasks.",
		Long: `Find coverage gaps in a project and build follow-up test tasks.

This command:
  1. Obtains a coverage report (runs the detected collectors, or reads --profile)
  2. Extracts functions from the project's source files
  3. Classifies undertested functions by complexity, coverage and visibility
  4. Lists untested files and test files with unresolved imports
  5. Builds one follow-up task per gap

Every detected collector runs and their reports are merged; a collector
that fails is skipped with a warning. Without a detected collector, or with
--no-run, source files without a matching test file are reported as untested
and their public functions as uncovered gaps.

Examples:
  # Analyze the current directory with the detected collector
  gapwatch analyze

  # Reuse an existing report
  gapwatch analyze --profile coverage.out

  # Save a markdown copy of the report
  gapwatch analyze ./service --report-dir reports`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(args)
			if err != nil {
				return err
			}
			cfg := g.cfg

			// Flags override config values
			if cmd.Flags().Changed("undertested-threshold") {
				cfg.Analysis.UndertestedThreshold = undertested
			}
			if cmd.Flags().Changed("target") {
				cfg.Analysis.TargetCoverage = target
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Watch.CollectTimeout = timeout
			}
			if collectorName != "" {
				cfg.Collectors.Enabled = []string{collectorName}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			analyzer, err := gap.NewAnalyzer(root, cfg.Analysis, nil)
			if err != nil {
				return err
			}

			var cov *coverage.Report
			switch {
			case profile != "":
				cov, err = collector.LoadReport(profile, root)
				if err != nil {
					return err
				}
			case !noRun:
				registry, err := g.registry(cfg)
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				if ctx == nil {
					ctx = context.Background()
				}
				cov, err = collectAll(ctx, registry, root, cfg.Watch.CollectTimeout)
				if err != nil {
					return err
				}
			}

			var gaps *gap.Report
			if cov != nil {
				gaps, err = analyzer.Analyze(cov)
			} else {
				gaps, err = analyzer.ScanSources()
			}
			if err != nil {
				return err
			}

			result := &report.Analysis{Gaps: gaps, Tasks: task.Build(gaps)}
			logger.Info("Found %d function gap(s), %d untested file(s), %d stale test(s)",
				len(gaps.FunctionGaps), len(gaps.UntestedFiles), len(gaps.StaleTests))

			if reportDir != "" {
				path, err := report.NewMarkdownReporter(reportDir).Save("gaps", result)
				if err != nil {
					return err
				}
				logger.Info("Report saved to %s", path)
			}
			return render(cmd.OutOrStdout(), g, result)
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "Read an existing coverage report instead of running a collector")
	cmd.Flags().BoolVar(&noRun, "no-run", false, "Do not run collectors; scan sources for untested files and public functions")
	cmd.Flags().StringVar(&collectorName, "collector", "", "Only use this collector: gocover, coveragepy, lcov, gcovr")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "Also save a markdown report in this directory")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Collector timeout (overrides config)")
	cmd.Flags().Float64Var(&undertested, "undertested-threshold", 0, "Coverage percentage below which a function is a gap (overrides config)")
	cmd.Flags().Float64Var(&target, "target", 0, "Target coverage percentage (overrides config)")

	return cmd
}

// collectAll runs every collector that applies to root, each under its own
// timeout, and merges their reports. It returns a nil report when no
// collector applies, and an error only when every applicable one failed.
func collectAll(ctx context.Context, registry *collector.Registry, root string, timeout time.Duration) (*coverage.Report, error) {
	found := registry.DetectAll(root)
	if len(found) == 0 {
		logger.Warn("No coverage collector applies to %s, scanning sources instead", root)
		return nil, nil
	}

	var merged *coverage.Report
	var failures []error
	for _, c := range found {
		logger.Info("Collecting coverage with %s", c.Name())
		report, err := runCollector(ctx, c, root, timeout)
		if err != nil {
			logger.Warn("Skipping collector %s: %v", c.Name(), err)
			failures = append(failures, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		if merged == nil {
			merged = coverage.NewReport()
		}
		merged.Merge(report)
	}
	if merged == nil {
		return nil, fmt.Errorf("coverage collection failed: %w", errors.Join(failures...))
	}
	return merged, nil
}

func runCollector(ctx context.Context, c collector.Collector, root string, timeout time.Duration) (*coverage.Report, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	report, err := c.RunCoverage(ctx, root, nil)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, collector.ErrNoReport
	}
	return report, nil
}
