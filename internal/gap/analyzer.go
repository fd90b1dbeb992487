package gap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zjy-dev/gapwatch/internal/coverage"
	"github.com/zjy-dev/gapwatch/internal/logger"
	"github.com/zjy-dev/gapwatch/internal/source"
)

// Analyzer cross-references coverage data with the functions found in the
// project's source files.
type Analyzer struct {
	root    string
	cfg     Config
	parsers *source.Registry
	exclude map[string]bool
}

// NewAnalyzer creates an analyzer for the project at root. A nil registry
// means source.DefaultRegistry.
func NewAnalyzer(root string, cfg Config, parsers *source.Registry) (*Analyzer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProjectRoot, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProjectRoot, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidProjectRoot, root)
	}
	if parsers == nil {
		parsers = source.DefaultRegistry()
	}

	exclude := make(map[string]bool, len(cfg.ExcludeDirs))
	for _, d := range cfg.ExcludeDirs {
		exclude[d] = true
	}
	return &Analyzer{root: abs, cfg: cfg, parsers: parsers, exclude: exclude}, nil
}

// Analyze builds the gap report for a coverage report.
func (a *Analyzer) Analyze(report *coverage.Report) (*Report, error) {
	if report == nil {
		return nil, errors.New("coverage report is nil")
	}

	result := &Report{
		OverallCoverage: report.OverallLineCoverage(),
		TargetCoverage:  a.cfg.TargetCoverage,
	}

	for _, path := range report.UncoveredFiles() {
		if a.isExcluded(a.relPath(path)) {
			continue
		}
		result.UntestedFiles = append(result.UntestedFiles, a.relPath(path))
	}
	sort.Strings(result.UntestedFiles)

	for _, path := range report.Paths() {
		rel := a.relPath(path)
		if a.isExcluded(rel) {
			continue
		}
		result.FunctionGaps = append(result.FunctionGaps, a.analyzeFile(rel, report.Files[path])...)
	}

	stale, err := a.findStaleTests(report)
	if err != nil {
		return nil, err
	}
	result.StaleTests = stale

	logger.Info("Gap analysis complete: %d untested files, %d function gaps, %d stale tests",
		len(result.UntestedFiles), len(result.FunctionGaps), len(result.StaleTests))
	return result, nil
}

// analyzeFile returns the gaps of one covered file. Unreadable or unparsable
// files yield no gaps.
func (a *Analyzer) analyzeFile(rel string, fc *coverage.FileCoverage) []FunctionGap {
	parser, ok := a.parsers.ForPath(rel)
	if !ok {
		logger.Debug("No parser for %s, skipping function analysis", rel)
		return nil
	}

	src, err := os.ReadFile(filepath.Join(a.root, filepath.FromSlash(rel)))
	if err != nil {
		logger.Warn("Skipping %s: %v", rel, err)
		return nil
	}
	funcs, err := parser.Parse(rel, src)
	if err != nil {
		logger.Warn("Skipping %s: %v", rel, err)
		return nil
	}

	var gaps []FunctionGap
	for _, fn := range funcs {
		pct := functionCoverage(fn, fc)
		if pct >= a.cfg.UndertestedThreshold {
			continue
		}
		gaps = append(gaps, a.newGap(rel, fn, pct))
	}
	return gaps
}

func (a *Analyzer) newGap(rel string, fn source.Function, pct float64) FunctionGap {
	complexity := EstimateComplexity(fn)
	public := IsPublic(fn)
	return FunctionGap{
		FilePath:     rel,
		FunctionName: fn.Name,
		LineNumber:   fn.StartLine,
		EndLine:      fn.EndLine,
		Complexity:   complexity,
		CoveragePct:  pct,
		IsPublic:     public,
		Priority:     Classify(complexity, pct, public, a.cfg),
	}
}

// functionCoverage measures fn from the line records in its range. Without
// line data it falls back to the nearest same-named function record, and
// without any record the function counts as uncovered.
func functionCoverage(fn source.Function, fc *coverage.FileCoverage) float64 {
	if fc == nil {
		return 0
	}

	lines := make(map[int]bool)
	for _, l := range fc.LinesInRange(fn.StartLine, fn.EndLine) {
		lines[l.LineNumber] = lines[l.LineNumber] || l.IsCovered()
	}
	if len(lines) > 0 {
		covered := 0
		for _, ok := range lines {
			if ok {
				covered++
			}
		}
		return 100 * float64(covered) / float64(len(lines))
	}

	var match *coverage.FunctionCoverage
	for i := range fc.Functions {
		f := &fc.Functions[i]
		if f.Name != fn.Name {
			continue
		}
		if match == nil || abs(f.LineNumber-fn.StartLine) < abs(match.LineNumber-fn.StartLine) {
			match = f
		}
	}
	if match != nil && match.IsCovered() {
		return 100
	}
	return 0
}

// ScanSources builds a gap report without coverage data: source files with no
// test file named after them are untested, and every public function is an
// uncovered gap.
func (a *Analyzer) ScanSources() (*Report, error) {
	files, err := source.Walk(a.root, a.parsers, a.ignorePatterns()...)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", a.root, err)
	}

	testStems := make(map[string]bool)
	var sources []string
	for _, f := range files {
		if source.IsTestFile(f) {
			testStems[source.TestStem(f)] = true
		} else {
			sources = append(sources, f)
		}
	}

	result := &Report{TargetCoverage: a.cfg.TargetCoverage}
	for _, rel := range sources {
		if !testStems[source.TestStem(rel)] {
			result.UntestedFiles = append(result.UntestedFiles, rel)
		}

		src, err := os.ReadFile(filepath.Join(a.root, filepath.FromSlash(rel)))
		if err != nil {
			logger.Warn("Skipping %s: %v", rel, err)
			continue
		}
		funcs, err := a.parsers.ParseFile(rel, src)
		if err != nil {
			logger.Warn("Skipping %s: %v", rel, err)
			continue
		}
		for _, fn := range funcs {
			if !IsPublic(fn) {
				continue
			}
			result.FunctionGaps = append(result.FunctionGaps, a.newGap(rel, fn, 0))
		}
	}

	result.StaleTests, err = a.findStaleTests(coverage.NewReport())
	if err != nil {
		return nil, err
	}

	logger.Info("Source scan found %d untested files, %d function gaps",
		len(result.UntestedFiles), len(result.FunctionGaps))
	return result, nil
}

// relPath converts a collector path to a slash-separated path relative to root.
func (a *Analyzer) relPath(path string) string {
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(a.root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
		return filepath.ToSlash(path)
	}
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "./")
}

func (a *Analyzer) isExcluded(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if a.exclude[dir] {
			return true
		}
	}
	return false
}

func (a *Analyzer) ignorePatterns() []string {
	patterns := make([]string, 0, len(a.cfg.ExcludeDirs))
	for _, d := range a.cfg.ExcludeDirs {
		patterns = append(patterns, d+"/")
	}
	return patterns
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
