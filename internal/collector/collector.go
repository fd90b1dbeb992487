// Package collector runs toolchain-specific coverage tools and normalizes
// their output into a coverage.Report.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zjy-dev/gapwatch/internal/coverage"
	"github.com/zjy-dev/gapwatch/internal/exec"
	"github.com/zjy-dev/gapwatch/internal/logger"
)

// ErrNoReport is returned when a tool ran but left no coverage output behind.
var ErrNoReport = errors.New("coverage tool produced no report")

// Collector produces a coverage report for one toolchain.
type Collector interface {
	// Name identifies the collector in configuration and logs.
	Name() string

	// Detect reports whether the collector applies to the project at root.
	// It only reads local files.
	Detect(root string) bool

	// RunCoverage runs the tool and parses its output. It must return when
	// ctx is done. testFiles may be empty, meaning the whole suite.
	RunCoverage(ctx context.Context, root string, testFiles []string) (*coverage.Report, error)
}

// Registry holds collectors in a fixed priority order.
type Registry struct {
	collectors []Collector
}

// NewRegistry creates a registry; earlier collectors win detection.
func NewRegistry(cs ...Collector) *Registry {
	return &Registry{collectors: append([]Collector(nil), cs...)}
}

// Register appends a collector with the lowest priority so far.
func (r *Registry) Register(c Collector) {
	r.collectors = append(r.collectors, c)
}

// Detect returns the first collector that applies to root.
func (r *Registry) Detect(root string) (Collector, bool) {
	for _, c := range r.collectors {
		if c.Detect(root) {
			return c, true
		}
	}
	return nil, false
}

// DetectAll returns every collector that applies to root, in priority order.
func (r *Registry) DetectAll(root string) []Collector {
	var found []Collector
	for _, c := range r.collectors {
		if c.Detect(root) {
			found = append(found, c)
		}
	}
	return found
}

// Names returns the collector names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.collectors))
	for _, c := range r.collectors {
		names = append(names, c.Name())
	}
	return names
}

// Select returns a registry with only the named collectors, in the order
// given. Unknown names are an error.
func (r *Registry) Select(names []string) (*Registry, error) {
	byName := make(map[string]Collector, len(r.collectors))
	for _, c := range r.collectors {
		byName[c.Name()] = c
	}
	selected := NewRegistry()
	for _, name := range names {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown collector %q (available: %s)", name, strings.Join(r.Names(), ", "))
		}
		selected.Register(c)
	}
	return selected, nil
}

// Options customizes the built-in collectors.
type Options struct {
	// Commands overrides the tool command line per collector name.
	Commands map[string][]string

	// GcovrUncoveredReport is an optional gcovr-json-util uncovered report
	// whose function records are merged into gcovr results.
	GcovrUncoveredReport string
}

// Default returns the built-in collectors in their fixed order:
// gocover, coveragepy, lcov, gcovr.
func Default(ex exec.Executor, opts Options) *Registry {
	return NewRegistry(
		NewGoCover(ex, opts.Commands["gocover"]),
		NewCoveragePy(ex, opts.Commands["coveragepy"]),
		NewLCOV(ex, opts.Commands["lcov"]),
		NewGcovr(ex, opts.Commands["gcovr"], opts.GcovrUncoveredReport),
	)
}

// runTool runs argv in root. A non-zero exit is logged, not returned: test
// failures still leave coverage output behind.
func runTool(ctx context.Context, ex exec.Executor, root string, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	logger.Info("Running %s", strings.Join(argv, " "))
	result, err := ex.Run(ctx, root, argv[0], argv[1:]...)
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", argv[0], err)
	}
	if result.ExitCode != 0 {
		logger.Warn("%s exited with code %d: %s", argv[0], result.ExitCode, lastLine(result.Stderr))
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// tempReportPath returns a fresh path for tool output and a cleanup func.
func tempReportPath(pattern string) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp report: %w", err)
	}
	path := f.Name()
	f.Close()
	os.Remove(path)
	return path, func() { os.Remove(path) }, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func anyFileExists(root string, names ...string) bool {
	for _, name := range names {
		if fileExists(filepath.Join(root, name)) {
			return true
		}
	}
	return false
}

// relativeTo makes path slash-separated and relative to root when it lies under root.
func relativeTo(root, path string) string {
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}
