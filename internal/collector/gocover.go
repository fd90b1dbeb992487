package collector

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/cover"

	"github.com/zjy-dev/gapwatch/internal/coverage"
	"github.com/zjy-dev/gapwatch/internal/exec"
)

// GoCover collects coverage with "go test -coverprofile".
type GoCover struct {
	exec    exec.Executor
	command []string
}

// NewGoCover creates a Go collector. A nil command means "go test -covermode=count".
func NewGoCover(ex exec.Executor, command []string) *GoCover {
	if len(command) == 0 {
		command = []string{"go", "test", "-covermode=count"}
	}
	return &GoCover{exec: ex, command: command}
}

func (g *GoCover) Name() string { return "gocover" }

func (g *GoCover) Detect(root string) bool {
	return fileExists(filepath.Join(root, "go.mod"))
}

// RunCoverage tests the packages of testFiles, or ./... when none are given.
func (g *GoCover) RunCoverage(ctx context.Context, root string, testFiles []string) (*coverage.Report, error) {
	profile, cleanup, err := tempReportPath("gapwatch-*.out")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	argv := append(append([]string{}, g.command...), "-coverprofile="+profile)
	argv = append(argv, goPackages(testFiles)...)
	if err := runTool(ctx, g.exec, root, argv); err != nil {
		return nil, err
	}
	if !fileExists(profile) {
		return nil, fmt.Errorf("gocover: %w", ErrNoReport)
	}
	return ParseGoProfile(profile, root)
}

func goPackages(testFiles []string) []string {
	if len(testFiles) == 0 {
		return []string{"./..."}
	}
	seen := make(map[string]bool)
	var pkgs []string
	for _, f := range testFiles {
		pkg := "./" + path.Dir(filepath.ToSlash(f))
		if pkg == "./." {
			pkg = "."
		}
		if !seen[pkg] {
			seen[pkg] = true
			pkgs = append(pkgs, pkg)
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

// ParseGoProfile reads a Go cover profile. File names are made relative to
// the module in root when its go.mod can be read.
func ParseGoProfile(profilePath, root string) (*coverage.Report, error) {
	profiles, err := cover.ParseProfiles(profilePath)
	if err != nil {
		return nil, fmt.Errorf("parsing coverage profile: %w", err)
	}

	modPath := ""
	if content, err := os.ReadFile(filepath.Join(root, "go.mod")); err == nil {
		modPath = modfile.ModulePath(content)
	}

	report := coverage.NewReport()
	for _, p := range profiles {
		name := p.FileName
		if modPath != "" {
			name = strings.TrimPrefix(name, modPath+"/")
		}
		report.Add(&coverage.FileCoverage{
			FilePath: relativeTo(root, name),
			Lines:    profileLines(p.Blocks),
		})
	}
	return report, nil
}

// profileLines flattens blocks into per-line counts. A line shared by several
// blocks takes the highest count.
func profileLines(blocks []cover.ProfileBlock) []coverage.LineCoverage {
	counts := make(map[int]int)
	for _, b := range blocks {
		if b.NumStmt == 0 {
			continue
		}
		for line := b.StartLine; line <= b.EndLine; line++ {
			if c, ok := counts[line]; !ok || b.Count > c {
				counts[line] = b.Count
			}
		}
	}

	lines := make([]coverage.LineCoverage, 0, len(counts))
	for n, c := range counts {
		lines = append(lines, coverage.LineCoverage{LineNumber: n, ExecutionCount: c})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })
	return lines
}
