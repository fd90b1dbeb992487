package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/zjy-dev/gcovr-json-util/v2/pkg/gcovr"

	"github.com/zjy-dev/gapwatch/internal/coverage"
	"github.com/zjy-dev/gapwatch/internal/exec"
	"github.com/zjy-dev/gapwatch/internal/logger"
)

// Gcovr collects C and C++ coverage with gcovr's JSON output.
type Gcovr struct {
	exec           exec.Executor
	command        []string
	uncoveredPath  string
	detectMaxDepth int
}

// NewGcovr creates a C/C++ collector. A nil command means "gcovr --root .".
// uncoveredReport optionally names a gcovr-json-util uncovered report whose
// function records fill in files that gcovr reported without functions.
func NewGcovr(ex exec.Executor, command []string, uncoveredReport string) *Gcovr {
	if len(command) == 0 {
		command = []string{"gcovr", "--root", "."}
	}
	return &Gcovr{exec: ex, command: command, uncoveredPath: uncoveredReport, detectMaxDepth: 4}
}

func (g *Gcovr) Name() string { return "gcovr" }

// Detect looks for a CMake project or compiled coverage notes (*.gcno).
func (g *Gcovr) Detect(root string) bool {
	if anyFileExists(root, "CMakeLists.txt") {
		return true
	}
	found := false
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found {
			return filepath.SkipDir
		}
		if d.IsDir() {
			rel, _ := filepath.Rel(root, path)
			if rel != "." && (strings.HasPrefix(d.Name(), ".") || strings.Count(rel, string(filepath.Separator)) >= g.detectMaxDepth) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".gcno") {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

func (g *Gcovr) RunCoverage(ctx context.Context, root string, testFiles []string) (*coverage.Report, error) {
	out, cleanup, err := tempReportPath("gapwatch-gcovr-*.json")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	argv := append(append([]string{}, g.command...), "--json", out)
	if err := runTool(ctx, g.exec, root, argv); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("gcovr: %w", ErrNoReport)
	}

	report, err := ParseGcovrJSON(data, root)
	if err != nil {
		return nil, err
	}
	if g.uncoveredPath != "" {
		if err := mergeUncoveredReport(report, g.uncoveredPath, root); err != nil {
			logger.Warn("Ignoring uncovered report %s: %v", g.uncoveredPath, err)
		}
	}
	return report, nil
}

// ParseGcovrJSON converts gcovr's JSON format:
// files[].file, files[].lines[].{line_number,count,branches[].count} and
// files[].functions[].{name,demangled_name,lineno,execution_count}.
func ParseGcovrJSON(data []byte, root string) (*coverage.Report, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid gcovr JSON")
	}

	report := coverage.NewReport()
	for _, file := range gjson.GetBytes(data, "files").Array() {
		fc := &coverage.FileCoverage{FilePath: relativeTo(root, file.Get("file").String())}

		for _, line := range file.Get("lines").Array() {
			if line.Get("gcovr/noncode").Bool() {
				continue
			}
			n := int(line.Get("line_number").Int())
			fc.Lines = append(fc.Lines, coverage.LineCoverage{LineNumber: n, ExecutionCount: int(line.Get("count").Int())})
			for i, br := range line.Get("branches").Array() {
				taken := 0
				if br.Get("count").Int() > 0 {
					taken = 1
				}
				fc.Branches = append(fc.Branches, coverage.BranchCoverage{
					LineNumber: n,
					BranchID:   i,
					TakenCount: taken,
					TotalCount: 1,
				})
			}
		}

		for _, fn := range file.Get("functions").Array() {
			name := fn.Get("demangled_name").String()
			if name == "" {
				name = fn.Get("name").String()
			}
			fc.Functions = append(fc.Functions, coverage.FunctionCoverage{
				Name:           name,
				LineNumber:     int(fn.Get("lineno").Int()),
				ExecutionCount: int(fn.Get("execution_count").Int()),
			})
		}
		report.Add(fc)
	}
	return report, nil
}

func mergeUncoveredReport(report *coverage.Report, path, root string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var uncovered gcovr.UncoveredReport
	if err := json.Unmarshal(data, &uncovered); err != nil {
		return fmt.Errorf("failed to decode uncovered report: %w", err)
	}
	src := coverage.NewReport()
	for _, fc := range coverage.FromGcovrUncovered(&uncovered, "").FileList() {
		fc.FilePath = relativeTo(root, fc.FilePath)
		src.Add(&fc)
	}
	report.MergeFunctions(src)
	return nil
}
