package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/zjy-dev/gapwatch/internal/coverage"
	"github.com/zjy-dev/gapwatch/internal/exec"
)

// CoveragePy collects Python coverage with pytest-cov and parses the
// coverage.py JSON report.
type CoveragePy struct {
	exec    exec.Executor
	command []string
}

// NewCoveragePy creates a Python collector. A nil command runs pytest through
// the project's .venv interpreter when present, else python3.
func NewCoveragePy(ex exec.Executor, command []string) *CoveragePy {
	return &CoveragePy{exec: ex, command: command}
}

func (c *CoveragePy) Name() string { return "coveragepy" }

func (c *CoveragePy) Detect(root string) bool {
	return anyFileExists(root, "pytest.ini", "pyproject.toml", "setup.py", "setup.cfg", "tox.ini", ".coverage", "coverage.json")
}

func (c *CoveragePy) RunCoverage(ctx context.Context, root string, testFiles []string) (*coverage.Report, error) {
	out, cleanup, err := tempReportPath("gapwatch-*.json")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	argv := c.command
	if len(argv) == 0 {
		python := "python3"
		if fileExists(filepath.Join(root, ".venv", "bin", "python")) {
			python = filepath.Join(".venv", "bin", "python")
		}
		argv = []string{python, "-m", "pytest", "--cov=.", "--cov-branch"}
	}
	argv = append(append([]string{}, argv...), "--cov-report=json:"+out)
	argv = append(argv, testFiles...)

	if err := runTool(ctx, c.exec, root, argv); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("coveragepy: %w", ErrNoReport)
	}
	return ParseCoveragePyJSON(data)
}

// ParseCoveragePyJSON converts a coverage.py JSON report.
//
// Lines come from executed_lines and missing_lines. Branch arcs from
// executed_branches and missing_branches become one record each. The
// "functions" section of newer coverage.py versions yields function records
// located at their first measured line.
func ParseCoveragePyJSON(data []byte) (*coverage.Report, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid coverage.py JSON")
	}
	files := gjson.GetBytes(data, "files")
	if !files.IsObject() {
		return nil, errors.New("coverage.py JSON has no files section")
	}

	report := coverage.NewReport()
	files.ForEach(func(key, value gjson.Result) bool {
		fc := &coverage.FileCoverage{FilePath: filepath.ToSlash(key.String())}

		for _, n := range value.Get("executed_lines").Array() {
			fc.Lines = append(fc.Lines, coverage.LineCoverage{LineNumber: int(n.Int()), ExecutionCount: 1})
		}
		for _, n := range value.Get("missing_lines").Array() {
			fc.Lines = append(fc.Lines, coverage.LineCoverage{LineNumber: int(n.Int())})
		}
		sort.SliceStable(fc.Lines, func(i, j int) bool { return fc.Lines[i].LineNumber < fc.Lines[j].LineNumber })

		fc.Branches = append(fc.Branches, pyArcs(value.Get("executed_branches"), 1, len(fc.Branches))...)
		fc.Branches = append(fc.Branches, pyArcs(value.Get("missing_branches"), 0, len(fc.Branches))...)

		value.Get("functions").ForEach(func(name, fn gjson.Result) bool {
			if name.String() == "" {
				return true
			}
			executed := fn.Get("executed_lines").Array()
			first := firstLine(executed, fn.Get("missing_lines").Array())
			count := 0
			if len(executed) > 0 {
				count = 1
			}
			fc.Functions = append(fc.Functions, coverage.FunctionCoverage{
				Name:           shortName(name.String()),
				LineNumber:     first,
				ExecutionCount: count,
			})
			return true
		})

		report.Add(fc)
		return true
	})
	return report, nil
}

func pyArcs(arcs gjson.Result, taken, offset int) []coverage.BranchCoverage {
	var out []coverage.BranchCoverage
	for i, arc := range arcs.Array() {
		pair := arc.Array()
		if len(pair) < 2 {
			continue
		}
		out = append(out, coverage.BranchCoverage{
			LineNumber: int(pair[0].Int()),
			BranchID:   offset + i,
			TakenCount: taken,
			TotalCount: 1,
		})
	}
	return out
}

func firstLine(lists ...[]gjson.Result) int {
	first := 0
	for _, list := range lists {
		for _, n := range list {
			if v := int(n.Int()); first == 0 || v < first {
				first = v
			}
		}
	}
	return first
}

// shortName strips the class prefix of "Class.method" names.
func shortName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}
