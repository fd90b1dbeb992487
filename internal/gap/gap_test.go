package gap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/gapwatch/internal/coverage"
	"github.com/zjy-dev/gapwatch/internal/source"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func lines(counts map[int]int) []coverage.LineCoverage {
	var out []coverage.LineCoverage
	for n, c := range counts {
		out = append(out, coverage.LineCoverage{LineNumber: n, ExecutionCount: c})
	}
	return out
}

func TestEstimateComplexity(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", 1},
		{"straight line", "return a + b", 1},
		{"two if and one for", "if a:\n    for x in y:\n        if x:\n            pass", 4},
		{"else if counts once", "if (a) {} else if (b) {} else {}", 3},
		{"short circuit", "if (a && b || c) {}", 4},
		{"python boolean words", "while a and not b or c:\n    pass", 4},
		{"handlers", "try:\n    pass\nexcept ValueError:\n    pass", 2},
		{"switch cases", "switch x {\ncase 1:\ncase 2:\ndefault:\n}", 3},
		{"ternary", "return a ? b : c", 2},
		{"keywords inside identifiers", "format(iffy, origin, forward)", 1},
		{"case insensitive", "IF X THEN", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateComplexity(source.Function{Body: tt.body}))
		})
	}
}

func TestIsPublic(t *testing.T) {
	tests := []struct {
		name string
		fn   source.Function
		want bool
	}{
		{"plain name", source.Function{Name: "run"}, true},
		{"single underscore", source.Function{Name: "_helper"}, false},
		{"dunder", source.Function{Name: "__init__"}, true},
		{"name mangled", source.Function{Name: "__secret"}, false},
		{"private decorator", source.Function{Name: "run", Decorators: []string{"Private"}}, false},
		{"unrelated decorator", source.Function{Name: "run", Decorators: []string{"staticmethod"}}, true},
		{"explicit marker", source.Function{Name: "helper", Private: true}, false},
		{"marker beats dunder", source.Function{Name: "__call__", Decorators: []string{"private_api"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPublic(tt.fn))
		})
	}
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name       string
		complexity int
		coverage   float64
		public     bool
		want       Priority
	}{
		{"complex and uncovered", 12, 0, false, PriorityCritical},
		{"public and uncovered", 1, 0, true, PriorityCritical},
		{"complex and public uncovered", 12, 0, true, PriorityCritical},
		{"moderate and uncovered", 6, 0, false, PriorityHigh},
		{"moderate and low", 6, 20, false, PriorityHigh},
		{"public and low", 1, 20, true, PriorityHigh},
		{"public at half threshold", 1, 25, true, PriorityMedium},
		{"private simple partial", 1, 40, false, PriorityMedium},
		{"private simple uncovered", 1, 0, false, PriorityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.complexity, tt.coverage, tt.public, cfg))
		})
	}
}

func TestPrioritizedGaps(t *testing.T) {
	r := &Report{FunctionGaps: []FunctionGap{
		{FunctionName: "low", Priority: PriorityLow},
		{FunctionName: "medium", Priority: PriorityMedium, CoveragePct: 40},
		{FunctionName: "critical-simple", Priority: PriorityCritical, Complexity: 1},
		{FunctionName: "high", Priority: PriorityHigh, CoveragePct: 10},
		{FunctionName: "medium-lower", Priority: PriorityMedium, CoveragePct: 30},
		{FunctionName: "critical-complex", Priority: PriorityCritical, Complexity: 12},
		{FunctionName: "critical-simple-2", Priority: PriorityCritical, Complexity: 1},
	}}

	var names []string
	for _, g := range r.PrioritizedGaps() {
		names = append(names, g.FunctionName)
	}
	assert.Equal(t, []string{
		"critical-complex", "critical-simple", "critical-simple-2",
		"high", "medium-lower", "medium", "low",
	}, names)
	assert.Equal(t, "low", r.FunctionGaps[0].FunctionName, "original order untouched")

	counts := r.CountByPriority()
	assert.Equal(t, 3, counts[PriorityCritical])
	assert.Equal(t, 2, counts[PriorityMedium])
}

func TestNewAnalyzer_InvalidRoot(t *testing.T) {
	t.Run("should reject a missing root", func(t *testing.T) {
		_, err := NewAnalyzer(filepath.Join(t.TempDir(), "missing"), DefaultConfig(), nil)
		assert.ErrorIs(t, err, ErrInvalidProjectRoot)
	})

	t.Run("should reject a file root", func(t *testing.T) {
		root := writeProject(t, map[string]string{"file.txt": "x"})
		_, err := NewAnalyzer(filepath.Join(root, "file.txt"), DefaultConfig(), nil)
		assert.ErrorIs(t, err, ErrInvalidProjectRoot)
	})
}

const calcPy = `def add(a, b):
    return a + b

def _helper(x):
    if x:
        return 1
    return 0

def big(x):
    if x and x > 1:
        return 2
    return 3

def half(x):
    y = x
    return y
`

func pythonProject(t *testing.T) (string, *coverage.Report) {
	root := writeProject(t, map[string]string{
		"app/__init__.py":     "",
		"app/calc.py":         calcPy,
		"app/untouched.py":    "def run():\n    return 1\n",
		"app/broken.go":       "package app\nfunc {",
		"tests/test_calc.py":  "from app.calc import add, removed\nimport app.gone\nimport os\n",
		"tests/test_ok.py":    "from app.calc import big\nfrom app import calc\n",
		"node_modules/x.js":   "module.exports = 1",
		"tests/test_extra.py": "import app.calc\n",
	})

	report := coverage.NewReport()
	report.Add(&coverage.FileCoverage{FilePath: "app/calc.py", Lines: lines(map[int]int{
		2: 1, 5: 0, 6: 0, 7: 0, 10: 1, 11: 0, 12: 0, 15: 1, 16: 0,
	})})
	report.Add(&coverage.FileCoverage{FilePath: filepath.Join(root, "app", "untouched.py"), Lines: lines(map[int]int{2: 0})})
	report.Add(&coverage.FileCoverage{FilePath: "app/broken.go", Lines: lines(map[int]int{2: 0})})
	report.Add(&coverage.FileCoverage{FilePath: "app/deleted.py", Lines: lines(map[int]int{1: 1})})
	report.Add(&coverage.FileCoverage{FilePath: "node_modules/x.js", Lines: lines(map[int]int{1: 0})})
	return root, report
}

func TestAnalyze(t *testing.T) {
	root, report := pythonProject(t)
	a, err := NewAnalyzer(root, DefaultConfig(), source.DefaultRegistry())
	require.NoError(t, err)

	result, err := a.Analyze(report)
	require.NoError(t, err)

	t.Run("should list zero coverage files outside excluded dirs", func(t *testing.T) {
		assert.Equal(t, []string{"app/broken.go", "app/untouched.py"}, result.UntestedFiles)
	})

	t.Run("should drop functions at or above the threshold", func(t *testing.T) {
		var names []string
		for _, g := range result.FunctionGaps {
			names = append(names, g.FunctionName)
		}
		assert.ElementsMatch(t, []string{"_helper", "big", "run"}, names)
	})

	t.Run("should prioritize gaps", func(t *testing.T) {
		gaps := result.PrioritizedGaps()
		require.Len(t, gaps, 3)

		assert.Equal(t, "run", gaps[0].FunctionName)
		assert.Equal(t, PriorityCritical, gaps[0].Priority)
		assert.Equal(t, "app/untouched.py", gaps[0].FilePath)

		assert.Equal(t, "big", gaps[1].FunctionName)
		assert.Equal(t, PriorityMedium, gaps[1].Priority)
		assert.InDelta(t, 100.0/3, gaps[1].CoveragePct, 0.001)
		assert.Equal(t, 3, gaps[1].Complexity)
		assert.Equal(t, 9, gaps[1].LineNumber)

		assert.Equal(t, "_helper", gaps[2].FunctionName)
		assert.Equal(t, PriorityLow, gaps[2].Priority)
		assert.False(t, gaps[2].IsPublic)
	})

	t.Run("should report stale tests", func(t *testing.T) {
		require.Len(t, result.StaleTests, 1)
		assert.Equal(t, "tests/test_calc.py", result.StaleTests[0].TestFilePath)
		assert.Equal(t, []string{"app.calc.removed", "app.gone"}, result.StaleTests[0].MissingImports)
		assert.NotEmpty(t, result.StaleTests[0].Reason)
	})

	t.Run("should carry overall and target coverage", func(t *testing.T) {
		assert.InDelta(t, 100.0*4/13, result.OverallCoverage, 0.001)
		assert.Equal(t, 80.0, result.TargetCoverage)
	})
}

func TestAnalyze_NilReport(t *testing.T) {
	a, err := NewAnalyzer(t.TempDir(), DefaultConfig(), nil)
	require.NoError(t, err)
	_, err = a.Analyze(nil)
	assert.Error(t, err)
}

func TestFunctionCoverage(t *testing.T) {
	fn := source.Function{Name: "f", StartLine: 3, EndLine: 5}

	t.Run("should use line records in range", func(t *testing.T) {
		fc := &coverage.FileCoverage{Lines: lines(map[int]int{1: 1, 4: 1, 5: 0, 9: 1})}
		assert.Equal(t, 50.0, functionCoverage(fn, fc))
	})

	t.Run("should fall back to the nearest function record", func(t *testing.T) {
		fc := &coverage.FileCoverage{Functions: []coverage.FunctionCoverage{
			{Name: "f", LineNumber: 40, ExecutionCount: 0},
			{Name: "f", LineNumber: 3, ExecutionCount: 2},
		}}
		assert.Equal(t, 100.0, functionCoverage(fn, fc))
	})

	t.Run("should treat missing records as uncovered", func(t *testing.T) {
		fc := &coverage.FileCoverage{Functions: []coverage.FunctionCoverage{{Name: "g", LineNumber: 3, ExecutionCount: 1}}}
		assert.Equal(t, 0.0, functionCoverage(fn, fc))
		assert.Equal(t, 0.0, functionCoverage(fn, nil))
	})
}

func TestStaleTests_Go(t *testing.T) {
	root := writeProject(t, map[string]string{
		"go.mod":          "module example.com/proj\n\ngo 1.22\n",
		"pkg/a/a.go":      "package a\n\nfunc A() int { return 1 }\n",
		"pkg/a/a_test.go": `package a_test

import (
	"testing"

	"example.com/proj/pkg/a"
	"example.com/proj/pkg/gone"
	"github.com/stretchr/testify/assert"
)
`,
	})
	a, err := NewAnalyzer(root, DefaultConfig(), nil)
	require.NoError(t, err)

	result, err := a.Analyze(coverage.NewReport())
	require.NoError(t, err)
	require.Len(t, result.StaleTests, 1)
	assert.Equal(t, "pkg/a/a_test.go", result.StaleTests[0].TestFilePath)
	assert.Equal(t, []string{"example.com/proj/pkg/gone"}, result.StaleTests[0].MissingImports)
}

func TestStaleTests_Script(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/a.ts":          "export function a() { return 1; }\n",
		"src/util/index.js": "module.exports = {};\n",
		"src/a.test.ts": `import { a } from './a';
import { b } from './b.js';
import util from './util';
import React from 'react';
const gone = require('../lib/gone');
`,
	})
	a, err := NewAnalyzer(root, DefaultConfig(), nil)
	require.NoError(t, err)

	result, err := a.Analyze(coverage.NewReport())
	require.NoError(t, err)
	require.Len(t, result.StaleTests, 1)
	assert.Equal(t, []string{"./b.js", "../lib/gone"}, result.StaleTests[0].MissingImports)
}

func TestStaleTests_ScriptMultiLineImport(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/a.js": "export function a() { return 1; }\n",
		"src/a.test.js": `import {
  a,
  b,
} from './gone';
import { a as kept } from './a';
`,
	})
	a, err := NewAnalyzer(root, DefaultConfig(), nil)
	require.NoError(t, err)

	result, err := a.Analyze(coverage.NewReport())
	require.NoError(t, err)
	require.Len(t, result.StaleTests, 1)
	assert.Equal(t, "src/a.test.js", result.StaleTests[0].TestFilePath)
	assert.Equal(t, []string{"./gone"}, result.StaleTests[0].MissingImports)
}

func TestScanSources(t *testing.T) {
	root := writeProject(t, map[string]string{
		"app/models.py":        "def save(x):\n    if x:\n        return 1\n\ndef _internal():\n    pass\n",
		"app/views.py":         "def index():\n    return 'ok'\n",
		"tests/test_models.py": "from app.models import save\n",
		"vendor/lib.py":        "def vendored():\n    pass\n",
	})
	a, err := NewAnalyzer(root, DefaultConfig(), nil)
	require.NoError(t, err)

	result, err := a.ScanSources()
	require.NoError(t, err)

	assert.Equal(t, []string{"app/views.py"}, result.UntestedFiles)
	require.Len(t, result.FunctionGaps, 2)
	assert.Equal(t, "save", result.FunctionGaps[0].FunctionName)
	assert.Equal(t, PriorityCritical, result.FunctionGaps[0].Priority)
	assert.Equal(t, 2, result.FunctionGaps[0].Complexity)
	assert.Equal(t, "index", result.FunctionGaps[1].FunctionName)
	assert.Empty(t, result.StaleTests)
	assert.Equal(t, 0.0, result.OverallCoverage)
}

func TestAnalyze_SkipsUnreadableDirectories(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := writeProject(t, map[string]string{
		"app/calc.py":      "def run(x):\n    return x\n",
		"secret/hidden.py": "def hidden():\n    pass\n",
	})
	secret := filepath.Join(root, "secret")
	require.NoError(t, os.Chmod(secret, 0))
	t.Cleanup(func() { _ = os.Chmod(secret, 0755) })

	a, err := NewAnalyzer(root, DefaultConfig(), nil)
	require.NoError(t, err)

	t.Run("should keep analyzing covered files", func(t *testing.T) {
		report := coverage.NewReport()
		report.Add(&coverage.FileCoverage{FilePath: "app/calc.py", Lines: lines(map[int]int{1: 0, 2: 0})})

		result, err := a.Analyze(report)
		require.NoError(t, err)
		assert.Equal(t, []string{"app/calc.py"}, result.UntestedFiles)
		require.Len(t, result.FunctionGaps, 1)
		assert.Equal(t, "run", result.FunctionGaps[0].FunctionName)
	})

	t.Run("should keep scanning sources", func(t *testing.T) {
		result, err := a.ScanSources()
		require.NoError(t, err)
		assert.Equal(t, []string{"app/calc.py"}, result.UntestedFiles)
	})
}
