package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/gapwatch/internal/collector"
	"github.com/zjy-dev/gapwatch/internal/config"
	"github.com/zjy-dev/gapwatch/internal/coverage"
	"github.com/zjy-dev/gapwatch/internal/history"
	"github.com/zjy-dev/gapwatch/internal/watch"
)

const calcSource = `package pkg

func Add(a, b int) int {
	if a > b {
		return a
	}
	return b
}
func Unused() { println() }
`

const calcProfile = `mode: count
example.com/proj/pkg/a.go:3.24,5.13 2 1
example.com/proj/pkg/a.go:5.13,7.10 1 0
example.com/proj/pkg/a.go:9.15,9.27 1 0
`

// newProject creates a Go module in an isolated working directory and home.
func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Chdir(root)
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/proj\n\ngo 1.22\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.go"), []byte(calcSource), 0644))
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runWith(t, &globalOptions{registry: newRegistry}, args...)
}

func runWith(t *testing.T, opts *globalOptions, args ...string) (string, error) {
	t.Helper()
	cmd := newGapwatchCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func seedHistory(t *testing.T, root string, coverages ...float64) {
	t.Helper()
	var snaps []history.Snapshot
	for i, c := range coverages {
		snaps = append(snaps, history.Snapshot{
			Timestamp:           "2026-01-0" + string(rune('1'+i)) + "T00:00:00Z",
			OverallLineCoverage: c,
			FileCount:           1,
		})
	}
	require.NoError(t, history.NewFileStore(history.DefaultDir(root)).Save(snaps))
}

type fakeCollector struct {
	name   string
	report *coverage.Report
	err    error
	ran    bool
}

func (f *fakeCollector) Name() string       { return f.name }
func (f *fakeCollector) Detect(string) bool { return true }

func (f *fakeCollector) RunCoverage(ctx context.Context, root string, testFiles []string) (*coverage.Report, error) {
	f.ran = true
	return f.report, f.err
}

func withCollectors(cs ...collector.Collector) *globalOptions {
	return &globalOptions{registry: func(*config.Config) (*collector.Registry, error) {
		return collector.NewRegistry(cs...), nil
	}}
}

func fileReport(path string, counts map[int]int) *coverage.Report {
	fc := &coverage.FileCoverage{FilePath: path}
	for n := 1; n <= 20; n++ {
		if c, ok := counts[n]; ok {
			fc.Lines = append(fc.Lines, coverage.LineCoverage{LineNumber: n, ExecutionCount: c})
		}
	}
	r := coverage.NewReport()
	r.Add(fc)
	return r
}

func decodeGapNames(t *testing.T, out string) []string {
	t.Helper()
	var decoded struct {
		Gaps struct {
			FunctionGaps []struct {
				FunctionName string `json:"function_name"`
			} `json:"function_gaps"`
		} `json:"gaps"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	var names []string
	for _, g := range decoded.Gaps.FunctionGaps {
		names = append(names, g.FunctionName)
	}
	return names
}

func TestAnalyzeCommand_MergesCollectors(t *testing.T) {
	root := newProject(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app", "calc.py"), []byte("def run(x):\n    return x\n"), 0644))

	goCov := &fakeCollector{name: "go", report: fileReport("pkg/a.go", map[int]int{3: 1, 4: 1, 5: 1, 6: 1, 7: 1, 9: 0})}
	broken := &fakeCollector{name: "broken", err: errors.New("tool crashed")}
	pyCov := &fakeCollector{name: "py", report: fileReport("app/calc.py", map[int]int{1: 0, 2: 0})}

	t.Run("should merge every detected collector and skip failures", func(t *testing.T) {
		out, err := runWith(t, withCollectors(goCov, broken, pyCov), "analyze", root, "-o", "json")
		require.NoError(t, err)
		assert.True(t, goCov.ran)
		assert.True(t, broken.ran)
		assert.True(t, pyCov.ran)
		assert.ElementsMatch(t, []string{"Unused", "run"}, decodeGapNames(t, out))
	})

	t.Run("should fail when every collector fails", func(t *testing.T) {
		_, err := runWith(t, withCollectors(broken), "analyze", root, "-o", "json")
		assert.ErrorContains(t, err, "tool crashed")
	})

	t.Run("should scan sources when no collector applies", func(t *testing.T) {
		out, err := runWith(t, withCollectors(), "analyze", root, "-o", "json")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Add", "Unused", "run"}, decodeGapNames(t, out))
	})
}

func TestAnalyzeCommand(t *testing.T) {
	t.Run("should report gaps from an existing profile", func(t *testing.T) {
		root := newProject(t)
		profile := filepath.Join(root, "cover.out")
		require.NoError(t, os.WriteFile(profile, []byte(calcProfile), 0644))

		out, err := run(t, "analyze", root, "--profile", profile, "--format", "json", "--no-color")
		require.NoError(t, err)

		var decoded struct {
			Gaps struct {
				FunctionGaps []struct {
					FunctionName string `json:"function_name"`
					FilePath     string `json:"file_path"`
				} `json:"function_gaps"`
			} `json:"gaps"`
			Tasks []map[string]any `json:"tasks"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		require.Len(t, decoded.Gaps.FunctionGaps, 1)
		assert.Equal(t, "Unused", decoded.Gaps.FunctionGaps[0].FunctionName)
		assert.Equal(t, "pkg/a.go", decoded.Gaps.FunctionGaps[0].FilePath)
		assert.NotEmpty(t, decoded.Tasks)
	})

	t.Run("should save a markdown copy", func(t *testing.T) {
		root := newProject(t)
		reports := filepath.Join(root, "reports")

		_, err := run(t, "analyze", root, "--no-run", "--report-dir", reports, "--no-color")
		require.NoError(t, err)

		entries, err := os.ReadDir(reports)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, strings.HasPrefix(entries[0].Name(), "gaps_"))
	})

	t.Run("should reject a missing root", func(t *testing.T) {
		newProject(t)
		_, err := run(t, "analyze", filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})

	t.Run("should reject an invalid threshold override", func(t *testing.T) {
		root := newProject(t)
		_, err := run(t, "analyze", root, "--no-run", "--undertested-threshold", "150")
		assert.ErrorContains(t, err, "invalid configuration")
	})
}

func TestWatchCommand(t *testing.T) {
	t.Run("should report the stored trend", func(t *testing.T) {
		root := newProject(t)
		seedHistory(t, root, 70, 62)

		out, err := run(t, "watch", root, "--mode", "report", "-o", "json")
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, "decreasing", decoded["trend"])
		assert.Len(t, decoded["alerts"], 2)
	})

	t.Run("should fail on critical alerts when asked", func(t *testing.T) {
		root := newProject(t)
		seedHistory(t, root, 90, 84)

		out, err := run(t, "watch", root, "--mode", "report", "--fail-on-critical", "--threshold", "50", "--no-color")
		assert.ErrorIs(t, err, ErrCriticalAlert)
		assert.Contains(t, out, "CRITICAL")
	})

	t.Run("should not fail on warnings", func(t *testing.T) {
		root := newProject(t)
		seedHistory(t, root, 60, 60)

		_, err := run(t, "watch", root, "--mode", "report", "--fail-on-critical", "--no-color")
		assert.NoError(t, err)
	})

	t.Run("should require history in report mode", func(t *testing.T) {
		root := newProject(t)
		_, err := run(t, "watch", root, "--mode", "report")
		assert.ErrorIs(t, err, watch.ErrNoHistoryAvailable)
	})

	t.Run("should fail when no collector applies", func(t *testing.T) {
		root := t.TempDir()
		t.Chdir(root)
		t.Setenv("HOME", t.TempDir())

		_, err := run(t, "watch", root)
		assert.ErrorIs(t, err, watch.ErrNoCollectorDetected)
	})

	t.Run("should reject unknown modes", func(t *testing.T) {
		root := newProject(t)
		_, err := run(t, "watch", root, "--mode", "loop")
		assert.ErrorContains(t, err, "unknown mode")
	})
}

func TestHistoryCommand(t *testing.T) {
	root := newProject(t)
	seedHistory(t, root, 10, 20, 30)

	out, err := run(t, "history", root, "-n", "2", "--format", "yaml")
	require.NoError(t, err)
	assert.NotContains(t, out, "overall_line_coverage: 10")
	assert.Contains(t, out, "overall_line_coverage: 20")
	assert.Contains(t, out, "overall_line_coverage: 30")

	out, err = run(t, "history", root, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "10.00%")
}

func TestHistoryCommand_SQLite(t *testing.T) {
	root := newProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "gapwatch.yaml"), []byte("history:\n  backend: sqlite\n"), 0644))

	out, err := run(t, "history", root, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "No snapshots recorded.")
	assert.FileExists(t, filepath.Join(history.DefaultDir(root), history.DBFileName))
}
