// Package task turns gap reports into follow-up work items for a test generator.
package task

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/zjy-dev/gapwatch/internal/gap"
)

// Kind of work a task asks for.
const KindBuildUnitTest = "build_unit_test"

// Reasons a task was created.
const (
	ReasonUntestedFile = "untested_file"
	ReasonFunctionGap  = "function_gap"
)

// namespace scopes the name-based task IDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/zjy-dev/gapwatch/task"))

// Task is one actionable unit of test-writing work.
type Task struct {
	ID           string       `json:"id" yaml:"id"`
	Kind         string       `json:"kind" yaml:"kind"`
	SourceFile   string       `json:"source_file" yaml:"source_file"`
	Target       string       `json:"target" yaml:"target"`
	TestFile     string       `json:"test_file" yaml:"test_file"`
	Priority     gap.Priority `json:"priority" yaml:"priority"`
	Reason       string       `json:"reason" yaml:"reason"`
	FunctionName string       `json:"function_name,omitempty" yaml:"function_name,omitempty"`
	Complexity   int          `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	Coverage     float64      `json:"coverage" yaml:"coverage"`
}

// Build converts a gap report into tasks: one per untested file first, then
// one per prioritized function gap in a file that has no task yet.
// It performs no I/O. A nil report panics.
func Build(r *gap.Report) []Task {
	if r == nil {
		panic("task.Build: nil gap report")
	}

	tasks := make([]Task, 0, len(r.UntestedFiles)+len(r.FunctionGaps))
	fileTasked := make(map[string]bool, len(r.UntestedFiles))

	for _, file := range r.UntestedFiles {
		if fileTasked[file] {
			continue
		}
		fileTasked[file] = true
		tasks = append(tasks, Task{
			ID:         taskID(ReasonUntestedFile, file, "", 0),
			Kind:       KindBuildUnitTest,
			SourceFile: file,
			Target:     file,
			TestFile:   TestFileFor(file),
			Priority:   gap.PriorityCritical,
			Reason:     ReasonUntestedFile,
		})
	}

	for _, g := range r.PrioritizedGaps() {
		if fileTasked[g.FilePath] {
			continue
		}
		tasks = append(tasks, Task{
			ID:           taskID(ReasonFunctionGap, g.FilePath, g.FunctionName, g.LineNumber),
			Kind:         KindBuildUnitTest,
			SourceFile:   g.FilePath,
			Target:       g.FunctionName,
			TestFile:     TestFileFor(g.FilePath),
			Priority:     g.Priority,
			Reason:       ReasonFunctionGap,
			FunctionName: g.FunctionName,
			Complexity:   g.Complexity,
			Coverage:     g.CoveragePct,
		})
	}
	return tasks
}

func taskID(reason, file, function string, line int) string {
	name := fmt.Sprintf("%s|%s|%s|%d", reason, file, function, line)
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// TestFileFor returns the conventional test file for a source file, in the
// same directory: x_test.go, test_x.py, x.test.ts (or .tsx/.js/.jsx), else x_test<ext>.
func TestFileFor(sourceFile string) string {
	dir, base := path.Split(sourceFile)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	switch ext {
	case ".go":
		return dir + stem + "_test.go"
	case ".py":
		return dir + "test_" + stem + ".py"
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return dir + stem + ".test" + ext
	default:
		return dir + stem + "_test" + ext
	}
}
