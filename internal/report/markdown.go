package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjy-dev/gapwatch/internal/gap"
	"github.com/zjy-dev/gapwatch/internal/history"
	"github.com/zjy-dev/gapwatch/internal/task"
	"github.com/zjy-dev/gapwatch/internal/watch"
)

// Markdown renders reports as GitHub-flavored markdown.
type Markdown struct{}

func (Markdown) Render(w io.Writer, v any) error {
	var content string
	switch val := v.(type) {
	case *Analysis:
		content = markdownGaps(val.Gaps) + markdownTasks(val.Tasks)
	case *gap.Report:
		content = markdownGaps(val)
	case []task.Task:
		content = markdownTasks(val)
	case *watch.TrendReport:
		content = markdownTrend(val)
	case []history.Snapshot:
		content = markdownHistory(val)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	_, err := io.WriteString(w, content)
	return err
}

func markdownGaps(r *gap.Report) string {
	var content string
	content += "# Coverage Gap Report\n\n"
	if r == nil {
		return content + "No report.\n\n"
	}
	content += fmt.Sprintf("**Overall coverage:** %.2f%% (target %.2f%%)\n\n", r.OverallCoverage, r.TargetCoverage)

	content += fmt.Sprintf("## Untested Files (%d)\n\n", len(r.UntestedFiles))
	for _, f := range r.UntestedFiles {
		content += fmt.Sprintf("- `%s`\n", f)
	}
	content += "\n"

	content += fmt.Sprintf("## Function Gaps (%d)\n\n", len(r.FunctionGaps))
	if len(r.FunctionGaps) > 0 {
		content += "| Priority | Function | Location | Coverage | Complexity | Public |\n"
		content += "|---|---|---|---:|---:|---|\n"
		for _, g := range r.PrioritizedGaps() {
			content += fmt.Sprintf("| %s | `%s` | %s:%d | %.1f%% | %d | %s |\n",
				strings.ToUpper(string(g.Priority)), g.FunctionName, g.FilePath, g.LineNumber, g.CoveragePct, g.Complexity, yesNo(g.IsPublic))
		}
		content += "\n"
	}

	if len(r.StaleTests) > 0 {
		content += fmt.Sprintf("## Stale Tests (%d)\n\n", len(r.StaleTests))
		for _, s := range r.StaleTests {
			content += fmt.Sprintf("- `%s`: %s\n", s.TestFilePath, strings.Join(quoteAll(s.MissingImports), ", "))
		}
		content += "\n"
	}
	return content
}

func markdownTasks(tasks []task.Task) string {
	var content string
	content += fmt.Sprintf("## Follow-up Tasks (%d)\n\n", len(tasks))
	for i, tk := range tasks {
		content += fmt.Sprintf("%d. **%s** `%s` → `%s` (%s)\n", i+1, strings.ToUpper(string(tk.Priority)), tk.Target, tk.TestFile, tk.Reason)
	}
	content += "\n"
	return content
}

func markdownTrend(r *watch.TrendReport) string {
	var content string
	content += "# Coverage Trend\n\n"
	content += fmt.Sprintf("**Snapshot:** %s  \n", r.Current.Timestamp)
	content += fmt.Sprintf("**Trend:** %s  \n", r.Trend)
	content += fmt.Sprintf("**History:** %d snapshot(s)\n\n", r.HistoryCount)

	content += "| Metric | Current | Previous |\n"
	content += "|---|---:|---:|\n"
	prev := func(f func(history.Snapshot) float64) string {
		if r.Previous == nil {
			return "-"
		}
		return fmt.Sprintf("%.2f%%", f(*r.Previous))
	}
	content += fmt.Sprintf("| Line | %.2f%% | %s |\n", r.Current.OverallLineCoverage, prev(func(s history.Snapshot) float64 { return s.OverallLineCoverage }))
	content += fmt.Sprintf("| Function | %.2f%% | %s |\n", r.Current.OverallFunctionCoverage, prev(func(s history.Snapshot) float64 { return s.OverallFunctionCoverage }))
	content += fmt.Sprintf("| Branch | %.2f%% | %s |\n\n", r.Current.OverallBranchCoverage, prev(func(s history.Snapshot) float64 { return s.OverallBranchCoverage }))

	if len(r.Alerts) > 0 {
		content += "## Alerts\n\n"
		for _, a := range r.Alerts {
			content += fmt.Sprintf("- **%s**: %s\n", strings.ToUpper(string(a.Severity)), a.Message)
		}
		content += "\n"
	}
	return content
}

func markdownHistory(snaps []history.Snapshot) string {
	var content string
	content += "# Coverage History\n\n"
	if len(snaps) == 0 {
		return content + "No snapshots recorded.\n"
	}
	content += "| Timestamp | Line | Function | Branch | Files |\n"
	content += "|---|---:|---:|---:|---:|\n"
	for _, s := range snaps {
		content += fmt.Sprintf("| %s | %.2f%% | %.2f%% | %.2f%% | %d |\n",
			s.Timestamp, s.OverallLineCoverage, s.OverallFunctionCoverage, s.OverallBranchCoverage, s.FileCount)
	}
	return content
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "`" + n + "`"
	}
	return out
}

// MarkdownReporter saves reports as markdown files in a directory.
type MarkdownReporter struct {
	outputDir string
	now       func() time.Time
}

// NewMarkdownReporter creates a new MarkdownReporter.
func NewMarkdownReporter(outputDir string) *MarkdownReporter {
	return &MarkdownReporter{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// Save writes v to <outputDir>/<name>_<unix nanos>.md and returns the path.
func (r *MarkdownReporter) Save(name string, v any) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	var sb strings.Builder
	if err := (Markdown{}).Render(&sb, v); err != nil {
		return "", err
	}

	reportName := fmt.Sprintf("%s_%d.md", name, r.now().UnixNano())
	reportPath := filepath.Join(r.outputDir, reportName)
	if err := os.WriteFile(reportPath, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return reportPath, nil
}
