package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/zjy-dev/gapwatch/internal/gap"
	"github.com/zjy-dev/gapwatch/internal/history"
	"github.com/zjy-dev/gapwatch/internal/task"
	"github.com/zjy-dev/gapwatch/internal/watch"
)

// Box drawing characters (Unicode)
const (
	boxHorizontal = "═"
	barFilled     = "█"
	barEmpty      = "░"
	barWidth      = 30
)

// Terminal renders reports as colored plain text.
type Terminal struct {
	title    *color.Color
	label    *color.Color
	dim      *color.Color
	good     *color.Color
	warn     *color.Color
	bad      *color.Color
	critical *color.Color
}

// NewTerminal creates a text reporter. Colors are forced on or off
// regardless of whether the output is a terminal.
func NewTerminal(enableColor bool) *Terminal {
	t := &Terminal{
		title:    color.New(color.FgCyan, color.Bold),
		label:    color.New(color.FgWhite, color.Bold),
		dim:      color.New(color.Faint),
		good:     color.New(color.FgGreen),
		warn:     color.New(color.FgYellow),
		bad:      color.New(color.FgRed),
		critical: color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{t.title, t.label, t.dim, t.good, t.warn, t.bad, t.critical} {
		if enableColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

func (t *Terminal) Render(w io.Writer, v any) error {
	var sb strings.Builder
	switch val := v.(type) {
	case *Analysis:
		t.writeGaps(&sb, val.Gaps)
		sb.WriteString("\n")
		t.writeTasks(&sb, val.Tasks)
	case *gap.Report:
		t.writeGaps(&sb, val)
	case []task.Task:
		t.writeTasks(&sb, val)
	case *watch.TrendReport:
		t.writeTrend(&sb, val)
	case []history.Snapshot:
		t.writeHistory(&sb, val)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func (t *Terminal) heading(sb *strings.Builder, title string) {
	sb.WriteString(t.title.Sprint(title))
	sb.WriteString("\n")
	sb.WriteString(t.title.Sprint(strings.Repeat(boxHorizontal, len(title))))
	sb.WriteString("\n")
}

// bar draws pct as a fixed-width progress bar, green at or above target.
func (t *Terminal) bar(pct, target float64) string {
	filled := int(float64(barWidth) * pct / 100)
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	c := t.bad
	switch {
	case pct >= target:
		c = t.good
	case pct >= target/2:
		c = t.warn
	}
	return "[" + c.Sprint(strings.Repeat(barFilled, filled)) + t.dim.Sprint(strings.Repeat(barEmpty, barWidth-filled)) + "]"
}

func (t *Terminal) priority(p gap.Priority) string {
	label := fmt.Sprintf("%-8s", strings.ToUpper(string(p)))
	switch p {
	case gap.PriorityCritical:
		return t.critical.Sprint(label)
	case gap.PriorityHigh:
		return t.bad.Sprint(label)
	case gap.PriorityMedium:
		return t.warn.Sprint(label)
	default:
		return t.dim.Sprint(label)
	}
}

func (t *Terminal) writeGaps(sb *strings.Builder, r *gap.Report) {
	t.heading(sb, "Coverage Gap Report")
	if r == nil {
		sb.WriteString("No report.\n")
		return
	}

	fmt.Fprintf(sb, "%s %.2f%% %s (target %.2f%%)\n\n",
		t.label.Sprint("Overall coverage:"), r.OverallCoverage, t.bar(r.OverallCoverage, r.TargetCoverage), r.TargetCoverage)

	fmt.Fprintf(sb, "%s (%d)\n", t.label.Sprint("Untested files"), len(r.UntestedFiles))
	for _, f := range r.UntestedFiles {
		fmt.Fprintf(sb, "  - %s\n", f)
	}
	sb.WriteString("\n")

	counts := r.CountByPriority()
	fmt.Fprintf(sb, "%s (%d): critical %d, high %d, medium %d, low %d\n", t.label.Sprint("Function gaps"), len(r.FunctionGaps),
		counts[gap.PriorityCritical], counts[gap.PriorityHigh], counts[gap.PriorityMedium], counts[gap.PriorityLow])
	for _, g := range r.PrioritizedGaps() {
		visibility := "private"
		if g.IsPublic {
			visibility = "public"
		}
		fmt.Fprintf(sb, "  %s %s:%d %s  %5.1f%%  complexity %d  %s\n",
			t.priority(g.Priority), g.FilePath, g.LineNumber, g.FunctionName, g.CoveragePct, g.Complexity, t.dim.Sprint(visibility))
	}

	if len(r.StaleTests) > 0 {
		sb.WriteString("\n")
		fmt.Fprintf(sb, "%s (%d)\n", t.label.Sprint("Stale tests"), len(r.StaleTests))
		for _, s := range r.StaleTests {
			fmt.Fprintf(sb, "  %s: %s\n", t.warn.Sprint(s.TestFilePath), strings.Join(s.MissingImports, ", "))
		}
	}
}

func (t *Terminal) writeTasks(sb *strings.Builder, tasks []task.Task) {
	t.heading(sb, "Follow-up Tasks")
	if len(tasks) == 0 {
		sb.WriteString(t.good.Sprint("Nothing to do."))
		sb.WriteString("\n")
		return
	}
	for i, tk := range tasks {
		fmt.Fprintf(sb, "%3d. %s %s -> %s %s\n",
			i+1, t.priority(tk.Priority), tk.Target, tk.TestFile, t.dim.Sprintf("(%s, %s)", tk.Reason, tk.SourceFile))
	}
}

func (t *Terminal) writeTrend(sb *strings.Builder, r *watch.TrendReport) {
	t.heading(sb, "Coverage Trend")
	cur := r.Current
	fmt.Fprintf(sb, "%s %s\n", t.label.Sprint("Snapshot:"), cur.Timestamp)
	fmt.Fprintf(sb, "  line     %6.2f%% %s\n", cur.OverallLineCoverage, t.bar(cur.OverallLineCoverage, 80))
	fmt.Fprintf(sb, "  function %6.2f%%\n", cur.OverallFunctionCoverage)
	fmt.Fprintf(sb, "  branch   %6.2f%%\n", cur.OverallBranchCoverage)
	fmt.Fprintf(sb, "  files    %d\n", cur.FileCount)
	if r.Previous != nil {
		fmt.Fprintf(sb, "%s %.2f%% at %s\n", t.label.Sprint("Previous:"), r.Previous.OverallLineCoverage, r.Previous.Timestamp)
	}

	trend := string(r.Trend)
	switch r.Trend {
	case watch.TrendIncreasing:
		trend = t.good.Sprint("↑ " + trend)
	case watch.TrendDecreasing:
		trend = t.bad.Sprint("↓ " + trend)
	default:
		trend = t.dim.Sprint("→ " + trend)
	}
	fmt.Fprintf(sb, "%s %s\n", t.label.Sprint("Trend:"), trend)

	if len(r.Alerts) > 0 {
		fmt.Fprintf(sb, "%s\n", t.label.Sprint("Alerts:"))
		for _, a := range r.Alerts {
			sev := t.warn.Sprint("WARNING ")
			if a.Severity == watch.SeverityCritical {
				sev = t.critical.Sprint("CRITICAL")
			}
			fmt.Fprintf(sb, "  %s %s\n", sev, a.Message)
		}
	}
	fmt.Fprintf(sb, "%s %d snapshot(s)\n", t.dim.Sprint("History:"), r.HistoryCount)
}

func (t *Terminal) writeHistory(sb *strings.Builder, snaps []history.Snapshot) {
	t.heading(sb, "Coverage History")
	if len(snaps) == 0 {
		sb.WriteString("No snapshots recorded.\n")
		return
	}
	fmt.Fprintf(sb, "%s\n", t.label.Sprintf("%-25s %8s %8s %8s %6s", "timestamp", "line", "function", "branch", "files"))
	for _, s := range snaps {
		fmt.Fprintf(sb, "%-25s %7.2f%% %7.2f%% %7.2f%% %6d\n",
			s.Timestamp, s.OverallLineCoverage, s.OverallFunctionCoverage, s.OverallBranchCoverage, s.FileCount)
	}
}
