package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/gapwatch/internal/collector"
	"github.com/zjy-dev/gapwatch/internal/coverage"
	"github.com/zjy-dev/gapwatch/internal/history"
)

// scriptedCollector returns one report per call with the given line coverage.
type scriptedCollector struct {
	name     string
	detect   bool
	coverage []int
	calls    int
	err      error
	block    bool
}

func (s *scriptedCollector) Name() string            { return s.name }
func (s *scriptedCollector) Detect(root string) bool { return s.detect }

func (s *scriptedCollector) RunCoverage(ctx context.Context, root string, testFiles []string) (*coverage.Report, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	pct := s.coverage[s.calls%len(s.coverage)]
	s.calls++
	return reportWithLineCoverage(pct), nil
}

// reportWithLineCoverage builds a two-file report with pct of 100 lines covered.
func reportWithLineCoverage(pct int) *coverage.Report {
	r := coverage.NewReport()
	a := &coverage.FileCoverage{FilePath: "a.go"}
	b := &coverage.FileCoverage{FilePath: "b.go"}
	for i := 0; i < 100; i++ {
		count := 0
		if i < pct {
			count = 1
		}
		fc := a
		if i >= 50 {
			fc = b
		}
		fc.Lines = append(fc.Lines, coverage.LineCoverage{LineNumber: i + 1, ExecutionCount: count})
	}
	r.Add(a)
	r.Add(b)
	return r
}

type failingStore struct {
	history.Store
	err error
}

func (f *failingStore) Save([]history.Snapshot) error { return f.err }

func newWatcher(t *testing.T, dir string, c collector.Collector, cfg Config) *Watcher {
	t.Helper()
	w, err := New(dir, collector.NewRegistry(c), history.NewFileStore(history.DefaultDir(dir)), cfg)
	require.NoError(t, err)
	return w
}

func TestCollectAndAnalyze_TrendSequence(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.CoverageThreshold = 80
	cfg.DropThreshold = 10

	c := &scriptedCollector{name: "fake", detect: true, coverage: []int{50, 65, 60}}
	w := newWatcher(t, dir, c, cfg)
	assert.Equal(t, StateIdle, w.State())
	assert.Equal(t, StateIdle, w.Outcome())

	var transitions []State
	w.onTransition = func(from, to State) {
		assert.Equal(t, w.State(), from)
		transitions = append(transitions, to)
	}

	first, err := w.CollectAndAnalyze(context.Background(), map[string]string{"commit": "a1"})
	require.NoError(t, err)
	assert.Equal(t, TrendStable, first.Trend)
	assert.Empty(t, first.Alerts, "nothing to compare on the first collection")
	assert.Nil(t, first.Previous)
	assert.Equal(t, 1, first.HistoryCount)
	assert.Equal(t, "fake", first.Collector)
	assert.Equal(t, 2, first.Current.FileCount)
	assert.Equal(t, "a1", first.Current.Metadata["commit"])
	assert.Equal(t, StateIdle, w.State(), "back to idle after a cycle")
	assert.Equal(t, StateAnalyzed, w.Outcome())
	assert.Equal(t, []State{StateCollecting, StateAnalyzed, StateIdle}, transitions)

	second, err := w.CollectAndAnalyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, TrendIncreasing, second.Trend)
	require.NotNil(t, second.Previous)
	assert.Equal(t, 50.0, second.Previous.OverallLineCoverage)

	third, err := w.CollectAndAnalyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, TrendDecreasing, third.Trend)
	require.Len(t, third.Alerts, 1)
	assert.Equal(t, SeverityWarning, third.Alerts[0].Severity)
	assert.False(t, third.HasCritical(), "a drop of 5 stays below 10")
	assert.Equal(t, 3, third.HistoryCount)

	t.Run("should be readable by a fresh watcher", func(t *testing.T) {
		fresh := newWatcher(t, dir, c, cfg)
		hist := fresh.History(0)
		require.Len(t, hist, 3)
		assert.Equal(t, []float64{50, 65, 60}, []float64{
			hist[0].OverallLineCoverage, hist[1].OverallLineCoverage, hist[2].OverallLineCoverage,
		})

		rep, err := fresh.Report()
		require.NoError(t, err)
		assert.Equal(t, TrendDecreasing, rep.Trend)
		assert.Equal(t, 60.0, rep.Current.OverallLineCoverage)
		assert.Equal(t, 65.0, rep.Previous.OverallLineCoverage)
		assert.Equal(t, 3, c.calls, "report mode does not collect")
	})
}

func TestCollectAndAnalyze_DropRaisesCritical(t *testing.T) {
	cfg := DefaultConfig()
	c := &scriptedCollector{name: "fake", detect: true, coverage: []int{95, 90}}
	w := newWatcher(t, t.TempDir(), c, cfg)

	_, err := w.CollectAndAnalyze(context.Background(), nil)
	require.NoError(t, err)
	tr, err := w.CollectAndAnalyze(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, tr.Alerts, 1, "90% is above the floor")
	alert := tr.Alerts[0]
	assert.Equal(t, SeverityCritical, alert.Severity)
	assert.Equal(t, 5.0, alert.DropPercentage)
	assert.Equal(t, 95.0, alert.PreviousCoverage)
	assert.Equal(t, 5.0, alert.Threshold)
}

func TestCollectAndAnalyze_HistoryLimit(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.HistoryLimit = 3
	c := &scriptedCollector{name: "fake", detect: true, coverage: []int{10, 20, 30, 40, 50}}
	w := newWatcher(t, dir, c, cfg)

	for i := 0; i < 5; i++ {
		tr, err := w.CollectAndAnalyze(context.Background(), nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, tr.HistoryCount, 3)
	}

	hist := newWatcher(t, dir, c, cfg).History(0)
	require.Len(t, hist, 3)
	assert.Equal(t, 30.0, hist[0].OverallLineCoverage)
	assert.Equal(t, 50.0, hist[2].OverallLineCoverage)

	last := w.History(2)
	require.Len(t, last, 2)
	assert.Equal(t, 40.0, last[0].OverallLineCoverage)
}

func TestCollectAndAnalyze_Failures(t *testing.T) {
	t.Run("should fail when no collector applies", func(t *testing.T) {
		w := newWatcher(t, t.TempDir(), &scriptedCollector{name: "fake"}, DefaultConfig())
		_, err := w.CollectAndAnalyze(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNoCollectorDetected)
		assert.Equal(t, StateFailed, w.Outcome())
		assert.Equal(t, StateIdle, w.State())
	})

	t.Run("should time out without recording a snapshot", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.CollectTimeout = 20 * time.Millisecond
		w := newWatcher(t, t.TempDir(), &scriptedCollector{name: "slow", detect: true, block: true}, cfg)

		_, err := w.CollectAndAnalyze(context.Background(), nil)
		assert.ErrorIs(t, err, ErrCollectionTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Empty(t, w.History(0))
	})

	t.Run("should treat cancellation as a timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w := newWatcher(t, t.TempDir(), &scriptedCollector{name: "slow", detect: true, block: true}, DefaultConfig())

		_, err := w.CollectAndAnalyze(ctx, nil)
		assert.ErrorIs(t, err, ErrCollectionTimeout)
	})

	t.Run("should report collector failures", func(t *testing.T) {
		boom := errors.New("pytest not installed")
		w := newWatcher(t, t.TempDir(), &scriptedCollector{name: "fake", detect: true, err: boom}, DefaultConfig())

		_, err := w.CollectAndAnalyze(context.Background(), nil)
		assert.ErrorIs(t, err, ErrCollectionFailed)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, w.History(0))
	})

	t.Run("should return the report when persisting fails", func(t *testing.T) {
		diskErr := errors.New("read-only file system")
		store := &failingStore{Store: history.NewFileStore(t.TempDir()), err: diskErr}
		c := &scriptedCollector{name: "fake", detect: true, coverage: []int{70}}
		w, err := New(t.TempDir(), collector.NewRegistry(c), store, DefaultConfig())
		require.NoError(t, err)

		tr, err := w.CollectAndAnalyze(context.Background(), nil)
		assert.ErrorIs(t, err, ErrPersistenceFailed)
		assert.ErrorIs(t, err, diskErr)
		require.NotNil(t, tr)
		assert.Equal(t, 70.0, tr.Current.OverallLineCoverage)
		assert.Equal(t, 1, tr.HistoryCount)
	})
}

func TestReport_NoHistory(t *testing.T) {
	w := newWatcher(t, t.TempDir(), &scriptedCollector{name: "fake"}, DefaultConfig())
	_, err := w.Report()
	assert.ErrorIs(t, err, ErrNoHistoryAvailable)
}

func TestNew_SkipsMalformedHistory(t *testing.T) {
	dir := t.TempDir()
	memory := history.DefaultDir(dir)
	require.NoError(t, os.MkdirAll(memory, 0755))
	content := "{broken\n" +
		`{"timestamp":"2026-01-01T00:00:00Z","overall_line_coverage":42,"overall_function_coverage":0,"overall_branch_coverage":0,"file_count":1}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(memory, history.FileName), []byte(content), 0644))

	w := newWatcher(t, dir, &scriptedCollector{name: "fake"}, DefaultConfig())
	rep, err := w.Report()
	require.NoError(t, err)
	assert.Equal(t, 42.0, rep.Current.OverallLineCoverage)
	assert.Equal(t, TrendStable, rep.Trend)
	assert.Empty(t, rep.Alerts)
}

func TestSnapshotTimestamp(t *testing.T) {
	c := &scriptedCollector{name: "fake", detect: true, coverage: []int{90}}
	w := newWatcher(t, t.TempDir(), c, DefaultConfig())
	w.now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
	}

	tr, err := w.CollectAndAnalyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T11:30:00Z", tr.Current.Timestamp)
}

func TestClassifyTrend(t *testing.T) {
	prev := &history.Snapshot{OverallLineCoverage: 60}
	tests := []struct {
		name     string
		current  float64
		previous *history.Snapshot
		expected Trend
	}{
		{"first snapshot", 10, nil, TrendStable},
		{"up", 61, prev, TrendIncreasing},
		{"down", 59, prev, TrendDecreasing},
		{"within epsilon", 60.005, prev, TrendStable},
		{"unchanged", 60, prev, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTrend(history.Snapshot{OverallLineCoverage: tt.current}, tt.previous, 0.01)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCheckAlerts(t *testing.T) {
	cfg := Config{CoverageThreshold: 80, DropThreshold: 5}

	t.Run("should raise both alerts", func(t *testing.T) {
		alerts := CheckAlerts(history.Snapshot{OverallLineCoverage: 60}, &history.Snapshot{OverallLineCoverage: 70}, cfg)
		require.Len(t, alerts, 2)
		assert.Equal(t, SeverityWarning, alerts[0].Severity)
		assert.Equal(t, SeverityCritical, alerts[1].Severity)
		assert.Equal(t, 10.0, alerts[1].DropPercentage)
		assert.Contains(t, alerts[1].Message, "70.00% -> 60.00%")
	})

	t.Run("should not alert above the floor without a drop", func(t *testing.T) {
		alerts := CheckAlerts(history.Snapshot{OverallLineCoverage: 85}, &history.Snapshot{OverallLineCoverage: 84}, cfg)
		assert.Empty(t, alerts)
	})

	t.Run("should fire critical even above the floor", func(t *testing.T) {
		alerts := CheckAlerts(history.Snapshot{OverallLineCoverage: 90}, &history.Snapshot{OverallLineCoverage: 99}, cfg)
		require.Len(t, alerts, 1)
		assert.Equal(t, SeverityCritical, alerts[0].Severity)
		assert.Equal(t, MetricLine, alerts[0].Metric)
	})

	t.Run("should fire critical on a function coverage drop", func(t *testing.T) {
		alerts := CheckAlerts(
			history.Snapshot{OverallLineCoverage: 90, OverallFunctionCoverage: 60},
			&history.Snapshot{OverallLineCoverage: 90, OverallFunctionCoverage: 75},
			cfg,
		)
		require.Len(t, alerts, 1)
		assert.Equal(t, SeverityCritical, alerts[0].Severity)
		assert.Equal(t, MetricFunction, alerts[0].Metric)
		assert.Equal(t, 15.0, alerts[0].DropPercentage)
		assert.Equal(t, "Function coverage dropped by 15.00 percentage points (75.00% -> 60.00%)", alerts[0].Message)
	})

	t.Run("should raise line and function drops together", func(t *testing.T) {
		alerts := CheckAlerts(
			history.Snapshot{OverallLineCoverage: 85, OverallFunctionCoverage: 50},
			&history.Snapshot{OverallLineCoverage: 90, OverallFunctionCoverage: 55},
			cfg,
		)
		require.Len(t, alerts, 2)
		assert.Equal(t, MetricLine, alerts[0].Metric)
		assert.Equal(t, MetricFunction, alerts[1].Metric)
	})

	t.Run("should ignore small or zero function drops", func(t *testing.T) {
		alerts := CheckAlerts(
			history.Snapshot{OverallLineCoverage: 90, OverallFunctionCoverage: 71},
			&history.Snapshot{OverallLineCoverage: 90, OverallFunctionCoverage: 75},
			cfg,
		)
		assert.Empty(t, alerts)

		alerts = CheckAlerts(
			history.Snapshot{OverallLineCoverage: 90, OverallFunctionCoverage: 75},
			&history.Snapshot{OverallLineCoverage: 90, OverallFunctionCoverage: 75},
			Config{CoverageThreshold: 80},
		)
		assert.Empty(t, alerts)
	})
}
