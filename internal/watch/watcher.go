// Package watch records coverage snapshots over time, classifies the trend
// between consecutive snapshots and raises alerts on low or falling coverage.
package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zjy-dev/gapwatch/internal/collector"
	"github.com/zjy-dev/gapwatch/internal/coverage"
	"github.com/zjy-dev/gapwatch/internal/history"
	"github.com/zjy-dev/gapwatch/internal/logger"
)

// State is the watcher's position in a collection cycle:
// idle -> collecting -> analyzed | failed -> idle.
type State string

const (
	StateIdle       State = "idle"
	StateCollecting State = "collecting"
	StateAnalyzed   State = "analyzed"
	StateFailed     State = "failed"
)

// Watcher runs collection cycles for one project. It is not safe for
// concurrent cycles; callers serialize them.
type Watcher struct {
	root     string
	registry *collector.Registry
	log      *history.Log
	cfg      Config
	state    State
	outcome  State
	now      func() time.Time

	// onTransition, when set, observes every state change.
	onTransition func(from, to State)
}

// New creates a watcher and loads the project's history from store.
func New(root string, registry *collector.Registry, store history.Store, cfg Config) (*Watcher, error) {
	if registry == nil {
		registry = collector.NewRegistry()
	}
	log, err := history.NewLog(store, cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     root,
		registry: registry,
		log:      log,
		cfg:      cfg,
		state:    StateIdle,
		outcome:  StateIdle,
		now:      time.Now,
	}, nil
}

// State returns the current position in the cycle; between cycles it is
// StateIdle.
func (w *Watcher) State() State {
	return w.state
}

// Outcome returns how the last cycle ended, StateAnalyzed or StateFailed,
// or StateIdle before any cycle.
func (w *Watcher) Outcome() State {
	return w.outcome
}

func (w *Watcher) setState(s State) {
	if s == w.state {
		return
	}
	logger.Debug("Watcher state %s -> %s", w.state, s)
	if w.onTransition != nil {
		w.onTransition(w.state, s)
	}
	w.state = s
}

// finish ends a cycle in outcome and returns to idle.
func (w *Watcher) finish(outcome State) {
	w.setState(outcome)
	w.outcome = outcome
	w.setState(StateIdle)
}

// CollectAndAnalyze runs the first applicable collector, records a snapshot
// and compares it with the previous one.
//
// When only persisting the history fails, the complete report is returned
// together with an error wrapping ErrPersistenceFailed. Any other error means
// no snapshot was recorded.
func (w *Watcher) CollectAndAnalyze(ctx context.Context, metadata map[string]string) (*TrendReport, error) {
	w.setState(StateCollecting)

	c, ok := w.registry.Detect(w.root)
	if !ok {
		w.finish(StateFailed)
		return nil, fmt.Errorf("%w (tried: %v)", ErrNoCollectorDetected, w.registry.Names())
	}
	logger.Info("Running coverage with collector: %s", c.Name())

	report, err := w.collect(ctx, c)
	if err != nil {
		w.finish(StateFailed)
		return nil, err
	}

	snapshot := history.Snapshot{
		Timestamp:               w.now().UTC().Format(time.RFC3339),
		OverallLineCoverage:     clampPct(report.OverallLineCoverage()),
		OverallFunctionCoverage: clampPct(report.OverallFunctionCoverage()),
		OverallBranchCoverage:   clampPct(report.OverallBranchCoverage()),
		FileCount:               len(report.Files),
		Metadata:                copyMetadata(metadata),
	}

	var previous *history.Snapshot
	if prior := w.log.Last(1); len(prior) == 1 {
		previous = &prior[0]
	}

	tr := &TrendReport{
		Current:   snapshot,
		Previous:  previous,
		Trend:     ClassifyTrend(snapshot, previous, w.cfg.Epsilon),
		Alerts:    CheckAlerts(snapshot, previous, w.cfg),
		Collector: c.Name(),
	}

	appendErr := w.log.Append(snapshot)
	tr.HistoryCount = w.log.Len()
	w.finish(StateAnalyzed)

	logger.Sugar().Infow("Coverage collected",
		"collector", c.Name(),
		"line", snapshot.OverallLineCoverage,
		"function", snapshot.OverallFunctionCoverage,
		"branch", snapshot.OverallBranchCoverage,
		"trend", tr.Trend,
	)
	for _, a := range tr.Alerts {
		logger.Warn("[%s] %s", a.Severity, a.Message)
	}

	if appendErr != nil {
		logger.Error("Failed to persist coverage history: %v", appendErr)
		return tr, fmt.Errorf("%w: %w", ErrPersistenceFailed, appendErr)
	}
	return tr, nil
}

func (w *Watcher) collect(ctx context.Context, c collector.Collector) (*coverage.Report, error) {
	if w.cfg.CollectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.CollectTimeout)
		defer cancel()
	}

	report, err := c.RunCoverage(ctx, w.root, nil)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s: %w", ErrCollectionTimeout, c.Name(), err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrCollectionFailed, c.Name(), err)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCollectionTimeout, c.Name(), ctx.Err())
	}
	if report == nil {
		return nil, fmt.Errorf("%w: %s returned no report", ErrCollectionFailed, c.Name())
	}
	return report, nil
}

// Report compares the two most recent stored snapshots without collecting.
func (w *Watcher) Report() (*TrendReport, error) {
	entries := w.log.Last(2)
	if len(entries) == 0 {
		return nil, ErrNoHistoryAvailable
	}

	current := entries[len(entries)-1]
	var previous *history.Snapshot
	if len(entries) == 2 {
		previous = &entries[0]
	}
	return &TrendReport{
		Current:      current,
		Previous:     previous,
		Trend:        ClassifyTrend(current, previous, w.cfg.Epsilon),
		Alerts:       CheckAlerts(current, previous, w.cfg),
		HistoryCount: w.log.Len(),
	}, nil
}

// History returns the limit most recent snapshots, oldest first; all of them
// when limit is 0.
func (w *Watcher) History(limit int) []history.Snapshot {
	return w.log.Last(limit)
}

func clampPct(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
