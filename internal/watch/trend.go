package watch

import (
	"fmt"

	"github.com/zjy-dev/gapwatch/internal/history"
)

// Trend is the direction of line coverage between two consecutive snapshots.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Severity of an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Metric names the coverage ratio an alert is about.
type Metric string

const (
	MetricLine     Metric = "line"
	MetricFunction Metric = "function"
)

// Alert flags coverage below the floor or a sharp drop. Alerts are computed
// per cycle and never stored.
type Alert struct {
	Severity         Severity `json:"severity" yaml:"severity"`
	Metric           Metric   `json:"metric" yaml:"metric"`
	Message          string   `json:"message" yaml:"message"`
	CurrentCoverage  float64  `json:"current_coverage" yaml:"current_coverage"`
	PreviousCoverage float64  `json:"previous_coverage" yaml:"previous_coverage"`
	DropPercentage   float64  `json:"drop_percentage" yaml:"drop_percentage"`
	Threshold        float64  `json:"threshold" yaml:"threshold"`
}

// TrendReport is the outcome of one collection or report cycle.
type TrendReport struct {
	Current      history.Snapshot  `json:"current" yaml:"current"`
	Previous     *history.Snapshot `json:"previous,omitempty" yaml:"previous,omitempty"`
	Trend        Trend             `json:"trend" yaml:"trend"`
	Alerts       []Alert           `json:"alerts" yaml:"alerts"`
	HistoryCount int               `json:"history_count" yaml:"history_count"`
	Collector    string            `json:"collector,omitempty" yaml:"collector,omitempty"`
}

// HasCritical reports whether any alert is critical.
func (r *TrendReport) HasCritical() bool {
	for _, a := range r.Alerts {
		if a.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ClassifyTrend compares line coverage with the previous snapshot. Changes
// of epsilon or less are stable, and so is the first snapshot.
func ClassifyTrend(current history.Snapshot, previous *history.Snapshot, epsilon float64) Trend {
	if previous == nil {
		return TrendStable
	}
	diff := current.OverallLineCoverage - previous.OverallLineCoverage
	switch {
	case diff > epsilon:
		return TrendIncreasing
	case -diff > epsilon:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// CheckAlerts evaluates the floor check on line coverage and the drop checks
// on line and function coverage independently. Without a previous snapshot
// there is nothing to compare and no alert is raised.
func CheckAlerts(current history.Snapshot, previous *history.Snapshot, cfg Config) []Alert {
	alerts := []Alert{}
	if previous == nil {
		return alerts
	}
	cur := current.OverallLineCoverage
	prev := previous.OverallLineCoverage

	if cur < cfg.CoverageThreshold {
		alerts = append(alerts, Alert{
			Severity:         SeverityWarning,
			Metric:           MetricLine,
			Message:          fmt.Sprintf("Line coverage (%.2f%%) is below threshold (%.2f%%)", cur, cfg.CoverageThreshold),
			CurrentCoverage:  cur,
			PreviousCoverage: prev,
			Threshold:        cfg.CoverageThreshold,
		})
	}

	if a, ok := dropAlert(MetricLine, "Line", cur, prev, cfg.DropThreshold); ok {
		alerts = append(alerts, a)
	}
	if a, ok := dropAlert(MetricFunction, "Function", current.OverallFunctionCoverage, previous.OverallFunctionCoverage, cfg.DropThreshold); ok {
		alerts = append(alerts, a)
	}
	return alerts
}

// dropAlert raises a critical alert when cur fell by at least threshold
// points, and by more than zero.
func dropAlert(metric Metric, label string, cur, prev, threshold float64) (Alert, bool) {
	drop := prev - cur
	if drop < threshold || drop <= 0 {
		return Alert{}, false
	}
	return Alert{
		Severity:         SeverityCritical,
		Metric:           metric,
		Message:          fmt.Sprintf("%s coverage dropped by %.2f percentage points (%.2f%% -> %.2f%%)", label, drop, prev, cur),
		CurrentCoverage:  cur,
		PreviousCoverage: prev,
		DropPercentage:   drop,
		Threshold:        threshold,
	}, true
}
