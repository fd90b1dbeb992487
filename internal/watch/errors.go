package watch

import "errors"

var (
	// ErrNoCollectorDetected is returned when no registered collector applies
	// to the project.
	ErrNoCollectorDetected = errors.New("no coverage collector detected for this project")

	// ErrCollectionTimeout is returned when the collector was cancelled or ran
	// past its deadline.
	ErrCollectionTimeout = errors.New("coverage collection timed out")

	// ErrCollectionFailed is returned when the collector failed for any other
	// reason.
	ErrCollectionFailed = errors.New("coverage collection failed")

	// ErrNoHistoryAvailable is returned by Report before any collection has
	// been recorded.
	ErrNoHistoryAvailable = errors.New("no coverage history available")

	// ErrPersistenceFailed is returned together with a complete TrendReport
	// when the history could not be written.
	ErrPersistenceFailed = errors.New("failed to persist coverage history")
)
