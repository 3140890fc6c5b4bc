package domain

import "time"

// ScheduledTask represents a recurring background task.
type ScheduledTask struct {
	// ID is the unique identifier for the task.
	ID string

	// Name is a human-readable name for the task.
	Name string

	// Interval defines how often the task should run.
	Interval time.Duration

	// LastRun is when the task last ran.
	LastRun time.Time

	// NextRun is when the task should run next.
	NextRun time.Time

	// LastError contains the last error message, if any.
	LastError string

	// LastSuccess is when the task last completed successfully.
	LastSuccess time.Time

	// Enabled indicates whether the task is active.
	Enabled bool
}

// TaskResult represents the outcome of a task execution.
type TaskResult struct {
	// TaskID identifies which task was run.
	TaskID string

	// StartedAt is when the task started.
	StartedAt time.Time

	// EndedAt is when the task completed.
	EndedAt time.Time

	// Success indicates whether the task completed without error.
	Success bool

	// Error contains the error message if Success is false.
	Error string

	// ItemsProcessed is a count of entities handled.
	ItemsProcessed int
}

// Task IDs for built-in tasks.
const (
	TaskIDIncrementalIndex = "incremental-index"
)

// IndexingReport summarises one indexing run for a source.
type IndexingReport struct {
	// SourceID identifies the source.
	SourceID string

	// Full is true when the run re-indexed the whole source.
	Full bool

	// Epoch and Revision are the source position after the run.
	Epoch    int64
	Revision int64

	// Indexed counts entities written to the Yard.
	Indexed int

	// Excluded counts entities rejected by the score provider.
	Excluded int

	// Removed counts entities deleted from the Yard.
	Removed int

	// Skipped counts entities the cache strategy declined.
	Skipped int
}

// Processed returns the number of entities handled in the run.
func (r IndexingReport) Processed() int {
	return r.Indexed + r.Excluded + r.Removed + r.Skipped
}
