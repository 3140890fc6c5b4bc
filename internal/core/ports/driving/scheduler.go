package driving

import (
	"context"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// Scheduler runs Indexer.IndexAll on the configured interval.
type Scheduler interface {
	// Start runs indexing until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop ends the loop and waits for a running pass to finish.
	Stop() error

	// Task returns the state of the indexing task.
	Task() domain.ScheduledTask

	// History returns the most recent runs, oldest first.
	History() []domain.TaskResult
}
