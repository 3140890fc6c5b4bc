package driven

import (
	"context"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// IndexingStateStore persists indexing progress.
type IndexingStateStore interface {
	// Save stores or updates the state of a source.
	Save(ctx context.Context, state domain.IndexingState) error

	// Get retrieves the state of a source.
	// Returns domain.ErrNotFound if the source was never indexed.
	Get(ctx context.Context, sourceID string) (*domain.IndexingState, error)

	// Delete removes the state of a source.
	Delete(ctx context.Context, sourceID string) error
}
