package driving

import (
	"context"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// IndexingDriver feeds IndexingSources into the Yard.
type IndexingDriver interface {
	// Index runs one indexing pass for a source: a full pass when the
	// source epoch changed or it was never indexed, otherwise the pending
	// change set.
	Index(ctx context.Context, sourceID string) (*domain.IndexingReport, error)

	// IndexAll runs Index for every registered source.
	IndexAll(ctx context.Context) ([]domain.IndexingReport, error)

	// Status returns indexing status for a source.
	Status(ctx context.Context, sourceID string) (*IndexingStatus, error)
}

// IndexingStatus represents the current state of indexing for a source.
type IndexingStatus struct {
	// SourceID identifies the source.
	SourceID string

	// Running indicates if indexing is currently in progress.
	Running bool

	// Epoch and Revision are the last indexed position. Zero if never indexed.
	Epoch    int64
	Revision int64

	// LastReport is the report of the last completed run, if any.
	LastReport *domain.IndexingReport

	// LastError is the error of the last run, if it failed.
	LastError string
}
