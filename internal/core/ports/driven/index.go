package driven

import (
	"context"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// Index stores encoded entities and evaluates compiled queries.
// Backed by an in-memory map, SQLite or a Solr core.
type Index interface {
	// Store writes a document, replacing every field the entity had before.
	// The replacement is atomic: readers see either the old or the new
	// document, never a mix.
	Store(ctx context.Context, doc *domain.IndexDocument) error

	// Load retrieves a document by entity id.
	// Returns domain.ErrNotFound if the entity is absent.
	Load(ctx context.Context, id string) (*domain.IndexDocument, error)

	// Remove deletes a document. Removing an absent entity is a no-op.
	Remove(ctx context.Context, id string) error

	// RemoveAll deletes every document. Settings are kept.
	RemoveAll(ctx context.Context) error

	// Query returns the documents matching every clause, ordered by id,
	// after applying the query's offset and limit. A limit of zero means
	// no limit.
	Query(ctx context.Context, q *domain.CompiledQuery) ([]domain.IndexDocument, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Settings returns the persisted Yard settings. Empty if none were saved.
	Settings(ctx context.Context) (map[string]string, error)

	// SaveSettings replaces the persisted Yard settings.
	SaveSettings(ctx context.Context, settings map[string]string) error

	// Close releases resources.
	Close() error
}
