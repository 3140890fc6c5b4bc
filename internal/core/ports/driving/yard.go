package driving

import (
	"context"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// Yard stores entity representations and answers field queries.
//
// Every failure is a *domain.YardError wrapping its cause, so callers can
// match sentinels such as domain.ErrNotFound with errors.Is.
type Yard interface {
	// Create stores a new entity. An empty id is replaced by a generated
	// urn:uuid: id. Fails with domain.ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, rep *domain.Representation) (*domain.Representation, error)

	// Update replaces an existing entity.
	// Fails with domain.ErrNotFound if the entity is absent.
	Update(ctx context.Context, rep *domain.Representation) (*domain.Representation, error)

	// Store creates or replaces an entity.
	Store(ctx context.Context, rep *domain.Representation) (*domain.Representation, error)

	// Get retrieves an entity. Depending on the cache strategy an entity
	// missing locally is fetched from the upstream source.
	Get(ctx context.Context, id string) (*domain.Representation, error)

	// Find returns the entities matching every constraint of the query,
	// ordered by id. Find never writes to the Yard.
	Find(ctx context.Context, q *domain.FieldQuery) ([]*domain.Representation, error)

	// FindIDs is Find returning ids only.
	FindIDs(ctx context.Context, q *domain.FieldQuery) ([]string, error)

	// Remove deletes an entity. Removing an absent entity is a no-op.
	Remove(ctx context.Context, id string) error

	// RemoveAll deletes every entity.
	RemoveAll(ctx context.Context) error

	// Replicate writes an entity pushed by a background feed, subject to
	// the cache strategy. It reports whether the entity was written.
	Replicate(ctx context.Context, rep *domain.Representation) (bool, error)

	// Count returns the number of stored entities.
	Count(ctx context.Context) (int, error)

	// IsEmpty reports whether the Yard stores no entities.
	IsEmpty(ctx context.Context) (bool, error)

	// SetCacheStrategy changes the cache strategy. Fails with
	// *domain.CacheInitialisationError if the Yard is not empty.
	SetCacheStrategy(ctx context.Context, strategy domain.CacheStrategy) error

	// SetCacheingLevel changes the cacheing level. Raising the level fails
	// with *domain.CacheInitialisationError if the Yard is not empty.
	SetCacheingLevel(ctx context.Context, level domain.CacheingLevel) error

	// Config returns a copy of the current configuration.
	Config() domain.YardConfig
}
