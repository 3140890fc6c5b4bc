package driven

import (
	"context"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// EntitySource is the upstream site a Yard caches.
type EntitySource interface {
	// Name returns the site identifier.
	Name() string

	// Entity fetches an entity.
	// Returns domain.ErrNotFound if the site does not know it.
	Entity(ctx context.Context, id string) (*domain.Representation, error)
}
