package driven

import (
	"context"
	"fmt"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// IndexingSource feeds entities into a Yard.
// Each source (a file tree, a CMS export, a crawler) implements this interface.
type IndexingSource interface {
	// Name returns the source identifier. It keys the persisted IndexingState.
	Name() string

	// Epoch returns the generation of the dataset. It only changes when the
	// dataset is replaced wholesale, which forces a full re-index.
	Epoch(ctx context.Context) (int64, error)

	// ChangeSet returns the entities changed since fromRevision. The
	// returned set ends at the current revision.
	ChangeSet(ctx context.Context, fromRevision int64) (*ChangeSet, error)

	// Entities iterates over every entity of the source.
	// The caller must close the iterator.
	Entities(ctx context.Context) (EntityDataIterator, error)

	// Entity returns the current data of one entity.
	// Returns domain.ErrNotFound if the entity was deleted.
	Entity(ctx context.Context, id string) (*domain.Representation, error)
}

// EntityDataIterator walks the entities of a source.
// It is forward only and owned by a single consumer.
type EntityDataIterator interface {
	// Next advances to the next entity. It returns false when the iteration
	// is exhausted or failed; Err tells the two apart.
	Next(ctx context.Context) bool

	// Representation returns the current entity.
	Representation() *domain.Representation

	// Err returns the error that stopped the iteration, if any.
	Err() error

	// Close releases resources. Next returns false after Close.
	Close() error
}

// EntityScoreProvider decides which entities are worth indexing.
//
// A nil score means no opinion and the entity is indexed. A negative score
// excludes the entity; zero and positive scores include it.
type EntityScoreProvider interface {
	// NeedsData reports whether scoring requires the entity's data. When
	// false the indexer scores by id and skips fetching excluded entities.
	NeedsData() bool

	// Process scores an entity by id.
	Process(ctx context.Context, id string) (*float64, error)

	// ProcessRepresentation scores an entity from its data.
	ProcessRepresentation(ctx context.Context, rep *domain.Representation) (*float64, error)
}

// Excluded reports whether a score keeps an entity out of the index.
func Excluded(score *float64) bool {
	return score != nil && *score < 0
}

// ChangeSet is a bounded range of changed entity ids between two revisions
// of an IndexingSource. It is immutable.
type ChangeSet struct {
	source  IndexingSource
	epoch   int64
	from    int64
	to      int64
	changed []string
}

// NewChangeSet creates a change set covering (from, to].
// It fails if from > to, or if no ids changed while the revision moved.
func NewChangeSet(source IndexingSource, epoch, from, to int64, changed []string) (*ChangeSet, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: change set without source", domain.ErrInvalidInput)
	}
	if from > to {
		return nil, fmt.Errorf("%w: revision %d after %d", domain.ErrInvalidInput, from, to)
	}
	if len(changed) == 0 && from != to {
		return nil, fmt.Errorf("%w: revisions %d to %d without changes", domain.ErrInvalidInput, from, to)
	}
	return &ChangeSet{
		source:  source,
		epoch:   epoch,
		from:    from,
		to:      to,
		changed: append([]string(nil), changed...),
	}, nil
}

// Source returns the source that produced the set.
func (c *ChangeSet) Source() IndexingSource { return c.source }

// Epoch returns the dataset generation the revisions belong to.
func (c *ChangeSet) Epoch() int64 { return c.epoch }

// From returns the first revision, exclusive.
func (c *ChangeSet) From() int64 { return c.from }

// To returns the last revision, inclusive.
func (c *ChangeSet) To() int64 { return c.to }

// Changed returns the ids of changed entities.
func (c *ChangeSet) Changed() []string { return append([]string(nil), c.changed...) }

// Empty reports whether the set holds no changes.
func (c *ChangeSet) Empty() bool { return len(c.changed) == 0 }
