package memory

import (
	"context"
	"sync"

	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
)

// Ensure IndexingStateStore implements the interface.
var _ driven.IndexingStateStore = (*IndexingStateStore)(nil)

// IndexingStateStore is an in-memory implementation of driven.IndexingStateStore.
type IndexingStateStore struct {
	mu     sync.RWMutex
	states map[string]domain.IndexingState
}

// NewIndexingStateStore creates a new in-memory indexing state store.
func NewIndexingStateStore() *IndexingStateStore {
	return &IndexingStateStore{
		states: make(map[string]domain.IndexingState),
	}
}

// Save stores or updates indexing state.
func (s *IndexingStateStore) Save(_ context.Context, state domain.IndexingState) error {
	if state.SourceID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SourceID] = state
	return nil
}

// Get retrieves indexing state for a source.
func (s *IndexingStateStore) Get(_ context.Context, sourceID string) (*domain.IndexingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[sourceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &state, nil
}

// Delete removes indexing state for a source.
func (s *IndexingStateStore) Delete(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sourceID)
	return nil
}
