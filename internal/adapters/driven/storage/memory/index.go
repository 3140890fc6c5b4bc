package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/apache/stanbol-sub040/internal/compiler"
	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.Index = (*Index)(nil)

// Index is an in-memory implementation of driven.Index.
// Clauses are evaluated with compiler.Match.
type Index struct {
	mu        sync.RWMutex
	documents map[string]*domain.IndexDocument
	settings  map[string]string
}

// NewIndex creates a new in-memory index.
func NewIndex() *Index {
	return &Index{
		documents: make(map[string]*domain.IndexDocument),
		settings:  make(map[string]string),
	}
}

// Store stores or replaces a document.
func (s *Index) Store(_ context.Context, doc *domain.IndexDocument) error {
	if doc == nil || doc.ID == "" {
		return domain.ErrInvalidInput
	}
	stored := doc.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = stored
	return nil
}

// Load retrieves a document by entity id.
func (s *Index) Load(_ context.Context, id string) (*domain.IndexDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc.Clone(), nil
}

// Remove deletes a document.
func (s *Index) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	return nil
}

// RemoveAll deletes every document.
func (s *Index) RemoveAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = make(map[string]*domain.IndexDocument)
	return nil
}

// Query returns the matching documents ordered by id.
func (s *Index) Query(ctx context.Context, q *domain.CompiledQuery) ([]domain.IndexDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.documents))
	for id := range s.documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var results []domain.IndexDocument
	skipped := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc := s.documents[id]
		if !compiler.MatchAll(q, doc) {
			continue
		}
		if skipped < q.Offset() {
			skipped++
			continue
		}
		results = append(results, *doc.Clone())
		if q.Limit() > 0 && len(results) >= q.Limit() {
			break
		}
	}
	return results, nil
}

// Count returns the number of stored documents.
func (s *Index) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), nil
}

// Settings returns a copy of the persisted settings.
func (s *Index) Settings(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

// SaveSettings replaces the persisted settings.
func (s *Index) SaveSettings(_ context.Context, settings map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = make(map[string]string, len(settings))
	for k, v := range settings {
		s.settings[k] = v
	}
	return nil
}

// Close is a no-op.
func (s *Index) Close() error {
	return nil
}
