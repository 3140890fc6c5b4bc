package score

import (
	"context"
	"sync"

	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
	"github.com/apache/stanbol-sub040/internal/logger"
)

// Ensure FieldScorer implements the interface.
var _ driven.EntityScoreProvider = (*FieldScorer)(nil)

// excludedScore is returned for entities on the exclusion list.
const excludedScore = -1.0

// FieldScorer scores entities by the first numeric value of a field and
// excludes a fixed set of ids.
//
// Without a field it has no opinion on any entity outside the exclusion
// list and scores by id alone.
type FieldScorer struct {
	field string

	mu       sync.RWMutex
	excluded map[string]struct{}
}

// NewFieldScorer creates a scorer reading field. Field may be empty.
func NewFieldScorer(field string, excluded ...string) *FieldScorer {
	s := &FieldScorer{
		field:    field,
		excluded: make(map[string]struct{}, len(excluded)),
	}
	for _, id := range excluded {
		s.excluded[id] = struct{}{}
	}
	return s
}

// Field returns the scored field, or "" when scoring by id.
func (s *FieldScorer) Field() string {
	return s.field
}

// Exclude adds ids to the exclusion list.
func (s *FieldScorer) Exclude(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.excluded[id] = struct{}{}
	}
}

// Include removes ids from the exclusion list.
func (s *FieldScorer) Include(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.excluded, id)
	}
}

// IsExcluded checks if an id is on the exclusion list.
func (s *FieldScorer) IsExcluded(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.excluded[id]
	return ok
}

// NeedsData reports whether a score field is configured.
func (s *FieldScorer) NeedsData() bool {
	return s.field != ""
}

// Process scores by id: excluded ids score negative, others have no score.
func (s *FieldScorer) Process(ctx context.Context, id string) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.IsExcluded(id) {
		return ptr(excludedScore), nil
	}
	return nil, nil
}

// ProcessRepresentation scores from the first numeric value of the field.
// Entities without one have no score. Non-numeric values are logged and
// ignored.
func (s *FieldScorer) ProcessRepresentation(ctx context.Context, rep *domain.Representation) (*float64, error) {
	if rep == nil {
		return nil, domain.ErrInvalidInput
	}
	score, err := s.Process(ctx, rep.ID)
	if err != nil || score != nil || s.field == "" {
		return score, err
	}

	for _, v := range rep.Get(s.field) {
		switch n := v.(type) {
		case domain.Integer:
			return ptr(float64(n)), nil
		case domain.Double:
			return ptr(float64(n)), nil
		default:
			logger.Debug("score: %s of %s is %s, not a number", s.field, rep.ID, v.DataType())
		}
	}
	return nil, nil
}

func ptr(f float64) *float64 {
	return &f
}
