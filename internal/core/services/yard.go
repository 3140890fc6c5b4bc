package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/apache/stanbol-sub040/internal/codec"
	"github.com/apache/stanbol-sub040/internal/compiler"
	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
	"github.com/apache/stanbol-sub040/internal/core/ports/driving"
	"github.com/apache/stanbol-sub040/internal/logger"
)

// Ensure Yard implements the interface.
var _ driving.Yard = (*Yard)(nil)

var yardLog = logger.For("yard")

// Yard operation names used in errors and metrics.
const (
	opCreate    = "create"
	opUpdate    = "update"
	opStore     = "store"
	opGet       = "get"
	opFind      = "find"
	opRemove    = "remove"
	opRemoveAll = "remove_all"
	opReplicate = "replicate"
	opCount     = "count"
)

// uuidPrefix is prepended to generated entity ids.
const uuidPrefix = "urn:uuid:"

// Yard stores entity representations in an Index and answers field
// queries against it, applying the configured cache strategy and level.
//
// The configuration lock is held shared by every operation and exclusively
// by strategy and level transitions, so a transition never interleaves
// with a write. Inside it, writes of one entity id are serialised, so a
// check-then-write such as Update never races a Remove of the same id.
type Yard struct {
	index    driven.Index
	upstream driven.EntitySource
	compiler *compiler.Compiler
	metrics  *Metrics

	fetches singleflight.Group

	// writes is taken after mu, never before.
	writes entityLocks

	mu     sync.RWMutex
	config domain.YardConfig
}

// NewYard creates a Yard over index. The upstream source and metrics are
// optional (can be nil).
//
// The configuration is validated and compared to the settings persisted in
// the index. A Yard whose stored entities were written under different
// settings fails with *domain.CacheInitialisationError.
func NewYard(
	ctx context.Context,
	config domain.YardConfig,
	index driven.Index,
	upstream driven.EntitySource,
	metrics *Metrics,
) (*Yard, error) {
	if index == nil {
		return nil, domain.NewCacheInitialisationError("index not configured", domain.ErrInvalidInput)
	}
	config = config.Clone()
	if err := config.Validate(); err != nil {
		return nil, domain.NewCacheInitialisationError("invalid configuration", err)
	}

	y := &Yard{
		index:    index,
		upstream: upstream,
		compiler: compiler.New(),
		metrics:  metrics,
		config:   config,
	}
	if err := y.checkSettings(ctx); err != nil {
		return nil, err
	}

	yardLog.Info("Opened yard %s (strategy=%s, level=%s)", config.ID, config.Strategy, config.Level)
	return y, nil
}

// checkSettings reconciles the configuration with the persisted settings.
// Settings of an empty index are overwritten; those of a populated index
// must match.
func (y *Yard) checkSettings(ctx context.Context) error {
	persisted, err := y.index.Settings(ctx)
	if err != nil {
		return domain.NewCacheInitialisationError("read persisted settings", err)
	}
	want := y.config.Settings()
	if len(persisted) == 0 {
		return y.saveSettings(ctx)
	}

	if id := persisted[domain.SettingYardID]; id != y.config.ID {
		return domain.NewCacheInitialisationError(
			fmt.Sprintf("index belongs to yard %q, not %q", id, y.config.ID), nil)
	}

	var diff []string
	for key, value := range want {
		if persisted[key] != value {
			diff = append(diff, fmt.Sprintf("%s=%q (stored %q)", key, value, persisted[key]))
		}
	}
	if len(diff) == 0 {
		return nil
	}
	sort.Strings(diff)

	n, err := y.index.Count(ctx)
	if err != nil {
		return domain.NewCacheInitialisationError("count entities", err)
	}
	if n > 0 {
		return domain.NewCacheInitialisationError(
			fmt.Sprintf("configuration differs from %d stored entities: %v", n, diff), nil)
	}
	yardLog.Debug("Empty index, replacing settings: %v", diff)
	return y.saveSettings(ctx)
}

func (y *Yard) saveSettings(ctx context.Context) error {
	if err := y.index.SaveSettings(ctx, y.config.Settings()); err != nil {
		return domain.NewCacheInitialisationError("persist settings", err)
	}
	return nil
}

// Config returns a copy of the current configuration.
func (y *Yard) Config() domain.YardConfig {
	y.mu.RLock()
	defer y.mu.RUnlock()
	return y.config.Clone()
}

// Create stores a new entity.
func (y *Yard) Create(ctx context.Context, rep *domain.Representation) (_ *domain.Representation, err error) {
	defer y.metrics.observe(opCreate, time.Now(), &err)

	if rep == nil {
		return nil, domain.NewYardError(opCreate, "nil representation", domain.ErrInvalidInput)
	}
	if rep.ID == "" {
		rep = rep.Clone()
		rep.ID = uuidPrefix + uuid.NewString()
	}

	y.mu.RLock()
	defer y.mu.RUnlock()
	defer y.writes.lock(rep.ID)()

	exists, err := y.exists(ctx, rep.ID)
	if err != nil {
		return nil, domain.NewYardError(opCreate, "check "+rep.ID, err)
	}
	if exists {
		return nil, domain.NewYardError(opCreate, rep.ID, domain.ErrAlreadyExists)
	}
	stored, err := y.store(ctx, rep)
	if err != nil {
		return nil, domain.NewYardError(opCreate, rep.ID, err)
	}
	return stored, nil
}

// Update replaces an existing entity.
func (y *Yard) Update(ctx context.Context, rep *domain.Representation) (_ *domain.Representation, err error) {
	defer y.metrics.observe(opUpdate, time.Now(), &err)

	if rep == nil {
		return nil, domain.NewYardError(opUpdate, "nil representation", domain.ErrInvalidInput)
	}

	y.mu.RLock()
	defer y.mu.RUnlock()
	defer y.writes.lock(rep.ID)()

	exists, err := y.exists(ctx, rep.ID)
	if err != nil {
		return nil, domain.NewYardError(opUpdate, "check "+rep.ID, err)
	}
	if !exists {
		return nil, domain.NewYardError(opUpdate, rep.ID, domain.ErrNotFound)
	}
	stored, err := y.store(ctx, rep)
	if err != nil {
		return nil, domain.NewYardError(opUpdate, rep.ID, err)
	}
	return stored, nil
}

// Store creates or replaces an entity.
func (y *Yard) Store(ctx context.Context, rep *domain.Representation) (_ *domain.Representation, err error) {
	defer y.metrics.observe(opStore, time.Now(), &err)

	if rep == nil {
		return nil, domain.NewYardError(opStore, "nil representation", domain.ErrInvalidInput)
	}

	y.mu.RLock()
	defer y.mu.RUnlock()
	defer y.writes.lock(rep.ID)()

	stored, err := y.store(ctx, rep)
	if err != nil {
		return nil, domain.NewYardError(opStore, rep.ID, err)
	}
	return stored, nil
}

// store encodes and writes an entity. Callers hold the configuration lock.
// At LevelBase only the base fields are written.
func (y *Yard) store(ctx context.Context, rep *domain.Representation) (*domain.Representation, error) {
	if err := rep.Validate(); err != nil {
		return nil, err
	}
	if y.config.Level == domain.LevelBase {
		rep = rep.Project(y.config.BaseFields)
	} else {
		rep = rep.Clone()
	}

	doc, err := codec.ToDocument(rep)
	if err != nil {
		return nil, err
	}
	if err := y.index.Store(ctx, doc); err != nil {
		return nil, err
	}
	yardLog.Debug("Stored %s: %d fields, %d index fields", rep.ID, rep.Len(), len(doc.Fields))
	return rep, nil
}

func (y *Yard) exists(ctx context.Context, id string) (bool, error) {
	_, err := y.index.Load(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Get retrieves an entity.
//
// An entity missing locally is fetched from the upstream source, if there
// is one. Under CacheUsed and CacheAll the fetched entity is stored; under
// CacheNone it is returned without being stored. Concurrent fetches of one
// id share a single upstream call.
func (y *Yard) Get(ctx context.Context, id string) (_ *domain.Representation, err error) {
	defer y.metrics.observe(opGet, time.Now(), &err)

	if !domain.IsAbsoluteURI(id) {
		return nil, domain.NewYardError(opGet, fmt.Sprintf("id %q", id), domain.ErrInvalidInput)
	}

	y.mu.RLock()
	defer y.mu.RUnlock()

	doc, err := y.index.Load(ctx, id)
	if err == nil {
		return codec.FromDocument(doc, nil), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewYardError(opGet, id, err)
	}
	if y.upstream == nil {
		return nil, domain.NewYardError(opGet, id, domain.ErrNotFound)
	}

	v, err, shared := y.fetches.Do(id, func() (any, error) {
		return y.fetch(ctx, id)
	})
	if err != nil {
		return nil, domain.NewYardError(opGet, "fetch "+id+" from "+y.upstream.Name(), err)
	}
	if shared {
		yardLog.Debug("Shared upstream fetch of %s", id)
	}
	return v.(*domain.Representation).Clone(), nil
}

// fetch loads an entity from upstream and caches it unless the strategy is
// CacheNone. Callers hold the configuration lock.
func (y *Yard) fetch(ctx context.Context, id string) (*domain.Representation, error) {
	rep, err := y.upstream.Entity(ctx, id)
	y.metrics.upstreamFetch(err)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, domain.ErrNotFound
	}
	if rep.ID != id {
		return nil, fmt.Errorf("%w: upstream returned %s for %s", domain.ErrInvalidInput, rep.ID, id)
	}
	if y.config.Strategy == domain.CacheNone {
		return rep, nil
	}
	yardLog.Debug("Caching %s fetched from %s", id, y.upstream.Name())
	defer y.writes.lock(id)()
	return y.store(ctx, rep)
}

// Find returns the entities matching every constraint of q, ordered by id.
// The selected fields plus the constrained fields are returned; an empty
// selection returns every field. Find never stores anything.
func (y *Yard) Find(ctx context.Context, q *domain.FieldQuery) (_ []*domain.Representation, err error) {
	defer y.metrics.observe(opFind, time.Now(), &err)

	compiled, docs, err := y.query(ctx, q)
	if err != nil {
		return nil, err
	}
	reps := make([]*domain.Representation, 0, len(docs))
	for i := range docs {
		reps = append(reps, codec.FromDocument(&docs[i], compiled.Selected()))
	}
	return reps, nil
}

// FindIDs is Find returning ids only.
func (y *Yard) FindIDs(ctx context.Context, q *domain.FieldQuery) (_ []string, err error) {
	defer y.metrics.observe(opFind, time.Now(), &err)

	_, docs, err := y.query(ctx, q)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = docs[i].ID
	}
	return ids, nil
}

func (y *Yard) query(ctx context.Context, q *domain.FieldQuery) (*domain.CompiledQuery, []domain.IndexDocument, error) {
	if q == nil {
		return nil, nil, domain.NewYardError(opFind, "nil query", domain.ErrInvalidInput)
	}
	defer yardLog.Timed(opFind)()

	y.mu.RLock()
	defer y.mu.RUnlock()

	limited := *q
	limited.Limit = y.limit(q.Limit)

	compiled, err := y.compiler.CompileQuery(&limited)
	if err != nil {
		return nil, nil, domain.NewYardError(opFind, "compile query", err)
	}
	yardLog.Debug("Query: %s (limit=%d, offset=%d)", compiled, compiled.Limit(), compiled.Offset())

	docs, err := y.index.Query(ctx, compiled)
	if err != nil {
		return nil, nil, domain.NewYardError(opFind, "execute query", err)
	}
	yardLog.Debug("Found %d entities", len(docs))
	return compiled, docs, nil
}

// limit applies the configured default and maximum to a query limit.
func (y *Yard) limit(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = y.config.DefaultLimit
	}
	if y.config.MaxLimit > 0 && limit > y.config.MaxLimit {
		limit = y.config.MaxLimit
	}
	return limit
}

// Remove deletes an entity. Removing an absent entity is a no-op.
func (y *Yard) Remove(ctx context.Context, id string) (err error) {
	defer y.metrics.observe(opRemove, time.Now(), &err)

	if !domain.IsAbsoluteURI(id) {
		return domain.NewYardError(opRemove, fmt.Sprintf("id %q", id), domain.ErrInvalidInput)
	}

	y.mu.RLock()
	defer y.mu.RUnlock()
	defer y.writes.lock(id)()

	if err := y.index.Remove(ctx, id); err != nil {
		return domain.NewYardError(opRemove, id, err)
	}
	return nil
}

// RemoveAll deletes every entity.
func (y *Yard) RemoveAll(ctx context.Context) (err error) {
	defer y.metrics.observe(opRemoveAll, time.Now(), &err)

	y.mu.RLock()
	defer y.mu.RUnlock()
	defer y.writes.lockAll()()

	if err := y.index.RemoveAll(ctx); err != nil {
		return domain.NewYardError(opRemoveAll, "clear index", err)
	}
	yardLog.Info("Removed all entities from yard %s", y.config.ID)
	return nil
}

// Replicate writes an entity pushed by a background feed.
//
// Under CacheAll every entity is written. Under CacheUsed only entities
// already cached are refreshed. Under CacheNone the write is rejected with
// domain.ErrCacheDisabled.
func (y *Yard) Replicate(ctx context.Context, rep *domain.Representation) (written bool, err error) {
	defer y.metrics.observe(opReplicate, time.Now(), &err)

	if rep == nil {
		return false, domain.NewYardError(opReplicate, "nil representation", domain.ErrInvalidInput)
	}

	y.mu.RLock()
	defer y.mu.RUnlock()
	defer y.writes.lock(rep.ID)()

	switch y.config.Strategy {
	case domain.CacheNone:
		return false, domain.NewYardError(opReplicate, rep.ID, domain.ErrCacheDisabled)
	case domain.CacheUsed:
		exists, err := y.exists(ctx, rep.ID)
		if err != nil {
			return false, domain.NewYardError(opReplicate, "check "+rep.ID, err)
		}
		if !exists {
			yardLog.Debug("Skipping %s: not used yet", rep.ID)
			return false, nil
		}
	}

	if _, err := y.store(ctx, rep); err != nil {
		return false, domain.NewYardError(opReplicate, rep.ID, err)
	}
	return true, nil
}

// Count returns the number of stored entities.
func (y *Yard) Count(ctx context.Context) (_ int, err error) {
	defer y.metrics.observe(opCount, time.Now(), &err)

	n, err := y.index.Count(ctx)
	if err != nil {
		return 0, domain.NewYardError(opCount, "count entities", err)
	}
	y.metrics.count(n)
	return n, nil
}

// IsEmpty reports whether the Yard stores no entities.
func (y *Yard) IsEmpty(ctx context.Context) (bool, error) {
	n, err := y.Count(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// SetCacheStrategy changes the cache strategy of an empty Yard.
func (y *Yard) SetCacheStrategy(ctx context.Context, strategy domain.CacheStrategy) error {
	if !strategy.IsValid() {
		return domain.NewCacheInitialisationError(
			fmt.Sprintf("cache strategy %q", strategy), domain.ErrInvalidInput)
	}

	y.mu.Lock()
	defer y.mu.Unlock()

	if y.config.Strategy == strategy {
		return nil
	}
	if err := y.requireEmpty(ctx, fmt.Sprintf("change strategy %s to %s", y.config.Strategy, strategy)); err != nil {
		return err
	}

	previous := y.config.Strategy
	y.config.Strategy = strategy
	if err := y.saveSettings(ctx); err != nil {
		y.config.Strategy = previous
		return err
	}
	yardLog.Info("Cache strategy changed from %s to %s", previous, strategy)
	return nil
}

// SetCacheingLevel changes the cacheing level. Lowering the level is always
// allowed; raising it requires an empty Yard, because entities stored at
// the lower level lack fields.
func (y *Yard) SetCacheingLevel(ctx context.Context, level domain.CacheingLevel) error {
	if !level.IsValid() {
		return domain.NewCacheInitialisationError(
			fmt.Sprintf("cacheing level %q", level), domain.ErrInvalidInput)
	}

	y.mu.Lock()
	defer y.mu.Unlock()

	if y.config.Level == level {
		return nil
	}
	if level == domain.LevelBase && len(y.config.BaseFields) == 0 {
		return domain.NewCacheInitialisationError("base level requires base fields", domain.ErrInvalidInput)
	}
	if level.Rank() > y.config.Level.Rank() {
		if err := y.requireEmpty(ctx, fmt.Sprintf("raise level %s to %s", y.config.Level, level)); err != nil {
			return err
		}
	}

	previous := y.config.Level
	y.config.Level = level
	if err := y.saveSettings(ctx); err != nil {
		y.config.Level = previous
		return err
	}
	yardLog.Info("Cacheing level changed from %s to %s", previous, level)
	return nil
}

// requireEmpty fails unless the index stores no entities.
// Callers hold the configuration lock exclusively.
func (y *Yard) requireEmpty(ctx context.Context, change string) error {
	n, err := y.index.Count(ctx)
	if err != nil {
		return domain.NewCacheInitialisationError(change, err)
	}
	if n > 0 {
		return domain.NewCacheInitialisationError(
			fmt.Sprintf("%s: yard holds %d entities", change, n), nil)
	}
	return nil
}
