package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/stanbol-sub040/internal/adapters/driven/storage/memory"
	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
)

const (
	fieldLabel = "http://ex.org/label"
	fieldPop   = "http://ex.org/population"
	fieldSeeAl = "http://ex.org/seeAlso"
)

// --- Mock implementations for yard testing ---

// mockUpstream implements driven.EntitySource for testing.
type mockUpstream struct {
	mu       sync.Mutex
	entities map[string]*domain.Representation
	calls    atomic.Int32
	release  chan struct{}
	err      error
}

func newMockUpstream(reps ...*domain.Representation) *mockUpstream {
	m := &mockUpstream{entities: make(map[string]*domain.Representation)}
	for _, r := range reps {
		m.entities[r.ID] = r
	}
	return m
}

func (m *mockUpstream) Name() string { return "mock-site" }

func (m *mockUpstream) Entity(ctx context.Context, id string) (*domain.Representation, error) {
	m.calls.Add(1)
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rep, ok := m.entities[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rep.Clone(), nil
}

// faultyIndex wraps the memory index with injectable failures.
type faultyIndex struct {
	*memory.Index
	storeErr error
	countErr error
}

func (f *faultyIndex) Store(ctx context.Context, doc *domain.IndexDocument) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	return f.Index.Store(ctx, doc)
}

func (f *faultyIndex) Count(ctx context.Context) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.Index.Count(ctx)
}

var _ driven.EntitySource = (*mockUpstream)(nil)
var _ driven.Index = (*faultyIndex)(nil)

func testYardConfig(strategy domain.CacheStrategy) domain.YardConfig {
	cfg := domain.DefaultYardConfig()
	cfg.ID = "test-yard"
	cfg.Strategy = strategy
	cfg.BaseFields = []string{fieldLabel}
	return cfg
}

func newTestYard(t *testing.T, cfg domain.YardConfig, upstream driven.EntitySource) (*Yard, *memory.Index) {
	t.Helper()
	idx := memory.NewIndex()
	yard, err := NewYard(context.Background(), cfg, idx, upstream, nil)
	require.NoError(t, err)
	return yard, idx
}

func entity(id, label string, population int64) *domain.Representation {
	rep := domain.NewRepresentation(id)
	rep.Add(fieldLabel, domain.NewText(label, "en"))
	rep.Add(fieldPop, domain.Integer(population))
	rep.Add(fieldSeeAl, domain.NewReference("http://dbpedia.org/resource/"+label))
	return rep
}

// ==================== Construction ====================

func TestNewYard_PersistsSettings(t *testing.T) {
	idx := memory.NewIndex()
	cfg := testYardConfig(domain.CacheAll)

	_, err := NewYard(context.Background(), cfg, idx, nil, nil)
	require.NoError(t, err)

	settings, err := idx.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.Settings(), settings)
}

func TestNewYard_InvalidConfig(t *testing.T) {
	cfg := testYardConfig(domain.CacheStrategy("sometimes"))

	_, err := NewYard(context.Background(), cfg, memory.NewIndex(), nil, nil)
	require.Error(t, err)
	assert.True(t, domain.IsCacheInitialisation(err))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewYard(context.Background(), testYardConfig(domain.CacheAll), nil, nil, nil)
	assert.True(t, domain.IsCacheInitialisation(err))
}

func TestNewYard_SettingsMismatch(t *testing.T) {
	ctx := context.Background()
	yard, idx := newTestYard(t, testYardConfig(domain.CacheAll), nil)
	_, err := yard.Store(ctx, entity("urn:e:1", "One", 1))
	require.NoError(t, err)

	_, err = NewYard(ctx, testYardConfig(domain.CacheUsed), idx, nil, nil)
	require.Error(t, err)
	assert.True(t, domain.IsCacheInitialisation(err))

	other := testYardConfig(domain.CacheAll)
	other.ID = "other-yard"
	_, err = NewYard(ctx, other, idx, nil, nil)
	require.Error(t, err)
	assert.True(t, domain.IsCacheInitialisation(err))
	assert.Contains(t, err.Error(), "other-yard")
}

func TestNewYard_SettingsReplacedWhenEmpty(t *testing.T) {
	ctx := context.Background()
	_, idx := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	yard, err := NewYard(ctx, testYardConfig(domain.CacheNone), idx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.CacheNone, yard.Config().Strategy)

	settings, err := idx.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "none", settings[domain.SettingStrategy])
}

// ==================== CRUD ====================

func TestYard_StoreGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	when := time.Date(2024, 5, 6, 7, 8, 9, 123000000, time.UTC)
	rep := entity("urn:e:1", "Paris, France", 2100000)
	rep.Add(fieldLabel, domain.NewText("Paris", "fr"), domain.NewText("Paris", ""))
	rep.Add("http://ex.org/area", domain.Double(105.4))
	rep.Add("http://ex.org/capital", domain.Boolean(true))
	rep.Add("http://ex.org/founded", domain.NewDateTime(when))

	_, err := yard.Store(ctx, rep)
	require.NoError(t, err)

	got, err := yard.Get(ctx, "urn:e:1")
	require.NoError(t, err)
	assert.Equal(t, rep.Fields(), got.Fields())
	assert.ElementsMatch(t, rep.Get(fieldLabel), got.Get(fieldLabel))
	assert.Equal(t, []domain.Value{domain.Integer(2100000)}, got.Get(fieldPop))
	assert.Equal(t, []domain.Value{domain.Double(105.4)}, got.Get("http://ex.org/area"))
	assert.Equal(t, []domain.Value{domain.Boolean(true)}, got.Get("http://ex.org/capital"))
	assert.True(t, domain.ValuesEqual(domain.NewDateTime(when), got.First("http://ex.org/founded")))
}

func TestYard_Store_Invalid(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	_, err := yard.Store(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = yard.Store(ctx, domain.NewRepresentation("relative/id"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	rep := domain.NewRepresentation("urn:e:1")
	rep.Add(fieldLabel, domain.NewText("x", domain.AnyLanguage))
	_, err = yard.Store(ctx, rep)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	var yerr *domain.YardError
	require.True(t, errors.As(err, &yerr))
	assert.Equal(t, "store", yerr.Op)
}

func TestYard_Store_BackendFailure(t *testing.T) {
	ctx := context.Background()
	idx := &faultyIndex{Index: memory.NewIndex(), storeErr: domain.ErrBackendUnavailable}
	yard, err := NewYard(ctx, testYardConfig(domain.CacheAll), idx, nil, nil)
	require.NoError(t, err)

	_, err = yard.Store(ctx, entity("urn:e:1", "One", 1))
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestYard_Create(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	created, err := yard.Create(ctx, entity("", "Anonymous", 1))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.ID, "urn:uuid:"), created.ID)

	_, err = yard.Create(ctx, entity(created.ID, "Again", 2))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := yard.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Value{domain.Integer(1)}, got.Get(fieldPop))
}

func TestYard_Update(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	_, err := yard.Update(ctx, entity("urn:e:1", "One", 1))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = yard.Store(ctx, entity("urn:e:1", "One", 1))
	require.NoError(t, err)

	replacement := domain.NewRepresentation("urn:e:1")
	replacement.Add(fieldPop, domain.Integer(2))
	_, err = yard.Update(ctx, replacement)
	require.NoError(t, err)

	got, err := yard.Get(ctx, "urn:e:1")
	require.NoError(t, err)
	assert.Equal(t, []string{fieldPop}, got.Fields())
	assert.Equal(t, domain.Integer(2), got.First(fieldPop))
}

func TestYard_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	_, err := yard.Get(ctx, "urn:e:missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = yard.Get(ctx, "no scheme")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestYard_Remove(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	_, err := yard.Store(ctx, entity("urn:e:1", "One", 1))
	require.NoError(t, err)

	require.NoError(t, yard.Remove(ctx, "urn:e:1"))
	require.NoError(t, yard.Remove(ctx, "urn:e:1"))

	empty, err := yard.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestYard_RemoveAll(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	for _, id := range []string{"urn:e:1", "urn:e:2", "urn:e:3"} {
		_, err := yard.Store(ctx, entity(id, "E", 1))
		require.NoError(t, err)
	}
	n, err := yard.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, yard.RemoveAll(ctx))
	n, err = yard.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// ==================== Find ====================

func seedYard(t *testing.T, yard *Yard) {
	t.Helper()
	ctx := context.Background()
	for _, rep := range []*domain.Representation{
		entity("urn:city:paris", "Paris", 2100000),
		entity("urn:city:berlin", "Berlin", 3600000),
		entity("urn:city:lyon", "Lyon", 520000),
	} {
		_, err := yard.Store(ctx, rep)
		require.NoError(t, err)
	}
}

func TestYard_Find(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)
	seedYard(t, yard)

	q := domain.NewFieldQuery().Constrain(fieldPop, domain.NewRangeConstraint(domain.Integer(1000000), nil))
	reps, err := yard.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, reps, 2)
	assert.Equal(t, "urn:city:berlin", reps[0].ID)
	assert.Equal(t, "urn:city:paris", reps[1].ID)
	assert.Equal(t, []string{fieldLabel, fieldPop, fieldSeeAl}, reps[0].Fields())
}

func TestYard_Find_Selection(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)
	seedYard(t, yard)

	q := domain.NewFieldQuery().
		Constrain(fieldLabel, domain.NewTextConstraint("par*", true)).
		Select(fieldSeeAl)
	reps, err := yard.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, reps, 1)

	// The constrained field is returned along with the selection.
	assert.Equal(t, []string{fieldLabel, fieldSeeAl}, reps[0].Fields())
}

func TestYard_FindIDs(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)
	seedYard(t, yard)

	ids, err := yard.FindIDs(ctx, domain.NewFieldQuery())
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:city:berlin", "urn:city:lyon", "urn:city:paris"}, ids)
}

func TestYard_Find_Limits(t *testing.T) {
	ctx := context.Background()
	cfg := testYardConfig(domain.CacheAll)
	cfg.DefaultLimit = 2
	cfg.MaxLimit = 2
	yard, _ := newTestYard(t, cfg, nil)
	seedYard(t, yard)

	ids, err := yard.FindIDs(ctx, domain.NewFieldQuery())
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	q := domain.NewFieldQuery()
	q.Limit = 100
	ids, err = yard.FindIDs(ctx, q)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	q.Offset = 2
	ids, err = yard.FindIDs(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:city:paris"}, ids)
}

func TestYard_Find_Unsupported(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	q := domain.NewFieldQuery().Constrain(fieldSeeAl, domain.NewRangeConstraint(domain.NewReference("urn:a"), nil))
	_, err := yard.Find(ctx, q)
	require.Error(t, err)
	assert.True(t, domain.IsUnsupportedConstraint(err))

	var yerr *domain.YardError
	require.True(t, errors.As(err, &yerr))
	assert.Equal(t, "find", yerr.Op)

	_, err = yard.Find(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// ==================== Cache strategy ====================

func TestYard_CacheUsed_GetCaches(t *testing.T) {
	ctx := context.Background()
	upstream := newMockUpstream(entity("urn:e:1", "One", 1))
	yard, _ := newTestYard(t, testYardConfig(domain.CacheUsed), upstream)

	got, err := yard.Get(ctx, "urn:e:1")
	require.NoError(t, err)
	assert.Equal(t, "urn:e:1", got.ID)

	n, err := yard.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Served locally the second time.
	_, err = yard.Get(ctx, "urn:e:1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), upstream.calls.Load())
}

func TestYard_CacheUsed_FindHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	upstream := newMockUpstream(entity("urn:e:1", "One", 1))
	yard, _ := newTestYard(t, testYardConfig(domain.CacheUsed), upstream)

	q := domain.NewFieldQuery().Constrain(fieldLabel, domain.NewValueConstraint(domain.NewText("One", "en")))
	reps, err := yard.Find(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, reps)

	empty, err := yard.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
	assert.Zero(t, upstream.calls.Load())
}

func TestYard_CacheUsed_ReplicateRefreshesOnlyCached(t *testing.T) {
	ctx := context.Background()
	upstream := newMockUpstream(entity("urn:e:1", "One", 1))
	yard, _ := newTestYard(t, testYardConfig(domain.CacheUsed), upstream)

	written, err := yard.Replicate(ctx, entity("urn:e:2", "Two", 2))
	require.NoError(t, err)
	assert.False(t, written)

	_, err = yard.Get(ctx, "urn:e:1")
	require.NoError(t, err)

	written, err = yard.Replicate(ctx, entity("urn:e:1", "One", 11))
	require.NoError(t, err)
	assert.True(t, written)

	got, err := yard.Get(ctx, "urn:e:1")
	require.NoError(t, err)
	assert.Equal(t, domain.Integer(11), got.First(fieldPop))

	n, err := yard.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestYard_CacheNone(t *testing.T) {
	ctx := context.Background()
	upstream := newMockUpstream(entity("urn:e:1", "One", 1))
	yard, _ := newTestYard(t, testYardConfig(domain.CacheNone), upstream)

	written, err := yard.Replicate(ctx, entity("urn:e:2", "Two", 2))
	assert.ErrorIs(t, err, domain.ErrCacheDisabled)
	assert.False(t, written)

	got, err := yard.Get(ctx, "urn:e:1")
	require.NoError(t, err)
	assert.Equal(t, "urn:e:1", got.ID)

	empty, err := yard.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestYard_CacheAll_Replicate(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	written, err := yard.Replicate(ctx, entity("urn:e:1", "One", 1))
	require.NoError(t, err)
	assert.True(t, written)

	_, err = yard.Get(ctx, "urn:e:1")
	assert.NoError(t, err)
}

func TestYard_Get_UpstreamErrors(t *testing.T) {
	ctx := context.Background()
	upstream := newMockUpstream()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheUsed), upstream)

	_, err := yard.Get(ctx, "urn:e:unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	upstream.err = domain.ErrBackendUnavailable
	_, err = yard.Get(ctx, "urn:e:unknown")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "mock-site")
}

func TestYard_Get_SharesUpstreamFetch(t *testing.T) {
	ctx := context.Background()
	upstream := newMockUpstream(entity("urn:e:1", "One", 1))
	upstream.release = make(chan struct{})
	yard, _ := newTestYard(t, testYardConfig(domain.CacheUsed), upstream)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := yard.Get(ctx, "urn:e:1")
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return upstream.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(upstream.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), upstream.calls.Load())
}

// ==================== Configuration transitions ====================

func TestYard_SetCacheStrategy(t *testing.T) {
	ctx := context.Background()
	yard, idx := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	require.NoError(t, yard.SetCacheStrategy(ctx, domain.CacheUsed))
	assert.Equal(t, domain.CacheUsed, yard.Config().Strategy)

	settings, err := idx.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "used", settings[domain.SettingStrategy])

	_, err = yard.Store(ctx, entity("urn:e:1", "One", 1))
	require.NoError(t, err)

	err = yard.SetCacheStrategy(ctx, domain.CacheNone)
	require.Error(t, err)
	assert.True(t, domain.IsCacheInitialisation(err))
	assert.Equal(t, domain.CacheUsed, yard.Config().Strategy)

	// Setting the current strategy is always allowed.
	assert.NoError(t, yard.SetCacheStrategy(ctx, domain.CacheUsed))

	err = yard.SetCacheStrategy(ctx, domain.CacheStrategy("bogus"))
	assert.True(t, domain.IsCacheInitialisation(err))
}

func TestYard_SetCacheingLevel(t *testing.T) {
	ctx := context.Background()
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	_, err := yard.Store(ctx, entity("urn:e:1", "One", 1))
	require.NoError(t, err)

	// Lowering is allowed on a populated yard.
	require.NoError(t, yard.SetCacheingLevel(ctx, domain.LevelBase))
	assert.Equal(t, domain.LevelBase, yard.Config().Level)

	// Raising is not.
	err = yard.SetCacheingLevel(ctx, domain.LevelSpecial)
	require.Error(t, err)
	assert.True(t, domain.IsCacheInitialisation(err))
	assert.Equal(t, domain.LevelBase, yard.Config().Level)

	require.NoError(t, yard.RemoveAll(ctx))
	assert.NoError(t, yard.SetCacheingLevel(ctx, domain.LevelSpecial))
}

func TestYard_SetCacheingLevel_BaseRequiresFields(t *testing.T) {
	ctx := context.Background()
	cfg := testYardConfig(domain.CacheAll)
	cfg.BaseFields = nil
	yard, _ := newTestYard(t, cfg, nil)

	err := yard.SetCacheingLevel(ctx, domain.LevelBase)
	require.Error(t, err)
	assert.True(t, domain.IsCacheInitialisation(err))
}

func TestYard_SetCacheStrategy_CountFailure(t *testing.T) {
	ctx := context.Background()
	idx := &faultyIndex{Index: memory.NewIndex()}
	yard, err := NewYard(ctx, testYardConfig(domain.CacheAll), idx, nil, nil)
	require.NoError(t, err)

	idx.countErr = domain.ErrBackendUnavailable
	err = yard.SetCacheStrategy(ctx, domain.CacheUsed)
	assert.True(t, domain.IsCacheInitialisation(err))
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.Equal(t, domain.CacheAll, yard.Config().Strategy)
}

func TestYard_BaseLevelStoresBaseFields(t *testing.T) {
	ctx := context.Background()
	cfg := testYardConfig(domain.CacheAll)
	cfg.Level = domain.LevelBase
	yard, _ := newTestYard(t, cfg, nil)

	stored, err := yard.Store(ctx, entity("urn:e:1", "One", 1))
	require.NoError(t, err)
	assert.Equal(t, []string{fieldLabel}, stored.Fields())

	got, err := yard.Get(ctx, "urn:e:1")
	require.NoError(t, err)
	assert.Equal(t, []string{fieldLabel}, got.Fields())
}

func TestYard_ConfigIsACopy(t *testing.T) {
	yard, _ := newTestYard(t, testYardConfig(domain.CacheAll), nil)

	cfg := yard.Config()
	cfg.BaseFields[0] = "urn:mutated"
	assert.Equal(t, fieldLabel, yard.Config().BaseFields[0])
}

// ==================== Metrics ====================

func TestYard_Metrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	yard, err := NewYard(ctx, testYardConfig(domain.CacheAll), memory.NewIndex(), nil, metrics)
	require.NoError(t, err)

	_, err = yard.Store(ctx, entity("urn:e:1", "One", 1))
	require.NoError(t, err)
	_, err = yard.Get(ctx, "urn:e:1")
	require.NoError(t, err)
	_, err = yard.Get(ctx, "urn:e:2")
	require.Error(t, err)
	_, err = yard.Count(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("store", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("get", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.entities))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "yard_operations_total")
	assert.Contains(t, names, "yard_operation_duration_seconds")
}

// ==================== Concurrent writes ====================

// gatedIndex blocks the first Load of one id until released.
type gatedIndex struct {
	*memory.Index
	id      string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedIndex(id string) *gatedIndex {
	return &gatedIndex{
		Index:   memory.NewIndex(),
		id:      id,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedIndex) Load(ctx context.Context, id string) (*domain.IndexDocument, error) {
	if id == g.id {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.Index.Load(ctx, id)
}

var _ driven.Index = (*gatedIndex)(nil)

// raceRemove starts a Remove of id once check has entered its existence
// check, and reports whether the Remove finished before the check was
// released.
func raceRemove(t *testing.T, yard *Yard, idx *gatedIndex, id string, check func() error) {
	t.Helper()
	ctx := context.Background()

	checked := make(chan error, 1)
	go func() { checked <- check() }()
	<-idx.entered

	removed := make(chan error, 1)
	go func() { removed <- yard.Remove(ctx, id) }()

	select {
	case err := <-removed:
		t.Fatalf("remove finished during the existence check: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(idx.release)
	require.NoError(t, <-checked)
	require.NoError(t, <-removed)
}

func TestYard_Update_RacingRemove(t *testing.T) {
	ctx := context.Background()
	idx := newGatedIndex("urn:e:1")
	yard, err := NewYard(ctx, testYardConfig(domain.CacheAll), idx, nil, nil)
	require.NoError(t, err)
	_, err = yard.Store(ctx, entity("urn:e:1", "One", 1))
	require.NoError(t, err)

	raceRemove(t, yard, idx, "urn:e:1", func() error {
		_, err := yard.Update(ctx, entity("urn:e:1", "Renamed", 1))
		return err
	})

	// The Remove ran after the Update, so the entity stays removed.
	_, err = yard.Get(ctx, "urn:e:1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestYard_CacheUsed_ReplicateRacingRemove(t *testing.T) {
	ctx := context.Background()
	idx := newGatedIndex("urn:e:1")
	yard, err := NewYard(ctx, testYardConfig(domain.CacheUsed), idx, nil, nil)
	require.NoError(t, err)
	_, err = yard.Store(ctx, entity("urn:e:1", "One", 1))
	require.NoError(t, err)

	raceRemove(t, yard, idx, "urn:e:1", func() error {
		written, err := yard.Replicate(ctx, entity("urn:e:1", "Renamed", 1))
		assert.True(t, written)
		return err
	})

	_, err = yard.Get(ctx, "urn:e:1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestYard_Update_OtherEntitiesNotBlocked(t *testing.T) {
	ctx := context.Background()
	idx := newGatedIndex("urn:e:1")
	yard, err := NewYard(ctx, testYardConfig(domain.CacheAll), idx, nil, nil)
	require.NoError(t, err)
	_, err = yard.Store(ctx, entity("urn:e:1", "One", 1))
	require.NoError(t, err)

	updated := make(chan error, 1)
	go func() {
		_, err := yard.Update(ctx, entity("urn:e:1", "Renamed", 1))
		updated <- err
	}()
	<-idx.entered

	// Writes of another id proceed while urn:e:1 is held.
	_, err = yard.Store(ctx, entity("urn:e:2", "Two", 2))
	require.NoError(t, err)
	require.NoError(t, yard.Remove(ctx, "urn:e:2"))

	close(idx.release)
	require.NoError(t, <-updated)
	assert.Zero(t, yard.writes.held())
}

// trackingIndex records whether a settings read or write overlapped a
// document write.
type trackingIndex struct {
	*memory.Index
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (x *trackingIndex) Store(ctx context.Context, doc *domain.IndexDocument) error {
	x.inFlight.Add(1)
	defer x.inFlight.Add(-1)
	time.Sleep(time.Millisecond)
	return x.Index.Store(ctx, doc)
}

func (x *trackingIndex) Count(ctx context.Context) (int, error) {
	x.check()
	return x.Index.Count(ctx)
}

func (x *trackingIndex) SaveSettings(ctx context.Context, settings map[string]string) error {
	x.check()
	return x.Index.SaveSettings(ctx, settings)
}

func (x *trackingIndex) check() {
	if x.inFlight.Load() > 0 {
		x.overlap.Store(true)
	}
}

var _ driven.Index = (*trackingIndex)(nil)

func TestYard_SetCacheStrategy_SerialisedWithWrites(t *testing.T) {
	ctx := context.Background()
	idx := &trackingIndex{Index: memory.NewIndex()}
	yard, err := NewYard(ctx, testYardConfig(domain.CacheAll), idx, nil, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := yard.Store(ctx, entity(fmt.Sprintf("urn:e:%d", i), "E", int64(i)))
			assert.NoError(t, err)
		}(i)
	}

	var transition error
	wg.Add(1)
	go func() {
		defer wg.Done()
		transition = yard.SetCacheStrategy(ctx, domain.CacheUsed)
	}()
	wg.Wait()

	assert.False(t, idx.overlap.Load(), "transition overlapped a write")

	// Either the transition ran on the empty yard or it was refused.
	settings, err := idx.Settings(ctx)
	require.NoError(t, err)
	if transition == nil {
		assert.Equal(t, domain.CacheUsed, yard.Config().Strategy)
		assert.Equal(t, "used", settings[domain.SettingStrategy])
	} else {
		assert.True(t, domain.IsCacheInitialisation(transition))
		assert.Equal(t, domain.CacheAll, yard.Config().Strategy)
		assert.Equal(t, "all", settings[domain.SettingStrategy])
	}
}

func TestYard_SetCacheingLevel_SerialisedWithWrites(t *testing.T) {
	ctx := context.Background()
	idx := &trackingIndex{Index: memory.NewIndex()}
	yard, err := NewYard(ctx, testYardConfig(domain.CacheAll), idx, nil, nil)
	require.NoError(t, err)

	stored := make([]*domain.Representation, 10)
	var wg sync.WaitGroup
	for i := range stored {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rep, err := yard.Store(ctx, entity(fmt.Sprintf("urn:e:%d", i), "E", int64(i)))
			if assert.NoError(t, err) {
				stored[i] = rep
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, yard.SetCacheingLevel(ctx, domain.LevelBase))
	}()
	wg.Wait()

	assert.False(t, idx.overlap.Load(), "transition overlapped a write")
	assert.Equal(t, domain.LevelBase, yard.Config().Level)

	// Each entity carries the level that applied when it was written.
	for _, rep := range stored {
		require.NotNil(t, rep)
		got, err := yard.Get(ctx, rep.ID)
		require.NoError(t, err)
		assert.Equal(t, rep.Fields(), got.Fields())
		if len(rep.Fields()) == 1 {
			assert.Equal(t, []string{fieldLabel}, rep.Fields())
		} else {
			assert.Len(t, rep.Fields(), 3)
		}
	}
}
