package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
	"github.com/apache/stanbol-sub040/internal/core/ports/driving"
	"github.com/apache/stanbol-sub040/internal/logger"
)

// Ensure Indexer implements the interface.
var _ driving.IndexingDriver = (*Indexer)(nil)

var indexLog = logger.For("indexer")

// Indexer feeds registered IndexingSources into a Yard.
//
// Every run starts from the persisted IndexingState of the source. A source
// never indexed, or whose epoch moved, is re-read in full through its
// iterator; otherwise only the change set since the stored revision is
// applied. The state only advances when a run completes, so a failed run is
// retried from the same position.
type Indexer struct {
	yard        driving.Yard
	states      driven.IndexingStateStore
	scorer      driven.EntityScoreProvider
	metrics     *Metrics
	concurrency int

	mu      sync.RWMutex
	sources map[string]driven.IndexingSource
	order   []string
	running map[string]bool
	reports map[string]domain.IndexingReport
	errs    map[string]string
}

// NewIndexer creates an Indexer writing to yard.
// The scorer and metrics are optional (can be nil). Concurrency bounds the
// number of entities committed in parallel; values below one mean one.
func NewIndexer(
	yard driving.Yard,
	states driven.IndexingStateStore,
	scorer driven.EntityScoreProvider,
	metrics *Metrics,
	concurrency int,
) *Indexer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Indexer{
		yard:        yard,
		states:      states,
		scorer:      scorer,
		metrics:     metrics,
		concurrency: concurrency,
		sources:     make(map[string]driven.IndexingSource),
		running:     make(map[string]bool),
		reports:     make(map[string]domain.IndexingReport),
		errs:        make(map[string]string),
	}
}

// Register adds a source. Names must be unique.
func (x *Indexer) Register(source driven.IndexingSource) error {
	if source == nil || source.Name() == "" {
		return fmt.Errorf("%w: source without name", domain.ErrInvalidInput)
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	name := source.Name()
	if _, ok := x.sources[name]; ok {
		return fmt.Errorf("source %s: %w", name, domain.ErrAlreadyExists)
	}
	x.sources[name] = source
	x.order = append(x.order, name)
	indexLog.Debug("Registered source %s", name)
	return nil
}

// Sources returns the registered source names in registration order.
func (x *Indexer) Sources() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]string(nil), x.order...)
}

// Index runs one indexing pass for a source.
func (x *Indexer) Index(ctx context.Context, sourceID string) (*domain.IndexingReport, error) {
	source, err := x.begin(sourceID)
	if err != nil {
		return nil, err
	}

	report, err := x.run(ctx, source)
	x.finish(sourceID, report, err)
	if err != nil {
		indexLog.Warn("Indexing %s failed: %v", sourceID, err)
		return nil, fmt.Errorf("index %s: %w", sourceID, err)
	}
	x.metrics.report(report)
	indexLog.Info("Indexed %s: %d indexed, %d excluded, %d removed, %d skipped (epoch %d, revision %d)",
		sourceID, report.Indexed, report.Excluded, report.Removed, report.Skipped, report.Epoch, report.Revision)
	return report, nil
}

// IndexAll runs Index for every registered source in registration order.
// A failing source does not stop the others; the reports of the sources
// that succeeded are returned along with the joined errors.
func (x *Indexer) IndexAll(ctx context.Context) ([]domain.IndexingReport, error) {
	var (
		reports []domain.IndexingReport
		errs    []error
	)
	for _, name := range x.Sources() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := x.Index(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reports = append(reports, *report)
	}
	return reports, errors.Join(errs...)
}

// Status returns indexing status for a source.
func (x *Indexer) Status(ctx context.Context, sourceID string) (*driving.IndexingStatus, error) {
	x.mu.RLock()
	_, ok := x.sources[sourceID]
	status := &driving.IndexingStatus{
		SourceID:  sourceID,
		Running:   x.running[sourceID],
		LastError: x.errs[sourceID],
	}
	if report, ok := x.reports[sourceID]; ok {
		status.LastReport = &report
	}
	x.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("source %s: %w", sourceID, domain.ErrNotFound)
	}

	state, err := x.state(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if state != nil {
		status.Epoch = state.Epoch
		status.Revision = state.Revision
	}
	return status, nil
}

// begin marks a source as running.
func (x *Indexer) begin(sourceID string) (driven.IndexingSource, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	source, ok := x.sources[sourceID]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", sourceID, domain.ErrNotFound)
	}
	if x.running[sourceID] {
		return nil, fmt.Errorf("source %s: %w", sourceID, domain.ErrIndexingInProgress)
	}
	x.running[sourceID] = true
	return source, nil
}

// finish records the outcome of a run.
func (x *Indexer) finish(sourceID string, report *domain.IndexingReport, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	delete(x.running, sourceID)
	if err != nil {
		x.errs[sourceID] = err.Error()
		return
	}
	delete(x.errs, sourceID)
	x.reports[sourceID] = *report
}

func (x *Indexer) state(ctx context.Context, sourceID string) (*domain.IndexingState, error) {
	state, err := x.states.Get(ctx, sourceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get indexing state: %w", err)
	}
	return state, nil
}

func (x *Indexer) run(ctx context.Context, source driven.IndexingSource) (*domain.IndexingReport, error) {
	name := source.Name()
	defer indexLog.Timed("index " + name)()

	epoch, err := source.Epoch(ctx)
	if err != nil {
		return nil, fmt.Errorf("read epoch: %w", err)
	}
	state, err := x.state(ctx, name)
	if err != nil {
		return nil, err
	}

	var (
		t     tally
		cs    *driven.ChangeSet
		full  = state == nil || state.Epoch != epoch
		start int64
	)
	if !full {
		start = state.Revision
	}

	// A full pass still needs the head revision, so that the next run only
	// picks up what changed after it.
	cs, err = source.ChangeSet(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("read change set from %d: %w", start, err)
	}
	if cs.Epoch() != epoch {
		indexLog.Info("Epoch of %s moved during the run (%d to %d), re-indexing", name, epoch, cs.Epoch())
		epoch, full = cs.Epoch(), true
	}

	if full {
		indexLog.Info("Full re-index of %s (epoch %d)", name, epoch)
		err = x.indexAll(ctx, source, &t)
	} else {
		indexLog.Debug("Applying %d changes of %s (revision %d to %d)", len(cs.Changed()), name, cs.From(), cs.To())
		err = x.indexChanges(ctx, source, cs, &t)
	}
	if err != nil {
		return nil, err
	}

	next := domain.IndexingState{
		SourceID:    name,
		Epoch:       epoch,
		Revision:    cs.To(),
		LastIndexed: time.Now(),
	}
	if err := x.states.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save indexing state: %w", err)
	}

	report := t.report(name)
	report.Full = full
	report.Epoch = epoch
	report.Revision = next.Revision
	return &report, nil
}

// indexAll walks the source iterator and commits each entity.
func (x *Indexer) indexAll(ctx context.Context, source driven.IndexingSource, t *tally) error {
	it, err := source.Entities(ctx)
	if err != nil {
		return fmt.Errorf("open iterator: %w", err)
	}
	defer it.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for it.Next(gctx) {
		rep := it.Representation()
		if rep == nil {
			continue
		}
		g.Go(func() error {
			return x.commit(gctx, rep, t)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("iterate entities: %w", err)
	}
	return ctx.Err()
}

// indexChanges fetches and commits every changed entity.
func (x *Indexer) indexChanges(ctx context.Context, source driven.IndexingSource, cs *driven.ChangeSet, t *tally) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for _, id := range cs.Changed() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return x.change(gctx, source, id, t)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// change applies one changed id. Scorers that work on ids are asked first,
// so excluded entities are never fetched.
func (x *Indexer) change(ctx context.Context, source driven.IndexingSource, id string, t *tally) error {
	if x.scorer != nil && !x.scorer.NeedsData() {
		score, err := x.scorer.Process(ctx, id)
		if err != nil {
			return fmt.Errorf("score %s: %w", id, err)
		}
		if driven.Excluded(score) {
			return x.exclude(ctx, id, t)
		}
	}

	rep, err := source.Entity(ctx, id)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && rep == nil) {
		indexLog.Debug("Removing deleted entity %s", id)
		if err := x.yard.Remove(ctx, id); err != nil {
			return err
		}
		t.removed.Add(1)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", id, err)
	}
	return x.store(ctx, rep, t)
}

// commit scores and writes one entity read from the iterator.
func (x *Indexer) commit(ctx context.Context, rep *domain.Representation, t *tally) error {
	if x.scorer != nil && !x.scorer.NeedsData() {
		score, err := x.scorer.Process(ctx, rep.ID)
		if err != nil {
			return fmt.Errorf("score %s: %w", rep.ID, err)
		}
		if driven.Excluded(score) {
			return x.exclude(ctx, rep.ID, t)
		}
	}
	return x.store(ctx, rep, t)
}

// store applies a data-based score, if configured, and replicates the
// entity into the Yard.
func (x *Indexer) store(ctx context.Context, rep *domain.Representation, t *tally) error {
	if x.scorer != nil && x.scorer.NeedsData() {
		score, err := x.scorer.ProcessRepresentation(ctx, rep)
		if err != nil {
			return fmt.Errorf("score %s: %w", rep.ID, err)
		}
		if driven.Excluded(score) {
			return x.exclude(ctx, rep.ID, t)
		}
	}

	written, err := x.yard.Replicate(ctx, rep)
	if err != nil {
		return err
	}
	if written {
		t.indexed.Add(1)
	} else {
		t.skipped.Add(1)
	}
	return nil
}

// exclude removes an entity the scorer rejected, in case an earlier run
// indexed it.
func (x *Indexer) exclude(ctx context.Context, id string, t *tally) error {
	indexLog.Debug("Excluding %s", id)
	if err := x.yard.Remove(ctx, id); err != nil {
		return err
	}
	t.excluded.Add(1)
	return nil
}

// tally counts outcomes across the workers of one run.
type tally struct {
	indexed  atomic.Int64
	excluded atomic.Int64
	removed  atomic.Int64
	skipped  atomic.Int64
}

func (t *tally) report(sourceID string) domain.IndexingReport {
	return domain.IndexingReport{
		SourceID: sourceID,
		Indexed:  int(t.indexed.Load()),
		Excluded: int(t.excluded.Load()),
		Removed:  int(t.removed.Load()),
		Skipped:  int(t.skipped.Load()),
	}
}
