package services

import (
	"context"
	"sync"
	"time"

	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driving"
	"github.com/apache/stanbol-sub040/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

var schedLog = logger.For("scheduler")

// maxHistory is the number of task results kept.
const maxHistory = 100

// maxTick bounds how long the loop sleeps between due checks.
const maxTick = time.Minute

// Scheduler runs incremental indexing of every source on an interval.
// It is a pure core service with no external control API.
type Scheduler struct {
	interval time.Duration
	indexer  driving.IndexingDriver

	mu      sync.Mutex
	running bool
	busy    bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	task    domain.ScheduledTask
	history []domain.TaskResult
}

// NewScheduler creates a scheduler from the indexing configuration.
// A zero interval disables scheduling.
func NewScheduler(config domain.IndexingConfig, indexer driving.IndexingDriver) *Scheduler {
	return &Scheduler{
		interval: config.Interval,
		indexer:  indexer,
		task: domain.ScheduledTask{
			ID:       domain.TaskIDIncrementalIndex,
			Name:     "Incremental Index",
			Interval: config.Interval,
			Enabled:  config.Interval > 0,
		},
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	if !s.task.Enabled {
		s.mu.Unlock()
		schedLog.Info("Scheduling disabled")
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.task.NextRun = time.Now().Add(s.interval)
	stopCh := s.stopCh
	s.mu.Unlock()

	schedLog.Info("Indexing every %s", s.interval)
	err := s.run(ctx, stopCh)

	s.mu.Lock()
	if s.running && s.stopCh == stopCh {
		s.running = false
		close(stopCh)
	}
	s.mu.Unlock()
	return err
}

// Stop gracefully shuts down the scheduler and waits for a running task.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Task returns a copy of the indexing task state.
func (s *Scheduler) Task() domain.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// History returns the most recent task results, oldest first.
func (s *Scheduler) History() []domain.TaskResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TaskResult(nil), s.history...)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	tick := s.interval
	if tick > maxTick {
		tick = maxTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRun(ctx)
		}
	}
}

// checkAndRun starts the task if it is due and not already running.
func (s *Scheduler) checkAndRun(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.busy || now.Before(s.task.NextRun) {
		return
	}
	s.busy = true
	s.wg.Add(1)
	go s.runTask(ctx)
}

// runTask runs one indexing pass over every source.
func (s *Scheduler) runTask(ctx context.Context) {
	defer s.wg.Done()

	result := domain.TaskResult{
		TaskID:    s.task.ID,
		StartedAt: time.Now(),
	}
	reports, err := s.runIndexing(ctx)
	for _, r := range reports {
		result.ItemsProcessed += r.Processed()
	}
	result.EndedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if err != nil {
		result.Error = err.Error()
		s.task.LastError = err.Error()
		schedLog.Warn("Indexing task failed: %v", err)
	} else {
		result.Success = true
		s.task.LastError = ""
		s.task.LastSuccess = result.EndedAt
	}
	s.task.LastRun = result.StartedAt
	s.task.NextRun = result.EndedAt.Add(s.task.Interval)

	s.history = append(s.history, result)
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
}

func (s *Scheduler) runIndexing(ctx context.Context) ([]domain.IndexingReport, error) {
	if s.indexer == nil {
		return nil, nil
	}
	return s.indexer.IndexAll(ctx)
}
