package enrich

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs a pass over all collections right away and then on every
// tick. At most one scheduled or triggered pass runs at a time; a tick that
// arrives while a pass is running is dropped.
type Scheduler struct {
	coord    *Coordinator
	interval time.Duration
	logger   *zap.Logger

	running sync.Mutex
	wg      sync.WaitGroup

	mu      sync.Mutex
	baseCtx context.Context
	last    *PassResult
}

func NewScheduler(coord *Coordinator, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		coord:    coord,
		interval: interval,
		logger:   logger,
		baseCtx:  context.Background(),
	}
}

// Run blocks until ctx is canceled, then waits for the running pass to stop.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.logger.Info("enrichment scheduler started", zap.Duration("interval", s.interval))
	s.tryRun(ctx, "")

	if s.interval <= 0 {
		<-ctx.Done()
		s.wg.Wait()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("enrichment scheduler stopping")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.tryRun(ctx, "")
		}
	}
}

// Trigger starts a pass for one collection (all when empty) in the
// background. It reports false when another pass is still running.
func (s *Scheduler) Trigger(collectionID string) bool {
	if !s.running.TryLock() {
		return false
	}
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		s.runPass(ctx, collectionID)
	}()
	return true
}

// Last returns the result of the most recently finished pass, nil before the first one.
func (s *Scheduler) Last() *PassResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Wait blocks until the background passes started by Trigger have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) tryRun(ctx context.Context, collectionID string) {
	if !s.running.TryLock() {
		s.logger.Info("previous enrichment pass still running, skipping tick")
		return
	}
	defer s.running.Unlock()
	s.runPass(ctx, collectionID)
}

func (s *Scheduler) runPass(ctx context.Context, collectionID string) {
	result, err := s.coord.RunPass(ctx, collectionID, nil)
	if err != nil {
		s.logger.Error("enrichment pass failed", zap.String("collection_id", collectionID), zap.Error(err))
	}
	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
}
