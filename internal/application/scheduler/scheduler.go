// Package scheduler drives sync runs on a fixed interval and serializes
// scheduled and manual runs of the same kind through a RunLock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/khoahotran/prospect-sync/internal/application/service"
	syncuc "github.com/khoahotran/prospect-sync/internal/application/usecase/sync"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
	"github.com/khoahotran/prospect-sync/pkg/logger"
)

// Runner is one kind's sync run.
type Runner interface {
	Kind() prospect.Kind
	Execute(ctx context.Context) (*syncuc.SyncOutput, error)
}

type entry struct {
	runner    Runner
	scheduled bool
}

type Scheduler struct {
	interval time.Duration
	lock     service.RunLock
	logger   logger.Logger

	entries []entry

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

func NewScheduler(interval time.Duration, lock service.RunLock, log logger.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		lock:     lock,
		logger:   log,
	}
}

// Register adds a runner. Unscheduled runners are reachable through Trigger
// only. Scheduled runners execute in registration order.
func (s *Scheduler) Register(r Runner, scheduled bool) {
	s.entries = append(s.entries, entry{runner: r, scheduled: scheduled})
}

// Start runs one cycle immediately and then one per interval until ctx is
// cancelled. It blocks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))
	s.RunCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes every scheduled runner once, sequentially. Errors are
// logged; a held lock skips that kind for this cycle.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	for _, e := range s.entries {
		if !e.scheduled {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		kind := e.runner.Kind()
		out, err := s.run(ctx, e.runner)
		switch {
		case errors.Is(err, service.ErrLockHeld):
			s.logger.Warn("Sync already in flight, skipping", zap.String("kind", string(kind)))
		case err != nil:
			s.logger.Error("Scheduled sync failed", err, zap.String("kind", string(kind)))
		default:
			s.logger.Info("Scheduled sync finished",
				zap.String("kind", string(kind)),
				zap.String("status", out.Status),
				zap.Int("added", out.Added),
				zap.Int("updated", out.Updated),
				zap.Int("failed", out.Failed),
			)
		}
	}
}

// Trigger runs one sync of kind on demand. A run already in flight yields a
// conflict error.
func (s *Scheduler) Trigger(ctx context.Context, kind prospect.Kind) (*syncuc.SyncOutput, error) {
	for _, e := range s.entries {
		if e.runner.Kind() != kind {
			continue
		}
		out, err := s.run(ctx, e.runner)
		if errors.Is(err, service.ErrLockHeld) {
			return nil, apperror.NewConflict("sync", fmt.Sprintf("a %s sync is already running", kind))
		}
		return out, err
	}
	return nil, apperror.NewNotFound("sync runner", string(kind))
}

func (s *Scheduler) run(ctx context.Context, r Runner) (*syncuc.SyncOutput, error) {
	name := "sync:" + string(r.Kind())
	release, err := s.lock.Acquire(ctx, name)
	if err != nil {
		if errors.Is(err, service.ErrLockHeld) {
			return nil, err
		}
		return nil, apperror.NewUnavailable("failed to acquire run lock", err)
	}
	defer func() {
		// ctx may already be cancelled; the lock must still be freed.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := release(relCtx); err != nil {
			s.logger.Error("Failed to release run lock", err, zap.String("lock", name))
		}
	}()

	return r.Execute(ctx)
}
