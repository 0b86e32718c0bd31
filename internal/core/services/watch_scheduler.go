package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

var (
	// ErrWatchQueueFull is returned when no more watches can be queued.
	ErrWatchQueueFull = errors.New("watch queue full")
	// ErrWatchStopped is the cancellation cause of a watch ended by Stop.
	ErrWatchStopped = errors.New("watch stopped")
)

// WatchRequest asks for a job to be polled in the background.
type WatchRequest struct {
	SessionID domain.SessionID
	JobID     domain.JobID
}

// SchedulerConfig defines concurrency limits
type SchedulerConfig struct {
	MaxConcurrentWatches int64
	QueueSize            int
}

// WatchScheduler runs background poll loops, at most MaxConcurrentWatches at
// a time. Each session's loop runs on its own goroutine.
type WatchScheduler struct {
	logger    *slog.Logger
	pending   chan WatchRequest
	semaphore *semaphore.Weighted

	mu      sync.Mutex
	queued  map[domain.JobID]int
	running map[domain.JobID]*watchHandle
}

type watchHandle struct {
	cancel context.CancelCauseFunc
}

func NewWatchScheduler(logger *slog.Logger, cfg SchedulerConfig) *WatchScheduler {
	// Default to 10 concurrent watches if not set
	limit := cfg.MaxConcurrentWatches
	if limit <= 0 {
		limit = 10
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 100
	}

	return &WatchScheduler{
		logger:    logger,
		pending:   make(chan WatchRequest, queue),
		semaphore: semaphore.NewWeighted(limit),
		queued:    make(map[domain.JobID]int),
		running:   make(map[domain.JobID]*watchHandle),
	}
}

// Submit queues a watch without blocking.
func (s *WatchScheduler) Submit(req WatchRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.pending <- req:
		s.queued[req.JobID]++
		s.logger.Info("watch queued", "job_id", req.JobID, "session_id", req.SessionID)
		return nil
	default:
		return ErrWatchQueueFull
	}
}

// Watching reports whether a watch for jobID is queued or running.
func (s *WatchScheduler) Watching(jobID domain.JobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, running := s.running[jobID]
	return running || s.queued[jobID] > 0
}

// Stop cancels the watch for jobID if one is running, with ErrWatchStopped as
// the context cause. It reports whether a running watch was found.
func (s *WatchScheduler) Stop(jobID domain.JobID) bool {
	s.mu.Lock()
	h, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		h.cancel(ErrWatchStopped)
	}
	return ok
}

func (s *WatchScheduler) dequeued(jobID domain.JobID) {
	if s.queued[jobID]--; s.queued[jobID] <= 0 {
		delete(s.queued, jobID)
	}
}

// Start consumes queued watches until ctx is done, running handler for each.
func (s *WatchScheduler) Start(ctx context.Context, handler func(context.Context, WatchRequest)) {
	s.logger.Info("starting watch scheduler")

	go func() {
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("stopping watch scheduler")
				return
			case req := <-s.pending:
				if err := s.semaphore.Acquire(ctx, 1); err != nil {
					s.logger.Warn("watch dropped on shutdown", "job_id", req.JobID, "error", err)
					s.mu.Lock()
					s.dequeued(req.JobID)
					s.mu.Unlock()
					return
				}

				watchCtx, cancel := context.WithCancelCause(ctx)
				h := &watchHandle{cancel: cancel}
				s.mu.Lock()
				s.dequeued(req.JobID)
				s.running[req.JobID] = h
				s.mu.Unlock()

				go func(r WatchRequest) {
					defer s.semaphore.Release(1)
					defer func() {
						h.cancel(nil)
						s.mu.Lock()
						if s.running[r.JobID] == h {
							delete(s.running, r.JobID)
						}
						s.mu.Unlock()
					}()
					handler(watchCtx, r)
				}(req)
			}
		}
	}()
}
