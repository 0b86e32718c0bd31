package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/manthysbr/viyaOS/internal/core/domain"
	"github.com/manthysbr/viyaOS/internal/core/ports"
)

// PollerConfig bounds a poll loop.
type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// JobPoller drives one job to a terminal state by re-reading its status.
// It never resubmits.
type JobPoller struct {
	logger  *slog.Logger
	gateway ports.ComputeGateway
	cfg     PollerConfig
}

func NewJobPoller(logger *slog.Logger, gateway ports.ComputeGateway, cfg PollerConfig) *JobPoller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 30
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	return &JobPoller{
		logger:  logger,
		gateway: gateway,
		cfg:     cfg,
	}
}

// Poll reads the job state at most MaxAttempts times, sleeping Interval between
// non-terminal reads. onState, when non-nil, sees every state read.
//
// When the budget runs out the returned job has state "timeout" and the error
// wraps domain.ErrPollTimeout. A failed status read is returned as is.
func (p *JobPoller) Poll(ctx context.Context, sessionID domain.SessionID, jobID domain.JobID, onState func(domain.Job)) (domain.Job, error) {
	last := domain.Job{ID: jobID, SessionID: sessionID, State: domain.JobStateSubmitted}

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		job, err := p.gateway.FetchJob(ctx, sessionID, jobID)
		if err != nil {
			p.logger.Warn("job status read failed", "job_id", jobID, "session_id", sessionID, "attempt", attempt, "error", err)
			return last, err
		}
		last = job
		if onState != nil {
			onState(job)
		}

		if job.State.IsTerminal() {
			p.logger.Info("job reached terminal state", "job_id", jobID, "state", job.State, "attempts", attempt)
			return job, nil
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}
		if err := sleepCtx(ctx, p.cfg.Interval); err != nil {
			return last, err
		}
	}

	p.logger.Warn("job poll budget exhausted", "job_id", jobID, "attempts", p.cfg.MaxAttempts, "last_state", last.State)
	last.State = domain.JobStateTimeout
	return last, fmt.Errorf("%w: job %s after %d attempts", domain.ErrPollTimeout, jobID, p.cfg.MaxAttempts)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
