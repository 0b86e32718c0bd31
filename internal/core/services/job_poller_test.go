package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

func TestJobPoller_StopsOnTerminalState(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchJob", mock.Anything, domain.SessionID("sess-1"), domain.JobID("job-1")).Return(stubJob("job-1", "running"), nil).Twice()
	gw.On("FetchJob", mock.Anything, domain.SessionID("sess-1"), domain.JobID("job-1")).Return(stubJob("job-1", "completed"), nil).Once()

	poller := NewJobPoller(testLogger(), gw, PollerConfig{Interval: time.Millisecond, MaxAttempts: 10})

	var seen []domain.JobState
	got, err := poller.Poll(context.Background(), "sess-1", "job-1", func(j domain.Job) { seen = append(seen, j.State) })
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateCompleted, got.State)
	assert.Equal(t, []domain.JobState{"running", "running", "completed"}, seen)
	gw.AssertNumberOfCalls(t, "FetchJob", 3)
}

func TestJobPoller_CanceledIsTerminalAndDistinct(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchJob", mock.Anything, mock.Anything, mock.Anything).Return(stubJob("job-1", "canceled"), nil)

	poller := NewJobPoller(testLogger(), gw, PollerConfig{Interval: time.Millisecond, MaxAttempts: 5})
	got, err := poller.Poll(context.Background(), "sess-1", "job-1", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateCanceled, got.State)
	assert.NotEqual(t, domain.JobStateFailed, got.State)
}

func TestJobPoller_TimeoutAfterExactBudget(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchJob", mock.Anything, mock.Anything, mock.Anything).Return(stubJob("job-1", "running"), nil)

	poller := NewJobPoller(testLogger(), gw, PollerConfig{Interval: time.Millisecond, MaxAttempts: 4})
	got, err := poller.Poll(context.Background(), "sess-1", "job-1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPollTimeout))
	assert.Equal(t, domain.JobStateTimeout, got.State)
	gw.AssertNumberOfCalls(t, "FetchJob", 4)
	gw.AssertNotCalled(t, "SubmitJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobPoller_GatewayErrorIsReturned(t *testing.T) {
	gw := new(MockGateway)
	remote := &domain.GatewayError{Op: "fetch job state", StatusCode: 404, Body: "no such job"}
	gw.On("FetchJob", mock.Anything, mock.Anything, mock.Anything).Return(domain.Job{}, remote)

	poller := NewJobPoller(testLogger(), gw, PollerConfig{Interval: time.Millisecond, MaxAttempts: 3})
	_, err := poller.Poll(context.Background(), "sess-1", "job-1", nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrPollTimeout))
	assert.Equal(t, domain.TagGateway, domain.ErrorTag(err))
	gw.AssertNumberOfCalls(t, "FetchJob", 1)
}

func TestJobPoller_ContextCancel(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchJob", mock.Anything, mock.Anything, mock.Anything).Return(stubJob("job-1", "running"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	poller := NewJobPoller(testLogger(), gw, PollerConfig{Interval: time.Hour, MaxAttempts: 3})
	_, err := poller.Poll(ctx, "sess-1", "job-1", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// For any budget and any number of running reads before completion, the poller
// makes min(runs+1, budget) reads and times out only when the budget is short.
func TestJobPoller_TerminalConvergenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("reads never exceed the budget", prop.ForAll(
		func(budget, runs int) bool {
			gw := new(MockGateway)
			if runs > 0 {
				gw.On("FetchJob", mock.Anything, mock.Anything, mock.Anything).Return(stubJob("j", "running"), nil).Times(runs)
			}
			gw.On("FetchJob", mock.Anything, mock.Anything, mock.Anything).Return(stubJob("j", "completed"), nil)

			poller := NewJobPoller(testLogger(), gw, PollerConfig{MaxAttempts: budget})
			got, err := poller.Poll(context.Background(), "sess-1", "j", nil)

			calls := 0
			for _, c := range gw.Calls {
				if c.Method == "FetchJob" {
					calls++
				}
			}

			if runs < budget {
				return err == nil && got.State == domain.JobStateCompleted && calls == runs+1
			}
			return errors.Is(err, domain.ErrPollTimeout) && got.State == domain.JobStateTimeout && calls == budget
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
