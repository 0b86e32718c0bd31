package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

const testContextName = "SAS Studio compute context"

func newTestOrchestrator(gw *MockGateway) *Orchestrator {
	logger := testLogger()
	return NewOrchestrator(
		logger,
		gw,
		NewJobPoller(logger, gw, PollerConfig{Interval: time.Millisecond, MaxAttempts: 5}),
		NewResultAssembler(logger, gw),
		NewContextStore(50),
		NewRewriter(),
		NewWatchScheduler(logger, SchedulerConfig{MaxConcurrentWatches: 2}),
		NewEventBus(logger),
		OrchestratorConfig{ContextName: testContextName},
	)
}

func TestOrchestrator_RunOpensSession(t *testing.T) {
	gw := new(MockGateway)
	ref := domain.ExecutionContextRef{Name: testContextName, ID: "ctx-1"}
	gw.On("ResolveContext", mock.Anything, testContextName).Return(ref, nil)
	gw.On("OpenSession", mock.Anything, ref).Return(domain.Session{ID: "sess-1", ContextID: "ctx-1"}, nil)
	gw.On("SubmitJob", mock.Anything, domain.SessionID("sess-1"), "data a; x=1; run;").Return(stubJob("job-1", "pending"), nil)

	o := newTestOrchestrator(gw)
	resp := o.Run(context.Background(), domain.RunRequest{Code: "data a; x=1; run;"})

	assert.True(t, resp.OK())
	assert.Equal(t, domain.JobID("job-1"), resp.JobID)
	assert.Equal(t, domain.SessionID("sess-1"), resp.SessionID)
	assert.Equal(t, domain.JobStatePending, resp.State)

	rec := o.Context("sess-1")
	require.NotNil(t, rec.LastCode)
	assert.Equal(t, "data a; x=1; run;", *rec.LastCode)
	require.Len(t, rec.History, 1)
	assert.Equal(t, domain.ContextActionRun, rec.History[0].Action)
}

func TestOrchestrator_RunReusesSession(t *testing.T) {
	gw := new(MockGateway)
	gw.On("SubmitJob", mock.Anything, domain.SessionID("sess-9"), mock.Anything).Return(stubJob("job-2", "running"), nil)

	resp := newTestOrchestrator(gw).Run(context.Background(), domain.RunRequest{Code: "proc print; run;", SessionID: "sess-9"})

	assert.True(t, resp.OK())
	gw.AssertNotCalled(t, "ResolveContext", mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "OpenSession", mock.Anything, mock.Anything)
}

func TestOrchestrator_RunFailureStages(t *testing.T) {
	ref := domain.ExecutionContextRef{Name: testContextName, ID: "ctx-1"}

	t.Run("unknown context", func(t *testing.T) {
		gw := new(MockGateway)
		gw.On("ResolveContext", mock.Anything, "does not exist").
			Return(domain.ExecutionContextRef{}, fmt.Errorf("%w: %q", domain.ErrContextNotFound, "does not exist"))

		resp := newTestOrchestrator(gw).Run(context.Background(), domain.RunRequest{
			Code:    "data a; run;",
			Options: domain.RunOptions{ContextName: "does not exist"},
		})
		assert.Equal(t, domain.JobStateFailed, resp.State)
		require.NotNil(t, resp.Error)
		assert.Equal(t, RunErrNoContext, *resp.Error)
		assert.Equal(t, domain.TagContextNotFound, resp.ErrorKind)
		assert.Contains(t, resp.Message, "No compute context found")
		assert.Equal(t, domain.ConditionCodeLocalFailure, resp.ConditionCode)
	})

	t.Run("session rejected", func(t *testing.T) {
		gw := new(MockGateway)
		gw.On("ResolveContext", mock.Anything, testContextName).Return(ref, nil)
		gw.On("OpenSession", mock.Anything, ref).
			Return(domain.Session{}, &domain.GatewayError{Op: "open session", StatusCode: 503, Body: "overloaded"})

		resp := newTestOrchestrator(gw).Run(context.Background(), domain.RunRequest{Code: "data a; run;"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, RunErrCreateSession, *resp.Error)
		assert.Equal(t, domain.TagGateway, resp.ErrorKind)
		assert.Contains(t, resp.Message, "overloaded")
	})

	t.Run("submission rejected", func(t *testing.T) {
		gw := new(MockGateway)
		gw.On("SubmitJob", mock.Anything, domain.SessionID("sess-1"), mock.Anything).
			Return(domain.Job{}, &domain.GatewayError{Op: "submit job", StatusCode: 400, Body: `{"message":"bad code"}`, Kind: domain.ErrJobSubmission})

		resp := newTestOrchestrator(gw).Run(context.Background(), domain.RunRequest{Code: "data a; run;", SessionID: "sess-1"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, RunErrSubmitJob, *resp.Error)
		assert.Equal(t, domain.TagJobSubmission, resp.ErrorKind)
		assert.Contains(t, resp.Message, "bad code")
		assert.Equal(t, domain.SessionID("sess-1"), resp.SessionID)
	})
}

func TestOrchestrator_RejectedRunKeepsLastCode(t *testing.T) {
	gw := new(MockGateway)
	gw.On("SubmitJob", mock.Anything, domain.SessionID("sess-1"), "data a; x=1; run;").Return(stubJob("job-1", "pending"), nil)
	gw.On("SubmitJob", mock.Anything, domain.SessionID("sess-1"), "data b; x=;").
		Return(domain.Job{}, &domain.GatewayError{Op: "submit job", StatusCode: 400, Kind: domain.ErrJobSubmission})
	gw.On("SubmitJob", mock.Anything, domain.SessionID("sess-2"), mock.Anything).
		Return(domain.Job{}, &domain.GatewayError{Op: "submit job", StatusCode: 400, Kind: domain.ErrJobSubmission})
	o := newTestOrchestrator(gw)

	require.True(t, o.Run(context.Background(), domain.RunRequest{Code: "data a; x=1; run;", SessionID: "sess-1"}).OK())
	assert.False(t, o.Run(context.Background(), domain.RunRequest{Code: "data b; x=;", SessionID: "sess-1"}).OK())

	rec := o.Context("sess-1")
	require.NotNil(t, rec.LastCode)
	assert.Equal(t, "data a; x=1; run;", *rec.LastCode)
	assert.Len(t, rec.History, 1)

	assert.False(t, o.Run(context.Background(), domain.RunRequest{Code: "data c; run;", SessionID: "sess-2"}).OK())
	assert.Nil(t, o.Context("sess-2").LastCode)
}

func TestOrchestrator_RunRewritesFromContext(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchTable", mock.Anything, domain.SessionID("sess-1"), domain.TableRef{Library: "work", Name: "results"}).
		Return(domain.TableResult{Columns: []string{"x"}, Rows: [][]any{{5.0}}}, nil)
	gw.On("SubmitJob", mock.Anything, domain.SessionID("sess-1"), "data work.results; x=5+3; put x=; output; run;").
		Return(stubJob("job-3", "pending"), nil)

	o := newTestOrchestrator(gw)
	table := o.Table(context.Background(), "sess-1", "work", "results")
	require.True(t, table.OK())

	resp := o.Run(context.Background(), domain.RunRequest{Code: "add 3 more", SessionID: "sess-1"})
	require.True(t, resp.OK(), resp.Message)

	rec := o.Context("sess-1")
	require.NotNil(t, rec.LastCode)
	assert.Equal(t, "data work.results; x=5+3; put x=; output; run;", *rec.LastCode)
	gw.AssertExpectations(t)
}

func TestOrchestrator_StatusRequiresSession(t *testing.T) {
	gw := new(MockGateway)
	resp := newTestOrchestrator(gw).Status(context.Background(), "abc", "")

	assert.Equal(t, domain.JobStateFailed, resp.State)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "MissingSessionId", *resp.Error)
	gw.AssertNotCalled(t, "FetchJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_StatusIsIdempotentRead(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchJob", mock.Anything, domain.SessionID("sess-1"), domain.JobID("job-1")).Return(stubJob("job-1", "completed"), nil)
	o := newTestOrchestrator(gw)

	first := o.Status(context.Background(), "job-1", "sess-1")
	second := o.Status(context.Background(), "job-1", "sess-1")
	assert.Equal(t, first, second)
	assert.Equal(t, domain.JobStateCompleted, first.State)
	assert.Nil(t, first.Error)
}

func TestOrchestrator_WaitTimeout(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchJob", mock.Anything, mock.Anything, mock.Anything).Return(stubJob("job-1", "running"), nil)

	resp := newTestOrchestrator(gw).Wait(context.Background(), "job-1", "sess-1")
	assert.Equal(t, domain.JobStateTimeout, resp.State)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.TagPollTimeout, *resp.Error)
	gw.AssertNumberOfCalls(t, "FetchJob", 5)
}

func TestOrchestrator_ResultsPartialFailure(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchLog", mock.Anything, mock.Anything, mock.Anything).Return("", &domain.GatewayError{Op: "fetch log", StatusCode: 500})
	gw.On("FetchListing", mock.Anything, mock.Anything, mock.Anything).Return([]domain.ListingItem{{"name": "x"}}, nil)

	resp := newTestOrchestrator(gw).Results(context.Background(), domain.ResultsRequest{JobID: "job-1", SessionID: "sess-1"})

	assert.Nil(t, resp.Error)
	assert.Len(t, resp.Listing, 1)
	assert.Contains(t, resp.ArtifactErrors, domain.ArtifactLog)
}

func TestOrchestrator_ResultsTotalFailure(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchLog", mock.Anything, mock.Anything, mock.Anything).Return("", &domain.GatewayError{Op: "fetch log", StatusCode: 404})
	gw.On("FetchListing", mock.Anything, mock.Anything, mock.Anything).Return(nil, &domain.GatewayError{Op: "fetch listing", StatusCode: 404})

	resp := newTestOrchestrator(gw).Results(context.Background(), domain.ResultsRequest{JobID: "job-1", SessionID: "sess-1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.TagGateway, *resp.Error)
}

func TestOrchestrator_CancelIsBestEffort(t *testing.T) {
	gw := new(MockGateway)
	o := newTestOrchestrator(gw)

	resp := o.Cancel(context.Background(), "job-1", "sess-1")
	assert.Equal(t, domain.JobStateCancelRequested, resp.State)
	assert.Nil(t, resp.Error)
	assert.Contains(t, resp.Message, "not confirmed")
	assert.Empty(t, gw.Calls, "cancel must not call the engine")

	rec := o.Context("sess-1")
	require.Len(t, rec.History, 1)
	assert.Equal(t, domain.ContextActionCancel, rec.History[0].Action)
}

func TestOrchestrator_TableNotFound(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchTable", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.TableResult{}, &domain.GatewayError{Op: "fetch columns", StatusCode: 404, Kind: domain.ErrTableNotFound})
	o := newTestOrchestrator(gw)

	resp := o.Table(context.Background(), "sess-1", "", "missing")
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.TagTableNotFound, *resp.Error)
	assert.Equal(t, "Table work.missing not found", resp.Message)
	assert.NotNil(t, resp.Columns)
	assert.Empty(t, o.Context("sess-1").History, "failed fetches are not recorded")
}

func TestOrchestrator_TableIdempotentRead(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchTable", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.TableResult{Columns: []string{"a", "b"}, Rows: [][]any{{1.0, "x"}, {2.0, "y"}}}, nil)
	o := newTestOrchestrator(gw)

	first := o.Table(context.Background(), "sess-1", "work", "t")
	second := o.Table(context.Background(), "sess-1", "work", "t")
	assert.Equal(t, first.Columns, second.Columns)
	assert.Equal(t, first.Rows, second.Rows)
}

func TestOrchestrator_Health(t *testing.T) {
	gw := new(MockGateway)
	h := newTestOrchestrator(gw).Health()
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "1.0.0", h.Version)
	assert.Empty(t, gw.Calls)
}

func TestOrchestrator_WatchPublishesStates(t *testing.T) {
	gw := new(MockGateway)
	gw.On("SubmitJob", mock.Anything, domain.SessionID("sess-1"), mock.Anything).Return(stubJob("job-w", "pending"), nil)
	gw.On("FetchJob", mock.Anything, mock.Anything, domain.JobID("job-w")).Return(stubJob("job-w", "running"), nil).Once()
	gw.On("FetchJob", mock.Anything, mock.Anything, domain.JobID("job-w")).Return(stubJob("job-w", "completed"), nil)

	o := newTestOrchestrator(gw)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Serve(ctx) }()

	events, unsub := o.events.Subscribe("job-w")
	defer unsub()

	resp := o.Run(ctx, domain.RunRequest{Code: "data a; run;", SessionID: "sess-1", Options: domain.RunOptions{Watch: true}})
	require.True(t, resp.OK())

	var states []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			states = append(states, e.Data)
			if e.Terminal {
				require.Len(t, states, 2)
				assert.Contains(t, states[0], `"state":"running"`)
				assert.Contains(t, states[1], `"state":"completed"`)
				return
			}
		case <-timeout:
			t.Fatalf("timed out, got %v", states)
		}
	}
}

func TestOrchestrator_EventsAfterWatchFinished(t *testing.T) {
	gw := new(MockGateway)
	gw.On("SubmitJob", mock.Anything, domain.SessionID("sess-1"), mock.Anything).Return(stubJob("job-done", "pending"), nil)
	gw.On("FetchJob", mock.Anything, mock.Anything, domain.JobID("job-done")).Return(stubJob("job-done", "completed"), nil)

	o := newTestOrchestrator(gw)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Serve(ctx) }()

	resp := o.Run(ctx, domain.RunRequest{Code: "data a; run;", SessionID: "sess-1", Options: domain.RunOptions{Watch: true}})
	require.True(t, resp.OK())
	require.Eventually(t, func() bool { return !o.watches.Watching("job-done") }, 2*time.Second, 5*time.Millisecond)

	events, unsub, err := o.Events("job-done")
	require.NoError(t, err)
	defer unsub()

	select {
	case e := <-events:
		assert.True(t, e.Terminal)
		assert.Contains(t, e.Data, `"state":"completed"`)
	case <-time.After(time.Second):
		t.Fatal("finished watch did not replay its terminal event")
	}
}

func TestOrchestrator_EventsWithoutWatch(t *testing.T) {
	o := newTestOrchestrator(new(MockGateway))

	events, unsub, err := o.Events("job-never-watched")
	defer unsub()

	assert.ErrorIs(t, err, domain.ErrWatchNotFound)
	assert.Nil(t, events)
}

func TestOrchestrator_WatchEndings(t *testing.T) {
	newRunningWatch := func(t *testing.T, jobID domain.JobID) (*Orchestrator, context.CancelFunc, <-chan Event) {
		gw := new(MockGateway)
		gw.On("SubmitJob", mock.Anything, domain.SessionID("sess-1"), mock.Anything).Return(stubJob(string(jobID), "pending"), nil)
		gw.On("FetchJob", mock.Anything, mock.Anything, jobID).Return(stubJob(string(jobID), "running"), nil)

		logger := testLogger()
		o := NewOrchestrator(
			logger,
			gw,
			NewJobPoller(logger, gw, PollerConfig{Interval: 10 * time.Millisecond, MaxAttempts: 1000}),
			NewResultAssembler(logger, gw),
			NewContextStore(50),
			NewRewriter(),
			NewWatchScheduler(logger, SchedulerConfig{}),
			NewEventBus(logger),
			OrchestratorConfig{ContextName: testContextName},
		)
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		go func() { _ = o.Serve(ctx) }()

		require.True(t, o.Run(ctx, domain.RunRequest{Code: "data a; run;", SessionID: "sess-1", Options: domain.RunOptions{Watch: true}}).OK())
		events, unsub, err := o.Events(jobID)
		require.NoError(t, err)
		t.Cleanup(unsub)

		first := <-events
		require.Contains(t, first.Data, `"state":"running"`)
		return o, cancel, events
	}

	terminal := func(t *testing.T, events <-chan Event) Event {
		for {
			select {
			case e := <-events:
				if e.Terminal {
					return e
				}
			case <-time.After(2 * time.Second):
				t.Fatal("no terminal event")
			}
		}
	}

	t.Run("cancel request", func(t *testing.T) {
		o, _, events := newRunningWatch(t, "job-c")
		o.Cancel(context.Background(), "job-c", "sess-1")

		e := terminal(t, events)
		assert.Equal(t, EventTypeStatus, e.Type)
		assert.Contains(t, e.Data, `"state":"cancelled"`)
	})

	t.Run("shutdown", func(t *testing.T) {
		_, shutdown, events := newRunningWatch(t, "job-s")
		shutdown()

		e := terminal(t, events)
		assert.Equal(t, EventTypeError, e.Type)
		assert.Contains(t, e.Data, `"error":"WatchAborted"`)
		assert.NotContains(t, e.Data, `"state":"cancelled"`)
	})
}
