package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/manthysbr/viyaOS/internal/core/domain"
	"github.com/manthysbr/viyaOS/internal/core/ports"
)

// Version is reported by health.
const Version = "1.0.0"

// Stage tags for run failures.
const (
	RunErrNoContext     = "no compute context"
	RunErrCreateSession = "failed create session"
	RunErrSubmitJob     = "failed submit job"
)

const defaultLibrary = "work"

// OrchestratorConfig holds the facade's static settings.
type OrchestratorConfig struct {
	ContextName string
}

// Orchestrator is the single entry point for run, status, results, cancel,
// table, context and health. Remote failures never leave it as Go errors;
// every call returns an envelope with state, message and error.
type Orchestrator struct {
	logger    *slog.Logger
	gateway   ports.ComputeGateway
	poller    *JobPoller
	assembler *ResultAssembler
	store     *ContextStore
	rewriter  *Rewriter
	watches   *WatchScheduler
	events    *EventBus
	cfg       OrchestratorConfig
}

func NewOrchestrator(
	logger *slog.Logger,
	gateway ports.ComputeGateway,
	poller *JobPoller,
	assembler *ResultAssembler,
	store *ContextStore,
	rewriter *Rewriter,
	watches *WatchScheduler,
	events *EventBus,
	cfg OrchestratorConfig,
) *Orchestrator {
	return &Orchestrator{
		logger:    logger,
		gateway:   gateway,
		poller:    poller,
		assembler: assembler,
		store:     store,
		rewriter:  rewriter,
		watches:   watches,
		events:    events,
		cfg:       cfg,
	}
}

// Serve runs the background watch loop until ctx is done.
func (o *Orchestrator) Serve(ctx context.Context) error {
	if o.watches != nil {
		o.watches.Start(ctx, o.watch)
	}
	<-ctx.Done()
	return nil
}

// Run opens a session when none is given, rewrites the code against the
// session's context record and submits it.
func (o *Orchestrator) Run(ctx context.Context, req domain.RunRequest) domain.RunResponse {
	resp := domain.RunResponse{
		SessionID: req.SessionID,
		State:     domain.JobStateFailed,
		Listing:   []domain.ListingItem{},
	}
	resp.ConditionCode = domain.ConditionCodeLocalFailure

	if resp.SessionID == "" {
		contextName := req.Options.ContextName
		if contextName == "" {
			contextName = o.cfg.ContextName
		}

		ref, err := o.gateway.ResolveContext(ctx, contextName)
		if err != nil {
			msg := "Failed to get compute context: " + domain.RemoteMessage(err)
			if errors.Is(err, domain.ErrContextNotFound) {
				msg = "No compute context found for " + contextName
			}
			o.logger.Error("run failed", "stage", RunErrNoContext, "context_name", contextName, "error", err)
			resp.Fail(RunErrNoContext, domain.ErrorTag(err), msg)
			return resp
		}

		session, err := o.gateway.OpenSession(ctx, ref)
		if err != nil {
			o.logger.Error("run failed", "stage", RunErrCreateSession, "context_id", ref.ID, "error", err)
			resp.Fail(RunErrCreateSession, domain.ErrorTag(err), "Failed to create session: "+domain.RemoteMessage(err))
			return resp
		}
		resp.SessionID = session.ID
	}

	code := o.rewriter.Rewrite(o.store.Snapshot(resp.SessionID), req.Code)
	if code != req.Code {
		o.logger.Info("code rewritten from context", "session_id", resp.SessionID)
	}

	job, err := o.gateway.SubmitJob(ctx, resp.SessionID, code)
	if err != nil {
		o.logger.Error("run failed", "stage", RunErrSubmitJob, "session_id", resp.SessionID, "error", err)
		resp.Fail(RunErrSubmitJob, domain.ErrorTag(err), "Failed to submit job: "+domain.RemoteMessage(err))
		return resp
	}
	o.store.RecordRun(resp.SessionID, code, job.ID)

	resp.JobID = job.ID
	resp.State = job.State
	resp.ConditionCode = job.ConditionCode
	resp.Message = "Job submitted"

	if req.Options.Watch && o.watches != nil {
		if err := o.watches.Submit(WatchRequest{SessionID: resp.SessionID, JobID: job.ID}); err != nil {
			o.logger.Warn("watch not scheduled", "job_id", job.ID, "error", err)
			resp.Message = "Job submitted; background watch not scheduled: " + err.Error()
		}
	}
	return resp
}

// Status performs a single state read.
func (o *Orchestrator) Status(ctx context.Context, jobID domain.JobID, sessionID domain.SessionID) domain.StatusResponse {
	resp := domain.StatusResponse{JobID: jobID, SessionID: sessionID, State: domain.JobStateFailed}
	if err := requireIDs(jobID, sessionID); err != nil {
		resp.Fail(domain.ErrorTag(err), domain.ErrorTag(err), err.Error())
		return resp
	}

	job, err := o.gateway.FetchJob(ctx, sessionID, jobID)
	if err != nil {
		o.logger.Warn("status read failed", "job_id", jobID, "session_id", sessionID, "error", err)
		resp.Fail(domain.ErrorTag(err), domain.ErrorTag(err), domain.RemoteMessage(err))
		return resp
	}

	resp.State = job.State
	resp.ConditionCode = job.ConditionCode
	resp.Message = "Job is " + string(job.State)
	return resp
}

// Wait polls until the job is terminal or the poll budget is spent. A spent
// budget reports state "timeout" with error PollTimeout.
func (o *Orchestrator) Wait(ctx context.Context, jobID domain.JobID, sessionID domain.SessionID) domain.StatusResponse {
	resp := domain.StatusResponse{JobID: jobID, SessionID: sessionID, State: domain.JobStateFailed}
	if err := requireIDs(jobID, sessionID); err != nil {
		resp.Fail(domain.ErrorTag(err), domain.ErrorTag(err), err.Error())
		return resp
	}

	job, err := o.poller.Poll(ctx, sessionID, jobID, nil)
	switch {
	case errors.Is(err, domain.ErrPollTimeout):
		resp.State = domain.JobStateTimeout
		resp.ConditionCode = job.ConditionCode
		resp.Fail(domain.TagPollTimeout, domain.TagPollTimeout, err.Error())
	case err != nil:
		resp.Fail(domain.ErrorTag(err), domain.ErrorTag(err), domain.RemoteMessage(err))
	default:
		resp.State = job.State
		resp.ConditionCode = job.ConditionCode
		resp.Message = "Job is " + string(job.State)
	}
	return resp
}

// Results assembles the job's artifacts. A failed artifact is reported per
// artifact; the bundle fails as a whole only when nothing could be fetched.
func (o *Orchestrator) Results(ctx context.Context, req domain.ResultsRequest) domain.ResultsResponse {
	resp := domain.ResultsResponse{JobID: req.JobID, SessionID: req.SessionID, Listing: []domain.ListingItem{}}
	if err := requireIDs(req.JobID, req.SessionID); err != nil {
		resp.Fail(domain.ErrorTag(err), domain.ErrorTag(err), err.Error())
		return resp
	}

	var ref *domain.TableRef
	if req.TableName != "" {
		ref = &domain.TableRef{Library: libraryOrDefault(req.Library), Name: req.TableName}
	}

	bundle := o.assembler.Assemble(ctx, req.SessionID, req.JobID, ref)
	resp.Log = bundle.Log
	resp.Listing = bundle.Listing
	resp.Data = bundle.Table
	resp.Answer = bundle.Answer
	resp.ArtifactErrors = bundle.Errors

	attempted := 2
	if ref != nil {
		attempted++
	}
	switch n := len(bundle.Errors); {
	case n == 0:
		resp.Message = "Results retrieved"
	case n < attempted:
		resp.Message = fmt.Sprintf("Results retrieved; %d of %d artifacts failed", n, attempted)
	default:
		resp.Fail(domain.TagGateway, domain.TagGateway, "No artifact could be retrieved: "+bundle.Errors[domain.ArtifactLog])
	}
	return resp
}

// Cancel records the request and stops any background watch. The engine is
// not asked to stop the job, so the reported state does not confirm it stopped.
func (o *Orchestrator) Cancel(ctx context.Context, jobID domain.JobID, sessionID domain.SessionID) domain.StatusResponse {
	resp := domain.StatusResponse{JobID: jobID, SessionID: sessionID, State: domain.JobStateFailed}
	if jobID == "" {
		resp.Fail(domain.TagMissingJobID, domain.TagMissingJobID, domain.ErrMissingJobID.Error())
		return resp
	}

	if o.watches != nil && o.watches.Stop(jobID) {
		o.logger.Info("background watch stopped", "job_id", jobID)
	}
	if sessionID != "" {
		o.store.RecordCancel(sessionID, jobID)
	}

	resp.State = domain.JobStateCancelRequested
	resp.Message = "Cancellation recorded; remote termination is not confirmed"
	return resp
}

// Table fetches a table and writes it through to the session's context.
func (o *Orchestrator) Table(ctx context.Context, sessionID domain.SessionID, library, tableName string) domain.TableResponse {
	resp := domain.TableResponse{Columns: []string{}, Rows: [][]any{}}
	if sessionID == "" {
		resp.Fail(domain.TagMissingSessionID, domain.TagMissingSessionID, domain.ErrMissingSessionID.Error())
		return resp
	}
	ref := domain.TableRef{Library: libraryOrDefault(library), Name: tableName}
	if strings.TrimSpace(tableName) == "" {
		resp.Fail(domain.TagTableNotFound, domain.TagTableNotFound, "table name is empty")
		return resp
	}

	table, err := o.gateway.FetchTable(ctx, sessionID, ref)
	if err != nil {
		o.logger.Warn("table fetch failed", "session_id", sessionID, "library", ref.Library, "table", ref.Name, "error", err)
		tag := domain.ErrorTag(err)
		msg := fmt.Sprintf("Failed to fetch table %s.%s: %s", ref.Library, ref.Name, domain.RemoteMessage(err))
		if tag == domain.TagTableNotFound {
			msg = fmt.Sprintf("Table %s.%s not found", ref.Library, ref.Name)
		}
		resp.Fail(tag, tag, msg)
		return resp
	}

	o.store.RecordTable(sessionID, tableName, table)
	resp.Columns = table.Columns
	resp.Rows = table.Rows
	resp.Message = "Table retrieved"
	return resp
}

// Context exposes a session's record. Unknown sessions yield an empty record.
func (o *Orchestrator) Context(sessionID domain.SessionID) domain.ContextResponse {
	rec := o.store.Snapshot(sessionID)
	return domain.ContextResponse{
		SessionID:  sessionID,
		History:    rec.History,
		Variables:  rec.Tables,
		LastResult: rec.LastTable,
		LastCode:   rec.LastCode,
	}
}

// Health is answered locally.
func (o *Orchestrator) Health() domain.HealthResponse {
	return domain.HealthResponse{
		Status:  "ok",
		Version: Version,
		Message: "Orchestrator is running",
	}
}

// Events subscribes to background watch events for a job. The latest event is
// replayed first, so a finished watch yields its terminal event at once. Jobs
// that never had a watch fail with domain.ErrWatchNotFound.
func (o *Orchestrator) Events(jobID domain.JobID) (<-chan Event, func(), error) {
	ch, unsub := o.events.Subscribe(jobID)
	// A watch publishes its last event before it leaves the scheduler, so
	// checking the scheduler first leaves no gap.
	if o.watches != nil && o.watches.Watching(jobID) {
		return ch, unsub, nil
	}
	if o.events.Seen(jobID) {
		return ch, unsub, nil
	}
	unsub()
	return nil, func() {}, fmt.Errorf("%w: %s", domain.ErrWatchNotFound, jobID)
}

func (o *Orchestrator) watch(ctx context.Context, req WatchRequest) {
	o.logger.Info("watching job", "job_id", req.JobID, "session_id", req.SessionID)

	var last domain.Job
	job, err := o.poller.Poll(ctx, req.SessionID, req.JobID, func(j domain.Job) {
		if j.State != last.State {
			o.events.PublishStatus(j)
		}
		last = j
	})
	switch {
	case err == nil:
	case errors.Is(context.Cause(ctx), ErrWatchStopped):
		job.State = domain.JobStateCancelRequested
		o.events.PublishStatus(job)
	case errors.Is(err, context.Canceled):
		o.logger.Warn("watch interrupted", "job_id", req.JobID, "error", context.Cause(ctx))
		o.events.PublishError(job, fmt.Errorf("%w: %w", domain.ErrWatchAborted, err))
	default:
		o.logger.Warn("watch ended without terminal state", "job_id", req.JobID, "error", err)
		o.events.PublishError(job, err)
	}
}

func requireIDs(jobID domain.JobID, sessionID domain.SessionID) error {
	if sessionID == "" {
		return domain.ErrMissingSessionID
	}
	if jobID == "" {
		return domain.ErrMissingJobID
	}
	return nil
}

func libraryOrDefault(library string) string {
	if strings.TrimSpace(library) == "" {
		return defaultLibrary
	}
	return library
}
