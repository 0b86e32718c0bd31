// Package viya implements ports.ComputeGateway against the SAS Viya Compute
// REST API.
package viya

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/manthysbr/viyaOS/internal/core/domain"
	"github.com/manthysbr/viyaOS/internal/core/ports"
)

const (
	tracerName = "github.com/manthysbr/viyaOS/internal/adapters/viya"

	logLimit    = 100000
	rowLimit    = 100000
	columnLimit = 10000

	contentTypeJSON = "application/json"
)

type Gateway struct {
	logger  *slog.Logger
	creds   ports.CredentialProvider
	client  *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer

	resolve  singleflight.Group
	mu       sync.RWMutex
	contexts map[string]domain.ExecutionContextRef
}

// Ensure Gateway implements ComputeGateway
var _ ports.ComputeGateway = (*Gateway)(nil)

// Option customizes a Gateway.
type Option func(*Gateway)

// WithTracerProvider makes the gateway start its spans from tp instead of the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Gateway) { g.tracer = tp.Tracer(tracerName) }
}

// NewGateway creates a gateway. rps <= 0 disables outbound pacing.
func NewGateway(logger *slog.Logger, creds ports.CredentialProvider, client *http.Client, rps float64, opts ...Option) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	g := &Gateway{
		logger:   logger,
		creds:    creds,
		client:   client,
		limiter:  limiter,
		tracer:   otel.Tracer(tracerName),
		contexts: make(map[string]domain.ExecutionContextRef),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ResolveContext resolves a compute context name once; later calls are served
// from cache. Concurrent lookups for the same name share one remote call, which
// outlives any single caller's cancellation.
func (g *Gateway) ResolveContext(ctx context.Context, name string) (domain.ExecutionContextRef, error) {
	g.mu.RLock()
	ref, ok := g.contexts[name]
	g.mu.RUnlock()
	if ok {
		return ref, nil
	}

	ch := g.resolve.DoChan(name, func() (any, error) {
		ref, err := g.lookupContext(context.WithoutCancel(ctx), name)
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.contexts[name] = ref
		g.mu.Unlock()
		return ref, nil
	})

	select {
	case <-ctx.Done():
		return domain.ExecutionContextRef{}, &domain.GatewayError{Op: "resolve context", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return domain.ExecutionContextRef{}, res.Err
		}
		return res.Val.(domain.ExecutionContextRef), nil
	}
}

func (g *Gateway) lookupContext(ctx context.Context, name string) (domain.ExecutionContextRef, error) {
	query := url.Values{}
	query.Set("filter", fmt.Sprintf("eq(name,'%s')", strings.ReplaceAll(name, "'", "''")))

	var out contextCollection
	status, body, err := g.do(ctx, "resolve_context", http.MethodGet, "/compute/contexts", query, "", nil)
	if err != nil {
		return domain.ExecutionContextRef{}, err
	}
	if !isSuccess(status) {
		return domain.ExecutionContextRef{}, &domain.GatewayError{Op: "resolve context", StatusCode: status, Body: string(body)}
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.ExecutionContextRef{}, &domain.GatewayError{Op: "decode context lookup", Err: err}
	}
	if len(out.Items) == 0 {
		return domain.ExecutionContextRef{}, fmt.Errorf("%w: %q", domain.ErrContextNotFound, name)
	}

	g.logger.Debug("compute context resolved", "context_name", name, "context_id", out.Items[0].ID)
	return domain.ExecutionContextRef{Name: name, ID: out.Items[0].ID}, nil
}

func (g *Gateway) OpenSession(ctx context.Context, ref domain.ExecutionContextRef) (domain.Session, error) {
	payload := sessionRequest{
		Version:     1,
		Name:        "MCP",
		Description: "Session opened by the viyaOS orchestrator",
		Attributes:  map[string]any{},
		Environment: sessionEnvironment{Options: []string{"memsize=4g", "fullstimer"}},
	}

	path := "/compute/contexts/" + url.PathEscape(ref.ID) + "/sessions"
	status, body, err := g.do(ctx, "open_session", http.MethodPost, path, nil, contentTypeJSON, payload)
	if err != nil {
		return domain.Session{}, err
	}
	if !isSuccess(status) {
		return domain.Session{}, &domain.GatewayError{Op: "open session", StatusCode: status, Body: string(body)}
	}

	var out sessionResponse
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		return domain.Session{}, &domain.GatewayError{Op: "decode session", Body: string(body), Err: err}
	}

	g.logger.Info("compute session opened", "session_id", out.ID, "context_id", ref.ID)
	return domain.Session{ID: domain.SessionID(out.ID), ContextID: ref.ID}, nil
}

func (g *Gateway) SubmitJob(ctx context.Context, sessionID domain.SessionID, code string) (domain.Job, error) {
	payload := jobRequest{
		Version:     1,
		Name:        "mcp",
		Description: "Code submitted by the viyaOS orchestrator",
		Code:        code,
		Attributes:  map[string]any{"resetLogLineNumbers": true},
	}

	path := sessionPath(sessionID) + "/jobs"
	status, body, err := g.do(ctx, "submit_job", http.MethodPost, path, nil, contentTypeJSON, payload)
	if err != nil {
		return domain.Job{}, &domain.GatewayError{Op: "submit job", Kind: domain.ErrJobSubmission, Err: err}
	}
	if !isSuccess(status) {
		return domain.Job{}, &domain.GatewayError{Op: "submit job", StatusCode: status, Body: string(body), Kind: domain.ErrJobSubmission}
	}

	job, err := decodeJob(body, sessionID)
	if err != nil {
		return domain.Job{}, &domain.GatewayError{Op: "decode job", Body: string(body), Kind: domain.ErrJobSubmission, Err: err}
	}

	g.logger.Info("job submitted", "job_id", job.ID, "session_id", sessionID, "state", job.State)
	return job, nil
}

func (g *Gateway) FetchJob(ctx context.Context, sessionID domain.SessionID, jobID domain.JobID) (domain.Job, error) {
	status, body, err := g.do(ctx, "fetch_job", http.MethodGet, jobPath(sessionID, jobID), nil, "", nil)
	if err != nil {
		return domain.Job{}, err
	}
	if !isSuccess(status) {
		return domain.Job{}, &domain.GatewayError{Op: "fetch job state", StatusCode: status, Body: string(body)}
	}

	job, err := decodeJob(body, sessionID)
	if err != nil {
		return domain.Job{}, &domain.GatewayError{Op: "decode job", Body: string(body), Err: err}
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return job, nil
}

func (g *Gateway) FetchLog(ctx context.Context, sessionID domain.SessionID, jobID domain.JobID) (string, error) {
	query := url.Values{"limit": []string{fmt.Sprint(logLimit)}}
	status, body, err := g.do(ctx, "fetch_log", http.MethodGet, jobPath(sessionID, jobID)+"/log", query, "", nil)
	if err != nil {
		return "", err
	}
	if !isSuccess(status) {
		return "", &domain.GatewayError{Op: "fetch log", StatusCode: status, Body: string(body)}
	}

	var out logCollection
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &domain.GatewayError{Op: "decode log", Err: err}
	}

	lines := make([]string, 0, len(out.Items))
	for _, item := range out.Items {
		lines = append(lines, item.Line)
	}
	return strings.Join(lines, "\n"), nil
}

func (g *Gateway) FetchListing(ctx context.Context, sessionID domain.SessionID, jobID domain.JobID) ([]domain.ListingItem, error) {
	query := url.Values{"limit": []string{fmt.Sprint(logLimit)}}
	status, body, err := g.do(ctx, "fetch_listing", http.MethodGet, jobPath(sessionID, jobID)+"/results", query, "", nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, &domain.GatewayError{Op: "fetch listing", StatusCode: status, Body: string(body)}
	}

	listing := []domain.ListingItem{}
	if len(bytes.TrimSpace(body)) == 0 {
		return listing, nil
	}

	var out listingCollection
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &domain.GatewayError{Op: "decode listing", Err: err}
	}
	for _, item := range out.Items {
		listing = append(listing, domain.ListingItem(item))
	}
	return listing, nil
}

// FetchTable reads column metadata and then rows. Library and table names are
// upper-cased here, the only place the engine's naming convention leaks in.
func (g *Gateway) FetchTable(ctx context.Context, sessionID domain.SessionID, ref domain.TableRef) (table domain.TableResult, err error) {
	ctx, span := g.tracer.Start(ctx, "viya.fetch_table", trace.WithAttributes(
		attribute.String("viya.session_id", string(sessionID)),
		attribute.String("viya.library", ref.Library),
		attribute.String("viya.table", ref.Name),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, domain.ErrorTag(err))
		} else {
			span.SetAttributes(attribute.Int("viya.rows", len(table.Rows)))
		}
		span.End()
	}()

	base := sessionPath(sessionID) + "/data/" +
		url.PathEscape(strings.ToUpper(ref.Library)) + "/" +
		url.PathEscape(strings.ToUpper(ref.Name))

	status, body, err := g.do(ctx, "fetch_columns", http.MethodGet, base+"/columns",
		url.Values{"limit": []string{fmt.Sprint(columnLimit)}}, "", nil)
	if err != nil {
		return domain.TableResult{}, err
	}
	if !isSuccess(status) {
		return domain.TableResult{}, &domain.GatewayError{Op: "fetch columns", StatusCode: status, Body: string(body), Kind: domain.ErrTableNotFound}
	}
	var cols columnCollection
	if err := json.Unmarshal(body, &cols); err != nil {
		return domain.TableResult{}, &domain.GatewayError{Op: "decode columns", Err: err}
	}

	status, body, err = g.do(ctx, "fetch_rows", http.MethodGet, base+"/rows",
		url.Values{"limit": []string{fmt.Sprint(rowLimit)}}, "", nil)
	if err != nil {
		return domain.TableResult{}, err
	}
	if !isSuccess(status) {
		return domain.TableResult{}, &domain.GatewayError{Op: "fetch rows", StatusCode: status, Body: string(body), Kind: domain.ErrTableNotFound}
	}
	var rows rowCollection
	if err := json.Unmarshal(body, &rows); err != nil {
		return domain.TableResult{}, &domain.GatewayError{Op: "decode rows", Err: err}
	}

	columns := make([]string, 0, len(cols.Items))
	for _, c := range cols.Items {
		columns = append(columns, c.Name)
	}
	cells := make([][]any, 0, len(rows.Items))
	for _, r := range rows.Items {
		cells = append(cells, r.Cells)
	}

	table, err = domain.NewTableResult(columns, cells)
	if err != nil {
		return domain.TableResult{}, fmt.Errorf("%s.%s: %w", ref.Library, ref.Name, err)
	}
	return table, nil
}

// do performs one authenticated round trip and returns status and raw body.
// Transport failures come back as *domain.GatewayError.
func (g *Gateway) do(ctx context.Context, op, method, path string, query url.Values, contentType string, payload any) (int, []byte, error) {
	ctx, span := g.tracer.Start(ctx, "viya."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("viya.op", op),
			attribute.String("http.method", method),
			attribute.String("viya.path", path),
		),
	)
	defer span.End()

	status, body, err := g.roundTrip(ctx, op, method, path, query, contentType, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote call failed")
		return 0, nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if !isSuccess(status) {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	return status, body, nil
}

func (g *Gateway) roundTrip(ctx context.Context, op, method, path string, query url.Values, contentType string, payload any) (int, []byte, error) {
	token, err := g.creds.Token(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", op, err)
	}

	target := strings.TrimRight(g.creds.ServerURL(), "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: encode payload: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, &domain.GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", contentTypeJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return 0, nil, &domain.GatewayError{Op: op, Err: err}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, &domain.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if !isSuccess(resp.StatusCode) {
		g.logger.Warn("remote call rejected", "op", op, "status", resp.StatusCode)
	}
	return resp.StatusCode, body, nil
}

func decodeJob(body []byte, sessionID domain.SessionID) (domain.Job, error) {
	var out jobResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.Job{}, err
	}
	job := domain.Job{
		ID:        domain.JobID(out.ID),
		SessionID: sessionID,
		State:     domain.ParseJobState(out.State),
	}
	if out.ConditionCode != nil {
		job.ConditionCode = *out.ConditionCode
	}
	return job, nil
}

func sessionPath(id domain.SessionID) string {
	return "/compute/sessions/" + url.PathEscape(string(id))
}

func jobPath(sessionID domain.SessionID, jobID domain.JobID) string {
	return sessionPath(sessionID) + "/jobs/" + url.PathEscape(string(jobID))
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
