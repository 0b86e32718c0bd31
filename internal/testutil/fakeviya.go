// Package testutil provides an in-process stand-in for the SAS Viya Compute
// REST API. It evaluates simple data steps (numeric assignments, output, put)
// so end-to-end tests can run without a real engine.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

var filterPattern = regexp.MustCompile(`^eq\(name,'(.*)'\)$`)

// Engine is a fake compute engine served over httptest.
type Engine struct {
	Token string

	mu           sync.Mutex
	contexts     map[string]string // name -> id
	sessions     map[string]*session
	runningPolls int
	requests     map[string]int

	server *httptest.Server
}

type session struct {
	jobs   map[string]*job
	tables map[string]table // "LIB.NAME"
}

type job struct {
	state         string
	conditionCode int
	remaining     int
	log           []string
	listing       []map[string]any
}

type table struct {
	Columns []string
	Rows    [][]any
}

type Option func(*Engine)

// WithContext registers an extra compute context.
func WithContext(name string) Option {
	return func(e *Engine) { e.contexts[name] = uuid.NewString() }
}

// WithRunningPolls sets how many state reads report "running" before a job
// reaches its final state.
func WithRunningPolls(n int) Option {
	return func(e *Engine) { e.runningPolls = n }
}

// NewEngine starts a fake engine that knows the "SAS Studio compute context".
// It is shut down when the test ends.
func NewEngine(t testing.TB, opts ...Option) *Engine {
	t.Helper()
	e := &Engine{
		Token:        "test-token",
		contexts:     map[string]string{"SAS Studio compute context": uuid.NewString()},
		sessions:     map[string]*session{},
		runningPolls: 1,
		requests:     map[string]int{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.server = httptest.NewServer(e.routes())
	t.Cleanup(e.server.Close)
	return e
}

func (e *Engine) URL() string { return e.server.URL }

// Client returns an HTTP client for the fake server.
func (e *Engine) Client() *http.Client { return e.server.Client() }

// Credentials returns a provider carrying the engine's token and URL.
func (e *Engine) Credentials() Credentials {
	return Credentials{URL: e.server.URL, Secret: e.Token}
}

// Requests reports how many requests hit the named route.
func (e *Engine) Requests(route string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[route]
}

// Credentials is a fixed bearer token and base URL.
type Credentials struct {
	URL    string
	Secret string
}

func (c Credentials) Token(ctx context.Context) (string, error) { return c.Secret, nil }
func (c Credentials) ServerURL() string                         { return c.URL }

func (e *Engine) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /compute/contexts", e.handleContexts)
	mux.HandleFunc("POST /compute/contexts/{contextID}/sessions", e.handleCreateSession)
	mux.HandleFunc("POST /compute/sessions/{sessionID}/jobs", e.handleSubmit)
	mux.HandleFunc("GET /compute/sessions/{sessionID}/jobs/{jobID}", e.handleJobState)
	mux.HandleFunc("GET /compute/sessions/{sessionID}/jobs/{jobID}/log", e.handleLog)
	mux.HandleFunc("GET /compute/sessions/{sessionID}/jobs/{jobID}/results", e.handleListing)
	mux.HandleFunc("GET /compute/sessions/{sessionID}/data/{library}/{table}/columns", e.handleColumns)
	mux.HandleFunc("GET /compute/sessions/{sessionID}/data/{library}/{table}/rows", e.handleRows)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+e.Token {
			http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		_, pattern := mux.Handler(r)
		e.mu.Lock()
		e.requests[pattern]++
		e.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

func (e *Engine) handleContexts(w http.ResponseWriter, r *http.Request) {
	items := []map[string]any{}
	m := filterPattern.FindStringSubmatch(r.URL.Query().Get("filter"))

	e.mu.Lock()
	for name, id := range e.contexts {
		if m == nil || m[1] == name {
			items = append(items, map[string]any{"id": id, "name": name})
		}
	}
	e.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (e *Engine) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	contextID := r.PathValue("contextID")

	e.mu.Lock()
	defer e.mu.Unlock()
	known := false
	for _, id := range e.contexts {
		known = known || id == contextID
	}
	if !known {
		http.Error(w, `{"message":"context not found"}`, http.StatusNotFound)
		return
	}

	id := uuid.NewString()
	e.sessions[id] = &session{jobs: map[string]*job{}, tables: map[string]table{}}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "state": "idle"})
}

func (e *Engine) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"message":"invalid body"}`, http.StatusBadRequest)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[r.PathValue("sessionID")]
	if !ok {
		http.Error(w, `{"message":"session not found"}`, http.StatusNotFound)
		return
	}

	j := run(req.Code, sess)
	j.remaining = e.runningPolls
	id := uuid.NewString()
	sess.jobs[id] = j
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "state": "pending", "conditionCode": 0})
}

func (e *Engine) handleJobState(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.lookupJob(w, r)
	if !ok {
		return
	}

	state := j.state
	if j.remaining > 0 {
		j.remaining--
		state = "running"
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("jobID"), "state": state, "conditionCode": j.conditionCode})
}

func (e *Engine) handleLog(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.lookupJob(w, r)
	if !ok {
		return
	}

	items := make([]map[string]any, 0, len(j.log))
	for _, line := range j.log {
		items = append(items, map[string]any{"line": line, "type": "normal"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (e *Engine) handleListing(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": j.listing})
}

func (e *Engine) handleColumns(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.lookupTable(w, r)
	if !ok {
		return
	}

	items := make([]map[string]any, 0, len(t.Columns))
	for i, c := range t.Columns {
		items = append(items, map[string]any{"name": c, "index": i})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (e *Engine) handleRows(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.lookupTable(w, r)
	if !ok {
		return
	}

	items := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		items = append(items, map[string]any{"cells": row})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (e *Engine) lookupJob(w http.ResponseWriter, r *http.Request) (*job, bool) {
	sess, ok := e.sessions[r.PathValue("sessionID")]
	if !ok {
		http.Error(w, `{"message":"session not found"}`, http.StatusNotFound)
		return nil, false
	}
	j, ok := sess.jobs[r.PathValue("jobID")]
	if !ok {
		http.Error(w, `{"message":"job not found"}`, http.StatusNotFound)
		return nil, false
	}
	return j, true
}

func (e *Engine) lookupTable(w http.ResponseWriter, r *http.Request) (table, bool) {
	sess, ok := e.sessions[r.PathValue("sessionID")]
	if !ok {
		http.Error(w, `{"message":"session not found"}`, http.StatusNotFound)
		return table{}, false
	}
	key := r.PathValue("library") + "." + r.PathValue("table")
	t, ok := sess.tables[key]
	if !ok {
		http.Error(w, fmt.Sprintf(`{"message":"table %s not found"}`, key), http.StatusNotFound)
		return table{}, false
	}
	return t, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// SeedTable stores a table directly in a session, for tests that only read.
func (e *Engine) SeedTable(sessionID, library, name string, columns []string, rows [][]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[sessionID]
	if !ok {
		sess = &session{jobs: map[string]*job{}, tables: map[string]table{}}
		e.sessions[sessionID] = sess
	}
	sess.tables[strings.ToUpper(library)+"."+strings.ToUpper(name)] = table{Columns: columns, Rows: rows}
}
