package kernel

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/routers"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/manthysbr/viyaOS/internal/core/domain"
	"github.com/manthysbr/viyaOS/internal/core/services"
)

type Server struct {
	logger *slog.Logger
	orch   *services.Orchestrator
	chat   *services.ChatService
	router routers.Router
}

func NewServer(logger *slog.Logger, orch *services.Orchestrator, chat *services.ChatService) (*Server, error) {
	router, err := loadRouter()
	if err != nil {
		return nil, err
	}
	return &Server{
		logger: logger,
		orch:   orch,
		chat:   chat,
		router: router,
	}, nil
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/run", s.handleRun)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/results", s.handleResults)
	mux.HandleFunc("POST /api/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/table", s.handleTable)
	mux.HandleFunc("GET /api/context", s.handleContext)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/jobs/{job_id}/events", s.handleJobEvents)
	mux.HandleFunc("POST /chatbot", s.handleChat)

	return s.withRequestID(s.validateRequests(mux))
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req domain.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, TagInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	resp := s.orch.Run(r.Context(), req)
	writeJSON(w, statusFor(resp.Outcome), resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var (
		jobID, sessionID string
		wait             bool
	)
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, true, "job_id", query, &jobID); err != nil {
		writeFailure(w, http.StatusBadRequest, TagInvalidRequest, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "session_id", query, &sessionID); err != nil {
		writeFailure(w, http.StatusBadRequest, TagInvalidRequest, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "wait", query, &wait); err != nil {
		writeFailure(w, http.StatusBadRequest, TagInvalidRequest, err.Error())
		return
	}

	var resp domain.StatusResponse
	if wait {
		resp = s.orch.Wait(r.Context(), domain.JobID(jobID), domain.SessionID(sessionID))
	} else {
		resp = s.orch.Status(r.Context(), domain.JobID(jobID), domain.SessionID(sessionID))
	}
	writeJSON(w, statusFor(resp.Outcome), resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	var jobID, sessionID, library, tableName string
	query := r.URL.Query()
	for _, p := range []struct {
		name     string
		required bool
		dest     *string
	}{
		{"job_id", true, &jobID},
		{"session_id", false, &sessionID},
		{"library", false, &library},
		{"table_name", false, &tableName},
	} {
		if err := runtime.BindQueryParameter("form", true, p.required, p.name, query, p.dest); err != nil {
			writeFailure(w, http.StatusBadRequest, TagInvalidRequest, err.Error())
			return
		}
	}

	resp := s.orch.Results(r.Context(), domain.ResultsRequest{
		JobID:     domain.JobID(jobID),
		SessionID: domain.SessionID(sessionID),
		Library:   library,
		TableName: tableName,
	})
	writeJSON(w, statusFor(resp.Outcome), resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID     domain.JobID     `json:"job_id"`
		SessionID domain.SessionID `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, TagInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	resp := s.orch.Cancel(r.Context(), req.JobID, req.SessionID)
	writeJSON(w, statusFor(resp.Outcome), resp)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	var sessionID, library, tableName string
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "session_id", query, &sessionID); err != nil {
		writeFailure(w, http.StatusBadRequest, TagInvalidRequest, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "library", query, &library); err != nil {
		writeFailure(w, http.StatusBadRequest, TagInvalidRequest, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, true, "table_name", query, &tableName); err != nil {
		writeFailure(w, http.StatusBadRequest, TagInvalidRequest, err.Error())
		return
	}

	resp := s.orch.Table(r.Context(), domain.SessionID(sessionID), library, tableName)
	writeJSON(w, statusFor(resp.Outcome), resp)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if err := runtime.BindQueryParameter("form", true, true, "session_id", r.URL.Query(), &sessionID); err != nil {
		writeFailure(w, http.StatusBadRequest, TagInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Context(domain.SessionID(sessionID)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Health())
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, TagInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.chat.Chat(r.Context(), req))
}

// statusFor maps a failed outcome to an HTTP status. Caller input problems
// are client errors; remote failures are reported as a bad gateway.
func statusFor(o domain.Outcome) int {
	if o.OK() {
		return http.StatusOK
	}
	switch o.ErrorKind {
	case domain.TagMissingSessionID, domain.TagMissingJobID:
		return http.StatusBadRequest
	case domain.TagContextNotFound, domain.TagTableNotFound:
		return http.StatusNotFound
	case domain.TagJobSubmission:
		return http.StatusUnprocessableEntity
	case domain.TagPollTimeout:
		return http.StatusAccepted
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, tag, message string) {
	writeJSON(w, status, map[string]any{
		"state":   domain.JobStateFailed,
		"message": message,
		"error":   tag,
	})
}
