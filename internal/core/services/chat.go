package services

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/manthysbr/viyaOS/internal/core/domain"
	"github.com/manthysbr/viyaOS/internal/core/ports"
)

var tablesLinePattern = regexp.MustCompile(`(?i)Tables:\s*(.*)`)

// defaultChatTables are fetched when a code prompt names no table. Missing
// ones come back as per-table errors.
var defaultChatTables = []string{"results", "results1", "results2"}

// ChatService answers a free-form prompt: classify, then either sum locally or
// run through the orchestrator, wait, and fetch the requested tables.
type ChatService struct {
	logger     *slog.Logger
	classifier ports.Classifier
	orch       *Orchestrator
}

func NewChatService(logger *slog.Logger, classifier ports.Classifier, orch *Orchestrator) *ChatService {
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	return &ChatService{logger: logger, classifier: classifier, orch: orch}
}

func (c *ChatService) Chat(ctx context.Context, req domain.ChatRequest) domain.ChatResponse {
	tables := requestedTables(req)
	library := libraryOrDefault(req.Library)

	kind, err := c.classifier.Classify(ctx, req.Prompt)
	if err != nil {
		c.logger.Warn("classification failed, treating prompt as code", "error", err)
		kind = ports.PromptKindSAS
	}

	engine := domain.MathEngine(strings.ToLower(string(req.MathEngine)))
	if engine == "" {
		engine = domain.MathEngineLocal
	}
	if kind == ports.PromptKindMath && engine == domain.MathEngineLocal {
		return localSum(req, tables[0])
	}
	if kind == ports.PromptKindMath && req.TableName == "" {
		tables = defaultChatTables[:1]
	}

	resp := domain.ChatResponse{
		State:  domain.JobStateFailed,
		Tables: map[string]domain.ChatTable{},
		Type:   string(ports.PromptKindSAS),
	}

	code := strings.TrimSpace(tablesLinePattern.ReplaceAllString(req.Prompt, ""))
	run := c.orch.Run(ctx, domain.RunRequest{Code: code, SessionID: req.SessionID})
	if !run.OK() {
		resp.Error = run.Error
		resp.Log = run.Message
		if run.SessionID != "" {
			sid := run.SessionID
			resp.SessionID = &sid
		}
		return resp
	}
	jobID, sessionID := run.JobID, run.SessionID
	resp.JobID = &jobID
	resp.SessionID = &sessionID

	status := c.orch.Wait(ctx, jobID, sessionID)
	resp.State = status.State
	if !status.OK() {
		resp.Error = status.Error
	}

	results := c.orch.Results(ctx, domain.ResultsRequest{JobID: jobID, SessionID: sessionID})
	resp.Log = results.Log
	resp.Answer = results.Answer

	for _, name := range tables {
		t := c.orch.Table(ctx, sessionID, library, name)
		if !t.OK() {
			resp.Tables[name] = domain.ChatTable{Columns: []string{}, Rows: [][]any{}, Message: t.Message, Error: true}
			continue
		}
		resp.Tables[name] = domain.ChatTable{Columns: t.Columns, Rows: t.Rows, Message: t.Message}
	}

	c.logger.Info("chat prompt answered", "job_id", jobID, "session_id", sessionID, "state", resp.State, "tables", len(tables))
	return resp
}

// requestedTables honours table_name, then a "Tables: a, b" line in the
// prompt, then the default.
func requestedTables(req domain.ChatRequest) []string {
	if req.TableName != "" {
		return []string{req.TableName}
	}
	if m := tablesLinePattern.FindStringSubmatch(req.Prompt); m != nil {
		var out []string
		for _, t := range strings.Split(m[1], ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return append([]string(nil), defaultChatTables...)
}

// localSum adds the signed terms of the prompt. Integral totals are reported
// as integers.
func localSum(req domain.ChatRequest, table string) domain.ChatResponse {
	text := strings.TrimSpace(tablesLinePattern.ReplaceAllString(req.Prompt, ""))
	var total float64
	for _, n := range sumOperands(text) {
		v, err := strconv.ParseFloat(n, 64)
		if err != nil {
			continue
		}
		total += v
	}
	var cell any = total
	if total == math.Trunc(total) && math.Abs(total) < 1<<53 {
		cell = int64(total)
	}

	resp := domain.ChatResponse{
		State: domain.JobStateCompleted,
		Tables: map[string]domain.ChatTable{
			table: {Columns: []string{"x"}, Rows: [][]any{{cell}}, Message: "Computed locally"},
		},
		Type: string(ports.PromptKindMath),
	}
	if req.SessionID != "" {
		sid := req.SessionID
		resp.SessionID = &sid
	}
	return resp
}
