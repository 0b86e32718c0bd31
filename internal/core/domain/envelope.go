package domain

// Outcome is carried by every facade response. A nil Error means success even
// when Message is informational. ErrorKind is the taxonomy tag of the cause
// when Error holds a stage tag instead.
type Outcome struct {
	Message   string  `json:"message"`
	Error     *string `json:"error"`
	ErrorKind string  `json:"error_kind,omitempty"`
}

// Fail marks the outcome as failed with a stable tag and readable message.
func (o *Outcome) Fail(tag, kind, message string) {
	o.Error = &tag
	o.ErrorKind = kind
	o.Message = message
}

func (o Outcome) OK() bool {
	return o.Error == nil
}

// RunOptions tune a single run call.
type RunOptions struct {
	// Watch schedules a background poll that publishes state changes.
	Watch bool `json:"watch,omitempty"`
	// ContextName overrides the configured compute context for a new session.
	ContextName string `json:"context_name,omitempty"`
}

type RunRequest struct {
	Code      string     `json:"code"`
	SessionID SessionID  `json:"session_id,omitempty"`
	Options   RunOptions `json:"options,omitempty"`
}

type RunResponse struct {
	JobID         JobID         `json:"job_id"`
	SessionID     SessionID     `json:"session_id"`
	State         JobState      `json:"state"`
	ConditionCode int           `json:"condition_code"`
	Log           string        `json:"log"`
	Listing       []ListingItem `json:"listing"`
	Data          *TableResult  `json:"data"`
	Outcome
}

// StatusResponse is returned by status, cancel and wait.
type StatusResponse struct {
	JobID         JobID     `json:"job_id"`
	SessionID     SessionID `json:"session_id"`
	State         JobState  `json:"state"`
	ConditionCode int       `json:"condition_code"`
	Outcome
}

type ResultsRequest struct {
	JobID     JobID     `json:"job_id"`
	SessionID SessionID `json:"session_id"`
	Library   string    `json:"library,omitempty"`
	TableName string    `json:"table_name,omitempty"`
}

type ResultsResponse struct {
	JobID          JobID               `json:"job_id"`
	SessionID      SessionID           `json:"session_id"`
	Log            string              `json:"log"`
	Listing        []ListingItem       `json:"listing"`
	Data           *TableResult        `json:"data"`
	Answer         *string             `json:"answer"`
	ArtifactErrors map[Artifact]string `json:"artifact_errors,omitempty"`
	Outcome
}

type TableResponse struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Outcome
}

type ContextResponse struct {
	SessionID  SessionID              `json:"session_id"`
	History    []ContextEvent         `json:"history"`
	Variables  map[string]TableResult `json:"variables"`
	LastResult *TableResult           `json:"last_result"`
	LastCode   *string                `json:"last_code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Message string `json:"message"`
}
