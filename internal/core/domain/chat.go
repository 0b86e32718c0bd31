package domain

// MathEngine selects where arithmetic prompts are evaluated.
type MathEngine string

const (
	MathEngineLocal MathEngine = "local"
	MathEngineSAS   MathEngine = "sas"
)

type ChatRequest struct {
	Prompt     string     `json:"prompt"`
	SessionID  SessionID  `json:"session_id,omitempty"`
	Library    string     `json:"library,omitempty"`
	TableName  string     `json:"table_name,omitempty"`
	MathEngine MathEngine `json:"math_engine,omitempty"`
}

// ChatTable is one requested table. A failed fetch has empty columns and rows,
// Error set and the reason in Message.
type ChatTable struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Message string   `json:"message"`
	Error   bool     `json:"error"`
}

type ChatResponse struct {
	JobID     *JobID               `json:"job_id"`
	SessionID *SessionID           `json:"session_id"`
	State     JobState             `json:"state"`
	Tables    map[string]ChatTable `json:"tables"`
	Log       string               `json:"log"`
	Answer    *string              `json:"answer,omitempty"`
	Error     *string              `json:"error"`
	Type      string               `json:"type"`
}
