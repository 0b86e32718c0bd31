package domain

// SessionID is the opaque identifier the compute engine hands out on session
// creation. It is used verbatim on every later call.
type SessionID string

// ExecutionContextRef is a compute context name resolved to its remote id.
type ExecutionContextRef struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Session is a stateful execution environment inside a compute context.
type Session struct {
	ID        SessionID `json:"id"`
	ContextID string    `json:"context_id"`
}
