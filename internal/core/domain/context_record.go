package domain

import "time"

type ContextAction string

const (
	ContextActionRun    ContextAction = "run"
	ContextActionTable  ContextAction = "table"
	ContextActionCancel ContextAction = "cancel"
)

// ContextEvent is one entry in a session's chronological history.
type ContextEvent struct {
	ID     string        `json:"id"`
	Action ContextAction `json:"action"`
	Name   string        `json:"name,omitempty"`
	Code   string        `json:"code,omitempty"`
	JobID  JobID         `json:"job_id,omitempty"`
	Result *TableResult  `json:"result,omitempty"`
	At     time.Time     `json:"at"`
}

// SessionContextRecord is the conversational state kept per session. Values
// handed out by the store are snapshots; mutating them does not affect the store.
type SessionContextRecord struct {
	LastCode  *string                `json:"last_code"`
	LastTable *TableResult           `json:"last_table"`
	Tables    map[string]TableResult `json:"tables"`
	History   []ContextEvent         `json:"history"`
}

// EmptyContextRecord is what an unknown session id resolves to.
func EmptyContextRecord() SessionContextRecord {
	return SessionContextRecord{
		Tables:  map[string]TableResult{},
		History: []ContextEvent{},
	}
}
