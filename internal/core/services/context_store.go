package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

// ContextStore keeps one SessionContextRecord per session id. The map lock is
// only held to find or create an entry; all record access goes through the
// entry's own lock, so unrelated sessions never wait on each other.
type ContextStore struct {
	mu           sync.RWMutex
	entries      map[domain.SessionID]*contextEntry
	historyLimit int
	now          func() time.Time
}

type contextEntry struct {
	mu     sync.Mutex
	record domain.SessionContextRecord
}

func NewContextStore(historyLimit int) *ContextStore {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &ContextStore{
		entries:      make(map[domain.SessionID]*contextEntry),
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

func (s *ContextStore) entry(id domain.SessionID) *contextEntry {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e
	}
	e = &contextEntry{record: domain.EmptyContextRecord()}
	s.entries[id] = e
	return e
}

// Update runs fn with exclusive access to the session's record. The record is
// created on first touch. History is trimmed to the limit after fn returns.
func (s *ContextStore) Update(id domain.SessionID, fn func(rec *domain.SessionContextRecord)) {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	fn(&e.record)
	s.trimLocked(&e.record)
}

// Snapshot returns a deep copy of the session's record. Unknown ids yield an
// empty record and are not created.
func (s *ContextStore) Snapshot(id domain.SessionID) domain.SessionContextRecord {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return domain.EmptyContextRecord()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneRecord(e.record)
}

// RecordTable stores a fetched table under its name, as the last table, and in
// history.
func (s *ContextStore) RecordTable(id domain.SessionID, name string, table domain.TableResult) {
	s.Update(id, func(rec *domain.SessionContextRecord) {
		stored := table.Clone()
		rec.Tables[name] = stored
		last := stored.Clone()
		rec.LastTable = &last
		event := stored.Clone()
		rec.History = append(rec.History, s.newEvent(domain.ContextActionTable, func(ev *domain.ContextEvent) {
			ev.Name = name
			ev.Result = &event
		}))
	})
}

// RecordRun stores the code of an accepted submission as the last code and
// appends the job to history.
func (s *ContextStore) RecordRun(id domain.SessionID, code string, jobID domain.JobID) {
	s.Update(id, func(rec *domain.SessionContextRecord) {
		last := code
		rec.LastCode = &last
		rec.History = append(rec.History, s.newEvent(domain.ContextActionRun, func(ev *domain.ContextEvent) {
			ev.Code = code
			ev.JobID = jobID
		}))
	})
}

// RecordCancel appends a cancel request to history.
func (s *ContextStore) RecordCancel(id domain.SessionID, jobID domain.JobID) {
	s.Update(id, func(rec *domain.SessionContextRecord) {
		rec.History = append(rec.History, s.newEvent(domain.ContextActionCancel, func(ev *domain.ContextEvent) {
			ev.JobID = jobID
		}))
	})
}

// Len reports how many sessions have a record.
func (s *ContextStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *ContextStore) newEvent(action domain.ContextAction, fill func(*domain.ContextEvent)) domain.ContextEvent {
	ev := domain.ContextEvent{
		ID:     uuid.NewString(),
		Action: action,
		At:     s.now().UTC(),
	}
	fill(&ev)
	return ev
}

// trimLocked drops the oldest events beyond the limit.
func (s *ContextStore) trimLocked(rec *domain.SessionContextRecord) {
	if rec.Tables == nil {
		rec.Tables = map[string]domain.TableResult{}
	}
	if rec.History == nil {
		rec.History = []domain.ContextEvent{}
	}
	if over := len(rec.History) - s.historyLimit; over > 0 {
		kept := make([]domain.ContextEvent, s.historyLimit)
		copy(kept, rec.History[over:])
		rec.History = kept
	}
}

func cloneRecord(rec domain.SessionContextRecord) domain.SessionContextRecord {
	out := domain.EmptyContextRecord()
	if rec.LastCode != nil {
		code := *rec.LastCode
		out.LastCode = &code
	}
	if rec.LastTable != nil {
		t := rec.LastTable.Clone()
		out.LastTable = &t
	}
	for name, t := range rec.Tables {
		out.Tables[name] = t.Clone()
	}
	out.History = make([]domain.ContextEvent, len(rec.History))
	for i, ev := range rec.History {
		if ev.Result != nil {
			r := ev.Result.Clone()
			ev.Result = &r
		}
		out.History[i] = ev
	}
	return out
}
