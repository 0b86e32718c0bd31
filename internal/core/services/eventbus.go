package services

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeError  EventType = "error"
)

type Event struct {
	JobID     domain.JobID
	Type      EventType
	Data      string // JSON payload
	Terminal  bool   // no further events follow for this job
	Timestamp int64
}

// StatusPayload is the JSON body of a status event.
type StatusPayload struct {
	JobID         domain.JobID     `json:"job_id"`
	SessionID     domain.SessionID `json:"session_id"`
	State         domain.JobState  `json:"state"`
	ConditionCode int              `json:"condition_code"`
	Error         string           `json:"error,omitempty"`
}

// EventBus fans job events out to subscribers and remembers the latest event
// of every job, so a late subscriber still learns where the job stands.
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[domain.JobID][]chan Event
	last   map[domain.JobID]Event
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[domain.JobID][]chan Event),
		last:   make(map[domain.JobID]Event),
	}
}

// Subscribe returns a channel that receives events for a specific job. The
// job's latest event, if any, is delivered first.
func (b *EventBus) Subscribe(jobID domain.JobID) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100) // Buffer to prevent blocking publisher
	if e, ok := b.last[jobID]; ok {
		ch <- e
	}
	b.subs[jobID] = append(b.subs[jobID], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subscribers := b.subs[jobID]
			for i, sub := range subscribers {
				if sub == ch {
					close(ch)
					b.subs[jobID] = append(subscribers[:i], subscribers[i+1:]...)
					break
				}
			}
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
		})
	}

	return ch, unsub
}

// Seen reports whether any event was ever published for the job.
func (b *EventBus) Seen(jobID domain.JobID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.last[jobID]
	return ok
}

// Publish sends an event to all subscribers of the job
func (b *EventBus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last[e.JobID] = e
	subscribers, ok := b.subs[e.JobID]
	if !ok {
		return
	}

	for _, ch := range subscribers {
		select {
		case ch <- e:
		default:
			// If channel is full, drop event to prevent blocking application
			b.logger.Warn("event bus channel full, dropping event", "job_id", e.JobID)
		}
	}
}

// PublishStatus publishes a job state observation.
func (b *EventBus) PublishStatus(job domain.Job) {
	b.publishPayload(EventTypeStatus, job.State.IsTerminal(), StatusPayload{
		JobID:         job.ID,
		SessionID:     job.SessionID,
		State:         job.State,
		ConditionCode: job.ConditionCode,
	})
}

// PublishError publishes the end of a watch that did not reach a terminal state.
func (b *EventBus) PublishError(job domain.Job, err error) {
	b.publishPayload(EventTypeError, true, StatusPayload{
		JobID:         job.ID,
		SessionID:     job.SessionID,
		State:         job.State,
		ConditionCode: job.ConditionCode,
		Error:         domain.ErrorTag(err),
	})
}

func (b *EventBus) publishPayload(t EventType, terminal bool, p StatusPayload) {
	data, err := json.Marshal(p)
	if err != nil {
		b.logger.Error("failed to encode event", "job_id", p.JobID, "error", err)
		return
	}
	b.Publish(Event{
		JobID:     p.JobID,
		Type:      t,
		Data:      string(data),
		Terminal:  terminal,
		Timestamp: time.Now().UnixMilli(),
	})
}
