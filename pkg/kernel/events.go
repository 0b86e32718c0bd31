package kernel

import (
	"fmt"
	"net/http"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

// handleJobEvents streams background watch events for one job as SSE, starting
// with the latest event already seen. The stream ends after a terminal event
// or when the client goes away. Jobs without a watch get 404.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := domain.JobID(r.PathValue("job_id"))
	if jobID == "" {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the headers go out so no event slips between the two.
	ch, unsub, err := s.orch.Events(jobID)
	defer unsub()
	if err != nil {
		writeFailure(w, http.StatusNotFound, domain.ErrorTag(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
			if evt.Terminal {
				s.logger.Debug("job event stream finished", "job_id", jobID, "type", evt.Type)
				return
			}
		}
	}
}
