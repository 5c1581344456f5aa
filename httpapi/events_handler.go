package httpapi

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/eventbus"
	"github.com/clipcut/clipcut-api/middleware"
)

// JobEvents handles GET /jobs/:id/events, streaming the snapshot-then-tail
// event frames as they're published, one line per event, flushed
// immediately so a client sees progress without buffering.
func (h *Handlers) JobEvents() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		principalID := middleware.Principal(r)
		jobID := ps.ByName("id")

		if _, err := h.Scheduler.Status(r.Context(), jobID, principalID); err != nil {
			apierrors.WriteHTTP(w, jobID, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			apierrors.WriteHTTP(w, jobID, apierrors.New(apierrors.KindInternal, "streaming not supported by this response writer"))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)

		sub := h.Bus.Subscribe(jobID)
		defer sub.Close()

		if sub.Snapshot != nil {
			writeEventFrame(w, *sub.Snapshot)
			flusher.Flush()
		}

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events:
				if !ok {
					return
				}
				writeEventFrame(w, ev)
				flusher.Flush()
				if isTerminalStatus(ev.Status) {
					return
				}
			}
		}
	}
}

func writeEventFrame(w http.ResponseWriter, ev eventbus.Event) {
	fmt.Fprintf(w, "seq:%d job_id:%s status:%s phase:%s percent:%d description:%q timestamp:%s\n\n",
		ev.Seq, ev.JobID, ev.Status, ev.Phase, ev.Percent, ev.Description, ev.Timestamp.Format(rfc3339Millis))
}

func isTerminalStatus(status string) bool {
	switch status {
	case "COMPLETED", "FAILED", "CANCELLED":
		return true
	default:
		return false
	}
}
