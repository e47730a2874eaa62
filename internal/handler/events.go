package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/events"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/response"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/apierror"
)

// EventsHandler streams bus events to UI clients over Server-Sent Events.
type EventsHandler struct {
	bus *events.Bus
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

const keepAliveInterval = 25 * time.Second

// Stream handles GET /api/v1/events. The connection stays open until the
// client disconnects; a comment line is sent periodically to keep proxies
// from timing the stream out.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, apierror.InternalError("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := h.bus.Subscribe()
	defer cancel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-ch:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, event.Data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
