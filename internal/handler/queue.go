package handler

import (
	"encoding/json"
	"net/http"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/scheduler"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/apierror"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/response"
)

// QueueHandler handles relist queue HTTP requests.
type QueueHandler struct {
	scheduler *scheduler.Scheduler
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(s *scheduler.Scheduler) *QueueHandler {
	return &QueueHandler{scheduler: s}
}

// Enqueue handles POST /api/v1/relist/queue
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LocalIDs []int64 `json:"local_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}
	if len(body.LocalIDs) == 0 {
		response.Error(w, apierror.BadRequest("local_ids must not be empty"))
		return
	}

	update, err := h.scheduler.Enqueue(r.Context(), body.LocalIDs)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, update)
}

// Dequeue handles DELETE /api/v1/relist/queue/{local_id}
func (h *QueueHandler) Dequeue(w http.ResponseWriter, r *http.Request) {
	localID, ok := localIDParam(w, r)
	if !ok {
		return
	}
	update, err := h.scheduler.Dequeue(r.Context(), localID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, update)
}

// Clear handles DELETE /api/v1/relist/queue
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	update, err := h.scheduler.Clear(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, update)
}

// Get handles GET /api/v1/relist/queue
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	update, err := h.scheduler.Snapshot(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, update)
}
