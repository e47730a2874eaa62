package handler

import (
	"net/http"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/service"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/response"
)

// SyncHandler handles reconciliation HTTP requests.
type SyncHandler struct {
	reconcile *service.ReconcileService
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(reconcile *service.ReconcileService) *SyncHandler {
	return &SyncHandler{reconcile: reconcile}
}

// Pull handles POST /api/v1/sync/pull. The snapshot fetch and the full
// reconciliation run synchronously; progress streams over the event bus.
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconcile.Run(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, report)
}
