package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/service"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/apierror"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/response"
)

// WardrobeHandler handles vault item HTTP requests.
type WardrobeHandler struct {
	vault    *service.VaultService
	validate *validator.Validate
}

// NewWardrobeHandler creates a new wardrobe handler.
func NewWardrobeHandler(vault *service.VaultService) *WardrobeHandler {
	return &WardrobeHandler{
		vault:    vault,
		validate: validator.New(),
	}
}

// List handles GET /api/v1/wardrobe
func (h *WardrobeHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter model.ItemFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := model.ItemStatus(raw)
		if !status.Valid() {
			response.Error(w, apierror.BadRequest("unknown status "+raw))
			return
		}
		filter.Status = &status
	}

	items, err := h.vault.List(r.Context(), filter)
	if err != nil {
		response.Error(w, err)
		return
	}
	if items == nil {
		items = []model.InventoryItem{}
	}
	response.OK(w, map[string]interface{}{"items": items, "count": len(items)})
}

// Upsert handles POST /api/v1/wardrobe
func (h *WardrobeHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	patch, ok := h.decodePatch(w, r)
	if !ok {
		return
	}

	created := patch.LocalID == nil
	item, err := h.vault.Upsert(r.Context(), patch)
	if err != nil {
		response.Error(w, err)
		return
	}
	if created {
		response.Created(w, item)
		return
	}
	response.OK(w, item)
}

// Delete handles DELETE /api/v1/wardrobe/{local_id}
func (h *WardrobeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	localID, ok := localIDParam(w, r)
	if !ok {
		return
	}
	if err := h.vault.Delete(r.Context(), localID); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// Push handles POST /api/v1/wardrobe/{local_id}/push
func (h *WardrobeHandler) Push(w http.ResponseWriter, r *http.Request) {
	localID, ok := localIDParam(w, r)
	if !ok {
		return
	}
	item, err := h.vault.Push(r.Context(), localID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, item)
}

// Edit handles POST /api/v1/wardrobe/{local_id}/edit
func (h *WardrobeHandler) Edit(w http.ResponseWriter, r *http.Request) {
	localID, ok := localIDParam(w, r)
	if !ok {
		return
	}
	patch, ok := h.decodePatch(w, r)
	if !ok {
		return
	}

	item, err := h.vault.EditLive(r.Context(), localID, patch)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, item)
}

// Pull handles POST /api/v1/wardrobe/{local_id}/pull
func (h *WardrobeHandler) Pull(w http.ResponseWriter, r *http.Request) {
	localID, ok := localIDParam(w, r)
	if !ok {
		return
	}
	item, err := h.vault.Pull(r.Context(), localID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, item)
}

// SetVisibility handles POST /api/v1/wardrobe/{local_id}/visibility
func (h *WardrobeHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	localID, ok := localIDParam(w, r)
	if !ok {
		return
	}

	var body struct {
		Hidden *bool `json:"hidden" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}
	if err := h.validate.Struct(body); err != nil {
		response.Error(w, apierror.BadRequest("hidden is required"))
		return
	}

	item, err := h.vault.SetVisibility(r.Context(), localID, *body.Hidden)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, item)
}

// Hydrate handles POST /api/v1/wardrobe/{local_id}/hydrate. Editors call it
// on open; ?force=true bypasses the freshness window.
func (h *WardrobeHandler) Hydrate(w http.ResponseWriter, r *http.Request) {
	localID, ok := localIDParam(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"
	result, err := h.vault.HydrateItem(r.Context(), localID, force)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, result)
}

// Completeness handles GET /api/v1/wardrobe/{local_id}/completeness
func (h *WardrobeHandler) Completeness(w http.ResponseWriter, r *http.Request) {
	localID, ok := localIDParam(w, r)
	if !ok {
		return
	}
	report, err := h.vault.GetCompleteness(r.Context(), localID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, report)
}

// GetDetail handles GET /api/v1/items/{remote_id}
func (h *WardrobeHandler) GetDetail(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "remote_id")
	remoteID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || remoteID <= 0 {
		response.Error(w, apierror.BadRequest("remote_id must be a positive integer"))
		return
	}

	detail, err := h.vault.GetItemDetail(r.Context(), remoteID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, detail)
}

func (h *WardrobeHandler) decodePatch(w http.ResponseWriter, r *http.Request) (model.ItemPatch, bool) {
	var patch model.ItemPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return patch, false
	}
	if err := h.validate.Struct(patch); err != nil {
		var details []apierror.FieldError
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				details = append(details, apierror.FieldError{
					Field:   fe.Field(),
					Message: "failed " + fe.Tag() + " validation",
				})
			}
		}
		response.Error(w, apierror.ValidationError("invalid item payload", details...))
		return patch, false
	}
	return patch, true
}

func localIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "local_id")
	localID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || localID <= 0 {
		response.Error(w, apierror.BadRequest("local_id must be a positive integer"))
		return 0, false
	}
	return localID, true
}
