package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/service"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/apierror"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/response"
)

// OntologyHandler handles taxonomy mirror HTTP requests.
type OntologyHandler struct {
	ontology *service.OntologyService
}

// NewOntologyHandler creates a new ontology handler.
func NewOntologyHandler(ontology *service.OntologyService) *OntologyHandler {
	return &OntologyHandler{ontology: ontology}
}

// Get handles GET /api/v1/ontology/{type}
func (h *OntologyHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := entityTypeParam(w, r)
	if !ok {
		return
	}
	snapshot, err := h.ontology.Get(r.Context(), t)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, snapshot)
}

// Refresh handles POST /api/v1/ontology/{type}/refresh
func (h *OntologyHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	t, ok := entityTypeParam(w, r)
	if !ok {
		return
	}
	snapshot, alert, err := h.ontology.Refresh(r.Context(), t)
	if err != nil {
		response.Error(w, err)
		return
	}

	payload := map[string]interface{}{
		"type":       snapshot.Type,
		"fetched_at": snapshot.FetchedAt,
		"entities":   len(snapshot.Entities),
	}
	if alert != nil {
		payload["alert"] = alert
	}
	response.OK(w, payload)
}

// Path handles GET /api/v1/ontology/{type}/path/{entity_id}. Only category
// entities form a tree.
func (h *OntologyHandler) Path(w http.ResponseWriter, r *http.Request) {
	t, ok := entityTypeParam(w, r)
	if !ok {
		return
	}
	if t != model.EntityCategory {
		response.Error(w, apierror.BadRequest("only category entities have a path"))
		return
	}
	raw := chi.URLParam(r, "entity_id")
	entityID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || entityID <= 0 {
		response.Error(w, apierror.BadRequest("entity_id must be a positive integer"))
		return
	}

	path, err := h.ontology.CategoryPath(r.Context(), entityID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"entity_id": entityID, "path": path})
}

// Lookup handles GET /api/v1/ontology/{type}/lookup?name=. The match is
// advisory; a miss is reported, not an error.
func (h *OntologyHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	t, ok := entityTypeParam(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		response.Error(w, apierror.BadRequest("name query parameter is required"))
		return
	}

	id, found, err := h.ontology.ReverseLookup(r.Context(), t, name)
	if err != nil {
		response.Error(w, err)
		return
	}
	payload := map[string]interface{}{"found": found}
	if found {
		payload["entity_id"] = id
	}
	response.OK(w, payload)
}

func entityTypeParam(w http.ResponseWriter, r *http.Request) (model.EntityType, bool) {
	t := model.EntityType(chi.URLParam(r, "type"))
	if !t.Valid() {
		response.Error(w, apierror.BadRequest("unknown entity type "+string(t)))
		return "", false
	}
	return t, true
}
