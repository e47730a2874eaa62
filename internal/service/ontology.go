package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/events"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/gateway"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/repository"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/apierror"
)

// OntologyService mirrors the marketplace's taxonomy and reacts when the
// marketplace deletes entities the vault still references.
type OntologyService struct {
	repo  repository.OntologyRepository
	vault repository.VaultRepository
	gw    gateway.Gateway
	bus   *events.Bus
	log   zerolog.Logger
}

// NewOntologyService creates an ontology service.
func NewOntologyService(repo repository.OntologyRepository, vault repository.VaultRepository, gw gateway.Gateway, bus *events.Bus, log zerolog.Logger) *OntologyService {
	return &OntologyService{
		repo:  repo,
		vault: vault,
		gw:    gw,
		bus:   bus,
		log:   log.With().Str("component", "ontology").Logger(),
	}
}

// Get returns the current mirror for one entity type.
func (s *OntologyService) Get(ctx context.Context, t model.EntityType) (*model.OntologySnapshot, error) {
	if !t.Valid() {
		return nil, apierror.BadRequest(fmt.Sprintf("unknown entity type %q", t))
	}

	version, err := s.repo.Version(ctx, t)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, apierror.NotFound(fmt.Sprintf("ontology %q has never been fetched", t))
	}

	entities, err := s.repo.ListByType(ctx, t)
	if err != nil {
		return nil, err
	}
	return &model.OntologySnapshot{Type: t, FetchedAt: *version, Entities: entities}, nil
}

// Refresh replaces one entity type's mirror with the marketplace's current
// snapshot. For categories it additionally detects removed entities, flags
// every vault item referencing one, and emits an alert. The alert is returned
// to the caller and not persisted.
func (s *OntologyService) Refresh(ctx context.Context, t model.EntityType) (*model.OntologySnapshot, *model.OntologyAlert, error) {
	if !t.Valid() {
		return nil, nil, apierror.BadRequest(fmt.Sprintf("unknown entity type %q", t))
	}

	entities, err := s.gw.FetchTaxonomy(ctx, t)
	if err != nil {
		return nil, nil, upstreamError(err)
	}

	var oldPaths map[int64]string
	var oldIDs map[int64]struct{}
	if t == model.EntityCategory {
		oldIDs, err = s.repo.IDSet(ctx, t)
		if err != nil {
			return nil, nil, err
		}
		oldEntities, err := s.repo.ListByType(ctx, t)
		if err != nil {
			return nil, nil, err
		}
		oldPaths = categoryPaths(oldEntities)
	}

	fetchedAt := time.Now().UTC()
	if err := s.repo.Replace(ctx, t, entities, fetchedAt); err != nil {
		return nil, nil, err
	}
	s.log.Info().Str("type", string(t)).Int("entities", len(entities)).Msg("ontology refreshed")

	snapshot := &model.OntologySnapshot{Type: t, FetchedAt: fetchedAt, Entities: entities}

	var alert *model.OntologyAlert
	if t == model.EntityCategory && len(oldIDs) > 0 {
		newIDs := make(map[int64]struct{}, len(entities))
		for _, e := range entities {
			newIDs[e.EntityID] = struct{}{}
		}
		var removed []int64
		for id := range oldIDs {
			if _, kept := newIDs[id]; !kept {
				removed = append(removed, id)
			}
		}
		if len(removed) > 0 {
			alert, err = s.flagOrphanedItems(ctx, removed, oldPaths)
			if err != nil {
				return nil, nil, err
			}
			s.bus.Publish(model.EventOntologyAlert, alert)
		}
	}

	return snapshot, alert, nil
}

// flagOrphanedItems moves every item referencing a removed category to
// action_required and builds the alert payload.
func (s *OntologyService) flagOrphanedItems(ctx context.Context, removed []int64, oldPaths map[int64]string) (*model.OntologyAlert, error) {
	items, err := s.vault.List(ctx, model.ItemFilter{CategoryIn: removed})
	if err != nil {
		return nil, err
	}

	alert := &model.OntologyAlert{DeletedCategories: removed}
	for i := range items {
		item := &items[i]
		oldCategory := ""
		if item.CategoryID != nil {
			oldCategory = oldPaths[*item.CategoryID]
		}

		item.Status = model.StatusActionRequired
		if err := s.vault.Update(ctx, item); err != nil {
			return nil, err
		}

		alert.AffectedItems = append(alert.AffectedItems, model.AffectedItem{
			LocalID:     item.LocalID,
			Title:       item.Title,
			OldCategory: oldCategory,
		})
		s.log.Warn().
			Int64("local_id", item.LocalID).
			Str("old_category", oldCategory).
			Msg("item category removed upstream, action required")
	}
	return alert, nil
}

// CategoryPath returns the root-to-leaf name path of a category, e.g.
// ["Women", "Clothes", "Dresses"].
func (s *OntologyService) CategoryPath(ctx context.Context, categoryID int64) ([]string, error) {
	entities, err := s.repo.ListByType(ctx, model.EntityCategory)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*model.OntologyEntity, len(entities))
	for i := range entities {
		byID[entities[i].EntityID] = &entities[i]
	}

	var path []string
	visited := make(map[int64]struct{})
	for id := categoryID; ; {
		if _, seen := visited[id]; seen {
			return nil, apierror.InternalError(fmt.Sprintf("category tree cycle at id %d", id))
		}
		visited[id] = struct{}{}

		node, ok := byID[id]
		if !ok {
			if len(path) == 0 {
				return nil, apierror.NotFound(fmt.Sprintf("category %d not in mirror", categoryID))
			}
			break
		}
		path = append([]string{node.Name}, path...)
		if node.ParentID == nil {
			break
		}
		id = *node.ParentID
	}
	return path, nil
}

// InMirror reports whether the category id exists in the current mirror.
func (s *OntologyService) InMirror(ctx context.Context, categoryID int64) (bool, error) {
	ids, err := s.repo.IDSet(ctx, model.EntityCategory)
	if err != nil {
		return false, err
	}
	_, ok := ids[categoryID]
	return ok, nil
}

// IsLeaf reports whether the category has no children. Listings may only
// reference leaf categories.
func (s *OntologyService) IsLeaf(ctx context.Context, categoryID int64) (bool, error) {
	entities, err := s.repo.ListByType(ctx, model.EntityCategory)
	if err != nil {
		return false, err
	}
	found := false
	for i := range entities {
		if entities[i].EntityID == categoryID {
			found = true
		}
		if entities[i].ParentID != nil && *entities[i].ParentID == categoryID {
			return false, nil
		}
	}
	return found, nil
}

// ReverseLookup resolves an entity name to its id, case-insensitive exact
// match. Advisory: the first match wins and absence is not an error.
func (s *OntologyService) ReverseLookup(ctx context.Context, t model.EntityType, name string) (int64, bool, error) {
	entities, err := s.repo.ListByType(ctx, t)
	if err != nil {
		return 0, false, err
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	for i := range entities {
		if strings.ToLower(entities[i].Name) == needle {
			return entities[i].EntityID, true, nil
		}
	}
	return 0, false, nil
}

// categoryPaths precomputes the display path of every category in a snapshot.
func categoryPaths(entities []model.OntologyEntity) map[int64]string {
	byID := make(map[int64]*model.OntologyEntity, len(entities))
	for i := range entities {
		byID[entities[i].EntityID] = &entities[i]
	}

	paths := make(map[int64]string, len(entities))
	for id := range byID {
		var parts []string
		visited := make(map[int64]struct{})
		for cur := id; ; {
			if _, seen := visited[cur]; seen {
				break
			}
			visited[cur] = struct{}{}
			node, ok := byID[cur]
			if !ok {
				break
			}
			parts = append([]string{node.Name}, parts...)
			if node.ParentID == nil {
				break
			}
			cur = *node.ParentID
		}
		paths[id] = strings.Join(parts, " > ")
	}
	return paths
}

// upstreamError converts a gateway failure into an API error.
func upstreamError(err error) error {
	if gwErr, ok := err.(*gateway.Error); ok {
		return apierror.Upstream(gwErr.Error())
	}
	return apierror.Upstream(err.Error())
}
