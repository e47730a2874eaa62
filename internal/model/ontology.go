package model

import (
	"encoding/json"
	"time"
)

// EntityType is one taxonomy dimension mirrored from the marketplace.
type EntityType string

const (
	EntityCategory    EntityType = "category"
	EntityBrand       EntityType = "brand"
	EntityColor       EntityType = "color"
	EntityCondition   EntityType = "condition"
	EntitySize        EntityType = "size"
	EntityMaterial    EntityType = "material"
	EntityPackageSize EntityType = "package_size"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityCategory, EntityBrand, EntityColor, EntityCondition,
		EntitySize, EntityMaterial, EntityPackageSize:
		return true
	}
	return false
}

// OntologyEntity is one taxonomy node. Categories form a tree via ParentID;
// all other types are flat (ParentID nil).
type OntologyEntity struct {
	EntityID int64           `json:"entity_id"`
	Type     EntityType      `json:"type"`
	ParentID *int64          `json:"parent_id,omitempty"`
	Name     string          `json:"name"`
	Extra    json.RawMessage `json:"extra,omitempty"`
}

// OntologySnapshot is the full mirror for one entity type plus its version.
type OntologySnapshot struct {
	Type      EntityType       `json:"type"`
	FetchedAt time.Time        `json:"fetched_at"`
	Entities  []OntologyEntity `json:"entities"`
}

// AffectedItem is one vault item invalidated by a taxonomy removal.
type AffectedItem struct {
	LocalID     int64  `json:"local_id"`
	Title       string `json:"title"`
	OldCategory string `json:"old_category"`
}

// OntologyAlert is the ephemeral output of a category refresh that removed
// entities. Consumed once by the caller; not persisted.
type OntologyAlert struct {
	DeletedCategories []int64        `json:"deleted_categories"`
	AffectedItems     []AffectedItem `json:"affected_items"`
}
