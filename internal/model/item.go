package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemStatus is the lifecycle state of a vault item.
type ItemStatus string

const (
	StatusLocalOnly      ItemStatus = "local_only"
	StatusLive           ItemStatus = "live"
	StatusHidden         ItemStatus = "hidden"
	StatusReserved       ItemStatus = "reserved"
	StatusSold           ItemStatus = "sold"
	StatusDiscrepancy    ItemStatus = "discrepancy"
	StatusActionRequired ItemStatus = "action_required"
)

// DiscrepancyReason explains why an item is in StatusDiscrepancy.
type DiscrepancyReason string

const (
	ReasonFailedPush     DiscrepancyReason = "failed_push"
	ReasonExternalChange DiscrepancyReason = "external_change"
)

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusLocalOnly, StatusLive, StatusHidden, StatusReserved,
		StatusSold, StatusDiscrepancy, StatusActionRequired:
		return true
	}
	return false
}

// Terminal statuses still require a remote link; only local_only may have none.
func (s ItemStatus) RequiresRemoteID() bool {
	return s != StatusLocalOnly
}

// Attribute is one open-ended per-category field, e.g. {code: "material", ids: [44]}.
type Attribute struct {
	Code string  `json:"code"`
	IDs  []int64 `json:"ids"`
}

// Image references either a remote CDN URL or a locally cached file.
// Exactly one of the two fields is set.
type Image struct {
	URL       string `json:"url,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
}

// InventoryItem is one local record of a marketplace listing.
type InventoryItem struct {
	LocalID           int64              `json:"local_id"`
	RemoteID          *int64             `json:"remote_id,omitempty"`
	Status            ItemStatus         `json:"status"`
	DiscrepancyReason *DiscrepancyReason `json:"discrepancy_reason,omitempty"`

	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`

	CategoryID    *int64      `json:"category_id,omitempty"`
	BrandID       *int64      `json:"brand_id,omitempty"`
	ColorIDs      []int64     `json:"color_ids,omitempty"`
	SizeID        *int64      `json:"size_id,omitempty"`
	ConditionID   *int64      `json:"condition_id,omitempty"`
	PackageSizeID *int64      `json:"package_size_id,omitempty"`
	Attributes    []Attribute `json:"attributes,omitempty"`

	Images      []Image `json:"images,omitempty"`
	RelistCount int     `json:"relist_count"`

	DetailHydratedAt *time.Time `json:"detail_hydrated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DetailComplete reports whether the cached full detail is syntactically
// complete: category, condition and description are all present. Summary
// listings from the wardrobe endpoint lack these fields.
func (i *InventoryItem) DetailComplete() bool {
	return i.CategoryID != nil && i.ConditionID != nil && i.Description != ""
}

// DetailFresh reports whether the cached detail is complete and younger
// than ttl.
func (i *InventoryItem) DetailFresh(ttl time.Duration, now time.Time) bool {
	if !i.DetailComplete() || i.DetailHydratedAt == nil {
		return false
	}
	return now.Sub(*i.DetailHydratedAt) < ttl
}

// ItemPatch is a partial item for upsert. Nil fields are left untouched;
// non-nil fields overwrite, including explicit empty values. This is what
// keeps partial detail fetches from erasing previously known data.
type ItemPatch struct {
	LocalID           *int64             `json:"local_id,omitempty"`
	RemoteID          *int64             `json:"remote_id,omitempty"`
	Status            *ItemStatus        `json:"status,omitempty"`
	DiscrepancyReason *DiscrepancyReason `json:"discrepancy_reason,omitempty"`

	Title       *string          `json:"title,omitempty" validate:"omitempty,max=255"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Currency    *string          `json:"currency,omitempty" validate:"omitempty,len=3"`

	CategoryID    *int64       `json:"category_id,omitempty"`
	BrandID       *int64       `json:"brand_id,omitempty"`
	ColorIDs      *[]int64     `json:"color_ids,omitempty" validate:"omitempty,max=2"`
	SizeID        *int64       `json:"size_id,omitempty"`
	ConditionID   *int64       `json:"condition_id,omitempty"`
	PackageSizeID *int64       `json:"package_size_id,omitempty"`
	Attributes    *[]Attribute `json:"attributes,omitempty"`

	Images           *[]Image   `json:"images,omitempty"`
	DetailHydratedAt *time.Time `json:"detail_hydrated_at,omitempty"`
}

// Apply merges the patch into item. Only non-nil fields are written.
func (p *ItemPatch) Apply(item *InventoryItem) {
	if p.RemoteID != nil {
		item.RemoteID = p.RemoteID
	}
	if p.Status != nil {
		item.Status = *p.Status
	}
	if p.DiscrepancyReason != nil {
		item.DiscrepancyReason = p.DiscrepancyReason
	}
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Currency != nil {
		item.Currency = *p.Currency
	}
	if p.CategoryID != nil {
		item.CategoryID = p.CategoryID
	}
	if p.BrandID != nil {
		item.BrandID = p.BrandID
	}
	if p.ColorIDs != nil {
		item.ColorIDs = *p.ColorIDs
	}
	if p.SizeID != nil {
		item.SizeID = p.SizeID
	}
	if p.ConditionID != nil {
		item.ConditionID = p.ConditionID
	}
	if p.PackageSizeID != nil {
		item.PackageSizeID = p.PackageSizeID
	}
	if p.Attributes != nil {
		item.Attributes = *p.Attributes
	}
	if p.Images != nil {
		item.Images = *p.Images
	}
	if p.DetailHydratedAt != nil {
		item.DetailHydratedAt = p.DetailHydratedAt
	}
}

// ItemFilter narrows VaultRepository.List.
type ItemFilter struct {
	Status     *ItemStatus
	CategoryIn []int64
}
