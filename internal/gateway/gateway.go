// Package gateway talks to the Vinted marketplace on behalf of the vault.
// All responses are normalized into canonical structs before they reach the
// service layer; the marketplace's payload shapes vary between endpoints and
// page versions and nothing outside this package should know that.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
)

// Error codes classifying marketplace failures.
const (
	CodeSessionExpired = "SESSION_EXPIRED"
	CodeForbidden      = "FORBIDDEN"
	CodeRateLimited    = "RATE_LIMITED"
	CodeHTTPError      = "HTTP_ERROR"
	CodeParseError     = "PARSE_ERROR"
	CodeRequestFailed  = "REQUEST_FAILED"
)

// Error is a classified marketplace failure. StatusCode is the upstream HTTP
// status, zero when the request never completed.
type Error struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Transient reports whether retrying the same request later could succeed.
// Session expiry and permission failures need operator action and are not
// transient.
func (e *Error) Transient() bool {
	switch e.Code {
	case CodeRateLimited, CodeRequestFailed:
		return true
	case CodeHTTPError:
		return e.StatusCode >= 500
	}
	return false
}

// RemoteListing is one wardrobe entry as the marketplace reports it. Wardrobe
// pages carry only summary fields; detail fields come from FetchDetail.
type RemoteListing struct {
	ID         int64
	Title      string
	Price      decimal.Decimal
	Currency   string
	CategoryID *int64
	BrandID    *int64
	IsHidden   bool
	IsReserved bool
	IsClosed   bool
}

// RemoteDetail is a fully hydrated listing.
type RemoteDetail struct {
	RemoteListing
	Description   string
	ColorIDs      []int64
	SizeID        *int64
	ConditionID   *int64
	PackageSizeID *int64
	PhotoURLs     []string
}

// ListingDraft carries the fields sent when creating or updating a listing.
type ListingDraft struct {
	Title         string
	Description   string
	Price         decimal.Decimal
	Currency      string
	CategoryID    int64
	BrandID       *int64
	ColorIDs      []int64
	SizeID        *int64
	ConditionID   *int64
	PackageSizeID *int64
	PhotoIDs      []int64
}

// Gateway is the marketplace client surface the services depend on.
type Gateway interface {
	// FetchWardrobe returns every listing in the seller's wardrobe.
	FetchWardrobe(ctx context.Context) ([]RemoteListing, error)

	// FetchDetail returns the full detail payload for one listing.
	FetchDetail(ctx context.Context, remoteID int64) (*RemoteDetail, error)

	// CreateListing publishes a new listing and returns its remote id.
	CreateListing(ctx context.Context, draft ListingDraft) (int64, error)

	// UpdateListing pushes draft fields onto an existing listing.
	UpdateListing(ctx context.Context, remoteID int64, draft ListingDraft) error

	// DeleteListing permanently removes a listing.
	DeleteListing(ctx context.Context, remoteID int64) error

	// SetVisibility hides or unhides a listing.
	SetVisibility(ctx context.Context, remoteID int64, hidden bool) error

	// UploadImage uploads one image file under an upload session and
	// returns the photo id the marketplace assigned.
	UploadImage(ctx context.Context, sessionID, path string) (int64, error)

	// Relist replaces a listing: uploads the given images under a fresh
	// upload session, deletes the old listing, waits out the marketplace's
	// anti-duplicate window, then creates the new listing. Returns the new
	// remote id.
	Relist(ctx context.Context, oldRemoteID int64, draft ListingDraft, imagePaths []string) (int64, error)

	// FetchTaxonomy returns the marketplace's current entities of one type.
	FetchTaxonomy(ctx context.Context, t model.EntityType) ([]model.OntologyEntity, error)
}
