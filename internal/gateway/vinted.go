package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/config"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/uid"
)

// taxonomyEndpoints maps each entity type to its read endpoint path.
var taxonomyEndpoints = map[model.EntityType]string{
	model.EntityCategory:    "/api/v2/item_upload/catalogs",
	model.EntityBrand:       "/api/v2/item_upload/brands",
	model.EntityColor:       "/api/v2/item_upload/colors",
	model.EntityCondition:   "/api/v2/item_upload/conditions",
	model.EntitySize:        "/api/v2/item_upload/size_groups",
	model.EntityMaterial:    "/api/v2/item_upload/attributes",
	model.EntityPackageSize: "/api/v2/package_sizes",
}

// taxonomyListKeys maps each entity type to the array key in its response.
var taxonomyListKeys = map[model.EntityType]string{
	model.EntityCategory:    "catalogs",
	model.EntityBrand:       "brands",
	model.EntityColor:       "colors",
	model.EntityCondition:   "conditions",
	model.EntitySize:        "size_groups",
	model.EntityMaterial:    "attributes",
	model.EntityPackageSize: "package_sizes",
}

// VintedGateway is the production Gateway implementation. One instance holds
// one authenticated browser session (cookie, csrf token, anon id).
type VintedGateway struct {
	client          *http.Client
	baseURL         string
	userID          int64
	cookie          string
	csrfToken       string
	anonID          string
	userAgent       string
	postDeleteDelay time.Duration
	log             zerolog.Logger

	// sleep is swapped out in tests to skip the anti-duplicate wait.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewVintedGateway creates a marketplace gateway from config.
func NewVintedGateway(cfg config.GatewayConfig, log zerolog.Logger) *VintedGateway {
	return &VintedGateway{
		client:          &http.Client{Timeout: cfg.Timeout},
		baseURL:         cfg.BaseURL,
		userID:          cfg.UserID,
		cookie:          cfg.Cookie,
		csrfToken:       cfg.CSRFToken,
		anonID:          cfg.AnonID,
		userAgent:       cfg.UserAgent,
		postDeleteDelay: cfg.PostDeleteDelay,
		log:             log.With().Str("component", "gateway").Logger(),
		sleep:           sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FetchWardrobe returns every listing in the seller's wardrobe, paging until
// the marketplace returns an empty page.
func (g *VintedGateway) FetchWardrobe(ctx context.Context) ([]RemoteListing, error) {
	var listings []RemoteListing
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/api/v2/wardrobe/%d/items?page=%d&per_page=96&order=relevance",
			g.baseURL, g.userID, page)
		body, err := g.doJSON(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		rawItems, _ := body["items"].([]interface{})
		if len(rawItems) == 0 {
			break
		}
		for _, raw := range rawItems {
			itemMap, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			listing, err := normalizeListing(itemMap)
			if err != nil {
				g.log.Warn().Err(err).Msg("skipping unparseable wardrobe entry")
				continue
			}
			listings = append(listings, *listing)
		}
		if len(rawItems) < 96 {
			break
		}
	}
	return listings, nil
}

// FetchDetail returns the full detail payload for one listing. There is no
// public JSON endpoint for item detail; the data is embedded in the item
// page's server-rendered payload, so we fetch the page and extract it.
func (g *VintedGateway) FetchDetail(ctx context.Context, remoteID int64) (*RemoteDetail, error) {
	url := fmt.Sprintf("%s/items/%d", g.baseURL, remoteID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}
	g.setHeaders(req)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	html, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}

	raw, ok := extractItemFromHTML(string(html), remoteID)
	if !ok {
		return nil, &Error{
			Code:    CodeParseError,
			Message: fmt.Sprintf("item %d not found in page payload", remoteID),
		}
	}
	return normalizeDetail(raw)
}

// CreateListing publishes a new listing and returns its remote id.
func (g *VintedGateway) CreateListing(ctx context.Context, draft ListingDraft) (int64, error) {
	return g.createListing(ctx, draft, uid.New())
}

func (g *VintedGateway) createListing(ctx context.Context, draft ListingDraft, sessionID string) (int64, error) {
	url := g.baseURL + "/api/v2/item_upload/items"
	payload := map[string]interface{}{
		"item":              draftPayload(draft, nil),
		"feedback_id":       nil,
		"push_up":           false,
		"parcel":            nil,
		"upload_session_id": sessionID,
	}

	body, err := g.doJSON(ctx, http.MethodPost, url, payload)
	if err != nil {
		return 0, err
	}

	item, _ := body["item"].(map[string]interface{})
	if item == nil {
		item = body
	}
	id, ok := asInt64(item["id"])
	if !ok {
		return 0, &Error{Code: CodeParseError, Message: "create response without item id"}
	}
	return id, nil
}

// UpdateListing pushes draft fields onto an existing listing.
func (g *VintedGateway) UpdateListing(ctx context.Context, remoteID int64, draft ListingDraft) error {
	url := fmt.Sprintf("%s/api/v2/item_upload/items/%d", g.baseURL, remoteID)
	payload := map[string]interface{}{
		"item":              draftPayload(draft, &remoteID),
		"feedback_id":       nil,
		"push_up":           false,
		"parcel":            nil,
		"upload_session_id": uid.New(),
	}
	_, err := g.doJSON(ctx, http.MethodPut, url, payload)
	return err
}

// DeleteListing permanently removes a listing. The marketplace uses POST with
// an empty body for deletion, not the DELETE method.
func (g *VintedGateway) DeleteListing(ctx context.Context, remoteID int64) error {
	url := fmt.Sprintf("%s/api/v2/items/%d/delete", g.baseURL, remoteID)
	_, err := g.doJSON(ctx, http.MethodPost, url, nil)
	return err
}

// SetVisibility hides or unhides a listing.
func (g *VintedGateway) SetVisibility(ctx context.Context, remoteID int64, hidden bool) error {
	url := fmt.Sprintf("%s/api/v2/items/%d/is_hidden", g.baseURL, remoteID)
	_, err := g.doJSON(ctx, http.MethodPut, url, map[string]interface{}{"is_hidden": hidden})
	return err
}

// UploadImage uploads one image file under an upload session and returns the
// photo id the marketplace assigned.
func (g *VintedGateway) UploadImage(ctx context.Context, sessionID, path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, &Error{Code: CodeRequestFailed, Message: fmt.Sprintf("read image: %v", err)}
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("photo[type]", "item"); err != nil {
		return 0, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}
	part, err := writer.CreateFormFile("photo[file]", "photo.jpg")
	if err != nil {
		return 0, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}
	if _, err := part.Write(data); err != nil {
		return 0, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}
	if err := writer.WriteField("photo[temp_uuid]", sessionID); err != nil {
		return 0, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}
	if err := writer.Close(); err != nil {
		return 0, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/v2/photos", &buf)
	if err != nil {
		return 0, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}
	g.setHeaders(req)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	body, err := g.execute(req)
	if err != nil {
		return 0, err
	}
	id, ok := asInt64(body["id"])
	if !ok {
		return 0, &Error{Code: CodeParseError, Message: "upload response without photo id"}
	}
	return id, nil
}

// Relist replaces a listing: uploads the given images under a fresh upload
// session, deletes the old listing, waits out the marketplace's
// anti-duplicate window, then creates the new listing.
func (g *VintedGateway) Relist(ctx context.Context, oldRemoteID int64, draft ListingDraft, imagePaths []string) (int64, error) {
	sessionID := uid.New()

	var photoIDs []int64
	for _, path := range imagePaths {
		id, err := g.UploadImage(ctx, sessionID, path)
		if err != nil {
			return 0, err
		}
		photoIDs = append(photoIDs, id)
	}
	if len(photoIDs) == 0 {
		return 0, &Error{Code: CodeRequestFailed, Message: "no images uploaded"}
	}
	draft.PhotoIDs = photoIDs

	if err := g.DeleteListing(ctx, oldRemoteID); err != nil {
		return 0, err
	}

	// Re-creating immediately after deletion trips duplicate detection.
	if err := g.sleep(ctx, g.postDeleteDelay); err != nil {
		return 0, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}

	newID, err := g.createListing(ctx, draft, sessionID)
	if err != nil {
		return 0, err
	}

	g.log.Info().
		Int64("old_remote_id", oldRemoteID).
		Int64("new_remote_id", newID).
		Int("photos", len(photoIDs)).
		Msg("relisted")
	return newID, nil
}

// FetchTaxonomy returns the marketplace's current entities of one type.
// Category responses nest children under "catalogs"; the tree is flattened
// with parent ids preserved.
func (g *VintedGateway) FetchTaxonomy(ctx context.Context, t model.EntityType) ([]model.OntologyEntity, error) {
	path, ok := taxonomyEndpoints[t]
	if !ok {
		return nil, &Error{Code: CodeRequestFailed, Message: "unknown entity type " + string(t)}
	}

	body, err := g.doJSON(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	rawList, _ := body[taxonomyListKeys[t]].([]interface{})
	var entities []model.OntologyEntity
	for _, raw := range rawList {
		node, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		entities = append(entities, flattenTaxonomyNode(t, node, nil)...)
	}
	return entities, nil
}

// flattenTaxonomyNode converts one taxonomy node and its subtree into flat
// entities. Only categories carry children; other types flatten to one entry.
func flattenTaxonomyNode(t model.EntityType, node map[string]interface{}, parentID *int64) []model.OntologyEntity {
	id, ok := asInt64(node["id"])
	if !ok {
		return nil
	}

	name := asString(node["title"])
	if name == "" {
		name = asString(node["name"])
	}

	entity := model.OntologyEntity{
		EntityID: id,
		Type:     t,
		ParentID: parentID,
		Name:     name,
	}
	if extra, err := json.Marshal(node); err == nil {
		entity.Extra = extra
	}

	entities := []model.OntologyEntity{entity}
	if children, ok := node["catalogs"].([]interface{}); ok {
		for _, rawChild := range children {
			if child, ok := rawChild.(map[string]interface{}); ok {
				entities = append(entities, flattenTaxonomyNode(t, child, &id)...)
			}
		}
	}
	return entities
}

// draftPayload builds the item body shared by create and update requests.
func draftPayload(draft ListingDraft, remoteID *int64) map[string]interface{} {
	item := map[string]interface{}{
		"title":       draft.Title,
		"description": draft.Description,
		"price":       draft.Price.String(),
		"currency":    draft.Currency,
		"catalog_id":  draft.CategoryID,
		"color_ids":   draft.ColorIDs,
	}
	if remoteID != nil {
		item["id"] = *remoteID
	} else {
		item["id"] = nil
	}
	if draft.BrandID != nil {
		item["brand_id"] = *draft.BrandID
	}
	if draft.SizeID != nil {
		item["size_id"] = *draft.SizeID
	}
	if draft.ConditionID != nil {
		item["status_id"] = *draft.ConditionID
	}
	if draft.PackageSizeID != nil {
		item["package_size_id"] = *draft.PackageSizeID
	}
	if len(draft.PhotoIDs) > 0 {
		photos := make([]map[string]interface{}, 0, len(draft.PhotoIDs))
		for _, id := range draft.PhotoIDs {
			photos = append(photos, map[string]interface{}{"id": id, "orientation": 0})
		}
		item["assigned_photos"] = photos
	}
	return item
}

// doJSON performs a JSON request and decodes the JSON response body.
func (g *VintedGateway) doJSON(ctx context.Context, method, url string, payload interface{}) (map[string]interface{}, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Code: CodeRequestFailed, Message: err.Error()}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}
	g.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return g.execute(req)
}

func (g *VintedGateway) execute(req *http.Request) (map[string]interface{}, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &Error{Code: CodeRequestFailed, Message: err.Error()}
	}

	var body map[string]interface{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, &Error{Code: CodeParseError, Message: fmt.Sprintf("invalid JSON: %v", err)}
		}
	}
	return body, nil
}

func (g *VintedGateway) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if g.cookie != "" {
		req.Header.Set("Cookie", g.cookie)
	}
	if g.csrfToken != "" {
		req.Header.Set("X-Csrf-Token", g.csrfToken)
	}
	if g.anonID != "" {
		req.Header.Set("X-Anon-Id", g.anonID)
	}
}

// classifyStatus maps an upstream status code to a gateway error, nil for
// success statuses.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusOK, status == http.StatusCreated, status == http.StatusNotModified:
		return nil
	case status == http.StatusUnauthorized:
		return &Error{Code: CodeSessionExpired, Message: "session expired or invalid cookie", StatusCode: status}
	case status == http.StatusForbidden:
		return &Error{Code: CodeForbidden, Message: "access forbidden", StatusCode: status}
	case status == http.StatusTooManyRequests:
		return &Error{Code: CodeRateLimited, Message: "too many requests", StatusCode: status}
	default:
		return &Error{Code: CodeHTTPError, Message: fmt.Sprintf("HTTP %d", status), StatusCode: status}
	}
}

// Ensure VintedGateway implements Gateway
var _ Gateway = (*VintedGateway)(nil)
