package gateway

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// conditionTexts maps the display strings the wardrobe page embeds to the
// status ids the write endpoints expect.
var conditionTexts = map[string]int64{
	"new with tags":    6,
	"new without tags": 1,
	"very good":        2,
	"good":             3,
	"satisfactory":     4,
}

// normalizeListing reads the summary fields of one raw item map. The same
// item appears with different field shapes depending on which page rendered
// it, so every field tolerates the variants seen in the wild.
func normalizeListing(raw map[string]interface{}) (*RemoteListing, error) {
	id, ok := asInt64(raw["id"])
	if !ok {
		return nil, &Error{Code: CodeParseError, Message: "listing without numeric id"}
	}

	listing := &RemoteListing{
		ID:         id,
		Title:      asString(raw["title"]),
		IsHidden:   asBool(raw["is_hidden"]),
		IsReserved: asBool(raw["is_reserved"]),
		IsClosed:   asBool(raw["is_closed"]),
	}

	listing.Price, listing.Currency = normalizePrice(raw["price"])
	if listing.Currency == "" {
		listing.Currency = asString(raw["currency"])
	}

	if catID, ok := normalizeEntityRef(raw, "catalog_id", "catalog"); ok {
		listing.CategoryID = &catID
	}
	if brandID, ok := normalizeEntityRef(raw, "brand_id", "brand", "brand_dto"); ok {
		listing.BrandID = &brandID
	}

	return listing, nil
}

// normalizeDetail reads the full detail shape of one raw item map.
func normalizeDetail(raw map[string]interface{}) (*RemoteDetail, error) {
	listing, err := normalizeListing(raw)
	if err != nil {
		return nil, err
	}

	detail := &RemoteDetail{
		RemoteListing: *listing,
		Description:   asString(raw["description"]),
		ColorIDs:      normalizeColors(raw),
	}

	if sizeID, ok := normalizeEntityRef(raw, "size_id", "size"); ok {
		detail.SizeID = &sizeID
	}
	if condID, ok := normalizeCondition(raw); ok {
		detail.ConditionID = &condID
	}
	if pkgID, ok := normalizeEntityRef(raw, "package_size_id", "package_size"); ok {
		detail.PackageSizeID = &pkgID
	}

	if photos, ok := raw["photos"].([]interface{}); ok {
		for _, p := range photos {
			switch photo := p.(type) {
			case string:
				detail.PhotoURLs = append(detail.PhotoURLs, photo)
			case map[string]interface{}:
				if url := asString(photo["full_size_url"]); url != "" {
					detail.PhotoURLs = append(detail.PhotoURLs, url)
				} else if url := asString(photo["url"]); url != "" {
					detail.PhotoURLs = append(detail.PhotoURLs, url)
				}
			}
		}
	}

	return detail, nil
}

// normalizePrice accepts a bare number, a numeric string, or an
// {amount, currency_code} object.
func normalizePrice(v interface{}) (decimal.Decimal, string) {
	switch price := v.(type) {
	case float64:
		return decimal.NewFromFloat(price), ""
	case string:
		if d, err := decimal.NewFromString(price); err == nil {
			return d, ""
		}
	case map[string]interface{}:
		d, _ := normalizePrice(price["amount"])
		return d, asString(price["currency_code"])
	}
	return decimal.Zero, ""
}

// normalizeEntityRef resolves a reference that appears either as a bare id
// under idKey or as an object with an "id" field under one of objKeys.
func normalizeEntityRef(raw map[string]interface{}, idKey string, objKeys ...string) (int64, bool) {
	if id, ok := asInt64(raw[idKey]); ok && id > 0 {
		return id, true
	}
	for _, key := range objKeys {
		if obj, ok := raw[key].(map[string]interface{}); ok {
			if id, ok := asInt64(obj["id"]); ok && id > 0 {
				return id, true
			}
		}
	}
	return 0, false
}

// normalizeCondition resolves the condition from status_id, a status object,
// or the display text.
func normalizeCondition(raw map[string]interface{}) (int64, bool) {
	if id, ok := normalizeEntityRef(raw, "status_id", "status", "item_status"); ok {
		return id, true
	}
	if text, ok := raw["status"].(string); ok {
		if id, found := conditionTexts[strings.ToLower(strings.TrimSpace(text))]; found {
			return id, true
		}
	}
	return 0, false
}

// normalizeColors accepts color_ids, a colors array of objects, or the
// color1_id/color2_id pair.
func normalizeColors(raw map[string]interface{}) []int64 {
	if ids, ok := raw["color_ids"].([]interface{}); ok {
		var out []int64
		for _, v := range ids {
			if id, ok := asInt64(v); ok && id > 0 {
				out = append(out, id)
			}
		}
		return out
	}
	if colors, ok := raw["colors"].([]interface{}); ok {
		var out []int64
		for _, v := range colors {
			if obj, ok := v.(map[string]interface{}); ok {
				if id, ok := asInt64(obj["id"]); ok && id > 0 {
					out = append(out, id)
				}
			}
		}
		return out
	}
	var out []int64
	for _, key := range []string{"color1_id", "color2_id"} {
		if id, ok := asInt64(raw[key]); ok && id > 0 {
			out = append(out, id)
		}
	}
	return out
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	case string:
		var id int64
		for _, c := range n {
			if c < '0' || c > '9' {
				return 0, false
			}
			id = id*10 + int64(c-'0')
		}
		if n == "" {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
