package gateway

import (
	"encoding/json"
	"regexp"
)

// Item pages deliver their data through Nuxt's serialized state, a flat JSON
// array where object fields hold integer indexes into the same array instead
// of values. extractItemFromHTML pulls that payload out of the page, resolves
// the references, and locates the item object.

var (
	nuxtDataRe = regexp.MustCompile(`(?s)<script[^>]*id="__NUXT_DATA__"[^>]*>(.*?)</script>`)
	jsonLDRe   = regexp.MustCompile(`(?s)<script[^>]*type="application/ld\+json"[^>]*>(.*?)</script>`)
)

const (
	maxResolveDepth = 40
	maxSearchDepth  = 25
)

func extractItemFromHTML(html string, itemID int64) (map[string]interface{}, bool) {
	for _, match := range nuxtDataRe.FindAllStringSubmatch(html, -1) {
		data, ok := parseNuxtPayload(match[1])
		if !ok {
			continue
		}
		if item, found := findItem(data, itemID, 0); found {
			return item, true
		}
	}

	// Fallback: Schema.org Product markup carries a reduced field set.
	for _, match := range jsonLDRe.FindAllStringSubmatch(html, -1) {
		var ld interface{}
		if err := json.Unmarshal([]byte(match[1]), &ld); err != nil {
			continue
		}
		entries, ok := ld.([]interface{})
		if !ok {
			entries = []interface{}{ld}
		}
		for _, entry := range entries {
			product, ok := entry.(map[string]interface{})
			if !ok || asString(product["@type"]) != "Product" {
				continue
			}
			return productToItem(product, itemID), true
		}
	}

	return nil, false
}

func parseNuxtPayload(raw string) (interface{}, bool) {
	var arr []interface{}
	if err := json.Unmarshal([]byte(raw), &arr); err != nil {
		return nil, false
	}
	if len(arr) < 2 {
		return nil, false
	}
	header, ok := arr[0].([]interface{})
	if !ok || len(header) < 2 {
		return nil, false
	}
	kind := asString(header[0])
	if kind != "Reactive" && kind != "ShallowReactive" {
		return nil, false
	}
	return resolveNuxtNode(arr, 1, 0), true
}

// resolveNuxtNode dereferences one entry of the serialized array. Integer
// values inside objects and lists are indexes into the array, not numbers.
func resolveNuxtNode(arr []interface{}, idx int, depth int) interface{} {
	if depth > maxResolveDepth || idx < 0 || idx >= len(arr) {
		return nil
	}

	switch node := arr[idx].(type) {
	case map[string]interface{}:
		result := make(map[string]interface{}, len(node))
		for k, v := range node {
			if ref, ok := asIndex(v); ok {
				result[k] = resolveNuxtNode(arr, ref, depth+1)
			} else {
				result[k] = v
			}
		}
		return result

	case []interface{}:
		if len(node) == 0 {
			return []interface{}{}
		}
		if tag, ok := node[0].(string); ok {
			switch tag {
			case "Ref", "EmptyRef", "EmptyShallowRef", "ShallowReactive", "Reactive":
				if len(node) > 1 {
					if ref, ok := asIndex(node[1]); ok {
						return resolveNuxtNode(arr, ref, depth+1)
					}
				}
				return nil
			case "Set":
				out := make([]interface{}, 0, len(node)-1)
				for _, v := range node[1:] {
					if ref, ok := asIndex(v); ok {
						out = append(out, resolveNuxtNode(arr, ref, depth+1))
					} else {
						out = append(out, v)
					}
				}
				return out
			case "null":
				// Object encoded as ["null", key1, idx1, key2, idx2, ...]
				result := make(map[string]interface{})
				for i := 1; i < len(node)-1; i += 2 {
					key, ok := node[i].(string)
					if !ok {
						continue
					}
					if ref, ok := asIndex(node[i+1]); ok {
						result[key] = resolveNuxtNode(arr, ref, depth+1)
					} else {
						result[key] = node[i+1]
					}
				}
				return result
			}
		}
		out := make([]interface{}, 0, len(node))
		for _, v := range node {
			if ref, ok := asIndex(v); ok {
				out = append(out, resolveNuxtNode(arr, ref, depth+1))
			} else {
				out = append(out, v)
			}
		}
		return out

	default:
		return node
	}
}

// findItem searches the resolved state for an object whose id matches and
// that carries listing fields.
func findItem(data interface{}, itemID int64, depth int) (map[string]interface{}, bool) {
	if depth > maxSearchDepth {
		return nil, false
	}

	switch node := data.(type) {
	case map[string]interface{}:
		if id, ok := asInt64(node["id"]); ok && id == itemID {
			if _, hasTitle := node["title"]; hasTitle {
				return node, true
			}
			if _, hasDesc := node["description"]; hasDesc {
				return node, true
			}
		}
		for _, v := range node {
			if item, found := findItem(v, itemID, depth+1); found {
				return item, true
			}
		}
	case []interface{}:
		for _, v := range node {
			if item, found := findItem(v, itemID, depth+1); found {
				return item, true
			}
		}
	}
	return nil, false
}

// productToItem maps Schema.org Product markup to the raw item shape the
// normalizer expects.
func productToItem(product map[string]interface{}, itemID int64) map[string]interface{} {
	item := map[string]interface{}{
		"id":    float64(itemID),
		"title": asString(product["name"]),
	}
	if desc := asString(product["description"]); desc != "" {
		item["description"] = desc
	}
	if offers, ok := product["offers"].(map[string]interface{}); ok {
		if price := offers["price"]; price != nil {
			item["price"] = price
		}
		if currency := asString(offers["priceCurrency"]); currency != "" {
			item["currency"] = currency
		}
	}
	if condition := asString(product["itemCondition"]); condition != "" {
		conditionIDs := map[string]float64{
			"https://schema.org/NewCondition":         6,
			"https://schema.org/UsedCondition":        3,
			"https://schema.org/RefurbishedCondition": 2,
		}
		if id, ok := conditionIDs[condition]; ok {
			item["status_id"] = id
		}
	}
	if images, ok := product["image"].([]interface{}); ok {
		item["photos"] = images
	}
	return item
}

// asIndex reports whether v is an integer usable as an array reference.
func asIndex(v interface{}) (int, bool) {
	n, ok := v.(float64)
	if !ok || n != float64(int(n)) || n < 0 {
		return 0, false
	}
	return int(n), true
}
