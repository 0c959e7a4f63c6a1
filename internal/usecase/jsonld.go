package usecase

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cartlens/backend/internal/domain"
)

// productTypes are the schema.org types whose offers carry a price
var productTypes = map[string]bool{
	"product":      true,
	"productgroup": true,
}

// jsonLDPrice scans every JSON-LD block in document order and returns the
// first Product/ProductGroup offer price found. Malformed blocks are skipped.
func jsonLDPrice(doc domain.Document) string {
	for _, script := range doc.All(jsonLDSelector) {
		var data any
		if err := json.Unmarshal([]byte(script.Text()), &data); err != nil {
			continue
		}
		for _, entity := range jsonLDEntities(data) {
			if price := productPrice(entity); price != "" {
				return price
			}
		}
	}
	return ""
}

// jsonLDEntities flattens a block into candidate objects: a single object, an
// array of objects, or an object carrying an @graph array
func jsonLDEntities(data any) []map[string]any {
	var out []map[string]any
	switch v := data.(type) {
	case map[string]any:
		out = append(out, v)
		if graph, ok := v["@graph"].([]any); ok {
			for _, item := range graph {
				if obj, ok := item.(map[string]any); ok {
					out = append(out, obj)
				}
			}
		}
	case []any:
		for _, item := range v {
			out = append(out, jsonLDEntities(item)...)
		}
	}
	return out
}

func productPrice(entity map[string]any) string {
	if !isProductType(entity["@type"]) {
		return ""
	}

	offer := firstOffer(entity["offers"])
	if offer == nil {
		return ""
	}

	price := scalarString(offer["price"])
	if price == "" {
		price = scalarString(offer["lowPrice"])
	}
	if price == "" {
		return ""
	}

	if currency := scalarString(offer["priceCurrency"]); currency != "" {
		return currency + " " + price
	}
	return price
}

// isProductType accepts "Product", "schema:Product" and ["Product", ...]
func isProductType(t any) bool {
	switch v := t.(type) {
	case string:
		name := v
		if i := strings.LastIndexAny(name, ":/"); i >= 0 {
			name = name[i+1:]
		}
		return productTypes[strings.ToLower(name)]
	case []any:
		for _, item := range v {
			if isProductType(item) {
				return true
			}
		}
	}
	return false
}

// firstOffer returns offers itself when it is an object, or its first element
func firstOffer(offers any) map[string]any {
	switch v := offers.(type) {
	case map[string]any:
		return v
	case []any:
		if len(v) == 0 {
			return nil
		}
		obj, _ := v[0].(map[string]any)
		return obj
	}
	return nil
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	}
	return ""
}
