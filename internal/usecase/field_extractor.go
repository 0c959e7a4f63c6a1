package usecase

import (
	"regexp"
	"strings"

	"github.com/cartlens/backend/internal/domain"
)

// Generic selectors tried after the site profile
const (
	ogTitleSelector       = `meta[property="og:title"]`
	ogImageSelector       = `meta[property="og:image"]`
	titleSelector         = "title"
	firstImageSelector    = "img"
	jsonLDSelector        = `script[type="application/ld+json"]`
	priceAmountSelector   = `meta[property="product:price:amount"]`
	priceCurrencySelector = `meta[property="product:price:currency"]`

	defaultCurrencySymbol = "$"
)

// imageSourceAttrs are read in order from <img> nodes; lazy loaders keep the
// real source in a data attribute and leave src empty or as a placeholder
var imageSourceAttrs = []string{"src", "data-src", "data-old-hires", "data-lazy-src"}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// FieldExtractor derives product fields from a parsed page through ordered
// fallback chains. It holds no state and is safe for concurrent use.
type FieldExtractor struct{}

// NewFieldExtractor creates a new field extractor
func NewFieldExtractor() *FieldExtractor {
	return &FieldExtractor{}
}

// Extract runs every fallback chain. profile may be nil.
func (e *FieldExtractor) Extract(doc domain.Document, profile *domain.SiteProfile) domain.ExtractedFields {
	return domain.ExtractedFields{
		Title: e.Title(doc, profile),
		Image: e.Image(doc, profile),
		Price: e.Price(doc, profile),
		Size:  domain.SizeNotImplemented,
	}
}

// Title: profile selectors -> og:title -> <title> -> "No Title"
func (e *FieldExtractor) Title(doc domain.Document, profile *domain.SiteProfile) string {
	if profile != nil {
		if v := firstText(doc, profile.TitleSelectors); v != "" {
			return v
		}
	}
	if v := metaContent(doc, ogTitleSelector); v != "" {
		return v
	}
	if n, ok := doc.First(titleSelector); ok {
		if v := cleanText(n.Text()); v != "" {
			return v
		}
	}
	return domain.FallbackTitle
}

// Image: profile selectors -> og:image -> first <img> -> ""
func (e *FieldExtractor) Image(doc domain.Document, profile *domain.SiteProfile) string {
	if profile != nil {
		for _, sel := range profile.ImageSelectors {
			if n, ok := doc.First(sel); ok {
				if v := imageValue(n); v != "" {
					return v
				}
			}
		}
	}
	if v := metaContent(doc, ogImageSelector); v != "" {
		return v
	}
	if n, ok := doc.First(firstImageSelector); ok {
		return imageValue(n)
	}
	return ""
}

// Price: profile selectors -> JSON-LD offers -> product:price meta -> "Check Site"
func (e *FieldExtractor) Price(doc domain.Document, profile *domain.SiteProfile) string {
	if profile != nil {
		if v := firstText(doc, profile.PriceSelectors); v != "" {
			return v
		}
	}
	if v := jsonLDPrice(doc); v != "" {
		return v
	}
	if v := metaPrice(doc); v != "" {
		return v
	}
	return domain.FallbackPrice
}

// firstText returns the first non-empty value across the selectors
func firstText(doc domain.Document, selectors []string) string {
	for _, sel := range selectors {
		if n, ok := doc.First(sel); ok {
			if v := textValue(n); v != "" {
				return v
			}
		}
	}
	return ""
}

// textValue reads a node as text; meta tags carry their value in content
func textValue(n domain.Node) string {
	if n.Tag() == "meta" {
		return cleanText(n.Attr("content"))
	}
	return cleanText(n.Text())
}

// imageValue reads an image URL, branching on the element type
func imageValue(n domain.Node) string {
	switch n.Tag() {
	case "img", "source":
		for _, attr := range imageSourceAttrs {
			if v := n.Attr(attr); v != "" && !strings.HasPrefix(v, "data:") {
				return v
			}
		}
		return ""
	case "meta":
		return n.Attr("content")
	case "link":
		return n.Attr("href")
	default:
		return cleanText(n.Text())
	}
}

func metaContent(doc domain.Document, selector string) string {
	if n, ok := doc.First(selector); ok {
		return cleanText(n.Attr("content"))
	}
	return ""
}

// metaPrice reads Open Graph product price tags
func metaPrice(doc domain.Document) string {
	amount := metaContent(doc, priceAmountSelector)
	if amount == "" {
		return ""
	}
	if currency := metaContent(doc, priceCurrencySelector); currency != "" {
		return currency + " " + amount
	}
	return defaultCurrencySymbol + amount
}

// cleanText trims and collapses internal whitespace runs
func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}
