package domain

// SiteProfile bundles the selectors used to extract fields from one
// e-commerce site. Profiles are immutable once registered.
type SiteProfile struct {
	Name           string   `mapstructure:"name" json:"name"`
	DomainMatchers []string `mapstructure:"domain_matchers" json:"domainMatchers"`
	TitleSelectors []string `mapstructure:"title_selectors" json:"titleSelectors"`
	ImageSelectors []string `mapstructure:"image_selectors" json:"imageSelectors"`
	PriceSelectors []string `mapstructure:"price_selectors" json:"priceSelectors"`
}

// Node is a single element matched by a selector query
type Node interface {
	// Tag returns the lowercase element name, e.g. "img" or "meta"
	Tag() string
	// Text returns the trimmed text content of the element
	Text() string
	// Attr returns the attribute value, or "" when absent
	Attr(name string) string
}

// Document is a parsed HTML page that can be queried by selector.
// Selectors prefixed with "xpath:" are evaluated as XPath, everything else as CSS.
type Document interface {
	First(selector string) (Node, bool)
	All(selector string) []Node
}
