package usecase

import (
	"strings"

	"github.com/cartlens/backend/internal/domain"
)

// ProfileRegistry resolves a URL to at most one site profile. Registration
// order is the only priority: the first profile with a matching domain wins.
type ProfileRegistry struct {
	profiles []domain.SiteProfile
}

// NewProfileRegistry builds a registry from the given profiles in order.
// Matchers are lowercased once here so Match can compare directly.
func NewProfileRegistry(profiles ...domain.SiteProfile) *ProfileRegistry {
	registered := make([]domain.SiteProfile, 0, len(profiles))
	for _, p := range profiles {
		matchers := make([]string, 0, len(p.DomainMatchers))
		for _, m := range p.DomainMatchers {
			if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
				matchers = append(matchers, m)
			}
		}
		p.DomainMatchers = matchers
		p.TitleSelectors = append([]string(nil), p.TitleSelectors...)
		p.ImageSelectors = append([]string(nil), p.ImageSelectors...)
		p.PriceSelectors = append([]string(nil), p.PriceSelectors...)
		registered = append(registered, p)
	}
	return &ProfileRegistry{profiles: registered}
}

// NewDefaultProfileRegistry registers the custom profiles ahead of the
// built-in ones, so configuration can override a built-in site.
func NewDefaultProfileRegistry(custom ...domain.SiteProfile) *ProfileRegistry {
	all := make([]domain.SiteProfile, 0, len(custom)+len(BuiltinProfiles))
	all = append(all, custom...)
	all = append(all, BuiltinProfiles...)
	return NewProfileRegistry(all...)
}

// Match returns the first profile whose matcher is a substring of the
// lowercased URL, or nil.
func (r *ProfileRegistry) Match(url string) *domain.SiteProfile {
	lower := strings.ToLower(url)
	for i := range r.profiles {
		for _, m := range r.profiles[i].DomainMatchers {
			if strings.Contains(lower, m) {
				p := r.profiles[i]
				return &p
			}
		}
	}
	return nil
}

// Names lists registered profile names in priority order
func (r *ProfileRegistry) Names() []string {
	names := make([]string, len(r.profiles))
	for i, p := range r.profiles {
		names[i] = p.Name
	}
	return names
}

// BuiltinProfiles are the site rules shipped with the service
var BuiltinProfiles = []domain.SiteProfile{
	{
		Name:           "amazon",
		DomainMatchers: []string{"amazon.", "amzn."},
		TitleSelectors: []string{"#productTitle", "#title"},
		ImageSelectors: []string{"#landingImage", "#imgBlkFront", "#main-image"},
		PriceSelectors: []string{
			".a-price .a-offscreen",
			"#priceblock_ourprice",
			"#priceblock_dealprice",
			"#corePrice_feature_div .a-offscreen",
		},
	},
	{
		Name:           "ebay",
		DomainMatchers: []string{"ebay."},
		TitleSelectors: []string{"h1.x-item-title__mainTitle span", "#itemTitle"},
		ImageSelectors: []string{".ux-image-carousel-item img", "#icImg"},
		PriceSelectors: []string{".x-price-primary span", "#prcIsum"},
	},
	{
		Name:           "walmart",
		DomainMatchers: []string{"walmart."},
		TitleSelectors: []string{"h1[itemprop='name']", "h1#main-title"},
		ImageSelectors: []string{"img[data-testid='hero-image']", "[data-testid='media-thumbnail'] img"},
		PriceSelectors: []string{"span[itemprop='price']", "[data-testid='price-wrap'] span"},
	},
	{
		Name:           "target",
		DomainMatchers: []string{"target.com"},
		TitleSelectors: []string{"h1[data-test='product-title']"},
		ImageSelectors: []string{"[data-test='image-gallery-item-0'] img"},
		PriceSelectors: []string{"[data-test='product-price']"},
	},
	{
		Name:           "etsy",
		DomainMatchers: []string{"etsy."},
		TitleSelectors: []string{"h1[data-buy-box-listing-title]"},
		ImageSelectors: []string{"img[data-index='0']", ".listing-page-image-carousel-component img"},
		PriceSelectors: []string{"[data-buy-box-region='price'] p.wt-text-title-larger"},
	},
	{
		Name:           "bestbuy",
		DomainMatchers: []string{"bestbuy."},
		TitleSelectors: []string{".sku-title h1"},
		ImageSelectors: []string{"img.primary-image"},
		PriceSelectors: []string{".priceView-customer-price span"},
	},
	{
		Name:           "zara",
		DomainMatchers: []string{"zara.com"},
		TitleSelectors: []string{"h1.product-detail-info__header-name"},
		ImageSelectors: []string{"picture.media-image img"},
		PriceSelectors: []string{".price-current__amount", ".money-amount__main"},
	},
	{
		Name:           "hm",
		DomainMatchers: []string{"hm.com"},
		TitleSelectors: []string{"h1.product-item-headline", "h1"},
		ImageSelectors: []string{".product-detail-main-image-container img"},
		PriceSelectors: []string{"#product-price .price-value", "[data-testid='white-price']"},
	},
	{
		Name:           "nike",
		DomainMatchers: []string{"nike.com"},
		TitleSelectors: []string{"#pdp_product_title", "h1[data-test='product-title']"},
		ImageSelectors: []string{"img[data-testid='HeroImg']"},
		PriceSelectors: []string{"[data-testid='currentPrice-container']", "[data-test='product-price']"},
	},
}
