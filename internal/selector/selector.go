package selector

import (
	"net/url"
	"sort"
	"strings"
)

// Well-known selector keys
const (
	KeyVehicleCard = "vehicleCard"
	KeyStockNumber = "stockNumber"
	KeyModel       = "model"
	KeyTrim        = "trim"
	KeyImage       = "image"

	// Traversal control keys
	KeyPaginator = "paginator"
	KeyNextPage  = "nextPage"
	KeyLoadMore  = "loadMore"

	// GlobalDomain is the fallback entry shared by every site
	GlobalDomain = "global"
)

// DefaultTraversal holds the traversal selectors used when a site config omits them
var DefaultTraversal = map[string]string{
	KeyPaginator: ".pagination, ul.pager, nav[aria-label='pagination']",
	KeyNextPage:  ".pagination .next:not(.disabled) a, a[rel='next'], .pagination a[aria-label='Next']",
	KeyLoadMore:  "button.load-more, .load-more-button, button.view-more, a.view-more",
}

// StockFallbacks are tried in order when the stockNumber selector matches nothing
var StockFallbacks = []string{".stock-number", ".value__stock", ".stock_label", "[data-stock]"}

// Config maps a logical field name to a CSS selector. Values are opaque and
// never validated.
type Config map[string]string

// Get returns the trimmed selector for key
func (c Config) Get(key string) string {
	return strings.TrimSpace(c[key])
}

// Has reports whether key carries a non-empty selector
func (c Config) Has(key string) bool {
	return c.Get(key) != ""
}

// Clone returns an independent copy
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Traversal returns the selector for a traversal key, falling back to DefaultTraversal
func (c Config) Traversal(key string) string {
	if sel := c.Get(key); sel != "" {
		return sel
	}
	return DefaultTraversal[key]
}

// IsControlKey reports whether key is a page-level selector rather than a card field
func IsControlKey(key string) bool {
	switch key {
	case KeyVehicleCard, KeyPaginator, KeyNextPage, KeyLoadMore:
		return true
	}
	return false
}

// FieldKeys returns the card field keys with a non-empty selector, sorted
func (c Config) FieldKeys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		if IsControlKey(k) || !c.Has(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NormalizeHost reduces a URL or hostname to the registry key: lowercase,
// without scheme, port, path or a leading "www.".
func NormalizeHost(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == GlobalDomain {
		return raw
	}

	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	host := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = u.Hostname()
	} else {
		host = strings.TrimPrefix(host, "//")
		if i := strings.IndexAny(host, "/:?#"); i >= 0 {
			host = host[:i]
		}
	}

	return strings.TrimPrefix(host, "www.")
}
