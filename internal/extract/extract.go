package extract

import (
	"regexp"
	"strings"

	"sjsage522/srpauditor/internal/selector"

	"github.com/PuerkitoBio/goquery"
)

var stockLabel = regexp.MustCompile(`(?i)^\s*stock\s*(?:(?:#|no\.?|number)\s*:?|:)\s*`)

// VehicleRecord is the flat field map extracted from one card
type VehicleRecord map[string]string

// StockNumber returns the extracted stock number
func (r VehicleRecord) StockNumber() string { return r[selector.KeyStockNumber] }

// Model returns the extracted model
func (r VehicleRecord) Model() string { return r[selector.KeyModel] }

// Trim returns the extracted trim
func (r VehicleRecord) Trim() string { return r[selector.KeyTrim] }

// Image returns the extracted image URL
func (r VehicleRecord) Image() string { return r[selector.KeyImage] }

// Complete reports whether the record carries a stock number and a model
func (r VehicleRecord) Complete() bool {
	return r.StockNumber() != "" && r.Model() != ""
}

// Subset returns a copy restricted to fields; an empty list keeps everything
func (r VehicleRecord) Subset(fields []string) VehicleRecord {
	out := make(VehicleRecord, len(r))
	if len(fields) == 0 {
		for k, v := range r {
			out[k] = v
		}
		return out
	}
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Extract builds a record from every card field selector in cfg
func Extract(card *goquery.Selection, cfg selector.Config) VehicleRecord {
	rec := make(VehicleRecord)
	for _, key := range cfg.FieldKeys() {
		rec[key] = ExtractField(card, cfg, key)
	}
	if _, ok := rec[selector.KeyStockNumber]; !ok {
		rec[selector.KeyStockNumber] = stockFallback(card)
	}
	return rec
}

// ExtractCore extracts only stock number, model, trim and image
func ExtractCore(card *goquery.Selection, cfg selector.Config) VehicleRecord {
	rec := make(VehicleRecord, 4)
	for _, key := range []string{selector.KeyStockNumber, selector.KeyModel, selector.KeyTrim, selector.KeyImage} {
		rec[key] = ExtractField(card, cfg, key)
	}
	return rec
}

// ExtractField extracts a single field from card. A missing stockNumber
// match falls back to the well-known stock selectors.
func ExtractField(card *goquery.Selection, cfg selector.Config, key string) string {
	sel := cfg.Get(key)
	if sel == "" {
		if key == selector.KeyStockNumber {
			return stockFallback(card)
		}
		return ""
	}

	match := card.Find(sel).First()
	if match.Length() == 0 {
		if key == selector.KeyStockNumber {
			return stockFallback(card)
		}
		return ""
	}

	value := elementValue(match)
	if isStockField(key) {
		value = StripStockLabel(value)
	}
	return value
}

// elementValue returns the lazy-load source of an image or the collapsed text otherwise
func elementValue(s *goquery.Selection) string {
	if goquery.NodeName(s) == "img" {
		if src, ok := s.Attr("data-src"); ok && strings.TrimSpace(src) != "" {
			return strings.TrimSpace(src)
		}
		if src, ok := s.Attr("src"); ok {
			return strings.TrimSpace(src)
		}
		return ""
	}
	return collapse(s.Text())
}

// FallbackStock returns the stock number found by the fallback selectors when
// a configured stockNumber selector matches nothing in card
func FallbackStock(card *goquery.Selection, cfg selector.Config) (string, bool) {
	sel := cfg.Get(selector.KeyStockNumber)
	if sel == "" || card.Find(sel).Length() > 0 {
		return "", false
	}
	stock := stockFallback(card)
	return stock, stock != ""
}

func stockFallback(card *goquery.Selection) string {
	for _, sel := range selector.StockFallbacks {
		match := card.Find(sel).First()
		if match.Length() == 0 {
			continue
		}
		if attr, ok := match.Attr("data-stock"); ok && strings.TrimSpace(attr) != "" {
			return StripStockLabel(strings.TrimSpace(attr))
		}
		if value := StripStockLabel(collapse(match.Text())); value != "" {
			return value
		}
	}
	return ""
}

func isStockField(key string) bool {
	return key == selector.KeyStockNumber || strings.Contains(strings.ToLower(key), "stock")
}

// StripStockLabel removes a leading "Stock#:" style label
func StripStockLabel(value string) string {
	return strings.TrimSpace(stockLabel.ReplaceAllString(value, ""))
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
