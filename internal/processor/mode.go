package processor

import (
	"fmt"
	"strings"

	"sjsage522/srpauditor/internal/selector"
	"sjsage522/srpauditor/internal/traverse"
)

// Mode is the work done on each card. The set of modes is closed.
type Mode interface {
	Name() string
	isMode()
}

// Feed is the reconciliation dataset as the processor sees it
type Feed interface {
	Columns() []string
	Lookup(pageKey string) (map[string]string, bool)
}

// Reconcile compares card fields with the feed row sharing the primary key
type Reconcile struct {
	Feed Feed
	// FieldMap maps a feed column to a selector key. Empty means every
	// column whose name equals a selector key, ignoring case.
	FieldMap map[string]string
	// KeyField is the selector key of the primary key; stockNumber when empty
	KeyField string
}

// Placeholder flags cards whose image is a "coming soon" placeholder
type Placeholder struct{}

// SmallImage flags cards whose image is below ThresholdKB kilobytes
type SmallImage struct {
	ThresholdKB int
}

// Export extracts full records restricted to Fields; empty keeps every field
type Export struct {
	Fields []string
}

func (Reconcile) Name() string   { return "reconcile" }
func (Placeholder) Name() string { return "placeholder" }
func (SmallImage) Name() string  { return "small-image" }
func (Export) Name() string      { return "export" }

func (Reconcile) isMode()   {}
func (Placeholder) isMode() {}
func (SmallImage) isMode()  {}
func (Export) isMode()      {}

func (r Reconcile) keyField() string {
	if r.KeyField != "" {
		return r.KeyField
	}
	return selector.KeyStockNumber
}

// mapping resolves the feed column to selector key pairs compared per card.
// The primary key itself is matched by lookup, not compared.
func (r Reconcile) mapping(cfg selector.Config) map[string]string {
	out := make(map[string]string)
	if len(r.FieldMap) > 0 {
		for col, key := range r.FieldMap {
			if key != r.keyField() {
				out[col] = key
			}
		}
		return out
	}

	keys := cfg.FieldKeys()
	for _, col := range r.Feed.Columns() {
		for _, key := range keys {
			if strings.EqualFold(strings.TrimSpace(col), key) && key != r.keyField() {
				out[col] = key
				break
			}
		}
	}
	return out
}

// Revisit decides whether image modes re-evaluate Processed cards
type Revisit string

const (
	RevisitNever Revisit = "never"
	// RevisitPaginated re-evaluates during pagination and view-more passes,
	// catching images that finished loading late
	RevisitPaginated Revisit = "paginated"
	RevisitAlways    Revisit = "always"
)

// ParseRevisit validates a revisit policy name
func ParseRevisit(s string) (Revisit, error) {
	switch r := Revisit(strings.ToLower(strings.TrimSpace(s))); r {
	case RevisitNever, RevisitPaginated, RevisitAlways:
		return r, nil
	case "":
		return RevisitPaginated, nil
	default:
		return "", fmt.Errorf("unknown revisit policy %q", s)
	}
}

func (r Revisit) allows(mode traverse.Mode) bool {
	switch r {
	case RevisitAlways:
		return true
	case RevisitPaginated:
		return mode == traverse.ModePagination || mode == traverse.ModeViewMore
	default:
		return false
	}
}
