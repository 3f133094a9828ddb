package traverse

import (
	"sjsage522/srpauditor/internal/selector"

	"github.com/PuerkitoBio/goquery"
)

// Mode is the loading idiom a page uses
type Mode int

const (
	ModeInfiniteScroll Mode = iota
	ModePagination
	ModeViewMore
)

func (m Mode) String() string {
	switch m {
	case ModePagination:
		return "pagination"
	case ModeViewMore:
		return "view-more"
	default:
		return "infinite-scroll"
	}
}

// DetectMode probes a snapshot for a paginator, then a load-more control,
// and otherwise assumes infinite scroll
func DetectMode(doc *goquery.Document, cfg selector.Config) Mode {
	if doc.Find(cfg.Traversal(selector.KeyPaginator)).Length() > 0 {
		return ModePagination
	}
	if doc.Find(cfg.Traversal(selector.KeyLoadMore)).Length() > 0 {
		return ModeViewMore
	}
	return ModeInfiniteScroll
}
