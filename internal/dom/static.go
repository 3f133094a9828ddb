package dom

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"sjsage522/srpauditor/helpers"
	"sjsage522/srpauditor/logger"

	"github.com/PuerkitoBio/goquery"
)

// FetchFunc retrieves a page body
type FetchFunc func(ctx context.Context, url string) (io.Reader, error)

// StaticPage is a server-rendered page held in memory. Clicking a control
// follows the nearest href; scripts never run, so scrolling loads nothing.
type StaticPage struct {
	mu    sync.Mutex
	url   string
	doc   *goquery.Document
	fetch FetchFunc
	log   *logger.Logger
}

// NewStaticPage fetches url with the shared HTTP client
func NewStaticPage(ctx context.Context, url string) (*StaticPage, error) {
	return NewStaticPageWithFetcher(ctx, url, helpers.FetchWithRandomHeaders)
}

// NewStaticPageWithFetcher fetches url with fetch
func NewStaticPageWithFetcher(ctx context.Context, url string, fetch FetchFunc) (*StaticPage, error) {
	p := &StaticPage{
		fetch: fetch,
		log:   logger.ForComponent("static-page"),
	}
	if err := p.load(ctx, url); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *StaticPage) load(ctx context.Context, url string) error {
	body, err := p.fetch(ctx, url)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}
	p.url = url
	p.doc = doc
	p.log.Debug().Str("url", url).Msg("Page loaded")
	return nil
}

// URL returns the address of the current document
func (p *StaticPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Snapshot returns a detached copy of the current document
func (p *StaticPage) Snapshot(ctx context.Context) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	html, err := p.doc.Html()
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Click navigates to the href of the first element matching selector, or of
// the anchor inside or around it
func (p *StaticPage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := p.doc.Find(selector).First()
	if target.Length() == 0 {
		return fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}

	href, ok := target.Attr("href")
	if !ok {
		href, ok = target.Find("a[href]").First().Attr("href")
	}
	if !ok {
		href, ok = target.Closest("a[href]").Attr("href")
	}
	if !ok || strings.HasPrefix(strings.TrimSpace(href), "javascript:") || strings.TrimSpace(href) == "#" {
		return fmt.Errorf("%s: %w", selector, ErrNotNavigable)
	}

	next, err := helpers.ResolveURL(p.url, href)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", href, err)
	}
	return p.load(ctx, next)
}

// ScrollToBottom has nothing to trigger on a static document
func (p *StaticPage) ScrollToBottom(ctx context.Context) error {
	return ctx.Err()
}

// Annotate applies the state class and label to the index-th card
func (p *StaticPage) Annotate(ctx context.Context, cardSelector string, index int, state CardState, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	card := p.doc.Find(cardSelector).Eq(index)
	if card.Length() == 0 {
		return fmt.Errorf("card %d: %w", index, ErrElementNotFound)
	}

	for _, c := range StateClasses() {
		card.RemoveClass(c)
	}
	if cls := state.Class(); cls != "" {
		card.AddClass(cls)
	}

	labelSel := card.ChildrenFiltered("." + LabelClass)
	if labelSel.Length() == 0 {
		card.AppendHtml(`<span class="` + LabelClass + `"></span>`)
		labelSel = card.ChildrenFiltered("." + LabelClass)
	}
	labelSel.SetText(label)
	return nil
}

// Close releases nothing; the document is garbage collected
func (p *StaticPage) Close() error {
	return nil
}
