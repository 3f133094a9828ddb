package dom

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sjsage522/srpauditor/logger"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// ChromedpPage drives Chrome over CDP, either a local process or a remote
// endpoint such as a browserless container
type ChromedpPage struct {
	tab     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	log     *logger.Logger
}

// NewChromedpPage connects to opts.ChromeWSURL when set, otherwise launches
// Chrome, and navigates to url
func NewChromedpPage(ctx context.Context, url string, opts Options) (*ChromedpPage, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)
	if opts.ChromeWSURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), opts.ChromeWSURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.DisableGPU,
			chromedp.NoSandbox,
			chromedp.Flag("headless", opts.Headless),
			chromedp.UserAgent(defaultUserAgent),
		)
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), execOpts...)
	}
	tab, cancelTab := chromedp.NewContext(allocCtx)

	p := &ChromedpPage{
		tab: tab,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
		timeout: timeout,
		log:     logger.ForComponent("chromedp"),
	}

	// allocate on the tab context so per-call timeouts never own the browser
	if err := chromedp.Run(tab); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	if err := p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}

	p.log.Debug().Str("url", url).Bool("remote", opts.ChromeWSURL != "").Msg("Page loaded")
	return p, nil
}

// run executes actions on the tab, bounded by the page timeout and by ctx
func (p *ChromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(p.tab, p.timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// URL returns the address of the current document
func (p *ChromedpPage) URL() string {
	var loc string
	if err := p.run(context.Background(), chromedp.Location(&loc)); err != nil {
		p.log.Warn().Err(err).Msg("Failed to read location")
	}
	return loc
}

// Snapshot serializes the live DOM after tagging hidden elements
func (p *ChromedpPage) Snapshot(ctx context.Context) (*goquery.Document, error) {
	var html string
	if err := p.run(ctx, chromedp.Evaluate(snapshotScript, &html)); err != nil {
		return nil, fmt.Errorf("failed to snapshot page: %w", err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Click clicks the first element matching selector
func (p *ChromedpPage) Click(ctx context.Context, selector string) error {
	script, err := callScript(existsFunc, selector)
	if err != nil {
		return err
	}
	var exists bool
	if err := p.run(ctx, chromedp.Evaluate(script, &exists)); err != nil {
		return fmt.Errorf("failed to locate %s: %w", selector, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// ScrollToBottom scrolls the window to the end of the document
func (p *ChromedpPage) ScrollToBottom(ctx context.Context) error {
	var done bool
	if err := p.run(ctx, chromedp.Evaluate(scrollScript, &done)); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

// Annotate applies the state class and label to the index-th card
func (p *ChromedpPage) Annotate(ctx context.Context, cardSelector string, index int, state CardState, label string) error {
	script, err := annotateScript(cardSelector, index, state, label)
	if err != nil {
		return err
	}
	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("failed to annotate card %d: %w", index, err)
	}
	if !ok {
		return fmt.Errorf("card %d: %w", index, ErrElementNotFound)
	}
	return nil
}

// Close cancels the tab and its allocator
func (p *ChromedpPage) Close() error {
	p.cancel()
	return nil
}
