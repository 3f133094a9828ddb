package dom

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sjsage522/srpauditor/logger"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// PlaywrightPage drives a local chromium through playwright
type PlaywrightPage struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	log     *logger.Logger
}

// NewPlaywrightPage launches chromium and navigates to url
func NewPlaywrightPage(ctx context.Context, url string, opts Options) (*PlaywrightPage, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(defaultUserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  1920,
			Height: 1080,
		},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(timeout.Milliseconds()))

	p := &PlaywrightPage{
		pw:      pw,
		browser: browser,
		context: bctx,
		page:    page,
		log:     logger.ForComponent("playwright"),
	}

	if err := ctx.Err(); err != nil {
		p.Close()
		return nil, err
	}
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	}); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}

	p.log.Debug().Str("url", url).Msg("Page loaded")
	return p, nil
}

// URL returns the address of the current document
func (p *PlaywrightPage) URL() string {
	return p.page.URL()
}

// Snapshot serializes the live DOM after tagging hidden elements
func (p *PlaywrightPage) Snapshot(ctx context.Context) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := p.page.Evaluate(snapshotScript)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot page: %w", err)
	}
	html, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected snapshot result %T", res)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Click clicks the first element matching selector
func (p *PlaywrightPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := p.page.Locator(selector).First()
	count, err := target.Count()
	if err != nil {
		return fmt.Errorf("failed to locate %s: %w", selector, err)
	}
	if count == 0 {
		return fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	if err := target.Click(); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// ScrollToBottom scrolls the window to the end of the document
func (p *PlaywrightPage) ScrollToBottom(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.page.Evaluate(scrollScript); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

// Annotate applies the state class and label to the index-th card
func (p *PlaywrightPage) Annotate(ctx context.Context, cardSelector string, index int, state CardState, label string) error {
	script, err := annotateScript(cardSelector, index, state, label)
	if err != nil {
		return err
	}
	res, err := p.page.Evaluate(script)
	if err != nil {
		return fmt.Errorf("failed to annotate card %d: %w", index, err)
	}
	if ok, _ := res.(bool); !ok {
		return fmt.Errorf("card %d: %w", index, ErrElementNotFound)
	}
	return nil
}

// Close tears down the page, browser and driver
func (p *PlaywrightPage) Close() error {
	var errs []error

	if p.context != nil {
		if err := p.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if p.browser != nil {
		if err := p.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if p.pw != nil {
		if err := p.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
