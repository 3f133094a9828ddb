package dom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrElementNotFound is returned when a click target matches nothing
	ErrElementNotFound = errors.New("element not found")
	// ErrNotNavigable is returned by drivers that cannot act on a control
	ErrNotNavigable = errors.New("control cannot be activated by this driver")
)

// Page is the DOM surface the engine consumes. Snapshots are detached
// copies; annotations and clicks act on the live page.
type Page interface {
	URL() string
	Snapshot(ctx context.Context) (*goquery.Document, error)
	Click(ctx context.Context, selector string) error
	ScrollToBottom(ctx context.Context) error
	Annotate(ctx context.Context, cardSelector string, index int, state CardState, label string) error
	Close() error
}

// Options selects and configures a page driver
type Options struct {
	Driver      string
	Headless    bool
	ChromeWSURL string
	Timeout     time.Duration
}

// Open loads url with the configured driver
func Open(ctx context.Context, url string, opts Options) (Page, error) {
	switch opts.Driver {
	case "", "static":
		return NewStaticPage(ctx, url)
	case "playwright":
		return NewPlaywrightPage(ctx, url, opts)
	case "chromedp":
		return NewChromedpPage(ctx, url, opts)
	default:
		return nil, fmt.Errorf("unknown browser driver %q", opts.Driver)
	}
}

// snapshotScript tags elements without a layout box and returns the markup
const snapshotScript = `(() => {
	document.querySelectorAll('[data-srp-hidden]').forEach(el => el.removeAttribute('data-srp-hidden'));
	document.body.querySelectorAll('*').forEach(el => {
		if (el.getClientRects().length === 0) el.setAttribute('data-srp-hidden', '');
	});
	return document.documentElement.outerHTML;
})()`

const scrollScript = `(window.scrollTo(0, document.body.scrollHeight), true)`

const annotateFunc = `(sel, idx, cls, all, labelClass, label) => {
	const el = document.querySelectorAll(sel)[idx];
	if (!el) return false;
	all.forEach(c => el.classList.remove(c));
	if (cls) el.classList.add(cls);
	let l = el.querySelector(':scope > .' + labelClass);
	if (!l) {
		l = document.createElement('span');
		l.className = labelClass;
		el.appendChild(l);
	}
	l.textContent = label;
	return true;
}`

const existsFunc = `(sel) => document.querySelector(sel) !== null`

// callScript renders a call of fn with JSON-encoded arguments
func callScript(fn string, args ...interface{}) (string, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s)(...%s)", fn, encoded), nil
}

func annotateScript(cardSelector string, index int, state CardState, label string) (string, error) {
	return callScript(annotateFunc, cardSelector, index, state.Class(), StateClasses(), LabelClass, label)
}
