// Package processor applies the requested mode to each batch of visible
// cards, strictly in DOM order, one card at a time.
package processor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sjsage522/srpauditor/helpers"
	"sjsage522/srpauditor/internal/annotate"
	"sjsage522/srpauditor/internal/dom"
	"sjsage522/srpauditor/internal/extract"
	"sjsage522/srpauditor/internal/reconcile"
	"sjsage522/srpauditor/internal/selector"
	"sjsage522/srpauditor/internal/traverse"
	"sjsage522/srpauditor/logger"
	apperrors "sjsage522/srpauditor/pkg/errors"

	"github.com/PuerkitoBio/goquery"
)

// PlaceholderDetector classifies an image URL
type PlaceholderDetector interface {
	IsPlaceholder(ctx context.Context, imageURL string) (bool, error)
}

// ImageSizer checks an image against a size threshold
type ImageSizer interface {
	IsSmall(ctx context.Context, imageURL string, thresholdKB int) (bool, float64, error)
}

// Options carries the collaborators a mode needs
type Options struct {
	Detector    PlaceholderDetector
	Sizer       ImageSizer
	Annotator   *annotate.Annotator
	Revisit     Revisit
	Diagnostics helpers.LoggerInterface
	Results     *Results
}

// Processor handles batches for one site and one mode
type Processor struct {
	domain   string
	cfg      selector.Config
	mode     Mode
	opts     Options
	fieldMap map[string]string
	columns  []string
	results  *Results
	now      func() time.Time
	log      *logger.Logger

	// stockWarned is set once a fallback-only stock number was reported
	stockWarned bool
}

// New validates the selector config for mode and wires a processor
func New(domain string, cfg selector.Config, mode Mode, opts Options) (*Processor, error) {
	if mode == nil {
		return nil, apperrors.NewConfiguration("no processing mode selected", nil)
	}
	if opts.Results == nil {
		opts.Results = NewResults()
	}
	if opts.Revisit == "" {
		opts.Revisit = RevisitPaginated
	}

	p := &Processor{
		domain:  domain,
		cfg:     cfg,
		mode:    mode,
		opts:    opts,
		results: opts.Results,
		now:     time.Now,
		log:     logger.ForDomain(domain).WithFields(logger.Fields{"component": "processor", "mode": mode.Name()}),
	}

	switch m := mode.(type) {
	case Reconcile:
		if m.Feed == nil {
			return nil, apperrors.NewConfiguration("reconciliation needs a CSV feed", nil)
		}
		if err := selector.Require(domain, cfg, m.keyField()); err != nil {
			return nil, err
		}
		p.fieldMap = m.mapping(cfg)
		for col := range p.fieldMap {
			p.columns = append(p.columns, col)
		}
		sort.Strings(p.columns)
		if len(p.columns) == 0 {
			p.log.Warn().Msg("No feed column maps to a selector; only key matching will run")
		}
	case Placeholder:
		if opts.Detector == nil {
			return nil, apperrors.NewConfiguration("placeholder detection needs a classifier", nil)
		}
		if err := selector.Require(domain, cfg); err != nil {
			return nil, err
		}
	case SmallImage:
		if opts.Sizer == nil {
			return nil, apperrors.NewConfiguration("small image detection needs a size checker", nil)
		}
		if m.ThresholdKB < 1 {
			return nil, apperrors.NewConfiguration("small image threshold must be at least 1 KB", nil)
		}
		if err := selector.Require(domain, cfg); err != nil {
			return nil, err
		}
	case Export:
		if err := selector.Require(domain, cfg); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SetAnnotator attaches the annotator once a page is open. Cards are not
// annotated while it is nil.
func (p *Processor) SetAnnotator(a *annotate.Annotator) {
	p.opts.Annotator = a
}

// Results returns the shared result collection
func (p *Processor) Results() *Results {
	return p.results
}

// ProcessBatch runs the mode over every eligible card in doc
func (p *Processor) ProcessBatch(ctx context.Context, doc *goquery.Document, pass traverse.Pass) error {
	cards := dom.Cards(doc, p.cfg.Get(selector.KeyVehicleCard))

	var pending []int
	cards.Each(func(i int, card *goquery.Selection) {
		if p.eligible(dom.StateOf(card), pass) {
			pending = append(pending, i)
		} else {
			p.results.count(func(c *Counts) { c.Skipped++ })
		}
	})

	p.log.Debug().
		Int("iteration", pass.Iteration).
		Int("cards", cards.Length()).
		Int("pending", len(pending)).
		Msg("Processing batch")

	if len(pending) > 0 {
		p.waiting(ctx, pending[0])
	}
	for j, index := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.processCard(ctx, cards.Eq(index), index, pass)
		if j+1 < len(pending) {
			p.waiting(ctx, pending[j+1])
		}
	}
	return nil
}

func (p *Processor) eligible(state dom.CardState, pass traverse.Pass) bool {
	if !state.Terminal() {
		return true
	}
	switch p.mode.(type) {
	case Placeholder, SmallImage:
		return state == dom.StateProcessed && p.opts.Revisit.allows(pass.Mode)
	default:
		return false
	}
}

func (p *Processor) processCard(ctx context.Context, card *goquery.Selection, index int, pass traverse.Pass) {
	var mark *annotate.Mark
	if p.opts.Annotator != nil {
		mark = p.opts.Annotator.Begin(ctx, index)
	}
	p.checkStockSelector(card)

	var state dom.CardState
	switch m := p.mode.(type) {
	case Reconcile:
		state = p.reconcileCard(card, m)
	case Placeholder:
		state = p.placeholderCard(ctx, card, pass)
	case SmallImage:
		state = p.smallImageCard(ctx, card, pass, m)
	case Export:
		state = p.exportCard(card, m)
	default:
		state = dom.StateError
	}

	p.results.count(func(c *Counts) {
		switch state {
		case dom.StateProcessed:
			c.Processed++
		case dom.StateMissingData:
			c.MissingData++
		case dom.StateError:
			c.Errors++
		case dom.StateComingSoon, dom.StateSmallImage:
			c.Hits++
		}
	})

	if mark == nil {
		return
	}
	if state == dom.StateNone {
		mark.Release(ctx)
		return
	}
	mark.Finish(ctx, state)
}

// checkStockSelector reports, once per run, a configured stockNumber selector
// that matches nothing while a fallback selector still finds the stock
func (p *Processor) checkStockSelector(card *goquery.Selection) {
	if p.stockWarned {
		return
	}
	stock, ok := extract.FallbackStock(card, p.cfg)
	if !ok {
		return
	}
	p.stockWarned = true
	p.diagnose("extract", apperrors.NewExtraction(p.domain,
		fmt.Sprintf("stock %s found only by fallback selectors; %q matched nothing", stock, p.cfg.Get(selector.KeyStockNumber)), nil))
}

func (p *Processor) reconcileCard(card *goquery.Selection, m Reconcile) dom.CardState {
	key := extract.ExtractField(card, p.cfg, m.keyField())
	if key == "" {
		p.log.Debug().Msg("Card without primary key")
		return dom.StateMissingData
	}
	if extract.ExtractField(card, p.cfg, selector.KeyModel) == "" {
		p.log.Debug().Str("key", key).Msg("Card without model")
		return dom.StateMissingData
	}

	row, ok := m.Feed.Lookup(key)
	if !ok {
		p.results.count(func(c *Counts) { c.Unmatched++ })
		p.log.Info().Str("key", key).Msg("No feed row for card")
		return dom.StateProcessed
	}

	mismatches := make(map[string]reconcile.Mismatch)
	for _, col := range p.columns {
		srp := extract.ExtractField(card, p.cfg, p.fieldMap[col])
		if mm, differs := reconcile.Compare(col, row[col], srp); differs {
			mismatches[col] = mm
		}
	}
	p.results.report.Merge(key, mismatches)
	return dom.StateProcessed
}

func (p *Processor) imageRecord(card *goquery.Selection, pass traverse.Pass) (extract.VehicleRecord, string, bool) {
	rec := extract.ExtractCore(card, p.cfg)
	if !rec.Complete() || rec.Image() == "" {
		return rec, "", false
	}
	img := rec.Image()
	if pass.URL != "" {
		if abs, err := helpers.ResolveURL(pass.URL, img); err == nil {
			img = abs
		}
	}
	return rec, img, true
}

func (p *Processor) placeholderCard(ctx context.Context, card *goquery.Selection, pass traverse.Pass) dom.CardState {
	rec, img, ok := p.imageRecord(card, pass)
	if !ok {
		return dom.StateMissingData
	}
	if strings.HasPrefix(img, "data:") {
		// inline lazy-load stub; left unmarked so the next pass retries it
		return dom.StateNone
	}

	placeholder, err := p.opts.Detector.IsPlaceholder(ctx, img)
	if err != nil {
		p.diagnose("classifier", fmt.Errorf("%s %s: %w", rec.StockNumber(), img, err))
		return dom.StateError
	}
	if !placeholder {
		return dom.StateProcessed
	}

	if p.results.AddPlaceholder(PlaceholderHit{
		Model:       rec.Model(),
		Trim:        rec.Trim(),
		StockNumber: rec.StockNumber(),
		ImageURL:    img,
	}) {
		p.log.Info().Str("stock", rec.StockNumber()).Str("url", img).Msg("Placeholder image found")
	}
	return dom.StateComingSoon
}

func (p *Processor) smallImageCard(ctx context.Context, card *goquery.Selection, pass traverse.Pass, m SmallImage) dom.CardState {
	rec, img, ok := p.imageRecord(card, pass)
	if !ok {
		return dom.StateMissingData
	}

	small, kb, err := p.opts.Sizer.IsSmall(ctx, img, m.ThresholdKB)
	if err != nil {
		p.diagnose("image-size", fmt.Errorf("%s %s: %w", rec.StockNumber(), img, err))
		return dom.StateError
	}
	if !small {
		return dom.StateProcessed
	}

	if p.results.AddSmallImage(SmallImageHit{
		StockNumber: rec.StockNumber(),
		Model:       rec.Model(),
		ImageSizeKB: kb,
		ImageURL:    img,
		Timestamp:   p.now(),
	}) {
		p.log.Info().Str("stock", rec.StockNumber()).Float64("kb", kb).Msg("Small image found")
	}
	return dom.StateSmallImage
}

func (p *Processor) exportCard(card *goquery.Selection, m Export) dom.CardState {
	rec := extract.Extract(card, p.cfg)
	if !rec.Complete() {
		return dom.StateMissingData
	}
	p.results.AddExport(rec.StockNumber(), rec.Subset(m.Fields))
	return dom.StateProcessed
}

func (p *Processor) waiting(ctx context.Context, index int) {
	if p.opts.Annotator != nil {
		p.opts.Annotator.Waiting(ctx, index)
	}
}

func (p *Processor) diagnose(component string, err error) {
	p.log.Warn().Err(err).Str("source", component).Msg("Card failed; continuing")
	if p.opts.Diagnostics != nil {
		p.opts.Diagnostics.LogError(p.domain+" "+component, err)
	}
}
