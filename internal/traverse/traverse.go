// Package traverse drives a results page forward batch by batch until no
// more cards load.
package traverse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sjsage522/srpauditor/internal/dom"
	"sjsage522/srpauditor/internal/selector"
	"sjsage522/srpauditor/logger"
	apperrors "sjsage522/srpauditor/pkg/errors"

	"github.com/PuerkitoBio/goquery"
)

// Pass describes one batch handed to the handler
type Pass struct {
	Iteration int
	Mode      Mode
	URL       string
}

// Handler processes the cards visible in a snapshot
type Handler interface {
	ProcessBatch(ctx context.Context, doc *goquery.Document, pass Pass) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, doc *goquery.Document, pass Pass) error

// ProcessBatch calls f
func (f HandlerFunc) ProcessBatch(ctx context.Context, doc *goquery.Document, pass Pass) error {
	return f(ctx, doc, pass)
}

// Options bounds a traversal
type Options struct {
	SettleDelay   time.Duration
	MaxIterations int
	MaxElapsed    time.Duration
}

// Stats summarizes a traversal
type Stats struct {
	Mode       Mode
	Iterations int
	Batches    int
	Cards      int
	Elapsed    time.Duration
	StopReason string
}

// Traverser owns the driving loop for one site
type Traverser struct {
	cfg    selector.Config
	domain string
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	log    *logger.Logger
}

// New creates a traverser
func New(domain string, cfg selector.Config, opts Options) *Traverser {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 500
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Minute
	}
	return &Traverser{
		cfg:    cfg,
		domain: domain,
		opts:   opts,
		sleep:  sleepContext,
		now:    time.Now,
		log:    logger.ForDomain(domain).WithField("component", "traverse"),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run processes the first batch and then advances the page until a full
// iteration performs no new work. Hitting a guard returns a
// TraversalTimeout alongside the stats; results gathered so far stay valid.
func (t *Traverser) Run(ctx context.Context, page dom.Page, h Handler) (Stats, error) {
	var stats Stats
	started := t.now()
	cardSel := t.cfg.Get(selector.KeyVehicleCard)
	prevCount := -1

	for iteration := 1; ; iteration++ {
		stats.Elapsed = t.now().Sub(started)
		if err := ctx.Err(); err != nil {
			stats.StopReason = "canceled"
			return stats, err
		}
		if iteration > t.opts.MaxIterations || stats.Elapsed > t.opts.MaxElapsed {
			stats.StopReason = "guard"
			t.log.Warn().
				Int("iterations", stats.Iterations).
				Dur("elapsed", stats.Elapsed).
				Msg("Traversal guard reached; keeping partial results")
			return stats, apperrors.NewTraversalTimeout(t.domain, stats.Iterations, stats.Elapsed)
		}

		doc, err := page.Snapshot(ctx)
		if err != nil {
			return stats, fmt.Errorf("snapshot: %w", err)
		}

		mode := DetectMode(doc, t.cfg)
		count := dom.Cards(doc, cardSel).Length()
		stats.Iterations = iteration
		stats.Mode = mode
		stats.Cards = count
		pass := Pass{Iteration: iteration, Mode: mode, URL: page.URL()}

		t.log.Debug().
			Int("iteration", iteration).
			Str("mode", mode.String()).
			Int("cards", count).
			Msg("Traversal step")

		if mode == ModeInfiniteScroll {
			if count == prevCount {
				stats.StopReason = "no new cards"
				break
			}
			prevCount = count
			if err := t.process(ctx, h, doc, pass, &stats); err != nil {
				return stats, err
			}
			if err := page.ScrollToBottom(ctx); err != nil {
				return stats, fmt.Errorf("scroll: %w", err)
			}
			if err := t.sleep(ctx, t.opts.SettleDelay); err != nil {
				return stats, err
			}
			continue
		}

		if err := t.process(ctx, h, doc, pass, &stats); err != nil {
			return stats, err
		}

		control := t.cfg.Traversal(selector.KeyNextPage)
		if mode == ModeViewMore {
			control = t.cfg.Traversal(selector.KeyLoadMore)
		}
		if !dom.IsVisible(doc.Find(control)) {
			stats.StopReason = "no " + mode.String() + " control"
			break
		}
		if err := page.Click(ctx, control); err != nil {
			if errors.Is(err, dom.ErrNotNavigable) {
				t.log.Warn().Err(err).Msg("Control cannot be activated by this driver; stopping")
				stats.StopReason = "control not navigable"
				break
			}
			return stats, apperrors.NewNetwork(t.domain, "failed to advance page", err)
		}
		if err := t.sleep(ctx, t.opts.SettleDelay); err != nil {
			return stats, err
		}
	}

	stats.Elapsed = t.now().Sub(started)
	t.log.Info().
		Str("mode", stats.Mode.String()).
		Int("iterations", stats.Iterations).
		Int("batches", stats.Batches).
		Str("reason", stats.StopReason).
		Dur("elapsed", stats.Elapsed).
		Msg("Traversal finished")
	return stats, nil
}

func (t *Traverser) process(ctx context.Context, h Handler, doc *goquery.Document, pass Pass, stats *Stats) error {
	stats.Batches++
	if err := h.ProcessBatch(ctx, doc, pass); err != nil {
		return fmt.Errorf("batch %d: %w", pass.Iteration, err)
	}
	return nil
}
