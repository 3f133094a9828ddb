// Package annotate paints card processing state onto the page. It only
// observes the processing lifecycle and never delays it.
package annotate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sjsage522/srpauditor/internal/dom"
	"sjsage522/srpauditor/logger"
)

// Annotator labels the cards of one page
type Annotator struct {
	page         dom.Page
	cardSelector string
	tick         time.Duration
	now          func() time.Time

	mu   sync.Mutex
	last time.Duration
	log  *logger.Logger
}

// New creates an annotator for the cards matching cardSelector
func New(page dom.Page, cardSelector string, tick time.Duration) *Annotator {
	if tick <= 0 {
		tick = 250 * time.Millisecond
	}
	return &Annotator{
		page:         page,
		cardSelector: cardSelector,
		tick:         tick,
		now:          time.Now,
		log:          logger.ForComponent("annotate"),
	}
}

// Last returns the duration of the most recently finished card
func (a *Annotator) Last() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Waiting labels a card as queued, with the last processing time as a hint
func (a *Annotator) Waiting(ctx context.Context, index int) {
	label := "Waiting"
	if last := a.Last(); last > 0 {
		label = fmt.Sprintf("Waiting (last %s)", formatElapsed(last))
	}
	a.apply(ctx, index, dom.StateWaiting, label)
}

// Begin moves a card to Processing and starts its elapsed-time label
func (a *Annotator) Begin(ctx context.Context, index int) *Mark {
	m := &Mark{
		a:       a,
		index:   index,
		started: a.now(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	a.apply(ctx, index, dom.StateProcessing, formatElapsed(0))
	go m.run(ctx)
	return m
}

func (a *Annotator) apply(ctx context.Context, index int, state dom.CardState, label string) {
	if err := a.page.Annotate(ctx, a.cardSelector, index, state, label); err != nil {
		a.log.Debug().Err(err).Int("card", index).Str("state", state.String()).Msg("Annotation failed")
	}
}

// Mark is one card in the Processing state
type Mark struct {
	a       *Annotator
	index   int
	started time.Time
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	elapsed time.Duration
}

func (m *Mark) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.a.apply(ctx, m.index, dom.StateProcessing, formatElapsed(m.a.now().Sub(m.started)))
		}
	}
}

// Finish stops the ticker, records the elapsed time and applies the final
// state. Only terminal states are accepted; anything else becomes Error.
// Calling Finish again returns the first elapsed time and changes nothing.
func (m *Mark) Finish(ctx context.Context, state dom.CardState) time.Duration {
	m.once.Do(func() {
		close(m.stop)
		<-m.done

		if !state.Terminal() {
			m.a.log.Warn().Str("state", state.String()).Int("card", m.index).Msg("Non-terminal finish state")
			state = dom.StateError
		}

		m.elapsed = m.a.now().Sub(m.started)
		m.a.mu.Lock()
		m.a.last = m.elapsed
		m.a.mu.Unlock()

		m.a.apply(ctx, m.index, state, formatElapsed(m.elapsed))
	})
	return m.elapsed
}

// Release stops the ticker and clears the card's state so a later pass
// processes it again. The elapsed time is not recorded.
func (m *Mark) Release(ctx context.Context) {
	m.once.Do(func() {
		close(m.stop)
		<-m.done
		m.a.apply(ctx, m.index, dom.StateNone, "")
	})
}

func formatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
