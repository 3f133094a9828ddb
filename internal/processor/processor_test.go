package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sjsage522/srpauditor/internal/annotate"
	"sjsage522/srpauditor/internal/dom"
	"sjsage522/srpauditor/internal/reconcile"
	"sjsage522/srpauditor/internal/selector"
	"sjsage522/srpauditor/internal/traverse"
	apperrors "sjsage522/srpauditor/pkg/errors"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testConfig = selector.Config{
	selector.KeyVehicleCard: ".card",
	selector.KeyStockNumber: ".stock",
	selector.KeyModel:       ".model",
	selector.KeyTrim:        ".trim",
	selector.KeyImage:       "img",
	"price":                 ".price",
	"condition":             ".condition",
}

type card struct {
	stock, model, trim, price, condition, image, class string
}

func pageHTML(cards ...card) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, c := range cards {
		fmt.Fprintf(&b, `<div class="card %s"><span class="stock">Stock #: %s</span><span class="model">%s</span>`+
			`<span class="trim">%s</span><span class="price">%s</span><span class="condition">%s</span><img data-src="%s"></div>`,
			c.class, c.stock, c.model, c.trim, c.price, c.condition, c.image)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

type fakeFeed struct {
	columns []string
	rows    map[string]map[string]string
}

func (f *fakeFeed) Columns() []string { return f.columns }

func (f *fakeFeed) Lookup(key string) (map[string]string, bool) {
	row, ok := f.rows[reconcile.NormalizeKey(key)]
	return row, ok
}

type mockDetector struct {
	mock.Mock
}

func (m *mockDetector) IsPlaceholder(ctx context.Context, url string) (bool, error) {
	args := m.Called(ctx, url)
	return args.Bool(0), args.Error(1)
}

type fakeSizer map[string]float64

func (f fakeSizer) IsSmall(_ context.Context, url string, thresholdKB int) (bool, float64, error) {
	kb, ok := f[url]
	if !ok {
		return false, 0, errors.New("head failed")
	}
	return kb < float64(thresholdKB), kb, nil
}

type recordingDiagnostics struct {
	components []string
	errs       []error
}

func (r *recordingDiagnostics) LogError(component string, err error) {
	r.components = append(r.components, component)
	r.errs = append(r.errs, err)
}

func (r *recordingDiagnostics) LogInfo(string, ...interface{}) {}

// statePage records the last state annotated per card index
type statePage struct {
	mu     sync.Mutex
	states map[int]dom.CardState
}

func newStatePage() *statePage { return &statePage{states: make(map[int]dom.CardState)} }

func (p *statePage) URL() string { return "https://dealer.com/used" }
func (p *statePage) Snapshot(context.Context) (*goquery.Document, error) {
	return nil, errors.New("not used")
}
func (p *statePage) Click(context.Context, string) error   { return nil }
func (p *statePage) ScrollToBottom(context.Context) error { return nil }
func (p *statePage) Close() error                          { return nil }
func (p *statePage) Annotate(_ context.Context, _ string, index int, state dom.CardState, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[index] = state
	return nil
}

func (p *statePage) state(index int) dom.CardState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[index]
}

var scrollPass = traverse.Pass{Iteration: 1, Mode: traverse.ModeInfiniteScroll, URL: "https://dealer.com/used"}

func TestReconcileIsIdempotent(t *testing.T) {
	feed := &fakeFeed{
		columns: []string{"Stock", "Price", "CONDITION"},
		rows: map[string]map[string]string{
			"a1": {"Stock": "A1", "Price": "$20,000", "CONDITION": "Used"},
			"b2": {"Stock": "B2", "Price": "$15,000", "CONDITION": "New"},
		},
	}
	doc := parse(t, pageHTML(
		card{stock: "A1", model: "Civic", price: "$21,995", condition: "USED"},
		card{stock: "B2", model: "Accord", price: "$15,000", condition: "Used"},
		card{stock: "Z9", model: "Fit"},
	))

	p, err := New("dealer.com", testConfig, Reconcile{Feed: feed}, Options{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.ProcessBatch(ctx, doc, scrollPass))
	first := p.Results().Report().Rows()

	require.NoError(t, p.ProcessBatch(ctx, doc, scrollPass))
	assert.Equal(t, first, p.Results().Report().Rows())

	assert.Equal(t, []reconcile.Row{
		{Key: "A1", Field: "Price", CSV: "$20,000", SRP: "$21,995"},
		{Key: "B2", Field: "CONDITION", CSV: "New", SRP: "Used"},
	}, first)
	assert.Equal(t, 2, p.Results().Counts().Unmatched)
}

func TestReconcileSkipsAnnotatedCards(t *testing.T) {
	feed := &fakeFeed{
		columns: []string{"Stock", "Price"},
		rows:    map[string]map[string]string{"a1": {"Stock": "A1", "Price": "$1"}},
	}
	doc := parse(t, pageHTML(
		card{stock: "A1", model: "Civic", price: "$2", class: "srp-processed"},
		card{stock: "", model: "Civic"},
	))

	page := newStatePage()
	p, err := New("dealer.com", testConfig, Reconcile{Feed: feed}, Options{Annotator: annotate.New(page, ".card", time.Hour)})
	require.NoError(t, err)
	require.NoError(t, p.ProcessBatch(context.Background(), doc, scrollPass))

	assert.Equal(t, 0, p.Results().Report().Len())
	assert.Equal(t, dom.StateMissingData, page.state(1))
	counts := p.Results().Counts()
	assert.Equal(t, 1, counts.Skipped)
	assert.Equal(t, 1, counts.MissingData)
}

func TestReconcileExplicitFieldMap(t *testing.T) {
	feed := &fakeFeed{
		columns: []string{"Stock", "Asking"},
		rows:    map[string]map[string]string{"a1": {"Stock": "A1", "Asking": "$1"}},
	}
	doc := parse(t, pageHTML(card{stock: "A1", model: "Civic", price: "$2"}))

	p, err := New("dealer.com", testConfig, Reconcile{Feed: feed, FieldMap: map[string]string{"Asking": "price"}}, Options{})
	require.NoError(t, err)
	require.NoError(t, p.ProcessBatch(context.Background(), doc, scrollPass))

	entry, ok := p.Results().Report().Get("A1")
	require.True(t, ok)
	assert.Equal(t, reconcile.Mismatch{CSV: "$1", SRP: "$2"}, entry.Mismatches["Asking"])
}

func TestReconcileRequiresModel(t *testing.T) {
	feed := &fakeFeed{
		columns: []string{"Stock", "Price"},
		rows: map[string]map[string]string{
			"a1": {"Stock": "A1", "Price": "$1"},
			"b2": {"Stock": "B2", "Price": "$1"},
		},
	}
	doc := parse(t, pageHTML(
		card{stock: "A1", model: "", price: "$2"},
		card{stock: "B2", model: "Accord", price: "$2"},
	))

	page := newStatePage()
	p, err := New("dealer.com", testConfig, Reconcile{Feed: feed}, Options{Annotator: annotate.New(page, ".card", time.Hour)})
	require.NoError(t, err)
	require.NoError(t, p.ProcessBatch(context.Background(), doc, scrollPass))

	assert.Equal(t, dom.StateMissingData, page.state(0))
	assert.Equal(t, dom.StateProcessed, page.state(1))
	_, ok := p.Results().Report().Get("A1")
	assert.False(t, ok)
	assert.Equal(t, 1, p.Results().Report().Len())
	assert.Equal(t, 1, p.Results().Counts().MissingData)
}

func TestMissingMandatorySelector(t *testing.T) {
	cfg := testConfig.Clone()
	delete(cfg, selector.KeyVehicleCard)

	_, err := New("www.dealer.com", cfg, Export{}, Options{})
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), `"vehicleCard"`)

	cfg = testConfig.Clone()
	delete(cfg, selector.KeyStockNumber)
	_, err = New("dealer.com", cfg, Reconcile{Feed: &fakeFeed{}}, Options{})
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), `"stockNumber"`)
}

func TestPlaceholderLifecycle(t *testing.T) {
	detector := new(mockDetector)
	detector.On("IsPlaceholder", mock.Anything, "https://dealer.com/img/a.jpg").Return(true, nil)
	detector.On("IsPlaceholder", mock.Anything, "https://dealer.com/img/b.jpg").Return(false, nil)
	detector.On("IsPlaceholder", mock.Anything, "https://dealer.com/img/c.jpg").Return(false, apperrors.NewClassification("ocr", "timeout", nil))

	doc := parse(t, pageHTML(
		card{stock: "A1", model: "Civic", trim: "EX", image: "/img/a.jpg"},
		card{stock: "B2", model: "Accord", image: "/img/b.jpg"},
		card{stock: "C3", model: "Fit", image: "/img/c.jpg"},
		card{stock: "D4", model: "", image: "/img/d.jpg"},
		card{stock: "A1", model: "Civic", image: "/img/a.jpg"},
		card{stock: "E5", model: "CR-V", image: "/img/e.jpg", class: "srp-coming-soon"},
	))

	page := newStatePage()
	p, err := New("dealer.com", testConfig, Placeholder{}, Options{
		Detector:  detector,
		Annotator: annotate.New(page, ".card", time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, p.ProcessBatch(context.Background(), doc, scrollPass))

	assert.Equal(t, []PlaceholderHit{{Model: "Civic", Trim: "EX", StockNumber: "A1", ImageURL: "https://dealer.com/img/a.jpg"}}, p.Results().Placeholders())
	assert.Equal(t, dom.StateComingSoon, page.state(0))
	assert.Equal(t, dom.StateProcessed, page.state(1))
	assert.Equal(t, dom.StateError, page.state(2))
	assert.Equal(t, dom.StateMissingData, page.state(3))
	assert.Equal(t, dom.StateComingSoon, page.state(4))
	assert.Equal(t, dom.StateNone, page.state(5))
	detector.AssertNotCalled(t, "IsPlaceholder", mock.Anything, "https://dealer.com/img/d.jpg")
	detector.AssertNotCalled(t, "IsPlaceholder", mock.Anything, "https://dealer.com/img/e.jpg")

	counts := p.Results().Counts()
	assert.Equal(t, 1, counts.Errors)
	assert.Equal(t, 1, counts.Skipped)
}

func TestInlineImageLeftForNextPass(t *testing.T) {
	detector := new(mockDetector)
	detector.On("IsPlaceholder", mock.Anything, "https://dealer.com/img/a.jpg").Return(false, nil)

	page := newStatePage()
	p, err := New("dealer.com", testConfig, Placeholder{}, Options{
		Detector:  detector,
		Annotator: annotate.New(page, ".card", time.Hour),
	})
	require.NoError(t, err)

	ctx := context.Background()
	stub := parse(t, pageHTML(card{stock: "A1", model: "Civic", image: "data:image/gif;base64,R0lGOD"}))
	require.NoError(t, p.ProcessBatch(ctx, stub, scrollPass))
	assert.Equal(t, dom.StateNone, page.state(0))
	detector.AssertNotCalled(t, "IsPlaceholder", mock.Anything, mock.Anything)

	// the next scroll pass sees the real source and classifies it
	loaded := parse(t, pageHTML(card{stock: "A1", model: "Civic", image: "/img/a.jpg"}))
	require.NoError(t, p.ProcessBatch(ctx, loaded, scrollPass))
	assert.Equal(t, dom.StateProcessed, page.state(0))
	detector.AssertNumberOfCalls(t, "IsPlaceholder", 1)

	counts := p.Results().Counts()
	assert.Equal(t, 1, counts.Processed)
	assert.Equal(t, 0, counts.Skipped)
}

func TestFallbackStockReportedOnce(t *testing.T) {
	cfg := testConfig.Clone()
	cfg[selector.KeyStockNumber] = ".sku"
	doc := parse(t, `<html><body>`+
		`<div class="card"><span class="stock-number">Stock #: A1</span><span class="model">Civic</span></div>`+
		`<div class="card"><span class="stock-number">B2</span><span class="model">Accord</span></div>`+
		`</body></html>`)

	diagnostics := &recordingDiagnostics{}
	p, err := New("dealer.com", cfg, Export{}, Options{Diagnostics: diagnostics})
	require.NoError(t, err)
	require.NoError(t, p.ProcessBatch(context.Background(), doc, scrollPass))

	require.Len(t, p.Results().Exports(), 2)
	assert.Equal(t, "A1", p.Results().Exports()[0].StockNumber())

	require.Len(t, diagnostics.errs, 1)
	assert.Equal(t, "dealer.com extract", diagnostics.components[0])
	assert.True(t, apperrors.Is(diagnostics.errs[0], apperrors.ErrorTypeExtraction))
	assert.Contains(t, diagnostics.errs[0].Error(), `".sku" matched nothing`)
}

func TestRevisitPolicy(t *testing.T) {
	doc := parse(t, pageHTML(card{stock: "A1", model: "Civic", image: "/img/a.jpg", class: "srp-processed"}))
	paginated := traverse.Pass{Iteration: 2, Mode: traverse.ModePagination, URL: "https://dealer.com/used"}

	testCases := []struct {
		revisit Revisit
		pass    traverse.Pass
		calls   int
	}{
		{RevisitPaginated, scrollPass, 0},
		{RevisitPaginated, paginated, 1},
		{RevisitNever, paginated, 0},
		{RevisitAlways, scrollPass, 1},
	}

	for _, tc := range testCases {
		t.Run(string(tc.revisit)+"/"+tc.pass.Mode.String(), func(t *testing.T) {
			detector := new(mockDetector)
			detector.On("IsPlaceholder", mock.Anything, mock.Anything).Return(false, nil)

			p, err := New("dealer.com", testConfig, Placeholder{}, Options{Detector: detector, Revisit: tc.revisit})
			require.NoError(t, err)
			require.NoError(t, p.ProcessBatch(context.Background(), doc, tc.pass))
			detector.AssertNumberOfCalls(t, "IsPlaceholder", tc.calls)
		})
	}
}

func TestSmallImageMode(t *testing.T) {
	sizer := fakeSizer{
		"https://dealer.com/img/a.jpg": 12.5,
		"https://dealer.com/img/b.jpg": 250,
	}
	doc := parse(t, pageHTML(
		card{stock: "A1", model: "Civic", image: "/img/a.jpg"},
		card{stock: "B2", model: "Accord", image: "/img/b.jpg"},
		card{stock: "C3", model: "Fit", image: "/img/c.jpg"},
	))

	page := newStatePage()
	p, err := New("dealer.com", testConfig, SmallImage{ThresholdKB: 30}, Options{
		Sizer:     sizer,
		Annotator: annotate.New(page, ".card", time.Hour),
	})
	require.NoError(t, err)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	require.NoError(t, p.ProcessBatch(context.Background(), doc, scrollPass))

	assert.Equal(t, []SmallImageHit{{
		StockNumber: "A1",
		Model:       "Civic",
		ImageSizeKB: 12.5,
		ImageURL:    "https://dealer.com/img/a.jpg",
		Timestamp:   at,
	}}, p.Results().SmallImages())
	assert.Equal(t, dom.StateSmallImage, page.state(0))
	assert.Equal(t, dom.StateProcessed, page.state(1))
	assert.Equal(t, dom.StateError, page.state(2))

	_, err = New("dealer.com", testConfig, SmallImage{}, Options{Sizer: sizer})
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestExportDedupesByStockNumber(t *testing.T) {
	doc := parse(t, pageHTML(
		card{stock: "A1", model: "X"},
		card{stock: "A1", model: "Y", price: "$10"},
		card{stock: "B2", model: ""},
	))

	p, err := New("dealer.com", testConfig, Export{Fields: []string{"stockNumber", "model"}}, Options{})
	require.NoError(t, err)
	require.NoError(t, p.ProcessBatch(context.Background(), doc, scrollPass))

	exports := p.Results().Exports()
	require.Len(t, exports, 1)
	assert.Equal(t, "X", exports[0].Model())
	assert.Len(t, exports[0], 2)
	assert.Equal(t, 1, p.Results().Counts().MissingData)
}

func TestResultsDedupe(t *testing.T) {
	r := NewResults()
	assert.True(t, r.AddPlaceholder(PlaceholderHit{StockNumber: "A1", Model: "first"}))
	assert.False(t, r.AddPlaceholder(PlaceholderHit{StockNumber: "A1", Model: "second"}))
	assert.False(t, r.AddPlaceholder(PlaceholderHit{StockNumber: ""}))
	assert.Equal(t, "first", r.Placeholders()[0].Model)
}

func TestProcessBatchHonorsCancellation(t *testing.T) {
	doc := parse(t, pageHTML(card{stock: "A1", model: "X"}))
	p, err := New("dealer.com", testConfig, Export{}, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.ProcessBatch(ctx, doc, scrollPass), context.Canceled)
}

func TestParseRevisit(t *testing.T) {
	r, err := ParseRevisit("")
	require.NoError(t, err)
	assert.Equal(t, RevisitPaginated, r)

	r, err = ParseRevisit("Always")
	require.NoError(t, err)
	assert.Equal(t, RevisitAlways, r)

	_, err = ParseRevisit("sometimes")
	assert.Error(t, err)
}
