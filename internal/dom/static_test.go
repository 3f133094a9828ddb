package dom

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const firstPage = `<html><body>
<div class="card"><span class="stock">A1</span></div>
<div class="card"><span class="stock">A2</span></div>
<nav class="pager"><a class="next" href="/inventory?page=2">Next</a></nav>
</body></html>`

const secondPage = `<html><body>
<div class="card"><span class="stock">B1</span></div>
<nav class="pager"><a class="next" href="#" aria-disabled="true">Next</a></nav>
</body></html>`

func newInventoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, secondPage)
			return
		}
		fmt.Fprint(w, firstPage)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStaticPageAnchorNavigation(t *testing.T) {
	server := newInventoryServer(t)
	ctx := context.Background()

	page, err := NewStaticPage(ctx, server.URL+"/inventory")
	require.NoError(t, err)
	defer page.Close()

	doc, err := page.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, Cards(doc, ".card").Length())
	assert.True(t, IsVisible(doc.Find(".next")))

	require.NoError(t, page.Click(ctx, ".next"))
	assert.Equal(t, server.URL+"/inventory?page=2", page.URL())

	doc, err = page.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B1", doc.Find(".card .stock").Text())
	assert.False(t, IsVisible(doc.Find(".next")))

	// a "#" href cannot be followed without scripts
	assert.ErrorIs(t, page.Click(ctx, ".next"), ErrNotNavigable)
	assert.ErrorIs(t, page.Click(ctx, ".missing"), ErrElementNotFound)
}

func TestStaticPageAnnotateSurvivesSnapshots(t *testing.T) {
	server := newInventoryServer(t)
	ctx := context.Background()

	page, err := NewStaticPage(ctx, server.URL)
	require.NoError(t, err)

	require.NoError(t, page.Annotate(ctx, ".card", 1, StateProcessing, "0.2s"))
	require.NoError(t, page.Annotate(ctx, ".card", 1, StateComingSoon, "1.4s"))

	doc, err := page.Snapshot(ctx)
	require.NoError(t, err)
	cards := Cards(doc, ".card")
	assert.Equal(t, StateNone, StateOf(cards.Eq(0)))
	assert.Equal(t, StateComingSoon, StateOf(cards.Eq(1)))
	assert.False(t, cards.Eq(1).HasClass("srp-processing"))
	assert.Equal(t, "1.4s", cards.Eq(1).Find("."+LabelClass).Text())
	assert.Equal(t, 1, cards.Eq(1).Find("."+LabelClass).Length())

	assert.ErrorIs(t, page.Annotate(ctx, ".card", 9, StateProcessed, ""), ErrElementNotFound)
}

func TestSnapshotIsDetached(t *testing.T) {
	server := newInventoryServer(t)
	ctx := context.Background()

	page, err := NewStaticPage(ctx, server.URL)
	require.NoError(t, err)

	doc, err := page.Snapshot(ctx)
	require.NoError(t, err)
	doc.Find(".card").Remove()

	again, err := page.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Find(".card").Length())
}

func TestIsVisible(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div>
		<button id="plain">More</button>
		<button id="disabled" disabled>More</button>
		<button id="aria" aria-disabled="true">More</button>
		<button id="styled" style="display: none">More</button>
		<button id="invisible" style="Visibility:Hidden">More</button>
		<div hidden><button id="nested">More</button></div>
		<button id="tagged" data-srp-hidden>More</button>
	</div>`))
	require.NoError(t, err)

	assert.True(t, IsVisible(doc.Find("#plain")))
	for _, id := range []string{"#disabled", "#aria", "#styled", "#invisible", "#nested", "#tagged", "#absent"} {
		assert.False(t, IsVisible(doc.Find(id)), id)
	}
}

func TestCardStateFlags(t *testing.T) {
	assert.False(t, StateWaiting.Terminal())
	assert.False(t, StateProcessing.Terminal())
	assert.True(t, StateProcessed.Terminal())
	assert.False(t, StateProcessed.Flagged())
	assert.True(t, StateMissingData.Flagged())
	assert.Equal(t, "srp-small-image", StateSmallImage.Class())
	assert.Equal(t, "", StateNone.Class())
}

func TestCallScriptEncodesArguments(t *testing.T) {
	script, err := annotateScript(`.card[data-x="1"]`, 2, StateError, `it's "bad"`)
	require.NoError(t, err)
	assert.Contains(t, script, `".card[data-x=\"1\"]",2,"srp-error"`)
	assert.Contains(t, script, `"it's \"bad\""`)
}
