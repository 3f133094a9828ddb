package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CardState is the processing state of one vehicle card
type CardState int

const (
	StateNone CardState = iota
	StateWaiting
	StateProcessing
	StateProcessed
	StateComingSoon
	StateSmallImage
	StateMissingData
	StateError
)

// LabelClass marks the timing label appended to annotated cards
const LabelClass = "srp-label"

var stateClasses = map[CardState]string{
	StateWaiting:     "srp-waiting",
	StateProcessing:  "srp-processing",
	StateProcessed:   "srp-processed",
	StateComingSoon:  "srp-coming-soon",
	StateSmallImage:  "srp-small-image",
	StateMissingData: "srp-missing-data",
	StateError:       "srp-error",
}

// precedence when more than one state class survives on a card
var readOrder = []CardState{
	StateError,
	StateMissingData,
	StateComingSoon,
	StateSmallImage,
	StateProcessed,
	StateProcessing,
	StateWaiting,
}

func (s CardState) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateProcessing:
		return "processing"
	case StateProcessed:
		return "processed"
	case StateComingSoon:
		return "coming-soon"
	case StateSmallImage:
		return "small-image"
	case StateMissingData:
		return "missing-data"
	case StateError:
		return "error"
	default:
		return "none"
	}
}

// Class returns the CSS class carrying the state, empty for StateNone
func (s CardState) Class() string {
	return stateClasses[s]
}

// Terminal reports whether the state ends a card's lifecycle
func (s CardState) Terminal() bool {
	switch s {
	case StateProcessed, StateComingSoon, StateSmallImage, StateMissingData, StateError:
		return true
	}
	return false
}

// Flagged reports whether the state is one of the flagged outcomes
func (s CardState) Flagged() bool {
	return s.Terminal() && s != StateProcessed
}

// StateClasses returns every state class, for removal before a new one is applied
func StateClasses() []string {
	out := make([]string, 0, len(stateClasses))
	for _, s := range readOrder {
		out = append(out, stateClasses[s])
	}
	return out
}

// StateOf reads a card's state back from its classes
func StateOf(card *goquery.Selection) CardState {
	for _, s := range readOrder {
		if card.HasClass(stateClasses[s]) {
			return s
		}
	}
	return StateNone
}

// Cards returns the card elements of doc in DOM order
func Cards(doc *goquery.Document, cardSelector string) *goquery.Selection {
	return doc.Find(cardSelector)
}

// IsVisible reports whether sel matched an element that a user could act on.
// The live drivers tag elements without layout boxes with data-srp-hidden
// before serializing a snapshot.
func IsVisible(sel *goquery.Selection) bool {
	if sel == nil || sel.Length() == 0 {
		return false
	}
	el := sel.First()
	if _, ok := el.Attr("disabled"); ok {
		return false
	}
	if v, _ := el.Attr("aria-disabled"); strings.EqualFold(strings.TrimSpace(v), "true") {
		return false
	}

	hidden := false
	el.AddSelection(el.Parents()).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if hiddenNode(s) {
			hidden = true
			return false
		}
		return true
	})
	return !hidden
}

func hiddenNode(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	if _, ok := s.Attr("data-srp-hidden"); ok {
		return true
	}
	style, _ := s.Attr("style")
	style = strings.ToLower(strings.Join(strings.Fields(style), ""))
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}
