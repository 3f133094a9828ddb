package processor

import (
	"sync"
	"time"

	"sjsage522/srpauditor/internal/extract"
	"sjsage522/srpauditor/internal/reconcile"
)

// PlaceholderHit is one card showing a placeholder image
type PlaceholderHit struct {
	Model       string
	Trim        string
	StockNumber string
	ImageURL    string
}

// SmallImageHit is one card whose image is below the size threshold
type SmallImageHit struct {
	StockNumber string
	Model       string
	ImageSizeKB float64
	ImageURL    string
	Timestamp   time.Time
}

// Counts tallies card outcomes across batches
type Counts struct {
	Processed   int
	Skipped     int
	MissingData int
	Errors      int
	Unmatched   int
	Hits        int
}

// Results is the shared collection mutated by the processor. Every list is
// deduplicated by stock number and the first occurrence wins.
type Results struct {
	mu           sync.Mutex
	report       *reconcile.Report
	placeholders []PlaceholderHit
	smallImages  []SmallImageHit
	exports      []extract.VehicleRecord
	seen         map[string]bool
	counts       Counts
}

// NewResults creates an empty collection
func NewResults() *Results {
	return &Results{
		report: reconcile.NewReport(),
		seen:   make(map[string]bool),
	}
}

// Report returns the mismatch report
func (r *Results) Report() *reconcile.Report {
	return r.report
}

// AddPlaceholder appends hit unless its stock number is already present
func (r *Results) AddPlaceholder(hit PlaceholderHit) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.claim(hit.StockNumber) {
		return false
	}
	r.placeholders = append(r.placeholders, hit)
	return true
}

// AddSmallImage appends hit unless its stock number is already present
func (r *Results) AddSmallImage(hit SmallImageHit) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.claim(hit.StockNumber) {
		return false
	}
	r.smallImages = append(r.smallImages, hit)
	return true
}

// AddExport appends rec unless stock is already present. The stock number
// is passed apart because rec may be filtered down to fields without it.
func (r *Results) AddExport(stock string, rec extract.VehicleRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.claim(stock) {
		return false
	}
	r.exports = append(r.exports, rec)
	return true
}

// claim must be called with mu held
func (r *Results) claim(stock string) bool {
	if stock == "" || r.seen[stock] {
		return false
	}
	r.seen[stock] = true
	return true
}

// Placeholders returns a copy of the placeholder hits
func (r *Results) Placeholders() []PlaceholderHit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PlaceholderHit(nil), r.placeholders...)
}

// SmallImages returns a copy of the small image hits
func (r *Results) SmallImages() []SmallImageHit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SmallImageHit(nil), r.smallImages...)
}

// Exports returns a copy of the exported records
func (r *Results) Exports() []extract.VehicleRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]extract.VehicleRecord(nil), r.exports...)
}

// Counts returns the outcome tallies
func (r *Results) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts
}

func (r *Results) count(f func(c *Counts)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(&r.counts)
}
