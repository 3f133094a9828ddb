package reconcile

import (
	"sort"
	"sync"
)

// Mismatch holds the raw feed and page values of one differing field
type Mismatch struct {
	CSV string `json:"csv"`
	SRP string `json:"srp"`
}

// Entry is the mismatch set of one primary key
type Entry struct {
	Mismatches map[string]Mismatch `json:"mismatches"`
}

// Report accumulates mismatches across traversal passes. Merging is
// idempotent: re-reconciling a card with identical values changes nothing.
type Report struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
}

// NewReport creates an empty report
func NewReport() *Report {
	return &Report{entries: make(map[string]*Entry)}
}

// Merge adds mismatches for key; existing fields are overwritten with the
// latest values, other fields are kept. Empty input is a no-op.
func (r *Report) Merge(key string, mismatches map[string]Mismatch) {
	if len(mismatches) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		entry = &Entry{Mismatches: make(map[string]Mismatch)}
		r.entries[key] = entry
		r.order = append(r.order, key)
	}
	for field, m := range mismatches {
		entry.Mismatches[field] = m
	}
}

// Len returns the number of keys with at least one mismatch
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Get returns a copy of the entry for key
func (r *Report) Get(key string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(entry), true
}

// Row is one mismatched field of one key, the unit of the CSV report
type Row struct {
	Key   string
	Field string
	CSV   string
	SRP   string
}

// Rows flattens the report in first-seen key order with fields sorted
func (r *Report) Rows() []Row {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []Row
	for _, key := range r.order {
		entry := r.entries[key]
		fields := make([]string, 0, len(entry.Mismatches))
		for f := range entry.Mismatches {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			m := entry.Mismatches[f]
			rows = append(rows, Row{Key: key, Field: f, CSV: m.CSV, SRP: m.SRP})
		}
	}
	return rows
}

// Snapshot returns a deep copy of every entry
func (r *Report) Snapshot() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Entry, len(r.entries))
	for k, e := range r.entries {
		out[k] = copyEntry(e)
	}
	return out
}

func copyEntry(e *Entry) Entry {
	out := Entry{Mismatches: make(map[string]Mismatch, len(e.Mismatches))}
	for f, m := range e.Mismatches {
		out.Mismatches[f] = m
	}
	return out
}
