package csvio

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"sjsage522/srpauditor/internal/reconcile"
	apperrors "sjsage522/srpauditor/pkg/errors"
)

// DefaultKeyColumns are tried, case-insensitively, when no primary key column is configured
var DefaultKeyColumns = []string{"STOCK", "STOCK NUMBER", "STOCKNUMBER", "STOCK_NUMBER", "STOCK#", "STOCKNO"}

const maxLineBytes = 1 << 20

// Dataset is the parsed input feed keyed by normalized primary key
type Dataset struct {
	Headers    []string
	PrimaryKey string
	Rows       map[string]map[string]string
	Order      []string
	// Skipped counts rows without a primary key value
	Skipped int
	// Ragged counts rows whose column count differed from the header
	Ragged int
}

// Len returns the number of retained rows
func (d *Dataset) Len() int {
	return len(d.Order)
}

// Columns returns the header names in file order
func (d *Dataset) Columns() []string {
	return d.Headers
}

// Lookup finds the row matching a page-side key
func (d *Dataset) Lookup(pageKey string) (map[string]string, bool) {
	key := reconcile.NormalizeKey(pageKey)
	if key == "" {
		return nil, false
	}
	row, ok := d.Rows[key]
	return row, ok
}

// ParseFeed parses a pipe-delimited feed. The first line holds the headers.
// Values are taken literally: the format has no quoting, so a `"` is plain
// text. Short rows are padded with empty strings and long rows truncated;
// later rows with an already-seen key do not replace the first.
func ParseFeed(r io.Reader, primaryKey string) (*Dataset, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	next := func() ([]string, bool) {
		for scanner.Scan() {
			line++
			text := strings.TrimSuffix(scanner.Text(), "\r")
			if strings.TrimSpace(text) == "" {
				continue
			}
			return strings.Split(text, "|"), true
		}
		return nil, false
	}

	headers, ok := next()
	if !ok {
		if err := scanner.Err(); err != nil {
			return nil, apperrors.NewCsvParse("failed to read header", err)
		}
		return nil, apperrors.NewCsvParse("feed is empty", nil)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	keyIndex := findColumn(headers, primaryKey)
	if keyIndex < 0 {
		name := primaryKey
		if name == "" {
			name = strings.Join(DefaultKeyColumns, "/")
		}
		return nil, apperrors.NewCsvParse(fmt.Sprintf("primary key column %s not found in header", name), nil)
	}

	ds := &Dataset{
		Headers:    headers,
		PrimaryKey: headers[keyIndex],
		Rows:       make(map[string]map[string]string),
	}

	for {
		record, ok := next()
		if !ok {
			break
		}

		if len(record) != len(headers) {
			ds.Ragged++
		}

		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = strings.TrimSpace(record[i])
			} else {
				row[h] = ""
			}
		}

		key := reconcile.NormalizeKey(row[ds.PrimaryKey])
		if key == "" {
			ds.Skipped++
			continue
		}
		if _, exists := ds.Rows[key]; exists {
			continue
		}
		ds.Rows[key] = row
		ds.Order = append(ds.Order, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.NewCsvParse(fmt.Sprintf("line %d", line+1), err)
	}

	return ds, nil
}

func findColumn(headers []string, name string) int {
	candidates := DefaultKeyColumns
	if strings.TrimSpace(name) != "" {
		candidates = []string{name}
	}
	for _, c := range candidates {
		for i, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(c)) {
				return i
			}
		}
	}
	return -1
}
