package csvio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"sjsage522/srpauditor/internal/extract"
	"sjsage522/srpauditor/internal/processor"
	"sjsage522/srpauditor/internal/reconcile"
	"sjsage522/srpauditor/internal/selector"
)

// ErrNoData is returned instead of writing a report without rows
var ErrNoData = errors.New("no data to export")

// Report type tokens used in file names
const (
	ReportMismatches  = "MISMATCHES"
	ReportComingSoon  = "COMING_SOON"
	ReportSmallImages = "SMALL_IMAGES"
	ReportExport      = "EXPORT"
)

// Table is a report ready to be written
type Table struct {
	Type   string
	Header []string
	Rows   [][]string
}

// MismatchTable builds the PrimaryKey,Field,CSV,SRP report
func MismatchTable(rows []reconcile.Row) Table {
	t := Table{Type: ReportMismatches, Header: []string{"PrimaryKey", "Field", "CSV", "SRP"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{r.Key, r.Field, r.CSV, r.SRP})
	}
	return t
}

// PlaceholderTable builds the coming-soon image report
func PlaceholderTable(hits []processor.PlaceholderHit) Table {
	t := Table{Type: ReportComingSoon, Header: []string{"Model", "Trim", "StockNumber", "ImageURL"}}
	for _, h := range hits {
		t.Rows = append(t.Rows, []string{h.Model, h.Trim, h.StockNumber, h.ImageURL})
	}
	return t
}

// SmallImageTable builds the undersized image report
func SmallImageTable(hits []processor.SmallImageHit) Table {
	t := Table{Type: ReportSmallImages, Header: []string{"StockNumber", "Model", "ImageSizeKB", "Timestamp"}}
	for _, h := range hits {
		t.Rows = append(t.Rows, []string{
			h.StockNumber,
			h.Model,
			strconv.FormatFloat(h.ImageSizeKB, 'f', 2, 64),
			h.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return t
}

// ExportTable builds the bulk export. The header is the union of field names
// after filtering: primary key first, then model and trim, then alphabetical.
func ExportTable(records []extract.VehicleRecord, fields []string) Table {
	filtered := make([]extract.VehicleRecord, 0, len(records))
	seen := make(map[string]bool)
	for _, rec := range records {
		sub := rec.Subset(fields)
		for k := range sub {
			seen[k] = true
		}
		filtered = append(filtered, sub)
	}

	header := make([]string, 0, len(seen))
	for _, lead := range []string{selector.KeyStockNumber, selector.KeyModel, selector.KeyTrim} {
		if seen[lead] {
			header = append(header, lead)
			delete(seen, lead)
		}
	}
	rest := make([]string, 0, len(seen))
	for k := range seen {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	header = append(header, rest...)

	t := Table{Type: ReportExport, Header: header}
	for _, rec := range filtered {
		row := make([]string, len(header))
		for i, h := range header {
			row[i] = rec[h]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Write writes t with every cell quote-wrapped and inner quotes doubled
func Write(w io.Writer, t Table) error {
	if len(t.Rows) == 0 {
		return ErrNoData
	}
	if err := writeLine(w, t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := writeLine(w, row); err != nil {
			return err
		}
	}
	return nil
}

func writeLine(w io.Writer, cells []string) error {
	quoted := make([]string, len(cells))
	for i, c := range cells {
		quoted[i] = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
	}
	_, err := io.WriteString(w, strings.Join(quoted, ",")+"\n")
	return err
}

// FileName returns {site}_{REPORT_TYPE}_{ISO timestamp with : and . replaced by -}.csv
func FileName(site, reportType string, at time.Time) string {
	stamp := at.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return fmt.Sprintf("%s_%s_%s.csv", site, reportType, stamp)
}

// WriteFile writes t under dir and returns the path. No file is created when
// the table is empty.
func WriteFile(dir, site string, t Table, at time.Time) (string, error) {
	if len(t.Rows) == 0 {
		return "", ErrNoData
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}

	path := filepath.Join(dir, FileName(site, t.Type, at))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	if err := Write(f, t); err != nil {
		return "", err
	}
	return path, nil
}
