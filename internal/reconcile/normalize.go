// Package reconcile compares scraped SRP values with the uploaded feed.
//
// Values go through Normalize, then IsException, then exact equality. Only a
// difference that survives all three becomes a Mismatch, and mismatches keep
// the raw values so a human can review them.
package reconcile

import (
	"strings"
)

// Canonical field names understood by the normalizer and exception policy
const (
	FieldCondition  = "CONDITION"
	FieldPrice      = "PRICE"
	FieldKilometers = "KILOMETERS"
	FieldVIN        = "VIN"
	FieldPhotos     = "PHOTOS"
)

var fieldAliases = map[string]string{
	"MILEAGE":  FieldKilometers,
	"ODOMETER": FieldKilometers,
	"KM":       FieldKilometers,
	"PHOTO":    FieldPhotos,
	"IMAGE":    FieldPhotos,
	"IMAGES":   FieldPhotos,
}

// CanonicalField maps a feed column or selector key to its canonical name
func CanonicalField(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if alias, ok := fieldAliases[upper]; ok {
		return alias
	}
	return upper
}

// Normalize canonicalizes raw for the given field
func Normalize(field, raw string) string {
	value := strings.TrimSpace(raw)

	switch CanonicalField(field) {
	case FieldCondition:
		return strings.ToLower(value)
	case FieldPrice:
		value = strings.ToLower(value)
		value = strings.NewReplacer("$", "", ",", "").Replace(value)
		return strings.TrimSpace(value)
	case FieldKilometers:
		value = strings.ToLower(value)
		value = strings.ReplaceAll(value, "km", "")
		value = strings.Join(strings.Fields(value), "")
		value = strings.ReplaceAll(value, ",", "")
		return strings.TrimSuffix(value, ".00000")
	default:
		return value
	}
}
