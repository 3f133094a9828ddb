package reconcile

import (
	"regexp"
	"strings"
)

var (
	vinPattern = regexp.MustCompile(`^[A-Za-z0-9]{17}$`)

	// spinnerPatterns mark page photos that have not finished loading
	spinnerPatterns = []string{"loading", "spinner", "loader", "lazy", "placeholder", "data:image/gif", "blank.gif"}

	dashPlaceholders = map[string]bool{"-": true, "–": true, "—": true}

	contactForPrice = map[string]bool{
		"contactus":      true,
		"contact us":     true,
		"call for price": true,
		"callforprice":   true,
		"call":           true,
		"please call":    true,
	}
)

// LooksLikeVIN reports whether value is a 17 character alphanumeric string
func LooksLikeVIN(value string) bool {
	return vinPattern.MatchString(strings.TrimSpace(value))
}

// IsSpinner reports whether a photo value is a known loading placeholder
func IsSpinner(value string) bool {
	lower := strings.ToLower(value)
	for _, p := range spinnerPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsException decides whether a difference between normalized values is an
// expected, ignorable one. srpRaw is the page value before normalization.
func IsException(field, csvNorm, srpNorm, srpRaw string) bool {
	if csvNorm == "" && srpNorm == "" {
		return true
	}

	switch CanonicalField(field) {
	case FieldPhotos:
		if IsSpinner(srpNorm) {
			return true
		}
	case FieldKilometers:
		if LooksLikeVIN(srpRaw) {
			return true
		}
	case FieldVIN:
		if len(strings.TrimSpace(srpRaw)) != 17 {
			return true
		}
	}

	return isBenignPair(csvNorm, srpNorm)
}

func isBenignPair(csvNorm, srpNorm string) bool {
	if srpNorm == "" {
		return true
	}
	if csvNorm == "0" && dashPlaceholders[srpNorm] {
		return true
	}
	if csvNorm == "" && contactForPrice[strings.ToLower(srpNorm)] {
		return true
	}
	return false
}

// Compare normalizes both values and reports a mismatch carrying the raw values
func Compare(field, csvRaw, srpRaw string) (Mismatch, bool) {
	csvNorm := Normalize(field, csvRaw)
	srpNorm := Normalize(field, srpRaw)

	if IsException(field, csvNorm, srpNorm, srpRaw) {
		return Mismatch{}, false
	}
	if csvNorm == srpNorm {
		return Mismatch{}, false
	}
	return Mismatch{CSV: csvRaw, SRP: srpRaw}, true
}
