package csvcleaner

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	// symbols stripped off numeric cells before parsing
	numericJunk = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", "%", "", ",", "", " ", "")

	dateLayouts = []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
		"01/02/2006",
		"2/1/2006",
		"Jan 2, 2006",
		"2 Jan 2006",
	}
)

// normalizeValue applies the type-specific normalizer for one cell and
// reports whether the value changed. Empty cells pass through untouched;
// imputation deals with them.
func normalizeValue(v interface{}, dataType string) (interface{}, bool) {
	if isMissing(v) {
		return v, false
	}

	switch dataType {
	case "numeric":
		return normalizeNumeric(v)
	case "text":
		return normalizeText(v)
	case "email":
		return normalizeEmail(v)
	case "url":
		return normalizeURL(v)
	case "date":
		return normalizeDate(v)
	default:
		if s, ok := v.(string); ok {
			trimmed := strings.TrimSpace(s)
			return trimmed, trimmed != s
		}
		return v, false
	}
}

func normalizeNumeric(v interface{}) (interface{}, bool) {
	switch n := v.(type) {
	case float64:
		rounded := round2(n)
		return rounded, rounded != n
	case string:
		stripped := numericJunk.Replace(strings.TrimSpace(n))
		f, err := strconv.ParseFloat(stripped, 64)
		if err != nil {
			// not a number after all; leave the cell alone
			return v, false
		}
		return round2(f), true
	default:
		return v, false
	}
}

func normalizeText(v interface{}) (interface{}, bool) {
	s, ok := v.(string)
	if !ok {
		return v, false
	}
	collapsed := strings.Join(strings.Fields(s), " ")

	// addresses and links keep their casing
	if looksLikeURL(collapsed) || strings.Contains(collapsed, "@") {
		return collapsed, collapsed != s
	}

	titled := titleCase(collapsed)
	return titled, titled != s
}

func normalizeEmail(v interface{}) (interface{}, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, true
	}
	cleaned := strings.ToLower(strings.TrimSpace(s))
	if !emailRe.MatchString(cleaned) {
		return nil, true
	}
	return cleaned, cleaned != s
}

func normalizeURL(v interface{}) (interface{}, bool) {
	s, ok := v.(string)
	if !ok {
		return v, false
	}
	cleaned := strings.TrimSpace(s)
	if !strings.HasPrefix(cleaned, "http://") && !strings.HasPrefix(cleaned, "https://") {
		cleaned = "https://" + cleaned
	}
	return cleaned, cleaned != s
}

func normalizeDate(v interface{}) (interface{}, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, true
	}
	trimmed := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			iso := t.Format("2006-01-02")
			return iso, iso != s
		}
	}
	return nil, true
}

func looksLikeURL(s string) bool {
	return strings.Contains(s, "://") || strings.HasPrefix(s, "www.")
}

func titleCase(s string) string {
	prevLetter := false
	return strings.Map(func(r rune) rune {
		wasStart := !prevLetter
		prevLetter = unicode.IsLetter(r) || unicode.IsDigit(r)
		if !unicode.IsLetter(r) {
			return r
		}
		if wasStart {
			return unicode.ToUpper(r)
		}
		return unicode.ToLower(r)
	}, s)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func isMissing(v interface{}) bool {
	if v == nil {
		return true
	}
	return isBlank(v)
}

// isBlank reports an empty cell that was never given a value, as opposed to
// a nil left behind by a failed validation.
func isBlank(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
