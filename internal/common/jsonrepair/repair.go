// Package jsonrepair turns raw model output that is supposed to contain one
// JSON object into a parseable document. The inference service truncates
// output near its token budget and mixes quoting conventions, so a plain
// parse-or-fail would reject a large share of real responses.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var ErrUnrepairable = errors.New("JSON_UNREPAIRABLE")

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json)?")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_-]*)(\s*:)`)
	doubledQuoteRe  = regexp.MustCompile(`""([A-Za-z_][A-Za-z0-9_-]*)""`)
)

// ParseObject applies the layered repair pipeline and returns the first
// stage that yields a parseable object.
func ParseObject(raw string) (map[string]interface{}, error) {
	if doc, ok := tryParse(raw); ok {
		return doc, nil
	}

	stripped := CleanFences(raw)
	sliced, found := extractObject(stripped)
	if !found {
		return nil, ErrUnrepairable
	}
	if doc, ok := tryParse(sliced); ok {
		return doc, nil
	}

	normalized := Normalize(sliced)
	if doc, ok := tryParse(normalized); ok {
		return doc, nil
	}

	balanced := Balance(normalized)
	if doc, ok := tryParse(balanced); ok {
		return doc, nil
	}

	return nil, ErrUnrepairable
}

// ParseObjectOrDefault never fails: when repair cannot recover a document it
// returns the caller-supplied default instead.
func ParseObjectOrDefault(raw string, def map[string]interface{}) map[string]interface{} {
	if doc, err := ParseObject(raw); err == nil {
		return doc
	}
	return def
}

// SalvageObjectField recovers a single known-critical sub-object (such as
// the column-rule map) from text whose envelope is beyond repair, and wraps
// it in a minimal valid document.
func SalvageObjectField(raw, field string) (map[string]interface{}, bool) {
	stripped := CleanFences(raw)
	marker := `"` + field + `"`
	idx := strings.Index(stripped, marker)
	if idx < 0 {
		return nil, false
	}

	rest := stripped[idx+len(marker):]
	open := strings.Index(rest, "{")
	if open < 0 {
		return nil, false
	}

	fragment := extractBalancedPrefix(rest[open:])
	fragment = Balance(Normalize(fragment))

	var sub map[string]interface{}
	if err := json.Unmarshal([]byte(fragment), &sub); err != nil {
		return nil, false
	}

	return map[string]interface{}{field: sub}, true
}

// extractBalancedPrefix returns the prefix of s up to the point where its
// leading '{' balances. A fragment that never balances (truncated) is
// returned whole for the balancing stage to close.
func extractBalancedPrefix(s string) string {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return s
}

func tryParse(s string) (map[string]interface{}, bool) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// CleanFences removes markdown code-fence markers.
func CleanFences(raw string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))
}

// extractObject slices from the first '{' to the last '}'. When no closing
// brace exists yet (hard truncation) it keeps everything from the first '{'
// so the balancing stage can close it.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(s, "}")
	if end > start {
		return s[start : end+1], true
	}
	return s[start:], true
}

// Normalize fixes the common quoting artifacts: trailing commas, single
// quoted strings, bare object keys, and doubled quotes produced by quoting
// an already-quoted key.
func Normalize(s string) string {
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = convertSingleQuotes(s)
	s = bareKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	s = doubledQuoteRe.ReplaceAllString(s, `"$1"`)
	return s
}

// convertSingleQuotes rewrites 'single quoted' tokens to double quoted ones.
// Apostrophes inside a double-quoted string are content, not delimiters, so
// the scan skips over double-quoted regions instead of regexing blindly.
func convertSingleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inDouble := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inDouble {
			b.WriteByte(ch)
			if escaped {
				escaped = false
				continue
			}
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inDouble = false
			}
			continue
		}

		switch ch {
		case '"':
			inDouble = true
			b.WriteByte(ch)
		case '\'':
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				b.WriteByte(ch)
				continue
			}
			b.WriteByte('"')
			b.WriteString(s[i+1 : i+1+end])
			b.WriteByte('"')
			i += end + 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// Balance closes unterminated string literals, drops a trailing incomplete
// key-value pair, and appends exactly the closers needed to balance braces
// and brackets.
func Balance(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, ch)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		s += `"`
	}

	s = dropDanglingTail(s)

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}

	return s
}

// dropDanglingTail removes a trailing separator or an incomplete key that
// truncation left behind, e.g. `..., "colu"` or `..., "key":`.
func dropDanglingTail(s string) string {
	s = strings.TrimRight(s, " \t\n\r")
	if s == "" {
		return s
	}

	switch s[len(s)-1] {
	case ',':
		return strings.TrimRight(s[:len(s)-1], " \t\n\r")
	case ':':
		return s + " null"
	case '"':
		// A closing quote with no following colon is a key cut off before
		// its value; cut back to the separator that introduced it.
		if keyStart := danglingKeyStart(s); keyStart >= 0 {
			return strings.TrimRight(s[:keyStart], " \t\n\r,")
		}
	}
	return s
}

// danglingKeyStart returns the index where a trailing valueless key begins,
// or -1 when the trailing string is a proper value.
func danglingKeyStart(s string) int {
	open := strings.LastIndex(s[:len(s)-1], `"`)
	if open < 0 {
		return -1
	}
	before := strings.TrimRight(s[:open], " \t\n\r")
	if before == "" {
		return -1
	}
	switch before[len(before)-1] {
	case '{', ',':
		return open
	}
	return -1
}
