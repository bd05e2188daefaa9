// Package sqlguard validates AI-generated query text before it may touch
// the read-only store. Every generated query string must pass through Check;
// search-parameter records bypass the gate because they cannot express
// mutation.
package sqlguard

import (
	"regexp"
	"strings"

	apperrors "ai-pipeline/internal/common/errors"
)

const DefaultRowLimit = 50

// Word-bounded so column names like updated_at or created_by never trip
// the gate.
var (
	mutatingVerbRe = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate)\b`)
	selectVerbRe   = regexp.MustCompile(`(?i)\bselect\b`)
	limitClauseRe  = regexp.MustCompile(`(?i)\blimit\s+\d+`)
	fenceRe        = regexp.MustCompile("(?s)```(?:sql)?")
	keywordRe      = regexp.MustCompile(`(?i)\b(select|from|where|group by|order by|having|limit|join|left join|inner join|on|and|or|as|desc|asc)\b`)
	breakBeforeRe  = regexp.MustCompile(`(?i)\s+\b(FROM|WHERE|GROUP BY|ORDER BY|HAVING|LIMIT)\b`)
)

// Sanitize strips the markdown wrapping and trailing terminators the model
// tends to emit around query text.
func Sanitize(raw string) string {
	s := fenceRe.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

// Check validates a sanitized query and returns it with a row limit
// guaranteed. It fails with UNSAFE_QUERY on any mutating verb and with
// NOT_A_QUERY when no read verb is present.
func Check(query string) (string, error) {
	q := Sanitize(query)

	if match := mutatingVerbRe.FindString(q); match != "" {
		return "", apperrors.NewUnsafeQueryError(strings.ToLower(match))
	}

	if !selectVerbRe.MatchString(q) {
		return "", apperrors.NewNotAQueryError(truncateForDetails(q))
	}

	if !limitClauseRe.MatchString(q) {
		q = q + " LIMIT 50"
	}

	return q, nil
}

// Format pretty-prints a query for display: uppercased keywords and a line
// break before each major clause.
func Format(query string) string {
	formatted := keywordRe.ReplaceAllStringFunc(query, strings.ToUpper)
	formatted = breakBeforeRe.ReplaceAllString(formatted, "\n$1")
	return strings.TrimSpace(formatted)
}

func truncateForDetails(q string) string {
	if len(q) > 120 {
		return q[:120] + "..."
	}
	return q
}
