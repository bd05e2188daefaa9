package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ai-pipeline/internal/common/genai"
	"ai-pipeline/internal/common/logger"
	"ai-pipeline/internal/common/metrics"
	"ai-pipeline/internal/pipeline/retrieval"
)

const StageName = "insights"

var recencyKeywords = []string{"recent", "latest", "newest", "updated"}

// Generator is the slice of the inference caller the synthesizer needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*genai.Result, error)
}

type Handler struct {
	config *Config
	gen    Generator
	logger logger.Logger
}

func NewHandler(config *Config, gen Generator, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		gen:    gen,
		logger: log.With(map[string]interface{}{
			"stage": StageName,
		}),
	}
}

// Execute turns a result set into 2-4 bullet findings. The inference path is
// preferred; any failure or a too-short response degrades to deterministic
// statistics. The returned text is never empty, even for an empty result set.
func (h *Handler) Execute(ctx context.Context, question string, result *retrieval.ResultSet) *Findings {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageName).Observe(time.Since(start).Seconds())
	}()

	if result == nil || result.Count == 0 {
		return &Findings{Text: "• No data found for this question. Try broadening the terms or asking about a different language.", Fallback: true}
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	generated, err := h.gen.Generate(ctx, h.buildPrompt(question, result))
	if err != nil {
		h.logger.Warn("insight inference failed, using statistical fallback", map[string]interface{}{
			"error": err.Error(),
		})
		metrics.StageFailures.WithLabelValues(StageName, "INFERENCE_FAILED").Inc()
		return &Findings{Text: h.statisticalFindings(question, result), Fallback: true}
	}

	text := trimArtifacts(generated.Text)
	if !acceptable(text, h.config.MinLength) {
		h.logger.Warn("insight output too thin, using statistical fallback", map[string]interface{}{
			"model":  generated.Model,
			"length": len(text),
		})
		return &Findings{Text: h.statisticalFindings(question, result), Fallback: true}
	}

	h.logger.Info("insights synthesized", map[string]interface{}{
		"model":   generated.Model,
		"retries": generated.Retries,
	})
	return &Findings{Text: text, ModelUsed: generated.Model}
}

func (h *Handler) buildPrompt(question string, result *retrieval.ResultSet) string {
	sample := result.Rows
	if len(sample) > h.config.SampleRows {
		sample = sample[:h.config.SampleRows]
	}
	data, _ := json.Marshal(sample)

	var b strings.Builder
	b.WriteString("You are a data analyst. Produce 2-4 concise findings about the repositories below, each on its own line starting with \"• \".\n")
	b.WriteString("Focus on comparisons, leaders and notable gaps. No preamble, no markdown headings.\n\n")
	b.WriteString("Question: " + question + "\n")
	b.WriteString("Source: " + result.Source + fmt.Sprintf(" (%d rows, showing %d)\n", result.Count, len(sample)))
	b.WriteString("Data: " + string(data) + "\n")
	return b.String()
}

// acceptable requires at least one bullet marker and a minimum length, the
// signature of a real finding rather than an apology or a one-liner.
func acceptable(text string, minLength int) bool {
	if len(text) <= minLength {
		return false
	}
	return strings.Contains(text, "•") || strings.Contains(text, "- ")
}

func trimArtifacts(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.ReplaceAll(text, "**", "")
	return strings.TrimSpace(text)
}

// statisticalFindings renders fixed-template bullets from the result set:
// the leader and its margin, the top-3 landscape, and one question-intent
// observation.
func (h *Handler) statisticalFindings(question string, result *retrieval.ResultSet) string {
	rows := topByStars(result.Rows)
	if len(rows) == 0 {
		return "• No data found for this question. Try broadening the terms or asking about a different language."
	}

	var bullets []string

	leader := rows[0]
	if len(rows) > 1 {
		margin := starsOf(leader) - starsOf(rows[1])
		bullets = append(bullets, fmt.Sprintf("• %s leads with %s stars, %s ahead of %s.",
			nameOf(leader), formatCount(starsOf(leader)), formatCount(margin), nameOf(rows[1])))
	} else {
		bullets = append(bullets, fmt.Sprintf("• %s is the only match, with %s stars.",
			nameOf(leader), formatCount(starsOf(leader))))
	}

	if len(rows) >= 3 {
		total := 0.0
		names := make([]string, 0, 3)
		for _, row := range rows[:3] {
			total += starsOf(row)
			names = append(names, nameOf(row))
		}
		bullets = append(bullets, fmt.Sprintf("• The top 3 (%s) average %s stars each.",
			strings.Join(names, ", "), formatCount(total/3)))
	}

	bullets = append(bullets, h.intentObservation(question, rows))

	return strings.Join(bullets, "\n")
}

// intentObservation picks the closing bullet by question intent: recency
// questions get an update-window count, everything else a popularity sum.
func (h *Handler) intentObservation(question string, rows []map[string]interface{}) string {
	lower := strings.ToLower(question)
	for _, kw := range recencyKeywords {
		if strings.Contains(lower, kw) {
			recent := 0
			cutoff := time.Now().AddDate(0, 0, -30)
			for _, row := range rows {
				if ts, ok := updatedAt(row); ok && ts.After(cutoff) {
					recent++
				}
			}
			return fmt.Sprintf("• %d of %d results were updated within the last 30 days.", recent, len(rows))
		}
	}

	n := len(rows)
	if n > 5 {
		n = 5
	}
	total := 0.0
	for _, row := range rows[:n] {
		total += starsOf(row)
	}
	return fmt.Sprintf("• The top %d together account for %s stars.", n, formatCount(total))
}

// topByStars returns the rows ordered by the popularity metric without
// mutating the result set.
func topByStars(rows []map[string]interface{}) []map[string]interface{} {
	sorted := make([]map[string]interface{}, len(rows))
	copy(sorted, rows)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && starsOf(sorted[j]) > starsOf(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted
}

func nameOf(row map[string]interface{}) string {
	for _, field := range []string{"name", "full_name"} {
		if v, ok := row[field].(string); ok && v != "" {
			return v
		}
	}
	return "an unnamed repository"
}

func starsOf(row map[string]interface{}) float64 {
	switch v := row["stars"].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}

func updatedAt(row map[string]interface{}) (time.Time, bool) {
	raw, ok := row["updated_at"].(string)
	if !ok {
		if t, isTime := row["updated_at"].(time.Time); isTime {
			return t, true
		}
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatCount(v float64) string {
	if v >= 1000 {
		return fmt.Sprintf("%.1fk", v/1000)
	}
	return strconv.FormatFloat(v, 'f', 0, 64)
}
