package strategyplanner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ai-pipeline/internal/common/genai"
	"ai-pipeline/internal/common/jsonrepair"
	"ai-pipeline/internal/common/logger"
	"ai-pipeline/internal/common/sqlguard"
	"ai-pipeline/internal/common/validation"
	"ai-pipeline/internal/search"
)

const StageName = "strategy-planner"

// languageNames are the languages the heuristic fallback recognizes in a
// question, in scan order.
var languageNames = []string{
	"Python", "JavaScript", "TypeScript", "Go", "Rust", "Java",
	"C++", "C#", "Ruby", "PHP", "Swift", "Kotlin",
}

var recencyKeywords = []string{"recent", "latest", "newest", "updated", "new "}

// Generator is the slice of the inference caller the planner needs.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (*genai.Result, error)
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

// Execute classifies the question into a retrieval strategy. Every failure
// mode of the inference path degrades to the deterministic heuristic; this
// stage never returns an error for a non-empty question.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Strategy, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, fmt.Errorf("question is required")
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	result, err := h.gen.GenerateJSON(ctx, h.buildPrompt(input))
	if err != nil {
		h.logger.Warn("inference failed, using heuristic strategy", map[string]interface{}{
			"error": err.Error(),
		})
		return h.heuristicStrategy(input.Question), nil
	}

	doc, err := jsonrepair.ParseObject(result.Text)
	if err != nil {
		h.logger.Warn("strategy output unrepairable, using heuristic strategy", map[string]interface{}{
			"model": result.Model,
		})
		return h.heuristicStrategy(input.Question), nil
	}

	if vr, verr := validation.ValidateDocument(validation.StrategySchema, doc); verr != nil || !vr.Valid {
		details := ""
		if vr != nil {
			details = validation.FormatErrors(vr)
		}
		h.logger.Warn("strategy document invalid, using heuristic strategy", map[string]interface{}{
			"model":  result.Model,
			"errors": details,
		})
		return h.heuristicStrategy(input.Question), nil
	}

	strategy, err := h.buildStrategy(doc, result.Model)
	if err != nil {
		h.logger.Warn("strategy unusable, using heuristic strategy", map[string]interface{}{
			"model": result.Model,
			"error": err.Error(),
		})
		return h.heuristicStrategy(input.Question), nil
	}

	h.logger.Info("strategy planned", map[string]interface{}{
		"method":  strategy.Method,
		"model":   strategy.ModelUsed,
		"retries": result.Retries,
	})

	return strategy, nil
}

func (h *Handler) buildPrompt(input *Input) string {
	var b strings.Builder

	b.WriteString("You are a data exploration strategist. Classify the question into a retrieval method and answer with exactly one JSON object:\n")
	b.WriteString(`{"method": "structured" | "live-search" | "combined", "primary_query": <SQL string or search parameter object>, "fallback_strategy": "<alternate method>", "reasoning": "<one sentence>"}` + "\n\n")
	b.WriteString("Available structured table: repositories(name, full_name, description, language, stars, forks, url, created_at, updated_at). Read-only, SELECT only, always LIMIT 50.\n")
	b.WriteString("Search parameter objects look like {\"searchType\": \"search\"|\"trending\"|\"alternatives\", \"query\": ..., \"name\": ..., \"language\": ..., \"sort\": ..., \"order\": ...}.\n")

	// Only the tail of the conversation fits the prompt budget
	start := len(input.Context) - h.config.ContextWindow
	if start < 0 {
		start = 0
	}
	if len(input.Context) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, ex := range input.Context[start:] {
			b.WriteString("Q: " + ex.Question + "\n")
			if ex.Answer != "" {
				b.WriteString("A: " + ex.Answer + "\n")
			}
		}
	}

	b.WriteString("\nQuestion: " + input.Question + "\n")
	return b.String()
}

func (h *Handler) buildStrategy(doc map[string]interface{}, model string) (*Strategy, error) {
	strategy := &Strategy{
		Method:    stringField(doc, "method"),
		Reasoning: stringField(doc, "reasoning"),
		ModelUsed: model,
	}

	if fb := stringField(doc, "fallback_strategy"); fb != "" {
		strategy.FallbackMethod = fb
	} else {
		strategy.FallbackMethod = defaultFallback(strategy.Method)
	}

	switch primary := doc["primary_query"].(type) {
	case string:
		checked, err := sqlguard.Check(primary)
		if err != nil {
			return nil, err
		}
		strategy.SQL = checked
	case map[string]interface{}:
		params, err := decodeSearchParams(primary)
		if err != nil {
			return nil, err
		}
		strategy.SearchParams = params
	case nil:
		if strategy.Method != MethodCombined {
			return nil, fmt.Errorf("primary_query missing")
		}
	}

	// Combined strategies may carry both shapes in sibling fields
	if strategy.Method == MethodCombined {
		if strategy.SQL == "" {
			if sqlText := stringField(doc, "sql"); sqlText != "" {
				checked, err := sqlguard.Check(sqlText)
				if err != nil {
					return nil, err
				}
				strategy.SQL = checked
			}
		}
		if strategy.SearchParams == nil {
			if rawParams, ok := doc["search_params"].(map[string]interface{}); ok {
				params, err := decodeSearchParams(rawParams)
				if err == nil {
					strategy.SearchParams = params
				}
			}
		}
		if strategy.SQL == "" && strategy.SearchParams == nil {
			return nil, fmt.Errorf("combined strategy carries neither query shape")
		}
	}

	if strategy.Method == MethodStructured && strategy.SQL == "" {
		return nil, fmt.Errorf("structured strategy without query text")
	}
	if strategy.Method == MethodLiveSearch && strategy.SearchParams == nil {
		return nil, fmt.Errorf("live-search strategy without parameters")
	}

	return strategy, nil
}

// heuristicStrategy is the deterministic keyword fallback used whenever the
// inference path fails: scan for a language name and intent keywords, then
// emit a template popularity query.
func (h *Handler) heuristicStrategy(question string) *Strategy {
	lower := strings.ToLower(question)

	language := ""
	for _, name := range languageNames {
		if strings.Contains(lower, strings.ToLower(name)) {
			language = name
			break
		}
	}

	if strings.Contains(lower, "trending") {
		return &Strategy{
			Method:         MethodLiveSearch,
			SearchParams:   &search.Params{SearchType: "trending", Language: language},
			FallbackMethod: MethodStructured,
			Reasoning:      "Heuristic: trending questions need live data",
			Heuristic:      true,
		}
	}

	if idx := strings.Index(lower, "alternatives to "); idx >= 0 {
		name := strings.TrimSpace(question[idx+len("alternatives to "):])
		name = strings.Trim(name, "?.!")
		return &Strategy{
			Method:         MethodLiveSearch,
			SearchParams:   &search.Params{SearchType: "alternatives", Name: name, Language: language},
			FallbackMethod: MethodStructured,
			Reasoning:      "Heuristic: alternative-finding needs live search",
			Heuristic:      true,
		}
	}

	orderBy := "stars"
	for _, kw := range recencyKeywords {
		if strings.Contains(lower, kw) {
			orderBy = "updated_at"
			break
		}
	}

	var where string
	if language != "" {
		where = fmt.Sprintf(" WHERE language = '%s'", language)
	}

	sqlText := fmt.Sprintf(
		"SELECT name, description, language, stars, forks, updated_at FROM repositories%s ORDER BY %s DESC LIMIT %d",
		where, orderBy, h.config.RowLimit,
	)

	return &Strategy{
		Method:         MethodStructured,
		SQL:            sqlText,
		FallbackMethod: MethodLiveSearch,
		Reasoning:      "Heuristic: keyword-derived popularity query",
		Heuristic:      true,
	}
}

func defaultFallback(method string) string {
	switch method {
	case MethodStructured:
		return MethodLiveSearch
	case MethodLiveSearch:
		return MethodStructured
	default:
		return ""
	}
}

func decodeSearchParams(raw map[string]interface{}) (*search.Params, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var params search.Params
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	if params.SearchType == "" {
		params.SearchType = "search"
	}
	return &params, nil
}

func stringField(doc map[string]interface{}, key string) string {
	if v, ok := doc[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
