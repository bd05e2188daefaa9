// internal/pipeline/strategy-planner/models.go
package strategyplanner

import "ai-pipeline/internal/search"

const (
	MethodStructured = "structured"
	MethodLiveSearch = "live-search"
	MethodCombined   = "combined"
)

// Exchange is one prior question/answer pair of the conversation.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

type Input struct {
	Question string     `json:"question"`
	Context  []Exchange `json:"context,omitempty"`
}

// Strategy is the planner's decision for a single question: which retrieval
// method to run, its parameters, and the declared fallback method.
type Strategy struct {
	Method         string         `json:"method"`
	SQL            string         `json:"sql,omitempty"`
	SearchParams   *search.Params `json:"searchParams,omitempty"`
	FallbackMethod string         `json:"fallbackMethod,omitempty"`
	Reasoning      string         `json:"reasoning"`
	ModelUsed      string         `json:"modelUsed,omitempty"`
	Heuristic      bool           `json:"heuristic,omitempty"`
}
