// internal/pipeline/insights/models.go
package insights

// Findings is the synthesized narrative for one retrieval result.
type Findings struct {
	Text      string `json:"text"`
	ModelUsed string `json:"modelUsed,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}
