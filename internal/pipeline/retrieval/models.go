// internal/pipeline/retrieval/models.go
package retrieval

// ResultSet is the tagged, ordered collection a retrieval run produces.
// Rows are never mutated after creation; combined runs build a new merged
// slice instead.
type ResultSet struct {
	Rows         []map[string]interface{} `json:"rows"`
	Count        int                      `json:"count"`
	Source       string                   `json:"source"` // structured, live-search or combined
	DBCount      int                      `json:"dbCount,omitempty"`
	APICount     int                      `json:"apiCount,omitempty"`
	UsedFallback bool                     `json:"usedFallback,omitempty"`
}

// state names for the fallback machine
const (
	stateStructured = "structured"
	stateLiveSearch = "live-search"
	stateCombined   = "combined"
	stateExhausted  = "exhausted"
)
