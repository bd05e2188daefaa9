package search

// Params selects one of the three search operations and its inputs. The
// planner emits these for live-search strategies; they bypass the query
// safety gate because they cannot express mutation.
type Params struct {
	SearchType string `json:"searchType"` // "search", "trending" or "alternatives"
	Query      string `json:"query"`
	Name       string `json:"name"` // alternatives target
	Language   string `json:"language"`
	Sort       string `json:"sort"`
	Order      string `json:"order"`
	PerPage    int    `json:"perPage"`
}

// Repository is one ranked item returned by the live search service.
type Repository struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Stars       int    `json:"stargazers_count"`
	Forks       int    `json:"forks_count"`
	URL         string `json:"html_url"`
	UpdatedAt   string `json:"updated_at"`
}

// ToRecord flattens a repository into the column-keyed shape shared with
// structured-store rows so the two sources merge cleanly.
func (r Repository) ToRecord() map[string]interface{} {
	return map[string]interface{}{
		"name":        r.Name,
		"full_name":   r.FullName,
		"description": r.Description,
		"language":    r.Language,
		"stars":       r.Stars,
		"forks":       r.Forks,
		"url":         r.URL,
		"updated_at":  r.UpdatedAt,
	}
}
