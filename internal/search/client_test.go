package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-pipeline/internal/common/logger"
)

func newTestServer(t *testing.T, capture *string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*capture = r.URL.Query().Get("q")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total_count": 2,
			"items": []map[string]interface{}{
				{"name": "gin", "full_name": "gin-gonic/gin", "language": "Go", "stargazers_count": 75000},
				{"name": "echo", "full_name": "labstack/echo", "language": "Go", "stargazers_count": 29000},
			},
		})
	}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	return NewClient(&Config{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		PerPage: 20,
	}, logger.NewTestLogger(t))
}

func TestSearch(t *testing.T) {
	var capturedQuery string
	server := newTestServer(t, &capturedQuery)
	defer server.Close()

	client := newTestClient(t, server.URL)

	repos, err := client.Search(context.Background(), Params{
		Query:    "web framework",
		Language: "Go",
	})
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "gin", repos[0].Name)
	assert.Contains(t, capturedQuery, "web framework")
	assert.Contains(t, capturedQuery, "language:Go")
}

func TestTrendingAddsRecencyFilter(t *testing.T) {
	var capturedQuery string
	server := newTestServer(t, &capturedQuery)
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Trending(context.Background(), "Rust", "")
	require.NoError(t, err)
	assert.Contains(t, capturedQuery, "created:>")
	assert.Contains(t, capturedQuery, "language:Rust")
}

func TestFindAlternatives(t *testing.T) {
	var capturedQuery string
	server := newTestServer(t, &capturedQuery)
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.FindAlternatives(context.Background(), "redis", "")
	require.NoError(t, err)
	assert.Contains(t, capturedQuery, "redis")
	assert.Contains(t, capturedQuery, "in:name,description,topics")

	_, err = client.FindAlternatives(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrSearchFailed)
}

func TestExecuteDispatch(t *testing.T) {
	var capturedQuery string
	server := newTestServer(t, &capturedQuery)
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Execute(context.Background(), Params{SearchType: "trending", Language: "Go"})
	require.NoError(t, err)
	assert.Contains(t, capturedQuery, "created:>")

	_, err = client.Execute(context.Background(), Params{SearchType: "search", Query: "cli tool"})
	require.NoError(t, err)
	assert.Contains(t, capturedQuery, "cli tool")
}

func TestSearchUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Search(context.Background(), Params{Query: "anything"})
	assert.ErrorIs(t, err, ErrSearchFailed)
}

func TestToRecord(t *testing.T) {
	r := Repository{Name: "gin", FullName: "gin-gonic/gin", Stars: 75000, Language: "Go"}
	record := r.ToRecord()
	assert.Equal(t, "gin", record["name"])
	assert.Equal(t, 75000, record["stars"])
}
