// Package search wraps the live repository search API consumed by the
// retrieval executor: generic search, trending lookups, and
// alternative-finding for a named project.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ai-pipeline/internal/common/logger"
)

var (
	ErrSearchFailed  = errors.New("SEARCH_QUERY_FAILED")
	ErrSearchTimeout = errors.New("SEARCH_TIMEOUT")
)

type Config struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	PerPage  int
}

type Client struct {
	config *Config
	client *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log.With(map[string]interface{}{
			"component": "search",
		}),
	}
}

// Execute dispatches params to the matching search operation.
func (c *Client) Execute(ctx context.Context, p Params) ([]Repository, error) {
	switch p.SearchType {
	case "trending":
		return c.Trending(ctx, p.Language, p.Sort)
	case "alternatives":
		return c.FindAlternatives(ctx, p.Name, p.Language)
	default:
		return c.Search(ctx, p)
	}
}

// Search performs a generic ranked repository search.
func (c *Client) Search(ctx context.Context, p Params) ([]Repository, error) {
	query := strings.TrimSpace(p.Query)
	if query == "" {
		query = "stars:>100"
	}
	if p.Language != "" && !strings.Contains(query, "language:") {
		query += " language:" + p.Language
	}

	sort := p.Sort
	if sort == "" {
		sort = "stars"
	}
	order := p.Order
	if order == "" {
		order = "desc"
	}

	return c.searchRepositories(ctx, query, sort, order, c.perPage(p.PerPage))
}

// Trending finds repositories created in the last 30 days, most-starred
// first.
func (c *Client) Trending(ctx context.Context, language, sort string) ([]Repository, error) {
	since := time.Now().UTC().AddDate(0, 0, -30).Format("2006-01-02")
	query := "created:>" + since
	if language != "" {
		query += " language:" + language
	}
	if sort == "" {
		sort = "stars"
	}
	return c.searchRepositories(ctx, query, sort, "desc", c.perPage(0))
}

// FindAlternatives searches for projects similar to a named one.
func (c *Client) FindAlternatives(ctx context.Context, name, language string) ([]Repository, error) {
	query := strings.TrimSpace(name)
	if query == "" {
		return nil, fmt.Errorf("%w: alternatives search requires a name", ErrSearchFailed)
	}
	query += " in:name,description,topics"
	if language != "" {
		query += " language:" + language
	}
	return c.searchRepositories(ctx, query, "stars", "desc", c.perPage(0))
}

func (c *Client) perPage(requested int) int {
	if requested > 0 && requested <= 100 {
		return requested
	}
	if c.config.PerPage > 0 {
		return c.config.PerPage
	}
	return 20
}

func (c *Client) searchRepositories(ctx context.Context, query, sort, order string, perPage int) ([]Repository, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", sort)
	params.Set("order", order)
	params.Set("per_page", strconv.Itoa(perPage))

	endpoint := c.config.BaseURL + "/search/repositories?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrSearchTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrSearchFailed, resp.StatusCode)
	}

	var apiResponse struct {
		TotalCount int          `json:"total_count"`
		Items      []Repository `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrSearchFailed, err)
	}

	c.logger.Info("search completed", map[string]interface{}{
		"query":      query,
		"totalCount": apiResponse.TotalCount,
		"returned":   len(apiResponse.Items),
	})

	return apiResponse.Items, nil
}
