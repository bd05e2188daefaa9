package retrieval

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"ai-pipeline/internal/common/logger"
	"ai-pipeline/internal/common/metrics"
	"ai-pipeline/internal/common/sqlguard"
	strategyplanner "ai-pipeline/internal/pipeline/strategy-planner"
	"ai-pipeline/internal/search"
)

const StageName = "retrieval"

// Store is the read-only structured repository store.
type Store interface {
	QueryMaps(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error)
}

// Searcher is the live search collaborator.
type Searcher interface {
	Execute(ctx context.Context, p search.Params) ([]search.Repository, error)
}

type Handler struct {
	config   *Config
	store    Store
	searcher Searcher
	cache    *redis.Client
	logger   logger.Logger
}

func NewHandler(config *Config, store Store, searcher Searcher, cache *redis.Client, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		store:    store,
		searcher: searcher,
		cache:    cache,
		logger: log.With(map[string]interface{}{
			"stage": StageName,
		}),
	}
}

// Execute runs the strategy through an explicit state machine with a
// bounded hop counter: one fallback transition at most, so structured and
// live-search can never redirect to each other forever.
func (h *Handler) Execute(ctx context.Context, strategy *strategyplanner.Strategy, question string) (*ResultSet, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	state := strategy.Method
	hops := 0
	cleanEmpty := false
	var lastErr error

	for state != stateExhausted {
		result, err := h.runState(ctx, state, strategy, question)
		if err == nil && result.Count == 0 {
			cleanEmpty = true
		}
		if err == nil && result.Count > 0 {
			result.UsedFallback = hops > 0
			h.logger.Info("retrieval completed", map[string]interface{}{
				"source": result.Source,
				"count":  result.Count,
				"hops":   hops,
			})
			return result, nil
		}
		if err != nil {
			lastErr = err
			h.logger.Warn("retrieval state failed", map[string]interface{}{
				"state": state,
				"error": err.Error(),
			})
		}

		next := h.nextState(state, strategy, hops)
		if next == stateExhausted {
			break
		}
		metrics.RetrievalFallbackHops.WithLabelValues(state, next).Inc()
		hops++
		state = next
	}

	if !cleanEmpty && lastErr != nil {
		return nil, fmt.Errorf("all retrieval paths failed: %w", lastErr)
	}

	// At least one path executed cleanly with zero rows: empty-but-successful
	return &ResultSet{Rows: []map[string]interface{}{}, Count: 0, Source: strategy.Method, UsedFallback: hops > 0}, nil
}

func (h *Handler) nextState(state string, strategy *strategyplanner.Strategy, hops int) string {
	if hops >= h.config.MaxHops {
		return stateExhausted
	}
	switch state {
	case stateStructured:
		if strategy.FallbackMethod == stateLiveSearch {
			return stateLiveSearch
		}
	case stateLiveSearch:
		if strategy.FallbackMethod == stateStructured || strategy.FallbackMethod == "" {
			return stateStructured
		}
	case stateCombined:
		// both arms already ran; nothing left to hop to
	}
	return stateExhausted
}

func (h *Handler) runState(ctx context.Context, state string, strategy *strategyplanner.Strategy, question string) (*ResultSet, error) {
	switch state {
	case stateStructured:
		rows, err := h.runStructured(ctx, h.structuredQuery(strategy, question))
		if err != nil {
			return nil, err
		}
		return &ResultSet{Rows: rows, Count: len(rows), Source: stateStructured}, nil

	case stateLiveSearch:
		rows, err := h.runLiveSearch(ctx, h.searchParams(strategy, question))
		if err != nil {
			return nil, err
		}
		return &ResultSet{Rows: rows, Count: len(rows), Source: stateLiveSearch}, nil

	case stateCombined:
		return h.runCombined(ctx, strategy, question)

	default:
		return nil, fmt.Errorf("unknown retrieval state: %s", state)
	}
}

// structuredQuery returns the strategy's query, or rebuilds one
// heuristically when this state is entered as a fallback hop.
func (h *Handler) structuredQuery(strategy *strategyplanner.Strategy, question string) string {
	if strategy.SQL != "" {
		return strategy.SQL
	}

	where := ""
	if strategy.SearchParams != nil && strategy.SearchParams.Language != "" {
		where = fmt.Sprintf(" WHERE language = '%s'", strategy.SearchParams.Language)
	}
	return fmt.Sprintf(
		"SELECT name, description, language, stars, forks, updated_at FROM repositories%s ORDER BY stars DESC LIMIT %d",
		where, h.config.RowLimit,
	)
}

// searchParams returns the strategy's parameters, or derives generic ones
// from the question on a fallback hop.
func (h *Handler) searchParams(strategy *strategyplanner.Strategy, question string) search.Params {
	if strategy.SearchParams != nil {
		return *strategy.SearchParams
	}
	return search.Params{SearchType: "search", Query: question}
}

func (h *Handler) runStructured(ctx context.Context, query string) ([]map[string]interface{}, error) {
	// The gate runs before every execution of generated query text, even
	// when the planner already checked it.
	checked, err := sqlguard.Check(query)
	if err != nil {
		return nil, err
	}

	cacheKey := "explore:sql:" + hashQuery(checked)
	if rows, ok := h.cacheGet(ctx, cacheKey); ok {
		return rows, nil
	}

	rows, err := h.store.QueryMaps(ctx, checked)
	if err != nil {
		return nil, fmt.Errorf("structured store: %w", err)
	}

	h.cacheSet(ctx, cacheKey, rows)
	return rows, nil
}

func (h *Handler) runLiveSearch(ctx context.Context, params search.Params) ([]map[string]interface{}, error) {
	items, err := h.searcher.Execute(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("live search: %w", err)
	}

	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		rows = append(rows, item.ToRecord())
	}
	return rows, nil
}

// runCombined issues the structured query and the live search concurrently.
// The two failures are independent: one failing arm degrades the result to
// the other arm alone, and only both failing is an error.
func (h *Handler) runCombined(ctx context.Context, strategy *strategyplanner.Strategy, question string) (*ResultSet, error) {
	var wg sync.WaitGroup
	var mu sync.Mutex

	var dbRows, apiRows []map[string]interface{}
	var dbErr, apiErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		rows, err := h.runStructured(ctx, h.structuredQuery(strategy, question))
		mu.Lock()
		dbRows, dbErr = rows, err
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		rows, err := h.runLiveSearch(ctx, h.searchParams(strategy, question))
		mu.Lock()
		apiRows, apiErr = rows, err
		mu.Unlock()
	}()

	wg.Wait()

	if dbErr != nil && apiErr != nil {
		return nil, fmt.Errorf("combined retrieval: structured: %v; live search: %v", dbErr, apiErr)
	}
	if dbErr != nil {
		h.logger.Warn("combined: structured arm failed", map[string]interface{}{"error": dbErr.Error()})
	}
	if apiErr != nil {
		h.logger.Warn("combined: live search arm failed", map[string]interface{}{"error": apiErr.Error()})
	}

	merged := h.merge(dbRows, apiRows)
	return &ResultSet{
		Rows:     merged,
		Count:    len(merged),
		Source:   stateCombined,
		DBCount:  len(dbRows),
		APICount: len(apiRows),
	}, nil
}

// merge starts from the structured rows, appends live-search rows whose
// identifying key is not already present, sorts by stars descending, and
// caps the union.
func (h *Handler) merge(dbRows, apiRows []map[string]interface{}) []map[string]interface{} {
	seen := make(map[string]bool, len(dbRows))
	merged := make([]map[string]interface{}, 0, len(dbRows)+len(apiRows))

	for _, row := range dbRows {
		seen[mergeKey(row)] = true
		merged = append(merged, row)
	}
	for _, row := range apiRows {
		key := mergeKey(row)
		if key != "" && seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, row)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return starsOf(merged[i]) > starsOf(merged[j])
	})

	if len(merged) > h.config.MergeCap {
		merged = merged[:h.config.MergeCap]
	}
	return merged
}

func mergeKey(row map[string]interface{}) string {
	for _, field := range []string{"full_name", "name"} {
		if v, ok := row[field].(string); ok && v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

// starsOf coerces the popularity metric across source representations:
// database drivers produce int64 or string, the search API produces int.
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

func (h *Handler) cacheGet(ctx context.Context, key string) ([]map[string]interface{}, bool) {
	if !h.config.CacheEnabled || h.cache == nil {
		return nil, false
	}
	val, err := h.cache.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal([]byte(val), &rows); err != nil {
		return nil, false
	}
	return rows, true
}

func (h *Handler) cacheSet(ctx context.Context, key string, rows []map[string]interface{}) {
	if !h.config.CacheEnabled || h.cache == nil || len(rows) == 0 {
		return
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, key, data, h.config.CacheTTL).Err(); err != nil {
		h.logger.Warn("cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

func hashQuery(q string) string {
	sum := sha1.Sum([]byte(q))
	return hex.EncodeToString(sum[:])
}
