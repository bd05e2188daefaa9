package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ai-pipeline/internal/common/config"
	apperrors "ai-pipeline/internal/common/errors"
	"ai-pipeline/internal/common/logger"
	csvcleaner "ai-pipeline/internal/pipeline/csv-cleaner"
	"ai-pipeline/internal/pipeline/insights"
	"ai-pipeline/internal/pipeline/retrieval"
	strategyplanner "ai-pipeline/internal/pipeline/strategy-planner"
)

type stubPlanner struct {
	strategy *strategyplanner.Strategy
	err      error
}

func (s *stubPlanner) Execute(ctx context.Context, input *strategyplanner.Input) (*strategyplanner.Strategy, error) {
	return s.strategy, s.err
}

type stubRetriever struct {
	result *retrieval.ResultSet
	err    error
}

func (s *stubRetriever) Execute(ctx context.Context, strategy *strategyplanner.Strategy, question string) (*retrieval.ResultSet, error) {
	return s.result, s.err
}

type stubSynthesizer struct {
	findings *insights.Findings
}

func (s *stubSynthesizer) Execute(ctx context.Context, question string, result *retrieval.ResultSet) *insights.Findings {
	return s.findings
}

type stubCleaner struct {
	output *csvcleaner.Output
	err    error
}

func (s *stubCleaner) Execute(ctx context.Context, input *csvcleaner.Input) (*csvcleaner.Output, error) {
	return s.output, s.err
}

type stubMailer struct {
	from, to, subject, body string
	err                     error
}

func (s *stubMailer) SendPlainEmail(ctx context.Context, from, to, subject, body string) error {
	s.from, s.to, s.subject, s.body = from, to, subject, body
	return s.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "ai-pipeline"
	cfg.App.Version = "test"
	cfg.Server.MaxBodyBytes = 1 << 20
	cfg.Integrations.AWS.SES.Enabled = true
	cfg.Integrations.AWS.SES.FromEmail = "noreply@example.com"
	cfg.Integrations.AWS.SES.ToEmail = "owner@example.com"
	return cfg
}

type serverOverrides struct {
	planner     Planner
	retriever   Retriever
	synthesizer Synthesizer
	cleaner     Cleaner
	mailer      Mailer
	config      *config.Config
}

func newTestServer(t *testing.T, o serverOverrides) *Server {
	if o.config == nil {
		o.config = testConfig()
	}
	if o.planner == nil {
		o.planner = &stubPlanner{strategy: &strategyplanner.Strategy{
			Method:    strategyplanner.MethodStructured,
			SQL:       "SELECT name, stars FROM repositories ORDER BY stars DESC LIMIT 50",
			Reasoning: "popularity question",
		}}
	}
	if o.retriever == nil {
		o.retriever = &stubRetriever{result: &retrieval.ResultSet{
			Rows:   []map[string]interface{}{{"name": "gin", "stars": 75000}, {"name": "echo", "stars": 29000}},
			Count:  2,
			Source: "structured",
		}}
	}
	if o.synthesizer == nil {
		o.synthesizer = &stubSynthesizer{findings: &insights.Findings{Text: "• gin leads the field."}}
	}
	if o.cleaner == nil {
		o.cleaner = &stubCleaner{output: &csvcleaner.Output{
			Rows:            []map[string]interface{}{{"id": 1, "name": "Alice"}},
			Stats:           csvcleaner.Stats{OriginalRows: 2, ProcessedRows: 1, RemovedRows: 1, IssuesFixed: []string{}},
			ChunksProcessed: 1,
		}}
	}
	if o.mailer == nil {
		o.mailer = &stubMailer{}
	}
	return New(o.config, o.planner, o.retriever, o.synthesizer, o.cleaner, o.mailer, nil, nil, logger.NewTestLogger(t))
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestExploreEndToEnd(t *testing.T) {
	s := newTestServer(t, serverOverrides{})

	rec, body := doJSON(t, s.Routes(), http.MethodPost, "/api/explore",
		`{"question": "most popular Go web frameworks?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "structured", body["method"])
	assert.Equal(t, "structured", body["dataSource"])
	assert.Equal(t, float64(2), body["count"])
	assert.Contains(t, body["insights"], "gin leads")
	assert.Contains(t, body["sql"], "ORDER BY stars DESC")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestExploreRequiresQuestion(t *testing.T) {
	s := newTestServer(t, serverOverrides{})

	rec, body := doJSON(t, s.Routes(), http.MethodPost, "/api/explore", `{"question": "  "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestExploreMapsErrorTaxonomy(t *testing.T) {
	s := newTestServer(t, serverOverrides{
		retriever: &stubRetriever{err: apperrors.NewTransientUpstreamError("genai", assertError("overloaded"))},
	})

	rec, body := doJSON(t, s.Routes(), http.MethodPost, "/api/explore", `{"question": "anything"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["retryAdvice"])
}

func TestErrorResponsesAreLoggedWithTaxonomy(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := New(testConfig(),
		&stubPlanner{err: apperrors.NewUnsafeQueryError("drop")},
		&stubRetriever{}, &stubSynthesizer{}, &stubCleaner{}, &stubMailer{},
		nil, nil, logger.NewZapAdapter(zap.New(core)))

	rec, _ := doJSON(t, s.Routes(), http.MethodPost, "/api/explore", `{"question": "clear everything"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "UNSAFE_QUERY", fields["code"])
	assert.Equal(t, "SAFETY", fields["category"])
	assert.Equal(t, false, fields["retryable"])
}

func TestExploreEmptyResultIsOK(t *testing.T) {
	s := newTestServer(t, serverOverrides{
		retriever: &stubRetriever{result: &retrieval.ResultSet{
			Rows: []map[string]interface{}{}, Count: 0, Source: "structured",
		}},
		synthesizer: &stubSynthesizer{findings: &insights.Findings{
			Text: "• No data found for this question.", Fallback: true,
		}},
	})

	rec, body := doJSON(t, s.Routes(), http.MethodPost, "/api/explore", `{"question": "COBOL repos"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["count"])
	assert.Contains(t, body["insights"], "No data found")
}

func TestCleanCSVEndpoint(t *testing.T) {
	s := newTestServer(t, serverOverrides{})

	rec, body := doJSON(t, s.Routes(), http.MethodPost, "/api/clean-csv",
		`{"csvData": "name\nalice", "dataContext": "people"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	stats := body["cleaningStats"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["originalRows"])
	assert.Equal(t, float64(1), body["chunksProcessed"])
}

func TestCleanCSVRequiresPayload(t *testing.T) {
	s := newTestServer(t, serverOverrides{})

	rec, _ := doJSON(t, s.Routes(), http.MethodPost, "/api/clean-csv", `{"csvData": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContactSendsEmail(t *testing.T) {
	mailer := &stubMailer{}
	s := newTestServer(t, serverOverrides{mailer: mailer})

	rec, body := doJSON(t, s.Routes(), http.MethodPost, "/api/contact",
		`{"name": "Sam", "email": "sam@example.com", "message": "hello there"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "noreply@example.com", mailer.from)
	assert.Equal(t, "owner@example.com", mailer.to)
	assert.Contains(t, mailer.subject, "Sam")
	assert.Contains(t, mailer.body, "hello there")
}

func TestContactValidation(t *testing.T) {
	s := newTestServer(t, serverOverrides{})
	routes := s.Routes()

	tests := []struct {
		name string
		body string
	}{
		{"missing fields", `{"name": "Sam"}`},
		{"invalid email", `{"name": "Sam", "email": "not-an-email", "message": "hi"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := doJSON(t, routes, http.MethodPost, "/api/contact", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestContactDisabledIntegration(t *testing.T) {
	cfg := testConfig()
	cfg.Integrations.AWS.SES.Enabled = false
	s := newTestServer(t, serverOverrides{config: cfg})

	rec, _ := doJSON(t, s.Routes(), http.MethodPost, "/api/contact",
		`{"name": "Sam", "email": "sam@example.com", "message": "hello"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, serverOverrides{})

	rec, body := doJSON(t, s.Routes(), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, serverOverrides{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

type assertError string

func (e assertError) Error() string { return string(e) }
