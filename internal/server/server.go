// Package server exposes the pipeline over HTTP: exploration, CSV cleaning,
// contact relay and operational endpoints.
package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ai-pipeline/internal/common/config"
	"ai-pipeline/internal/common/logger"
	"ai-pipeline/internal/common/observability"
	csvcleaner "ai-pipeline/internal/pipeline/csv-cleaner"
	"ai-pipeline/internal/pipeline/insights"
	"ai-pipeline/internal/pipeline/retrieval"
	strategyplanner "ai-pipeline/internal/pipeline/strategy-planner"
)

// Stage collaborators, narrowed to what the handlers call.
type Planner interface {
	Execute(ctx context.Context, input *strategyplanner.Input) (*strategyplanner.Strategy, error)
}

type Retriever interface {
	Execute(ctx context.Context, strategy *strategyplanner.Strategy, question string) (*retrieval.ResultSet, error)
}

type Synthesizer interface {
	Execute(ctx context.Context, question string, result *retrieval.ResultSet) *insights.Findings
}

type Cleaner interface {
	Execute(ctx context.Context, input *csvcleaner.Input) (*csvcleaner.Output, error)
}

// Mailer relays contact messages. May be nil when the integration is
// disabled.
type Mailer interface {
	SendPlainEmail(ctx context.Context, from, to, subject, body string) error
}

type Server struct {
	config      *config.Config
	planner     Planner
	retriever   Retriever
	synthesizer Synthesizer
	cleaner     Cleaner
	mailer      Mailer
	obs         *observability.Observability
	tracing     *observability.Tracing
	logger      logger.Logger
}

func New(cfg *config.Config, planner Planner, retriever Retriever, synthesizer Synthesizer, cleaner Cleaner, mailer Mailer, obs *observability.Observability, tracing *observability.Tracing, log logger.Logger) *Server {
	return &Server{
		config:      cfg,
		planner:     planner,
		retriever:   retriever,
		synthesizer: synthesizer,
		cleaner:     cleaner,
		mailer:      mailer,
		obs:         obs,
		tracing:     tracing,
		logger:      log.With(map[string]interface{}{"component": "server"}),
	}
}

// startSpan opens a stage span when tracing is configured. The returned
// closer is always safe to call.
func (s *Server) startSpan(ctx context.Context, stage string) (context.Context, func()) {
	if s.tracing == nil {
		return ctx, func() {}
	}
	spanCtx, span := s.tracing.StartSpan(ctx, stage, nil)
	return spanCtx, func() { span.End() }
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/explore", s.handleExplore)
	mux.HandleFunc("POST /api/clean-csv", s.handleCleanCSV)
	mux.HandleFunc("POST /api/contact", s.handleContact)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.withMiddleware(mux)
}
