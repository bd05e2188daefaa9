package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ai-pipeline/internal/common/aws"
	"ai-pipeline/internal/common/config"
	"ai-pipeline/internal/common/database"
	"ai-pipeline/internal/common/genai"
	"ai-pipeline/internal/common/logger"
	"ai-pipeline/internal/common/observability"
	csvcleaner "ai-pipeline/internal/pipeline/csv-cleaner"
	"ai-pipeline/internal/pipeline/insights"
	"ai-pipeline/internal/pipeline/retrieval"
	strategyplanner "ai-pipeline/internal/pipeline/strategy-planner"
	"ai-pipeline/internal/search"
	"ai-pipeline/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("failed to load configuration", zap.Error(err))
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := logger.NewZapAdapter(zapLogger)

	log.Info("starting pipeline server", map[string]interface{}{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	postgres, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		log.Error("postgres connection failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer postgres.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := postgres.Ping(ctx); err != nil {
		log.Error("postgres unreachable", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	redisClient, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		log.Error("redis connection failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer redisClient.Close()

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	tracing, err := observability.NewTracing(cfg.App.Name, os.Getenv("JAEGER_ENDPOINT"))
	if err != nil {
		log.Warn("tracing disabled", map[string]interface{}{"error": err.Error()})
	} else {
		defer tracing.Shutdown()
	}

	genaiClient := genai.NewClient(&genai.Config{
		BaseURL:      cfg.APIs.GenAI.BaseURL,
		APIKey:       cfg.APIs.GenAI.APIKey,
		Models:       cfg.APIs.GenAIModels(),
		Timeout:      config.GetDuration(cfg.APIs.GenAI.Timeout),
		MaxRetries:   cfg.APIs.GenAI.MaxRetries,
		InitialDelay: config.GetDuration(cfg.APIs.GenAI.InitialDelay),
		Temperature:  cfg.APIs.GenAI.Temperature,
		MaxTokens:    cfg.APIs.GenAI.MaxTokens,
	}, log)

	searchClient := search.NewClient(&search.Config{
		BaseURL:  cfg.APIs.Search.BaseURL,
		APIToken: cfg.APIs.Search.APIToken,
		Timeout:  config.GetDuration(cfg.APIs.Search.Timeout),
		PerPage:  cfg.APIs.Search.PerPage,
	}, log)

	planner := strategyplanner.NewHandler(&strategyplanner.Config{
		Timeout:       config.GetDuration(cfg.APIs.GenAI.Timeout),
		ContextWindow: 3,
		RowLimit:      cfg.Pipeline.Retrieval.RowLimit,
	}, genaiClient, log)

	retriever := retrieval.NewHandler(&retrieval.Config{
		RowLimit:     cfg.Pipeline.Retrieval.RowLimit,
		MergeCap:     cfg.Pipeline.Retrieval.MergeCap,
		MaxHops:      cfg.Pipeline.Retrieval.MaxHops,
		Timeout:      config.GetDuration(cfg.Pipeline.Retrieval.Timeout),
		CacheTTL:     config.GetDuration(cfg.Pipeline.Retrieval.CacheTTL),
		CacheEnabled: cfg.Pipeline.Retrieval.CacheEnable,
	}, postgres, searchClient, redisClient.GetClient(), log)

	synthesizer := insights.NewHandler(&insights.Config{
		SampleRows: cfg.Pipeline.Insights.SampleRows,
		MinLength:  cfg.Pipeline.Insights.MinLength,
		Timeout:    config.GetDuration(cfg.Pipeline.Insights.Timeout),
	}, genaiClient, log)

	cleaner := csvcleaner.NewHandler(&csvcleaner.Config{
		ChunkSize:             cfg.Pipeline.Cleaning.ChunkSize,
		SampleRows:            cfg.Pipeline.Cleaning.SampleRows,
		InstructionTimeout:    config.GetDuration(cfg.Pipeline.Cleaning.InstructionTimeout),
		MaxRows:               cfg.Pipeline.Cleaning.MaxRows,
		DuplicateIgnoreFields: cfg.Pipeline.Cleaning.DuplicateIgnoreFields,
	}, genaiClient, log)

	var mailer server.Mailer
	if cfg.Integrations.AWS.SES.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			log.Warn("ses client unavailable, contact relay disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			mailer = sesClient
		}
	}

	srv := server.New(cfg, planner, retriever, synthesizer, cleaner, mailer, obs, tracing, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv.Routes(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", map[string]interface{}{"address": cfg.Server.Address})
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received", nil)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", map[string]interface{}{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	// give in-flight log writes a moment before process exit
	time.Sleep(100 * time.Millisecond)
	log.Info("pipeline server stopped", nil)
}
