package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/hadley-cell/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hadley-cell/internal/adapter/kafka"
	"github.com/couchcryptid/hadley-cell/internal/adapter/sqlite"
	"github.com/couchcryptid/hadley-cell/internal/config"
	"github.com/couchcryptid/hadley-cell/internal/decompose"
	"github.com/couchcryptid/hadley-cell/internal/observability"
	"github.com/couchcryptid/hadley-cell/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Wind decomposition for regional jobs (feature-flagged via DECOMPOSE_ENABLED).
	analyzer := pipeline.Analyzer{
		Decompose: cfg.DecomposeEnabled,
		Options: decompose.Options{
			MaxIterations: cfg.DecomposeMaxIterations,
			Tolerance:     cfg.DecomposeTolerance,
		},
	}
	if cfg.DecomposeEnabled {
		metrics.DecompositionActive.Set(1)
		logger.Info("wind decomposition enabled",
			"max_iterations", cfg.DecomposeMaxIterations, "tolerance", cfg.DecomposeTolerance)
	} else {
		logger.Info("wind decomposition disabled; regional jobs will be rejected")
	}

	var transformer pipeline.Transformer = pipeline.NewTransformer(cfg.DataDir, analyzer, metrics, logger)
	if cfg.ResultCacheSize > 0 {
		transformer = pipeline.NewCachedTransformer(transformer, cfg.ResultCacheSize, metrics)
		logger.Info("result cache enabled", "size", cfg.ResultCacheSize)
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	loaders := pipeline.MultiLoader{writer}
	var results httpadapter.ResultStore
	var store *sqlite.Store
	if cfg.ResultsDBPath != "" {
		store, err = sqlite.Open(cfg.ResultsDBPath)
		if err != nil {
			logger.Error("failed to open results database", "error", err, "path", cfg.ResultsDBPath)
			os.Exit(1)
		}
		loaders = append(loaders, store)
		results = store
		logger.Info("result archive enabled", "path", cfg.ResultsDBPath)
	}

	p := pipeline.New(reader, transformer, loaders, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, analyzer, results, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("results database close error", "error", err)
	}

	logger.Info("shutdown complete")
}
