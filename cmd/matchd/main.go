package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/campusfound/matchd/internal/config"
	dbRedis "github.com/campusfound/matchd/internal/db/redis"
	logpkg "github.com/campusfound/matchd/internal/logger"
	"github.com/campusfound/matchd/internal/metrics"
	"github.com/campusfound/matchd/internal/repository/embcache"
	itemrepo "github.com/campusfound/matchd/internal/repository/item"
	matchrepo "github.com/campusfound/matchd/internal/repository/match"
	searchrepo "github.com/campusfound/matchd/internal/repository/search"
	"github.com/campusfound/matchd/internal/transport/httpapi"
	openaiEmb "github.com/campusfound/matchd/internal/transport/openai"
	"github.com/campusfound/matchd/internal/trigger"
	embeddinguc "github.com/campusfound/matchd/internal/usecase/embedding"
	healthuc "github.com/campusfound/matchd/internal/usecase/health"
	matchinguc "github.com/campusfound/matchd/internal/usecase/matching"
	"github.com/campusfound/matchd/internal/version"
)

func main() {
	// Load .env if present (local development convenience).
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting matchd API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Store not ready", zap.Error(err))
	}
	logger.Info("Connected to store")

	// Register metrics explicitly (no init()).
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterMatchingMetrics()

	// Embedder chain: OpenAI provider wrapped in the text-hash cache.
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	embedder := embcache.New(base, store, cfg.Storage.KeyPrefix, metrics.EmbeddingCacheTotal, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Repositories.
	items := itemrepo.New(store, cfg.Storage.KeyPrefix, cfg.Embedding.Dimensions).
		WithHNSW(itemrepo.HNSWConfig{
			M:           cfg.Index.HNSWM,
			EFConstruct: cfg.Index.HNSWEFConstruct,
		})
	matches := matchrepo.New(store, cfg.Storage.KeyPrefix)
	searcher := searchrepo.New(store, cfg.Storage.KeyPrefix, logger)

	if err := items.EnsureFoundIndex(ctx); err != nil {
		// Degraded mode: matching still answers with estimated distances.
		logger.Warn("Vector index not available", zap.Error(err))
	}

	// Use case services.
	ensurer := embeddinguc.New(items, embedder, cfg.Embedding.Dimensions, logger)
	matcher := matchinguc.New(items, ensurer, searcher, matches, matchinguc.Defaults{
		Limit:     cfg.Matching.DefaultLimit,
		MaxLimit:  cfg.Matching.MaxLimit,
		Threshold: cfg.Matching.DefaultDistanceThreshold,
	}, logger)
	healthSvc := healthuc.New(store, store, items.FoundIndexName(), embedder)

	// Reactive matching: in-process bus drained by a single consumer.
	bus := trigger.NewMemoryBus(cfg.Trigger.BufferSize, logger)
	consumer := trigger.NewConsumer(matcher, ensurer, items, trigger.Config{
		MatchLimit:        cfg.Trigger.MatchLimit,
		FanoutCap:         cfg.Trigger.FanoutCap,
		FanoutConcurrency: cfg.Trigger.FanoutConcurrency,
	}, logger)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumer.Run(consumerCtx, bus.Events())
	}()

	server := httpapi.NewServer(matcher, items, matches, healthSvc, bus, cfg.Matching.MaxLimit, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(httpapi.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Let in-flight trigger work finish before exit.
	bus.Close()
	stopConsumer()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		logger.Warn("Trigger consumer did not drain in time")
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]any{
						"ok":        false,
						"error":     "internal error",
						"errorType": "internal",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one entry per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
