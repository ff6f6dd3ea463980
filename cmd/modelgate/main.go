// Package main is the entry point for the modelgate server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"modelgate/config"
	"modelgate/internal/catalog"
	"modelgate/internal/providers"
	"modelgate/internal/requestlog"
	"modelgate/internal/server"
	"modelgate/internal/storage"
	"modelgate/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	setupLogging()

	slog.Info("starting modelgate",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Google.APIKey == "" {
		slog.Warn("GEMINI_API_KEY not set; google requests must carry their own credential")
	}

	cat, err := newCatalogStore(cfg)
	if err != nil {
		slog.Error("failed to initialize model catalog", "error", err)
		os.Exit(1)
	}
	defer cat.Close() //nolint:errcheck

	reqLogger, cleanup, err := newRequestLogger(cfg)
	if err != nil {
		slog.Error("failed to initialize request logging", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := server.New(server.Config{
		Port:              cfg.Server.Port,
		BodySizeLimit:     cfg.Server.BodySizeLimit,
		MetricsEnabled:    cfg.Metrics.Enabled,
		MetricsEndpoint:   cfg.Metrics.Endpoint,
		DefaultModel:      cfg.Chat.DefaultModel,
		CompleteMaxTokens: cfg.Chat.CompleteMaxTokens,
		GoogleAPIKey:      cfg.Google.APIKey,
		GoogleAPIRoot:     cfg.Google.APIRoot,
		LiteLLMBaseURL:    cfg.LiteLLM.BaseURL,
	}, providers.New, cat, reqLogger)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	if err := srv.Start(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
		} else {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}

// setupLogging installs the default slog handler: JSON for machines,
// tinted text when LOG_FORMAT=pretty.
func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "pretty") {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// newCatalogStore builds the model catalog backend from configuration.
func newCatalogStore(cfg *config.Config) (catalog.Store, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		slog.Info("model catalog backend", "backend", "redis", "ttl", cfg.Cache.TTL)
		return catalog.NewRedisStore(catalog.RedisConfig{
			URL: cfg.Cache.RedisURL,
			TTL: cfg.Cache.TTL,
		})
	default:
		slog.Info("model catalog backend", "backend", "memory", "ttl", cfg.Cache.TTL)
		return catalog.NewMemoryStore(cfg.Cache.TTL), nil
	}
}

// newRequestLogger builds the request logger and its storage. The returned
// cleanup closes the logger before the storage it writes to.
func newRequestLogger(cfg *config.Config) (requestlog.LoggerInterface, func(), error) {
	if !cfg.Logging.Enabled {
		slog.Info("request logging disabled")
		return &requestlog.NoopLogger{}, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	st, err := storage.New(ctx, cfg.StorageConfig())
	if err != nil {
		return nil, nil, err
	}

	logger, err := requestlog.New(requestlog.Config{
		Enabled:       true,
		BufferSize:    cfg.Logging.BufferSize,
		FlushInterval: cfg.Logging.FlushInterval,
		RetentionDays: cfg.Logging.RetentionDays,
	}, st)
	if err != nil {
		_ = st.Close() //nolint:errcheck
		return nil, nil, err
	}

	slog.Info("request logging enabled",
		"storage_type", cfg.Storage.Type,
		"retention_days", cfg.Logging.RetentionDays,
	)

	cleanup := func() {
		if err := logger.Close(); err != nil {
			slog.Error("failed to close request logger", "error", err)
		}
		if err := st.Close(); err != nil {
			slog.Error("failed to close storage", "error", err)
		}
	}
	return logger, cleanup, nil
}
