// Package server wires the HTTP surface of the gateway: routing,
// middleware, metrics and the endpoint handlers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelgate/internal/catalog"
	"modelgate/internal/providers"
	"modelgate/internal/requestlog"
)

// Context keys set by handlers for the request log middleware.
const (
	ctxKeyProvider  = "modelgate.provider"
	ctxKeyModel     = "modelgate.model"
	ctxKeyStream    = "modelgate.stream"
	ctxKeyErrorType = "modelgate.error_type"
)

// Config controls the HTTP server.
type Config struct {
	Port          int
	BodySizeLimit string

	MetricsEnabled  bool
	MetricsEndpoint string

	// DefaultModel is used by /chat and /complete when the payload names
	// no model.
	DefaultModel string
	// CompleteMaxTokens bounds /complete output when the payload gives no
	// limit.
	CompleteMaxTokens int

	// GoogleAPIKey is the process-level default credential, lowest in the
	// resolution order.
	GoogleAPIKey string
	// GoogleAPIRoot overrides the managed API endpoint (tests, proxies).
	GoogleAPIRoot string
	// LiteLLMBaseURL is the default gateway endpoint when the payload
	// carries none.
	LiteLLMBaseURL string
}

// Server is the gateway HTTP server.
type Server struct {
	echo    *echo.Echo
	config  Config
	factory providers.Factory
	catalog catalog.Store
	reqlog  requestlog.LoggerInterface
}

// New creates a Server with all routes and middleware registered.
func New(cfg Config, factory providers.Factory, cat catalog.Store, rlog requestlog.LoggerInterface) *Server {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.5-flash"
	}
	if cfg.CompleteMaxTokens <= 0 {
		cfg.CompleteMaxTokens = 200
	}
	if cfg.MetricsEndpoint == "" {
		cfg.MetricsEndpoint = "/metrics"
	}
	if rlog == nil {
		rlog = &requestlog.NoopLogger{}
	}

	s := &Server{
		config:  cfg,
		factory: factory,
		catalog: cat,
		reqlog:  rlog,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestIDMiddleware())
	e.Use(s.observeMiddleware())
	if cfg.BodySizeLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodySizeLimit))
	}

	e.GET("/health", s.handleHealth)
	e.POST("/fetch_models", s.handleFetchModels)
	e.GET("/models", s.handleListModels)
	e.POST("/chat", s.handleChat)
	e.POST("/complete", s.handleComplete)

	if cfg.MetricsEnabled {
		e.GET(cfg.MetricsEndpoint, echo.WrapHandler(promhttp.Handler()))
	}

	s.echo = e
	return s
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("starting HTTP server", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully, letting in-flight streams finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// requestIDMiddleware assigns a request ID when the client sent none and
// echoes it back.
func requestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// observeMiddleware records structured logs, metrics and a request log
// entry for every request.
func (s *Server) observeMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)

			status := c.Response().Status
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			if path == s.config.MetricsEndpoint {
				return err
			}

			provider, _ := c.Get(ctxKeyProvider).(string)
			model, _ := c.Get(ctxKeyModel).(string)
			streamed, _ := c.Get(ctxKeyStream).(bool)
			errorType, _ := c.Get(ctxKeyErrorType).(string)

			recordRequest(path, status, elapsed)

			slog.Info("request",
				"method", c.Request().Method,
				"path", path,
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
				"provider", provider,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)

			s.reqlog.Write(&requestlog.Entry{
				ID:         uuid.NewString(),
				Timestamp:  start,
				DurationNs: elapsed.Nanoseconds(),
				Endpoint:   path,
				Provider:   provider,
				Model:      model,
				StatusCode: status,
				RequestID:  c.Response().Header().Get(echo.HeaderXRequestID),
				ClientIP:   c.RealIP(),
				Stream:     streamed,
				ErrorType:  errorType,
			})

			return err
		}
	}
}
