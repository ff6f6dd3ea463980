package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"modelgate/internal/core"
	"modelgate/internal/credentials"
	"modelgate/internal/providers"
	"modelgate/internal/stream"
)

// FetchModelsPayload is the /fetch_models request body.
type FetchModelsPayload struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

// ChatPayload is the /chat request body. History carries prior turns in
// chronological order; the current message is appended after it.
type ChatPayload struct {
	SessionID   string         `json:"session_id,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	Message     string         `json:"message"`
	Model       string         `json:"model,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	APIKey      string         `json:"api_key,omitempty"`
	BaseURL     string         `json:"base_url,omitempty"`
	History     []core.Message `json:"history,omitempty"`
}

// CompletePayload is the /complete request body. Prefix is a pointer so an
// absent field can be told apart from an explicit empty string; only the
// former is rejected.
type CompletePayload struct {
	Prefix      *string `json:"prefix"`
	Context     string  `json:"context,omitempty"`
	Language    string  `json:"language,omitempty"`
	Filename    string  `json:"filename,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   *int    `json:"max_tokens,omitempty"`
	APIKey      string  `json:"api_key,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFetchModels(c echo.Context) error {
	var payload FetchModelsPayload
	if err := c.Bind(&payload); err != nil {
		return s.handleError(c, core.NewInvalidRequestError("invalid request body", err))
	}

	provider := strings.ToLower(payload.Provider)
	if !core.SupportedProvider(provider) {
		return s.handleError(c, core.NewInvalidRequestError("unsupported provider: "+provider, nil))
	}
	c.Set(ctxKeyProvider, provider)

	ctx := c.Request().Context()

	// An empty cached list is still a hit; only expiry invalidates an entry.
	if models, ok, err := s.catalog.Get(ctx, provider); err != nil {
		slog.Warn("model catalog lookup failed", "provider", provider, "error", err)
	} else if ok {
		recordCatalogLookup(provider, true)
		return c.JSON(http.StatusOK, map[string]interface{}{
			"models": models,
			"cached": true,
		})
	}
	recordCatalogLookup(provider, false)

	adapter, err := s.factory(provider, providers.Options{
		Credential: credentials.Resolve(c.Request().Header.Get("Authorization"), payload.APIKey, s.config.GoogleAPIKey),
		BaseURL:    s.baseURLFor(provider, payload.BaseURL),
	})
	if err != nil {
		return s.handleError(c, err)
	}

	models, err := adapter.ListModels(ctx)
	if err != nil {
		return s.handleError(c, err)
	}

	if err := s.catalog.Put(ctx, provider, models); err != nil {
		slog.Warn("failed to cache model list", "provider", provider, "error", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"models": models,
		"cached": false,
	})
}

func (s *Server) handleListModels(c echo.Context) error {
	ctx := c.Request().Context()

	if provider := strings.ToLower(c.QueryParam("provider")); provider != "" {
		if !core.SupportedProvider(provider) {
			return s.handleError(c, core.NewInvalidRequestError("unsupported provider: "+provider, nil))
		}
		c.Set(ctxKeyProvider, provider)

		models, ok, err := s.catalog.Get(ctx, provider)
		if err != nil {
			return s.handleError(c, core.NewUpstreamError(provider, "model catalog unavailable", err))
		}
		if !ok {
			return s.handleError(c, core.NewNotFoundError(
				"no cached models for provider "+provider+"; call /fetch_models with credentials"))
		}
		recordCatalogLookup(provider, true)
		return c.JSON(http.StatusOK, map[string]interface{}{
			"provider": provider,
			"models":   models,
			"cached":   true,
		})
	}

	snapshot, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return s.handleError(c, core.NewUpstreamError("", "model catalog unavailable", err))
	}
	if snapshot == nil {
		snapshot = map[string][]string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"cached_models": snapshot})
}

func (s *Server) handleChat(c echo.Context) error {
	var payload ChatPayload
	if err := c.Bind(&payload); err != nil {
		return s.handleError(c, core.NewInvalidRequestError("invalid request body", err))
	}

	if payload.Message == "" {
		return s.handleError(c, core.NewInvalidRequestError("message is required", nil))
	}
	if payload.Temperature < 0 {
		return s.handleError(c, core.NewInvalidRequestError("temperature must be non-negative", nil))
	}

	provider := strings.ToLower(payload.Provider)
	if provider == "" {
		provider = core.ProviderGoogle
	}
	if !core.SupportedProvider(provider) {
		return s.handleError(c, core.NewInvalidRequestError("unsupported provider: "+provider, nil))
	}

	model := payload.Model
	if model == "" {
		model = s.config.DefaultModel
	}
	c.Set(ctxKeyProvider, provider)
	c.Set(ctxKeyModel, model)

	messages := make([]core.Message, 0, len(payload.History)+1)
	messages = append(messages, payload.History...)
	messages = append(messages, core.Message{Role: core.RoleUser, Content: payload.Message})

	req := &core.GenerationRequest{
		Model:       model,
		Temperature: payload.Temperature,
		MaxTokens:   payload.MaxTokens,
		Messages:    messages,
		Credential:  credentials.Resolve(c.Request().Header.Get("Authorization"), payload.APIKey, s.config.GoogleAPIKey),
	}

	return s.streamGeneration(c, provider, payload.BaseURL, req)
}

func (s *Server) handleComplete(c echo.Context) error {
	var payload CompletePayload
	if err := c.Bind(&payload); err != nil {
		return s.handleError(c, core.NewInvalidRequestError("invalid request body", err))
	}

	if payload.Prefix == nil {
		return s.handleError(c, core.NewInvalidRequestError("prefix is required", nil))
	}
	if payload.Temperature < 0 {
		return s.handleError(c, core.NewInvalidRequestError("temperature must be non-negative", nil))
	}

	model := payload.Model
	if model == "" {
		model = s.config.DefaultModel
	}
	maxTokens := s.config.CompleteMaxTokens
	if payload.MaxTokens != nil {
		maxTokens = *payload.MaxTokens
	}
	c.Set(ctxKeyProvider, core.ProviderGoogle)
	c.Set(ctxKeyModel, model)

	prompt := completionPrompt(payload.Language, payload.Context, *payload.Prefix)

	req := &core.GenerationRequest{
		Model:       model,
		Temperature: payload.Temperature,
		MaxTokens:   &maxTokens,
		Messages:    []core.Message{{Role: core.RoleUser, Content: prompt}},
		Credential:  credentials.Resolve(c.Request().Header.Get("Authorization"), payload.APIKey, s.config.GoogleAPIKey),
	}

	return s.streamGeneration(c, core.ProviderGoogle, "", req)
}

// streamGeneration validates what it can without touching the network,
// commits the streaming response, and relays fragments. The 200 status is
// written before the provider call is opened, so every generation failure
// from that point on is folded into the body as text; anything detectable
// earlier (no credential, bad provider) is still a regular HTTP error.
func (s *Server) streamGeneration(c echo.Context, provider, baseURL string, req *core.GenerationRequest) error {
	if provider == core.ProviderGoogle && req.Credential == "" {
		return s.handleError(c, core.NewMissingCredentialError(provider))
	}

	adapter, err := s.factory(provider, providers.Options{
		Credential: req.Credential,
		BaseURL:    s.baseURLFor(provider, baseURL),
	})
	if err != nil {
		return s.handleError(c, err)
	}

	c.Set(ctxKeyStream, true)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	resp.WriteHeader(http.StatusOK)

	emit := func(frag string) error {
		if _, err := resp.Write([]byte(frag)); err != nil {
			return err
		}
		resp.Flush()
		recordStreamFragment(provider)
		return nil
	}

	ts, err := adapter.Generate(c.Request().Context(), req)
	if err != nil {
		slog.Warn("failed to open generation stream",
			"provider", provider, "model", req.Model, "error", err)
		return emit(stream.ErrorFragment(err))
	}

	if err := stream.Relay(c.Request().Context(), ts, emit); err != nil {
		slog.Debug("stream ended early", "provider", provider, "error", err)
	}
	return nil
}

// completionPrompt builds the /complete prompt, language-aware when a
// language is given.
func completionPrompt(language, context, prefix string) string {
	if language != "" {
		return "You are an expert " + language + " programmer. Complete the code snippet below in a concise, " +
			"correct, and idiomatic way.\n\nContext:\n" + context + "\n\nPrefix:\n" + prefix + "\n\nCompletion:"
	}
	return "Complete this code:\n\n" + context + "\n\n" + prefix + "\n\nCompletion:"
}

// baseURLFor picks the adapter endpoint: the managed API root override for
// google, the payload's base URL (falling back to configuration) for
// litellm.
func (s *Server) baseURLFor(provider, payloadBaseURL string) string {
	switch provider {
	case core.ProviderGoogle:
		return s.config.GoogleAPIRoot
	case core.ProviderLiteLLM:
		if payloadBaseURL != "" {
			return payloadBaseURL
		}
		return s.config.LiteLLMBaseURL
	default:
		return payloadBaseURL
	}
}

// handleError maps gateway errors to their JSON response shape. Anything
// that is not a GatewayError is logged and reported as a 500.
func (s *Server) handleError(c echo.Context, err error) error {
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) {
		c.Set(ctxKeyErrorType, string(gwErr.Type))
		return c.JSON(gwErr.HTTPStatusCode(), gwErr.ToJSON())
	}

	slog.Error("unhandled error", "path", c.Path(), "error", err)
	c.Set(ctxKeyErrorType, "internal_error")
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "internal server error",
		},
	})
}
