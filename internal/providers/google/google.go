// Package google provides the managed Google Generative Language API
// adapter: typed model catalog listing plus streaming chat generation via
// the OpenAI-compatible endpoint.
package google

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"modelgate/internal/core"
	"modelgate/internal/httpclient"
)

// defaultAPIRoot is the native Generative Language API root. The
// OpenAI-compatible chat endpoint lives under its /openai path.
const defaultAPIRoot = "https://generativelanguage.googleapis.com/v1beta"

// modelNameFields is the ordered list of candidate attribute names tried
// when reducing a catalog item to a display name. Items matching none fall
// back to their raw JSON text, so schema drift never hard-fails a listing.
var modelNameFields = []string{"name", "model", "id"}

// Adapter implements core.Adapter for the managed Google API.
type Adapter struct {
	httpClient *http.Client
	apiKey     string
	apiRoot    string
}

// New creates a Google adapter. apiRoot overrides the production API root
// (used by tests and proxies); empty means the default. A nil httpClient
// falls back to the shared default client.
func New(apiKey, apiRoot string, client *http.Client) *Adapter {
	if apiRoot == "" {
		apiRoot = defaultAPIRoot
	}
	if client == nil {
		client = httpclient.NewDefault()
	}
	return &Adapter{
		httpClient: client,
		apiKey:     apiKey,
		apiRoot:    strings.TrimRight(apiRoot, "/"),
	}
}

// ListModels retrieves the provider's model catalog from the native models
// endpoint. It requires a non-empty credential.
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	if a.apiKey == "" {
		return nil, core.NewMissingCredentialError(core.ProviderGoogle)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiRoot+"/models", nil)
	if err != nil {
		return nil, core.NewUpstreamError(core.ProviderGoogle, "failed to create request: "+err.Error(), err)
	}

	// The native models endpoint authenticates via query parameter.
	q := httpReq.URL.Query()
	q.Add("key", a.apiKey)
	httpReq.URL.RawQuery = q.Encode()

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewUpstreamError(core.ProviderGoogle, "list models failed: "+err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewUpstreamError(core.ProviderGoogle, "failed to read response: "+err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, core.ParseUpstreamError(core.ProviderGoogle, resp.StatusCode, body)
	}

	items := gjson.GetBytes(body, "models").Array()
	models := make([]string, 0, len(items))
	for _, item := range items {
		models = append(models, displayName(item))
	}
	return models, nil
}

// displayName reduces a catalog item to a single name by trying the
// candidate fields in order, falling back to the item's textual form.
func displayName(item gjson.Result) string {
	for _, field := range modelNameFields {
		if v := item.Get(field); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return item.String()
}

// chatPayload is the OpenAI-compatible streaming chat request body.
type chatPayload struct {
	Model       string         `json:"model"`
	Messages    []core.Message `json:"messages"`
	Temperature float64        `json:"temperature"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream"`
}

// Generate opens a streaming chat session and returns the token stream.
// The full message history is passed as ordered context, preserving role
// and content exactly as supplied.
func (a *Adapter) Generate(ctx context.Context, req *core.GenerationRequest) (core.TokenStream, error) {
	credential := req.Credential
	if credential == "" {
		credential = a.apiKey
	}
	if credential == "" {
		return nil, core.NewMissingCredentialError(core.ProviderGoogle)
	}

	payload := chatPayload{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to marshal request: "+err.Error(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiRoot+"/openai/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, core.NewUpstreamError(core.ProviderGoogle, "failed to create request: "+err.Error(), err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+credential)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewUpstreamError(core.ProviderGoogle, "generation request failed: "+err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			respBody = []byte("failed to read error response")
		}
		_ = resp.Body.Close() //nolint:errcheck
		return nil, core.ParseUpstreamError(core.ProviderGoogle, resp.StatusCode, respBody)
	}

	scanner := bufio.NewScanner(resp.Body)
	// SSE events with full message context can exceed the default 64KB line
	// limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &sseStream{
		body:    resp.Body,
		scanner: scanner,
	}, nil
}

// sseStream adapts an OpenAI-format SSE response body to core.TokenStream.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// Recv returns the next non-empty content delta, io.EOF at end of stream,
// or the provider's error payload as an error on mid-stream failure.
func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		// Mid-stream error events carry the provider's error object; its
		// raw JSON becomes the error text so callers can extract message.
		if errObj := gjson.Get(data, "error"); errObj.Exists() {
			s.done = true
			return "", errors.New(errObj.Raw)
		}

		if content := gjson.Get(data, "choices.0.delta.content"); content.Exists() && content.String() != "" {
			return content.String(), nil
		}
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Close releases the underlying connection.
func (s *sseStream) Close() error {
	return s.body.Close()
}
