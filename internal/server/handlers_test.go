package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelgate/internal/catalog"
	"modelgate/internal/core"
	"modelgate/internal/providers"
)

type fakeStream struct {
	fragments []string
	finalErr  error
	pos       int
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos < len(s.fragments) {
		frag := s.fragments[s.pos]
		s.pos++
		return frag, nil
	}
	if s.finalErr != nil {
		return "", s.finalErr
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error { return nil }

type fakeAdapter struct {
	models      []string
	listErr     error
	listCalls   int
	stream      *fakeStream
	generateErr error
	lastReq     *core.GenerationRequest
}

func (a *fakeAdapter) ListModels(_ context.Context) ([]string, error) {
	a.listCalls++
	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.models, nil
}

func (a *fakeAdapter) Generate(_ context.Context, req *core.GenerationRequest) (core.TokenStream, error) {
	a.lastReq = req
	if a.generateErr != nil {
		return nil, a.generateErr
	}
	return a.stream, nil
}

// stubFactory returns the same adapter for every provider and records the
// construction inputs.
type stubFactory struct {
	adapter  *fakeAdapter
	calls    int
	provider string
	opts     providers.Options
}

func (f *stubFactory) build(provider string, opts providers.Options) (core.Adapter, error) {
	f.calls++
	f.provider = provider
	f.opts = opts
	if !core.SupportedProvider(provider) {
		return nil, core.NewInvalidRequestError("unsupported provider: "+provider, nil)
	}
	return f.adapter, nil
}

func newTestServer(t *testing.T, cfg Config, adapter *fakeAdapter) (*Server, *stubFactory) {
	t.Helper()

	factory := &stubFactory{adapter: adapter}
	cat := catalog.NewMemoryStore(catalog.DefaultTTL)
	t.Cleanup(func() { _ = cat.Close() })

	return New(cfg, factory.build, cat, nil), factory
}

func doJSON(t *testing.T, s *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echoContentType, "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func errorType(t *testing.T, body []byte) string {
	t.Helper()

	var resp struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error.Type
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, Config{}, &fakeAdapter{})

	rec := doJSON(t, s, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestFetchModelsUnsupportedProvider(t *testing.T) {
	s, factory := newTestServer(t, Config{}, &fakeAdapter{})

	rec := doJSON(t, s, http.MethodPost, "/fetch_models", `{"provider":"foo"}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorType(t, rec.Body.Bytes()))
	assert.Zero(t, factory.calls)
}

func TestFetchModelsMissThenHit(t *testing.T) {
	adapter := &fakeAdapter{models: []string{"gemini-2.5-flash", "gemini-2.5-pro"}}
	s, _ := newTestServer(t, Config{}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/fetch_models", `{"provider":"google","api_key":"k1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var first struct {
		Models []string `json:"models"`
		Cached bool     `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, adapter.models, first.Models)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, adapter.listCalls)

	rec = doJSON(t, s, http.MethodPost, "/fetch_models", `{"provider":"google","api_key":"k1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var second struct {
		Models []string `json:"models"`
		Cached bool     `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, adapter.models, second.Models)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, adapter.listCalls, "cache hit must not reach the adapter")
}

func TestFetchModelsCachedEmptyListIsHit(t *testing.T) {
	adapter := &fakeAdapter{models: []string{}}
	s, _ := newTestServer(t, Config{}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/fetch_models", `{"provider":"google","api_key":"k"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/fetch_models", `{"provider":"google","api_key":"k"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Models []string `json:"models"`
		Cached bool     `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Models)
	assert.True(t, resp.Cached, "an empty list is a valid cache entry")
	assert.Equal(t, 1, adapter.listCalls)
}

func TestFetchModelsMissingCredentialIs400(t *testing.T) {
	cat := catalog.NewMemoryStore(catalog.DefaultTTL)
	t.Cleanup(func() { _ = cat.Close() })
	s := New(Config{}, providers.New, cat, nil)

	rec := doJSON(t, s, http.MethodPost, "/fetch_models", `{"provider":"google"}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_credential", errorType(t, rec.Body.Bytes()))
}

func TestFetchModelsNormalizesProviderCase(t *testing.T) {
	adapter := &fakeAdapter{models: []string{"m"}}
	s, factory := newTestServer(t, Config{}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/fetch_models", `{"provider":"Google"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "google", factory.provider)
}

func TestFetchModelsUpstreamFailure(t *testing.T) {
	adapter := &fakeAdapter{
		listErr: core.NewUpstreamError("litellm", "litellm responded 503: maintenance", nil),
	}
	s, _ := newTestServer(t, Config{}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/fetch_models", `{"provider":"litellm","base_url":"http://up"}`, nil)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream_error", errorType(t, rec.Body.Bytes()))
}

func TestFetchModelsCredentialPrecedence(t *testing.T) {
	adapter := &fakeAdapter{models: []string{"m"}}
	s, factory := newTestServer(t, Config{GoogleAPIKey: "env-default"}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/fetch_models",
		`{"provider":"google","api_key":"body-key"}`,
		map[string]string{"Authorization": "Bearer header-token"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "header-token", factory.opts.Credential)
}

func TestFetchModelsFallsBackToDefaultKey(t *testing.T) {
	adapter := &fakeAdapter{models: []string{"m"}}
	s, factory := newTestServer(t, Config{GoogleAPIKey: "env-default"}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/fetch_models", `{"provider":"google"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "env-default", factory.opts.Credential)
}

func TestFetchModelsLiteLLMBaseURLFromConfig(t *testing.T) {
	adapter := &fakeAdapter{models: []string{"m"}}
	s, factory := newTestServer(t, Config{LiteLLMBaseURL: "http://cfg:4000"}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/fetch_models", `{"provider":"litellm"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://cfg:4000", factory.opts.BaseURL)

	rec = doJSON(t, s, http.MethodPost, "/fetch_models",
		`{"provider":"litellm","base_url":"http://payload:4000"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://cfg:4000", factory.opts.BaseURL, "second call is served from cache")
}

func TestListModelsUnsupportedProvider(t *testing.T) {
	s, _ := newTestServer(t, Config{}, &fakeAdapter{})

	rec := doJSON(t, s, http.MethodGet, "/models?provider=foo", "", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorType(t, rec.Body.Bytes()))
}

func TestListModelsEmptyCacheIs404(t *testing.T) {
	adapter := &fakeAdapter{models: []string{"m"}}
	s, factory := newTestServer(t, Config{}, adapter)

	rec := doJSON(t, s, http.MethodGet, "/models?provider=google", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorType(t, rec.Body.Bytes()))
	assert.Zero(t, factory.calls, "no implicit fetch on cache miss")
}

func TestListModelsCachedEntry(t *testing.T) {
	adapter := &fakeAdapter{models: []string{"a", "b"}}
	s, _ := newTestServer(t, Config{}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/fetch_models", `{"provider":"google","api_key":"k"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/models?provider=google", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Provider string   `json:"provider"`
		Models   []string `json:"models"`
		Cached   bool     `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "google", resp.Provider)
	assert.Equal(t, []string{"a", "b"}, resp.Models)
	assert.True(t, resp.Cached)
}

func TestListModelsSnapshot(t *testing.T) {
	adapter := &fakeAdapter{models: []string{"a"}}
	s, _ := newTestServer(t, Config{}, adapter)

	rec := doJSON(t, s, http.MethodGet, "/models", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cached_models":{}}`, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/fetch_models", `{"provider":"google","api_key":"k"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/models", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cached_models":{"google":["a"]}}`, rec.Body.String())
}

func TestChatRequiresMessage(t *testing.T) {
	s, factory := newTestServer(t, Config{}, &fakeAdapter{})

	rec := doJSON(t, s, http.MethodPost, "/chat", `{"message":""}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorType(t, rec.Body.Bytes()))
	assert.Zero(t, factory.calls, "validation happens before any provider call")
}

func TestChatStreamsFragmentsInOrder(t *testing.T) {
	adapter := &fakeAdapter{stream: &fakeStream{fragments: []string{"Hel", "lo", " world"}}}
	s, _ := newTestServer(t, Config{}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/chat", `{"message":"hi","api_key":"k"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get(echoContentType))
	assert.Equal(t, "Hello world", rec.Body.String())
}

func TestChatBuildsOrderedMessages(t *testing.T) {
	adapter := &fakeAdapter{stream: &fakeStream{fragments: []string{"ok"}}}
	s, _ := newTestServer(t, Config{DefaultModel: "gemini-2.5-flash", GoogleAPIKey: "k"}, adapter)

	body := `{"message":"current","history":[{"role":"user","content":"first"},{"role":"assistant","content":"second"}]}`
	rec := doJSON(t, s, http.MethodPost, "/chat", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, adapter.lastReq)
	require.Len(t, adapter.lastReq.Messages, 3)
	assert.Equal(t, core.Message{Role: "user", Content: "first"}, adapter.lastReq.Messages[0])
	assert.Equal(t, core.Message{Role: "assistant", Content: "second"}, adapter.lastReq.Messages[1])
	assert.Equal(t, core.Message{Role: "user", Content: "current"}, adapter.lastReq.Messages[2])
	assert.Equal(t, "gemini-2.5-flash", adapter.lastReq.Model)
}

func TestChatMidStreamErrorBecomesText(t *testing.T) {
	adapter := &fakeAdapter{stream: &fakeStream{
		fragments: []string{"one", "two"},
		finalErr:  errors.New(`{"message": "rate limited"}`),
	}}
	s, _ := newTestServer(t, Config{}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/chat", `{"message":"hi","api_key":"k"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "onetworate limited", rec.Body.String())
}

func TestChatOpenFailureBecomesText(t *testing.T) {
	adapter := &fakeAdapter{
		generateErr: core.NewUpstreamError("google", "google responded 429: quota exhausted", nil),
	}
	s, _ := newTestServer(t, Config{}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/chat", `{"message":"hi","api_key":"k"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, "status is committed before the stream is opened")
	assert.Contains(t, rec.Body.String(), "quota exhausted")
}

func TestChatMissingCredentialIs400(t *testing.T) {
	s, factory := newTestServer(t, Config{}, &fakeAdapter{})

	rec := doJSON(t, s, http.MethodPost, "/chat", `{"message":"hi"}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_credential", errorType(t, rec.Body.Bytes()))
	assert.Zero(t, factory.calls, "credential presence is checked before any provider call")
}

func TestCompleteMissingCredentialIs400(t *testing.T) {
	s, factory := newTestServer(t, Config{}, &fakeAdapter{})

	rec := doJSON(t, s, http.MethodPost, "/complete", `{"prefix":"p"}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_credential", errorType(t, rec.Body.Bytes()))
	assert.Zero(t, factory.calls)
}

func TestChatRejectsNegativeTemperature(t *testing.T) {
	s, factory := newTestServer(t, Config{GoogleAPIKey: "k"}, &fakeAdapter{})

	rec := doJSON(t, s, http.MethodPost, "/chat", `{"message":"hi","temperature":-0.5}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorType(t, rec.Body.Bytes()))
	assert.Zero(t, factory.calls)
}

func TestCompleteRejectsNegativeTemperature(t *testing.T) {
	s, factory := newTestServer(t, Config{GoogleAPIKey: "k"}, &fakeAdapter{})

	rec := doJSON(t, s, http.MethodPost, "/complete", `{"prefix":"p","temperature":-1}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorType(t, rec.Body.Bytes()))
	assert.Zero(t, factory.calls)
}

func TestCompleteRequiresPrefixField(t *testing.T) {
	s, factory := newTestServer(t, Config{}, &fakeAdapter{})

	rec := doJSON(t, s, http.MethodPost, "/complete", `{"language":"go"}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorType(t, rec.Body.Bytes()))
	assert.Zero(t, factory.calls)
}

func TestCompleteAcceptsEmptyPrefix(t *testing.T) {
	adapter := &fakeAdapter{stream: &fakeStream{fragments: []string{"done"}}}
	s, _ := newTestServer(t, Config{}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/complete", `{"prefix":"","api_key":"k"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", rec.Body.String())
}

func TestCompletePromptTemplates(t *testing.T) {
	adapter := &fakeAdapter{stream: &fakeStream{fragments: []string{"x"}}}
	s, _ := newTestServer(t, Config{GoogleAPIKey: "k"}, adapter)

	body := `{"prefix":"func main() {","context":"package main","language":"Go"}`
	rec := doJSON(t, s, http.MethodPost, "/complete", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, adapter.lastReq)
	require.Len(t, adapter.lastReq.Messages, 1)
	prompt := adapter.lastReq.Messages[0].Content
	assert.Contains(t, prompt, "expert Go programmer")
	assert.Contains(t, prompt, "Context:\npackage main")
	assert.Contains(t, prompt, "Prefix:\nfunc main() {")

	adapter.stream = &fakeStream{fragments: []string{"x"}}
	rec = doJSON(t, s, http.MethodPost, "/complete", `{"prefix":"a + b"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Complete this code:\n\n\n\na + b\n\nCompletion:", adapter.lastReq.Messages[0].Content)
}

func TestCompleteDefaultsMaxTokens(t *testing.T) {
	adapter := &fakeAdapter{stream: &fakeStream{fragments: []string{"x"}}}
	s, _ := newTestServer(t, Config{CompleteMaxTokens: 200, GoogleAPIKey: "k"}, adapter)

	rec := doJSON(t, s, http.MethodPost, "/complete", `{"prefix":"p"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, adapter.lastReq.MaxTokens)
	assert.Equal(t, 200, *adapter.lastReq.MaxTokens)

	adapter.stream = &fakeStream{fragments: []string{"x"}}
	rec = doJSON(t, s, http.MethodPost, "/complete", `{"prefix":"p","max_tokens":32}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 32, *adapter.lastReq.MaxTokens)
}

func TestRequestIDEchoedBack(t *testing.T) {
	s, _ := newTestServer(t, Config{}, &fakeAdapter{})

	rec := doJSON(t, s, http.MethodGet, "/health", "", map[string]string{"X-Request-ID": "req-42"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = doJSON(t, s, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
