// Package litellm provides the adapter for an OpenAI-compatible LiteLLM
// aggregation gateway. Only model listing is supported; generation through
// the gateway is not proxied.
package litellm

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"modelgate/internal/core"
	"modelgate/internal/httpclient"
)

// listTimeout bounds the catalog listing call.
const listTimeout = 10 * time.Second

// Adapter implements core.Adapter for a LiteLLM gateway.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a LiteLLM adapter for the given base URL. A nil httpClient
// falls back to a client with the listing timeout applied.
func New(baseURL string, client *http.Client) *Adapter {
	if client == nil {
		client = httpclient.NewWithTimeout(listTimeout)
	}
	return &Adapter{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// ListModels fetches the gateway's aggregated model list. It requires a
// non-empty base URL. An absent models field in the response is an empty
// catalog, never an error.
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	if a.baseURL == "" {
		return nil, core.NewMissingEndpointError(core.ProviderLiteLLM)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return nil, core.NewUpstreamError(core.ProviderLiteLLM, "failed to create request: "+err.Error(), err)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewUpstreamError(core.ProviderLiteLLM, "list models failed: "+err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewUpstreamError(core.ProviderLiteLLM, "failed to read response: "+err.Error(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.ParseUpstreamError(core.ProviderLiteLLM, resp.StatusCode, body)
	}

	items := gjson.GetBytes(body, "models").Array()
	models := make([]string, 0, len(items))
	for _, item := range items {
		models = append(models, item.String())
	}
	return models, nil
}

// Generate is not supported for the gateway provider; generation always
// goes through the managed adapter.
func (a *Adapter) Generate(_ context.Context, _ *core.GenerationRequest) (core.TokenStream, error) {
	return nil, core.NewInvalidRequestError("generation is not supported for provider litellm", nil)
}
