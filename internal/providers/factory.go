// Package providers constructs the adapter variant for a provider
// identifier. Dispatch happens once at request entry; downstream code works
// against core.Adapter only.
package providers

import (
	"net/http"

	"modelgate/internal/core"
	"modelgate/internal/providers/google"
	"modelgate/internal/providers/litellm"
)

// Options carries per-request adapter construction inputs.
type Options struct {
	// Credential is the resolved API key for managed providers.
	Credential string

	// BaseURL is the endpoint for gateway providers, or an API root
	// override for managed providers.
	BaseURL string

	// HTTPClient overrides the adapter's HTTP client (tests, proxies).
	HTTPClient *http.Client
}

// Factory builds adapters. Implemented by New; replaced by stubs in tests.
type Factory func(provider string, opts Options) (core.Adapter, error)

// New returns the adapter for the given provider identifier, rejecting
// unknown identifiers before any network activity.
func New(provider string, opts Options) (core.Adapter, error) {
	switch provider {
	case core.ProviderGoogle:
		return google.New(opts.Credential, opts.BaseURL, opts.HTTPClient), nil
	case core.ProviderLiteLLM:
		return litellm.New(opts.BaseURL, opts.HTTPClient), nil
	default:
		return nil, core.NewInvalidRequestError("unsupported provider: "+provider, nil)
	}
}
