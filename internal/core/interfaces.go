// Package core defines the shared types, interfaces and error taxonomy for
// the gateway.
package core

import "context"

// Adapter is the capability set every provider adapter implements.
// The concrete variant is chosen once at request entry (by the provider
// factory); downstream code never re-checks the provider identifier.
type Adapter interface {
	// ListModels fetches the provider's current model catalog as an ordered
	// list of model names.
	ListModels(ctx context.Context) ([]string, error)

	// Generate opens a streaming generation session and returns the
	// token stream. The caller must close the stream.
	Generate(ctx context.Context, req *GenerationRequest) (TokenStream, error)
}

// TokenStream is a lazy, finite, non-restartable sequence of text fragments
// in provider arrival order.
type TokenStream interface {
	// Recv returns the next text fragment. It returns io.EOF when the
	// stream is exhausted, or any other error on mid-stream failure.
	Recv() (string, error)

	// Close releases the underlying provider connection. Safe to call
	// more than once.
	Close() error
}
