// Package stream normalizes a provider's token stream into the gateway's
// uniform output stream.
package stream

import (
	"context"
	"errors"
	"io"

	"github.com/tidwall/gjson"

	"modelgate/internal/core"
)

// Relay forwards fragments from ts to emit in arrival order, one at a time,
// until the stream ends.
//
// Mid-stream provider failures are converted to data: the error's message
// (extracted from its JSON form when possible, raw text otherwise) is
// emitted as the final fragment and the stream ends normally. From the
// caller's perspective every stream terminates by end-of-data.
//
// An emit failure (client disconnect) or context cancellation stops reading
// promptly; the underlying stream is always closed before Relay returns.
func Relay(ctx context.Context, ts core.TokenStream, emit func(string) error) error {
	defer func() {
		_ = ts.Close() //nolint:errcheck
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frag, err := ts.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// Errors become stream content, best effort: the client is
			// already reading a committed 200 body.
			_ = emit(ErrorFragment(err)) //nolint:errcheck
			return nil
		}

		if err := emit(frag); err != nil {
			return err
		}
	}
}

// ErrorFragment renders a provider error as stream text. Provider errors
// sometimes encode a JSON payload with a message field; when extraction
// fails the raw error text is used.
func ErrorFragment(err error) string {
	text := err.Error()
	if m := gjson.Get(text, "message"); m.Exists() && m.String() != "" {
		return m.String()
	}
	if m := gjson.Get(text, "error.message"); m.Exists() && m.String() != "" {
		return m.String()
	}
	return text
}
