// Package provider defines the streaming model client the session talks to,
// and a failover wrapper over several of them.
package provider

import "context"

// Provider streams completions from one model.
type Provider interface {
	// Stream opens a completion. Errors opening the stream are returned;
	// later ones arrive as StreamChunk.Err. The channel closes when the
	// response is complete.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	ModelName() string
}
