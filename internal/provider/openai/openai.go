// Package openai implements provider.Provider for the OpenAI Chat
// Completions API and servers compatible with it, with streaming and
// function calling.
package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/flemzord/codeclaw/internal/provider"
)

// Compile-time interface guard.
var _ provider.Provider = (*Provider)(nil)

// Provider streams chat completions from one endpoint.
type Provider struct {
	config Config
	client *goopenai.Client
	logger *slog.Logger
}

// New validates cfg and creates a Provider.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	// http.Client.Timeout would cut long-lived SSE streams, so the timeout
	// only bounds the wait for response headers; cancellation is handled
	// via context.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.parsedTimeout()
	clientCfg.HTTPClient = &http.Client{Transport: transport}

	return &Provider{
		config: cfg,
		client: goopenai.NewClientWithConfig(clientCfg),
		logger: logger.With("provider", cfg.Name),
	}, nil
}

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.config.Name }

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string { return p.config.Model }

// Stream implements provider.Provider.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req))
	if err != nil {
		return nil, mapError(err)
	}

	ch := make(chan provider.StreamChunk, 16)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		send := func(chunk provider.StreamChunk) bool {
			select {
			case ch <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				p.logger.Debug("stream ended with error", "error", err)
				send(provider.StreamChunk{Err: mapError(err)})
				return
			}

			chunk, ok := toChunk(resp)
			if !ok {
				continue
			}
			if !send(chunk) {
				return
			}
		}
	}()

	return ch, nil
}

func (p *Provider) buildRequest(req provider.CompletionRequest) goopenai.ChatCompletionRequest {
	out := goopenai.ChatCompletionRequest{
		Model:         p.config.Model,
		Messages:      toMessages(req.Messages),
		Tools:         toTools(req.Tools),
		MaxTokens:     p.config.MaxTokens,
		Stream:        true,
		StreamOptions: &goopenai.StreamOptions{IncludeUsage: true},
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	temperature := p.config.Temperature
	if req.Temperature != nil {
		temperature = req.Temperature
	}
	if temperature != nil {
		out.Temperature = float32(*temperature)
	}
	return out
}
