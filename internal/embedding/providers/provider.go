// Package providers implements the closed set of embedding providers the
// indexer can run against. One provider is selected at configuration load;
// each one talks to its own endpoint with its own auth scheme and serves a
// fixed set of models.
package providers

import (
	"context"
	"fmt"
	"time"
)

// Provider generates embeddings for text. Implementations are safe for
// concurrent use.
type Provider interface {
	// Name returns the provider identifier (openai, bedrock, google,
	// voyage, cohere).
	Name() string
	// Model returns the model the provider was configured with.
	Model() string
	// Dimensions returns the vector size the configured model produces.
	Dimensions() int
	// GenerateEmbedding embeds a single text. Failures are *ProviderError
	// values carrying the upstream status and retryability.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	// HealthCheck verifies the upstream API is reachable with the
	// configured credentials.
	HealthCheck(ctx context.Context) error
}

// Options carries the provider settings resolved from configuration.
type Options struct {
	Model          string
	APIKey         string
	Region         string // bedrock only
	Endpoint       string // base URL override, used by tests
	RequestTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 30 * time.Second
	}
}

// New builds the provider with the given name. The name set is closed;
// anything else is an error.
func New(name string, opts Options) (Provider, error) {
	opts.applyDefaults()
	switch name {
	case "openai":
		return NewOpenAIProvider(opts)
	case "bedrock":
		return NewBedrockProvider(opts)
	case "google":
		return NewGoogleProvider(opts)
	case "voyage":
		return NewVoyageProvider(opts)
	case "cohere":
		return NewCohereProvider(opts)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", name)
	}
}
