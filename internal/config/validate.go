package config

import (
	"fmt"
)

// ConfigurationError reports an invalid or missing configuration value.
// Startup treats it as fatal.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(reason, args...)}
}

// providerModels is the closed provider set with the models each one
// serves and their output dimensions. The first model listed per provider
// is the default.
var providerModels = map[string][]struct {
	Name string
	Dims int
}{
	"openai": {
		{Name: "text-embedding-3-small", Dims: 1536},
		{Name: "text-embedding-3-large", Dims: 3072},
		{Name: "text-embedding-ada-002", Dims: 1536},
	},
	"bedrock": {
		{Name: "amazon.titan-embed-text-v2:0", Dims: 1024},
		{Name: "amazon.titan-embed-text-v1", Dims: 1536},
	},
	"google": {
		{Name: "text-embedding-004", Dims: 768},
	},
	"voyage": {
		{Name: "voyage-2", Dims: 1024},
		{Name: "voyage-large-2", Dims: 1536},
	},
	"cohere": {
		{Name: "embed-english-v3.0", Dims: 1024},
		{Name: "embed-multilingual-v3.0", Dims: 1024},
	},
}

// Providers returns the names of the supported embedding providers.
func Providers() []string {
	return []string{"openai", "bedrock", "google", "voyage", "cohere"}
}

// Validate checks ranges and cross-field consistency. It also resolves the
// embedding model and dimensions defaults for the selected provider.
func (c *Config) Validate() error {
	if c.Service.ListenAddr == "" {
		return invalid("service.listen_addr", "must not be empty")
	}
	if c.Database.DSN == "" {
		return invalid("database.dsn", "must not be empty")
	}
	if c.Database.MaxOpenConns < 1 {
		return invalid("database.max_open_conns", "must be >= 1, got %d", c.Database.MaxOpenConns)
	}

	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if err := c.validateResilience(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	if err := c.validateMonitoring(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	e := &c.Embedding

	models, ok := providerModels[e.Provider]
	if !ok {
		return invalid("embedding.provider", "unknown provider %q, expected one of %v", e.Provider, Providers())
	}

	if e.Model == "" {
		e.Model = models[0].Name
	}
	dims := 0
	for _, m := range models {
		if m.Name == e.Model {
			dims = m.Dims
			break
		}
	}
	if dims == 0 {
		return invalid("embedding.model", "model %q is not served by provider %q", e.Model, e.Provider)
	}
	if e.Dimensions == 0 {
		e.Dimensions = dims
	}
	if e.Dimensions != dims {
		return invalid("embedding.dimensions", "model %s produces %d dimensions, got %d", e.Model, dims, e.Dimensions)
	}

	switch e.Provider {
	case "openai":
		if e.OpenAIAPIKey == "" {
			return invalid("embedding.openai_api_key", "required for provider openai")
		}
	case "google":
		if e.GoogleAPIKey == "" {
			return invalid("embedding.google_api_key", "required for provider google")
		}
	case "voyage":
		if e.VoyageAPIKey == "" {
			return invalid("embedding.voyage_api_key", "required for provider voyage")
		}
	case "cohere":
		if e.CohereAPIKey == "" {
			return invalid("embedding.cohere_api_key", "required for provider cohere")
		}
	case "bedrock":
		// Credentials come from the ambient AWS chain.
	}

	if e.RequestTimeout <= 0 {
		return invalid("embedding.request_timeout", "must be > 0, got %v", e.RequestTimeout)
	}
	if e.CacheSize < 0 {
		return invalid("embedding.cache_size", "must be >= 0, got %d", e.CacheSize)
	}
	if e.RequestsPerMinute < 0 {
		return invalid("embedding.requests_per_minute", "must be >= 0, got %d", e.RequestsPerMinute)
	}
	if e.MaxTextLength < 1 {
		return invalid("embedding.max_text_length", "must be >= 1, got %d", e.MaxTextLength)
	}
	return nil
}

func (c *Config) validateResilience() error {
	cb := c.Resilience.CircuitBreaker
	if cb.FailureThreshold < 1 {
		return invalid("resilience.circuit_breaker.failure_threshold", "must be >= 1, got %d", cb.FailureThreshold)
	}
	if cb.ResetTimeout <= 0 {
		return invalid("resilience.circuit_breaker.reset_timeout", "must be > 0, got %v", cb.ResetTimeout)
	}

	r := c.Resilience.Retry
	if r.MaxRetries < 0 || r.MaxRetries > 10 {
		return invalid("resilience.retry.max_retries", "must be in [0,10], got %d", r.MaxRetries)
	}
	if r.BaseDelay <= 0 {
		return invalid("resilience.retry.base_delay", "must be > 0, got %v", r.BaseDelay)
	}
	if r.Multiplier < 1 {
		return invalid("resilience.retry.multiplier", "must be >= 1, got %v", r.Multiplier)
	}
	if r.MaxDelay < r.BaseDelay {
		return invalid("resilience.retry.max_delay", "must be >= base_delay, got %v", r.MaxDelay)
	}

	if c.Resilience.OpTimeout <= 0 {
		return invalid("resilience.op_timeout", "must be > 0, got %v", c.Resilience.OpTimeout)
	}
	return nil
}

func (c *Config) validateQueue() error {
	q := c.Queue
	if q.Capacity < 1 {
		return invalid("queue.capacity", "must be >= 1, got %d", q.Capacity)
	}
	if q.Workers < 1 {
		return invalid("queue.workers", "must be >= 1, got %d", q.Workers)
	}
	if q.SQS.Enabled {
		if q.SQS.QueueURL == "" {
			return invalid("queue.sqs.queue_url", "required when sqs intake is enabled")
		}
		if q.SQS.Region == "" {
			return invalid("queue.sqs.region", "required when sqs intake is enabled")
		}
	}
	return nil
}

func (c *Config) validateSearch() error {
	s := c.Search
	if s.DefaultThreshold < 0 || s.DefaultThreshold > 1 {
		return invalid("search.default_threshold", "must be in [0,1], got %v", s.DefaultThreshold)
	}
	if s.DefaultLimit < 1 {
		return invalid("search.default_limit", "must be >= 1, got %d", s.DefaultLimit)
	}
	if s.MaxLimit < s.DefaultLimit {
		return invalid("search.max_limit", "must be >= default_limit, got %d", s.MaxLimit)
	}
	return nil
}

func (c *Config) validateMonitoring() error {
	m := c.Monitoring
	if m.Window <= 0 {
		return invalid("monitoring.window", "must be > 0, got %v", m.Window)
	}
	if m.MaxRecords < 1 {
		return invalid("monitoring.max_records", "must be >= 1, got %d", m.MaxRecords)
	}
	if m.ErrorRateThreshold < 0 || m.ErrorRateThreshold > 1 {
		return invalid("monitoring.error_rate_threshold", "must be in [0,1], got %v", m.ErrorRateThreshold)
	}
	if m.MinSamples < 1 {
		return invalid("monitoring.min_samples", "must be >= 1, got %d", m.MinSamples)
	}
	return nil
}
