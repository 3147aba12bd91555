// Package embedding wraps a single embedding provider with the resilience
// stack: an LRU cache, a rate limiter, a keyed circuit breaker, a retry
// envelope, and a per-attempt timeout guard, recording every call into the
// monitor and the metrics client.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Leozerbib/gile-back-sub001/internal/embedding/providers"
	"github.com/Leozerbib/gile-back-sub001/internal/monitoring"
	"github.com/Leozerbib/gile-back-sub001/internal/observability"
	"github.com/Leozerbib/gile-back-sub001/internal/resilience"
)

const opGeneration = "embedding_generation"

// ErrEmptyText rejects generation requests with nothing to embed.
var ErrEmptyText = errors.New("embedding text is empty")

// OperationRecorder receives completed operation timings.
// *monitoring.Monitor satisfies it.
type OperationRecorder interface {
	RecordOperation(op string, d time.Duration, success bool, metadata map[string]string)
}

// Config wires a Client. Provider is required; nil resilience and
// observability fields fall back to defaults or no-ops.
type Config struct {
	Provider      providers.Provider
	Breaker       *resilience.CircuitBreaker
	Limiter       resilience.RateLimiter
	Retry         resilience.RetryConfig
	OpTimeout     time.Duration
	MaxTextLength int
	CacheSize     int
	Monitor       OperationRecorder
	Metrics       observability.MetricsClient
	Logger        observability.Logger
}

// Client generates embeddings through the configured provider behind the
// resilience stack. Safe for concurrent use.
type Client struct {
	provider   providers.Provider
	breaker    *resilience.CircuitBreaker
	breakerKey string
	limiter    resilience.RateLimiter
	retryCfg   resilience.RetryConfig
	opTimeout  time.Duration
	maxTextLen int
	cache      *lru.Cache[string, []float32]
	monitor    OperationRecorder
	metrics    observability.MetricsClient
	logger     observability.Logger
}

// NewClient builds the client around cfg.Provider.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNopMetrics()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.NewCircuitBreaker(resilience.BreakerConfig{}, cfg.Logger, nil)
	}
	if cfg.Limiter == nil {
		cfg.Limiter = resilience.NewRateLimiter(0, 0)
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 45 * time.Second
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = 30000
	}

	var cache *lru.Cache[string, []float32]
	if cfg.CacheSize > 0 {
		c, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		cache = c
	}

	return &Client{
		provider:   cfg.Provider,
		breaker:    cfg.Breaker,
		breakerKey: "embedding:" + cfg.Provider.Name(),
		limiter:    cfg.Limiter,
		retryCfg:   cfg.Retry,
		opTimeout:  cfg.OpTimeout,
		maxTextLen: cfg.MaxTextLength,
		cache:      cache,
		monitor:    cfg.Monitor,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.WithPrefix("embedding"),
	}, nil
}

// GenerateOption attaches identification metadata to one generation call.
type GenerateOption func(*generateOptions)

type generateOptions struct {
	sourceTable string
	sourceID    int64
	workspaceID string
}

// WithEntity labels the call with the entity it embeds.
func WithEntity(table string, id int64) GenerateOption {
	return func(o *generateOptions) {
		o.sourceTable = table
		o.sourceID = id
	}
}

// WithWorkspace labels the call with the tenant workspace.
func WithWorkspace(id string) GenerateOption {
	return func(o *generateOptions) {
		o.workspaceID = id
	}
}

// ProviderName returns the active provider's name.
func (c *Client) ProviderName() string { return c.provider.Name() }

// Dimensions returns the vector size of the configured model.
func (c *Client) Dimensions() int { return c.provider.Dimensions() }

// GenerateEmbedding embeds text. Cache hits bypass the resilience stack;
// everything else flows rate limiter -> circuit breaker -> retry -> timeout
// guard -> provider.
func (c *Client) GenerateEmbedding(ctx context.Context, text string, opts ...GenerateOption) ([]float32, error) {
	var o generateOptions
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	text = c.truncate(text, o)

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "embedding.generate",
		attribute.String("embedding.provider", c.provider.Name()),
		attribute.String("embedding.model", c.provider.Model()),
		attribute.Int("embedding.text_length", len(text)),
	)
	defer span.End()

	key := c.cacheKey(text)
	if c.cache != nil {
		if embedding, ok := c.cache.Get(key); ok {
			c.metrics.IncrementCounterWithLabels("embedding_cache_hits_total", 1, c.providerLabels())
			c.record(o, time.Since(start), true, "hit")
			return embedding, nil
		}
		c.metrics.IncrementCounterWithLabels("embedding_cache_misses_total", 1, c.providerLabels())
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.record(o, time.Since(start), false, "miss")
		return nil, fmt.Errorf("embedding rate limit wait: %w", err)
	}

	var embedding []float32
	err := c.breaker.Execute(ctx, c.breakerKey, func(ctx context.Context) error {
		result := resilience.Retry(ctx, c.retryCfg, opGeneration, func(ctx context.Context) ([]float32, error) {
			return resilience.WithTimeout(ctx, c.opTimeout, opGeneration, func(ctx context.Context) ([]float32, error) {
				return c.provider.GenerateEmbedding(ctx, text)
			})
		}, providers.Retryable, c.logger)

		data, err := result.Unwrap()
		if err != nil {
			return err
		}
		embedding = data
		return nil
	})

	duration := time.Since(start)
	if err != nil {
		observability.RecordSpanError(span, err)
		c.record(o, duration, false, "miss")
		c.logger.Warn("embedding generation failed", map[string]interface{}{
			"provider":     c.provider.Name(),
			"source_table": o.sourceTable,
			"source_id":    o.sourceID,
			"workspace_id": o.workspaceID,
			"error":        err.Error(),
		})
		return nil, err
	}

	if c.cache != nil {
		c.cache.Add(key, embedding)
	}
	c.record(o, duration, true, "miss")
	return embedding, nil
}

// Health probes the provider. An open circuit reports down without calling
// upstream; otherwise the provider health check decides.
func (c *Client) Health(ctx context.Context) monitoring.ComponentHealth {
	now := time.Now()

	stats := c.breaker.Stats(c.breakerKey)
	if stats.State == resilience.StateOpen {
		return monitoring.ComponentHealth{
			Status:    monitoring.ComponentDegraded,
			Message:   fmt.Sprintf("circuit breaker open for %s", c.breakerKey),
			CheckedAt: now,
		}
	}

	if err := c.provider.HealthCheck(ctx); err != nil {
		return monitoring.ComponentHealth{
			Status:    monitoring.ComponentDown,
			Message:   err.Error(),
			CheckedAt: now,
		}
	}
	return monitoring.ComponentHealth{Status: monitoring.ComponentUp, CheckedAt: now}
}

func (c *Client) record(o generateOptions, d time.Duration, success bool, cache string) {
	if c.monitor == nil {
		return
	}
	metadata := map[string]string{
		"provider": c.provider.Name(),
		"cache":    cache,
	}
	if o.sourceTable != "" {
		metadata["source_table"] = o.sourceTable
		metadata["source_id"] = strconv.FormatInt(o.sourceID, 10)
	}
	if o.workspaceID != "" {
		metadata["workspace_id"] = o.workspaceID
	}
	c.monitor.RecordOperation(opGeneration, d, success, metadata)
}

func (c *Client) providerLabels() map[string]string {
	return map[string]string{"provider": c.provider.Name()}
}

// truncate cuts text to the configured budget on a rune boundary.
func (c *Client) truncate(text string, o generateOptions) string {
	if len(text) <= c.maxTextLen {
		return text
	}
	cut := c.maxTextLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	c.logger.Debug("truncating embedding text", map[string]interface{}{
		"source_table": o.sourceTable,
		"source_id":    o.sourceID,
		"original_len": len(text),
		"truncated_to": cut,
	})
	return text[:cut]
}

func (c *Client) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.provider.Name()))
	h.Write([]byte{'|'})
	h.Write([]byte(c.provider.Model()))
	h.Write([]byte{'|'})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
