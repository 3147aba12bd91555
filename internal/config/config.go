// Package config loads and validates the indexer configuration. Values come
// from defaults, an optional YAML file, and GILE_* environment variables, in
// that order of precedence (later wins).
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration tree.
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Resilience    ResilienceConfig    `mapstructure:"resilience"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Search        SearchConfig        `mapstructure:"search"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServiceConfig identifies the process and its HTTP listener.
type ServiceConfig struct {
	Name            string        `mapstructure:"name"`
	Environment     string        `mapstructure:"environment"`
	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL pool shared by the entity reads
// and the vector store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

// RedisConfig configures the event idempotency store. Disabled means events
// are processed without duplicate suppression.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	KeyTTL   time.Duration `mapstructure:"key_ttl"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	Dimensions        int           `mapstructure:"dimensions"`
	OpenAIAPIKey      string        `mapstructure:"openai_api_key"`
	GoogleAPIKey      string        `mapstructure:"google_api_key"`
	VoyageAPIKey      string        `mapstructure:"voyage_api_key"`
	CohereAPIKey      string        `mapstructure:"cohere_api_key"`
	BedrockRegion     string        `mapstructure:"bedrock_region"`
	Endpoint          string        `mapstructure:"endpoint"` // override, mainly for tests
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	CacheSize         int           `mapstructure:"cache_size"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MaxTextLength     int           `mapstructure:"max_text_length"`
}

// ResilienceConfig tunes the circuit breaker, the retry loop, and the
// per-operation timeout guard.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Retry          RetryConfig          `mapstructure:"retry"`
	OpTimeout      time.Duration        `mapstructure:"op_timeout"`
}

// CircuitBreakerConfig holds the breaker thresholds.
type CircuitBreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

// RetryConfig holds the backoff schedule.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	Multiplier float64       `mapstructure:"multiplier"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// QueueConfig sizes the in-process event queue and worker pool, and wires
// the optional SQS intake.
type QueueConfig struct {
	Capacity       int           `mapstructure:"capacity"`
	Workers        int           `mapstructure:"workers"`
	MaxEventElapse time.Duration `mapstructure:"max_event_elapse"`
	SQS            SQSConfig     `mapstructure:"sqs"`
}

// SQSConfig configures the optional SQS event source and dead-letter queue.
type SQSConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Region          string `mapstructure:"region"`
	QueueURL        string `mapstructure:"queue_url"`
	DLQURL          string `mapstructure:"dlq_url"`
	WaitTimeSeconds int32  `mapstructure:"wait_time_seconds"`
}

// SearchConfig holds semantic search defaults and caps.
type SearchConfig struct {
	DefaultThreshold float64 `mapstructure:"default_threshold"`
	DefaultLimit     int     `mapstructure:"default_limit"`
	MaxLimit         int     `mapstructure:"max_limit"`
}

// MonitoringConfig tunes the in-memory performance window and the default
// alert conditions.
type MonitoringConfig struct {
	Window             time.Duration `mapstructure:"window"`
	MaxRecords         int           `mapstructure:"max_records"`
	ErrorRateThreshold float64       `mapstructure:"error_rate_threshold"`
	AvgDurationAlert   time.Duration `mapstructure:"avg_duration_alert"`
	MinSamples         int           `mapstructure:"min_samples"`
	EvalInterval       time.Duration `mapstructure:"eval_interval"`
}

// ObservabilityConfig tunes logging and tracing.
type ObservabilityConfig struct {
	LogLevel       string  `mapstructure:"log_level"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	SampleRate     float64 `mapstructure:"sample_rate"`
	Version        string  `mapstructure:"version"`
}

// Load reads configuration from defaults, the optional file at path, and the
// environment. It returns a validated config; validation failures are
// ConfigurationError values and should be treated as fatal.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	expandEnvInConfig(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "gile-indexer")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.listen_addr", ":8085")
	v.SetDefault("service.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.dsn", "postgres://localhost:5432/gile?sslmode=disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.ping_timeout", 5*time.Second)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_ttl", 24*time.Hour)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 0) // 0 = derive from the model
	v.SetDefault("embedding.request_timeout", 30*time.Second)
	v.SetDefault("embedding.cache_size", 2048)
	v.SetDefault("embedding.requests_per_minute", 300)
	v.SetDefault("embedding.max_text_length", 30000)

	v.SetDefault("resilience.circuit_breaker.failure_threshold", 5)
	v.SetDefault("resilience.circuit_breaker.reset_timeout", 60*time.Second)
	v.SetDefault("resilience.retry.max_retries", 3)
	v.SetDefault("resilience.retry.base_delay", time.Second)
	v.SetDefault("resilience.retry.multiplier", 2.0)
	v.SetDefault("resilience.retry.max_delay", 30*time.Second)
	v.SetDefault("resilience.op_timeout", 45*time.Second)

	v.SetDefault("queue.capacity", 256)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.max_event_elapse", 2*time.Minute)
	v.SetDefault("queue.sqs.enabled", false)
	v.SetDefault("queue.sqs.wait_time_seconds", 20)

	v.SetDefault("search.default_threshold", 0.7)
	v.SetDefault("search.default_limit", 10)
	v.SetDefault("search.max_limit", 100)

	v.SetDefault("monitoring.window", time.Hour)
	v.SetDefault("monitoring.max_records", 10000)
	v.SetDefault("monitoring.error_rate_threshold", 0.25)
	v.SetDefault("monitoring.avg_duration_alert", 10*time.Second)
	v.SetDefault("monitoring.min_samples", 10)
	v.SetDefault("monitoring.eval_interval", 30*time.Second)

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.sample_rate", 1.0)
	v.SetDefault("observability.version", "dev")
}

// bindEnvVars registers the keys that have no default. AutomaticEnv only
// surfaces keys viper already knows about, so secrets and optional endpoints
// need an explicit binding before Unmarshal can see their GILE_* values.
func bindEnvVars(v *viper.Viper) {
	keys := []string{
		"redis.password",
		"embedding.openai_api_key",
		"embedding.google_api_key",
		"embedding.voyage_api_key",
		"embedding.cohere_api_key",
		"embedding.bedrock_region",
		"embedding.endpoint",
		"queue.sqs.region",
		"queue.sqs.queue_url",
		"queue.sqs.dlq_url",
		"observability.otlp_endpoint",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)(:-([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:-default} references in a string.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(groups[1]); ok {
			return val
		}
		return groups[3]
	})
}

func expandEnvInConfig(cfg *Config) {
	cfg.Database.DSN = expandEnv(cfg.Database.DSN)
	cfg.Redis.Addr = expandEnv(cfg.Redis.Addr)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Embedding.OpenAIAPIKey = expandEnv(cfg.Embedding.OpenAIAPIKey)
	cfg.Embedding.GoogleAPIKey = expandEnv(cfg.Embedding.GoogleAPIKey)
	cfg.Embedding.VoyageAPIKey = expandEnv(cfg.Embedding.VoyageAPIKey)
	cfg.Embedding.CohereAPIKey = expandEnv(cfg.Embedding.CohereAPIKey)
	cfg.Queue.SQS.QueueURL = expandEnv(cfg.Queue.SQS.QueueURL)
	cfg.Queue.SQS.DLQURL = expandEnv(cfg.Queue.SQS.DLQURL)
	cfg.Observability.OTLPEndpoint = expandEnv(cfg.Observability.OTLPEndpoint)
}
