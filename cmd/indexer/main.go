// Package main is the entry point for the vector indexing service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Leozerbib/gile-back-sub001/internal/api"
	"github.com/Leozerbib/gile-back-sub001/internal/config"
	"github.com/Leozerbib/gile-back-sub001/internal/dependency"
	"github.com/Leozerbib/gile-back-sub001/internal/embedding"
	"github.com/Leozerbib/gile-back-sub001/internal/embedding/providers"
	"github.com/Leozerbib/gile-back-sub001/internal/entitystore"
	"github.com/Leozerbib/gile-back-sub001/internal/events"
	"github.com/Leozerbib/gile-back-sub001/internal/indexer"
	"github.com/Leozerbib/gile-back-sub001/internal/monitoring"
	"github.com/Leozerbib/gile-back-sub001/internal/observability"
	"github.com/Leozerbib/gile-back-sub001/internal/resilience"
	"github.com/Leozerbib/gile-back-sub001/internal/vectorstore"
)

var (
	// Version information (set via ldflags during build)
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configPath  = flag.String("config", "", "Path to configuration file")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Gile Indexer\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n",
			version, buildTime, gitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewStandardLogger("indexer", observability.ParseLogLevel(cfg.Observability.LogLevel))
	logger.Info("Starting vector indexer", map[string]interface{}{
		"version":     version,
		"build_time":  buildTime,
		"git_commit":  gitCommit,
		"environment": cfg.Service.Environment,
		"provider":    cfg.Embedding.Provider,
		"model":       cfg.Embedding.Model,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		ServiceName: cfg.Service.Name,
		Version:     version,
		Environment: cfg.Service.Environment,
		SampleRate:  cfg.Observability.SampleRate,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", map[string]interface{}{"error": err.Error()})
		}
	}()

	metrics := observability.NewPrometheusMetrics("gile", "indexer")

	db, err := connectDatabase(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	entities := entitystore.NewStore(db)
	store, err := vectorstore.NewRepository(db, vectorstore.Config{
		Dimensions:       cfg.Embedding.Dimensions,
		DefaultThreshold: cfg.Search.DefaultThreshold,
		DefaultLimit:     cfg.Search.DefaultLimit,
		MaxLimit:         cfg.Search.MaxLimit,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize vector store: %v", err)
	}

	monitor := monitoring.NewMonitor(monitoring.Config{
		Window:             cfg.Monitoring.Window,
		MaxRecords:         cfg.Monitoring.MaxRecords,
		ErrorRateThreshold: cfg.Monitoring.ErrorRateThreshold,
		AvgDurationAlert:   cfg.Monitoring.AvgDurationAlert,
		MinSamples:         cfg.Monitoring.MinSamples,
		EvalInterval:       cfg.Monitoring.EvalInterval,
	}, logger, metrics, resilience.SystemClock())
	go monitor.Run(ctx)

	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.CircuitBreaker.FailureThreshold,
		ResetTimeout:     cfg.Resilience.CircuitBreaker.ResetTimeout,
	}, logger, resilience.SystemClock())

	provider, err := providers.New(cfg.Embedding.Provider, providers.Options{
		Model:          cfg.Embedding.Model,
		APIKey:         apiKeyFor(&cfg.Embedding),
		Region:         cfg.Embedding.BedrockRegion,
		Endpoint:       cfg.Embedding.Endpoint,
		RequestTimeout: cfg.Embedding.RequestTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to create embedding provider: %v", err)
	}

	embedder, err := embedding.NewClient(embedding.Config{
		Provider: provider,
		Breaker:  breaker,
		Limiter:  resilience.NewRateLimiter(cfg.Embedding.RequestsPerMinute, 0),
		Retry: resilience.RetryConfig{
			MaxRetries: cfg.Resilience.Retry.MaxRetries,
			BaseDelay:  cfg.Resilience.Retry.BaseDelay,
			Multiplier: cfg.Resilience.Retry.Multiplier,
			MaxDelay:   cfg.Resilience.Retry.MaxDelay,
		},
		OpTimeout:     cfg.Resilience.OpTimeout,
		MaxTextLength: cfg.Embedding.MaxTextLength,
		CacheSize:     cfg.Embedding.CacheSize,
		Monitor:       monitor,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}

	tracker := dependency.NewTracker(entities, logger)
	orchestrator := indexer.NewOrchestrator(tracker, entities, store, embedder, monitor, logger)

	var guard *events.IdempotencyGuard
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("Failed to close redis client", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
		guard = events.NewIdempotencyGuard(redisClient, cfg.Redis.KeyTTL, logger)
	}

	var dlq events.DeadLetter
	var sqsClient *sqs.Client
	if cfg.Queue.SQS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Queue.SQS.Region))
		if err != nil {
			log.Fatalf("Failed to load AWS configuration: %v", err)
		}
		sqsClient = sqs.NewFromConfig(awsCfg)
		if cfg.Queue.SQS.DLQURL != "" {
			dlq = events.NewSQSDeadLetter(sqsClient, cfg.Queue.SQS.DLQURL, logger)
		}
	}

	dispatcher := events.NewDispatcher(events.Config{
		Capacity:       cfg.Queue.Capacity,
		Workers:        cfg.Queue.Workers,
		MaxEventElapse: cfg.Queue.MaxEventElapse,
	}, orchestrator, guard, dlq, metrics, logger)

	dispatcherDone := make(chan error, 1)
	go func() {
		dispatcherDone <- dispatcher.Run(ctx)
	}()

	if sqsClient != nil {
		consumer := events.NewSQSConsumer(sqsClient, cfg.Queue.SQS.QueueURL, cfg.Queue.SQS.WaitTimeSeconds, dispatcher, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("SQS consumer terminated", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	}

	monitor.RegisterComponent("database", databaseChecker(db, cfg.Database.PingTimeout))
	monitor.RegisterComponent("embedding_provider", embedder.Health)
	if redisClient != nil {
		monitor.RegisterComponent("redis", redisChecker(redisClient))
	}

	gateway, err := api.NewServer(api.Config{
		Indexer:  orchestrator,
		Embedder: embedder,
		Store:    store,
		Intake:   dispatcher,
		Health:   monitor,
		Breakers: breaker,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("Failed to create API server: %v", err)
	}
	httpServer := startHTTPServer(cfg, gateway, logger)

	dispatcherExited := false
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})
	case err := <-dispatcherDone:
		dispatcherExited = true
		if err != nil {
			logger.Error("Event dispatcher terminated", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	logger.Info("Starting graceful shutdown", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down HTTP server", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cancel()

	if !dispatcherExited {
		// The dispatcher drains in-flight events before returning.
		select {
		case <-dispatcherDone:
		case <-shutdownCtx.Done():
			logger.Warn("Event queue did not drain before timeout", nil)
		}
	}

	logger.Info("Shutdown complete", nil)
}

// connectDatabase opens the PostgreSQL pool and waits for it to answer
// pings, backing off exponentially. The database is a hard dependency; the
// service does not start degraded without it.
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig, logger observability.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 2 * time.Minute

	attempt := 0
	ping := func() error {
		attempt++
		pingCtx, pingCancel := context.WithTimeout(ctx, cfg.PingTimeout)
		defer pingCancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Warn("Database not reachable yet, retrying", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(bo, ctx)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	logger.Info("Database connection established", map[string]interface{}{
		"max_open_conns": cfg.MaxOpenConns,
	})
	return db, nil
}

func startHTTPServer(cfg *config.Config, gateway *api.Server, logger observability.Logger) *http.Server {
	if cfg.Observability.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:    cfg.Service.ListenAddr,
		Handler: gateway.Router(),
	}

	go func() {
		logger.Info("HTTP server listening", map[string]interface{}{
			"addr": cfg.Service.ListenAddr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return server
}

func databaseChecker(db *sqlx.DB, pingTimeout time.Duration) monitoring.ComponentChecker {
	return func(ctx context.Context) monitoring.ComponentHealth {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return monitoring.ComponentHealth{
				Status:    monitoring.ComponentDown,
				Message:   err.Error(),
				CheckedAt: time.Now(),
			}
		}
		return monitoring.ComponentHealth{Status: monitoring.ComponentUp, CheckedAt: time.Now()}
	}
}

// redisChecker reports degraded rather than down when Redis is unreachable:
// the idempotency guard fails open, so the pipeline keeps working without
// duplicate suppression.
func redisChecker(client *redis.Client) monitoring.ComponentChecker {
	return func(ctx context.Context) monitoring.ComponentHealth {
		if err := client.Ping(ctx).Err(); err != nil {
			return monitoring.ComponentHealth{
				Status:    monitoring.ComponentDegraded,
				Message:   err.Error(),
				CheckedAt: time.Now(),
			}
		}
		return monitoring.ComponentHealth{Status: monitoring.ComponentUp, CheckedAt: time.Now()}
	}
}

func apiKeyFor(e *config.EmbeddingConfig) string {
	switch e.Provider {
	case "openai":
		return e.OpenAIAPIKey
	case "google":
		return e.GoogleAPIKey
	case "voyage":
		return e.VoyageAPIKey
	case "cohere":
		return e.CohereAPIKey
	default:
		return ""
	}
}
