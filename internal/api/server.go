// Package api exposes the indexing pipeline over REST: entity processing
// and removal, semantic search, direct embedding generation, change-event
// intake, and the health and metrics surfaces.
package api

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Leozerbib/gile-back-sub001/internal/embedding"
	"github.com/Leozerbib/gile-back-sub001/internal/events"
	"github.com/Leozerbib/gile-back-sub001/internal/models"
	"github.com/Leozerbib/gile-back-sub001/internal/monitoring"
	"github.com/Leozerbib/gile-back-sub001/internal/observability"
	"github.com/Leozerbib/gile-back-sub001/internal/resilience"
)

// Indexer drives document processing and removal for an entity and its
// one-hop neighbors.
type Indexer interface {
	ProcessEntityForEmbedding(ctx context.Context, ref models.EntityRef) error
	RemoveEntityEmbedding(ctx context.Context, ref models.EntityRef) error
}

// Embedder is the embedding client surface the gateway calls.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string, opts ...embedding.GenerateOption) ([]float32, error)
	ProviderName() string
	Dimensions() int
}

// DocumentSearcher is the vector store surface used by the query endpoints.
type DocumentSearcher interface {
	Get(ctx context.Context, ref models.EntityRef) (*models.EmbeddingDocument, error)
	SemanticSearch(ctx context.Context, embedding []float32, opts models.SearchOptions) ([]models.SearchResult, error)
	Stats(ctx context.Context, workspaceID string) (*models.StoreStats, error)
}

// EventIntake enqueues validated change events for asynchronous processing.
type EventIntake interface {
	Enqueue(ctx context.Context, ev events.EntityChangeEvent) error
	QueueDepth() int
}

// HealthReporter folds component checks and operation statistics into the
// health and metrics responses.
type HealthReporter interface {
	GetServiceHealthMetrics() monitoring.ServiceHealth
	AllStats() map[string]monitoring.PerformanceStats
}

// BreakerInspector exposes circuit breaker state for the metrics endpoint.
type BreakerInspector interface {
	AllStats() map[string]resilience.BreakerStats
}

// Config carries the gateway's collaborators. Breakers is optional; the
// rest are required.
type Config struct {
	Indexer  Indexer
	Embedder Embedder
	Store    DocumentSearcher
	Intake   EventIntake
	Health   HealthReporter
	Breakers BreakerInspector
	Logger   observability.Logger
}

// Server wires the gateway handlers into a gin engine.
type Server struct {
	indexer     Indexer
	embedder    Embedder
	store       DocumentSearcher
	intake      EventIntake
	health      HealthReporter
	breakers    BreakerInspector
	logger      observability.Logger
	eventSchema *gojsonschema.Schema
}

// NewServer creates the gateway and compiles the change-event schema.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Indexer == nil || cfg.Embedder == nil || cfg.Store == nil || cfg.Intake == nil || cfg.Health == nil {
		return nil, fmt.Errorf("api: indexer, embedder, store, intake and health are all required")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(eventSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile event schema: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Server{
		indexer:     cfg.Indexer,
		embedder:    cfg.Embedder,
		store:       cfg.Store,
		intake:      cfg.Intake,
		health:      cfg.Health,
		breakers:    cfg.Breakers,
		logger:      logger.WithPrefix("api"),
		eventSchema: schema,
	}, nil
}

// Router builds the gin engine with middleware and all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), RequestLogger(s.logger), Recovery(s.logger))

	r.GET("/healthz", s.getHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.RegisterRoutes(r.Group("/api/v1"))
	return r
}

// RegisterRoutes registers the versioned API routes on the given group.
func (s *Server) RegisterRoutes(group *gin.RouterGroup) {
	index := group.Group("/index")
	index.POST("/process", s.processEntity)
	index.POST("/remove", s.removeEntity)

	group.POST("/search", s.searchDocuments)
	group.POST("/search/similar", s.searchSimilar)
	group.POST("/embeddings", s.generateEmbedding)
	group.POST("/events", s.ingestEvent)

	group.GET("/health", s.getHealth)
	group.GET("/metrics", s.getMetrics)
	group.GET("/stats", s.getStoreStats)
}
