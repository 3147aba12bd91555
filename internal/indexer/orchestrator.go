// Package indexer turns entity change notifications into refreshed
// semantic-search documents. It resolves the affected one-hop set, rebuilds
// each entity's aggregated text, runs it through the embedding client and
// writes the result to the vector store.
package indexer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Leozerbib/gile-back-sub001/internal/embedding"
	"github.com/Leozerbib/gile-back-sub001/internal/entitystore"
	"github.com/Leozerbib/gile-back-sub001/internal/models"
	"github.com/Leozerbib/gile-back-sub001/internal/observability"
)

const (
	opProcessing = "entity_processing"
	opRemoval    = "entity_removal"
)

// DependencyResolver answers which entities a change touches and renders
// the relation digest appended to aggregated text.
type DependencyResolver interface {
	GetAffectedEntities(ctx context.Context, ref models.EntityRef) ([]models.EntityRef, error)
	GetDependencyContext(ctx context.Context, ref models.EntityRef) (string, error)
}

// Embedder generates an embedding vector for a text.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string, opts ...embedding.GenerateOption) ([]float32, error)
}

// DocumentStore is the vector store surface the orchestrator writes through.
type DocumentStore interface {
	Upsert(ctx context.Context, doc *models.EmbeddingDocument) error
	Delete(ctx context.Context, ref models.EntityRef) error
}

// OperationRecorder receives per-operation monitoring records.
type OperationRecorder interface {
	RecordOperation(op string, d time.Duration, success bool, metadata map[string]string)
}

// Orchestrator drives the reindex pipeline. Work for the same entity is
// serialized through a keyed mutex; distinct entities proceed in parallel.
// The orchestrator performs no retries of its own: transient provider
// failures are retried inside the embedding client and event-level
// redelivery belongs to the dispatcher.
type Orchestrator struct {
	tracker  DependencyResolver
	entities entitystore.Reader
	store    DocumentStore
	embedder Embedder
	monitor  OperationRecorder
	logger   observability.Logger
	keyed    *keyedMutex
}

// NewOrchestrator creates an orchestrator. The monitor may be nil.
func NewOrchestrator(
	tracker DependencyResolver,
	entities entitystore.Reader,
	store DocumentStore,
	embedder Embedder,
	monitor OperationRecorder,
	logger observability.Logger,
) *Orchestrator {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Orchestrator{
		tracker:  tracker,
		entities: entities,
		store:    store,
		embedder: embedder,
		monitor:  monitor,
		logger:   logger.WithPrefix("indexer"),
		keyed:    newKeyedMutex(),
	}
}

// ProcessEntityForEmbedding refreshes the documents of every entity affected
// by a change to ref, the changed entity included. Entities already written
// stay written when a later one fails; the first failure aborts the cascade
// and propagates.
func (o *Orchestrator) ProcessEntityForEmbedding(ctx context.Context, ref models.EntityRef) error {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "indexer.process_entity",
		attribute.String("entity.table", string(ref.SourceTable)),
		attribute.Int64("entity.id", ref.SourceID),
		attribute.String("entity.workspace", ref.WorkspaceID),
	)
	defer span.End()

	err := o.processEntity(ctx, ref)
	o.record(opProcessing, ref, time.Since(start), err == nil)
	if err != nil {
		observability.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (o *Orchestrator) processEntity(ctx context.Context, ref models.EntityRef) error {
	affected, err := o.tracker.GetAffectedEntities(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to resolve affected entities for %s: %w", ref.Key(), err)
	}

	o.logger.Debug("processing entity change", map[string]interface{}{
		"trigger":  ref.Key(),
		"affected": len(affected),
	})

	for _, target := range affected {
		if err := o.reindexEntity(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

// RemoveEntityEmbedding deletes the entity's document and refreshes its
// one-hop neighbors so their aggregated text no longer mentions it. The
// affected set is computed up front; the tracker tolerates the entity row
// being gone by then.
func (o *Orchestrator) RemoveEntityEmbedding(ctx context.Context, ref models.EntityRef) error {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "indexer.remove_entity",
		attribute.String("entity.table", string(ref.SourceTable)),
		attribute.Int64("entity.id", ref.SourceID),
		attribute.String("entity.workspace", ref.WorkspaceID),
	)
	defer span.End()

	err := o.removeEntity(ctx, ref)
	o.record(opRemoval, ref, time.Since(start), err == nil)
	if err != nil {
		observability.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (o *Orchestrator) removeEntity(ctx context.Context, ref models.EntityRef) error {
	affected, err := o.tracker.GetAffectedEntities(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to resolve affected entities for %s: %w", ref.Key(), err)
	}

	key := ref.Key()
	o.keyed.lock(key)
	err = o.store.Delete(ctx, ref)
	o.keyed.unlock(key)
	if err != nil {
		return fmt.Errorf("failed to delete document for %s: %w", key, err)
	}

	o.logger.Info("entity document removed", map[string]interface{}{
		"entity":    key,
		"neighbors": len(affected) - 1,
	})

	for _, target := range affected {
		if target == ref {
			continue
		}
		if err := o.reindexEntity(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

// reindexEntity rebuilds and upserts one entity's document under its key
// lock. An entity whose row is gone drops its stale document instead.
func (o *Orchestrator) reindexEntity(ctx context.Context, ref models.EntityRef) error {
	key := ref.Key()
	o.keyed.lock(key)
	defer o.keyed.unlock(key)

	doc, err := o.buildDocument(ctx, ref)
	if err != nil {
		if entitystore.IsNotFound(err) {
			o.logger.Debug("entity vanished before indexing, dropping document", map[string]interface{}{
				"entity": key,
			})
			if delErr := o.store.Delete(ctx, ref); delErr != nil {
				return fmt.Errorf("failed to drop document for vanished %s: %w", key, delErr)
			}
			return nil
		}
		return fmt.Errorf("failed to build document for %s: %w", key, err)
	}

	vector, err := o.embedder.GenerateEmbedding(ctx, doc.Content,
		embedding.WithEntity(string(ref.SourceTable), ref.SourceID),
		embedding.WithWorkspace(ref.WorkspaceID),
	)
	if err != nil {
		return fmt.Errorf("failed to embed %s: %w", key, err)
	}
	doc.Embedding = vector

	if err := o.store.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("failed to store document for %s: %w", key, err)
	}

	o.logger.Debug("document refreshed", map[string]interface{}{
		"entity":        key,
		"content_bytes": len(doc.Content),
	})
	return nil
}

func (o *Orchestrator) record(op string, ref models.EntityRef, d time.Duration, success bool) {
	if o.monitor == nil {
		return
	}
	o.monitor.RecordOperation(op, d, success, map[string]string{
		"source_table": string(ref.SourceTable),
		"workspace_id": ref.WorkspaceID,
	})
}
