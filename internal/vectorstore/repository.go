// Package vectorstore persists embedding documents in PostgreSQL with the
// pgvector extension and serves cosine-similarity search over them. A
// document is keyed by its source triple (source_table, source_id,
// workspace_id); upserts replace content and vector in place.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Leozerbib/gile-back-sub001/internal/models"
	"github.com/Leozerbib/gile-back-sub001/internal/observability"
)

const (
	defaultSearchThreshold = 0.7
	defaultSearchLimit     = 10
	defaultMaxSearchLimit  = 100
)

// Config sets the repository's vector dimension and search bounds. Zero
// search bounds fall back to 0.7 / 10 / 100.
type Config struct {
	Dimensions       int
	DefaultThreshold float64
	DefaultLimit     int
	MaxLimit         int
}

// Repository stores and searches embedding documents.
type Repository struct {
	db               *sqlx.DB
	dims             int
	defaultThreshold float64
	defaultLimit     int
	maxLimit         int
	logger           observability.Logger
}

// NewRepository creates a vector store over the given database handle and
// verifies the pgvector extension is installed.
func NewRepository(db *sqlx.DB, cfg Config, logger observability.Logger) (*Repository, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.DefaultThreshold <= 0 || cfg.DefaultThreshold > 1 {
		cfg.DefaultThreshold = defaultSearchThreshold
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaultSearchLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = defaultMaxSearchLimit
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	var exists bool
	if err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check pgvector extension: %w", err)
	}
	if !exists {
		return nil, errors.New("pgvector extension is not installed in the database")
	}

	return &Repository{
		db:               db,
		dims:             cfg.Dimensions,
		defaultThreshold: cfg.DefaultThreshold,
		defaultLimit:     cfg.DefaultLimit,
		maxLimit:         cfg.MaxLimit,
		logger:           logger.WithPrefix("vectorstore"),
	}, nil
}

// Dimensions returns the vector dimension the store was configured with.
func (r *Repository) Dimensions() int {
	return r.dims
}

// Upsert inserts or replaces the document for its source triple.
func (r *Repository) Upsert(ctx context.Context, doc *models.EmbeddingDocument) error {
	if doc == nil {
		return &StorageError{Op: "upsert", Err: errors.New("document cannot be nil")}
	}
	if err := doc.Ref().Validate(); err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}
	if len(doc.Embedding) != r.dims {
		return &StorageError{
			Op:  "upsert",
			Err: fmt.Errorf("embedding has %d dimensions, store expects %d", len(doc.Embedding), r.dims),
		}
	}

	metadataJSON := []byte("{}")
	if len(doc.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(doc.Metadata)
		if err != nil {
			return &StorageError{Op: "upsert", Err: fmt.Errorf("failed to marshal metadata: %w", err)}
		}
	}

	query := `
	INSERT INTO embedding_documents (
		source_table, source_id, workspace_id, project_id,
		document_type, content, content_hash, embedding, metadata,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8::vector, $9, NOW(), NOW()
	)
	ON CONFLICT (source_table, source_id, workspace_id) DO UPDATE SET
		project_id = EXCLUDED.project_id,
		document_type = EXCLUDED.document_type,
		content = EXCLUDED.content,
		content_hash = EXCLUDED.content_hash,
		embedding = EXCLUDED.embedding,
		metadata = EXCLUDED.metadata,
		updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		doc.SourceTable, doc.SourceID, doc.WorkspaceID, doc.ProjectID,
		doc.DocumentType, doc.Content, doc.ContentHash,
		formatVector(doc.Embedding), metadataJSON,
	)
	if err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}

	r.logger.Debug("upserted embedding document", map[string]interface{}{
		"ref":           doc.Ref().Key(),
		"document_type": doc.DocumentType,
		"content_bytes": len(doc.Content),
	})
	return nil
}

// Delete removes the document for a source triple. Deleting a document
// that was never indexed is not an error.
func (r *Repository) Delete(ctx context.Context, ref models.EntityRef) error {
	query := `
	DELETE FROM embedding_documents
	WHERE source_table = $1 AND source_id = $2 AND workspace_id = $3`

	result, err := r.db.ExecContext(ctx, query, ref.SourceTable, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}

	if affected, raErr := result.RowsAffected(); raErr == nil {
		r.logger.Debug("deleted embedding document", map[string]interface{}{
			"ref":     ref.Key(),
			"deleted": affected,
		})
	}
	return nil
}

// Exists reports whether a document is stored for the source triple.
func (r *Repository) Exists(ctx context.Context, ref models.EntityRef) (bool, error) {
	var exists bool
	query := `
	SELECT EXISTS(
		SELECT 1 FROM embedding_documents
		WHERE source_table = $1 AND source_id = $2 AND workspace_id = $3
	)`

	if err := r.db.GetContext(ctx, &exists, query, ref.SourceTable, ref.SourceID, ref.WorkspaceID); err != nil {
		return false, &StorageError{Op: "exists", Err: err}
	}
	return exists, nil
}

// documentRow mirrors a full table row; the vector comes back as text and
// is parsed after scanning.
type documentRow struct {
	ID            string    `db:"id"`
	SourceTable   string    `db:"source_table"`
	SourceID      int64     `db:"source_id"`
	WorkspaceID   string    `db:"workspace_id"`
	ProjectID     *int64    `db:"project_id"`
	DocumentType  string    `db:"document_type"`
	Content       string    `db:"content"`
	ContentHash   string    `db:"content_hash"`
	EmbeddingText string    `db:"embedding_text"`
	Metadata      []byte    `db:"metadata"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Get retrieves the document for a source triple, including its vector.
func (r *Repository) Get(ctx context.Context, ref models.EntityRef) (*models.EmbeddingDocument, error) {
	var row documentRow
	query := `
	SELECT id, source_table, source_id, workspace_id, project_id,
	       document_type, content, content_hash,
	       embedding::text AS embedding_text, metadata,
	       created_at, updated_at
	FROM embedding_documents
	WHERE source_table = $1 AND source_id = $2 AND workspace_id = $3`

	err := r.db.GetContext(ctx, &row, query, ref.SourceTable, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Ref: ref}
		}
		return nil, &StorageError{Op: "get", Err: err}
	}

	embedding, err := parseVector(row.EmbeddingText)
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}

	doc := &models.EmbeddingDocument{
		ID:           row.ID,
		SourceTable:  models.SourceTable(row.SourceTable),
		SourceID:     row.SourceID,
		WorkspaceID:  row.WorkspaceID,
		ProjectID:    row.ProjectID,
		DocumentType: row.DocumentType,
		Content:      row.Content,
		ContentHash:  row.ContentHash,
		Embedding:    embedding,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &doc.Metadata); err != nil {
			return nil, &StorageError{Op: "get", Err: fmt.Errorf("failed to unmarshal metadata: %w", err)}
		}
	}
	return doc, nil
}

type searchRow struct {
	ID           string    `db:"id"`
	SourceTable  string    `db:"source_table"`
	SourceID     int64     `db:"source_id"`
	WorkspaceID  string    `db:"workspace_id"`
	ProjectID    *int64    `db:"project_id"`
	DocumentType string    `db:"document_type"`
	Content      string    `db:"content"`
	Metadata     []byte    `db:"metadata"`
	UpdatedAt    time.Time `db:"updated_at"`
	Similarity   float64   `db:"similarity"`
}

// SemanticSearch returns documents whose cosine similarity to the query
// vector meets the threshold, most similar first. Zero Limit/Threshold in
// opts fall back to the configured defaults; Limit is capped.
func (r *Repository) SemanticSearch(ctx context.Context, embedding []float32, opts models.SearchOptions) ([]models.SearchResult, error) {
	if len(embedding) != r.dims {
		return nil, &StorageError{
			Op:  "search",
			Err: fmt.Errorf("query embedding has %d dimensions, store expects %d", len(embedding), r.dims),
		}
	}
	if opts.WorkspaceID == "" {
		return nil, &StorageError{Op: "search", Err: errors.New("workspace id is required")}
	}

	limit, threshold := r.resolveSearchBounds(opts)
	query, args := buildSearchQuery(embedding, opts, threshold, limit)

	var rows []searchRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &StorageError{Op: "search", Err: err}
	}

	results := make([]models.SearchResult, 0, len(rows))
	for _, row := range rows {
		result := models.SearchResult{
			ID:           row.ID,
			SourceTable:  models.SourceTable(row.SourceTable),
			SourceID:     row.SourceID,
			WorkspaceID:  row.WorkspaceID,
			ProjectID:    row.ProjectID,
			DocumentType: row.DocumentType,
			Content:      row.Content,
			Similarity:   row.Similarity,
			UpdatedAt:    row.UpdatedAt,
		}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &result.Metadata); err != nil {
				return nil, &StorageError{Op: "search", Err: fmt.Errorf("failed to unmarshal metadata: %w", err)}
			}
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *Repository) resolveSearchBounds(opts models.SearchOptions) (int, float64) {
	limit := opts.Limit
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if limit > r.maxLimit {
		limit = r.maxLimit
	}

	threshold := opts.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = r.defaultThreshold
	}
	return limit, threshold
}

// buildSearchQuery assembles the filtered similarity query with positional
// args; $1 is always the query vector.
func buildSearchQuery(embedding []float32, opts models.SearchOptions, threshold float64, limit int) (string, []interface{}) {
	var b strings.Builder
	args := []interface{}{formatVector(embedding), opts.WorkspaceID}

	b.WriteString(`
	SELECT id, source_table, source_id, workspace_id, project_id,
	       document_type, content, metadata, updated_at,
	       (1 - (embedding <=> $1::vector))::float AS similarity
	FROM embedding_documents
	WHERE workspace_id = $2`)

	if opts.ProjectID != nil {
		args = append(args, *opts.ProjectID)
		fmt.Fprintf(&b, " AND project_id = $%d", len(args))
	}
	if opts.SourceTable != "" {
		args = append(args, opts.SourceTable)
		fmt.Fprintf(&b, " AND source_table = $%d", len(args))
	}
	if opts.DocumentType != "" {
		args = append(args, opts.DocumentType)
		fmt.Fprintf(&b, " AND document_type = $%d", len(args))
	}
	if opts.ExcludeRef != nil {
		args = append(args, string(opts.ExcludeRef.SourceTable), opts.ExcludeRef.SourceID)
		fmt.Fprintf(&b, " AND NOT (source_table = $%d AND source_id = $%d)", len(args)-1, len(args))
	}

	args = append(args, threshold)
	fmt.Fprintf(&b, " AND (1 - (embedding <=> $1::vector))::float >= $%d", len(args))

	args = append(args, limit)
	fmt.Fprintf(&b, " ORDER BY similarity DESC LIMIT $%d", len(args))

	return b.String(), args
}

// BulkDeleteBySource removes every document for a source table in a
// workspace and returns how many rows went away.
func (r *Repository) BulkDeleteBySource(ctx context.Context, sourceTable, workspaceID string) (int64, error) {
	query := `
	DELETE FROM embedding_documents
	WHERE source_table = $1 AND workspace_id = $2`

	result, err := r.db.ExecContext(ctx, query, sourceTable, workspaceID)
	if err != nil {
		return 0, &StorageError{Op: "bulk_delete", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "bulk_delete", Err: err}
	}

	r.logger.Info("bulk deleted embedding documents", map[string]interface{}{
		"source_table": sourceTable,
		"workspace_id": workspaceID,
		"deleted":      affected,
	})
	return affected, nil
}

// Stats summarizes stored documents for a workspace; an empty workspace ID
// covers the whole store.
func (r *Repository) Stats(ctx context.Context, workspaceID string) (*models.StoreStats, error) {
	where := ""
	var args []interface{}
	if workspaceID != "" {
		where = " WHERE workspace_id = $1"
		args = append(args, workspaceID)
	}

	stats := &models.StoreStats{
		BySourceTable:  make(map[string]int64),
		ByDocumentType: make(map[string]int64),
	}

	if err := r.db.GetContext(ctx, &stats.TotalDocuments,
		"SELECT COUNT(*) FROM embedding_documents"+where, args...); err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}

	type countRow struct {
		Key   string `db:"key"`
		Count int64  `db:"count"`
	}

	var bySource []countRow
	if err := r.db.SelectContext(ctx, &bySource,
		"SELECT source_table AS key, COUNT(*) AS count FROM embedding_documents"+where+" GROUP BY source_table", args...); err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}
	for _, row := range bySource {
		stats.BySourceTable[row.Key] = row.Count
	}

	var byType []countRow
	if err := r.db.SelectContext(ctx, &byType,
		"SELECT document_type AS key, COUNT(*) AS count FROM embedding_documents"+where+" GROUP BY document_type", args...); err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}
	for _, row := range byType {
		stats.ByDocumentType[row.Key] = row.Count
	}

	var last sql.NullTime
	if err := r.db.GetContext(ctx, &last,
		"SELECT MAX(updated_at) FROM embedding_documents"+where, args...); err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}
	if last.Valid {
		lastUpdated := last.Time
		stats.LastUpdated = &lastUpdated
	}

	return stats, nil
}
