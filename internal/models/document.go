package models

import "time"

// EmbeddingDocument is one row of the embedding_documents table. A document
// is uniquely keyed by (SourceTable, SourceID, WorkspaceID); upserts replace
// content and vector in place.
type EmbeddingDocument struct {
	ID           string                 `db:"id" json:"id"`
	SourceTable  SourceTable            `db:"source_table" json:"source_table"`
	SourceID     int64                  `db:"source_id" json:"source_id"`
	WorkspaceID  string                 `db:"workspace_id" json:"workspace_id"`
	ProjectID    *int64                 `db:"project_id" json:"project_id,omitempty"`
	DocumentType string                 `db:"document_type" json:"document_type"`
	Content      string                 `db:"content" json:"content"`
	ContentHash  string                 `db:"content_hash" json:"content_hash"`
	Embedding    []float32              `db:"-" json:"-"`
	Metadata     map[string]interface{} `db:"-" json:"metadata,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time              `db:"updated_at" json:"updated_at"`
}

// Ref returns the source triple of the document.
func (d *EmbeddingDocument) Ref() EntityRef {
	return EntityRef{SourceTable: d.SourceTable, SourceID: d.SourceID, WorkspaceID: d.WorkspaceID}
}

// SearchOptions narrows a semantic search. WorkspaceID is mandatory; the
// remaining filters are conjunctive and optional. A zero Limit or Threshold
// falls back to the store's configured defaults.
type SearchOptions struct {
	WorkspaceID  string  `json:"workspace_id"`
	ProjectID    *int64  `json:"project_id,omitempty"`
	SourceTable  string  `json:"source_table,omitempty"`
	DocumentType string  `json:"document_type,omitempty"`
	Limit        int     `json:"limit"`
	Threshold    float64 `json:"threshold"`
	// ExcludeRef drops one document from the results, used by
	// similar-entity search to hide the reference itself.
	ExcludeRef *EntityRef `json:"-"`
}

// SearchResult is a matched document with its cosine similarity in [0,1],
// where 1 means identical direction.
type SearchResult struct {
	ID           string                 `db:"id" json:"id"`
	SourceTable  SourceTable            `db:"source_table" json:"source_table"`
	SourceID     int64                  `db:"source_id" json:"source_id"`
	WorkspaceID  string                 `db:"workspace_id" json:"workspace_id"`
	ProjectID    *int64                 `db:"project_id" json:"project_id,omitempty"`
	DocumentType string                 `db:"document_type" json:"document_type"`
	Content      string                 `db:"content" json:"content"`
	Similarity   float64                `db:"similarity" json:"similarity"`
	Metadata     map[string]interface{} `db:"-" json:"metadata,omitempty"`
	UpdatedAt    time.Time              `db:"updated_at" json:"updated_at"`
}

// StoreStats summarizes the vector store contents for a workspace, or for
// the whole deployment when no workspace is given.
type StoreStats struct {
	TotalDocuments int64            `json:"total_documents"`
	BySourceTable  map[string]int64 `json:"by_source_table"`
	ByDocumentType map[string]int64 `json:"by_document_type"`
	LastUpdated    *time.Time       `json:"last_updated,omitempty"`
}
