package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leozerbib/gile-back-sub001/internal/models"
	"github.com/Leozerbib/gile-back-sub001/internal/vectorstore"
)

func TestSearchDocuments(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.store.results = []models.SearchResult{
		{SourceTable: models.TableTickets, SourceID: 1, WorkspaceID: "ws-1", Similarity: 0.91},
		{SourceTable: models.TableEpics, SourceID: 2, WorkspaceID: "ws-1", Similarity: 0.84},
	}

	w := tg.postJSON(t, "/api/v1/search", map[string]interface{}{
		"query":        "login timeout",
		"workspace_id": "ws-1",
		"source_table": "tickets",
		"limit":        5,
		"threshold":    0.8,
	})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, true, resp["success"])
	assert.EqualValues(t, 2, resp["count"])

	assert.Equal(t, []string{"login timeout"}, tg.embedder.texts)
	assert.Equal(t, tg.embedder.vector, tg.store.lastVector)
	assert.Equal(t, "ws-1", tg.store.lastOpts.WorkspaceID)
	assert.Equal(t, "tickets", tg.store.lastOpts.SourceTable)
	assert.Equal(t, 5, tg.store.lastOpts.Limit)
	assert.InDelta(t, 0.8, tg.store.lastOpts.Threshold, 1e-9)
}

func TestSearchRejectsUnknownSourceTable(t *testing.T) {
	tg := newTestGateway(t, nil)

	w := tg.postJSON(t, "/api/v1/search", map[string]interface{}{
		"query":        "anything",
		"workspace_id": "ws-1",
		"source_table": "users",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, tg.embedder.texts)
}

func TestSearchDegradesWhenEmbeddingFails(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.embedder.err = errors.New("provider down")

	w := tg.postJSON(t, "/api/v1/search", map[string]interface{}{
		"query":        "login timeout",
		"workspace_id": "ws-1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, true, resp["success"])
	assert.EqualValues(t, 0, resp["count"])
	assert.Empty(t, resp["results"])
}

func TestSearchDegradesWhenStoreFails(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.store.searchErr = errors.New("connection refused")

	w := tg.postJSON(t, "/api/v1/search", map[string]interface{}{
		"query":        "login timeout",
		"workspace_id": "ws-1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, true, resp["success"])
	assert.EqualValues(t, 0, resp["count"])
}

func TestSearchSimilar(t *testing.T) {
	tg := newTestGateway(t, nil)
	stored := []float32{0.5, 0.5, 0.5}
	tg.store.doc = &models.EmbeddingDocument{
		SourceTable: models.TableTickets,
		SourceID:    42,
		WorkspaceID: "ws-1",
		Embedding:   stored,
	}
	tg.store.results = []models.SearchResult{
		{SourceTable: models.TableTickets, SourceID: 43, WorkspaceID: "ws-1", Similarity: 0.88},
	}

	w := tg.postJSON(t, "/api/v1/search/similar", map[string]interface{}{
		"source_table": "tickets",
		"source_id":    42,
		"workspace_id": "ws-1",
		"limit":        3,
	})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.EqualValues(t, 1, resp["count"])

	// Searches by the stored vector, never re-embedding.
	assert.Empty(t, tg.embedder.texts)
	assert.Equal(t, stored, tg.store.lastVector)
	require.NotNil(t, tg.store.lastOpts.ExcludeRef)
	assert.Equal(t, models.EntityRef{SourceTable: models.TableTickets, SourceID: 42, WorkspaceID: "ws-1"}, *tg.store.lastOpts.ExcludeRef)
}

func TestSearchSimilarMissingReference(t *testing.T) {
	tg := newTestGateway(t, nil)
	ref := models.EntityRef{SourceTable: models.TableTickets, SourceID: 42, WorkspaceID: "ws-1"}
	tg.store.getErr = &vectorstore.NotFoundError{Ref: ref}

	w := tg.postJSON(t, "/api/v1/search/similar", map[string]interface{}{
		"source_table": "tickets",
		"source_id":    42,
		"workspace_id": "ws-1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, true, resp["success"])
	assert.EqualValues(t, 0, resp["count"])
}

func TestSearchSimilarDegradesWhenLookupFails(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.store.getErr = errors.New("connection refused")

	w := tg.postJSON(t, "/api/v1/search/similar", map[string]interface{}{
		"source_table": "tickets",
		"source_id":    42,
		"workspace_id": "ws-1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.EqualValues(t, 0, resp["count"])
}
