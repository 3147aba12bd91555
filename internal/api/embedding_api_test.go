package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leozerbib/gile-back-sub001/internal/embedding"
	"github.com/Leozerbib/gile-back-sub001/internal/resilience"
)

func TestGenerateEmbedding(t *testing.T) {
	tg := newTestGateway(t, nil)

	w := tg.postJSON(t, "/api/v1/embeddings", map[string]interface{}{
		"text":         "some ticket text",
		"entity_type":  "tickets",
		"entity_id":    42,
		"workspace_id": "ws-1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.EqualValues(t, 3, resp["dimensions"])
	assert.Equal(t, "fake", resp["provider"])
	assert.Len(t, resp["embedding"], 3)
}

func TestGenerateEmbeddingMissingText(t *testing.T) {
	tg := newTestGateway(t, nil)

	w := tg.postJSON(t, "/api/v1/embeddings", map[string]interface{}{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateEmbeddingBlankText(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.embedder.err = embedding.ErrEmptyText

	w := tg.postJSON(t, "/api/v1/embeddings", map[string]interface{}{"text": "   "})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateEmbeddingCircuitOpen(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.embedder.err = &resilience.CircuitOpenError{Key: "embedding:openai", RetryAfter: 12 * time.Second}

	w := tg.postJSON(t, "/api/v1/embeddings", map[string]interface{}{"text": "hello"})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "12", w.Header().Get("Retry-After"))
}

func TestGenerateEmbeddingTimeout(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.embedder.err = &resilience.TimeoutError{Op: "embedding.generate", Limit: 30 * time.Second}

	w := tg.postJSON(t, "/api/v1/embeddings", map[string]interface{}{"text": "hello"})

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestGenerateEmbeddingProviderFailure(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.embedder.err = errors.New("upstream 500")

	w := tg.postJSON(t, "/api/v1/embeddings", map[string]interface{}{"text": "hello"})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeBody(t, w)
	assert.Contains(t, resp["error"], "upstream 500")
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "2", retryAfterSeconds(1500*time.Millisecond))
	assert.Equal(t, "12", retryAfterSeconds(12*time.Second))
	assert.Equal(t, "1", retryAfterSeconds(0))
	assert.Equal(t, "1", retryAfterSeconds(200*time.Millisecond))
}
