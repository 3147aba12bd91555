package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIProvider(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		provider, err := NewOpenAIProvider(Options{APIKey: "test-api-key"})
		require.NoError(t, err)
		assert.Equal(t, "openai", provider.Name())
		assert.Equal(t, "text-embedding-3-small", provider.Model())
		assert.Equal(t, 1536, provider.Dimensions())
		assert.Equal(t, "https://api.openai.com/v1", provider.endpoint)
	})

	t.Run("missing API key", func(t *testing.T) {
		_, err := NewOpenAIProvider(Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key is required")
	})

	t.Run("large model dimensions", func(t *testing.T) {
		provider, err := NewOpenAIProvider(Options{APIKey: "k", Model: "text-embedding-3-large"})
		require.NoError(t, err)
		assert.Equal(t, 3072, provider.Dimensions())
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := NewOpenAIProvider(Options{APIKey: "k", Model: "text-embedding-9"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not serve model")
	})
}

func TestOpenAIProvider_GenerateEmbedding(t *testing.T) {
	ctx := context.Background()

	t.Run("successful generation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "POST", r.Method)
			assert.Equal(t, "/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

			var req openAIRequest
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, "ticket content", req.Input)
			assert.Equal(t, "text-embedding-3-small", req.Model)

			w.Header().Set("Content-Type", "application/json")
			writeOpenAIEmbedding(w, 1536)
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(Options{APIKey: "test-api-key", Endpoint: server.URL})
		require.NoError(t, err)

		embedding, err := provider.GenerateEmbedding(ctx, "ticket content")
		require.NoError(t, err)
		assert.Len(t, embedding, 1536)
	})

	t.Run("auth error is permanent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid API key","type":"invalid_request_error","code":"invalid_api_key"}}`))
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(Options{APIKey: "invalid-key", Endpoint: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, "test")
		require.Error(t, err)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "openai", provErr.Provider)
		assert.Equal(t, "invalid_api_key", provErr.Code)
		assert.Equal(t, 401, provErr.StatusCode)
		assert.False(t, provErr.IsRetryable)
		assert.False(t, Retryable(err))
	})

	t.Run("rate limit is retryable with retry-after", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"Rate limit exceeded","type":"rate_limit_error","code":"rate_limit_exceeded"}}`))
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(Options{APIKey: "test-api-key", Endpoint: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, "test")
		require.Error(t, err)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, 429, provErr.StatusCode)
		assert.True(t, provErr.IsRetryable)
		require.NotNil(t, provErr.RetryAfter)
		assert.Equal(t, float64(7), provErr.RetryAfter.Seconds())
		assert.True(t, Retryable(err))
	})

	t.Run("server error is retryable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("bad gateway"))
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(Options{APIKey: "test-api-key", Endpoint: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, "test")
		require.Error(t, err)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "UNKNOWN_ERROR", provErr.Code)
		assert.Equal(t, 502, provErr.StatusCode)
		assert.True(t, provErr.IsRetryable)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			writeOpenAIEmbedding(w, 8)
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(Options{APIKey: "test-api-key", Endpoint: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, "test")
		require.Error(t, err)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "DIMENSION_MISMATCH", provErr.Code)
		assert.False(t, provErr.IsRetryable)
	})

	t.Run("empty data", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"object":"list","data":[],"model":"text-embedding-3-small"}`))
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(Options{APIKey: "test-api-key", Endpoint: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, "test")
		require.Error(t, err)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "EMPTY_RESPONSE", provErr.Code)
	})
}

func TestOpenAIProvider_HealthCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			writeOpenAIEmbedding(w, 1536)
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(Options{APIKey: "test-api-key", Endpoint: server.URL})
		require.NoError(t, err)
		assert.NoError(t, provider.HealthCheck(ctx))
	})

	t.Run("unhealthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(Options{APIKey: "test-api-key", Endpoint: server.URL})
		require.NoError(t, err)
		assert.Error(t, provider.HealthCheck(ctx))
	})
}

func writeOpenAIEmbedding(w http.ResponseWriter, dims int) {
	resp := map[string]interface{}{
		"object": "list",
		"data": []map[string]interface{}{
			{"object": "embedding", "embedding": generateTestEmbedding(dims), "index": 0},
		},
		"model": "text-embedding-3-small",
		"usage": map[string]int{"prompt_tokens": 3, "total_tokens": 3},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func generateTestEmbedding(dimensions int) []float32 {
	embedding := make([]float32, dimensions)
	for i := range embedding {
		embedding[i] = float32(i) / float32(dimensions)
	}
	return embedding
}
