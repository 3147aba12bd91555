package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDispatch(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		p, err := New("openai", Options{APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, "openai", p.Name())
	})

	t.Run("google", func(t *testing.T) {
		p, err := New("google", Options{APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, "google", p.Name())
		assert.Equal(t, 768, p.Dimensions())
	})

	t.Run("voyage", func(t *testing.T) {
		p, err := New("voyage", Options{APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, "voyage", p.Name())
		assert.Equal(t, 1024, p.Dimensions())
	})

	t.Run("cohere", func(t *testing.T) {
		p, err := New("cohere", Options{APIKey: "k", Model: "embed-multilingual-v3.0"})
		require.NoError(t, err)
		assert.Equal(t, "cohere", p.Name())
		assert.Equal(t, "embed-multilingual-v3.0", p.Model())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New("anthropic", Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown embedding provider")
	})
}

func TestGoogleProvider_GenerateEmbedding(t *testing.T) {
	ctx := context.Background()

	t.Run("successful generation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "POST", r.Method)
			assert.Equal(t, "/models/text-embedding-004:embedContent", r.URL.Path)
			assert.Equal(t, "test-api-key", r.Header.Get("x-goog-api-key"))

			var req googleRequest
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, "models/text-embedding-004", req.Model)
			require.Len(t, req.Content.Parts, 1)
			assert.Equal(t, "epic summary", req.Content.Parts[0].Text)

			resp := map[string]interface{}{
				"embedding": map[string]interface{}{"values": generateTestEmbedding(768)},
			}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		provider, err := NewGoogleProvider(Options{APIKey: "test-api-key", Endpoint: server.URL})
		require.NoError(t, err)

		embedding, err := provider.GenerateEmbedding(ctx, "epic summary")
		require.NoError(t, err)
		assert.Len(t, embedding, 768)
	})

	t.Run("quota error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
		}))
		defer server.Close()

		provider, err := NewGoogleProvider(Options{APIKey: "k", Endpoint: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, "test")
		require.Error(t, err)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "google", provErr.Provider)
		assert.Equal(t, "RESOURCE_EXHAUSTED", provErr.Code)
		assert.True(t, provErr.IsRetryable)
	})

	t.Run("invalid key is permanent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
		}))
		defer server.Close()

		provider, err := NewGoogleProvider(Options{APIKey: "bad", Endpoint: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, "test")
		require.Error(t, err)
		assert.False(t, Retryable(err))
	})
}

func TestVoyageProvider_GenerateEmbedding(t *testing.T) {
	ctx := context.Background()

	t.Run("successful generation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

			var req voyageRequest
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &req))
			require.Len(t, req.Input, 1)
			assert.Equal(t, "sprint goal", req.Input[0])
			assert.Equal(t, "voyage-2", req.Model)
			assert.Equal(t, "document", req.InputType)

			resp := map[string]interface{}{
				"object": "list",
				"data": []map[string]interface{}{
					{"object": "embedding", "embedding": generateTestEmbedding(1024), "index": 0},
				},
				"model": "voyage-2",
				"usage": map[string]int{"total_tokens": 4},
			}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		provider, err := NewVoyageProvider(Options{APIKey: "test-api-key", Endpoint: server.URL})
		require.NoError(t, err)

		embedding, err := provider.GenerateEmbedding(ctx, "sprint goal")
		require.NoError(t, err)
		assert.Len(t, embedding, 1024)
	})

	t.Run("detail error payload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Provided API key is invalid."}`))
		}))
		defer server.Close()

		provider, err := NewVoyageProvider(Options{APIKey: "bad", Endpoint: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, "test")
		require.Error(t, err)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "voyage", provErr.Provider)
		assert.Equal(t, "Provided API key is invalid.", provErr.Message)
		assert.False(t, provErr.IsRetryable)
	})
}

func TestCohereProvider_GenerateEmbedding(t *testing.T) {
	ctx := context.Background()

	t.Run("successful generation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embed", r.URL.Path)
			assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

			var req cohereRequest
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, "embed-english-v3.0", req.Model)
			require.Len(t, req.Texts, 1)
			assert.Equal(t, "task title", req.Texts[0])
			assert.Equal(t, "search_document", req.InputType)
			assert.Equal(t, []string{"float"}, req.EmbeddingTypes)

			resp := map[string]interface{}{
				"id": "emb-1",
				"embeddings": map[string]interface{}{
					"float": [][]float32{generateTestEmbedding(1024)},
				},
				"texts": req.Texts,
			}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		provider, err := NewCohereProvider(Options{APIKey: "test-api-key", Endpoint: server.URL})
		require.NoError(t, err)

		embedding, err := provider.GenerateEmbedding(ctx, "task title")
		require.NoError(t, err)
		assert.Len(t, embedding, 1024)
	})

	t.Run("message error payload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"service overloaded"}`))
		}))
		defer server.Close()

		provider, err := NewCohereProvider(Options{APIKey: "k", Endpoint: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, "test")
		require.Error(t, err)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "cohere", provErr.Provider)
		assert.Equal(t, 503, provErr.StatusCode)
		assert.True(t, provErr.IsRetryable)
	})
}

type fakeBedrockInvoker struct {
	output *bedrockruntime.InvokeModelOutput
	err    error
	gotID  string
	body   []byte
}

func (f *fakeBedrockInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if params.ModelId != nil {
		f.gotID = *params.ModelId
	}
	f.body = params.Body
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func TestBedrockProvider_GenerateEmbedding(t *testing.T) {
	ctx := context.Background()

	t.Run("titan v2 request shape", func(t *testing.T) {
		body, _ := json.Marshal(titanEmbeddingResponse{
			Embedding:           generateTestEmbedding(1024),
			InputTextTokenCount: 5,
		})
		fake := &fakeBedrockInvoker{output: &bedrockruntime.InvokeModelOutput{Body: body}}
		provider := &BedrockProvider{model: "amazon.titan-embed-text-v2:0", dimensions: 1024, client: fake}

		embedding, err := provider.GenerateEmbedding(ctx, "project overview")
		require.NoError(t, err)
		assert.Len(t, embedding, 1024)
		assert.Equal(t, "amazon.titan-embed-text-v2:0", fake.gotID)

		var req titanEmbeddingRequest
		require.NoError(t, json.Unmarshal(fake.body, &req))
		assert.Equal(t, "project overview", req.InputText)
		assert.Equal(t, 1024, req.Dimensions)
		assert.True(t, req.Normalize)
	})

	t.Run("throttling is retryable", func(t *testing.T) {
		fake := &fakeBedrockInvoker{err: errors.New("operation error Bedrock Runtime: InvokeModel, ThrottlingException: rate exceeded")}
		provider := &BedrockProvider{model: "amazon.titan-embed-text-v2:0", dimensions: 1024, client: fake}

		_, err := provider.GenerateEmbedding(ctx, "test")
		require.Error(t, err)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "bedrock", provErr.Provider)
		assert.Equal(t, "INVOCATION_ERROR", provErr.Code)
		assert.True(t, provErr.IsRetryable)
	})

	t.Run("access denied is permanent", func(t *testing.T) {
		fake := &fakeBedrockInvoker{err: errors.New("operation error Bedrock Runtime: InvokeModel, AccessDeniedException: not authorized")}
		provider := &BedrockProvider{model: "amazon.titan-embed-text-v2:0", dimensions: 1024, client: fake}

		_, err := provider.GenerateEmbedding(ctx, "test")
		require.Error(t, err)
		assert.False(t, Retryable(err))
	})
}

func TestRetryableClassification(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.False(t, Retryable(nil))
	})

	t.Run("context errors are permanent", func(t *testing.T) {
		assert.False(t, Retryable(context.Canceled))
		assert.False(t, Retryable(context.DeadlineExceeded))
	})

	t.Run("provider error carries its own classification", func(t *testing.T) {
		assert.True(t, Retryable(&ProviderError{Provider: "openai", StatusCode: 503, IsRetryable: true}))
		assert.False(t, Retryable(&ProviderError{Provider: "openai", StatusCode: 400}))
	})

	t.Run("unwrapped errors are transient", func(t *testing.T) {
		assert.True(t, Retryable(errors.New("connection reset by peer")))
	})

	t.Run("status table", func(t *testing.T) {
		for _, code := range []int{429, 500, 502, 503, 504} {
			assert.True(t, retryableStatus(code), "status %d", code)
		}
		for _, code := range []int{400, 401, 403, 404, 422} {
			assert.False(t, retryableStatus(code), "status %d", code)
		}
	})
}
