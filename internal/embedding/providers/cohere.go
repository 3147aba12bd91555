package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultCohereEndpoint = "https://api.cohere.com/v2"

// cohereModels maps the served models to their vector dimensions.
var cohereModels = map[string]int{
	"embed-english-v3.0":      1024,
	"embed-multilingual-v3.0": 1024,
}

// CohereProvider generates embeddings through the Cohere v2 embed API.
type CohereProvider struct {
	model      string
	dimensions int
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// cohereRequest represents the request structure for the Cohere API.
type cohereRequest struct {
	Model          string   `json:"model"`
	Texts          []string `json:"texts"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
}

// cohereResponse represents the response from the Cohere API.
type cohereResponse struct {
	ID         string `json:"id"`
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
	Texts []string `json:"texts"`
}

// cohereErrorResponse represents an error response from Cohere.
type cohereErrorResponse struct {
	Message string `json:"message"`
}

// NewCohereProvider creates a new Cohere provider.
func NewCohereProvider(opts Options) (*CohereProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("cohere API key is required")
	}
	if opts.Model == "" {
		opts.Model = "embed-english-v3.0"
	}
	dims, ok := cohereModels[opts.Model]
	if !ok {
		return nil, fmt.Errorf("cohere does not serve model %q", opts.Model)
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultCohereEndpoint
	}

	return &CohereProvider{
		model:      opts.Model,
		dimensions: dims,
		apiKey:     opts.APIKey,
		endpoint:   opts.Endpoint,
		httpClient: &http.Client{Timeout: opts.RequestTimeout},
	}, nil
}

func (p *CohereProvider) Name() string    { return "cohere" }
func (p *CohereProvider) Model() string   { return p.model }
func (p *CohereProvider) Dimensions() int { return p.dimensions }

// GenerateEmbedding generates an embedding for the given text.
func (p *CohereProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.doRequest(ctx, text)
	if err != nil {
		return nil, err
	}

	embedding := resp.Embeddings.Float[0]
	if len(embedding) != p.dimensions {
		return nil, &ProviderError{
			Provider: "cohere",
			Code:     "DIMENSION_MISMATCH",
			Message:  fmt.Sprintf("model %s returned %d dimensions, expected %d", p.model, len(embedding), p.dimensions),
		}
	}
	return embedding, nil
}

// HealthCheck verifies the API is reachable with the configured key.
func (p *CohereProvider) HealthCheck(ctx context.Context) error {
	_, err := p.doRequest(ctx, "health check")
	return err
}

func (p *CohereProvider) doRequest(ctx context.Context, text string) (*cohereResponse, error) {
	reqBody := cohereRequest{
		Model:          p.model,
		Texts:          []string{text},
		InputType:      "search_document",
		EmbeddingTypes: []string{"float"},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint+"/embed", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError("cohere", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp cohereErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
			return nil, &ProviderError{
				Provider:    "cohere",
				Code:        "UNKNOWN_ERROR",
				Message:     string(body),
				StatusCode:  resp.StatusCode,
				IsRetryable: retryableStatus(resp.StatusCode),
			}
		}

		return nil, &ProviderError{
			Provider:    "cohere",
			Code:        http.StatusText(resp.StatusCode),
			Message:     errResp.Message,
			StatusCode:  resp.StatusCode,
			RetryAfter:  parseRetryAfter(resp.Header.Get("Retry-After")),
			IsRetryable: retryableStatus(resp.StatusCode),
		}
	}

	var cohereResp cohereResponse
	if err := json.Unmarshal(body, &cohereResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(cohereResp.Embeddings.Float) == 0 {
		return nil, &ProviderError{
			Provider: "cohere",
			Code:     "EMPTY_RESPONSE",
			Message:  "no embeddings in response",
		}
	}

	return &cohereResp, nil
}
