package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultVoyageEndpoint = "https://api.voyageai.com/v1"

// voyageModels maps the served models to their vector dimensions.
var voyageModels = map[string]int{
	"voyage-2":       1024,
	"voyage-large-2": 1536,
}

// VoyageProvider generates embeddings through the Voyage AI embeddings API.
type VoyageProvider struct {
	model      string
	dimensions int
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// voyageRequest represents the request structure for the Voyage API.
type voyageRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

// voyageResponse represents the response from the Voyage API.
type voyageResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// voyageErrorResponse represents an error response from Voyage.
type voyageErrorResponse struct {
	Detail string `json:"detail"`
}

// NewVoyageProvider creates a new Voyage AI provider.
func NewVoyageProvider(opts Options) (*VoyageProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("voyage API key is required")
	}
	if opts.Model == "" {
		opts.Model = "voyage-2"
	}
	dims, ok := voyageModels[opts.Model]
	if !ok {
		return nil, fmt.Errorf("voyage does not serve model %q", opts.Model)
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultVoyageEndpoint
	}

	return &VoyageProvider{
		model:      opts.Model,
		dimensions: dims,
		apiKey:     opts.APIKey,
		endpoint:   opts.Endpoint,
		httpClient: &http.Client{Timeout: opts.RequestTimeout},
	}, nil
}

func (p *VoyageProvider) Name() string    { return "voyage" }
func (p *VoyageProvider) Model() string   { return p.model }
func (p *VoyageProvider) Dimensions() int { return p.dimensions }

// GenerateEmbedding generates an embedding for the given text.
func (p *VoyageProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.doRequest(ctx, text)
	if err != nil {
		return nil, err
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) != p.dimensions {
		return nil, &ProviderError{
			Provider: "voyage",
			Code:     "DIMENSION_MISMATCH",
			Message:  fmt.Sprintf("model %s returned %d dimensions, expected %d", p.model, len(embedding), p.dimensions),
		}
	}
	return embedding, nil
}

// HealthCheck verifies the API is reachable with the configured key.
func (p *VoyageProvider) HealthCheck(ctx context.Context) error {
	_, err := p.doRequest(ctx, "health check")
	return err
}

func (p *VoyageProvider) doRequest(ctx context.Context, text string) (*voyageResponse, error) {
	reqBody := voyageRequest{
		Input:     []string{text},
		Model:     p.model,
		InputType: "document",
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError("voyage", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp voyageErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Detail == "" {
			return nil, &ProviderError{
				Provider:    "voyage",
				Code:        "UNKNOWN_ERROR",
				Message:     string(body),
				StatusCode:  resp.StatusCode,
				IsRetryable: retryableStatus(resp.StatusCode),
			}
		}

		return nil, &ProviderError{
			Provider:    "voyage",
			Code:        http.StatusText(resp.StatusCode),
			Message:     errResp.Detail,
			StatusCode:  resp.StatusCode,
			RetryAfter:  parseRetryAfter(resp.Header.Get("Retry-After")),
			IsRetryable: retryableStatus(resp.StatusCode),
		}
	}

	var voyageResp voyageResponse
	if err := json.Unmarshal(body, &voyageResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(voyageResp.Data) == 0 {
		return nil, &ProviderError{
			Provider: "voyage",
			Code:     "EMPTY_RESPONSE",
			Message:  "no embedding data in response",
		}
	}

	return &voyageResp, nil
}
