package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// openAIModels maps the served models to their vector dimensions.
var openAIModels = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIProvider generates embeddings through the OpenAI embeddings API.
type OpenAIProvider struct {
	model      string
	dimensions int
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// openAIRequest represents the request structure for the OpenAI API.
type openAIRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	EncodingFormat string `json:"encoding_format,omitempty"`
}

// openAIResponse represents the response from the OpenAI API.
type openAIResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// openAIErrorResponse represents an error response from OpenAI.
type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(opts Options) (*OpenAIProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}
	dims, ok := openAIModels[opts.Model]
	if !ok {
		return nil, fmt.Errorf("openai does not serve model %q", opts.Model)
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultOpenAIEndpoint
	}

	return &OpenAIProvider{
		model:      opts.Model,
		dimensions: dims,
		apiKey:     opts.APIKey,
		endpoint:   opts.Endpoint,
		httpClient: &http.Client{Timeout: opts.RequestTimeout},
	}, nil
}

func (p *OpenAIProvider) Name() string    { return "openai" }
func (p *OpenAIProvider) Model() string   { return p.model }
func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

// GenerateEmbedding generates an embedding for the given text.
func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.doRequest(ctx, openAIRequest{Input: text, Model: p.model})
	if err != nil {
		return nil, err
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) != p.dimensions {
		return nil, &ProviderError{
			Provider: "openai",
			Code:     "DIMENSION_MISMATCH",
			Message:  fmt.Sprintf("model %s returned %d dimensions, expected %d", p.model, len(embedding), p.dimensions),
		}
	}
	return embedding, nil
}

// HealthCheck verifies the API is reachable with the configured key.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	_, err := p.doRequest(ctx, openAIRequest{Input: "health check", Model: p.model})
	return err
}

func (p *OpenAIProvider) doRequest(ctx context.Context, reqBody openAIRequest) (*openAIResponse, error) {
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
		return nil, wrapTransportError("openai", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openAIErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
			return nil, &ProviderError{
				Provider:    "openai",
				Code:        "UNKNOWN_ERROR",
				Message:     string(body),
				StatusCode:  resp.StatusCode,
				IsRetryable: retryableStatus(resp.StatusCode),
			}
		}

		code := errResp.Error.Code
		if code == "" {
			code = errResp.Error.Type
		}
		return nil, &ProviderError{
			Provider:    "openai",
			Code:        code,
			Message:     errResp.Error.Message,
			StatusCode:  resp.StatusCode,
			RetryAfter:  parseRetryAfter(resp.Header.Get("Retry-After")),
			IsRetryable: retryableStatus(resp.StatusCode),
		}
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(openAIResp.Data) == 0 {
		return nil, &ProviderError{
			Provider: "openai",
			Code:     "EMPTY_RESPONSE",
			Message:  "no embedding data in response",
		}
	}

	return &openAIResp, nil
}
