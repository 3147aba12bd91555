package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultGoogleEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// googleModels maps the served models to their vector dimensions.
var googleModels = map[string]int{
	"text-embedding-004": 768,
}

// GoogleProvider generates embeddings through the Gemini embedContent API.
type GoogleProvider struct {
	model      string
	dimensions int
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

// googleRequest represents an embedContent request.
type googleRequest struct {
	Model   string        `json:"model"`
	Content googleContent `json:"content"`
}

// googleResponse represents an embedContent response.
type googleResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// googleErrorResponse represents an error response from the Gemini API.
type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGoogleProvider creates a new Google provider.
func NewGoogleProvider(opts Options) (*GoogleProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-004"
	}
	dims, ok := googleModels[opts.Model]
	if !ok {
		return nil, fmt.Errorf("google does not serve model %q", opts.Model)
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultGoogleEndpoint
	}

	return &GoogleProvider{
		model:      opts.Model,
		dimensions: dims,
		apiKey:     opts.APIKey,
		endpoint:   opts.Endpoint,
		httpClient: &http.Client{Timeout: opts.RequestTimeout},
	}, nil
}

func (p *GoogleProvider) Name() string    { return "google" }
func (p *GoogleProvider) Model() string   { return p.model }
func (p *GoogleProvider) Dimensions() int { return p.dimensions }

// GenerateEmbedding generates an embedding for the given text.
func (p *GoogleProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.doRequest(ctx, text)
	if err != nil {
		return nil, err
	}

	values := resp.Embedding.Values
	if len(values) != p.dimensions {
		return nil, &ProviderError{
			Provider: "google",
			Code:     "DIMENSION_MISMATCH",
			Message:  fmt.Sprintf("model %s returned %d dimensions, expected %d", p.model, len(values), p.dimensions),
		}
	}
	return values, nil
}

// HealthCheck verifies the API is reachable with the configured key.
func (p *GoogleProvider) HealthCheck(ctx context.Context) error {
	_, err := p.doRequest(ctx, "health check")
	return err
}

func (p *GoogleProvider) doRequest(ctx context.Context, text string) (*googleResponse, error) {
	reqBody := googleRequest{
		Model:   "models/" + p.model,
		Content: googleContent{Parts: []googlePart{{Text: text}}},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent", p.endpoint, p.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError("google", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp googleErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
			return nil, &ProviderError{
				Provider:    "google",
				Code:        "UNKNOWN_ERROR",
				Message:     string(body),
				StatusCode:  resp.StatusCode,
				IsRetryable: retryableStatus(resp.StatusCode),
			}
		}

		return nil, &ProviderError{
			Provider:    "google",
			Code:        errResp.Error.Status,
			Message:     errResp.Error.Message,
			StatusCode:  resp.StatusCode,
			RetryAfter:  parseRetryAfter(resp.Header.Get("Retry-After")),
			IsRetryable: retryableStatus(resp.StatusCode),
		}
	}

	var googleResp googleResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(googleResp.Embedding.Values) == 0 {
		return nil, &ProviderError{
			Provider: "google",
			Code:     "EMPTY_RESPONSE",
			Message:  "no embedding values in response",
		}
	}

	return &googleResp, nil
}
