package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// bedrockModels maps the served models to their vector dimensions.
var bedrockModels = map[string]int{
	"amazon.titan-embed-text-v2:0": 1024,
	"amazon.titan-embed-text-v1":   1536,
}

// BedrockProvider generates embeddings through AWS Bedrock Titan models.
// Credentials come from the ambient AWS chain (env, shared config, IAM role).
type BedrockProvider struct {
	model      string
	dimensions int
	client     bedrockInvoker
}

// bedrockInvoker is the slice of the Bedrock runtime client the provider
// uses. Tests substitute it.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// titanEmbeddingRequest is the Titan model input. Dimensions and Normalize
// are only understood by v2.
type titanEmbeddingRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize,omitempty"`
}

type titanEmbeddingResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// NewBedrockProvider creates a new AWS Bedrock provider.
func NewBedrockProvider(opts Options) (*BedrockProvider, error) {
	if opts.Region == "" {
		return nil, fmt.Errorf("bedrock region is required")
	}
	if opts.Model == "" {
		opts.Model = "amazon.titan-embed-text-v2:0"
	}
	dims, ok := bedrockModels[opts.Model]
	if !ok {
		return nil, fmt.Errorf("bedrock does not serve model %q", opts.Model)
	}

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(opts.Region),
		config.WithHTTPClient(&http.Client{
			Timeout: opts.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		model:      opts.Model,
		dimensions: dims,
		client:     bedrockruntime.NewFromConfig(cfg),
	}, nil
}

func (p *BedrockProvider) Name() string    { return "bedrock" }
func (p *BedrockProvider) Model() string   { return p.model }
func (p *BedrockProvider) Dimensions() int { return p.dimensions }

// GenerateEmbedding generates an embedding for the given text.
func (p *BedrockProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	titanReq := titanEmbeddingRequest{InputText: text}
	if strings.Contains(p.model, "v2") {
		titanReq.Dimensions = p.dimensions
		titanReq.Normalize = true
	}

	requestBody, err := json.Marshal(titanReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.model),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, &ProviderError{
			Provider:    "bedrock",
			Code:        "INVOCATION_ERROR",
			Message:     err.Error(),
			IsRetryable: isRetryableBedrockError(err),
		}
	}

	var titanResp titanEmbeddingResponse
	if err := json.Unmarshal(resp.Body, &titanResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(titanResp.Embedding) != p.dimensions {
		return nil, &ProviderError{
			Provider: "bedrock",
			Code:     "DIMENSION_MISMATCH",
			Message:  fmt.Sprintf("model %s returned %d dimensions, expected %d", p.model, len(titanResp.Embedding), p.dimensions),
		}
	}
	return titanResp.Embedding, nil
}

// HealthCheck invokes the configured model with a minimal payload. Model
// level validation errors still prove connectivity and credentials, so only
// auth and network failures count.
func (p *BedrockProvider) HealthCheck(ctx context.Context) error {
	requestBody, err := json.Marshal(titanEmbeddingRequest{InputText: "health"})
	if err != nil {
		return fmt.Errorf("failed to marshal health check request: %w", err)
	}

	_, err = p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.model),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err == nil {
		return nil
	}

	errStr := err.Error()
	if strings.Contains(errStr, "AccessDeniedException") ||
		strings.Contains(errStr, "UnauthorizedClient") ||
		strings.Contains(errStr, "ExpiredToken") ||
		strings.Contains(errStr, "InvalidSignature") ||
		strings.Contains(errStr, "no valid credentials") {
		return fmt.Errorf("bedrock authentication failed: %s", errStr)
	}
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") {
		return fmt.Errorf("bedrock connectivity issue: %s", errStr)
	}
	return nil
}

func isRetryableBedrockError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	retryableErrors := []string{
		"ThrottlingException",
		"ServiceUnavailable",
		"TooManyRequests",
		"RequestTimeout",
		"ModelTimeoutException",
	}
	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}
