// File: internal/modelclient/openai.go
package modelclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Activer007/computer-use-ootb/api/schemas"
	"github.com/Activer007/computer-use-ootb/internal/config"
)

// OpenAIClient implements schemas.ModelClient against any OpenAI-compatible
// chat completions endpoint, which covers local grounding-model servers too.
type OpenAIClient struct {
	role       schemas.Role
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    uint64
	logger     *zap.Logger
	config     config.ModelConfig
}

// -- OpenAI chat completions structures (internal to this file) --

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type openAIRequestPayload struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponsePayload struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient initializes the client for the given role.
func NewOpenAIClient(role schemas.Role, cfg config.ModelConfig, retries uint64, limiter *rate.Limiter, logger *zap.Logger) (*OpenAIClient, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}

	return &OpenAIClient{
		role:     role,
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		config:   cfg,
		retries:  retries,
		limiter:  limiter,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("model_client.openai"),
	}, nil
}

func (c *OpenAIClient) Capabilities() schemas.Capabilities {
	return schemas.Capabilities{
		Role:             c.role,
		EmitsCoordinates: c.role != schemas.RolePlanner,
	}
}

// Infer sends the screenshot and task state to the model and normalizes the
// response into a Decision.
func (c *OpenAIClient) Infer(ctx context.Context, req schemas.InferRequest) (*schemas.InferResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", schemas.ErrInferenceUnavailable, err)
		}
	}

	payload := c.buildRequestPayload(req)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var (
		raw    string
		tokens int
	)

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during inference request, retrying...", zap.Error(err))
			return fmt.Errorf("%w: %v", schemas.ErrInferenceUnavailable, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: reading response body: %v", schemas.ErrInferenceUnavailable, err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload openAIResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decoding response payload: %v", schemas.ErrInferenceMalformed, err))
		}

		if len(responsePayload.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: no choices returned", schemas.ErrInferenceMalformed))
		}

		c.logger.Info("Inference complete (OpenAI-compatible)",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", responsePayload.Usage.PromptTokens),
			zap.Int("completion_tokens", responsePayload.Usage.CompletionTokens),
			zap.Int("total_tokens", responsePayload.Usage.TotalTokens),
		)

		raw = responsePayload.Choices[0].Message.Content
		tokens = responsePayload.Usage.TotalTokens
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)
	if err = backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	decision, err := ParseDecision(raw)
	if err != nil {
		return nil, err
	}

	return &schemas.InferResult{
		Decision:   decision,
		TokensUsed: tokens,
		Raw:        raw,
	}, nil
}

func (c *OpenAIClient) buildRequestPayload(req schemas.InferRequest) openAIRequestPayload {
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.ImagePNG)

	return openAIRequestPayload{
		Model: c.config.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPromptFor(c.role)},
			{
				Role: "user",
				Content: []openAIContentPart{
					{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURI}},
					{Type: "text", Text: renderUserPrompt(req)},
				},
			},
		},
		Temperature: float64(c.config.Temperature),
		MaxTokens:   c.config.MaxTokens,
	}
}

func (c *OpenAIClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("OpenAI-compatible API returned error status",
		zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("%w: status %d, body: %s",
		schemas.ErrInferenceUnavailable, statusCode, truncate(string(body), 300))

	switch {
	case statusCode == http.StatusTooManyRequests, statusCode >= http.StatusInternalServerError:
		return err // Transient errors, retry.
	default:
		return backoff.Permanent(err)
	}
}
