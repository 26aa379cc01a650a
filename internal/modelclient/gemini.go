// File: internal/modelclient/gemini.go
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

// GeminiClient implements schemas.ModelClient against the Gemini REST API.
type GeminiClient struct {
	role       schemas.Role
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    uint64
	logger     *zap.Logger
	config     config.ModelConfig
}

// -- Gemini API request/response structures (internal to this file) --

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig   `json:"generationConfig"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiClient initializes the client for the given role.
func NewGeminiClient(role schemas.Role, cfg config.ModelConfig, retries uint64, limiter *rate.Limiter, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	return &GeminiClient{
		role:     role,
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		config:   cfg,
		retries:  retries,
		limiter:  limiter,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("model_client.gemini"),
	}, nil
}

// Capabilities reports the role and that this client grounds coordinates
// itself; planners route through a different system prompt and never emit
// coordinate decisions.
func (c *GeminiClient) Capabilities() schemas.Capabilities {
	return schemas.Capabilities{
		Role:             c.role,
		EmitsCoordinates: c.role != schemas.RolePlanner,
	}
}

// Infer sends the screenshot and task state to the model and normalizes the
// response into a Decision. Transient API failures are retried with
// exponential backoff; exhaustion surfaces as ErrInferenceUnavailable.
func (c *GeminiClient) Infer(ctx context.Context, req schemas.InferRequest) (*schemas.InferResult, error) {
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
		httpReq.Header.Set("x-goog-api-key", c.apiKey)

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

		var responsePayload geminiResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decoding response payload: %v", schemas.ErrInferenceMalformed, err))
		}

		if len(responsePayload.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: no candidates returned", schemas.ErrInferenceMalformed))
		}

		candidate := responsePayload.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
				return backoff.Permanent(fmt.Errorf("%w: request blocked (reason: %s)",
					schemas.ErrInferenceMalformed, candidate.FinishReason))
			}
			return fmt.Errorf("%w: empty content parts (reason: %s)",
				schemas.ErrInferenceUnavailable, candidate.FinishReason)
		}

		c.logger.Info("Inference complete (Gemini)",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", responsePayload.UsageMetadata.PromptTokenCount),
			zap.Int("completion_tokens", responsePayload.UsageMetadata.CandidatesTokenCount),
			zap.Int("total_tokens", responsePayload.UsageMetadata.TotalTokenCount),
		)

		raw = candidate.Content.Parts[0].Text
		tokens = responsePayload.UsageMetadata.TotalTokenCount
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

func (c *GeminiClient) buildRequestPayload(req schemas.InferRequest) geminiRequestPayload {
	parts := []geminiPart{
		{
			InlineData: &geminiInlineData{
				MimeType: "image/png",
				Data:     base64.StdEncoding.EncodeToString(req.ImagePNG),
			},
		},
		{Text: renderUserPrompt(req)},
	}

	return geminiRequestPayload{
		Contents: []geminiContent{
			{Role: "user", Parts: parts},
		},
		SystemInstruction: &geminiSystemInstruction{
			Parts: []geminiPart{{Text: systemPromptFor(c.role)}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     float64(c.config.Temperature),
			MaxOutputTokens: c.config.MaxTokens,
		},
	}
}

func (c *GeminiClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("Gemini API returned error status",
		zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("%w: status %d, body: %s",
		schemas.ErrInferenceUnavailable, statusCode, truncate(string(body), 300))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err // Transient errors, retry.
	default:
		return backoff.Permanent(err)
	}
}
