// File: internal/modelclient/bridge_client.go
// Description: ModelClient that delegates inference to a remote bridge
// service over its JSON wire contract.
package modelclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Activer007/computer-use-ootb/api/schemas"
	"github.com/Activer007/computer-use-ootb/internal/config"
)

// BridgeClient forwards inference requests to a bridge instance, which owns
// the provider credentials and normalization. Decisions come back already
// canonical, so no grammar parsing happens on this side.
type BridgeClient struct {
	role       schemas.Role
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    uint64
	logger     *zap.Logger
}

// NewBridgeClient initializes the client. Endpoint is the bridge base URL,
// e.g. http://10.0.0.4:8765.
func NewBridgeClient(role schemas.Role, cfg config.ModelConfig, retries uint64, limiter *rate.Limiter, logger *zap.Logger) (*BridgeClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("bridge endpoint is required")
	}

	return &BridgeClient{
		role:     role,
		endpoint: strings.TrimRight(cfg.Endpoint, "/") + "/v1/infer",
		retries:  retries,
		limiter:  limiter,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("model_client.bridge"),
	}, nil
}

func (c *BridgeClient) Capabilities() schemas.Capabilities {
	return schemas.Capabilities{
		Role:             c.role,
		EmitsCoordinates: c.role != schemas.RolePlanner,
	}
}

// Infer relays the request over HTTP. Connectivity and 5xx failures are
// retried and surface as ErrInferenceUnavailable; a body that does not
// decode into the wire response is a malformed inference.
func (c *BridgeClient) Infer(ctx context.Context, req schemas.InferRequest) (*schemas.InferResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", schemas.ErrInferenceUnavailable, err)
		}
	}

	wireReq := schemas.WireInferRequest{
		Image:       base64.StdEncoding.EncodeToString(req.ImagePNG),
		Width:       req.ImageWidth,
		Height:      req.ImageHeight,
		Instruction: req.Instruction,
		History:     schemas.WireHistory(req.History),
		Role:        c.role,
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bridge request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var wireResp schemas.WireInferResponse

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.logger.Warn("Bridge unreachable, retrying...", zap.Error(err))
			return fmt.Errorf("%w: %v", schemas.ErrInferenceUnavailable, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: reading bridge response: %v", schemas.ErrInferenceUnavailable, err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		if err := json.Unmarshal(respBody, &wireResp); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decoding bridge response: %v", schemas.ErrInferenceMalformed, err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)
	if err = backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	decision := wireResp.ToDecision()
	if err := decision.Validate(); err != nil {
		return nil, err
	}

	return &schemas.InferResult{
		Decision:   decision,
		TokensUsed: wireResp.TokensUsed,
	}, nil
}

func (c *BridgeClient) handleAPIError(statusCode int, body []byte) error {
	var wireErr schemas.WireError
	_ = json.Unmarshal(body, &wireErr)
	msg := wireErr.Error
	if msg == "" {
		msg = truncate(string(body), 300)
	}

	c.logger.Error("Bridge returned error status",
		zap.Int("status", statusCode), zap.String("error", msg))

	switch {
	case statusCode == http.StatusTooManyRequests, statusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: bridge status %d: %s", schemas.ErrInferenceUnavailable, statusCode, msg)
	case statusCode == http.StatusUnprocessableEntity:
		return backoff.Permanent(fmt.Errorf("%w: %s", schemas.ErrInferenceMalformed, msg))
	default:
		return backoff.Permanent(fmt.Errorf("%w: bridge status %d: %s",
			schemas.ErrInferenceUnavailable, statusCode, msg))
	}
}
