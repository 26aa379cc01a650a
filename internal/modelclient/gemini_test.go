package modelclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/json-iterator/go"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Activer007/computer-use-ootb/api/schemas"
	"github.com/Activer007/computer-use-ootb/internal/config"
)

func geminiBody(text string, tokens int) string {
	quoted, _ := json.Marshal(text)
	return fmt.Sprintf(`{
		"candidates": [{"content": {"parts": [{"text": %s}]}}],
		"usageMetadata": {"totalTokenCount": %d}
	}`, quoted, tokens)
}

func newGeminiTestClient(t *testing.T, endpoint string, retries uint64) *GeminiClient {
	t.Helper()
	c, err := NewGeminiClient(schemas.RoleUnified, config.ModelConfig{
		Provider:   config.ProviderGemini,
		Model:      "test-model",
		APIKey:     "test-key",
		Endpoint:   endpoint,
		APITimeout: 5 * time.Second,
	}, retries, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func testInferRequest() schemas.InferRequest {
	return schemas.InferRequest{
		ImagePNG:    []byte("fake-png"),
		ImageWidth:  1000,
		ImageHeight: 562,
		Instruction: "open the settings menu",
	}
}

func TestGeminiInfer_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		w.Write([]byte(geminiBody(`{"action": "CLICK", "position": [500, 281]}`, 321)))
	}))
	defer srv.Close()

	c := newGeminiTestClient(t, srv.URL, 3)
	result, err := c.Infer(context.Background(), testInferRequest())
	require.NoError(t, err)

	assert.Equal(t, schemas.DecisionClick, result.Decision.Kind)
	assert.Equal(t, 321, result.TokensUsed)
	assert.NotEmpty(t, result.Raw)
}

func TestGeminiInfer_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(geminiBody(`{"action": "STOP"}`, 10)))
	}))
	defer srv.Close()

	c := newGeminiTestClient(t, srv.URL, 3)
	result, err := c.Infer(context.Background(), testInferRequest())
	require.NoError(t, err)
	assert.Equal(t, schemas.DecisionDone, result.Decision.Kind)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGeminiInfer_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newGeminiTestClient(t, srv.URL, 3)
	_, err := c.Infer(context.Background(), testInferRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrInferenceUnavailable)
	assert.Equal(t, int32(4), calls.Load(), "initial attempt plus three retries")
}

func TestGeminiInfer_PermanentClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newGeminiTestClient(t, srv.URL, 3)
	_, err := c.Infer(context.Background(), testInferRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestGeminiInfer_MalformedDecision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiBody("I would suggest clicking somewhere on the left.", 5)))
	}))
	defer srv.Close()

	c := newGeminiTestClient(t, srv.URL, 0)
	_, err := c.Infer(context.Background(), testInferRequest())
	assert.ErrorIs(t, err, schemas.ErrInferenceMalformed)
}

func TestNewGeminiClient_RequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClient(schemas.RoleUnified, config.ModelConfig{Model: "m"}, 0, nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestGeminiCapabilities(t *testing.T) {
	c := newGeminiTestClient(t, "http://localhost", 0)
	assert.True(t, c.Capabilities().EmitsCoordinates)

	planner, err := NewGeminiClient(schemas.RolePlanner, config.ModelConfig{
		APIKey: "k", Model: "m",
	}, 0, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, planner.Capabilities().EmitsCoordinates)
}
