package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Activer007/computer-use-ootb/api/schemas"
	"github.com/Activer007/computer-use-ootb/internal/config"
)

// scriptedClient returns canned results and records what it saw.
type scriptedClient struct {
	mu       sync.Mutex
	requests []schemas.InferRequest
	result   *schemas.InferResult
	err      error
}

func (s *scriptedClient) Capabilities() schemas.Capabilities {
	return schemas.Capabilities{Role: schemas.RoleUnified, EmitsCoordinates: true}
}

func (s *scriptedClient) Infer(ctx context.Context, req schemas.InferRequest) (*schemas.InferResult, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type fixedBackend struct {
	client schemas.ModelClient
}

func (f fixedBackend) ForRole(role schemas.Role) (schemas.ModelClient, error) {
	if f.client == nil {
		return nil, fmt.Errorf("no client for role %q", role)
	}
	return f.client, nil
}

func newTestServer(t *testing.T, client schemas.ModelClient) *Server {
	t.Helper()
	return NewServer(config.BridgeConfig{Host: "127.0.0.1", Port: 8765}, fixedBackend{client: client}, zaptest.NewLogger(t))
}

func postInfer(t *testing.T, srv *Server, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/infer", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func validWireRequest() schemas.WireInferRequest {
	return schemas.WireInferRequest{
		Image:       base64.StdEncoding.EncodeToString([]byte("fake-png")),
		Width:       1000,
		Height:      562,
		Instruction: "open the settings menu",
	}
}

func TestHandleInfer_Success(t *testing.T) {
	client := &scriptedClient{result: &schemas.InferResult{
		Decision: schemas.Decision{
			Kind:  schemas.DecisionClick,
			Point: &schemas.Point{X: 500, Y: 281},
		},
		TokensUsed: 123,
	}}
	srv := newTestServer(t, client)

	rec := postInfer(t, srv, validWireRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp schemas.WireInferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, schemas.DecisionClick, resp.DecisionKind)
	assert.Equal(t, 123, resp.TokensUsed)
	require.NotNil(t, resp.Payload.Point)
	assert.Equal(t, 500.0, resp.Payload.Point.X)

	// The backend saw the decoded image and the instruction.
	require.Len(t, client.requests, 1)
	assert.Equal(t, []byte("fake-png"), client.requests[0].ImagePNG)
	assert.Equal(t, "open the settings menu", client.requests[0].Instruction)
}

func TestHandleInfer_ForwardsHistory(t *testing.T) {
	client := &scriptedClient{result: &schemas.InferResult{
		Decision: schemas.Decision{Kind: schemas.DecisionDone},
	}}
	srv := newTestServer(t, client)

	req := validWireRequest()
	req.History = []schemas.WireHistoryEntry{
		{Decision: schemas.Decision{Kind: schemas.DecisionClick, Point: &schemas.Point{X: 1, Y: 2}}, OK: true},
		{Decision: schemas.Decision{Kind: schemas.DecisionType, Text: "abc"}, OK: false, Error: "field not focused"},
	}

	rec := postInfer(t, srv, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, client.requests, 1)
	history := client.requests[0].History
	require.Len(t, history, 2)
	assert.True(t, history[0].Outcome.OK)
	assert.Equal(t, "field not focused", history[1].Err)
}

func TestHandleInfer_BadRequests(t *testing.T) {
	srv := newTestServer(t, &scriptedClient{})

	t.Run("missing image", func(t *testing.T) {
		req := validWireRequest()
		req.Image = ""
		rec := postInfer(t, srv, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid base64", func(t *testing.T) {
		req := validWireRequest()
		req.Image = "!!not-base64!!"
		rec := postInfer(t, srv, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("zero dimensions", func(t *testing.T) {
		req := validWireRequest()
		req.Width = 0
		rec := postInfer(t, srv, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-json body", func(t *testing.T) {
		httpReq := httptest.NewRequest(http.MethodPost, "/v1/infer", bytes.NewReader([]byte("not json")))
		httpReq.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httpReq)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleInfer_ErrorTaxonomy(t *testing.T) {
	t.Run("malformed maps to 422", func(t *testing.T) {
		client := &scriptedClient{err: fmt.Errorf("%w: no decision found", schemas.ErrInferenceMalformed)}
		rec := postInfer(t, newTestServer(t, client), validWireRequest())
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var werr schemas.WireError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &werr))
		assert.Equal(t, "malformed", werr.Kind)
	})

	t.Run("unavailable maps to 502", func(t *testing.T) {
		client := &scriptedClient{err: fmt.Errorf("%w: connection refused", schemas.ErrInferenceUnavailable)}
		rec := postInfer(t, newTestServer(t, client), validWireRequest())
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("unknown error maps to 500", func(t *testing.T) {
		client := &scriptedClient{err: fmt.Errorf("boom")}
		rec := postInfer(t, newTestServer(t, client), validWireRequest())
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleInfer_ConcurrentRequests(t *testing.T) {
	client := &scriptedClient{result: &schemas.InferResult{
		Decision: schemas.Decision{Kind: schemas.DecisionWait},
	}}
	srv := newTestServer(t, client)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := postInfer(t, srv, validWireRequest())
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
	}
	wg.Wait()
	assert.Len(t, client.requests, 16)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &scriptedClient{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
