package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/Activer007/computer-use-ootb/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	return conn
}

func TestHub_BroadcastsToViewers(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	// Viewers disconnect and deregister before the hub shuts down.
	defer func() {
		require.Eventually(t, func() bool {
			hub.mu.RLock()
			defer hub.mu.RUnlock()
			return len(hub.clients) == 0
		}, 5*time.Second, 10*time.Millisecond)
	}()

	first := dialHub(t, srv)
	defer first.Close()
	second := dialHub(t, srv)
	defer second.Close()

	event := schemas.AgentEvent{
		TaskID: "task-1",
		Seq:    7,
		State:  "executing",
		Status: schemas.TaskRunning,
	}
	hub.Publish(event)

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var got schemas.AgentEvent
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "task-1", got.TaskID)
		assert.Equal(t, 7, got.Seq)
		assert.Equal(t, schemas.TaskRunning, got.Status)
	}
}

func TestHub_PublishNeverBlocksWithoutViewers(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	// No Run goroutine: the broadcast queue absorbs what it can and the rest
	// is dropped without stalling the caller.
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < 200; i++ {
			hub.Publish(schemas.AgentEvent{Seq: i})
		}
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked the caller")
	}
}

func TestHub_DisconnectedViewerIsRemoved(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dialHub(t, srv)
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 1
	}, 5*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 0
	}, 5*time.Second, 10*time.Millisecond)
}
