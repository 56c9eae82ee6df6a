package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/raaihank/numsieve/internal/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startHub(t *testing.T, config *HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(config, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		<-hub.done
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.GetStats().ActiveConnections == n
	}, 2*time.Second, 10*time.Millisecond)
}

// readUntil skips events until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want EventType) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == string(want) {
			return msg
		}
	}
}

func TestBroadcastRunEvents(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	hub.BroadcastRun(EventTypeRunStarted, RunEvent{
		RunID:    "run-1",
		Mode:     "generate",
		Tag:      "st98-----end21--sds--dds--nnn",
		Progress: pipeline.Progress{State: pipeline.StateRunning, Total: 1000000},
	})

	msg := readUntil(t, conn, EventTypeRunStarted)
	assert.Equal(t, "run-1", msg["run_id"])
	data := msg["data"].(map[string]any)
	assert.Equal(t, "generate", data["mode"])
	assert.Equal(t, "running", data["progress"].(map[string]any)["state"])
}

func TestSubscriptionFiltersRuns(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type: "subscribe",
		Data: SubscriptionRequest{Events: []EventType{EventTypeRunFinished}, RunIDs: []string{"wanted"}},
	}))
	// the ping round trip guarantees the subscription was applied
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))
	readUntil(t, conn, EventTypePong)

	hub.BroadcastRun(EventTypeRunProgress, RunEvent{RunID: "wanted"})
	hub.BroadcastRun(EventTypeRunFinished, RunEvent{RunID: "other"})
	hub.BroadcastRun(EventTypeRunFinished, RunEvent{RunID: "wanted", HadAnyMatch: true})

	msg := readUntil(t, conn, EventTypeRunFinished)
	assert.Equal(t, "wanted", msg["run_id"])
	assert.Equal(t, true, msg["data"].(map[string]any)["had_any_match"])
}

func TestDisabledEventsAreNotQueued(t *testing.T) {
	config := DefaultHubConfig()
	config.BroadcastProgress = false
	hub := NewHub(config, zap.NewNop())

	hub.BroadcastRun(EventTypeRunProgress, RunEvent{RunID: "r"})
	hub.BroadcastEvent(Event{Type: EventTypePong})
	assert.Len(t, hub.broadcast, 0)

	hub.BroadcastRun(EventTypeRunStarted, RunEvent{RunID: "r"})
	assert.Len(t, hub.broadcast, 1)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		hub.BroadcastRun(EventTypeRunProgress, RunEvent{RunID: "r"})
	}
	assert.Equal(t, int64(10), hub.GetStats().DroppedEvents)
}

func TestConnectionLimit(t *testing.T) {
	config := DefaultHubConfig()
	config.MaxConnections = 1
	hub, srv := startHub(t, config)
	dial(t, srv)
	waitForClients(t, hub, 1)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
	assert.Equal(t, int64(1), hub.GetStats().TotalConnections)
}

func TestCheckOrigin(t *testing.T) {
	config := DefaultHubConfig()
	config.AllowedOrigins = []string{"https://dash.example.com"}
	hub := NewHub(config, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, hub.checkOrigin(r))
	r.Header.Set("Origin", "https://dash.example.com")
	assert.True(t, hub.checkOrigin(r))
	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, hub.checkOrigin(r))
}

func TestClientWants(t *testing.T) {
	c := &Client{}
	assert.True(t, c.Wants(Event{Type: EventTypeConnection}))

	c.Subscribe(&SubscriptionRequest{RunIDs: []string{"a"}})
	assert.True(t, c.Wants(Event{Type: EventTypeRunStarted, RunID: "a"}))
	assert.False(t, c.Wants(Event{Type: EventTypeRunStarted, RunID: "b"}))
	assert.True(t, c.Wants(Event{Type: EventTypeConnection}))
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", getClientIP(r))
}
