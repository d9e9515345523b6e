package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tremor/internal/config"
	"tremor/pkg/contracts/events"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingPeriod:      50 * time.Millisecond,
		PongWait:        200 * time.Millisecond,
	}
}

func dialTestServer(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(Handler(hub, testWSConfig(), nil, slog.Default()))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) events.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg events.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestClientReceivesConnectionGreeting(t *testing.T) {
	hub := NewHub(slog.Default())
	hub.Start()
	defer hub.Stop()

	conn := dialTestServer(t, hub)
	msg := readMessage(t, conn)
	assert.Equal(t, events.TypeConnection, msg.Type)

	var payload events.ConnectionPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "connected", payload.Status)
	assert.NotEmpty(t, payload.ClientID)
}

func TestBroadcastShockReachesClient(t *testing.T) {
	hub := NewHub(slog.Default())
	hub.Start()
	defer hub.Stop()

	conn := dialTestServer(t, hub)
	_ = readMessage(t, conn) // greeting

	z := 2.7
	hub.BroadcastShock(events.ShockAlertPayload{
		SignalID:      "s-1",
		EventID:       "e-1",
		TransformID:   "t-1",
		TransformName: "fomc_rate_surprise",
		Node:          "d_fed_funds",
		Value:         0.25,
		ZScore:        &z,
		Timestamp:     time.Now().UTC(),
	}, "trace-1")

	msg := readMessage(t, conn)
	assert.Equal(t, events.TypeShockAlert, msg.Type)
	assert.Equal(t, "trace-1", msg.TraceID)

	var payload events.ShockAlertPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "d_fed_funds", payload.Node)
	require.NotNil(t, payload.ZScore)
	assert.InDelta(t, 2.7, *payload.ZScore, 1e-12)
}

func TestBroadcastSignalComputedReachesClient(t *testing.T) {
	hub := NewHub(slog.Default())
	hub.Start()
	defer hub.Stop()

	conn := dialTestServer(t, hub)
	_ = readMessage(t, conn) // greeting

	hub.BroadcastSignalComputed(events.SignalComputedPayload{
		SignalID:      "s-2",
		EventID:       "e-2",
		TransformID:   "t-1",
		TransformName: "fomc_rate_surprise",
		Value:         0.1,
		IsShock:       false,
		Timestamp:     time.Now().UTC(),
	}, "trace-2")

	msg := readMessage(t, conn)
	assert.Equal(t, events.TypeSignalComputed, msg.Type)

	var payload events.SignalComputedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "s-2", payload.SignalID)
	assert.False(t, payload.IsShock)
}

func TestOffProtocolClientMessageGetsErrorFrame(t *testing.T) {
	hub := NewHub(slog.Default())
	hub.Start()
	defer hub.Stop()

	conn := dialTestServer(t, hub)
	_ = readMessage(t, conn) // greeting

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"subscribe":"shocks"}`)))

	msg := readMessage(t, conn)
	assert.Equal(t, events.TypeError, msg.Type)

	var payload events.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Contains(t, payload.Message, "push-only")
}

func TestClientCountTracksConnections(t *testing.T) {
	hub := NewHub(slog.Default())
	hub.Start()
	defer hub.Stop()

	conn := dialTestServer(t, hub)
	_ = readMessage(t, conn)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcastToNoClientsDoesNotBlock(t *testing.T) {
	hub := NewHub(slog.Default())
	hub.Start()
	defer hub.Stop()

	done := make(chan struct{})
	go func() {
		hub.BroadcastStudyCompleted(events.StudyCompletedPayload{
			ResultID: "r-1", IsCausal: true, ConfidenceLevel: "high",
		}, "")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked with zero clients")
	}
}
