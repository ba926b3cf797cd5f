package mcp

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
)

func dialTestServer(t *testing.T, server *Server) *websocket.Conn {
	t.Helper()
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocket_Session(t *testing.T) {
	server := newTestServer(t, nil)
	conn := dialTestServer(t, server)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"clientInfo":{"name":"ws-client","version":"2.0"}}}`)))
	frame := readFrame(t, conn)
	assert.Equal(t, float64(1), frame["id"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"x":1}}}`)))
	frame = readFrame(t, conn)
	assert.Equal(t, float64(2), frame["id"])
	assert.JSONEq(t, `{"tool":"echo","result":{"x":1}}`, callText(t, frame))

	sessions := server.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, TransportWebSocket, sessions[0].Transport)
	assert.Equal(t, "ws-client", sessions[0].ClientName)
	assert.True(t, sessions[0].Initialized)
}

func TestWebSocket_NotifyToolsChanged(t *testing.T) {
	server := newTestServer(t, nil)
	initialized := dialTestServer(t, server)
	fresh := dialTestServer(t, server)

	require.NoError(t, initialized.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
	require.NoError(t, initialized.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	readFrame(t, initialized)

	require.Eventually(t, func() bool { return len(server.Sessions()) == 2 }, time.Second, 10*time.Millisecond)

	server.NotifyToolsChanged()

	frame := readFrame(t, initialized)
	assert.Equal(t, "notifications/tools/list_changed", frame["method"])
	assert.NotContains(t, frame, "id")

	// the uninitialized session only sees its own reply
	require.NoError(t, fresh.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":9,"method":"ping"}`)))
	frame = readFrame(t, fresh)
	assert.Equal(t, float64(9), frame["id"])
}

func TestWebSocket_Shutdown(t *testing.T) {
	server := newTestServer(t, nil)
	conn := dialTestServer(t, server)

	require.Eventually(t, func() bool { return len(server.Sessions()) == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	require.Eventually(t, func() bool { return len(server.Sessions()) == 0 }, time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
