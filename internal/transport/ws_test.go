// ABOUTME: Tests for the WS transport Handle: upgrade, send, close-on-disconnect

package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSTestServer(t *testing.T, onHandle func(*WSHandle)) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		h := NewWSHandle(conn, nil)
		onHandle(h)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func dialClient(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWSHandle_SendTextDeliversFrame(t *testing.T) {
	handleReady := make(chan *WSHandle, 1)
	_, url := newWSTestServer(t, func(h *WSHandle) {
		handleReady <- h
	})

	conn := dialClient(t, url)
	h := <-handleReady

	require.NoError(t, h.SendText(`{"kind":"JOIN"}`))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"JOIN"}`, string(data))
}

func TestWSHandle_ClientDisconnectRunsCompletion(t *testing.T) {
	handleReady := make(chan *WSHandle, 1)
	_, url := newWSTestServer(t, func(h *WSHandle) {
		handleReady <- h
	})

	conn := dialClient(t, url)
	h := <-handleReady

	completed := make(chan struct{})
	h.OnComplete(func() { close(completed) })

	require.NoError(t, conn.Close())

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback did not run after client disconnect")
	}
}

func TestWSHandle_CloseIsIdempotent(t *testing.T) {
	handleReady := make(chan *WSHandle, 1)
	_, url := newWSTestServer(t, func(h *WSHandle) {
		handleReady <- h
	})

	_ = dialClient(t, url)
	h := <-handleReady

	calls := 0
	h.OnComplete(func() { calls++ })

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	assert.Equal(t, 1, calls)
}
