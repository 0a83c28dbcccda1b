// ABOUTME: Duplex-socket transport Handle over github.com/gorilla/websocket
// ABOUTME: Grounded on jpxor-burlo.v2's thermostat.web.service.go client registry/broadcast pattern

package transport

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// WSHandle is a registry.Handle backed by a single gorilla/websocket
// connection. A read pump runs for the lifetime of the handle so that
// client-initiated closes and protocol-level control frames are observed;
// gorilla/websocket requires a continuous reader for this.
type WSHandle struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	onComplete func()
	once       sync.Once
}

// NewWSHandle wraps conn and starts its read pump. logger may be nil, in
// which case slog.Default() is used.
func NewWSHandle(conn *websocket.Conn, logger *slog.Logger) *WSHandle {
	if logger == nil {
		logger = slog.Default()
	}
	h := &WSHandle{conn: conn, logger: logger.With("component", "transport.ws")}
	go h.readPump()
	return h
}

// readPump discards inbound frames (this transport is server-to-client
// only) but must keep reading so gorilla/websocket processes ping/pong and
// close control frames. Any read error, including a clean client-initiated
// close, ends the pump and closes the handle.
func (h *WSHandle) readPump() {
	for {
		if _, _, err := h.conn.ReadMessage(); err != nil {
			_ = h.Close()
			return
		}
	}
}

// WriteConnectEvent writes the initial "connect" text frame the spec
// requires on successful subscribe.
func (h *WSHandle) WriteConnectEvent() {
	_ = h.SendText("{}")
}

// SendText writes payload as a single text frame. gorilla/websocket permits
// only one concurrent writer per connection, so writes are serialized.
func (h *WSHandle) SendText(payload string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return websocket.ErrCloseSent
	}
	h.mu.Unlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

// Close closes the underlying connection and runs the completion callback
// exactly once. Safe to call more than once.
func (h *WSHandle) Close() error {
	var err error
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		fn := h.onComplete
		h.mu.Unlock()

		err = h.conn.Close()
		if fn != nil {
			fn()
		}
	})
	return err
}

// OnComplete registers fn to run exactly once when the handle finishes. If
// the handle is already closed, fn runs immediately.
func (h *WSHandle) OnComplete(fn func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		fn()
		return
	}
	h.onComplete = fn
	h.mu.Unlock()
}
