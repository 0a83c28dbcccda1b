// ABOUTME: Server-sent-event transport Handle, hand-rolled over net/http's http.Flusher
// ABOUTME: Grounded on the teacher's internal/gateway/api.go writeSSEEvent/flush pattern

package transport

import (
	"fmt"
	"net/http"
	"sync"
)

// SSEHandle is a registry.Handle backed by a single long-lived HTTP response
// kept open as a text/event-stream. It is created once per subscribe call
// and lives for the duration of that HTTP request.
type SSEHandle struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu         sync.Mutex
	closed     bool
	onComplete func()
	once       sync.Once
	done       chan struct{}
}

// NewSSEHandle sets the text/event-stream headers on w and returns a handle
// ready to send events. Returns an error if w does not support flushing
// (required to stream events as they arrive).
func NewSSEHandle(w http.ResponseWriter) (*SSEHandle, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &SSEHandle{w: w, flusher: flusher, done: make(chan struct{})}, nil
}

// WriteConnectEvent writes the initial "connect" event the spec requires on
// successful subscribe, then flushes.
func (h *SSEHandle) WriteConnectEvent() {
	h.writeEvent("connect", "{}")
}

func (h *SSEHandle) writeEvent(event, data string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	_, _ = fmt.Fprintf(h.w, "event: %s\n", event)
	_, _ = fmt.Fprintf(h.w, "data: %s\n\n", data)
	h.flusher.Flush()
}

// SendText writes a "message" event carrying payload (the JSON of a
// GroupMessageDto) and flushes it to the client immediately.
func (h *SSEHandle) SendText(payload string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return fmt.Errorf("sse handle closed")
	}
	h.mu.Unlock()

	_, err := fmt.Fprintf(h.w, "event: message\ndata: %s\n\n", payload)
	if err != nil {
		return err
	}
	h.flusher.Flush()
	return nil
}

// Close marks the handle closed, unblocks Done(), and runs the completion
// callback exactly once. It does not itself end the HTTP request; the
// handler goroutine that owns the request must select on Done() and return.
func (h *SSEHandle) Close() error {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		fn := h.onComplete
		h.mu.Unlock()

		close(h.done)
		if fn != nil {
			fn()
		}
	})
	return nil
}

// OnComplete registers fn to run exactly once when the handle finishes. If
// the handle is already closed, fn runs immediately.
func (h *SSEHandle) OnComplete(fn func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		fn()
		return
	}
	h.onComplete = fn
	h.mu.Unlock()
}

// Done returns a channel closed once the handle has been closed, whether by
// the session ceiling timer or an explicit Close. The owning HTTP handler
// selects on this (and on the request context) to know when to return.
func (h *SSEHandle) Done() <-chan struct{} {
	return h.done
}
