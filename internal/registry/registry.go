// ABOUTME: Subscription Registry: per-user live transport handles fanning out bus traffic
// ABOUTME: Grounded on the teacher's EventBroadcaster (sync.RWMutex-guarded subscriber map)

package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/2389/groupchat-gateway/internal/bus"
	"github.com/2389/groupchat-gateway/internal/dispatch"
	"github.com/2389/groupchat-gateway/internal/subject"
)

// SessionCeiling is the default maximum duration a subscribed handle may
// remain open; it is force-closed when this elapses, regardless of client
// activity.
const SessionCeiling = 15 * time.Minute

// Handle is a live transport endpoint delivering messages to one client
// session. SSE and WS handles both implement this.
type Handle interface {
	SendText(payload string) error
	Close() error
	// OnComplete registers fn to run exactly once when the handle finishes,
	// whether by client disconnect, send failure, the session ceiling, or
	// an explicit Close.
	OnComplete(fn func())
}

var onlineUsersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "chat_group_channel_online_users",
	Help: "Sum of live subscription-registry handle counts across all users.",
})

func init() {
	prometheus.MustRegister(onlineUsersGauge)
}

type entry struct {
	handles map[Handle]*time.Timer
	sub     bus.Subscription
}

// Registry holds the userId -> set<Handle> mapping described by the spec's
// Subscription Registry, backed by a single bus connection.
type Registry struct {
	mu             sync.Mutex
	entries        map[uuid.UUID]*entry
	bus            bus.Bus
	logger         *slog.Logger
	sessionCeiling time.Duration
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithSessionCeiling overrides the default 15-minute SessionCeiling, for
// operators who configure registry.session_ceiling explicitly.
func WithSessionCeiling(d time.Duration) Option {
	return func(r *Registry) { r.sessionCeiling = d }
}

// New constructs a Registry backed by b. logger may be nil, in which case
// slog.Default() is used.
func New(b bus.Bus, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		entries:        map[uuid.UUID]*entry{},
		bus:            b,
		logger:         logger.With("component", "registry"),
		sessionCeiling: SessionCeiling,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe adds handle to userId's set. If the set was empty, it requests a
// bus subscription on the user's subject. It installs a completion callback
// that runs Unsubscribe, and schedules a forced Close at SessionCeiling.
func (r *Registry) Subscribe(userID uuid.UUID, handle Handle) error {
	r.mu.Lock()

	e, ok := r.entries[userID]
	if !ok {
		e = &entry{handles: map[Handle]*time.Timer{}}
		subj := subject.Encode(userID)
		sub, err := r.bus.Subscribe(subj, func(payload []byte) {
			dispatch.HandleMessage(r.logger, func(userID uuid.UUID, payload []byte) {
				r.Deliver(userID, string(payload))
			}, subj, payload)
		})
		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("subscribing to bus for user %s: %w", userID, err)
		}
		e.sub = sub
		r.entries[userID] = e
	}

	timer := time.AfterFunc(r.sessionCeiling, func() { _ = handle.Close() })
	e.handles[handle] = timer
	onlineUsersGauge.Inc()

	r.mu.Unlock()

	var once sync.Once
	handle.OnComplete(func() {
		once.Do(func() { r.unsubscribe(userID, handle) })
	})

	return nil
}

// Unsubscribe removes handle from userId's set. If the set becomes empty, it
// requests a bus unsubscription and drops the entry. Safe to call more than
// once for the same handle; later calls are no-ops.
func (r *Registry) Unsubscribe(userID uuid.UUID, handle Handle) {
	r.unsubscribe(userID, handle)
}

func (r *Registry) unsubscribe(userID uuid.UUID, handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok {
		return
	}
	timer, ok := e.handles[handle]
	if !ok {
		return
	}
	timer.Stop()
	delete(e.handles, handle)
	onlineUsersGauge.Dec()

	if len(e.handles) == 0 {
		if e.sub != nil {
			if err := e.sub.Unsubscribe(); err != nil {
				r.logger.Warn("bus unsubscribe failed", "user", userID, "error", err)
			}
		}
		delete(r.entries, userID)
	}
}

// Deliver sends payload to every handle currently registered for userID, in
// parallel. A per-handle send failure is logged; it does not prevent
// delivery to the other handles and does not itself remove the handle (the
// handle's own completion callback does that).
func (r *Registry) Deliver(userID uuid.UUID, payload string) {
	r.mu.Lock()
	e, ok := r.entries[userID]
	var handles []Handle
	if ok {
		handles = make([]Handle, 0, len(e.handles))
		for h := range e.handles {
			handles = append(handles, h)
		}
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h Handle) {
			defer wg.Done()
			if err := h.SendText(payload); err != nil {
				r.logger.Warn("delivery failed", "user", userID, "error", err)
			}
		}(h)
	}
	wg.Wait()
}

// Stop closes every live handle and drops every bus subscription. Intended
// for process shutdown.
func (r *Registry) Stop() {
	r.mu.Lock()
	entries := r.entries
	r.entries = map[uuid.UUID]*entry{}
	r.mu.Unlock()

	for userID, e := range entries {
		for h, timer := range e.handles {
			timer.Stop()
			onlineUsersGauge.Dec()
			_ = h.Close()
		}
		if e.sub != nil {
			if err := e.sub.Unsubscribe(); err != nil {
				r.logger.Warn("bus unsubscribe failed during stop", "user", userID, "error", err)
			}
		}
	}
}
