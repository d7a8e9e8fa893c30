package sandbox

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eduforge/gamehost/internal/domain/protocol"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/infrastructure/monitoring"
	"github.com/eduforge/gamehost/internal/shared/clock"
	"github.com/eduforge/gamehost/internal/shared/id"
)

// Drop reasons for the messages_dropped counter.
const (
	dropOrigin    = "origin_mismatch"
	dropMalformed = "malformed"
)

// Host wraps one Surface and turns its raw envelope stream into validated
// protocol messages. It is the only place origin checking happens: an
// envelope whose origin is not the host's own surface is dropped before
// decoding, and malformed payloads are dropped after. Dropped traffic is
// counted and logged, never surfaced to the player.
//
// Exactly one PARENT_READY handshake is posted per document load.
type Host struct {
	surface Surface
	clk     clock.Clock
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu        sync.Mutex
	onMessage func(*protocol.Message)
	onLoad    func()
	onError   func(error)
	readySent bool
	closed    bool
}

// NewHost binds a host to its surface. Fails if the surface already has a
// listener.
func NewHost(surface Surface, clk clock.Clock, log *logging.Logger) (*Host, error) {
	h := &Host{
		surface: surface,
		clk:     clk,
		log:     log.Named("host").With(zap.String("surface_id", surface.ID().String())),
	}
	err := surface.Bind(Binding{
		OnEnvelope: h.handleEnvelope,
		OnLoad:     h.handleLoad,
		OnError:    h.handleError,
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// WithMetrics attaches message counters.
func (h *Host) WithMetrics(m *monitoring.Metrics) *Host {
	h.metrics = m
	return h
}

// ID returns the wrapped surface's identity.
func (h *Host) ID() id.SurfaceID {
	return h.surface.ID()
}

// OnMessage sets the callback for validated guest messages.
func (h *Host) OnMessage(fn func(*protocol.Message)) {
	h.mu.Lock()
	h.onMessage = fn
	h.mu.Unlock()
}

// OnLoad sets the callback fired after the surface finishes loading a
// document and the handshake has been posted.
func (h *Host) OnLoad(fn func()) {
	h.mu.Lock()
	h.onLoad = fn
	h.mu.Unlock()
}

// OnError sets the callback for surface load failures.
func (h *Host) OnError(fn func(error)) {
	h.mu.Lock()
	h.onError = fn
	h.mu.Unlock()
}

// Load replaces the surface's document and re-arms the handshake so the
// new document gets its own PARENT_READY.
func (h *Host) Load(document string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrSurfaceClosed
	}
	h.readySent = false
	h.mu.Unlock()
	return h.surface.Load(document)
}

// Post sends a host message into the embedded content.
func (h *Host) Post(m *protocol.Message) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrSurfaceClosed
	}
	h.mu.Unlock()
	return h.surface.Post(m)
}

// Close detaches from the surface and tears it down. Synchronous: no
// callbacks fire after it returns.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.surface.Unbind()
	return h.surface.Close()
}

func (h *Host) handleEnvelope(env Envelope) {
	if env.Origin != h.surface.ID() {
		h.drop(dropOrigin, zap.String("origin", env.Origin.String()))
		return
	}

	msg, err := protocol.Decode(env.Data)
	if err != nil {
		h.drop(dropMalformed, zap.ByteString("data", truncate(env.Data, 256)))
		return
	}

	h.mu.Lock()
	closed := h.closed
	cb := h.onMessage
	h.mu.Unlock()
	if closed || cb == nil {
		return
	}

	if h.metrics != nil {
		h.metrics.MessagesAccepted.Inc()
	}
	cb(msg)
}

func (h *Host) handleLoad() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	sendReady := !h.readySent
	h.readySent = true
	cb := h.onLoad
	h.mu.Unlock()

	if sendReady {
		if err := h.surface.Post(protocol.ParentReady(h.clk.Now())); err != nil {
			h.log.Warn("handshake post failed", zap.Error(err))
		}
	}
	if cb != nil {
		cb()
	}
}

func (h *Host) handleError(err error) {
	h.mu.Lock()
	closed := h.closed
	cb := h.onError
	h.mu.Unlock()
	if closed || cb == nil {
		return
	}
	cb(err)
}

func (h *Host) drop(reason string, fields ...zap.Field) {
	if h.metrics != nil {
		h.metrics.MessagesDropped.WithLabelValues(reason).Inc()
	}
	h.log.Debug("message dropped", append(fields, zap.String("reason", reason))...)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
