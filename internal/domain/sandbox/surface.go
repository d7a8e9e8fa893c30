// Package sandbox provides the isolation boundary between the host page
// and embedded, untrusted game content.
//
// A Surface is an isolated rendering surface (an iframe in production,
// relayed over the player websocket; a goja VM for headless validation).
// A Host wraps exactly one Surface and exposes a filtered, typed stream of
// protocol messages: anything not originating from the host's own surface
// is dropped before it can touch session state.
package sandbox

import (
	"errors"

	"github.com/eduforge/gamehost/internal/domain/protocol"
	"github.com/eduforge/gamehost/internal/shared/id"
)

var (
	// ErrListenerBound is returned when a second listener is bound to a
	// surface. A surface has at most one.
	ErrListenerBound = errors.New("surface already has a listener bound")

	// ErrSurfaceClosed is returned for operations on a torn-down surface.
	ErrSurfaceClosed = errors.New("surface is closed")
)

// Envelope is a raw inbound message together with its transport origin.
// Origin is asserted by the transport, not by message content.
type Envelope struct {
	Origin id.SurfaceID
	Data   []byte
}

// Binding is the single set of callbacks a surface delivers into.
type Binding struct {
	OnEnvelope func(Envelope)
	OnLoad     func()
	OnError    func(error)
}

// Surface is an isolated rendering surface for untrusted documents.
//
// Implementations must deliver callbacks sequentially and must stop
// delivering after Unbind or Close returns.
type Surface interface {
	// ID is the surface's transport identity, used for origin checks.
	ID() id.SurfaceID

	// Load replaces the surface's document. OnLoad or OnError fires when
	// the surface itself finishes or fails loading (distinct from the
	// game's own GAME_READY event).
	Load(document string) error

	// Post delivers a host message into the embedded content.
	Post(m *protocol.Message) error

	// Bind attaches the surface's one listener set.
	Bind(b Binding) error

	// Unbind synchronously detaches the listener; no callbacks are
	// delivered after it returns.
	Unbind()

	// Close tears the surface down.
	Close() error
}
