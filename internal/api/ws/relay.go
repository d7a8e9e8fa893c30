// Package ws carries one player view over a websocket connection.
//
// The browser side renders the sandboxed iframe and relays its postMessage
// traffic; the server side owns every decision. One connection is one
// surface and one display: frames from the page arrive tagged with the
// connection's surface identity, so the sandbox host's origin check holds
// across the network hop.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eduforge/gamehost/internal/domain/fullscreen"
	"github.com/eduforge/gamehost/internal/domain/protocol"
	"github.com/eduforge/gamehost/internal/domain/sandbox"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/shared/id"
)

// Frame is the wire format between server and player page. Kind selects
// which fields are meaningful.
type Frame struct {
	Kind string `json:"kind"`

	// hello (client -> server): open a view.
	GameID     string `json:"gameId,omitempty"`
	Restricted bool   `json:"restricted,omitempty"`

	// opened (server -> client): the view is live.
	PlayerID string `json:"playerId,omitempty"`

	// document (server -> client): replace the iframe's srcdoc.
	HTML string `json:"html,omitempty"`

	// post (server -> client): deliver a host message into the iframe.
	Message *protocol.Message `json:"message,omitempty"`

	// guest (client -> server): raw postMessage payload from the iframe.
	Data json.RawMessage `json:"data,omitempty"`

	// lifecycle (client -> server): iframe load outcome.
	Event string `json:"event,omitempty"`

	// display (both directions): fullscreen commands and outcomes.
	Command string `json:"command,omitempty"`
	Target  string `json:"target,omitempty"`
	Text    string `json:"text,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`

	// action (client -> server): pause, resume, restart, close.
	Action string `json:"action,omitempty"`

	// error (server -> client).
	Error string `json:"error,omitempty"`
}

// Relay adapts one websocket connection into a sandbox.Surface and a
// fullscreen.Display. All writes go through a single writer goroutine;
// gorilla connections allow only one concurrent writer.
type Relay struct {
	surfaceID id.SurfaceID
	conn      *websocket.Conn
	log       *logging.Logger

	out  chan Frame
	done chan struct{}

	mu      sync.Mutex
	binding *sandbox.Binding
	closed  bool
}

var (
	_ sandbox.Surface    = (*Relay)(nil)
	_ fullscreen.Display = (*Relay)(nil)
)

// NewRelay wraps an upgraded connection and starts its writer.
func NewRelay(conn *websocket.Conn, log *logging.Logger) *Relay {
	sid := id.NewSurfaceID()
	r := &Relay{
		surfaceID: sid,
		conn:      conn,
		log:       log.Named("relay").With(zap.String("surface_id", sid.String())),
		out:       make(chan Frame, 32),
		done:      make(chan struct{}),
	}
	go r.writeLoop()
	return r
}

// ID returns the connection's surface identity.
func (r *Relay) ID() id.SurfaceID { return r.surfaceID }

// Load ships a document to the page. The page answers with a lifecycle
// frame once the iframe finishes loading.
func (r *Relay) Load(document string) error {
	return r.enqueue(Frame{Kind: "document", HTML: document})
}

// Post forwards a host message for delivery into the iframe.
func (r *Relay) Post(m *protocol.Message) error {
	return r.enqueue(Frame{Kind: "post", Message: m})
}

// Bind attaches the surface listener.
func (r *Relay) Bind(b sandbox.Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.binding != nil {
		return sandbox.ErrListenerBound
	}
	r.binding = &b
	return nil
}

// Unbind detaches the listener. The read loop runs on one goroutine, so
// no callback can be mid-flight on another once this returns.
func (r *Relay) Unbind() {
	r.mu.Lock()
	r.binding = nil
	r.mu.Unlock()
}

// Close stops the writer and closes the connection.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.binding = nil
	r.mu.Unlock()

	close(r.done)
	return r.conn.Close()
}

// RequestFullscreen implements fullscreen.Display.
func (r *Relay) RequestFullscreen(target fullscreen.Target) {
	r.enqueue(Frame{Kind: "display", Command: "request_fullscreen", Target: string(target)})
}

// ExitFullscreen implements fullscreen.Display.
func (r *Relay) ExitFullscreen() {
	r.enqueue(Frame{Kind: "display", Command: "exit_fullscreen"})
}

// Maximize implements fullscreen.Display.
func (r *Relay) Maximize() {
	r.enqueue(Frame{Kind: "display", Command: "maximize"})
}

// ShowNotice implements fullscreen.Display.
func (r *Relay) ShowNotice(text string) {
	r.enqueue(Frame{Kind: "display", Command: "notice", Text: text})
}

// SetKeyIntercept implements fullscreen.Display.
func (r *Relay) SetKeyIntercept(enabled bool) {
	r.enqueue(Frame{Kind: "display", Command: "key_intercept", Enabled: enabled})
}

// SendError ships an error frame to the page.
func (r *Relay) SendError(msg string) {
	r.enqueue(Frame{Kind: "error", Error: msg})
}

// dispatchGuest hands a guest frame's payload to the bound listener with
// this connection's origin attached.
func (r *Relay) dispatchGuest(data []byte) {
	r.mu.Lock()
	b := r.binding
	r.mu.Unlock()
	if b != nil && b.OnEnvelope != nil {
		b.OnEnvelope(sandbox.Envelope{Origin: r.surfaceID, Data: data})
	}
}

// dispatchLoaded reports iframe load completion to the bound listener.
func (r *Relay) dispatchLoaded() {
	r.mu.Lock()
	b := r.binding
	r.mu.Unlock()
	if b != nil && b.OnLoad != nil {
		b.OnLoad()
	}
}

// dispatchLoadError reports iframe load failure to the bound listener.
func (r *Relay) dispatchLoadError(err error) {
	r.mu.Lock()
	b := r.binding
	r.mu.Unlock()
	if b != nil && b.OnError != nil {
		b.OnError(err)
	}
}

func (r *Relay) enqueue(f Frame) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return sandbox.ErrSurfaceClosed
	}

	select {
	case r.out <- f:
		return nil
	case <-r.done:
		return sandbox.ErrSurfaceClosed
	}
}

func (r *Relay) writeLoop() {
	for {
		select {
		case f := <-r.out:
			data, err := sonic.Marshal(f)
			if err != nil {
				r.log.Error("frame marshal failed", zap.Error(err))
				continue
			}
			if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// Tear the relay down so callers blocked in enqueue fail
				// with ErrSurfaceClosed instead of waiting on a dead
				// connection.
				r.log.Debug("write failed", zap.Error(err))
				r.Close()
				return
			}
		case <-r.done:
			return
		}
	}
}
