package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eduforge/gamehost/internal/domain/fullscreen"
	"github.com/eduforge/gamehost/internal/domain/player"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/shared/id"
)

// helloTimeout bounds how long a fresh connection may idle before
// identifying the game it wants.
const helloTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origins are enforced by the CORS layer in front.
	},
}

// Handler upgrades player connections and pumps their frames.
type Handler struct {
	players *player.Manager
	log     *logging.Logger
}

// NewHandler creates a websocket handler over the player manager.
func NewHandler(players *player.Manager, log *logging.Logger) *Handler {
	return &Handler{players: players, log: log.Named("ws")}
}

// HandleConnection runs one player connection: hello, open, then the
// frame pump until the page disconnects or closes the view.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	relay := NewRelay(conn, h.log)
	defer relay.Close()

	hello, err := h.readHello(conn)
	if err != nil {
		relay.SendError("expected hello frame")
		return
	}

	view, err := h.players.Open(c.Request.Context(), player.OpenRequest{
		GameID:     hello.GameID,
		Restricted: hello.Restricted,
	}, relay, relay)
	if err != nil {
		h.log.Warn("open failed", zap.String("game_id", hello.GameID), zap.Error(err))
		relay.SendError("could not open game")
		return
	}
	defer h.players.Close(view.ID)

	relay.enqueue(Frame{Kind: "opened", PlayerID: view.ID.String(), GameID: view.GameID})
	h.pump(conn, relay, view.ID)
}

func (h *Handler) readHello(conn *websocket.Conn) (*Frame, error) {
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var f Frame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Kind != "hello" || f.GameID == "" {
		return nil, errors.New("malformed hello")
	}
	return &f, nil
}

// pump reads frames until the connection drops. Frames run on this single
// goroutine, which is what makes surface callback delivery sequential.
func (h *Handler) pump(conn *websocket.Conn, relay *Relay, pid id.PlayerID) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.log.Debug("connection closed", zap.Error(err))
			return
		}

		var f Frame
		if err := sonic.Unmarshal(data, &f); err != nil {
			h.log.Debug("unreadable frame dropped", zap.Error(err))
			continue
		}

		switch f.Kind {
		case "guest":
			relay.dispatchGuest(f.Data)

		case "lifecycle":
			switch f.Event {
			case "loaded":
				relay.dispatchLoaded()
			case "load_error":
				relay.dispatchLoadError(errors.New(orDefault(f.Error, "iframe load failed")))
			}

		case "display":
			if err := h.players.HandleDisplayEvent(pid, player.DisplayEvent{
				Kind:   f.Event,
				Target: fullscreen.Target(f.Target),
			}); err != nil {
				return
			}

		case "action":
			if err := h.players.Action(pid, f.Action); err != nil {
				if errors.Is(err, player.ErrNoPlayer) {
					return
				}
				relay.SendError(err.Error())
			}
			if f.Action == "close" {
				return
			}

		case "ping":
			relay.enqueue(Frame{Kind: "pong"})

		default:
			h.log.Debug("unknown frame kind", zap.String("kind", f.Kind))
		}
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
