// Package player composes the pieces of one open player view: catalog
// content through the transformer, a sandboxed surface behind a host, the
// session state machine, and fullscreen enforcement.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eduforge/gamehost/internal/domain/catalog"
	"github.com/eduforge/gamehost/internal/domain/content"
	"github.com/eduforge/gamehost/internal/domain/fullscreen"
	"github.com/eduforge/gamehost/internal/domain/protocol"
	"github.com/eduforge/gamehost/internal/domain/sandbox"
	"github.com/eduforge/gamehost/internal/domain/session"
	"github.com/eduforge/gamehost/internal/infrastructure/config"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/infrastructure/monitoring"
	"github.com/eduforge/gamehost/internal/shared/clock"
	"github.com/eduforge/gamehost/internal/shared/id"
)

var (
	// ErrNoPlayer marks an unknown player view ID.
	ErrNoPlayer = errors.New("player view not found")
	// ErrUnknownAction marks an unsupported player action.
	ErrUnknownAction = errors.New("unknown player action")
)

// Source provides game metadata and raw content. Satisfied by the catalog
// client.
type Source interface {
	Game(ctx context.Context, gameID string) (*catalog.Game, error)
	Content(ctx context.Context, gameID string) (string, error)
}

// OpenRequest describes a view being opened.
type OpenRequest struct {
	GameID string
	// Restricted enables fullscreen enforcement for this viewer.
	Restricted bool
}

// View is an API-facing snapshot of one open player view.
type View struct {
	ID               id.PlayerID     `json:"id"`
	GameID           string          `json:"gameId"`
	Title            string          `json:"title"`
	EstimatedMinutes int             `json:"estimatedMinutes,omitempty"`
	Session          session.Session `json:"session"`
	OpenedAt         time.Time       `json:"openedAt"`
}

// Player holds the live pieces of one open view.
type player struct {
	id         id.PlayerID
	game       catalog.Game
	document   string
	host       *sandbox.Host
	controller *session.Controller
	enforcer   *fullscreen.Enforcer
	openedAt   time.Time
}

// Manager owns all open player views.
type Manager struct {
	source      Source
	transformer *content.Transformer
	reporter    session.Reporter
	fsCfg       config.FullscreenConfig
	clk         clock.Clock
	log         *logging.Logger
	metrics     *monitoring.Metrics

	mu      sync.Mutex
	players map[id.PlayerID]*player
}

// NewManager creates a player view manager.
func NewManager(source Source, transformer *content.Transformer, reporter session.Reporter,
	fsCfg config.FullscreenConfig, clk clock.Clock, log *logging.Logger) *Manager {
	return &Manager{
		source:      source,
		transformer: transformer,
		reporter:    reporter,
		fsCfg:       fsCfg,
		clk:         clk,
		log:         log.Named("player"),
		players:     make(map[id.PlayerID]*player),
	}
}

// WithMetrics attaches counters and the live gauge.
func (m *Manager) WithMetrics(mm *monitoring.Metrics) *Manager {
	m.metrics = mm
	return m
}

// Open creates a player view for the game on the given surface and
// display. The document loads immediately; an unreachable catalog yields
// the fallback document and an errored session rather than a dead view.
func (m *Manager) Open(ctx context.Context, req OpenRequest, surface sandbox.Surface, display fullscreen.Display) (View, error) {
	game, err := m.source.Game(ctx, req.GameID)
	if err != nil {
		return View{}, fmt.Errorf("resolve game: %w", err)
	}

	var loadErr error
	document := ""
	raw, err := m.source.Content(ctx, req.GameID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return View{}, err
	case err != nil:
		loadErr = err
		document = content.FallbackDocument
	default:
		document = m.transformer.Transform(raw)
	}

	host, err := sandbox.NewHost(surface, m.clk, m.log)
	if err != nil {
		return View{}, fmt.Errorf("bind surface: %w", err)
	}
	host.WithMetrics(m.metrics)

	controller := session.NewController(game.ID, m.reporter, m.clk, m.log).WithMetrics(m.metrics)
	enforcer := fullscreen.NewEnforcer(display, fullscreen.Config{
		Enforce:       req.Restricted,
		RetryCooldown: m.fsCfg.RetryCooldown,
	}, m.clk, m.log).WithMetrics(m.metrics)

	host.OnMessage(func(msg *protocol.Message) {
		controller.HandleMessage(msg)
		switch msg.Type {
		case protocol.TypeStarted:
			enforcer.Engage()
		case protocol.TypeCompleted:
			enforcer.Disengage()
		}
	})
	host.OnError(controller.HandleLoadError)
	if loadErr != nil {
		failure := loadErr
		host.OnLoad(func() { controller.HandleLoadError(failure) })
	}

	// Restricted viewers are pushed into fullscreen as soon as the view
	// opens, not only once the game starts.
	if req.Restricted {
		enforcer.Engage()
	}

	p := &player{
		id:         id.NewPlayerID(),
		game:       *game,
		document:   document,
		host:       host,
		controller: controller,
		enforcer:   enforcer,
		openedAt:   m.clk.Now(),
	}

	if err := host.Load(document); err != nil {
		controller.HandleLoadError(err)
	}

	m.mu.Lock()
	m.players[p.id] = p
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.PlayersLive.Inc()
	}
	m.log.Info("player view opened",
		zap.String("player_id", p.id.String()),
		zap.String("game_id", game.ID),
		zap.Bool("restricted", req.Restricted),
	)
	return m.view(p), nil
}

// Get returns a snapshot of one view.
func (m *Manager) Get(playerID id.PlayerID) (View, error) {
	p, err := m.lookup(playerID)
	if err != nil {
		return View{}, err
	}
	return m.view(p), nil
}

// List returns snapshots of all open views.
func (m *Manager) List() []View {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]View, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, m.view(p))
	}
	return out
}

// Document returns the transformed document served into the view.
func (m *Manager) Document(playerID id.PlayerID) (string, error) {
	p, err := m.lookup(playerID)
	if err != nil {
		return "", err
	}
	return p.document, nil
}

// Action applies a host-side player action.
func (m *Manager) Action(playerID id.PlayerID, action string) error {
	p, err := m.lookup(playerID)
	if err != nil {
		return err
	}

	switch action {
	case "pause":
		p.controller.Pause()
	case "resume":
		p.controller.Resume()
	case "restart":
		p.controller.Restart()
		if err := p.host.Load(p.document); err != nil {
			p.controller.HandleLoadError(err)
		}
	case "close":
		return m.Close(playerID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}

// DisplayEvent routes a presentation event from the viewer's browser to
// the view's enforcer.
type DisplayEvent struct {
	Kind   string            `json:"kind"`
	Target fullscreen.Target `json:"target,omitempty"`
}

// HandleDisplayEvent applies one display event.
func (m *Manager) HandleDisplayEvent(playerID id.PlayerID, ev DisplayEvent) error {
	p, err := m.lookup(playerID)
	if err != nil {
		return err
	}
	switch ev.Kind {
	case "entered":
		p.enforcer.HandleEntered()
	case "exited":
		p.enforcer.HandleExited()
	case "denied":
		p.enforcer.HandleDenied(ev.Target)
	case "key_toggle":
		p.enforcer.HandleKeyToggle()
	default:
		m.log.Debug("unknown display event", zap.String("kind", ev.Kind))
	}
	return nil
}

// Close tears one view down: surface first so no more messages arrive,
// then the session (with its partial save), then enforcement.
func (m *Manager) Close(playerID id.PlayerID) error {
	m.mu.Lock()
	p, ok := m.players[playerID]
	if ok {
		delete(m.players, playerID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNoPlayer
	}

	if err := p.host.Close(); err != nil {
		m.log.Warn("surface close failed", zap.Error(err))
	}
	p.controller.Close()
	p.enforcer.Close()

	if m.metrics != nil {
		m.metrics.PlayersLive.Dec()
	}
	m.log.Info("player view closed", zap.String("player_id", playerID.String()))
	return nil
}

// CloseAll tears down every open view, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]id.PlayerID, 0, len(m.players))
	for pid := range m.players {
		ids = append(ids, pid)
	}
	m.mu.Unlock()

	for _, pid := range ids {
		if err := m.Close(pid); err != nil && !errors.Is(err, ErrNoPlayer) {
			m.log.Warn("close during shutdown failed", zap.Error(err))
		}
	}
}

func (m *Manager) lookup(playerID id.PlayerID) (*player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return nil, ErrNoPlayer
	}
	return p, nil
}

func (m *Manager) view(p *player) View {
	return View{
		ID:               p.id,
		GameID:           p.game.ID,
		Title:            p.game.Title,
		EstimatedMinutes: p.game.EstimatedMinutes,
		Session:          p.controller.Snapshot(),
		OpenedAt:         p.openedAt,
	}
}
