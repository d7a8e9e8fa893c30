// Package fullscreen enforces the presentation mode of a player view.
//
// Enforcement is role based: restricted viewers (students) are kept in
// fullscreen while a game is active, unrestricted viewers (teachers,
// reviewers) are never touched. The display is asynchronous; requests are
// fire and forget and outcomes arrive back as events.
package fullscreen

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/infrastructure/monitoring"
	"github.com/eduforge/gamehost/internal/shared/clock"
)

// Target selects what element a fullscreen request applies to.
type Target string

const (
	// TargetSurface requests fullscreen on the game surface itself.
	TargetSurface Target = "surface"
	// TargetDocument requests fullscreen on the whole document, the
	// fallback when the surface request is denied.
	TargetDocument Target = "document"
)

// exitNotice is shown once per fullscreen exit.
const exitNotice = "Fullscreen is required during the game. Returning shortly."

// deniedNotice is shown when every fullscreen path is refused.
const deniedNotice = "Fullscreen is unavailable. The game will run maximized."

// Display is the host's control surface for presentation state. In
// production it relays to the player's browser over the websocket; tests
// use a fake. Calls are fire and forget; results come back as Handle*
// events on the enforcer.
type Display interface {
	RequestFullscreen(target Target)
	ExitFullscreen()
	Maximize()
	ShowNotice(text string)
	SetKeyIntercept(enabled bool)
}

// Config tunes enforcement.
type Config struct {
	// Enforce enables enforcement for this viewer's role.
	Enforce bool
	// RetryCooldown is the wait before re-requesting fullscreen after the
	// viewer exits. Immediate re-entry reads as fighting the user and
	// browsers throttle it.
	RetryCooldown time.Duration
}

// Enforcer keeps one player view in fullscreen while its game is active.
type Enforcer struct {
	display Display
	cfg     Config
	clk     clock.Clock
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu         sync.Mutex
	active     bool
	engaged    bool
	retryTimer clock.Timer
	closed     bool
}

// NewEnforcer creates an enforcer over the given display.
func NewEnforcer(display Display, cfg Config, clk clock.Clock, log *logging.Logger) *Enforcer {
	if cfg.RetryCooldown <= 0 {
		cfg.RetryCooldown = 3 * time.Second
	}
	return &Enforcer{
		display: display,
		cfg:     cfg,
		clk:     clk,
		log:     log.Named("fullscreen"),
	}
}

// WithMetrics attaches the retry counter.
func (e *Enforcer) WithMetrics(m *monitoring.Metrics) *Enforcer {
	e.metrics = m
	return e
}

// Engage starts enforcement when the game becomes active. No-op for
// unrestricted viewers.
func (e *Enforcer) Engage() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cfg.Enforce || e.closed || e.active {
		return
	}
	e.active = true
	e.display.SetKeyIntercept(true)
	e.display.RequestFullscreen(TargetSurface)
}

// Disengage stops enforcement, typically when the game completes or the
// view closes. A viewer still in fullscreen is released from it; they
// keep control of presentation afterwards.
func (e *Enforcer) Disengage() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	if e.engaged {
		e.display.ExitFullscreen()
	}
	e.active = false
	e.engaged = false
	e.stopRetry()
	e.display.SetKeyIntercept(false)
}

// HandleEntered records that the display reached fullscreen.
func (e *Enforcer) HandleEntered() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active || e.closed {
		return
	}
	e.engaged = true
	e.stopRetry()
}

// HandleExited reacts to the viewer leaving fullscreen: one notice, then
// one re-entry request after the cooldown. Repeated exit events inside
// the cooldown window do not stack retries or notices.
func (e *Enforcer) HandleExited() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active || e.closed {
		return
	}
	e.engaged = false
	if e.retryTimer != nil {
		return
	}

	e.display.ShowNotice(exitNotice)
	e.retryTimer = e.clk.AfterFunc(e.cfg.RetryCooldown, e.retry)
	e.log.Debug("fullscreen exit, re-entry scheduled",
		zap.Duration("cooldown", e.cfg.RetryCooldown),
	)
}

// HandleDenied walks the fallback chain: surface denied -> document;
// document denied -> maximize and tell the viewer.
func (e *Enforcer) HandleDenied(target Target) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active || e.closed {
		return
	}

	switch target {
	case TargetSurface:
		e.display.RequestFullscreen(TargetDocument)
	case TargetDocument:
		e.log.Info("fullscreen denied on all targets, maximizing")
		e.display.Maximize()
		e.display.ShowNotice(deniedNotice)
	}
}

// HandleKeyToggle intercepts the viewer's fullscreen key. Restricted
// viewers get a re-request instead of a toggle out.
func (e *Enforcer) HandleKeyToggle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active || e.closed {
		return
	}
	if !e.engaged {
		e.display.RequestFullscreen(TargetSurface)
	}
}

// Close stops enforcement permanently. Synchronous: no display calls are
// made after it returns.
func (e *Enforcer) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.stopRetry()
	if e.active {
		e.active = false
		e.display.SetKeyIntercept(false)
	}
}

// retry fires after the cooldown and re-requests fullscreen.
func (e *Enforcer) retry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retryTimer = nil
	if !e.active || e.closed || e.engaged {
		return
	}
	if e.metrics != nil {
		e.metrics.FullscreenRetries.Inc()
	}
	e.display.RequestFullscreen(TargetSurface)
}

// stopRetry cancels a pending re-entry. Caller holds the lock.
func (e *Enforcer) stopRetry() {
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
}
