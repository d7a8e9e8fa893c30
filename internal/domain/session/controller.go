// Package session tracks one play attempt: its lifecycle state, score,
// progress, and elapsed time, and the reporting of results when it ends.
//
// Elapsed time is wall-clock based. The controller anchors a start instant
// when play begins and derives whole elapsed seconds from the clock on
// every tick, so a stalled tick loop cannot under-count.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eduforge/gamehost/internal/domain/protocol"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/infrastructure/monitoring"
	"github.com/eduforge/gamehost/internal/shared/clock"
	"github.com/eduforge/gamehost/internal/shared/id"
)

// State is a session lifecycle state.
type State string

const (
	// StateLoading covers the window between opening the player view and
	// the game announcing readiness.
	StateLoading State = "loading"
	// StateReady means the game announced GAME_READY but play has not begun.
	StateReady State = "ready"
	// StatePlaying means the timer is running.
	StatePlaying State = "playing"
	// StatePaused freezes elapsed time until resume.
	StatePaused State = "paused"
	// StateCompleted is terminal for the attempt; results are final.
	StateCompleted State = "completed"
	// StateErrored means the surface failed to load the game.
	StateErrored State = "errored"
)

// Session is a snapshot of one play attempt.
type Session struct {
	ID             id.SessionID `json:"id"`
	GameID         string       `json:"gameId"`
	State          State        `json:"state"`
	Score          int          `json:"score"`
	Progress       float64      `json:"progress"`
	ElapsedSeconds int          `json:"elapsedSeconds"`
	StartedAt      time.Time    `json:"startedAt"`
	CompletedAt    time.Time    `json:"completedAt"`
}

// Summary is the result record persisted when a session ends.
type Summary struct {
	GameID           string       `json:"gameId"`
	SessionID        id.SessionID `json:"sessionId"`
	Score            int          `json:"score"`
	TimeSpentSeconds int          `json:"timeSpentSeconds"`
	Progress         float64      `json:"progress"`
	Completed        bool         `json:"completed"`
}

// Reporter persists session results. Delivery is best effort; the
// controller logs failures and never surfaces them to the player.
type Reporter interface {
	Report(ctx context.Context, s Summary) error
}

// Controller owns the state machine for one play attempt. Its inputs are
// guest protocol messages, host player actions, and clock ticks; its
// single output is at most one result report per attempt.
type Controller struct {
	clk      clock.Clock
	log      *logging.Logger
	metrics  *monitoring.Metrics
	reporter Reporter

	mu          sync.Mutex
	sess        Session
	startAnchor time.Time
	ticker      clock.Ticker
	reported    bool
	closed      bool
}

// NewController opens a fresh attempt for the given game.
func NewController(gameID string, reporter Reporter, clk clock.Clock, log *logging.Logger) *Controller {
	c := &Controller{
		clk:      clk,
		log:      log.Named("session"),
		reporter: reporter,
	}
	c.reset(gameID)
	return c
}

// WithMetrics attaches session counters.
func (c *Controller) WithMetrics(m *monitoring.Metrics) *Controller {
	c.metrics = m
	if m != nil {
		m.SessionsOpened.Inc()
	}
	return c
}

// reset installs a fresh zeroed session. Caller holds no lock.
func (c *Controller) reset(gameID string) {
	c.sess = Session{
		ID:     id.NewSessionID(),
		GameID: gameID,
		State:  StateLoading,
	}
	c.startAnchor = time.Time{}
	c.reported = false
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// HandleMessage applies one validated guest message. Unknown combinations
// of message and state are ignored; untrusted content cannot force an
// invalid transition.
func (c *Controller) HandleMessage(m *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.sess.State == StateCompleted {
		if m.Type == protocol.TypeCompleted {
			c.log.Debug("duplicate completion ignored", zap.String("session_id", c.sess.ID.String()))
		}
		return
	}

	switch m.Type {
	case protocol.TypeReady:
		if c.sess.State == StateLoading {
			c.sess.State = StateReady
			c.log.Info("game ready", zap.String("session_id", c.sess.ID.String()))
		}

	case protocol.TypeStarted:
		if c.sess.State == StateReady || c.sess.State == StateLoading {
			c.beginPlay()
		}

	case protocol.TypeScoreUpdate:
		if m.Payload.Score != nil && c.active() {
			c.sess.Score = *m.Payload.Score
		}

	case protocol.TypeProgressUpdate:
		if m.Payload.Progress != nil && c.active() {
			c.sess.Progress = clampProgress(*m.Payload.Progress)
		}

	case protocol.TypeTimeUpdate:
		// Informational only. The host clock is authoritative for
		// elapsed time; guest-reported values are not trusted.

	case protocol.TypeCompleted:
		c.complete(m.Payload)
	}
}

// HandleLoadError moves the attempt to the errored state. The surface
// could not load the game; play never starts.
func (c *Controller) HandleLoadError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.sess.State == StateCompleted || c.sess.State == StateErrored {
		return
	}
	c.sess.State = StateErrored
	c.stopTicker()
	c.log.Warn("game load failed",
		zap.String("session_id", c.sess.ID.String()),
		zap.Error(err),
	)
	if c.metrics != nil {
		c.metrics.SessionsErrored.Inc()
	}
}

// Pause freezes elapsed time. Only a playing session can pause.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.sess.State != StatePlaying {
		return
	}
	c.sess.ElapsedSeconds = c.elapsed()
	c.sess.State = StatePaused
}

// Resume re-anchors the wall clock so the paused stretch does not count.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.sess.State != StatePaused {
		return
	}
	c.startAnchor = c.clk.Now().Add(-time.Duration(c.sess.ElapsedSeconds) * time.Second)
	c.sess.State = StatePlaying
}

// Restart abandons the current attempt without reporting it and opens a
// fresh zeroed session. The caller reloads the game document.
func (c *Controller) Restart() Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.sess
	}
	c.stopTicker()
	old := c.sess.ID
	c.reset(c.sess.GameID)
	c.log.Info("session restarted",
		zap.String("old_session_id", old.String()),
		zap.String("session_id", c.sess.ID.String()),
	)
	if c.metrics != nil {
		c.metrics.SessionsOpened.Inc()
	}
	return c.sess
}

// Close ends the attempt. An incomplete session with any elapsed time gets
// one best-effort partial save; a completed or never-started one does not.
// Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTicker()

	var partial *Summary
	if c.sess.State != StateCompleted && !c.reported {
		if c.sess.State == StatePlaying {
			c.sess.ElapsedSeconds = c.elapsed()
		}
		if c.sess.ElapsedSeconds > 0 {
			c.reported = true
			s := c.summary(false)
			partial = &s
		}
	}
	c.mu.Unlock()

	if partial != nil {
		if c.metrics != nil {
			c.metrics.SessionsPartial.Inc()
		}
		c.deliver(*partial)
	}
}

// beginPlay transitions to playing and starts the 1Hz tick loop. Caller
// holds the lock.
func (c *Controller) beginPlay() {
	now := c.clk.Now()
	c.sess.State = StatePlaying
	c.sess.StartedAt = now
	c.startAnchor = now
	c.sess.ElapsedSeconds = 0

	c.ticker = c.clk.NewTicker(time.Second)
	go c.run(c.ticker)
	c.log.Info("play started", zap.String("session_id", c.sess.ID.String()))
}

// complete finalizes the attempt. Payload values win over host-tracked
// ones when present. Caller holds the lock.
func (c *Controller) complete(p protocol.Payload) {
	if c.sess.State == StatePlaying {
		c.sess.ElapsedSeconds = c.elapsed()
	}
	if p.Score != nil {
		c.sess.Score = *p.Score
	}
	if p.TimeSpent != nil {
		c.sess.ElapsedSeconds = *p.TimeSpent
	}
	if p.Progress != nil {
		c.sess.Progress = clampProgress(*p.Progress)
	} else {
		c.sess.Progress = 100
	}

	c.sess.State = StateCompleted
	c.sess.CompletedAt = c.clk.Now()
	c.stopTicker()

	c.log.Info("game completed",
		zap.String("session_id", c.sess.ID.String()),
		zap.Int("score", c.sess.Score),
		zap.Int("time_spent_seconds", c.sess.ElapsedSeconds),
	)
	if c.metrics != nil {
		c.metrics.SessionsCompleted.Inc()
	}

	if !c.reported {
		c.reported = true
		s := c.summary(true)
		// Reporting happens outside the lock; a slow results backend
		// must not block message handling.
		go c.deliver(s)
	}
}

func (c *Controller) summary(completed bool) Summary {
	return Summary{
		GameID:           c.sess.GameID,
		SessionID:        c.sess.ID,
		Score:            c.sess.Score,
		TimeSpentSeconds: c.sess.ElapsedSeconds,
		Progress:         c.sess.Progress,
		Completed:        completed,
	}
}

func (c *Controller) deliver(s Summary) {
	if c.reporter == nil {
		return
	}
	if err := c.reporter.Report(context.Background(), s); err != nil {
		c.log.Warn("result report failed",
			zap.String("session_id", s.SessionID.String()),
			zap.Error(err),
		)
	}
}

// run pumps ticker ticks into the state machine until the ticker stops.
func (c *Controller) run(t clock.Ticker) {
	for range t.Chan() {
		c.tick()
	}
}

// tick refreshes elapsed time from the wall clock.
func (c *Controller) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sess.State != StatePlaying {
		return
	}
	c.sess.ElapsedSeconds = c.elapsed()
}

// elapsed derives whole seconds since the anchor. Caller holds the lock.
func (c *Controller) elapsed() int {
	if c.startAnchor.IsZero() {
		return c.sess.ElapsedSeconds
	}
	return int(c.clk.Now().Sub(c.startAnchor) / time.Second)
}

// stopTicker halts the tick loop if one is running. Caller holds the lock.
func (c *Controller) stopTicker() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

// active reports whether score and progress updates apply. Caller holds
// the lock.
func (c *Controller) active() bool {
	switch c.sess.State {
	case StateReady, StatePlaying, StatePaused:
		return true
	}
	return false
}

func clampProgress(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
