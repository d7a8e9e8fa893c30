package sandbox

import (
	"context"

	"github.com/eduforge/gamehost/internal/domain/protocol"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/shared/clock"
)

// Report summarizes one headless run of a game document.
type Report struct {
	// Ready is true when the document announced GAME_READY.
	Ready bool `json:"ready"`
	// Messages are the validated protocol messages the document emitted.
	Messages []protocol.Message `json:"messages"`
	// Console holds captured console output, useful for author debugging.
	Console []ConsoleEntry `json:"console"`
}

// Validator runs transformed game documents through pooled headless
// surfaces before they are published. A document that never announces
// GAME_READY headlessly will not do so in a real player view either.
type Validator struct {
	pool *Pool
	clk  clock.Clock
	log  *logging.Logger
}

// NewValidator creates a validator over a fresh pool.
func NewValidator(poolSize int, cfg HeadlessConfig, clk clock.Clock, log *logging.Logger) *Validator {
	return &Validator{
		pool: NewPool(poolSize, cfg, log),
		clk:  clk,
		log:  log.Named("validator"),
	}
}

// Validate loads the document headlessly and reports what it emitted.
func (v *Validator) Validate(ctx context.Context, document string) (*Report, error) {
	surface, err := v.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer v.pool.Release(surface)

	report := &Report{}
	host, err := NewHost(surface, v.clk, v.log)
	if err != nil {
		return nil, err
	}
	host.OnMessage(func(m *protocol.Message) {
		report.Messages = append(report.Messages, *m)
		if m.Type == protocol.TypeReady {
			report.Ready = true
		}
	})

	loadErr := host.Load(document)

	// The host owns the binding but not the pooled surface; detach
	// without closing so the surface can be recycled.
	surface.Unbind()

	report.Console = surface.Console()
	if loadErr != nil {
		return report, loadErr
	}
	return report, nil
}

// Close shuts down the validator's pool.
func (v *Validator) Close() {
	v.pool.Close()
}
