package sandbox

import (
	"context"
	"errors"

	"github.com/eduforge/gamehost/internal/infrastructure/logging"
)

// ErrPoolClosed is returned when acquiring from a shut-down pool.
var ErrPoolClosed = errors.New("headless pool is closed")

// Pool holds reusable headless surfaces. VM construction is cheap but not
// free, and validation traffic is bursty around publish time, so instances
// are recycled rather than rebuilt per request.
type Pool struct {
	idle   chan *Headless
	cfg    HeadlessConfig
	log    *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool pre-warms size headless surfaces.
func NewPool(size int, cfg HeadlessConfig, log *logging.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		idle:   make(chan *Headless, size),
		cfg:    cfg,
		log:    log.Named("pool"),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < size; i++ {
		p.idle <- NewHeadless(cfg, log)
	}
	return p
}

// Acquire takes a surface from the pool, blocking until one is free or the
// context ends.
func (p *Pool) Acquire(ctx context.Context) (*Headless, error) {
	select {
	case s := <-p.idle:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrPoolClosed
	}
}

// Release returns a surface to the pool. The caller must have unbound it.
func (p *Pool) Release(s *Headless) {
	s.Unbind()
	select {
	case p.idle <- s:
	case <-p.ctx.Done():
		s.Close()
	}
}

// Close shuts the pool down and tears down idle surfaces.
func (p *Pool) Close() {
	p.cancel()
	for {
		select {
		case s := <-p.idle:
			s.Close()
		default:
			return
		}
	}
}
