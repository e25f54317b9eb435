package render

import (
	"context"
	"sync"
)

// Engine is the map renderer. Ready closes once its style has loaded; Apply
// must not be called before that.
type Engine interface {
	Ready() <-chan struct{}
	Apply(Update) error
}

// Painter serializes updates to one Engine. Updates issued before the engine
// is ready are held, and only the latest is applied once it is.
type Painter struct {
	engine Engine

	mu      sync.Mutex
	ready   bool
	pending *Update
	flushed chan struct{}
}

// NewPainter watches e for readiness until ctx ends.
func NewPainter(ctx context.Context, e Engine) *Painter {
	p := &Painter{engine: e, flushed: make(chan struct{})}
	go p.wait(ctx)
	return p
}

// Paint applies u, or holds it if the engine is not ready yet. Holding is not
// an error.
func (p *Painter) Paint(u Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		p.pending = &u
		return nil
	}
	return p.engine.Apply(u)
}

// Pending reports whether an update is waiting for readiness.
func (p *Painter) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

// Flushed closes once the engine became ready and any held update was
// applied.
func (p *Painter) Flushed() <-chan struct{} { return p.flushed }

func (p *Painter) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-p.engine.Ready():
	}

	p.mu.Lock()
	p.ready = true
	pending := p.pending
	p.pending = nil
	var err error
	if pending != nil {
		err = p.engine.Apply(*pending)
	}
	p.mu.Unlock()
	close(p.flushed)

	if err != nil {
		logApplyError(pending.Metric, err)
	}
}
