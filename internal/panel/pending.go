package panel

import (
	"context"
	"sync"
)

// Pending is the outcome of a show call, settled exactly once by the
// view's readiness handshake: resolved when the view posts ready,
// rejected when the view reports a load error or the panel is
// disposed first.
type Pending struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve() {
	p.once.Do(func() { close(p.done) })
}

func (p *Pending) reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed once the handshake settles.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the settled outcome: nil for a resolved handshake, the
// rejection cause otherwise. Only valid after Done is closed.
func (p *Pending) Err() error {
	return p.err
}

// Await blocks until the handshake settles or ctx ends.
func (p *Pending) Await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return p.err
	}
}
