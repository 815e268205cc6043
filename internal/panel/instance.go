package panel

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/viewscreen/viewscreen/internal/content"
	"github.com/viewscreen/viewscreen/internal/envelope"
	"github.com/viewscreen/viewscreen/internal/host"
)

// ErrViewError is the rejection cause when the view reports a failure
// before completing the readiness handshake.
var ErrViewError = errors.New("view reported an error")

// Instance wraps one live surface together with its listener
// registrations and the pending result of the show call that produced
// it. All lifecycle transitions are driven by the owning Manager.
type Instance struct {
	surface  host.Surface
	notifier host.Host
	log      *slog.Logger
	base     string
	position host.Position
	pending  *Pending

	mu       sync.Mutex
	disposed bool
	regs     []host.Registration
	nonce    string
}

// Handle returns the wrapped surface's identifier.
func (p *Instance) Handle() string {
	return p.surface.Handle()
}

// Base returns the location the instance was created or revived for.
func (p *Instance) Base() string {
	return p.base
}

// Nonce returns the script nonce of the most recent render.
func (p *Instance) Nonce() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nonce
}

// refresh re-renders the document with a fresh nonce and applies it to
// the surface, together with the fixed title. Called for the initial
// render and again on every transition to visible; the document is
// always replaced wholesale, never patched.
func (p *Instance) refresh() error {
	doc, nonce, err := content.Build(content.Options{
		Title:     PanelTitle,
		Source:    p.surface.ResourceOrigin(),
		ScriptURI: p.surface.ResolveResource(content.ScriptAsset),
		StyleURI:  p.surface.ResolveResource(content.StyleAsset),
	})
	if err != nil {
		return fmt.Errorf("render panel document: %w", err)
	}
	if err := p.surface.SetTitle(PanelTitle); err != nil {
		return fmt.Errorf("apply panel title: %w", err)
	}
	if err := p.surface.SetContent(doc); err != nil {
		return fmt.Errorf("apply panel document: %w", err)
	}
	p.mu.Lock()
	p.nonce = nonce
	p.mu.Unlock()
	return nil
}

// onMessage dispatches a view→host envelope. The command set is
// closed: ready settles the handshake, error surfaces a notification
// (and rejects a still-pending handshake), and anything else is
// ignored so the protocol can grow without breaking older views.
func (p *Instance) onMessage(env envelope.Envelope) {
	switch env.Command {
	case envelope.CommandReady:
		p.pending.resolve()
	case envelope.CommandError:
		msg, ok := env.DataString()
		if !ok || msg == "" {
			msg = "view reported an unspecified error"
		}
		p.pending.reject(fmt.Errorf("%w: %s", ErrViewError, msg))
		p.notifier.NotifyError(msg)
	default:
		p.log.Debug("ignoring unrecognized view command", "command", env.Command)
	}
}

// onVisibility re-renders the document whenever the surface becomes
// visible again, minting a fresh nonce for the new render.
func (p *Instance) onVisibility(visible bool) {
	if !visible {
		return
	}
	if err := p.refresh(); err != nil {
		p.log.Warn("panel refresh on visibility failed", "handle", p.Handle(), "error", err)
	}
}

// dispose tears the instance down exactly once: it settles a pending
// handshake with a rejection, disposes the surface, then drains the
// listener registrations in reverse registration order. A failing or
// panicking registration never prevents the remaining ones from
// running; failures are aggregated into the returned error.
func (p *Instance) dispose() error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	p.disposed = true
	regs := p.regs
	p.regs = nil
	p.mu.Unlock()

	p.pending.reject(fmt.Errorf("panel disposed before the view became ready: %w", host.ErrSurfaceDisposed))

	var errs []error
	if err := p.surface.Dispose(); err != nil && !errors.Is(err, host.ErrSurfaceDisposed) {
		errs = append(errs, fmt.Errorf("dispose surface %s: %w", p.surface.Handle(), err))
	}
	for i := len(regs) - 1; i >= 0; i-- {
		if err := detach(regs[i]); err != nil {
			errs = append(errs, fmt.Errorf("detach listener %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// detach runs one registration, converting a panic into an error so a
// single misbehaving cleanup cannot skip the rest of the drain.
func detach(reg host.Registration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener cleanup panicked: %v", r)
		}
	}()
	return reg()
}
