// Package panel owns the lifecycle of the commit feed panel: a
// singleton surface created through a host, fed typed envelopes, and
// torn down with exactly-once listener cleanup. The controller slot
// holds at most one live instance; every mutation of the slot goes
// through Show, Create, Revive and Dispose so the invariants stay
// enforceable in one place.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/viewscreen/viewscreen/internal/envelope"
	"github.com/viewscreen/viewscreen/internal/host"
)

// ViewType identifies feed panel surfaces to the host, stable across
// restarts so restored surfaces can be matched back to this
// controller.
const ViewType = "viewscreen.feed"

// PanelTitle is the fixed visible title of every feed panel.
const PanelTitle = "Commit Feed"

// mediaDir is the only subdirectory of the base location a surface
// may serve local resources from.
const mediaDir = "media"

// State describes the controller slot.
type State int

const (
	// StateAbsent means no live instance is tracked.
	StateAbsent State = iota
	// StateCreated means exactly one live instance is tracked.
	StateCreated
)

func (s State) String() string {
	if s == StateCreated {
		return "created"
	}
	return "absent"
}

// Description is a point-in-time snapshot of the tracked instance,
// used for status display and state persistence.
type Description struct {
	Handle   string
	Base     string
	Position host.Position
	Nonce    string
}

// Manager is the singleton panel controller. The zero value is not
// usable; construct with NewManager.
type Manager struct {
	host host.Host
	log  *slog.Logger

	mu      sync.Mutex
	current *Instance
}

// NewManager returns a controller with an empty slot. A nil logger
// falls back to slog.Default.
func NewManager(h host.Host, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{host: h, log: log}
}

// State reports whether an instance is currently tracked.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return StateCreated
	}
	return StateAbsent
}

// Describe snapshots the tracked instance. The second return is false
// when the slot is empty.
func (m *Manager) Describe() (Description, bool) {
	m.mu.Lock()
	p := m.current
	m.mu.Unlock()
	if p == nil {
		return Description{}, false
	}
	return Description{
		Handle:   p.Handle(),
		Base:     p.base,
		Position: p.position,
		Nonce:    p.Nonce(),
	}, true
}

// Show reveals the tracked instance at the given position, or creates
// one when the slot is empty. The returned Pending settles with the
// readiness handshake; repeated Show calls with no intervening
// disposal return the same Pending (settled or not) rather than
// constructing a second surface. A rejected or hung handshake is not
// remedied by calling Show again; the caller decides whether to
// dispose and recreate.
func (m *Manager) Show(ctx context.Context, base string, position host.Position) (*Pending, error) {
	m.mu.Lock()
	if p := m.current; p != nil {
		surface, pending := p.surface, p.pending
		m.mu.Unlock()
		if err := surface.Reveal(position); err != nil {
			return nil, fmt.Errorf("reveal panel: %w", err)
		}
		return pending, nil
	}
	m.mu.Unlock()
	return m.Create(ctx, base, position)
}

// Create constructs a new surface with the fixed view type and title,
// scripts enabled and local resources restricted to the base's media
// directory, then installs it as the tracked instance. Create never
// checks the slot: calling it while an instance is live replaces the
// reference and orphans the previous instance, which is a caller
// error. Use Show for reveal-or-create semantics.
func (m *Manager) Create(ctx context.Context, base string, position host.Position) (*Pending, error) {
	surface, err := m.host.CreateSurface(ctx, host.SurfaceOptions{
		ViewType:      ViewType,
		Title:         PanelTitle,
		Position:      position,
		EnableScripts: true,
		ResourceRoots: []string{filepath.Join(base, mediaDir)},
	})
	if err != nil {
		return nil, fmt.Errorf("create panel surface: %w", err)
	}
	p, err := m.bind(surface, base, position)
	if err != nil {
		return nil, err
	}
	m.install(p)
	return p.pending, nil
}

// Revive re-wraps a surface the host restored across a restart and
// installs it as the tracked instance. The surface keeps the
// configuration the host restored it with; none of Create's
// construction options are re-applied. The document is still
// re-rendered, since content does not survive a restart.
func (m *Manager) Revive(surface host.Surface, base string) error {
	p, err := m.bind(surface, base, host.PositionSide)
	if err != nil {
		return err
	}
	m.install(p)
	return nil
}

// PostMessage delivers a host→view envelope to the tracked instance.
// With an empty slot (or a surface that disappeared underneath) this
// is a silent no-op: delivery is at-most-once and nothing is queued.
func (m *Manager) PostMessage(env envelope.Envelope) error {
	m.mu.Lock()
	p := m.current
	m.mu.Unlock()
	if p == nil {
		return nil
	}
	if err := p.surface.Post(env); err != nil && !errors.Is(err, host.ErrSurfaceDisposed) {
		return fmt.Errorf("post %q envelope: %w", env.Command, err)
	}
	return nil
}

// Dispose clears the slot and tears down the tracked instance. The
// reference is cleared before any teardown runs, so re-entrant calls
// triggered by the disposal sequence observe an empty slot and no-op.
// Disposing an empty slot is a no-op. Listener cleanup failures are
// aggregated into the returned error; the slot is empty regardless.
func (m *Manager) Dispose() error {
	m.mu.Lock()
	p := m.current
	m.current = nil
	m.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.dispose()
}

// bind wires an instance around a surface: listeners first (so a
// ready posted during the initial render is not lost), then the
// initial document render. On render failure the half-built instance
// is torn down and never installed.
func (m *Manager) bind(surface host.Surface, base string, position host.Position) (*Instance, error) {
	p := &Instance{
		surface:  surface,
		notifier: m.host,
		log:      m.log,
		base:     base,
		position: position,
		pending:  newPending(),
	}
	p.regs = append(p.regs,
		surface.OnMessage(p.onMessage),
		surface.OnVisibility(p.onVisibility),
		surface.OnDisposed(func() { m.surfaceDisposed(p) }),
	)
	if err := p.refresh(); err != nil {
		if derr := p.dispose(); derr != nil {
			m.log.Warn("cleanup of failed panel construction", "error", derr)
		}
		return nil, err
	}
	return p, nil
}

// install makes p the tracked instance, unconditionally.
func (m *Manager) install(p *Instance) {
	m.mu.Lock()
	m.current = p
	m.mu.Unlock()
	m.log.Debug("panel instance installed", "handle", p.Handle(), "base", p.base)
}

// surfaceDisposed reacts to the host or user closing the surface out
// from under the controller: the slot is released first, then the
// instance drains its registrations.
func (m *Manager) surfaceDisposed(p *Instance) {
	m.mu.Lock()
	if m.current == p {
		m.current = nil
	}
	m.mu.Unlock()
	if err := p.dispose(); err != nil {
		m.log.Warn("panel teardown after surface disposal", "handle", p.Handle(), "error", err)
	}
}
