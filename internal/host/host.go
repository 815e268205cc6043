// Package host abstracts the surface primitives the panel controller
// consumes: constructing a surface, revealing it at a position, wiring
// lifecycle listeners, and resolving embedded resources to servable
// URIs. The controller is a thin adapter over exactly these
// primitives; both the in-process script host and the browser host
// implement them.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viewscreen/viewscreen/internal/envelope"
)

// ErrSurfaceDisposed is returned by surface operations invoked after
// the surface was disposed.
var ErrSurfaceDisposed = errors.New("surface disposed")

// Position selects the column a surface is revealed in.
type Position int

const (
	// PositionSide reveals the surface beside the caller's column.
	// This is the default placement.
	PositionSide Position = iota
	// PositionActive reveals the surface in the caller's own column.
	PositionActive
)

func (p Position) String() string {
	if p == PositionActive {
		return "active"
	}
	return "side"
}

// ParsePosition maps the textual form used by flags and the console
// back to a Position. The empty string selects the default.
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "side":
		return PositionSide, nil
	case "active":
		return PositionActive, nil
	default:
		return PositionSide, fmt.Errorf("unknown position %q (want side or active)", s)
	}
}

// SurfaceOptions carries the construction-time configuration of a
// surface. A revived surface keeps whatever configuration the host
// restored it with; these options are never re-applied to it.
type SurfaceOptions struct {
	// ViewType identifies the kind of surface to the host.
	ViewType string

	// Title is the surface's visible title.
	Title string

	// Position selects the reveal column.
	Position Position

	// EnableScripts permits script execution inside the surface.
	EnableScripts bool

	// ResourceRoots lists the only local directories the surface may
	// serve resources from.
	ResourceRoots []string
}

// Registration detaches a listener when called. Implementations
// tolerate a second call and detachment after surface disposal.
type Registration func() error

// Surface is one live panel surface owned by a host.
type Surface interface {
	// Handle identifies the surface, stable across host restarts so a
	// restored surface can be revived.
	Handle() string

	// Reveal brings the surface to the foreground at the given
	// position, without rebuilding it.
	Reveal(position Position) error

	// SetTitle updates the surface's visible title.
	SetTitle(title string) error

	// SetContent replaces the surface's document wholesale. Hosts
	// treat this as a navigation, not a patch.
	SetContent(doc []byte) error

	// Post delivers a host→view envelope. Delivery is at-most-once;
	// nothing is queued for a view that is not listening.
	Post(env envelope.Envelope) error

	// Visible reports whether the surface is currently visible.
	Visible() bool

	// Dispose destroys the surface and fires the disposal listeners.
	Dispose() error

	// OnDisposed registers fn to run when the surface is disposed,
	// whether through Dispose or the user closing it.
	OnDisposed(fn func()) Registration

	// OnMessage registers fn for view→host envelopes.
	OnMessage(fn func(envelope.Envelope)) Registration

	// OnVisibility registers fn for visibility transitions.
	OnVisibility(fn func(visible bool)) Registration

	// ResourceOrigin returns the origin token resources are served
	// from, quoted verbatim in the content security policy.
	ResourceOrigin() string

	// ResolveResource maps an embedded asset path to the URI the
	// surface loads it from.
	ResolveResource(path string) string
}

// Host constructs surfaces and receives error notifications from the
// panel controller.
type Host interface {
	// CreateSurface constructs and reveals a new surface.
	CreateSurface(ctx context.Context, opts SurfaceOptions) (Surface, error)

	// NotifyError surfaces a non-fatal error message to the user.
	NotifyError(msg string)
}
