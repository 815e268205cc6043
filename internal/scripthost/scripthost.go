// Package scripthost is the in-process presentation host: it runs
// panel view documents inside embedded JavaScript runtimes instead of
// an external browser. Every navigation gets a fresh runtime, scripts
// execute only when their nonce matches the document's content
// security policy, and the acquireViewHost bridge carries envelopes
// between the view and the controller.
package scripthost

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/viewscreen/viewscreen/internal/host"
)

// ScriptHost creates and tracks script-backed surfaces. It satisfies
// the controller's host contract and additionally records error
// notifications so callers can inspect what views reported.
type ScriptHost struct {
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	surfaces map[string]*Surface
	notes    []string
}

// New returns a host whose surfaces live until Close.
func New(log *slog.Logger) *ScriptHost {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ScriptHost{
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		surfaces: make(map[string]*Surface),
	}
}

// CreateSurface makes a fresh surface under a new handle. The ctx
// only scopes construction; surface lifetime is bound to the host.
func (h *ScriptHost) CreateSurface(ctx context.Context, opts host.SurfaceOptions) (host.Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.New("script host closed")
	}
	handle := uuid.NewString()
	s := newSurface(h, handle, opts)
	h.surfaces[handle] = s
	h.log.Debug("surface created", "handle", handle, "viewType", opts.ViewType)
	return s, nil
}

// RestoreSurface re-creates a surface under a previously issued
// handle, as after a host restart. The host owns the configuration of
// restored surfaces, so no construction options are taken: restored
// panels keep their view type and script access.
func (h *ScriptHost) RestoreSurface(handle, viewType string) (*Surface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.New("script host closed")
	}
	if _, ok := h.surfaces[handle]; ok {
		return nil, errors.New("surface handle already live: " + handle)
	}
	s := newSurface(h, handle, host.SurfaceOptions{
		ViewType:      viewType,
		EnableScripts: true,
	})
	h.surfaces[handle] = s
	h.log.Debug("surface restored", "handle", handle, "viewType", viewType)
	return s, nil
}

// Surface returns the live surface for a handle, if any.
func (h *ScriptHost) Surface(handle string) (*Surface, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.surfaces[handle]
	return s, ok
}

// NotifyError surfaces a view-reported error to the user and records
// it for inspection.
func (h *ScriptHost) NotifyError(msg string) {
	h.mu.Lock()
	h.notes = append(h.notes, msg)
	h.mu.Unlock()
	h.log.Warn("view error notification", "message", msg)
}

// Notifications returns the error notifications received so far.
func (h *ScriptHost) Notifications() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.notes...)
}

func (h *ScriptHost) remove(handle string) {
	h.mu.Lock()
	delete(h.surfaces, handle)
	h.mu.Unlock()
}

// Close disposes every live surface and refuses further creation.
func (h *ScriptHost) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	live := make([]*Surface, 0, len(h.surfaces))
	for _, s := range h.surfaces {
		live = append(live, s)
	}
	h.mu.Unlock()

	h.cancel()
	var errs []error
	for _, s := range live {
		if err := s.Dispose(); err != nil && !errors.Is(err, host.ErrSurfaceDisposed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
