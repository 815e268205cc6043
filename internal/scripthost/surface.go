package scripthost

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/viewscreen/viewscreen/internal/content"
	"github.com/viewscreen/viewscreen/internal/envelope"
	"github.com/viewscreen/viewscreen/internal/host"
)

// resourceScheme is the origin token granted to panel documents; the
// content policy allows styles and images from it, and resolved
// resource URIs are rooted under it.
const resourceScheme = "viewscreen-resource:"

// viewChannel pairs the view's registered message handler with the
// runtime it belongs to. A handler must only ever be invoked on its
// own runtime's loop; navigation swaps the whole pair out.
type viewChannel struct {
	rt      *Runtime
	handler goja.Callable
}

// Surface hosts one panel document inside an embedded JavaScript
// runtime. Each navigation parses the rendered document, enforces the
// script nonce against the document's content security policy, and
// runs the authorized scripts in a fresh runtime with the
// acquireViewHost bridge installed.
type Surface struct {
	owner *ScriptHost
	log   *slog.Logger
	ctx   context.Context

	handle string
	opts   host.SurfaceOptions

	mu       sync.Mutex
	disposed bool
	visible  bool
	title    string
	doc      []byte
	rt       *Runtime
	view     *viewChannel

	nextReg       int
	msgListeners  map[int]func(envelope.Envelope)
	visListeners  map[int]func(bool)
	dispListeners map[int]func()
}

func newSurface(owner *ScriptHost, handle string, opts host.SurfaceOptions) *Surface {
	return &Surface{
		owner:         owner,
		log:           owner.log,
		ctx:           owner.ctx,
		handle:        handle,
		opts:          opts,
		visible:       true,
		msgListeners:  make(map[int]func(envelope.Envelope)),
		visListeners:  make(map[int]func(bool)),
		dispListeners: make(map[int]func()),
	}
}

// Handle identifies the surface for the life of the host process and
// across restarts via the saved panel state.
func (s *Surface) Handle() string { return s.handle }

// ViewType reports the type the surface was created with.
func (s *Surface) ViewType() string { return s.opts.ViewType }

// Visible reports whether the surface is currently presented.
func (s *Surface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible && !s.disposed
}

// Title returns the last applied surface title.
func (s *Surface) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Document returns a copy of the current document markup.
func (s *Surface) Document() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.doc...)
}

// ResourceOrigin returns the source token policies may grant.
func (s *Surface) ResourceOrigin() string { return resourceScheme }

// ResolveResource maps an asset path to the URI the view loads it
// from.
func (s *Surface) ResolveResource(path string) string {
	return resourceScheme + "/" + strings.TrimPrefix(path, "/")
}

// SetTitle applies the surface title.
func (s *Surface) SetTitle(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return host.ErrSurfaceDisposed
	}
	s.title = title
	return nil
}

// Reveal presents the surface at the given position, making it
// visible if it was hidden.
func (s *Surface) Reveal(position host.Position) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return host.ErrSurfaceDisposed
	}
	s.opts.Position = position
	s.mu.Unlock()
	s.SetVisible(true)
	return nil
}

// SetVisible transitions presentation state and informs visibility
// listeners. Transitions to visible make the controller re-render, so
// a hidden surface holds no promise of a live script world.
func (s *Surface) SetVisible(visible bool) {
	s.mu.Lock()
	if s.disposed || s.visible == visible {
		s.mu.Unlock()
		return
	}
	s.visible = visible
	listeners := make([]func(bool), 0, len(s.visListeners))
	for _, fn := range s.visListeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(visible)
	}
}

// SetContent navigates the surface to a new document. The previous
// runtime is discarded, the document's policy nonce is recovered, and
// only scripts carrying that exact nonce execute; everything else is
// blocked and logged. Script failures do not fail the navigation,
// matching how a browser treats a broken script tag.
func (s *Surface) SetContent(doc []byte) error {
	parsed := parseViewDocument(doc)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return host.ErrSurfaceDisposed
	}
	old := s.rt
	s.rt = nil
	s.view = nil
	s.doc = append([]byte(nil), doc...)
	runScripts := s.opts.EnableScripts
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	if !runScripts {
		return nil
	}

	rt, err := NewRuntime(s.ctx)
	if err != nil {
		return err
	}
	if err := rt.RunSync(func(vm *goja.Runtime) error {
		return vm.Set("acquireViewHost", s.bridgeConstructor(rt, vm))
	}); err != nil {
		_ = rt.Close()
		return err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		_ = rt.Close()
		return host.ErrSurfaceDisposed
	}
	s.rt = rt
	s.mu.Unlock()

	for _, ref := range parsed.Scripts {
		if parsed.PolicyNonce == "" || ref.Nonce != parsed.PolicyNonce {
			s.log.Warn("blocking script without matching nonce",
				"handle", s.handle, "src", ref.Src)
			continue
		}
		name, code, err := s.scriptSource(ref)
		if err != nil {
			s.log.Warn("cannot load view script",
				"handle", s.handle, "src", ref.Src, "error", err)
			continue
		}
		if err := rt.LoadScript(name, code); err != nil {
			s.log.Warn("view script failed",
				"handle", s.handle, "script", name, "error", err)
		}
	}
	return nil
}

// scriptSource resolves a script tag to runnable code: an inline body
// directly, or a resolved resource URI from the embedded assets.
func (s *Surface) scriptSource(ref scriptRef) (name, code string, err error) {
	if ref.Src == "" {
		return "inline", ref.Body, nil
	}
	path := strings.TrimPrefix(strings.TrimPrefix(ref.Src, resourceScheme), "/")
	raw, err := fs.ReadFile(content.Assets, path)
	if err != nil {
		return "", "", err
	}
	return path, string(raw), nil
}

// bridgeConstructor builds the acquireViewHost global for one
// runtime. Each call from view code yields a channel object whose
// postMessage forwards envelopes to host listeners and whose
// onMessage registers the view's inbound handler.
func (s *Surface) bridgeConstructor(rt *Runtime, vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		bridge := vm.NewObject()
		_ = bridge.Set("postMessage", func(call goja.FunctionCall) goja.Value {
			env, ok := exportEnvelope(vm, call.Argument(0))
			if !ok {
				s.log.Debug("dropping malformed view message", "handle", s.handle)
				return goja.Undefined()
			}
			s.dispatchToHost(env)
			return goja.Undefined()
		})
		_ = bridge.Set("onMessage", func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				return goja.Undefined()
			}
			s.mu.Lock()
			if !s.disposed {
				s.view = &viewChannel{rt: rt, handler: fn}
			}
			s.mu.Unlock()
			return goja.Undefined()
		})
		return bridge
	}
}

// exportEnvelope reads a view-posted value into an envelope. Values
// without a command discriminant are not envelopes and are dropped.
func exportEnvelope(vm *goja.Runtime, v goja.Value) (envelope.Envelope, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return envelope.Envelope{}, false
	}
	obj := v.ToObject(vm)
	cmd := obj.Get("command")
	if cmd == nil || goja.IsUndefined(cmd) || goja.IsNull(cmd) {
		return envelope.Envelope{}, false
	}
	name := cmd.String()
	if name == "" {
		return envelope.Envelope{}, false
	}
	env := envelope.Envelope{Command: envelope.Command(name)}
	if data := obj.Get("data"); data != nil && !goja.IsUndefined(data) && !goja.IsNull(data) {
		env.Data = data.Export()
	}
	return env, true
}

// dispatchToHost hands a view envelope to every registered host
// listener. Runs on the loop goroutine; listeners must not block.
func (s *Surface) dispatchToHost(env envelope.Envelope) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	listeners := make([]func(envelope.Envelope), 0, len(s.msgListeners))
	for _, fn := range s.msgListeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(env)
	}
}

// Post delivers an envelope to the view's registered handler. The
// delivery contract is at most once: with no live runtime or no
// registered handler the envelope is dropped, never queued, and a
// navigation racing the delivery also drops it.
func (s *Surface) Post(env envelope.Envelope) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return host.ErrSurfaceDisposed
	}
	view := s.view
	s.mu.Unlock()
	if view == nil {
		return nil
	}

	raw, err := env.Encode()
	if err != nil {
		return err
	}
	view.rt.RunOnLoop(func(vm *goja.Runtime) {
		s.mu.Lock()
		current := s.view
		s.mu.Unlock()
		if current == nil || current.rt != view.rt {
			return
		}
		// Parse the wire form inside the realm so the view receives
		// native objects and arrays, as it would from a browser.
		payload, err := jsonParse(vm, raw)
		if err != nil {
			s.log.Warn("cannot materialize envelope for view",
				"handle", s.handle, "command", env.Command, "error", err)
			return
		}
		if _, err := current.handler(goja.Undefined(), payload); err != nil {
			s.log.Warn("view message handler failed",
				"handle", s.handle, "command", env.Command, "error", err)
		}
	})
	return nil
}

func jsonParse(vm *goja.Runtime, raw []byte) (goja.Value, error) {
	jsonObj := vm.Get("JSON")
	if jsonObj == nil {
		return nil, errors.New("JSON global missing")
	}
	parse, ok := goja.AssertFunction(jsonObj.ToObject(vm).Get("parse"))
	if !ok {
		return nil, errors.New("JSON.parse is not callable")
	}
	return parse(goja.Undefined(), vm.ToValue(string(raw)))
}

// Eval evaluates source in the view's runtime and returns the
// exported result. Backs the repl's view inspection command.
func (s *Surface) Eval(code string) (any, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, host.ErrSurfaceDisposed
	}
	rt := s.rt
	s.mu.Unlock()
	if rt == nil {
		return nil, host.ErrSurfaceDisposed
	}

	var out any
	err := rt.RunSync(func(vm *goja.Runtime) error {
		v, err := vm.RunString(code)
		if err != nil {
			return err
		}
		if v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			out = v.Export()
		}
		return nil
	})
	return out, err
}

// Dispose tears the surface down: the runtime stops, disposal
// listeners fire once, and the owner forgets the handle. Repeated
// calls return ErrSurfaceDisposed.
func (s *Surface) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return host.ErrSurfaceDisposed
	}
	s.disposed = true
	rt := s.rt
	s.rt = nil
	s.view = nil
	listeners := make([]func(), 0, len(s.dispListeners))
	for _, fn := range s.dispListeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if rt != nil {
		_ = rt.Close()
	}
	for _, fn := range listeners {
		fn()
	}
	s.owner.remove(s.handle)
	return nil
}

// OnMessage registers a host-side listener for view envelopes.
func (s *Surface) OnMessage(fn func(envelope.Envelope)) host.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReg++
	id := s.nextReg
	s.msgListeners[id] = fn
	return s.registration(func() { delete(s.msgListeners, id) })
}

// OnVisibility registers a listener for presentation transitions.
func (s *Surface) OnVisibility(fn func(bool)) host.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReg++
	id := s.nextReg
	s.visListeners[id] = fn
	return s.registration(func() { delete(s.visListeners, id) })
}

// OnDisposed registers a listener fired when the surface is torn
// down, whether by Dispose or by the host.
func (s *Surface) OnDisposed(fn func()) host.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReg++
	id := s.nextReg
	s.dispListeners[id] = fn
	return s.registration(func() { delete(s.dispListeners, id) })
}

func (s *Surface) registration(remove func()) host.Registration {
	return func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		remove()
		return nil
	}
}
