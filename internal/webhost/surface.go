package webhost

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/viewscreen/viewscreen/internal/envelope"
	"github.com/viewscreen/viewscreen/internal/host"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 32
)

// viewer is one live browser connection to a surface's channel.
type viewer struct {
	id   string
	s    *Surface
	conn *websocket.Conn

	// send carries encoded envelopes to the write pump. It is never
	// closed; done signals shutdown instead, so a racing Post cannot
	// hit a closed channel.
	send chan []byte
	done chan struct{}
}

func (v *viewer) readPump() {
	defer func() {
		v.s.detach(v)
		_ = v.conn.Close()
	}()
	v.conn.SetReadLimit(maxMessageSize)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				v.s.log.Debug("viewer read failed", "viewer", v.id, "error", err)
			}
			return
		}
		env, err := envelope.Decode(raw)
		if err != nil {
			v.s.log.Debug("dropping malformed viewer message",
				"viewer", v.id, "error", err)
			continue
		}
		v.s.dispatchFromView(env)
	}
}

func (v *viewer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = v.conn.Close()
	}()
	for {
		select {
		case raw := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-v.done:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = v.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Surface is a panel presented in a local browser. The document is
// served over HTTP and the envelope channel rides a WebSocket;
// visibility means at least one connected viewer.
type Surface struct {
	owner *WebHost
	log   *slog.Logger

	handle string
	opts   host.SurfaceOptions

	mu       sync.Mutex
	disposed bool
	title    string
	doc      []byte
	position host.Position
	viewers  map[*viewer]struct{}

	nextReg       int
	msgListeners  map[int]func(envelope.Envelope)
	visListeners  map[int]func(bool)
	dispListeners map[int]func()
}

func newSurface(owner *WebHost, handle string, opts host.SurfaceOptions) *Surface {
	return &Surface{
		owner:         owner,
		log:           owner.log,
		handle:        handle,
		opts:          opts,
		position:      opts.Position,
		viewers:       make(map[*viewer]struct{}),
		msgListeners:  make(map[int]func(envelope.Envelope)),
		visListeners:  make(map[int]func(bool)),
		dispListeners: make(map[int]func()),
	}
}

// Handle identifies the surface; it is part of every panel URL.
func (s *Surface) Handle() string { return s.handle }

// ViewType reports the type the surface was created with.
func (s *Surface) ViewType() string { return s.opts.ViewType }

// Visible reports whether any browser currently views the panel.
func (s *Surface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.disposed && len(s.viewers) > 0
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

func (s *Surface) resourceRoots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opts.ResourceRoots...)
}

// ResourceOrigin returns the HTTP origin documents may load styles
// and images from.
func (s *Surface) ResourceOrigin() string { return s.owner.origin }

// ResolveResource maps an asset path to a same-origin URI: embedded
// assets under the static route, everything else under the media
// route backed by the surface's resource roots.
func (s *Surface) ResolveResource(path string) string {
	p := strings.TrimPrefix(path, "/")
	if strings.HasPrefix(p, "assets/") {
		return s.owner.panelPath(s.handle) + "/static/" + p
	}
	return s.owner.panelPath(s.handle) + "/media/" + p
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

// SetContent stores the document served on the next page load. The
// browser enforces the content security policy itself; already
// connected viewers keep their page until they reload.
func (s *Surface) SetContent(doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return host.ErrSurfaceDisposed
	}
	s.doc = append([]byte(nil), doc...)
	return nil
}

// Reveal records the requested position and announces the panel URL
// when nobody is viewing it yet.
func (s *Surface) Reveal(position host.Position) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return host.ErrSurfaceDisposed
	}
	s.position = position
	hasViewer := len(s.viewers) > 0
	s.mu.Unlock()

	url := s.owner.panelURL(s.handle)
	if hasViewer {
		s.log.Debug("panel already presented", "url", url)
		return nil
	}
	s.owner.announce(url)
	return nil
}

// attach registers a connected viewer. The 0→1 transition reports
// the surface visible.
func (s *Surface) attach(v *viewer) bool {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false
	}
	s.viewers[v] = struct{}{}
	var listeners []func(bool)
	if len(s.viewers) == 1 {
		listeners = s.visibilityListeners()
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(true)
	}
	return true
}

// detach removes a viewer. The 1→0 transition reports the surface
// hidden.
func (s *Surface) detach(v *viewer) {
	s.mu.Lock()
	if _, ok := s.viewers[v]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.viewers, v)
	var listeners []func(bool)
	if len(s.viewers) == 0 && !s.disposed {
		listeners = s.visibilityListeners()
	}
	s.mu.Unlock()
	close(v.done)
	for _, fn := range listeners {
		fn(false)
	}
}

// visibilityListeners must be called with mu held.
func (s *Surface) visibilityListeners() []func(bool) {
	listeners := make([]func(bool), 0, len(s.visListeners))
	for _, fn := range s.visListeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

// dispatchFromView hands a viewer envelope to every registered host
// listener.
func (s *Surface) dispatchFromView(env envelope.Envelope) {
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

// Post broadcasts an envelope to every connected viewer. Delivery is
// at most once: with no viewers the envelope is dropped, and a
// viewer that stops draining its queue loses envelopes rather than
// blocking the host.
func (s *Surface) Post(env envelope.Envelope) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return host.ErrSurfaceDisposed
	}
	targets := make([]*viewer, 0, len(s.viewers))
	for v := range s.viewers {
		targets = append(targets, v)
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		return nil
	}

	raw, err := env.Encode()
	if err != nil {
		return err
	}
	for _, v := range targets {
		select {
		case v.send <- raw:
		default:
			s.log.Warn("viewer not keeping up, dropping envelope",
				"viewer", v.id, "command", env.Command)
		}
	}
	return nil
}

// Dispose disconnects all viewers and removes the panel's routes.
// Repeated calls return ErrSurfaceDisposed.
func (s *Surface) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return host.ErrSurfaceDisposed
	}
	s.disposed = true
	targets := make([]*viewer, 0, len(s.viewers))
	for v := range s.viewers {
		targets = append(targets, v)
	}
	s.viewers = make(map[*viewer]struct{})
	listeners := make([]func(), 0, len(s.dispListeners))
	for _, fn := range s.dispListeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, v := range targets {
		close(v.done)
	}
	for _, fn := range listeners {
		fn()
	}
	s.owner.remove(s.handle)
	return nil
}

// OnMessage registers a host-side listener for viewer envelopes.
func (s *Surface) OnMessage(fn func(envelope.Envelope)) host.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReg++
	id := s.nextReg
	s.msgListeners[id] = fn
	return s.registration(func() { delete(s.msgListeners, id) })
}

// OnVisibility registers a listener for viewer-count transitions.
func (s *Surface) OnVisibility(fn func(bool)) host.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReg++
	id := s.nextReg
	s.visListeners[id] = fn
	return s.registration(func() { delete(s.visListeners, id) })
}

// OnDisposed registers a listener fired when the surface is torn
// down.
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
