// Package webhost presents panel surfaces in a local web browser.
// The rendered document is served over localhost HTTP, the typed
// message channel rides a per-panel WebSocket, and a surface counts
// as visible while at least one browser holds its channel open.
package webhost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"log/slog"

	"github.com/viewscreen/viewscreen/internal/argv"
	"github.com/viewscreen/viewscreen/internal/content"
	"github.com/viewscreen/viewscreen/internal/host"
)

const defaultAddress = "127.0.0.1:0"

var (
	announceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// Options configures a WebHost.
type Options struct {
	// Address is the host:port to bind; port 0 picks a free port.
	// Defaults to 127.0.0.1:0.
	Address string

	// Open launches the local browser when a panel is revealed with
	// no connected viewer.
	Open bool

	// Browser is the command line used to open panel URLs, split with
	// shell-style quoting and given the URL as its final argument.
	// Empty means the platform opener.
	Browser string

	// MediaRoots are additional directories media requests may be
	// served from, for every surface. Surfaces restored across a
	// restart carry no resource roots of their own, so host-level
	// roots are the only way their documents keep loading media.
	MediaRoots []string

	Log *slog.Logger
}

// WebHost serves surfaces over HTTP and satisfies the controller's
// host contract. It also records error notifications so callers can
// inspect what views reported.
type WebHost struct {
	log        *slog.Logger
	open       bool
	browser    string
	origin     string
	mediaRoots []string

	listener net.Listener
	server   *http.Server

	mu       sync.Mutex
	closed   bool
	surfaces map[string]*Surface
	notes    []string
}

// New binds a listener and starts serving. The returned host is
// usable immediately; Close stops the server and disposes all
// surfaces.
func New(opts Options) (*WebHost, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	addr := opts.Address
	if addr == "" {
		addr = defaultAddress
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		if strings.Contains(err.Error(), "address already in use") {
			return nil, fmt.Errorf("address %s is already in use", addr)
		}
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	h := &WebHost{
		log:        log,
		open:       opts.Open,
		browser:    opts.Browser,
		origin:     "http://" + listener.Addr().String(),
		mediaRoots: append([]string(nil), opts.MediaRoots...),
		listener:   listener,
		surfaces:   make(map[string]*Surface),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", h.serveRoot)
	mux.HandleFunc("GET /panel/{handle}", h.servePanel)
	mux.HandleFunc("GET /panel/{handle}/static/{path...}", h.serveStatic)
	mux.HandleFunc("GET /panel/{handle}/media/{path...}", h.serveMedia)
	mux.HandleFunc("GET /panel/{handle}/channel", h.serveChannel)
	h.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("panel server failed", "error", err)
		}
	}()
	return h, nil
}

// BaseURL returns the served origin, e.g. http://127.0.0.1:39211.
func (h *WebHost) BaseURL() string { return h.origin }

func (h *WebHost) panelPath(handle string) string { return "/panel/" + handle }

func (h *WebHost) panelURL(handle string) string { return h.origin + h.panelPath(handle) }

// CreateSurface makes a fresh surface under a new handle. The ctx
// only scopes construction; surface lifetime is bound to the host.
func (h *WebHost) CreateSurface(ctx context.Context, opts host.SurfaceOptions) (host.Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.New("web host closed")
	}
	handle := uuid.NewString()
	s := newSurface(h, handle, opts)
	h.surfaces[handle] = s
	h.log.Debug("surface created", "handle", handle, "viewType", opts.ViewType)
	return s, nil
}

// RestoreSurface re-creates a surface under a previously issued
// handle, as after a host restart. The host owns the configuration
// of restored surfaces, so no construction options are taken.
func (h *WebHost) RestoreSurface(handle, viewType string) (*Surface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.New("web host closed")
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
func (h *WebHost) Surface(handle string) (*Surface, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.surfaces[handle]
	return s, ok
}

// NotifyError surfaces a view-reported error to the user and records
// it for inspection.
func (h *WebHost) NotifyError(msg string) {
	h.mu.Lock()
	h.notes = append(h.notes, msg)
	h.mu.Unlock()
	fmt.Fprintln(os.Stderr, errorStyle.Render("view error: "+msg))
	h.log.Warn("view error notification", "message", msg)
}

// Notifications returns the error notifications received so far.
func (h *WebHost) Notifications() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.notes...)
}

func (h *WebHost) remove(handle string) {
	h.mu.Lock()
	delete(h.surfaces, handle)
	h.mu.Unlock()
}

// announce prints the panel URL and, when configured, opens the
// local browser on it.
func (h *WebHost) announce(url string) {
	fmt.Fprintln(os.Stderr, announceStyle.Render("panel:")+" "+url)
	h.log.Info("panel available", "url", url)
	if !h.open {
		return
	}
	if err := openBrowser(h.browser, url); err != nil {
		h.log.Warn("cannot open browser", "url", url, "error", err)
	}
}

// openerArgs builds the browser launch argv: the configured command
// with the URL appended, or the platform opener when none is set.
func openerArgs(browser, goos, url string) ([]string, error) {
	if parts := argv.Split(browser); len(parts) > 0 {
		return append(parts, url), nil
	}
	switch goos {
	case "darwin":
		return []string{"open", url}, nil
	case "linux":
		return []string{"xdg-open", url}, nil
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler", url}, nil
	default:
		return nil, fmt.Errorf("no browser opener for %s", goos)
	}
}

func openBrowser(browser, url string) error {
	args, err := openerArgs(browser, runtime.GOOS, url)
	if err != nil {
		return err
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// Close disposes every surface and shuts the server down.
func (h *WebHost) Close() error {
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

	var errs []error
	for _, s := range live {
		if err := s.Dispose(); err != nil && !errors.Is(err, host.ErrSurfaceDisposed) {
			errs = append(errs, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (h *WebHost) lookup(r *http.Request) (*Surface, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.surfaces[r.PathValue("handle")]
	return s, ok
}

// serveRoot redirects to the live panel, if any.
func (h *WebHost) serveRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.mu.Lock()
	var target string
	for handle := range h.surfaces {
		target = handle
		break
	}
	h.mu.Unlock()
	if target == "" {
		http.Error(w, "no live panel", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, h.panelPath(target), http.StatusFound)
}

// servePanel writes the current document. The channel location is
// injected into the head so the page knows where to connect; pages
// must not be cached or a stale nonce would be replayed.
func (h *WebHost) servePanel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	doc := s.Document()
	if len(doc) == 0 {
		http.Error(w, "panel not rendered yet", http.StatusServiceUnavailable)
		return
	}
	doc = injectChannelMeta(doc, h.panelPath(s.Handle())+"/channel")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(doc)
}

func injectChannelMeta(doc []byte, channel string) []byte {
	if bytes.Contains(doc, []byte(`name="viewscreen-channel"`)) {
		return doc
	}
	meta := []byte("<head>\n    <meta name=\"viewscreen-channel\" content=\"" + channel + "\" />")
	return bytes.Replace(doc, []byte("<head>"), meta, 1)
}

// serveStatic serves the embedded view assets.
func (h *WebHost) serveStatic(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.lookup(r); !ok {
		http.NotFound(w, r)
		return
	}
	path := r.PathValue("path")
	data, err := fs.ReadFile(content.Assets, path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	ctype := mime.TypeByExtension(filepath.Ext(path))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// serveMedia serves files from the surface's resource roots plus the
// host-level media roots, and nothing else; io/fs path validation
// keeps lookups inside them.
func (h *WebHost) serveMedia(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	roots := append(s.resourceRoots(), h.mediaRoots...)
	rel := r.PathValue("path")
	for _, root := range roots {
		sub := os.DirFS(root)
		if info, err := fs.Stat(sub, rel); err == nil && !info.IsDir() {
			http.ServeFileFS(w, r, sub, rel)
			return
		}
	}
	http.NotFound(w, r)
}

// serveChannel upgrades to a WebSocket and runs the viewer pumps.
func (h *WebHost) serveChannel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("channel upgrade failed", "error", err)
		return
	}
	v := &viewer{
		id:   uuid.NewString(),
		s:    s,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	if !s.attach(v) {
		_ = conn.Close()
		return
	}
	go v.writePump()
	v.readPump()
}
