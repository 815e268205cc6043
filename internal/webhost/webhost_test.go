package webhost

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viewscreen/viewscreen/internal/envelope"
	"github.com/viewscreen/viewscreen/internal/host"
	"github.com/viewscreen/viewscreen/internal/panel"
)

const (
	pollWait = 5 * time.Second
	pollTick = 10 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHost(t *testing.T) *WebHost {
	t.Helper()
	h, err := New(Options{Log: testLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// showPanel brings up a panel against the web host. The returned
// pending stays unsettled until a browser connects and reports ready.
func showPanel(t *testing.T, h *WebHost, base string) (*panel.Manager, *Surface, *panel.Pending) {
	t.Helper()
	m := panel.NewManager(h, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pending, err := m.Show(ctx, base, host.PositionSide)
	require.NoError(t, err)
	desc, ok := m.Describe()
	require.True(t, ok)
	s, ok := h.Surface(desc.Handle)
	require.True(t, ok)
	return m, s, pending
}

func dialPanel(t *testing.T, h *WebHost, handle string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.BaseURL(), "http") +
		"/panel/" + handle + "/channel"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func getBody(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServePanelDocument(t *testing.T) {
	h := newTestHost(t)
	_, s, _ := showPanel(t, h, t.TempDir())

	resp, body := getBody(t, h.BaseURL()+"/panel/"+s.Handle())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Contains(t, body, `<script type="module"`)
	assert.Contains(t, body,
		`name="viewscreen-channel" content="/panel/`+s.Handle()+`/channel"`)
}

func TestReadyOverChannelResolvesShow(t *testing.T) {
	h := newTestHost(t)
	_, s, pending := showPanel(t, h, t.TempDir())

	select {
	case <-pending.Done():
		t.Fatal("pending settled before any viewer connected")
	default:
	}

	conn := dialPanel(t, h, s.Handle())
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"command":"ready"}`)))

	ctx, cancel := context.WithTimeout(context.Background(), pollWait)
	defer cancel()
	require.NoError(t, pending.Await(ctx))
}

func TestPostReachesViewer(t *testing.T) {
	h := newTestHost(t)
	m, s, pending := showPanel(t, h, t.TempDir())

	conn := dialPanel(t, h, s.Handle())
	require.Eventually(t, s.Visible, pollWait, pollTick)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"command":"ready"}`)))
	ctx, cancel := context.WithTimeout(context.Background(), pollWait)
	defer cancel()
	require.NoError(t, pending.Await(ctx))

	entries := []envelope.FeedEntry{
		{Hash: "aaaa1111", Summary: "add feed view", Author: "ida", When: 1700000000000},
		{Hash: "bbbb2222", Summary: "wire channel", Author: "joe", When: 1700000100000},
	}
	require.NoError(t, m.PostMessage(envelope.NewFeedReset("demo-repo", entries)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(pollWait)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := envelope.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, envelope.CommandFeedReset, env.Command)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "demo-repo", data["source"])
	assert.Len(t, data["entries"], 2)
}

func TestViewerCountDrivesVisibility(t *testing.T) {
	h := newTestHost(t)
	m, s, _ := showPanel(t, h, t.TempDir())
	assert.False(t, s.Visible())

	conn := dialPanel(t, h, s.Handle())
	require.Eventually(t, s.Visible, pollWait, pollTick)
	before, ok := m.Describe()
	require.True(t, ok)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !s.Visible() }, pollWait, pollTick)

	// Reconnecting is a fresh transition to visible, which re-renders
	// the stored document under a fresh nonce.
	dialPanel(t, h, s.Handle())
	require.Eventually(t, func() bool {
		after, ok := m.Describe()
		return ok && after.Nonce != before.Nonce
	}, pollWait, pollTick)
}

func TestErrorEnvelopeNotifies(t *testing.T) {
	h := newTestHost(t)
	m, s, pending := showPanel(t, h, t.TempDir())

	conn := dialPanel(t, h, s.Handle())
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"command":"ready"}`)))
	ctx, cancel := context.WithTimeout(context.Background(), pollWait)
	defer cancel()
	require.NoError(t, pending.Await(ctx))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"command":"error","data":"render exploded"}`)))
	require.Eventually(t, func() bool {
		return len(h.Notifications()) > 0
	}, pollWait, pollTick)
	assert.Contains(t, h.Notifications(), "render exploded")

	// A view error is a notification, not a teardown.
	assert.Equal(t, panel.StateCreated, m.State())
}

func TestErrorBeforeReadyRejectsPending(t *testing.T) {
	h := newTestHost(t)
	_, s, pending := showPanel(t, h, t.TempDir())

	conn := dialPanel(t, h, s.Handle())
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"command":"error","data":"boot failed"}`)))

	ctx, cancel := context.WithTimeout(context.Background(), pollWait)
	defer cancel()
	err := pending.Await(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, panel.ErrViewError)
	assert.Contains(t, err.Error(), "boot failed")
}

func TestMalformedViewerMessageIsDropped(t *testing.T) {
	h := newTestHost(t)
	_, s, pending := showPanel(t, h, t.TempDir())

	conn := dialPanel(t, h, s.Handle())
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"data":"no command"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"ready"}`)))

	// Garbage before the handshake does not poison the channel.
	ctx, cancel := context.WithTimeout(context.Background(), pollWait)
	defer cancel()
	require.NoError(t, pending.Await(ctx))
	assert.Empty(t, h.Notifications())
}

func TestStaticAssets(t *testing.T) {
	h := newTestHost(t)
	_, s, _ := showPanel(t, h, t.TempDir())

	resp, body := getBody(t, h.BaseURL()+"/panel/"+s.Handle()+"/static/assets/main.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
	assert.Contains(t, body, ".topbar")

	resp, _ = getBody(t, h.BaseURL()+"/panel/"+s.Handle()+"/static/assets/nope.js")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMediaServedFromResourceRoot(t *testing.T) {
	h := newTestHost(t)
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "media"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(base, "media", "banner.txt"), []byte("hello media"), 0o644))

	_, s, _ := showPanel(t, h, base)

	resp, body := getBody(t, h.BaseURL()+"/panel/"+s.Handle()+"/media/banner.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello media", body)

	// Nothing outside the resource root resolves.
	resp, _ = getBody(t, h.BaseURL()+"/panel/"+s.Handle()+"/media/missing.txt")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDisposeRemovesPanel(t *testing.T) {
	h := newTestHost(t)
	m, s, _ := showPanel(t, h, t.TempDir())
	handle := s.Handle()

	require.NoError(t, m.Dispose())

	resp, _ := getBody(t, h.BaseURL()+"/panel/"+handle)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(h.BaseURL(), "http") +
		"/panel/" + handle + "/channel"
	_, resp2, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if resp2 != nil && resp2.Body != nil {
		_ = resp2.Body.Close()
	}
}

func TestCloseDisconnectsViewers(t *testing.T) {
	h, err := New(Options{Log: testLogger()})
	require.NoError(t, err)
	m, s, _ := showPanel(t, h, t.TempDir())

	conn := dialPanel(t, h, s.Handle())
	require.Eventually(t, s.Visible, pollWait, pollTick)

	require.NoError(t, h.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(pollWait)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Eventually(t, func() bool {
		return m.State() == panel.StateAbsent
	}, pollWait, pollTick)
}

func TestRootRedirectsToPanel(t *testing.T) {
	h := newTestHost(t)
	_, s, _ := showPanel(t, h, t.TempDir())

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(h.BaseURL() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/panel/"+s.Handle(), resp.Header.Get("Location"))
}

func TestRootWithoutPanel(t *testing.T) {
	h := newTestHost(t)
	resp, _ := getBody(t, h.BaseURL()+"/")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHostMediaRootsServeRestoredSurfaces(t *testing.T) {
	shared := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(shared, "logo.txt"), []byte("host media"), 0o644))

	h, err := New(Options{Log: testLogger(), MediaRoots: []string{shared}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	// A restored surface carries no resource roots of its own.
	s, err := h.RestoreSurface("restored-1", panel.ViewType)
	require.NoError(t, err)

	resp, body := getBody(t, h.BaseURL()+"/panel/"+s.Handle()+"/media/logo.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "host media", body)
}

func TestHostMediaRootsSupplementSurfaceRoots(t *testing.T) {
	shared := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(shared, "shared.txt"), []byte("from host root"), 0o644))

	h, err := New(Options{Log: testLogger(), MediaRoots: []string{shared}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "media"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(base, "media", "own.txt"), []byte("from surface root"), 0o644))
	_, s, _ := showPanel(t, h, base)

	resp, body := getBody(t, h.BaseURL()+"/panel/"+s.Handle()+"/media/own.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "from surface root", body)

	resp, body = getBody(t, h.BaseURL()+"/panel/"+s.Handle()+"/media/shared.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "from host root", body)
}

func TestOpenerArgs(t *testing.T) {
	t.Parallel()
	const url = "http://127.0.0.1:39211/panel/abc"

	t.Run("configured command", func(t *testing.T) {
		t.Parallel()
		args, err := openerArgs("firefox --new-window", "linux", url)
		require.NoError(t, err)
		assert.Equal(t, []string{"firefox", "--new-window", url}, args)
	})

	t.Run("quoted command path", func(t *testing.T) {
		t.Parallel()
		args, err := openerArgs(`'/opt/my browser/bin' --app`, "plan9", url)
		require.NoError(t, err)
		assert.Equal(t, []string{"/opt/my browser/bin", "--app", url}, args)
	})

	t.Run("platform opener linux", func(t *testing.T) {
		t.Parallel()
		args, err := openerArgs("", "linux", url)
		require.NoError(t, err)
		assert.Equal(t, []string{"xdg-open", url}, args)
	})

	t.Run("platform opener darwin", func(t *testing.T) {
		t.Parallel()
		args, err := openerArgs("", "darwin", url)
		require.NoError(t, err)
		assert.Equal(t, []string{"open", url}, args)
	})

	t.Run("platform opener windows", func(t *testing.T) {
		t.Parallel()
		args, err := openerArgs("", "windows", url)
		require.NoError(t, err)
		assert.Equal(t, []string{"rundll32", "url.dll,FileProtocolHandler", url}, args)
	})

	t.Run("no opener", func(t *testing.T) {
		t.Parallel()
		_, err := openerArgs("", "plan9", url)
		assert.ErrorContains(t, err, "no browser opener")
	})
}
