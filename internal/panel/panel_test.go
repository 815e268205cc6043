package panel

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viewscreen/viewscreen/internal/envelope"
	"github.com/viewscreen/viewscreen/internal/host"
)

func TestShowCreatesAndConfiguresSurface(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	pending, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, StateCreated, m.State())

	require.Len(t, fh.created(), 1)
	s := fh.created()[0]
	assert.Equal(t, ViewType, s.opts.ViewType)
	assert.Equal(t, PanelTitle, s.opts.Title)
	assert.True(t, s.opts.EnableScripts)
	assert.Equal(t, []string{filepath.Join("/work/repo", "media")}, s.opts.ResourceRoots)
	assert.Len(t, s.documents(), 1, "creation renders the document once")
}

func TestShowRevealsExistingInstance(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	first, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	second, err := m.Show(context.Background(), "/work/repo", host.PositionActive)
	require.NoError(t, err)

	assert.Same(t, first, second, "repeated show returns the same pending")
	require.Len(t, fh.created(), 1, "no second surface is constructed")
	assert.Equal(t, []host.Position{host.PositionActive}, fh.created()[0].revealed())
}

func TestHandshakeResolvesOnReady(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	pending, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)

	fh.created()[0].emit(envelope.NewReady())
	require.NoError(t, awaitSettled(t, pending))
}

func TestHandshakeRejectsOnViewError(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	pending, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)

	fh.created()[0].emit(envelope.NewError("x"))
	err = awaitSettled(t, pending)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrViewError)
	assert.Contains(t, err.Error(), "x")
	assert.Equal(t, []string{"x"}, fh.notified())
}

func TestErrorAfterReadyKeepsChannelOpen(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	pending, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	s := fh.created()[0]

	s.emit(envelope.NewReady())
	require.NoError(t, awaitSettled(t, pending))

	s.emit(envelope.NewError("renderer hiccup"))
	assert.NoError(t, pending.Err(), "a settled handshake is not re-settled")
	assert.Equal(t, []string{"renderer hiccup"}, fh.notified())

	assert.Equal(t, StateCreated, m.State())
	require.NoError(t, m.PostMessage(envelope.NewFeedAppend(envelope.FeedEntry{Hash: "abc1234"})))
	assert.Len(t, s.postedEnvelopes(), 1)
}

func TestUnrecognizedFirstMessageIsIgnored(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	pending, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	s := fh.created()[0]

	s.emit(envelope.Envelope{Command: "telemetry", Data: "ignored"})
	select {
	case <-pending.Done():
		t.Fatal("unrecognized command must not settle the handshake")
	default:
	}

	s.emit(envelope.NewReady())
	require.NoError(t, awaitSettled(t, pending))
	assert.Empty(t, fh.notified())
}

func TestPostMessageWhenAbsentIsSilentNoOp(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	require.NoError(t, m.PostMessage(envelope.NewFeedAppend(envelope.FeedEntry{Hash: "abc1234"})))
	assert.Empty(t, fh.created())
}

func TestPostMessageDelivers(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	_, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)

	env := envelope.NewFeedReset("/work/repo", []envelope.FeedEntry{{Hash: "abc1234", Summary: "init"}})
	require.NoError(t, m.PostMessage(env))

	posted := fh.created()[0].postedEnvelopes()
	require.Len(t, posted, 1)
	assert.Equal(t, envelope.CommandFeedReset, posted[0].Command)
}

func TestDisposeIsIdempotent(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	_, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	s := fh.created()[0]

	require.NoError(t, m.Dispose())
	assert.Equal(t, StateAbsent, m.State())
	assert.True(t, s.isDisposed())

	require.NoError(t, m.Dispose())
	require.NoError(t, m.Dispose())
	assert.Equal(t, StateAbsent, m.State())

	for id, n := range s.detachCounts() {
		assert.Equal(t, 1, n, "registration %d must detach exactly once", id)
	}
}

func TestDisposeWhenAbsentIsNoOp(t *testing.T) {
	m := NewManager(newFakeHost(), nil)
	require.NoError(t, m.Dispose())
	assert.Equal(t, StateAbsent, m.State())
}

func TestDisposeIsolatesFailingCleanup(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	_, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	s := fh.created()[0]
	s.panicOnDetach(0)

	err = m.Dispose()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, StateAbsent, m.State())

	counts := s.detachCounts()
	require.Len(t, counts, 3)
	for id, n := range counts {
		assert.Equal(t, 1, n, "registration %d must detach exactly once despite the panic", id)
	}

	require.NoError(t, m.Dispose())
}

func TestDisposeRejectsPendingHandshake(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	pending, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)

	require.NoError(t, m.Dispose())
	err = awaitSettled(t, pending)
	require.Error(t, err)
	assert.ErrorIs(t, err, host.ErrSurfaceDisposed)
}

func TestUserClosingSurfaceEmptiesSlot(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	_, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	s := fh.created()[0]

	require.NoError(t, s.Dispose())
	assert.Equal(t, StateAbsent, m.State())
	for id, n := range s.detachCounts() {
		assert.Equal(t, 1, n, "registration %d must detach exactly once", id)
	}

	require.NoError(t, m.Dispose(), "controller dispose after user close is a no-op")
	require.NoError(t, m.PostMessage(envelope.NewReady()), "posting after user close drops silently")
}

func TestVisibilityRegeneratesNonce(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	_, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	s := fh.created()[0]
	require.Len(t, s.documents(), 1)

	s.setVisible(false)
	assert.Len(t, s.documents(), 1, "hiding must not re-render")

	s.setVisible(true)
	docs := s.documents()
	require.Len(t, docs, 2, "every transition to visible re-renders")

	first, second := docNonce(t, docs[0]), docNonce(t, docs[1])
	assert.NotEqual(t, first, second, "each render mints a fresh nonce")

	desc, ok := m.Describe()
	require.True(t, ok)
	assert.Equal(t, second, desc.Nonce)
}

func TestReviveBypassesConstructionOptions(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	restored := newFakeSurface("restored-1", host.SurfaceOptions{})
	require.NoError(t, m.Revive(restored, "/work/repo"))

	assert.Equal(t, StateCreated, m.State())
	assert.Empty(t, fh.created(), "revive must not construct a surface")
	assert.Equal(t, host.SurfaceOptions{}, restored.opts, "construction options are not re-applied")
	assert.Len(t, restored.documents(), 1, "revive re-renders the document")

	_, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	assert.Empty(t, fh.created(), "show after revive reveals the restored surface")
	assert.Len(t, restored.revealed(), 1)
}

func TestCreateReplacesAndOrphansPrevious(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	_, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	_, err = m.Create(context.Background(), "/other/repo", host.PositionSide)
	require.NoError(t, err)

	require.Len(t, fh.created(), 2)
	orphan, current := fh.created()[0], fh.created()[1]
	assert.False(t, orphan.isDisposed(), "the orphaned surface is not torn down")

	desc, ok := m.Describe()
	require.True(t, ok)
	assert.Equal(t, current.Handle(), desc.Handle)
	assert.Equal(t, "/other/repo", desc.Base)

	require.NoError(t, m.PostMessage(envelope.NewReady()))
	assert.Empty(t, orphan.postedEnvelopes())
	assert.Len(t, current.postedEnvelopes(), 1)
}

func TestShowRetryAfterRejectionNeedsDispose(t *testing.T) {
	fh := newFakeHost()
	m := NewManager(fh, nil)

	pending, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	fh.created()[0].emit(envelope.NewError("boom"))
	require.Error(t, awaitSettled(t, pending))

	retry, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	assert.Same(t, pending, retry, "retrying show reveals the broken instance unchanged")
	require.Len(t, fh.created(), 1)

	require.NoError(t, m.Dispose())
	fresh, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.NoError(t, err)
	assert.NotSame(t, pending, fresh)
	require.Len(t, fh.created(), 2)
}

func TestCreateSurfaceFailure(t *testing.T) {
	fh := newFakeHost()
	fh.createErr = errors.New("host exploded")
	m := NewManager(fh, nil)

	_, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.Error(t, err)
	assert.Equal(t, StateAbsent, m.State())
}

func TestContentFailureTearsDownHalfBuiltSurface(t *testing.T) {
	fh := newFakeHost()
	fh.contentErr = errors.New("navigation refused")
	m := NewManager(fh, nil)

	_, err := m.Show(context.Background(), "/work/repo", host.PositionSide)
	require.Error(t, err)
	assert.Equal(t, StateAbsent, m.State())

	require.Len(t, fh.created(), 1)
	assert.True(t, fh.created()[0].isDisposed(), "the half-built surface must not leak")
}

func awaitSettled(t *testing.T, p *Pending) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.Await(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "handshake must settle")
	return err
}

var nonceRe = regexp.MustCompile(`<script[^>]*\snonce="([A-Za-z0-9]+)"`)

func docNonce(t *testing.T, doc string) string {
	t.Helper()
	m := nonceRe.FindStringSubmatch(doc)
	require.NotNil(t, m, "document must carry a nonce-bearing script tag")
	return m[1]
}

type fakeHost struct {
	mu            sync.Mutex
	surfaces      []*fakeSurface
	notifications []string
	createErr     error
	contentErr    error
}

func newFakeHost() *fakeHost {
	return &fakeHost{}
}

func (h *fakeHost) CreateSurface(_ context.Context, opts host.SurfaceOptions) (host.Surface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.createErr != nil {
		return nil, h.createErr
	}
	s := newFakeSurface(fmt.Sprintf("surface-%d", len(h.surfaces)+1), opts)
	s.contentErr = h.contentErr
	h.surfaces = append(h.surfaces, s)
	return s, nil
}

func (h *fakeHost) NotifyError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifications = append(h.notifications, msg)
}

func (h *fakeHost) created() []*fakeSurface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*fakeSurface(nil), h.surfaces...)
}

func (h *fakeHost) notified() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.notifications...)
}

type fakeSurface struct {
	handle     string
	opts       host.SurfaceOptions
	contentErr error

	mu        sync.Mutex
	disposed  bool
	visible   bool
	titles    []string
	docs      []string
	posted    []envelope.Envelope
	reveals   []host.Position
	nextReg   int
	onMsg     map[int]func(envelope.Envelope)
	onVis     map[int]func(bool)
	onDisp    map[int]func()
	detaches  map[int]int
	panickers map[int]bool
}

func newFakeSurface(handle string, opts host.SurfaceOptions) *fakeSurface {
	return &fakeSurface{
		handle:    handle,
		opts:      opts,
		visible:   true,
		onMsg:     make(map[int]func(envelope.Envelope)),
		onVis:     make(map[int]func(bool)),
		onDisp:    make(map[int]func()),
		detaches:  make(map[int]int),
		panickers: make(map[int]bool),
	}
}

func (s *fakeSurface) Handle() string { return s.handle }

func (s *fakeSurface) Reveal(position host.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return host.ErrSurfaceDisposed
	}
	s.reveals = append(s.reveals, position)
	return nil
}

func (s *fakeSurface) SetTitle(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return host.ErrSurfaceDisposed
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *fakeSurface) SetContent(doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return host.ErrSurfaceDisposed
	}
	if s.contentErr != nil {
		return s.contentErr
	}
	s.docs = append(s.docs, string(doc))
	return nil
}

func (s *fakeSurface) Post(env envelope.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return host.ErrSurfaceDisposed
	}
	s.posted = append(s.posted, env)
	return nil
}

func (s *fakeSurface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *fakeSurface) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return host.ErrSurfaceDisposed
	}
	s.disposed = true
	handlers := make([]func(), 0, len(s.onDisp))
	for _, fn := range s.onDisp {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
	return nil
}

func (s *fakeSurface) OnDisposed(fn func()) host.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextReg
	s.nextReg++
	s.onDisp[id] = fn
	return s.registration(id)
}

func (s *fakeSurface) OnMessage(fn func(envelope.Envelope)) host.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextReg
	s.nextReg++
	s.onMsg[id] = fn
	return s.registration(id)
}

func (s *fakeSurface) OnVisibility(fn func(bool)) host.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextReg
	s.nextReg++
	s.onVis[id] = fn
	return s.registration(id)
}

func (s *fakeSurface) ResourceOrigin() string {
	return "http://surface.test"
}

func (s *fakeSurface) ResolveResource(path string) string {
	return "http://surface.test/" + path
}

func (s *fakeSurface) registration(id int) host.Registration {
	return func() error {
		s.mu.Lock()
		s.detaches[id]++
		explode := s.panickers[id]
		delete(s.onMsg, id)
		delete(s.onVis, id)
		delete(s.onDisp, id)
		s.mu.Unlock()
		if explode {
			panic("cleanup exploded")
		}
		return nil
	}
}

func (s *fakeSurface) emit(env envelope.Envelope) {
	s.mu.Lock()
	handlers := make([]func(envelope.Envelope), 0, len(s.onMsg))
	for _, fn := range s.onMsg {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(env)
	}
}

func (s *fakeSurface) setVisible(v bool) {
	s.mu.Lock()
	s.visible = v
	handlers := make([]func(bool), 0, len(s.onVis))
	for _, fn := range s.onVis {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(v)
	}
}

func (s *fakeSurface) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *fakeSurface) documents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.docs...)
}

func (s *fakeSurface) postedEnvelopes() []envelope.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]envelope.Envelope(nil), s.posted...)
}

func (s *fakeSurface) revealed() []host.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]host.Position(nil), s.reveals...)
}

func (s *fakeSurface) detachCounts() map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int, len(s.detaches))
	for id, n := range s.detaches {
		out[id] = n
	}
	return out
}

func (s *fakeSurface) panicOnDetach(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panickers[id] = true
}
