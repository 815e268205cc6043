// Package termtest drives interactive commands through a real
// pseudo-terminal, so raw mode, key handling, and prompt rendering are
// exercised the way a user's terminal would exercise them. The test holds
// the outer half of the pty and plays the user; the command under test gets
// the inner half as its stdio.
package termtest

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
)

// Dimensions reported to the program under test.
const (
	Rows = 24
	Cols = 80
)

// pollTick is the interval WaitFor rechecks the captured output at.
const pollTick = 10 * time.Millisecond

// Console is one pseudo-terminal pair plus a transcript of everything the
// program wrote to it. All methods are safe for use while the program runs.
type Console struct {
	t   *testing.T
	ptm *os.File // outer half, owned by the test
	pts *os.File // inner half, owned by the command under test

	mu         sync.Mutex
	transcript bytes.Buffer

	captureDone chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

// New opens a console sized to Rows by Cols and starts capturing its
// output. The console closes itself via t.Cleanup; tests that need the
// command to observe EOF earlier call Close directly. Skips the test on
// platforms without pty support.
func New(t *testing.T) *Console {
	t.Helper()
	ptm, pts, err := pty.Open()
	if err != nil {
		if errors.Is(err, pty.ErrUnsupported) {
			t.Skipf("pty unsupported: %v", err)
		}
		t.Fatalf("failed to open pty: %v", err)
	}
	if err := pty.Setsize(ptm, &pty.Winsize{Rows: Rows, Cols: Cols}); err != nil {
		_ = ptm.Close()
		_ = pts.Close()
		t.Fatalf("failed to size pty: %v", err)
	}

	c := &Console{t: t, ptm: ptm, pts: pts, captureDone: make(chan struct{})}
	go c.capture()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// capture drains the outer half into the transcript until the pty dies.
func (c *Console) capture() {
	defer close(c.captureDone)
	buf := make([]byte, 4096)
	for {
		n, err := c.ptm.Read(buf)
		if n > 0 {
			c.mu.Lock()
			c.transcript.Write(buf[:n])
			c.mu.Unlock()
		}
		if err != nil {
			// EIO after the inner half closes, or our own Close.
			return
		}
	}
}

// Tty returns the inner half for use as the command's stdin and stdout.
func (c *Console) Tty() *os.File { return c.pts }

// Type writes s as keystrokes.
func (c *Console) Type(s string) {
	c.t.Helper()
	if _, err := c.ptm.WriteString(s); err != nil {
		c.t.Fatalf("failed to type %q: %v", s, err)
	}
}

// SendLine types s followed by enter.
func (c *Console) SendLine(s string) {
	c.t.Helper()
	c.Type(s + "\n")
}

// Output returns the transcript captured so far.
func (c *Console) Output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.String()
}

// WaitFor blocks until substr appears in the transcript, failing the test
// when the timeout passes first.
func (c *Console) WaitFor(substr string, timeout time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for !strings.Contains(c.Output(), substr) {
		if time.Now().After(deadline) {
			c.t.Fatalf("timed out waiting for %q in console output:\n%s", substr, c.Output())
		}
		time.Sleep(pollTick)
	}
}

// Close tears down both halves of the pty and stops the capture goroutine.
// Safe to call more than once.
func (c *Console) Close() error {
	c.closeOnce.Do(func() {
		// Inner half first: the capture read fails once the pty is dead,
		// and closing the outer half unblocks it regardless.
		err1 := c.pts.Close()
		err2 := c.ptm.Close()
		<-c.captureDone
		c.closeErr = errors.Join(err1, err2)
	})
	return c.closeErr
}
