package termtest

import (
	"fmt"
	"os"

	"github.com/joeycumines/go-prompt"
	"golang.org/x/term"
)

// PromptOptions binds a go-prompt instance to the console's inner half, so
// an interactive loop runs against the test terminal instead of the process
// stdio. Append these after the command's own options.
func (c *Console) PromptOptions() []prompt.Option {
	return []prompt.Option{
		prompt.WithReader(&consoleReader{f: c.pts}),
		prompt.WithWriter(&consoleWriter{f: c.pts}),
	}
}

// consoleReader feeds keystrokes to the prompt from the pty's inner half,
// holding it in raw mode for the prompt's lifetime.
type consoleReader struct {
	f     *os.File
	saved *term.State
}

func (r *consoleReader) Open() error {
	st, err := term.MakeRaw(int(r.f.Fd()))
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	r.saved = st
	return nil
}

func (r *consoleReader) Close() error {
	if r.saved == nil {
		return nil
	}
	st := r.saved
	r.saved = nil
	return term.Restore(int(r.f.Fd()), st)
}

func (r *consoleReader) Read(p []byte) (int, error) { return r.f.Read(p) }

func (r *consoleReader) GetWinSize() *prompt.WinSize {
	if w, h, err := term.GetSize(int(r.f.Fd())); err == nil {
		return &prompt.WinSize{Row: uint16(h), Col: uint16(w)}
	}
	return &prompt.WinSize{Row: Rows, Col: Cols}
}

// consoleWriter renders the prompt onto the pty's inner half. Writes land
// on the pty immediately, so Flush has nothing to do.
type consoleWriter struct {
	f *os.File
}

func (w *consoleWriter) Write(p []byte) (int, error)       { return w.f.Write(p) }
func (w *consoleWriter) WriteString(s string) (int, error) { return w.f.WriteString(s) }
func (w *consoleWriter) WriteRaw(p []byte)                 { _, _ = w.f.Write(p) }
func (w *consoleWriter) WriteRawString(s string)           { _, _ = w.f.WriteString(s) }
func (w *consoleWriter) Flush() error                      { return nil }

// csi emits a control sequence introducer followed by body.
func (w *consoleWriter) csi(body string) { w.WriteRawString("\x1b[" + body) }

func (w *consoleWriter) EraseScreen()      { w.csi("2J") }
func (w *consoleWriter) EraseUp()          { w.csi("1J") }
func (w *consoleWriter) EraseDown()        { w.csi("0J") }
func (w *consoleWriter) EraseStartOfLine() { w.csi("1K") }
func (w *consoleWriter) EraseEndOfLine()   { w.csi("0K") }
func (w *consoleWriter) EraseLine()        { w.csi("2K") }
func (w *consoleWriter) ShowCursor()       { w.csi("?25h") }
func (w *consoleWriter) HideCursor()       { w.csi("?25l") }

func (w *consoleWriter) CursorGoTo(row, col int) { w.csi(fmt.Sprintf("%d;%dH", row, col)) }
func (w *consoleWriter) CursorUp(n int)          { w.csi(fmt.Sprintf("%dA", n)) }
func (w *consoleWriter) CursorDown(n int)        { w.csi(fmt.Sprintf("%dB", n)) }
func (w *consoleWriter) CursorForward(n int)     { w.csi(fmt.Sprintf("%dC", n)) }
func (w *consoleWriter) CursorBackward(n int)    { w.csi(fmt.Sprintf("%dD", n)) }
func (w *consoleWriter) AskForCPR()              { w.csi("6n") }
func (w *consoleWriter) SaveCursor()             { w.csi("s") }
func (w *consoleWriter) UnSaveCursor()           { w.csi("u") }

func (w *consoleWriter) ScrollDown() { w.WriteRawString("\x1bD") }
func (w *consoleWriter) ScrollUp()   { w.WriteRawString("\x1bM") }

func (w *consoleWriter) SetTitle(title string) { w.WriteRawString("\x1b]0;" + title + "\x07") }
func (w *consoleWriter) ClearTitle()           { w.WriteRawString("\x1b]0;\x07") }

func (w *consoleWriter) SetColor(fg, bg prompt.Color, bold bool) {
	if bold {
		w.csi(fmt.Sprintf("1;%d;%dm", int(fg)+30, int(bg)+40))
	} else {
		w.csi(fmt.Sprintf("%d;%dm", int(fg)+30, int(bg)+40))
	}
}

func (w *consoleWriter) SetDisplayAttributes(fg, bg prompt.Color, attrs ...prompt.DisplayAttribute) {
	w.SetColor(fg, bg, false)
}

var (
	_ prompt.Reader = (*consoleReader)(nil)
	_ prompt.Writer = (*consoleWriter)(nil)
)
