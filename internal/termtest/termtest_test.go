package termtest

import (
	"bufio"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/go-prompt"
)

const waitTimeout = 5 * time.Second

func TestConsoleTranscript(t *testing.T) {
	c := New(t)

	go func() {
		_, _ = fmt.Fprintln(c.Tty(), "program says hi")
	}()
	c.WaitFor("program says hi", waitTimeout)

	// A typed line reaches the inner half through the cooked-mode line
	// discipline.
	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(c.Tty()).ReadString('\n')
		lines <- line
	}()
	c.SendLine("hello console")
	select {
	case got := <-lines:
		if strings.TrimRight(got, "\r\n") != "hello console" {
			t.Fatalf("inner half read %q", got)
		}
	case <-time.After(waitTimeout):
		t.Fatal("typed line never reached the inner half")
	}
}

func TestConsoleDrivesPrompt(t *testing.T) {
	c := New(t)

	executed := make(chan string, 4)
	opts := append([]prompt.Option{
		prompt.WithPrefix("demo> "),
		prompt.WithExitChecker(func(in string, breakline bool) bool {
			return breakline && strings.TrimSpace(in) == "quit"
		}),
	}, c.PromptOptions()...)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		prompt.New(func(line string) { executed <- line }, opts...).Run()
	}()

	c.WaitFor("demo> ", waitTimeout)
	c.SendLine("feed the panel")
	select {
	case got := <-executed:
		if got != "feed the panel" {
			t.Fatalf("executor got %q", got)
		}
	case <-time.After(waitTimeout):
		t.Fatal("executor never ran")
	}

	c.SendLine("quit")
	select {
	case <-runDone:
	case <-time.After(waitTimeout):
		t.Fatal("prompt did not exit on quit")
	}
}

func TestConsoleCapturesUnterminatedWrite(t *testing.T) {
	c := New(t)

	// No trailing newline: the transcript must still observe the bytes.
	if _, err := fmt.Fprint(c.Tty(), "partial"); err != nil {
		t.Fatal(err)
	}
	c.WaitFor("partial", waitTimeout)
}
