package command

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
	"unicode"

	"github.com/joeycumines/go-prompt"
	istrings "github.com/joeycumines/go-prompt/strings"
	"github.com/viewscreen/viewscreen/internal/config"
	"github.com/viewscreen/viewscreen/internal/envelope"
	"github.com/viewscreen/viewscreen/internal/feed"
	"github.com/viewscreen/viewscreen/internal/host"
	"github.com/viewscreen/viewscreen/internal/logging"
	"github.com/viewscreen/viewscreen/internal/panel"
	"github.com/viewscreen/viewscreen/internal/scripthost"
)

// showAwaitTimeout bounds how long the show verb waits for the view's
// ready handshake before handing the prompt back.
const showAwaitTimeout = 5 * time.Second

// replLogWindow is how many captured records a bare logs verb prints.
const replLogWindow = 20

// ReplCommand drives the commit feed panel from an interactive console.
// The view runs in-process on the script host, so every controller
// operation can be exercised without a browser attached.
type ReplCommand struct {
	*BaseCommand
	config *config.Config

	logPath   string
	logLevel  string
	logBuffer int

	// runLoop lets tests drive a session without a terminal.
	runLoop func(sess *replSession)
}

// NewReplCommand creates a new repl command.
func NewReplCommand(cfg *config.Config) *ReplCommand {
	return &ReplCommand{
		BaseCommand: NewBaseCommand(
			"repl",
			"Drive the commit feed panel from an interactive console",
			"repl [options] [directory]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the repl command.
func (c *ReplCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.logPath, "log-file", "", "Path to log file (JSON output)")
	fs.StringVar(&c.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.IntVar(&c.logBuffer, "log-buffer", 0, "In-memory log entries kept for the logs verb")
}

// Execute runs the interactive console until the exit verb.
func (c *ReplCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 1 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args[1:])
		return fmt.Errorf("unexpected arguments")
	}

	lc, err := resolveLogConfig(c.logPath, c.logLevel, c.logBuffer, c.config)
	if err != nil {
		return err
	}
	if lc.logFile != nil {
		defer func() { _ = lc.logFile.Close() }()
	}
	// Keep log records off the terminal while the prompt owns it. The
	// buffer serves the logs verb; the file, when configured, gets the
	// full stream.
	log, buffer := lc.bufferedLogger()
	slog.SetDefault(log)

	base, err := resolveBaseDir(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sh := scripthost.New(log)
	defer func() { _ = sh.Close() }()
	mgr := panel.NewManager(sh, log)
	defer func() { _ = mgr.Dispose() }()

	feedPath, feedLimit := resolveFeedSettings(c.config, "", 0, base)

	sess := &replSession{
		cmd:    c,
		ctx:    ctx,
		host:   sh,
		mgr:    mgr,
		feed:   feed.New(feedPath, feedLimit, log),
		buffer: buffer,
		base:   base,
		stdout: stdout,
	}

	if !quietEnabled(c.config) {
		_, _ = fmt.Fprintf(stdout, "viewscreen console for %s\n", base)
		_, _ = fmt.Fprintln(stdout, "Type 'help' for commands, 'exit' to leave.")
	}

	run := c.runLoop
	if run == nil {
		run = c.promptLoop
	}
	run(sess)
	return nil
}

// promptLoop blocks on the terminal prompt until the session is done.
func (c *ReplCommand) promptLoop(sess *replSession) {
	p := prompt.New(sess.execute, c.promptOptions(sess)...)
	p.Run()
}

// promptOptions assembles the go-prompt configuration: prefix and colors
// from the config file, verb completion, and persisted history.
func (c *ReplCommand) promptOptions(sess *replSession) []prompt.Option {
	options := []prompt.Option{
		prompt.WithPrefix(c.resolvePrefix()),
		prompt.WithCompleter(sess.complete),
		prompt.WithExitChecker(func(in string, breakline bool) bool {
			return sess.closed()
		}),
	}
	if c.colorMode() != "never" {
		colors := defaultPromptColors()
		if c.config != nil {
			colors.applyFromStringMap(c.config.Colors)
		}
		options = append(options,
			prompt.WithInputTextColor(colors.InputText),
			prompt.WithPrefixTextColor(colors.PrefixText),
			prompt.WithSuggestionTextColor(colors.SuggestionText),
			prompt.WithSuggestionBGColor(colors.SuggestionBG),
			prompt.WithSelectedSuggestionTextColor(colors.SelectedSuggestionText),
			prompt.WithSelectedSuggestionBGColor(colors.SelectedSuggestionBG),
			prompt.WithDescriptionTextColor(colors.DescriptionText),
			prompt.WithDescriptionBGColor(colors.DescriptionBG),
			prompt.WithSelectedDescriptionTextColor(colors.SelectedDescriptionText),
			prompt.WithSelectedDescriptionBGColor(colors.SelectedDescriptionBG),
			prompt.WithScrollbarThumbColor(colors.ScrollbarThumb),
			prompt.WithScrollbarBGColor(colors.ScrollbarBG),
		)
	}
	if history := loadHistory(c.historyPath()); len(history) > 0 {
		options = append(options, prompt.WithHistory(history))
	}
	return options
}

func (c *ReplCommand) resolvePrefix() string {
	prefix := ""
	if c.config != nil {
		prefix = config.DefaultSchema().ResolveCommand(c.config, "repl", "prefix")
	}
	if prefix == "" {
		prefix = "viewscreen> "
	}
	// The config parser trims trailing whitespace from values.
	if !strings.HasSuffix(prefix, " ") {
		prefix += " "
	}
	return prefix
}

func (c *ReplCommand) historyPath() string {
	path := ""
	if c.config != nil {
		path = config.DefaultSchema().ResolveCommand(c.config, "repl", "history-file")
	}
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		path = filepath.Join(home, path)
	}
	return path
}

func (c *ReplCommand) colorMode() string {
	if c.config == nil {
		return "auto"
	}
	if v := config.DefaultSchema().Resolve(c.config, "color"); v != "" {
		return strings.ToLower(v)
	}
	return "auto"
}

// replSession is one interactive console over an in-process panel host.
type replSession struct {
	cmd    *ReplCommand
	ctx    context.Context
	host   *scripthost.ScriptHost
	mgr    *panel.Manager
	feed   *feed.Source
	buffer *logging.Buffer
	base   string
	stdout io.Writer

	mu   sync.Mutex
	done bool
}

// execute is the prompt executor for one submitted line.
func (sess *replSession) execute(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	appendHistory(sess.cmd.historyPath(), line)
	sess.executeLine(line, sess.stdout)
}

// replVerbs drives both the help verb and prompt completion.
var replVerbs = []struct {
	name string
	args string
	help string
}{
	{"show", "[side|active]", "Create the panel or reveal the existing one"},
	{"hide", "", "Hide the panel without disposing it"},
	{"post", "<command> [json]", "Post an envelope to the view"},
	{"feed", "", "Post the current commit snapshot"},
	{"state", "", "Describe the tracked panel"},
	{"notifications", "", "List view error notifications"},
	{"logs", "[query]", "Show captured host logs"},
	{"dispose", "", "Dispose the panel"},
	{"help", "", "Show this help"},
	{"exit", "", "Leave the console"},
}

func (sess *replSession) executeLine(line string, out io.Writer) {
	verb, rest := splitWord(line)
	switch verb {
	case "help":
		sess.printHelp(out)
	case "show":
		sess.doShow(rest, out)
	case "hide":
		sess.doHide(out)
	case "post":
		sess.doPost(rest, out)
	case "feed":
		sess.doFeed(out)
	case "state":
		sess.doState(out)
	case "notifications":
		sess.doNotifications(out)
	case "logs":
		sess.doLogs(rest, out)
	case "dispose":
		sess.doDispose(out)
	case "exit", "quit":
		sess.markDone()
		_, _ = fmt.Fprintln(out, "bye")
	default:
		_, _ = fmt.Fprintf(out, "unknown command %q, try 'help'\n", verb)
	}
}

func (sess *replSession) printHelp(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, v := range replVerbs {
		usage := v.name
		if v.args != "" {
			usage += " " + v.args
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", usage, v.help)
	}
	_ = w.Flush()
}

func (sess *replSession) doShow(arg string, out io.Writer) {
	position, err := host.ParsePosition(arg)
	if err != nil {
		_, _ = fmt.Fprintln(out, err)
		return
	}
	pending, err := sess.mgr.Show(sess.ctx, sess.base, position)
	if err != nil {
		_, _ = fmt.Fprintf(out, "show failed: %v\n", err)
		return
	}
	desc, _ := sess.mgr.Describe()
	// The script host runs the view in-process, so readiness normally
	// lands well inside the timeout.
	waitCtx, cancel := context.WithTimeout(sess.ctx, showAwaitTimeout)
	defer cancel()
	if err := pending.Await(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			_, _ = fmt.Fprintf(out, "panel %s shown, still waiting for the view to load\n", desc.Handle)
		} else {
			_, _ = fmt.Fprintf(out, "panel %s load failed: %v\n", desc.Handle, err)
		}
		return
	}
	_, _ = fmt.Fprintf(out, "panel %s ready\n", desc.Handle)
}

func (sess *replSession) doHide(out io.Writer) {
	desc, ok := sess.mgr.Describe()
	if !ok {
		_, _ = fmt.Fprintln(out, "no panel to hide")
		return
	}
	surface, ok := sess.host.Surface(desc.Handle)
	if !ok {
		_, _ = fmt.Fprintln(out, "no panel to hide")
		return
	}
	surface.SetVisible(false)
	_, _ = fmt.Fprintln(out, "panel hidden, 'show' reveals it again")
}

func (sess *replSession) doPost(rest string, out io.Writer) {
	name, payload := splitWord(rest)
	if name == "" {
		_, _ = fmt.Fprintln(out, "usage: post <command> [json]")
		return
	}
	env := envelope.Envelope{Command: envelope.Command(name)}
	if payload != "" {
		var data any
		if err := json.Unmarshal([]byte(payload), &data); err != nil {
			_, _ = fmt.Fprintf(out, "invalid payload: %v\n", err)
			return
		}
		env.Data = data
	}
	if sess.mgr.State() == panel.StateAbsent {
		_, _ = fmt.Fprintln(out, "no panel, envelope dropped")
		return
	}
	if err := sess.mgr.PostMessage(env); err != nil {
		_, _ = fmt.Fprintf(out, "post failed: %v\n", err)
		return
	}
	_, _ = fmt.Fprintf(out, "posted %s\n", env.Command)
}

func (sess *replSession) doFeed(out io.Writer) {
	env, err := sess.feed.Reset()
	if err != nil {
		_, _ = fmt.Fprintf(out, "feed unavailable: %v\n", err)
		return
	}
	if sess.mgr.State() == panel.StateAbsent {
		_, _ = fmt.Fprintln(out, "no panel, run 'show' first")
		return
	}
	if err := sess.mgr.PostMessage(env); err != nil {
		_, _ = fmt.Fprintf(out, "post failed: %v\n", err)
		return
	}
	if data, ok := env.Data.(envelope.FeedResetData); ok {
		_, _ = fmt.Fprintf(out, "posted %d entries from %s\n", len(data.Entries), data.Source)
	}
}

func (sess *replSession) doState(out io.Writer) {
	desc, ok := sess.mgr.Describe()
	if !ok {
		_, _ = fmt.Fprintln(out, "state: absent")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "state:\t%s\n", sess.mgr.State())
	_, _ = fmt.Fprintf(w, "handle:\t%s\n", desc.Handle)
	_, _ = fmt.Fprintf(w, "base:\t%s\n", desc.Base)
	_, _ = fmt.Fprintf(w, "position:\t%s\n", desc.Position)
	if surface, ok := sess.host.Surface(desc.Handle); ok {
		_, _ = fmt.Fprintf(w, "title:\t%s\n", surface.Title())
		_, _ = fmt.Fprintf(w, "visible:\t%v\n", surface.Visible())
	}
	_, _ = fmt.Fprintf(w, "nonce:\t%s\n", desc.Nonce)
	_ = w.Flush()
}

func (sess *replSession) doNotifications(out io.Writer) {
	notes := sess.host.Notifications()
	if len(notes) == 0 {
		_, _ = fmt.Fprintln(out, "no notifications")
		return
	}
	for i, note := range notes {
		_, _ = fmt.Fprintf(out, "%d. %s\n", i+1, note)
	}
}

func (sess *replSession) doLogs(query string, out io.Writer) {
	var entries []logging.Entry
	if query == "" {
		entries = sess.buffer.Recent(replLogWindow)
	} else {
		entries = sess.buffer.Search(query)
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(out, "no log entries")
		return
	}
	for _, e := range entries {
		_, _ = fmt.Fprintf(out, "%s %s %s", e.Time.Format("15:04:05.000"), e.Level, e.Message)
		keys := make([]string, 0, len(e.Attrs))
		for k := range e.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(out, " %s=%s", k, e.Attrs[k])
		}
		_, _ = fmt.Fprintln(out)
	}
}

func (sess *replSession) doDispose(out io.Writer) {
	if sess.mgr.State() == panel.StateAbsent {
		_, _ = fmt.Fprintln(out, "no panel to dispose")
		return
	}
	if err := sess.mgr.Dispose(); err != nil {
		_, _ = fmt.Fprintf(out, "dispose failed: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(out, "panel disposed")
}

func (sess *replSession) markDone() {
	sess.mu.Lock()
	sess.done = true
	sess.mu.Unlock()
}

func (sess *replSession) closed() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.done
}

// complete suggests verbs for the first word and verb arguments after it.
func (sess *replSession) complete(document prompt.Document) ([]prompt.Suggest, istrings.RuneNumber, istrings.RuneNumber) {
	before := document.TextBeforeCursor()
	// An unpositioned document reports no text before the cursor.
	if before == "" {
		before = document.Text
	}
	word := currentWord(before)
	start := istrings.RuneNumber(runeLen(before) - runeLen(word))
	end := istrings.RuneNumber(runeLen(before))

	var suggestions []prompt.Suggest
	fields := strings.Fields(before)
	if len(fields) == 0 || (len(fields) == 1 && word != "") {
		for _, v := range replVerbs {
			if strings.HasPrefix(v.name, word) {
				suggestions = append(suggestions, prompt.Suggest{Text: v.name, Description: v.help})
			}
		}
		return suggestions, start, end
	}
	switch fields[0] {
	case "show":
		for _, p := range []string{"side", "active"} {
			if strings.HasPrefix(p, word) {
				suggestions = append(suggestions, prompt.Suggest{Text: p, Description: "Panel position"})
			}
		}
	case "post":
		for _, cmd := range []envelope.Command{envelope.CommandFeedReset, envelope.CommandFeedAppend} {
			if strings.HasPrefix(string(cmd), word) {
				suggestions = append(suggestions, prompt.Suggest{Text: string(cmd), Description: "View command"})
			}
		}
	}
	return suggestions, start, end
}

// splitWord splits the first whitespace-delimited word from the rest of
// the line.
func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// currentWord returns the word being typed at the cursor, empty when the
// cursor follows whitespace.
func currentWord(before string) string {
	if before == "" || unicode.IsSpace(rune(before[len(before)-1])) {
		return ""
	}
	parts := strings.Fields(before)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func runeLen(s string) int {
	return len([]rune(s))
}
