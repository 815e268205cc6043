package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/viewscreen/viewscreen/internal/config"
	"github.com/viewscreen/viewscreen/internal/envelope"
	"github.com/viewscreen/viewscreen/internal/feed"
	"github.com/viewscreen/viewscreen/internal/host"
	"github.com/viewscreen/viewscreen/internal/panel"
	"github.com/viewscreen/viewscreen/internal/surfacestate"
	"github.com/viewscreen/viewscreen/internal/webhost"
)

// ServeCommand hosts the commit feed panel over HTTP and streams
// repository history into it until interrupted.
type ServeCommand struct {
	*BaseCommand
	config *config.Config

	address   string
	open      bool
	browser   string
	resume    bool
	position  string
	stateFile string
	feedPath  string
	feedLimit int
	feedPoll  time.Duration
	logPath   string
	logLevel  string

	// ctxFactory lets tests substitute a cancellable context for the
	// signal-bound default.
	ctxFactory func() (context.Context, context.CancelFunc)
}

// NewServeCommand creates a new serve command.
func NewServeCommand(cfg *config.Config) *ServeCommand {
	return &ServeCommand{
		BaseCommand: NewBaseCommand(
			"serve",
			"Host the commit feed panel over HTTP",
			"serve [options] [directory]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the serve command.
func (c *ServeCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.address, "address", "", "Listen address (default 127.0.0.1:0)")
	fs.BoolVar(&c.open, "open", false, "Open the panel in a browser once it is revealed")
	fs.StringVar(&c.browser, "browser", "", "Browser command for -open (default: the platform opener)")
	fs.BoolVar(&c.resume, "resume", false, "Revive the persisted panel instead of creating a new one")
	fs.StringVar(&c.position, "position", "", "Panel position: side or active")
	fs.StringVar(&c.stateFile, "state-file", "", "Panel state file (default: resolved from config)")
	fs.StringVar(&c.feedPath, "feed-path", "", "Repository to stream history from (default: the panel directory)")
	fs.IntVar(&c.feedLimit, "feed-limit", 0, "Maximum number of feed entries")
	fs.DurationVar(&c.feedPoll, "feed-poll", 0, "Interval between feed refreshes")
	fs.StringVar(&c.logPath, "log-file", "", "Path to log file (JSON output)")
	fs.StringVar(&c.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// Execute runs the panel host until the context is cancelled.
func (c *ServeCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 1 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args[1:])
		return fmt.Errorf("unexpected arguments")
	}

	lc, err := resolveLogConfig(c.logPath, c.logLevel, 0, c.config)
	if err != nil {
		return err
	}
	if lc.logFile != nil {
		defer func() { _ = lc.logFile.Close() }()
	}
	log := lc.logger(stderr)
	slog.SetDefault(log)

	base, err := resolveBaseDir(args)
	if err != nil {
		return err
	}
	position, err := host.ParsePosition(c.position)
	if err != nil {
		return err
	}

	store, err := resolveStateStore(c.stateFile, c.config)
	if err != nil {
		return err
	}
	release, err := store.Acquire()
	if err != nil {
		if errors.Is(err, surfacestate.ErrLocked) {
			return fmt.Errorf("another host already owns the panel state at %s", store.Path())
		}
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			log.Warn("failed to release panel state lock", "error", rerr)
		}
	}()

	ctxFactory := c.ctxFactory
	if ctxFactory == nil {
		ctxFactory = func() (context.Context, context.CancelFunc) {
			return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		}
	}
	ctx, cancel := ctxFactory()
	defer cancel()

	h, err := webhost.New(webhost.Options{
		Address:    c.resolveAddress(),
		Open:       c.resolveOpen(),
		Browser:    c.resolveBrowser(),
		MediaRoots: c.mediaRoots(),
		Log:        log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			log.Warn("panel host shutdown", "error", cerr)
		}
	}()

	mgr := panel.NewManager(h, log)
	defer func() { _ = mgr.Dispose() }()

	if c.resume {
		if rerr := c.reviveFromRecord(mgr, h, store, base, len(args) == 1, log); rerr != nil {
			log.Warn("cannot resume persisted panel, creating a new one", "error", rerr)
		}
	}

	// Show reveals a revived instance itself; a freshly created one is
	// revealed explicitly below, which announces the panel URL.
	created := mgr.State() == panel.StateAbsent
	pend, err := mgr.Show(ctx, base, position)
	if err != nil {
		return err
	}
	desc, ok := mgr.Describe()
	if !ok {
		return errors.New("panel disappeared during startup")
	}
	surface, ok := h.Surface(desc.Handle)
	if !ok {
		return errors.New("panel surface not registered with the host")
	}
	if created {
		if err := surface.Reveal(position); err != nil {
			log.Warn("panel reveal failed", "error", err)
		}
	}

	if err := store.Save(surfacestate.Record{
		Handle:   desc.Handle,
		ViewType: panel.ViewType,
		Title:    panel.PanelTitle,
		Base:     desc.Base,
		Position: desc.Position.String(),
	}); err != nil {
		log.Warn("cannot persist panel state", "error", err)
	}

	go func() {
		if err := pend.Await(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Warn("panel readiness", "error", err)
			}
			return
		}
		log.Info("panel ready", "handle", desc.Handle)
	}()

	if source := c.newFeedSource(base, log); source != nil {
		// A Pending settles once, but every document load posts a fresh
		// ready and envelopes posted with no viewer are dropped. Answer
		// each ready with the current snapshot so late and reconnecting
		// viewers start populated.
		reg := surface.OnMessage(func(env envelope.Envelope) {
			if env.Command != envelope.CommandReady {
				return
			}
			reset, rerr := source.Reset()
			if rerr != nil {
				log.Warn("feed snapshot failed", "error", rerr)
				return
			}
			if perr := mgr.PostMessage(reset); perr != nil {
				log.Warn("feed snapshot post failed", "error", perr)
			}
		})
		defer func() { _ = reg() }()

		go func() {
			if werr := source.Watch(ctx, c.resolvePollInterval(), mgr.PostMessage); werr != nil {
				log.Error("feed watch stopped", "error", werr)
			}
		}()
	}

	if !quietEnabled(c.config) {
		_, _ = fmt.Fprintf(stdout, "Hosting %s for %s on %s\n", panel.PanelTitle, base, h.BaseURL())
		_, _ = fmt.Fprintln(stdout, "Press Ctrl+C to stop.")
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// reviveFromRecord rebuilds the panel from the persisted record. An
// explicit directory argument overrides the recorded base.
func (c *ServeCommand) reviveFromRecord(mgr *panel.Manager, h *webhost.WebHost, store *surfacestate.Store, base string, explicitBase bool, log *slog.Logger) error {
	rec, err := store.Load()
	if err != nil {
		return err
	}
	if rec.ViewType != panel.ViewType {
		return fmt.Errorf("persisted surface has view type %q, want %q", rec.ViewType, panel.ViewType)
	}
	surface, err := h.RestoreSurface(rec.Handle, rec.ViewType)
	if err != nil {
		return err
	}
	reviveBase := rec.Base
	if explicitBase {
		reviveBase = base
	}
	if err := mgr.Revive(surface, reviveBase); err != nil {
		// Don't leave the orphaned surface on the host.
		_ = surface.Dispose()
		return err
	}
	log.Info("panel revived", "handle", rec.Handle, "base", reviveBase)
	return nil
}

// resolveBaseDir picks the panel base directory: the positional argument,
// defaulting to the working directory.
func resolveBaseDir(args []string) (string, error) {
	base := ""
	if len(args) == 1 {
		base = args[0]
	}
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve working directory: %w", err)
		}
		base = wd
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", base, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot use %s as the panel base: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("panel base %s is not a directory", abs)
	}
	return abs, nil
}

// newFeedSource builds the commit feed source, or nil when no usable
// repository backs the resolved path.
func (c *ServeCommand) newFeedSource(base string, log *slog.Logger) *feed.Source {
	path, limit := resolveFeedSettings(c.config, c.feedPath, c.feedLimit, base)
	source := feed.New(path, limit, log)
	if _, err := source.Snapshot(); err != nil {
		log.Warn("feed disabled, history source unavailable", "path", path, "error", err)
		return nil
	}
	return source
}

// resolveFeedSettings picks the feed repository path and entry limit from
// flags, configuration, and the panel base, in that order.
func resolveFeedSettings(cfg *config.Config, flagPath string, flagLimit int, base string) (string, int) {
	path := flagPath
	if path == "" && cfg != nil {
		path = config.DefaultSchema().Resolve(cfg, "feed.path")
	}
	if path == "" {
		path = base
	}
	limit := flagLimit
	if limit <= 0 && cfg != nil {
		limit = cfg.GetInt("feed.limit")
	}
	return path, limit
}

func (c *ServeCommand) resolvePollInterval() time.Duration {
	if c.feedPoll > 0 {
		return c.feedPoll
	}
	if c.config != nil {
		if d := c.config.GetDuration("feed.poll-interval"); d > 0 {
			return d
		}
	}
	return feed.DefaultPollInterval
}

func (c *ServeCommand) resolveAddress() string {
	if c.address != "" {
		return c.address
	}
	if c.config != nil {
		return config.DefaultSchema().ResolveCommand(c.config, "serve", "address")
	}
	return ""
}

func (c *ServeCommand) resolveOpen() bool {
	if c.open {
		return true
	}
	if c.config != nil {
		return optionEnabled(config.DefaultSchema().ResolveCommand(c.config, "serve", "open"))
	}
	return false
}

func (c *ServeCommand) resolveBrowser() string {
	if c.browser != "" {
		return c.browser
	}
	if c.config != nil {
		return config.DefaultSchema().ResolveCommand(c.config, "serve", "browser")
	}
	return ""
}

func (c *ServeCommand) mediaRoots() []string {
	if c.config == nil {
		return nil
	}
	return c.config.Media.Roots
}

// quietEnabled reports whether the quiet global suppresses stdout banners.
func quietEnabled(cfg *config.Config) bool {
	return cfg != nil && cfg.GetBool("quiet")
}

// optionEnabled interprets a resolved schema value as a boolean, using
// the same token set the config parser accepts.
func optionEnabled(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
