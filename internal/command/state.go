package command

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/viewscreen/viewscreen/internal/config"
	"github.com/viewscreen/viewscreen/internal/surfacestate"
)

// StateCommand inspects and manages the persisted panel record.
type StateCommand struct {
	*BaseCommand
	config    *config.Config
	stateFile string
}

// NewStateCommand creates a new state command.
func NewStateCommand(cfg *config.Config) *StateCommand {
	return &StateCommand{
		BaseCommand: NewBaseCommand(
			"state",
			"Inspect the persisted panel record",
			"state [show|path|clear] [options]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the state command.
func (c *StateCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.stateFile, "state-file", "", "Panel state file (default: resolved from config)")
}

// resolveStateStore picks the panel state path: the flag value, then
// the [serve] state-file option (the file is owned by serve; every
// command resolves it the same way), then the per-user default.
func resolveStateStore(flagPath string, cfg *config.Config) (*surfacestate.Store, error) {
	path := flagPath
	if path == "" && cfg != nil {
		path = config.DefaultSchema().ResolveCommand(cfg, "serve", "state-file")
	}
	if path == "" {
		var err error
		path, err = surfacestate.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return surfacestate.NewStore(path), nil
}

// Execute dispatches to the state subcommands. The default subcommand
// is "show".
func (c *StateCommand) Execute(args []string, stdout, stderr io.Writer) error {
	sub := "show"
	rest := args
	if len(args) > 0 {
		sub = args[0]
		rest = args[1:]
	}

	store, err := resolveStateStore(c.stateFile, c.config)
	if err != nil {
		return err
	}

	switch sub {
	case "show":
		return c.executeShow(rest, store, stdout)
	case "path":
		_, _ = fmt.Fprintln(stdout, store.Path())
		return nil
	case "clear":
		if err := store.Clear(); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "Cleared panel state at %s\n", store.Path())
		return nil
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown state subcommand: %s\n", sub)
		_, _ = fmt.Fprintln(stderr, "Usage: state [show|path|clear] [options]")
		return fmt.Errorf("unknown subcommand: %s", sub)
	}
}

// stateReport is the JSON shape of `state show -format json`.
type stateReport struct {
	Present bool                 `json:"present"`
	Active  bool                 `json:"active"`
	Record  *surfacestate.Record `json:"record,omitempty"`
}

func (c *StateCommand) executeShow(args []string, store *surfacestate.Store, stdout io.Writer) error {
	fs := flag.NewFlagSet("state-show", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	format := fs.String("format", "", "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintln(stdout, "Usage: state show [-format text|json]")
			return nil
		}
		return err
	}

	outFormat := *format
	if outFormat == "" && c.config != nil {
		outFormat = config.DefaultSchema().ResolveCommand(c.config, "state", "format")
	}
	if outFormat == "" {
		outFormat = "text"
	}
	if outFormat != "text" && outFormat != "json" {
		return fmt.Errorf("invalid format: %s", outFormat)
	}

	report := stateReport{Active: store.Locked()}
	rec, err := store.Load()
	switch {
	case err == nil:
		report.Present = true
		report.Record = &rec
	case errors.Is(err, surfacestate.ErrNoRecord):
		// Present stays false.
	default:
		return err
	}

	if outFormat == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if !report.Present {
		_, _ = fmt.Fprintln(stdout, "No panel state recorded.")
		if report.Active {
			_, _ = fmt.Fprintln(stdout, "A host currently holds the state lock.")
		}
		return nil
	}

	_, _ = fmt.Fprintf(stdout, "Handle:\t%s\n", rec.Handle)
	_, _ = fmt.Fprintf(stdout, "View type:\t%s\n", rec.ViewType)
	_, _ = fmt.Fprintf(stdout, "Title:\t%s\n", rec.Title)
	_, _ = fmt.Fprintf(stdout, "Base:\t%s\n", rec.Base)
	_, _ = fmt.Fprintf(stdout, "Position:\t%s\n", rec.Position)
	_, _ = fmt.Fprintf(stdout, "Updated:\t%s\n", rec.UpdatedAt.Format(time.RFC3339))
	active := "no"
	if report.Active {
		active = "yes"
	}
	_, _ = fmt.Fprintf(stdout, "Active host:\t%s\n", active)
	return nil
}
