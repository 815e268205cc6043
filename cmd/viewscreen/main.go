package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/viewscreen/viewscreen/internal/command"
	"github.com/viewscreen/viewscreen/internal/config"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRegistry wires every subcommand against the loaded configuration.
func newRegistry(cfg *config.Config) *command.Registry {
	registry := command.NewRegistry()
	registry.Register(command.NewHelpCommand(registry))
	registry.Register(command.NewVersionCommand(version))
	registry.Register(command.NewConfigCommand(cfg))
	registry.Register(command.NewInitCommand())
	registry.Register(command.NewServeCommand(cfg))
	registry.Register(command.NewReplCommand(cfg))
	registry.Register(command.NewStateCommand(cfg))
	registry.Register(command.NewCompletionCommand(registry))
	return registry
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		// An unreadable config file should not brick the CLI.
		cfg = config.NewConfig()
	}
	registry := newRegistry(cfg)

	name := "help"
	if len(os.Args) > 1 && os.Args[1] != "-h" && os.Args[1] != "--help" {
		name = os.Args[1]
	}

	cmd, err := registry.Get(name)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Unknown command: %s\n", name)
		_, _ = fmt.Fprintln(os.Stderr, "Use 'viewscreen help' to see available commands.")
		return err
	}

	fs := flag.NewFlagSet(cmd.Name(), flag.ExitOnError)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s\n", cmd.Usage())
		_, _ = fmt.Fprintf(os.Stderr, "\n%s\n\n", cmd.Description())
		_, _ = fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
	}
	cmd.SetupFlags(fs)

	var flagArgs []string
	if len(os.Args) > 2 {
		flagArgs = os.Args[2:]
	}
	if err := fs.Parse(flagArgs); err != nil {
		return err
	}
	return cmd.Execute(fs.Args(), os.Stdout, os.Stderr)
}
