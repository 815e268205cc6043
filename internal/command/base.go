package command

import (
	"flag"
	"io"
)

// Command is the contract every viewscreen subcommand satisfies. The
// dispatcher owns flag parsing: SetupFlags declares the command's flags on
// a FlagSet built by the registry, and Execute receives the positional
// arguments left over after parsing. Commands write to the provided
// streams rather than os.Stdout so the repl and tests can capture output.
type Command interface {
	Name() string
	Description() string
	Usage() string
	SetupFlags(fs *flag.FlagSet)
	Execute(args []string, stdout, stderr io.Writer) error
}

// BaseCommand carries the static metadata shared by every command so the
// concrete implementations only provide SetupFlags and Execute.
type BaseCommand struct {
	name, description, usage string
}

func NewBaseCommand(name, description, usage string) *BaseCommand {
	return &BaseCommand{name: name, description: description, usage: usage}
}

func (c *BaseCommand) Name() string        { return c.name }
func (c *BaseCommand) Description() string { return c.description }
func (c *BaseCommand) Usage() string       { return c.usage }

// SetupFlags declares no flags; commands with options override it.
func (c *BaseCommand) SetupFlags(fs *flag.FlagSet) {}
