package command

import (
	"fmt"
	"maps"
	"slices"
)

// Registry holds the available subcommands, keyed by name.
type Registry struct {
	commands map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a command, replacing any previous registration of the name.
func (r *Registry) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

// Get looks up a command by name.
func (r *Registry) Get(name string) (Command, error) {
	cmd, ok := r.commands[name]
	if !ok {
		return nil, fmt.Errorf("command not found: %s", name)
	}
	return cmd, nil
}

// List returns the registered command names in sorted order.
func (r *Registry) List() []string {
	return slices.Sorted(maps.Keys(r.commands))
}
