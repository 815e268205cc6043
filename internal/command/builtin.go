package command

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/viewscreen/viewscreen/internal/config"
)

// rejectArgs errors out on positional arguments for commands that take none.
func rejectArgs(args []string, stderr io.Writer) error {
	if len(args) == 0 {
		return nil
	}
	_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
	return fmt.Errorf("unexpected arguments")
}

// HelpCommand prints the command overview or the detail page for one command.
type HelpCommand struct {
	*BaseCommand
	registry *Registry
}

func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{
		BaseCommand: NewBaseCommand(
			"help",
			"Display help information for commands",
			"help [command]",
		),
		registry: registry,
	}
}

func (c *HelpCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		c.printOverview(stdout)
		return nil
	}
	cmd, err := c.registry.Get(args[0])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		return err
	}
	c.printCommand(cmd, stdout)
	return nil
}

func (c *HelpCommand) printOverview(out io.Writer) {
	_, _ = fmt.Fprintf(out, "viewscreen - present a live commit feed in a browser panel\n\n")
	_, _ = fmt.Fprintf(out, "Usage: viewscreen <command> [options] [args...]\n\n")
	_, _ = fmt.Fprintln(out, "Available commands:")
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	for _, name := range c.registry.List() {
		cmd, err := c.registry.Get(name)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", name, cmd.Description())
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nUse 'viewscreen help <command>' for more information about a specific command (includes flags).\n")
}

func (c *HelpCommand) printCommand(cmd Command, out io.Writer) {
	_, _ = fmt.Fprintf(out, "Command: %s\n", cmd.Name())
	_, _ = fmt.Fprintf(out, "Description: %s\n", cmd.Description())
	_, _ = fmt.Fprintf(out, "Usage: %s\n", cmd.Usage())
	if defaults := flagDefaults(cmd); defaults != "" {
		_, _ = fmt.Fprintf(out, "\nFlags:\n%s", defaults)
	}
}

// flagDefaults renders the command's flag help, or "" when it defines none.
func flagDefaults(cmd Command) string {
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	var buf bytes.Buffer
	fs.SetOutput(&buf)
	cmd.SetupFlags(fs)
	fs.PrintDefaults()
	return buf.String()
}

// VersionCommand prints the build version.
type VersionCommand struct {
	*BaseCommand
	version string
}

func NewVersionCommand(version string) *VersionCommand {
	return &VersionCommand{
		BaseCommand: NewBaseCommand(
			"version",
			"Display version information",
			"version",
		),
		version: version,
	}
}

func (c *VersionCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if err := rejectArgs(args, stderr); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "viewscreen version %s\n", c.version)
	return nil
}

// ConfigCommand reads, writes, and validates the configuration file.
type ConfigCommand struct {
	*BaseCommand
	config     *config.Config
	configPath string
	showGlobal bool
	showAll    bool
}

// NewConfigCommand builds the config command. An empty configPath skips
// persistence on set, which is what tests and callers without a resolved
// path want.
func NewConfigCommand(cfg *config.Config, configPath ...string) *ConfigCommand {
	var path string
	if len(configPath) > 0 {
		path = configPath[0]
	}
	return &ConfigCommand{
		BaseCommand: NewBaseCommand(
			"config",
			"Manage configuration settings",
			"config [options] [key] [value]",
		),
		config:     cfg,
		configPath: path,
	}
}

func (c *ConfigCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.showGlobal, "global", false, "Show only global configuration")
	fs.BoolVar(&c.showAll, "all", false, "Show all configuration (global and command-specific)")
}

func (c *ConfigCommand) Execute(args []string, stdout, stderr io.Writer) error {
	switch len(args) {
	case 0:
		switch {
		case c.showAll:
			c.printGlobal(stdout)
			_, _ = fmt.Fprintln(stdout, "\nCommand-specific configuration:")
			for _, name := range slices.Sorted(maps.Keys(c.config.Commands)) {
				_, _ = fmt.Fprintf(stdout, "  [%s]\n", name)
				options := c.config.Commands[name]
				for _, key := range slices.Sorted(maps.Keys(options)) {
					_, _ = fmt.Fprintf(stdout, "    %s: %s\n", key, options[key])
				}
			}
		case c.showGlobal:
			c.printGlobal(stdout)
		default:
			c.printUsage(stdout)
		}
		return nil
	case 1:
		switch args[0] {
		case "validate":
			c.printValidation(stdout)
		case "schema":
			_, _ = fmt.Fprint(stdout, config.DefaultSchema().FormatHelp())
		default:
			c.printValue(args[0], stdout)
		}
		return nil
	case 2:
		return c.set(args[0], args[1], stdout, stderr)
	default:
		_, _ = fmt.Fprintln(stderr, "Invalid number of arguments")
		return fmt.Errorf("invalid arguments")
	}
}

func (c *ConfigCommand) printGlobal(out io.Writer) {
	_, _ = fmt.Fprintln(out, "Global configuration:")
	for _, key := range slices.Sorted(maps.Keys(c.config.Global)) {
		_, _ = fmt.Fprintf(out, "  %s: %s\n", key, c.config.Global[key])
	}
}

func (c *ConfigCommand) printUsage(out io.Writer) {
	_, _ = fmt.Fprintln(out, "Configuration management:")
	_, _ = fmt.Fprintln(out, "  config <key>          - Get configuration value")
	_, _ = fmt.Fprintln(out, "  config <key> <value>  - Set configuration value")
	_, _ = fmt.Fprintln(out, "  config --global       - Show global configuration")
	_, _ = fmt.Fprintln(out, "  config --all          - Show all configuration")
	_, _ = fmt.Fprintln(out, "  config validate       - Validate configuration")
	_, _ = fmt.Fprintln(out, "  config schema         - Show configuration schema")
}

// printValue resolves a key the same way the runtime does: environment
// override, then the file, then the schema default.
func (c *ConfigCommand) printValue(key string, out io.Writer) {
	if value := config.DefaultSchema().Resolve(c.config, key); value != "" {
		_, _ = fmt.Fprintf(out, "%s: %s\n", key, value)
		return
	}
	if _, exists := c.config.GetGlobalOption(key); exists {
		// Present but set to the empty string.
		_, _ = fmt.Fprintf(out, "%s: \n", key)
		return
	}
	_, _ = fmt.Fprintf(out, "Configuration key '%s' not found\n", key)
}

func (c *ConfigCommand) printValidation(out io.Writer) {
	issues := config.ValidateConfig(c.config, config.DefaultSchema())
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(out, "Configuration is valid.")
		return
	}
	_, _ = fmt.Fprintf(out, "Configuration has %d issue(s):\n", len(issues))
	for _, issue := range issues {
		_, _ = fmt.Fprintf(out, "  - %s\n", issue)
	}
}

func (c *ConfigCommand) set(key, value string, stdout, stderr io.Writer) error {
	c.config.SetGlobalOption(key, value)

	path := c.configPath
	if path == "" {
		// Best effort; a set without a resolvable path still updates the
		// in-memory config.
		path, _ = config.GetConfigPath()
	}
	if path != "" {
		if err := config.SetKeyInFile(path, key, value); err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: failed to persist config to disk: %v\n", err)
		}
	}

	_, _ = fmt.Fprintf(stdout, "Set configuration: %s = %s\n", key, value)
	return nil
}

// InitCommand writes the commented starter configuration file.
type InitCommand struct {
	*BaseCommand
	force bool
}

func NewInitCommand() *InitCommand {
	return &InitCommand{
		BaseCommand: NewBaseCommand(
			"init",
			"Write a starter configuration file",
			"init [options]",
		),
	}
}

func (c *InitCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "Force initialization even if config already exists")
}

func (c *InitCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if err := rejectArgs(args, stderr); err != nil {
		return err
	}
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil && !c.force {
		_, _ = fmt.Fprintf(stdout, "Configuration already exists at: %s\n", configPath)
		_, _ = fmt.Fprintln(stdout, "Use --force to overwrite existing configuration")
		return nil
	}

	if err := config.EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Every schema option appears as a commented-out "key default" line,
	// so a fresh install behaves identically with or without the file.
	content := config.DefaultSchema().DefaultFileContent()
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	// Read the file back to catch anything the renderer produced that the
	// parser would reject.
	if written, err := config.LoadFromPath(configPath); err != nil {
		_, _ = fmt.Fprintf(stderr, "Warning: failed to load created config: %v\n", err)
	} else {
		for _, warning := range written.GetWarnings() {
			_, _ = fmt.Fprintf(stderr, "Warning: %s\n", warning)
		}
	}

	_, _ = fmt.Fprintf(stdout, "Initialized viewscreen configuration at: %s\n", configPath)
	return nil
}
