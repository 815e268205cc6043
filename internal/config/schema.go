package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// OptionType is the declared value type of a configuration option.
type OptionType string

const (
	// TypeString is a plain string value (the default for all config values).
	TypeString OptionType = "string"
	// TypeBool is a boolean value (true/false/1/0/yes/no/on/off).
	TypeBool OptionType = "bool"
	// TypeInt is an integer value.
	TypeInt OptionType = "int"
	// TypeDuration is a Go time.Duration value (e.g. "30s", "5m", "1h").
	TypeDuration OptionType = "duration"
	// TypePathList is a colon-separated (or semicolon on Windows) list of paths.
	TypePathList OptionType = "path-list"
)

// ConfigOption declares one configuration option: its type, default,
// documentation, and environment variable override.
type ConfigOption struct {
	// Key is the option name as it appears in the config file.
	Key string
	// Type is the expected value type for validation.
	Type OptionType
	// Default is the default value as a string, or "" for no default.
	Default string
	// Description is a human-readable description of the option.
	Description string
	// Section is "" for global options, or a command/section name.
	Section string
	// EnvVar is the environment variable that overrides this option, or "".
	EnvVar string
}

// ConfigSchema is the declared set of options, the single authority for
// validation, documentation, and effective-value resolution.
type ConfigSchema struct {
	options   []*ConfigOption
	byKey     map[string]*ConfigOption
	bySection map[string]map[string]*ConfigOption
}

// NewSchema creates a new empty ConfigSchema.
func NewSchema() *ConfigSchema {
	return &ConfigSchema{
		byKey:     make(map[string]*ConfigOption),
		bySection: make(map[string]map[string]*ConfigOption),
	}
}

// Register adds an option to the schema. Re-registering a key in the same
// section overwrites the earlier entry in place, keeping its position.
func (s *ConfigSchema) Register(opt ConfigOption) {
	if prev := s.Lookup(opt.Section, opt.Key); prev != nil {
		*prev = opt
		return
	}
	ref := &opt
	s.options = append(s.options, ref)
	switch {
	case opt.Section == "":
		s.byKey[opt.Key] = ref
	case s.bySection[opt.Section] == nil:
		s.bySection[opt.Section] = map[string]*ConfigOption{opt.Key: ref}
	default:
		s.bySection[opt.Section][opt.Key] = ref
	}
}

// RegisterAll adds multiple options to the schema.
func (s *ConfigSchema) RegisterAll(opts []ConfigOption) {
	for _, opt := range opts {
		s.Register(opt)
	}
}

// Lookup returns the option registered for key in section ("" for global),
// or nil. Section lookups do not fall back to the global entry.
func (s *ConfigSchema) Lookup(section, key string) *ConfigOption {
	if section == "" {
		return s.byKey[key]
	}
	return s.bySection[section][key]
}

// IsKnown reports whether key is registered in section. Global keys count as
// known inside command sections, where they shadow the global value.
func (s *ConfigSchema) IsKnown(section, key string) bool {
	if s.Lookup(section, key) != nil {
		return true
	}
	return section != "" && s.byKey[key] != nil
}

// GlobalOptions returns the registered global options in registration order.
func (s *ConfigSchema) GlobalOptions() []ConfigOption {
	return s.inSection("")
}

// SectionOptions returns the registered options of one section in
// registration order.
func (s *ConfigSchema) SectionOptions(section string) []ConfigOption {
	return s.inSection(section)
}

func (s *ConfigSchema) inSection(section string) []ConfigOption {
	var out []ConfigOption
	for _, o := range s.options {
		if o.Section == section {
			out = append(out, *o)
		}
	}
	return out
}

// Sections returns the registered section names, sorted.
func (s *ConfigSchema) Sections() []string {
	return slices.Sorted(maps.Keys(s.bySection))
}

// Resolve returns the effective value of a global key: the schema-declared
// environment variable wins, then the config file, then the schema default.
// Unregistered keys without a config value resolve to "".
func (s *ConfigSchema) Resolve(c *Config, key string) string {
	return effective(s.byKey[key], func() (string, bool) {
		return c.GetGlobalOption(key)
	})
}

// ResolveCommand resolves key as one command sees it: the section schema
// entry shadows the global entry, and the section value shadows the global
// value, with the same env > file > default precedence as Resolve.
func (s *ConfigSchema) ResolveCommand(c *Config, command, key string) string {
	opt := s.Lookup(command, key)
	if opt == nil {
		opt = s.byKey[key]
	}
	return effective(opt, func() (string, bool) {
		return c.GetCommandOption(command, key)
	})
}

// effective applies the env > file > default precedence for one option.
func effective(opt *ConfigOption, fromConfig func() (string, bool)) string {
	if opt != nil && opt.EnvVar != "" {
		if v, ok := os.LookupEnv(opt.EnvVar); ok {
			return v
		}
	}
	if v, ok := fromConfig(); ok {
		return v
	}
	if opt != nil {
		return opt.Default
	}
	return ""
}

// ValidateConfig checks a loaded Config against the schema, reporting
// unknown options and type mismatches as sorted human-readable issues.
func ValidateConfig(c *Config, s *ConfigSchema) []string {
	var issues []string
	report := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	for key, value := range c.Global {
		opt := s.byKey[key]
		if opt == nil {
			report("unknown global option: %q (value: %q)", key, value)
			continue
		}
		if err := validateType(opt.Type, value); err != nil {
			report("global option %q: %v", key, err)
		}
	}

	for section, options := range c.Commands {
		for key, value := range options {
			opt := s.Lookup(section, key)
			if opt == nil {
				opt = s.byKey[key]
			}
			if opt == nil {
				report("unknown option for command %q: %q (value: %q)", section, key, value)
				continue
			}
			if err := validateType(opt.Type, value); err != nil {
				report("option %q in [%s]: %v", key, section, err)
			}
		}
	}

	slices.Sort(issues)
	return issues
}

// validateType checks that value parses as the declared OptionType.
func validateType(t OptionType, value string) error {
	switch t {
	case TypeString, TypePathList, "":
		return nil
	case TypeBool:
		if _, err := parseBool(value); err != nil {
			return fmt.Errorf("expected bool, got %q", value)
		}
	case TypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("expected int, got %q", value)
		}
	case TypeDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("expected duration, got %q", value)
		}
	default:
		return fmt.Errorf("unknown option type %q", t)
	}
	return nil
}

// GetString returns the global option value for key, or "" if not set.
func (c *Config) GetString(key string) string {
	v, _ := c.GetGlobalOption(key)
	return v
}

// GetStringDefault returns the global option value for key, or defaultValue
// if not set.
func (c *Config) GetStringDefault(key, defaultValue string) string {
	if v, ok := c.GetGlobalOption(key); ok {
		return v
	}
	return defaultValue
}

// GetBool returns the global option for key as a boolean; unset or
// unparsable values read as false.
func (c *Config) GetBool(key string) bool {
	v, ok := c.GetGlobalOption(key)
	if !ok {
		return false
	}
	b, err := parseBool(v)
	return err == nil && b
}

// GetInt returns the global option for key as an integer; unset or
// unparsable values read as 0.
func (c *Config) GetInt(key string) int {
	v, ok := c.GetGlobalOption(key)
	if !ok {
		return 0
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return i
}

// GetDuration returns the global option for key as a time.Duration; unset
// or unparsable values read as 0.
func (c *Config) GetDuration(key string) time.Duration {
	v, ok := c.GetGlobalOption(key)
	if !ok {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

// GetWithEnv returns the value for key with envVar taking precedence when
// the variable is set, even to the empty string.
func (c *Config) GetWithEnv(key, envVar string) string {
	if envVar != "" {
		if v, ok := os.LookupEnv(envVar); ok {
			return v
		}
	}
	return c.GetString(key)
}

// FormatHelp renders a reference of every registered option, the global
// block first and then each section in sorted order.
func (s *ConfigSchema) FormatHelp() string {
	var b strings.Builder
	if globals := s.GlobalOptions(); len(globals) > 0 {
		b.WriteString("Global Options:\n")
		for _, o := range globals {
			writeOptionHelp(&b, o)
		}
	}
	for _, sec := range s.Sections() {
		opts := s.SectionOptions(sec)
		if len(opts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n[%s] Options:\n", sec)
		for _, o := range opts {
			writeOptionHelp(&b, o)
		}
	}
	return b.String()
}

func writeOptionHelp(b *strings.Builder, o ConfigOption) {
	fmt.Fprintf(b, "  %-30s %s", o.Key, o.Description)
	var notes []string
	if o.Type != "" && o.Type != TypeString {
		notes = append(notes, "type: "+string(o.Type))
	}
	if o.Default != "" {
		notes = append(notes, "default: "+o.Default)
	}
	if o.EnvVar != "" {
		notes = append(notes, "env: "+o.EnvVar)
	}
	if len(notes) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(notes, ", "))
	}
	b.WriteString("\n")
}

// DefaultFileContent renders the commented starter config file: every option
// appears as a "# key default" line under its section, with the description
// above it, so the file is documentation until a line is uncommented.
func (s *ConfigSchema) DefaultFileContent() string {
	var b strings.Builder
	b.WriteString("# viewscreen configuration\n")
	b.WriteString("# Uncomment options to override their defaults.\n")

	writeOption := func(o ConfigOption) {
		b.WriteString("\n# ")
		b.WriteString(o.Description)
		if o.EnvVar != "" {
			b.WriteString(" (env: " + o.EnvVar + ")")
		}
		b.WriteString("\n# ")
		b.WriteString(o.Key)
		if o.Default != "" {
			b.WriteString(" " + o.Default)
		}
		b.WriteString("\n")
	}

	for _, o := range s.GlobalOptions() {
		writeOption(o)
	}
	for _, sec := range s.Sections() {
		opts := s.SectionOptions(sec)
		if len(opts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n# [%s]\n", sec)
		for _, o := range opts {
			writeOption(o)
		}
	}
	return b.String()
}

// DefaultSchema returns the canonical schema declaring every viewscreen
// option: the one source of truth for names, types, defaults, descriptions,
// and environment overrides.
func DefaultSchema() *ConfigSchema {
	s := NewSchema()
	s.RegisterAll(defaultGlobalOptions())
	s.RegisterAll(defaultCommandOptions())
	return s
}

func defaultGlobalOptions() []ConfigOption {
	return []ConfigOption{
		// Core global options
		{Key: "verbose", Type: TypeBool, Default: "false", Description: "Enable verbose output"},
		{Key: "color", Type: TypeString, Default: "auto", Description: "Color mode: auto, always, never"},
		{Key: "quiet", Type: TypeBool, Default: "false", Description: "Suppress non-essential output"},
		{Key: "debug", Type: TypeBool, Default: "false", Description: "Enable debug logging"},

		// Feed options
		{Key: "feed.path", Type: TypeString, Default: "", Description: "Repository the feed streams history from (defaults to the working directory)"},
		{Key: "feed.limit", Type: TypeInt, Default: "50", Description: "Maximum number of feed entries"},
		{Key: "feed.poll-interval", Type: TypeDuration, Default: "2s", Description: "Interval between feed refreshes"},

		// Logging options
		{Key: "log.file", Type: TypeString, Default: "", Description: "Log file path (JSON output)", EnvVar: "VIEWSCREEN_LOG_FILE"},
		{Key: "log.level", Type: TypeString, Default: "info", Description: "Log level: debug, info, warn, error", EnvVar: "VIEWSCREEN_LOG_LEVEL"},
		{Key: "log.max-size-mb", Type: TypeInt, Default: "10", Description: "Max log file size in MB before rotation"},
		{Key: "log.max-files", Type: TypeInt, Default: "5", Description: "Max number of rotated log backup files"},
		{Key: "log.buffer-size", Type: TypeInt, Default: "1000", Description: "In-memory log entries retained for the repl logs command"},
	}
}

func defaultCommandOptions() []ConfigOption {
	return []ConfigOption{
		// [serve] section
		{Key: "address", Section: "serve", Type: TypeString, Default: "127.0.0.1:0", Description: "Listen address for the panel host", EnvVar: "VIEWSCREEN_ADDRESS"},
		{Key: "open", Section: "serve", Type: TypeBool, Default: "false", Description: "Open the panel in a browser on start"},
		{Key: "browser", Section: "serve", Type: TypeString, Default: "", Description: "Browser command for open (the platform opener when empty)"},
		{Key: "state-file", Section: "serve", Type: TypeString, Default: "", Description: "Path for the persisted panel record", EnvVar: "VIEWSCREEN_STATE_FILE"},

		// [repl] section
		{Key: "prefix", Section: "repl", Type: TypeString, Default: "viewscreen> ", Description: "Prompt prefix"},
		{Key: "history-file", Section: "repl", Type: TypeString, Default: ".viewscreen_history", Description: "Readline history file"},

		// [state] section
		{Key: "format", Section: "state", Type: TypeString, Default: "text", Description: "Output format: text, json"},

		// [media] section: directories the panel host may serve media from.
		// Parsed by the [media] section handler (parseMediaOption) into
		// MediaConfig; the schema entry exists for documentation and the
		// 'config schema' subcommand.
		{Key: "root", Section: "media", Type: TypeString, Default: "", Description: "Directory the panel may serve media files from (repeatable)"},

		// [colors] section: prompt color roles for interactive commands.
		// Parsed by the [colors] section handler (parseColorOption) into
		// Config.Colors; listed here for documentation.
		{Key: "input", Section: "colors", Type: TypeString, Default: "", Description: "Prompt input text color"},
		{Key: "prefix", Section: "colors", Type: TypeString, Default: "", Description: "Prompt prefix color"},
		{Key: "suggestionText", Section: "colors", Type: TypeString, Default: "", Description: "Completion suggestion text color"},
		{Key: "suggestionBackground", Section: "colors", Type: TypeString, Default: "", Description: "Completion suggestion background color"},
		{Key: "selectedSuggestionText", Section: "colors", Type: TypeString, Default: "", Description: "Selected suggestion text color"},
		{Key: "selectedSuggestionBackground", Section: "colors", Type: TypeString, Default: "", Description: "Selected suggestion background color"},
		{Key: "descriptionText", Section: "colors", Type: TypeString, Default: "", Description: "Suggestion description text color"},
		{Key: "descriptionBackground", Section: "colors", Type: TypeString, Default: "", Description: "Suggestion description background color"},
		{Key: "selectedDescriptionText", Section: "colors", Type: TypeString, Default: "", Description: "Selected description text color"},
		{Key: "selectedDescriptionBackground", Section: "colors", Type: TypeString, Default: "", Description: "Selected description background color"},
		{Key: "scrollbarThumb", Section: "colors", Type: TypeString, Default: "", Description: "Completion scrollbar thumb color"},
		{Key: "scrollbarBackground", Section: "colors", Type: TypeString, Default: "", Description: "Completion scrollbar background color"},
	}
}
