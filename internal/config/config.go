package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config is the parsed configuration file: flat global options, per-command
// [section] options, and the two structured sections with their own parsing.
type Config struct {
	Global   map[string]string
	Commands map[string]map[string]string
	// Media lists local directories panel documents may reference media
	// files from. Parsed from the [media] config section.
	Media MediaConfig
	// Colors holds prompt color overrides for interactive commands,
	// keyed by role. Parsed from the [colors] config section.
	Colors map[string]string
	// Warnings collects schema issues found while loading.
	Warnings []string
}

// NewConfig creates a new empty configuration.
func NewConfig() *Config {
	return &Config{
		Global:   make(map[string]string),
		Commands: make(map[string]map[string]string),
		Colors:   make(map[string]string),
		Warnings: make([]string, 0),
	}
}

// MediaConfig lists the directories the panel host is allowed to serve
// media files from. Roots are kept in declaration order; relative paths
// resolve against the process working directory.
type MediaConfig struct {
	Roots []string
}

// Load reads the configuration from the default config file path.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadFromPath(configPath)
}

// LoadFromPath reads a dnsmasq-style config file: "optionName rest of the
// line is the value" lines grouped under optional [section] headers. A
// missing file yields an empty config.
func LoadFromPath(path string) (*Config, error) {
	// Lstat rejects a symlinked config file (config -> /etc/passwd);
	// intermediate directory symlinks are not checked.
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlink not allowed in config path: %s", path)
	}

	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadFromReader(file)
}

// LoadFromReader parses configuration from r and validates it against the
// default schema, recording issues as warnings rather than failing.
func LoadFromReader(r io.Reader) (*Config, error) {
	config := NewConfig()

	// section tracks the active [header]: "" for the global block, the
	// command name otherwise. media and colors have dedicated parsers.
	section := ""
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.Trim(line, "[]")
			if section != "media" && section != "colors" && config.Commands[section] == nil {
				config.Commands[section] = make(map[string]string)
			}
			continue
		}

		name, value, _ := strings.Cut(line, " ")
		switch section {
		case "media":
			if err := parseMediaOption(&config.Media, name, value); err != nil {
				return nil, fmt.Errorf("invalid media option %q: %w", name, err)
			}
		case "colors":
			if err := parseColorOption(config.Colors, name, value); err != nil {
				return nil, fmt.Errorf("invalid color option %q: %w", name, err)
			}
		case "":
			config.Global[name] = value
		default:
			config.Commands[section][name] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	for _, issue := range ValidateConfig(config, DefaultSchema()) {
		config.addWarning("%s", issue)
	}
	return config, nil
}

func (c *Config) addWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.Warnings = append(c.Warnings, msg)
	slog.Warn("[Config] " + msg)
}

// parseMediaOption parses a [media] section line. The only option is
// "root <path>"; repeating it appends additional roots.
func parseMediaOption(mc *MediaConfig, name, value string) error {
	if name != "root" {
		return fmt.Errorf("unknown media option: %s", name)
	}
	if value == "" {
		return fmt.Errorf("media root requires a path")
	}
	mc.Roots = append(mc.Roots, value)
	return nil
}

// colorRoles enumerates the prompt color roles a [colors] section may set.
// The names match the prompt option each role configures.
var colorRoles = map[string]bool{
	"input":                         true,
	"prefix":                        true,
	"suggestionText":                true,
	"suggestionBackground":          true,
	"selectedSuggestionText":        true,
	"selectedSuggestionBackground":  true,
	"descriptionText":               true,
	"descriptionBackground":         true,
	"selectedDescriptionText":       true,
	"selectedDescriptionBackground": true,
	"scrollbarThumb":                true,
	"scrollbarBackground":           true,
}

// parseColorOption parses a [colors] section line of the form
// "role colorName". Unknown roles are rejected; color names are resolved
// leniently by the consumer, so any value is accepted here.
func parseColorOption(colors map[string]string, name, value string) error {
	if !colorRoles[name] {
		return fmt.Errorf("unknown color role: %s", name)
	}
	if value == "" {
		return fmt.Errorf("color role %s requires a value", name)
	}
	colors[name] = value
	return nil
}

// parseBool accepts true/false, 1/0, yes/no, and on/off, case-insensitive.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// GetGlobalOption returns a global option and whether it was present.
func (c *Config) GetGlobalOption(name string) (string, bool) {
	value, exists := c.Global[name]
	return value, exists
}

// GetCommandOption returns a command option, falling back to the global
// option of the same name.
func (c *Config) GetCommandOption(command, name string) (string, bool) {
	if value, exists := c.Commands[command][name]; exists {
		return value, true
	}
	return c.GetGlobalOption(name)
}

// SetGlobalOption sets a global option.
func (c *Config) SetGlobalOption(name, value string) {
	c.Global[name] = value
}

// SetCommandOption sets an option under the named command section.
func (c *Config) SetCommandOption(command, name, value string) {
	if c.Commands[command] == nil {
		c.Commands[command] = make(map[string]string)
	}
	c.Commands[command][name] = value
}

// GetWarnings returns the warnings generated during loading.
func (c *Config) GetWarnings() []string {
	return c.Warnings
}

// HasWarnings reports whether loading produced warnings.
func (c *Config) HasWarnings() bool {
	return len(c.Warnings) > 0
}
