package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func load(t *testing.T, contents string) *Config {
	t.Helper()
	cfg, err := LoadFromReader(strings.NewReader(contents))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestConfigParsing(t *testing.T) {
	cfg := load(t, `# Global options
verbose true
color auto

[serve]
address 127.0.0.1:8080
open true

[repl]
prefix demo>`)

	tests := []struct {
		section, key, want string
	}{
		{"", "verbose", "true"},
		{"", "color", "auto"},
		{"serve", "address", "127.0.0.1:8080"},
		{"serve", "open", "true"},
		{"repl", "prefix", "demo>"},
		// Command lookups fall through to globals.
		{"serve", "verbose", "true"},
	}
	for _, tt := range tests {
		var got string
		var ok bool
		if tt.section == "" {
			got, ok = cfg.GetGlobalOption(tt.key)
		} else {
			got, ok = cfg.GetCommandOption(tt.section, tt.key)
		}
		if !ok || got != tt.want {
			t.Errorf("lookup %s/%s = %q (ok=%v), want %q", tt.section, tt.key, got, ok, tt.want)
		}
	}

	if got, ok := cfg.GetCommandOption("nonexistent", "option"); ok {
		t.Errorf("lookup of unknown command option returned %q", got)
	}
}

func TestEmptyAndCommentOnlyConfigs(t *testing.T) {
	for _, contents := range []string{"", "# nothing but comments\n\n# more\n"} {
		cfg := load(t, contents)
		if len(cfg.Global) != 0 || len(cfg.Commands) != 0 {
			t.Errorf("load(%q) produced a non-empty config: %+v", contents, cfg)
		}
	}
}

func TestCommentsBetweenOptions(t *testing.T) {
	cfg := load(t, "# leading\nverbose true\n# between\n[serve]\n# in section\nopen false")
	if got, ok := cfg.GetGlobalOption("verbose"); !ok || got != "true" {
		t.Errorf("verbose = %q (ok=%v), want true", got, ok)
	}
	if got, ok := cfg.GetCommandOption("serve", "open"); !ok || got != "false" {
		t.Errorf("serve open = %q (ok=%v), want false", got, ok)
	}
}

func TestMediaSection(t *testing.T) {
	cfg := load(t, `verbose false

[media]
root /srv/panel-media
root ./relative/assets
root /var/cache/thumbnails`)

	want := []string{"/srv/panel-media", "./relative/assets", "/var/cache/thumbnails"}
	if len(cfg.Media.Roots) != len(want) {
		t.Fatalf("media roots = %v, want %v", cfg.Media.Roots, want)
	}
	for i, root := range want {
		if cfg.Media.Roots[i] != root {
			t.Errorf("media root %d = %q, want %q", i, cfg.Media.Roots[i], root)
		}
	}

	// Media roots must not leak into command sections.
	if _, ok := cfg.Commands["media"]; ok {
		t.Error("[media] should be handled specially, found it in Commands")
	}
}

func TestMediaSectionRejectsEmptyRoot(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("[media]\nroot")); err == nil {
		t.Fatal("expected error for media root without a path")
	}
}

func TestMediaSectionRejectsUnknownOption(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("[media]\nbogus /tmp"))
	if err == nil || !strings.Contains(err.Error(), "unknown media option") {
		t.Fatalf("err = %v, want unknown media option", err)
	}
}

func TestColorsSection(t *testing.T) {
	cfg := load(t, `[colors]
input cyan
prefix green
selectedSuggestionBackground darkblue`)

	want := map[string]string{
		"input":                        "cyan",
		"prefix":                       "green",
		"selectedSuggestionBackground": "darkblue",
	}
	for role, color := range want {
		if got := cfg.Colors[role]; got != color {
			t.Errorf("color %s = %q, want %q", role, got, color)
		}
	}

	if _, ok := cfg.Commands["colors"]; ok {
		t.Error("[colors] should be handled specially, found it in Commands")
	}
}

func TestColorsSectionRejectsUnknownRole(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("[colors]\nborder red"))
	if err == nil || !strings.Contains(err.Error(), "unknown color role") {
		t.Fatalf("err = %v, want unknown color role", err)
	}
}

func TestColorsSectionRejectsMissingValue(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("[colors]\ninput")); err == nil {
		t.Fatal("expected error for color role without a value")
	}
}

func TestSetGlobalAndCommandOptions(t *testing.T) {
	cfg := NewConfig()

	cfg.SetGlobalOption("color", "auto")
	if got, ok := cfg.GetGlobalOption("color"); !ok || got != "auto" {
		t.Fatalf("color = %q (ok=%v), want auto", got, ok)
	}

	cfg.SetCommandOption("serve", "address", "127.0.0.1:9000")
	if got, ok := cfg.GetCommandOption("serve", "address"); !ok || got != "127.0.0.1:9000" {
		t.Fatalf("serve address = %q (ok=%v)", got, ok)
	}

	// A command-specific value shadows a global of the same name.
	cfg.SetGlobalOption("address", "0.0.0.0:80")
	if got, ok := cfg.GetCommandOption("serve", "address"); !ok || got != "127.0.0.1:9000" {
		t.Fatalf("serve address after global set = %q (ok=%v), want the command value", got, ok)
	}
}

func TestLoadFromPathMissing(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "missing-config"))
	if err != nil {
		t.Fatalf("a missing config file must load as empty: %v", err)
	}
	if len(cfg.Global) != 0 || len(cfg.Commands) != 0 {
		t.Fatalf("missing file produced a non-empty config: %+v", cfg)
	}
}

func TestLoadFromPathExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("verbose true\n[serve]\nopen true"), 0600); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if got, ok := cfg.GetGlobalOption("verbose"); !ok || got != "true" {
		t.Errorf("verbose = %q (ok=%v), want true", got, ok)
	}
	if got, ok := cfg.GetCommandOption("serve", "open"); !ok || got != "true" {
		t.Errorf("serve open = %q (ok=%v), want true", got, ok)
	}
}

func TestLoadFromPathRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real-config")
	if err := os.WriteFile(target, []byte("verbose true"), 0600); err != nil {
		t.Fatalf("seed target: %v", err)
	}
	link := filepath.Join(dir, "config")
	if err := os.Symlink(target, link); err != nil {
		t.Skip("symlinks not supported on this platform")
	}

	_, err := LoadFromPath(link)
	if err == nil || !strings.Contains(err.Error(), "symlink not allowed") {
		t.Fatalf("err = %v, want symlink rejection", err)
	}
}

func TestLoadUsesConfigPathEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("color auto"), 0600); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	t.Setenv("VIEWSCREEN_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, ok := cfg.GetGlobalOption("color"); !ok || got != "auto" {
		t.Errorf("color = %q (ok=%v), want auto", got, ok)
	}
}

func TestLoadNoFileReturnsEmptyConfig(t *testing.T) {
	t.Setenv("VIEWSCREEN_CONFIG", filepath.Join(t.TempDir(), "config"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Global) != 0 || len(cfg.Commands) != 0 {
		t.Fatalf("missing env-pointed file produced a non-empty config: %+v", cfg)
	}
}

func TestUnknownOptionsWarnButLoad(t *testing.T) {
	cfg := load(t, "definitely-not-an-option something")

	if !cfg.HasWarnings() {
		t.Fatal("expected a warning for an unknown global option")
	}
	found := false
	for _, w := range cfg.GetWarnings() {
		if strings.Contains(w, "definitely-not-an-option") {
			found = true
		}
	}
	if !found {
		t.Errorf("no warning names the unknown option: %v", cfg.GetWarnings())
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{in: "true", want: true},
		{in: "TRUE", want: true},
		{in: "1", want: true},
		{in: "yes", want: true},
		{in: "Yes", want: true},
		{in: "on", want: true},
		{in: "false"},
		{in: "FALSE"},
		{in: "0"},
		{in: "no"},
		{in: "off"},
		{in: "Off"},
		{in: "maybe", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		b, err := parseBool(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseBool(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil || b != tt.want {
			t.Errorf("parseBool(%q) = %v, %v; want %v", tt.in, b, err, tt.want)
		}
	}
}
