package command

import (
	"bytes"
	"strings"
	"testing"

	"github.com/viewscreen/viewscreen/internal/config"
)

func completionTestRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(NewVersionCommand("1.0.0"))
	registry.Register(NewConfigCommand(config.NewConfig()))
	registry.Register(NewServeCommand(config.NewConfig()))
	registry.Register(NewStateCommand(config.NewConfig()))
	return registry
}

func TestCompletionCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		shell   string
		markers []string
	}{
		{
			shell: "bash",
			markers: []string{
				"_viewscreen_completion",
				"complete -F _viewscreen_completion viewscreen",
				`compgen -W "show path clear"`,
				`compgen -W "bash zsh fish powershell"`,
			},
		},
		{
			shell: "zsh",
			markers: []string{
				"#compdef viewscreen",
				"_viewscreen",
				"_values 'state-subcommand' 'show' 'path' 'clear'",
				"_values 'shell' 'bash' 'zsh' 'fish' 'powershell'",
			},
		},
		{
			shell: "fish",
			markers: []string{
				"complete -c viewscreen",
				"__fish_use_subcommand",
				"'show path clear'",
				"'bash zsh fish powershell'",
			},
		},
		{
			shell: "powershell",
			markers: []string{
				"Register-ArgumentCompleter",
				"@('show','path','clear')",
			},
		},
		{
			shell:   "pwsh",
			markers: []string{"Register-ArgumentCompleter"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			t.Parallel()
			cmd := NewCompletionCommand(completionTestRegistry())
			var stdout, stderr bytes.Buffer

			if err := cmd.Execute([]string{tt.shell}, &stdout, &stderr); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			output := stdout.String()
			for _, marker := range tt.markers {
				if !strings.Contains(output, marker) {
					t.Errorf("script missing %q\noutput:\n%s", marker, output)
				}
			}
			// Every script names the registered commands.
			for _, name := range []string{"config", "serve", "state", "version"} {
				if !strings.Contains(output, name) {
					t.Errorf("script missing command %q", name)
				}
			}
		})
	}
}

func TestCompletionCommandDefaultsToBash(t *testing.T) {
	t.Parallel()
	cmd := NewCompletionCommand(completionTestRegistry())
	var stdout, stderr bytes.Buffer

	if err := cmd.Execute(nil, &stdout, &stderr); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(stdout.String(), "_viewscreen_completion") {
		t.Errorf("output = %q", stdout.String())
	}
}

func TestCompletionCommandCaseInsensitive(t *testing.T) {
	t.Parallel()
	cmd := NewCompletionCommand(completionTestRegistry())
	var stdout, stderr bytes.Buffer

	if err := cmd.Execute([]string{"BASH"}, &stdout, &stderr); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(stdout.String(), "_viewscreen_completion") {
		t.Errorf("output = %q", stdout.String())
	}
}

func TestCompletionCommandUnsupportedShell(t *testing.T) {
	t.Parallel()
	cmd := NewCompletionCommand(completionTestRegistry())
	var stdout, stderr bytes.Buffer

	err := cmd.Execute([]string{"tcsh"}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for unsupported shell")
	}
	if !strings.Contains(stderr.String(), "Unsupported shell: tcsh") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestCompletionCommandTooManyArgs(t *testing.T) {
	t.Parallel()
	cmd := NewCompletionCommand(completionTestRegistry())
	var stdout, stderr bytes.Buffer

	err := cmd.Execute([]string{"bash", "zsh"}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for too many arguments")
	}
	if !strings.Contains(stderr.String(), "Too many arguments") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
