package command

import (
	"fmt"
	"io"
	"strings"
)

// completionArgs lists the fixed argument completions per subcommand. The
// shell generators all derive their subcommand arms from this table, so a
// new subcommand needs one entry here instead of four script edits.
var completionArgs = []struct {
	command string
	label   string // zsh value tag
	desc    string // fish description
	words   []string
}{
	{command: "completion", label: "shell", desc: "Shell", words: []string{"bash", "zsh", "fish", "powershell"}},
	{command: "state", label: "state-subcommand", desc: "State subcommands", words: []string{"show", "path", "clear"}},
}

// CompletionCommand generates shell completion scripts.
type CompletionCommand struct {
	*BaseCommand
	registry *Registry
}

func NewCompletionCommand(registry *Registry) *CompletionCommand {
	return &CompletionCommand{
		BaseCommand: NewBaseCommand(
			"completion",
			"Generate shell completion scripts",
			"completion [shell]",
		),
		registry: registry,
	}
}

func (c *CompletionCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 1 {
		_, _ = fmt.Fprintf(stderr, "Too many arguments: %v\n", args[1:])
		_, _ = fmt.Fprintln(stderr, "Usage: viewscreen completion [shell]")
		return fmt.Errorf("too many arguments")
	}
	shell := "bash"
	if len(args) == 1 {
		shell = strings.ToLower(args[0])
	}

	generate := map[string]func(io.Writer) error{
		"bash":       c.bashScript,
		"zsh":        c.zshScript,
		"fish":       c.fishScript,
		"powershell": c.powerShellScript,
		"pwsh":       c.powerShellScript,
	}[shell]
	if generate == nil {
		_, _ = fmt.Fprintf(stderr, "Unsupported shell: %s\n", shell)
		_, _ = fmt.Fprintln(stderr, "Supported shells: bash, zsh, fish, powershell")
		return fmt.Errorf("unsupported shell: %s", shell)
	}
	return generate(stdout)
}

func (c *CompletionCommand) bashScript(w io.Writer) error {
	var arms strings.Builder
	for _, a := range completionArgs {
		fmt.Fprintf(&arms, "        %s)\n            COMPREPLY=($(compgen -W \"%s\" -- ${cur}))\n            return 0\n            ;;\n",
			a.command, strings.Join(a.words, " "))
	}

	script := fmt.Sprintf(`#!/bin/bash
# Bash completion for viewscreen.
# Install: source <(viewscreen completion bash), or copy this script to
# /etc/bash_completion.d/viewscreen or
# ~/.local/share/bash-completion/completions/viewscreen.

_viewscreen_completion() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=($(compgen -W "%s" -- ${cur}))
        return 0
    fi

    case "${prev}" in
%s        serve|repl)
            COMPREPLY=($(compgen -d -- ${cur}))
            return 0
            ;;
        *)
            COMPREPLY=($(compgen -f -- ${cur}))
            return 0
            ;;
    esac
}

complete -F _viewscreen_completion viewscreen
`, strings.Join(c.registry.List(), " "), arms.String())

	_, err := io.WriteString(w, script)
	return err
}

func (c *CompletionCommand) zshScript(w io.Writer) error {
	var commands strings.Builder
	for _, name := range c.registry.List() {
		cmd, err := c.registry.Get(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&commands, "    '%s:%s'\n", name, cmd.Description())
	}
	var arms strings.Builder
	for _, a := range completionArgs {
		fmt.Fprintf(&arms, "                %s)\n                    _values '%s' %s\n                    ;;\n",
			a.command, a.label, strings.Join(quoteAll(a.words), " "))
	}

	script := fmt.Sprintf(`#compdef viewscreen
# Zsh completion for viewscreen.
# Install: drop this file in a directory on $fpath and re-run compinit, or
# source <(viewscreen completion zsh).

_viewscreen() {
    local state line
    typeset -A opt_args

    _arguments -C \
        '1: :->commands' \
        '*: :->args' && return 0

    case "$state" in
        commands)
            local commands
            commands=(
%s            )
            _describe 'commands' commands
            ;;
        args)
            case ${words[2]} in
%s                serve|repl)
                    _files -/
                    ;;
                *)
                    _files
                    ;;
            esac
            ;;
    esac
}

_viewscreen "$@"
`, commands.String(), arms.String())

	_, err := io.WriteString(w, script)
	return err
}

func (c *CompletionCommand) fishScript(w io.Writer) error {
	var b strings.Builder
	b.WriteString("# Fish completion for viewscreen.\n")
	b.WriteString("# Install: viewscreen completion fish > ~/.config/fish/completions/viewscreen.fish\n\n")
	for _, name := range c.registry.List() {
		cmd, err := c.registry.Get(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "complete -c viewscreen -n '__fish_use_subcommand' -a '%s' -d '%s'\n", name, cmd.Description())
	}
	b.WriteString("\n")
	for _, a := range completionArgs {
		fmt.Fprintf(&b, "complete -c viewscreen -n '__fish_seen_subcommand_from %s' -a '%s' -d '%s'\n",
			a.command, strings.Join(a.words, " "), a.desc)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (c *CompletionCommand) powerShellScript(w io.Writer) error {
	var arms strings.Builder
	for _, a := range completionArgs {
		fmt.Fprintf(&arms, "        '%s' { @(%s) }\n", a.command, strings.Join(quoteAll(a.words), ","))
	}

	script := fmt.Sprintf(`# PowerShell completion for viewscreen.
# Install: add this block to your profile ($PROFILE), or run
# viewscreen completion powershell | Out-String | Invoke-Expression.

Register-ArgumentCompleter -Native -CommandName viewscreen -ScriptBlock {
    param($wordToComplete, $commandAst, $cursorPosition)

    $tokens = $commandAst.CommandElements | ForEach-Object { $_.ToString() }
    $candidates = if ($tokens.Count -le 1 -or ($tokens.Count -eq 2 -and $wordToComplete)) {
        @(%s)
    } else {
        switch ($tokens[1]) {
%s            default { @() }
        }
    }

    $candidates | Where-Object { $_ -like "$wordToComplete*" } | ForEach-Object {
        [System.Management.Automation.CompletionResult]::new($_, $_, 'ParameterValue', $_)
    }
}
`, strings.Join(quoteAll(c.registry.List()), ", "), arms.String())

	_, err := io.WriteString(w, script)
	return err
}

// quoteAll wraps each item in single quotes for embedding in shell lists.
func quoteAll(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = "'" + item + "'"
	}
	return out
}
