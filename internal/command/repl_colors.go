package command

import (
	"bufio"
	"os"
	"strings"

	"github.com/joeycumines/go-prompt"
)

// promptColors bundles the console prompt color roles so one [colors]
// section can restyle the whole prompt.
type promptColors struct {
	InputText               prompt.Color
	PrefixText              prompt.Color
	SuggestionText          prompt.Color
	SuggestionBG            prompt.Color
	SelectedSuggestionText  prompt.Color
	SelectedSuggestionBG    prompt.Color
	DescriptionText         prompt.Color
	DescriptionBG           prompt.Color
	SelectedDescriptionText prompt.Color
	SelectedDescriptionBG   prompt.Color
	ScrollbarThumb          prompt.Color
	ScrollbarBG             prompt.Color
}

func defaultPromptColors() promptColors {
	return promptColors{
		// Choose a readable default for input that is not yellow/white-adjacent
		InputText:               prompt.Green,
		PrefixText:              prompt.Cyan,
		SuggestionText:          prompt.Yellow,
		SuggestionBG:            prompt.Black,
		SelectedSuggestionText:  prompt.Black,
		SelectedSuggestionBG:    prompt.Cyan,
		DescriptionText:         prompt.White,
		DescriptionBG:           prompt.Black,
		SelectedDescriptionText: prompt.White,
		SelectedDescriptionBG:   prompt.Blue,
		ScrollbarThumb:          prompt.DarkGray,
		ScrollbarBG:             prompt.Black,
	}
}

// colorRoles maps [colors] option names to prompt color slots.
var colorRoles = map[string]func(*promptColors) *prompt.Color{
	"input":                         func(pc *promptColors) *prompt.Color { return &pc.InputText },
	"prefix":                        func(pc *promptColors) *prompt.Color { return &pc.PrefixText },
	"suggestionText":                func(pc *promptColors) *prompt.Color { return &pc.SuggestionText },
	"suggestionBackground":          func(pc *promptColors) *prompt.Color { return &pc.SuggestionBG },
	"selectedSuggestionText":        func(pc *promptColors) *prompt.Color { return &pc.SelectedSuggestionText },
	"selectedSuggestionBackground":  func(pc *promptColors) *prompt.Color { return &pc.SelectedSuggestionBG },
	"descriptionText":               func(pc *promptColors) *prompt.Color { return &pc.DescriptionText },
	"descriptionBackground":         func(pc *promptColors) *prompt.Color { return &pc.DescriptionBG },
	"selectedDescriptionText":       func(pc *promptColors) *prompt.Color { return &pc.SelectedDescriptionText },
	"selectedDescriptionBackground": func(pc *promptColors) *prompt.Color { return &pc.SelectedDescriptionBG },
	"scrollbarThumb":                func(pc *promptColors) *prompt.Color { return &pc.ScrollbarThumb },
	"scrollbarBackground":           func(pc *promptColors) *prompt.Color { return &pc.ScrollbarBG },
}

// applyFromStringMap applies overrides from a role->color map. Role names
// match the [colors] config section; unknown roles are ignored here since
// the config parser already rejects them.
func (pc *promptColors) applyFromStringMap(m map[string]string) {
	for role, value := range m {
		if value == "" {
			continue
		}
		if slot := colorRoles[role]; slot != nil {
			*slot(pc) = parseColor(value)
		}
	}
}

// colorNames covers the go-prompt 16-color palette.
var colorNames = map[string]prompt.Color{
	"black":     prompt.Black,
	"darkred":   prompt.DarkRed,
	"darkgreen": prompt.DarkGreen,
	"brown":     prompt.Brown,
	"darkblue":  prompt.DarkBlue,
	"purple":    prompt.Purple,
	"cyan":      prompt.Cyan,
	"lightgray": prompt.LightGray,
	"darkgray":  prompt.DarkGray,
	"red":       prompt.Red,
	"green":     prompt.Green,
	"yellow":    prompt.Yellow,
	"blue":      prompt.Blue,
	"fuchsia":   prompt.Fuchsia,
	"turquoise": prompt.Turquoise,
	"white":     prompt.White,
}

// parseColor converts a color name to prompt.Color, falling back to the
// terminal default for anything unrecognized.
func parseColor(name string) prompt.Color {
	if c, ok := colorNames[strings.ToLower(name)]; ok {
		return c
	}
	return prompt.DefaultColor
}

// loadHistory loads prompt history from a file.
func loadHistory(filename string) []string {
	history := []string{}
	if filename == "" {
		return history
	}
	f, err := os.Open(filename)
	if err != nil {
		return history
	}
	defer func() { _ = f.Close() }()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			history = append(history, line)
		}
	}
	return history
}

// appendHistory records an executed line so the next session can recall it.
// Best effort, failures are ignored.
func appendHistory(filename, line string) {
	if filename == "" {
		return
	}
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = f.WriteString(line + "\n")
}
