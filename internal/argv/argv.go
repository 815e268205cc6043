// Package argv splits command lines with POSIX-like quoting.
package argv

import "strings"

// Split parses s into arguments. Unquoted spaces, tabs, and newlines
// separate arguments. Single quotes preserve their contents literally.
// Double quotes preserve contents, with backslash escaping only $, `,
// ", \, and newline. Outside quotes a backslash escapes the next rune,
// and backslash-newline is a line continuation. No variable expansion,
// globbing, or comment handling.
func Split(s string) []string {
	var (
		args     []string
		buf      strings.Builder
		active   bool
		inSingle bool
		inDouble bool
		esc      bool
	)
	flush := func() {
		if active {
			args = append(args, buf.String())
			buf.Reset()
			active = false
		}
	}
	for _, r := range s {
		if esc {
			esc = false
			switch {
			case inDouble && r != '$' && r != '`' && r != '"' && r != '\\' && r != '\n':
				// The backslash stays literal for other runes.
				buf.WriteRune('\\')
				buf.WriteRune(r)
				active = true
			case r == '\n':
				// Line continuation eats the newline.
			default:
				buf.WriteRune(r)
				active = true
			}
			continue
		}
		switch {
		case r == '\\' && !inSingle:
			esc = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			active = true
		case r == '"' && !inSingle:
			inDouble = !inDouble
			active = true
		case (r == ' ' || r == '\t' || r == '\n') && !inSingle && !inDouble:
			flush()
		default:
			buf.WriteRune(r)
			active = true
		}
	}
	// A trailing backslash is dropped; an unterminated quote still
	// yields what was accumulated.
	flush()
	return args
}
