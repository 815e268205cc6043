package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/viewscreen/viewscreen/internal/storage"
)

// SetKeyInFile rewrites a single global option in the config file at path,
// leaving every other line untouched. An existing assignment in the global
// section is replaced on its own line; a new key is inserted just above the
// first [section] header so it stays global, or appended when the file has
// no sections. Keys inside [section] blocks are never matched, so persisting
// a global cannot clobber a command-scoped option of the same name.
func SetKeyInFile(path, key, value string) error {
	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	line := key
	if value != "" {
		line += " " + value
	}

	var lines []string
	if len(raw) > 0 {
		lines = strings.Split(string(raw), "\n")
	}

	// Scan the global section only: stop at the first [section] header,
	// remembering where it was so a new key can land above it.
	match, header := -1, -1
	for i, l := range lines {
		t := strings.TrimSpace(l)
		if strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]") {
			header = i
			break
		}
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		if name, _, _ := strings.Cut(t, " "); name == key {
			match = i
			break
		}
	}

	switch {
	case match >= 0:
		lines[match] = line
	case header >= 0:
		rest := append([]string{line}, lines[header:]...)
		lines = append(lines[:header], rest...)
	case len(lines) > 0 && lines[len(lines)-1] == "":
		// Keep the trailing newline by inserting above the empty tail.
		lines = append(lines[:len(lines)-1], line, "")
	default:
		lines = append(lines, line)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return storage.AtomicWriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}
