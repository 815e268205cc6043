package config

import (
	"os"
	"path/filepath"
)

// GetConfigPath returns the configuration file path: $VIEWSCREEN_CONFIG when
// set, otherwise viewscreen/config under the user config directory. The panel
// state record is kept in the same directory.
func GetConfigPath() (string, error) {
	if path := os.Getenv("VIEWSCREEN_CONFIG"); path != "" {
		return path, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "viewscreen", "config"), nil
}

// EnsureConfigDir creates the directory that holds the config file.
func EnsureConfigDir() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return os.MkdirAll(filepath.Dir(path), 0755)
}
