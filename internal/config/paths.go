package config

import (
	"os"
	"path/filepath"
)

const appDir = "hookd"

// DefaultConfigPath is <user config dir>/hookd/config.yaml, or ./config.yaml
// when the user config directory cannot be determined.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, appDir, "config.yaml")
}

// DefaultDataDir follows the XDG base directory layout: $XDG_DATA_HOME/hookd,
// falling back to ~/.local/share/hookd and finally ./data.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", appDir)
}

func defaultAuditPath(dataDir string) string {
	return filepath.Join(dataDir, "audit.db")
}
