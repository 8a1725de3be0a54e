package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.docrag/logs, or a temp dir when there is no home.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docrag", "logs")
	}
	return filepath.Join(home, ".docrag", "logs")
}

// DefaultLogPath returns the log file used when none is configured.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "docrag.log")
}

// FindLogFile resolves the log file to view: explicit, then configured, then
// the default path. It fails when none exists yet.
func FindLogFile(explicit, configured string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range []string{configured, DefaultLogPath()} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no log file found at %s (run a command first)", DefaultLogPath())
}
