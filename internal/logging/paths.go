package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.legalwise/logs, or a temp-dir equivalent when the
// home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".legalwise", "logs")
	}
	return filepath.Join(home, ".legalwise", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "legalwise.log")
}
