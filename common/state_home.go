package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetGlidecodeStateHome returns a directory path for storing user-specific
// glidecode state data (logs, traces, etc). If needed, it also creates the
// necessary directories for storing state data according to the XDG spec.
// Can be overridden by setting the SIDE_STATE_HOME environment variable.
func GetGlidecodeStateHome() (string, error) {
	glidecodeStateDir := os.Getenv("SIDE_STATE_HOME")
	if glidecodeStateDir != "" {
		err := os.MkdirAll(glidecodeStateDir, 0755)
		if err != nil {
			return "", fmt.Errorf("failed to create Glidecode state directory from SIDE_STATE_HOME: %w", err)
		}
		return glidecodeStateDir, nil
	}

	glidecodeStateDir = filepath.Join(xdg.StateHome, "glidecode")
	err := os.MkdirAll(glidecodeStateDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create Glidecode state directory: %w", err)
	}
	return glidecodeStateDir, nil
}
