package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetGlidecodeDataHome returns a directory path for storing user-specific
// glidecode data. If needed, it also creates the necessary directories for
// storing user-specific data according to the XDG spec. Can be overridden by
// setting the SIDE_DATA_HOME environment variable.
func GetGlidecodeDataHome() (string, error) {
	glidecodeDataDir := os.Getenv("SIDE_DATA_HOME")
	if glidecodeDataDir != "" {
		return glidecodeDataDir, nil
	}

	glidecodeDataDir = filepath.Join(xdg.DataHome, "glidecode")
	err := os.MkdirAll(glidecodeDataDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create Glidecode data directory: %w", err)
	}
	return glidecodeDataDir, nil
}
