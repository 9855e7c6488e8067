package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetGlidecodeCacheHome returns a directory path for storing user-specific
// glidecode cache data. If needed, it also creates the necessary directories for
// storing user-specific cache data according to the XDG spec. Can be overridden by
// setting the SIDE_CACHE_HOME environment variable.
func GetGlidecodeCacheHome() (string, error) {
	glidecodeCacheDir := os.Getenv("SIDE_CACHE_HOME")
	if glidecodeCacheDir != "" {
		// If the override is set, ensure this specific directory exists.
		err := os.MkdirAll(glidecodeCacheDir, 0755)
		if err != nil {
			return "", fmt.Errorf("failed to create Glidecode cache directory from SIDE_CACHE_HOME: %w", err)
		}
		return glidecodeCacheDir, nil
	}

	// Default to XDG cache directory + /glidecode
	glidecodeCacheDir = filepath.Join(xdg.CacheHome, "glidecode")
	err := os.MkdirAll(glidecodeCacheDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create Glidecode cache directory: %w", err)
	}
	return glidecodeCacheDir, nil
}
