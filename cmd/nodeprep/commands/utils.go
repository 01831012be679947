package commands

import (
	"os"
	"path/filepath"

	"github.com/baremetal-kit/nodeprep/pkg/errors"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath, fsmDBPath, imageDir string) error {
	// Create database directory
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Create FSM database directory (only needed for deploy command)
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	// Create image directory (only needed for deploy command)
	if imageDir != "" {
		if err := os.MkdirAll(imageDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create image directory")
		}
	}

	return nil
}
