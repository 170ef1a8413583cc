package process

import (
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-uplink/pkg/errors"
)

// ValidateExecutionConfig validates execution configuration
func ValidateExecutionConfig(config ExecutionConfig) error {
	if config.ExecutablePath == "" {
		return errors.NewValidationError("executable path cannot be empty", nil)
	}

	if !filepath.IsAbs(config.ExecutablePath) {
		return errors.NewValidationError("executable path must be absolute", nil).WithContext("executable_path", config.ExecutablePath)
	}

	if config.LinkerPath != "" && !filepath.IsAbs(config.LinkerPath) {
		return errors.NewValidationError("linker path must be absolute", nil).WithContext("linker_path", config.LinkerPath)
	}

	if config.WorkingDirectory != "" {
		info, err := os.Stat(config.WorkingDirectory)
		if err != nil {
			return errors.NewIOError("working directory not accessible", err).WithContext("working_directory", config.WorkingDirectory)
		}
		if !info.IsDir() {
			return errors.NewValidationError("working directory is not a directory", nil).WithContext("working_directory", config.WorkingDirectory)
		}
	}

	return nil
}
