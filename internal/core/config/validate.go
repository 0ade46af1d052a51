package config

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/hay-kot/criterio"
)

// ValidateDeep performs comprehensive validation of the configuration
// including file accessibility and provider executables. The configPath
// argument specifies the config file location to validate (empty string
// skips the config file check). This calls Validate() first for basic
// structural validation, then adds I/O checks.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("queue.dir", c.Queue.Dir, isDirectoryOrNotExist),
		c.validateExecutables(),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// validateExecutables checks that every provider command resolves on PATH.
func (c *Config) validateExecutables() error {
	var errs criterio.FieldErrorsBuilder

	commands := []struct {
		field string
		argv  []string
	}{
		{"capture.command", c.Capture.Command},
		{"idle.command", c.Idle.Command},
		{"session.command", c.Session.Command},
	}
	if c.Capture.LockOnDiskPressure {
		commands = append(commands, struct {
			field string
			argv  []string
		}{"capture.lock_command", c.Capture.LockCommand})
	}

	for _, cmd := range commands {
		if len(cmd.argv) == 0 {
			continue
		}
		if err := executableExists(cmd.argv[0]); err != nil {
			errs = errs.Append(cmd.field, err)
		}
	}

	return errs.ToError()
}

func executableExists(path string) error {
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("executable not found: %s", path)
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}
