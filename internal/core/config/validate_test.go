package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config with all required fields set for testing.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Server.BaseURL = "https://collector.example.com"
	cfg.Queue.Dir = t.TempDir()
	cfg.Capture.Command = []string{"sh", "-c", "true"}
	cfg.Idle.Command = []string{"sh"}
	cfg.Session.Command = []string{"sh"}
	return &cfg
}

func TestValidateDeep_ValidConfig(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.ValidateDeep(""))
}

func TestValidateDeep_MissingExecutables(t *testing.T) {
	cfg := validConfig(t)
	cfg.Idle.Command = []string{"definitely-not-installed-idle"}
	cfg.Capture.LockOnDiskPressure = true
	cfg.Capture.LockCommand = []string{"definitely-not-installed-lock"}

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Len(t, fieldErrs, 2)

	fields := []string{fieldErrs[0].Field, fieldErrs[1].Field}
	assert.Contains(t, fields, "idle.command")
	assert.Contains(t, fields, "capture.lock_command")
}

func TestValidateDeep_QueueDirIsFile(t *testing.T) {
	cfg := validConfig(t)
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	cfg.Queue.Dir = file

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "queue.dir", fieldErrs[0].Field)
}

func TestValidateDeep_ConfigPathIsDirectory(t *testing.T) {
	cfg := validConfig(t)

	err := cfg.ValidateDeep(t.TempDir())

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "config_file", fieldErrs[0].Field)
}
