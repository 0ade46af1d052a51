package commands

import (
	"os"
	"path/filepath"

	"github.com/colonyops/auditagent/internal/core/config"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string

	// Config is read in the Before hook and available to all commands. It
	// has defaults applied but is not validated; run validates it.
	Config *config.Config
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "auditagent", "config.yaml")
}
