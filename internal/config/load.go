package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned for config files that are neither YAML nor
// TOML.
var ErrUnknownFormat = errors.New("unknown config file format")

// Load loads configuration with priority: defaults < file < flags.
// f may be nil when no flags are bound.
func Load(f *Flags) (*Config, error) {
	cfg := Default()

	// Explicit path takes priority
	configPath := f.ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	applyFlags(cfg, f)

	return cfg, nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./meshlod.yaml",
		"./meshlod.toml",
		filepath.Join(ConfigDir(), "meshlod.yaml"),
		filepath.Join(ConfigDir(), "meshlod.toml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "MidgardLOD")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "MidgardLOD")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "midgard-lod")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "midgard-lod")
	}
}

// loadFromFile merges a YAML or TOML file, chosen by extension, into cfg.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
}
