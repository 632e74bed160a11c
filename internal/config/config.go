package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Player settings for the external playback process.
	Player PlayerConfig `koanf:"player"`

	// Directory settings for the station directory service.
	Directory DirectoryConfig `koanf:"directory"`
}

// PlayerConfig holds settings for the external player process.
type PlayerConfig struct {
	Binary     string   `koanf:"binary"`      // player executable (default: "mpv")
	RuntimeDir string   `koanf:"runtime_dir"` // overrides the session runtime directory
	Volume     int      `koanf:"volume"`      // startup volume 0-100 (default: 50)
	ExtraArgs  []string `koanf:"extra_args"`  // appended to the player command line
}

// DirectoryConfig holds settings for the station directory client.
type DirectoryConfig struct {
	Mirrors        []string `koanf:"mirrors"`         // seed mirror hosts; empty means bootstrap
	MaxAttempts    int      `koanf:"max_attempts"`    // attempts per search/lookup (default: 5)
	TimeoutSeconds int      `koanf:"timeout_seconds"` // per-mirror request timeout (default: 5)
	SearchLimit    int      `koanf:"search_limit"`    // max stations per search (default: 25)
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	configPaths := getConfigPaths()

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// Expand ~ in runtime_dir
	if cfg.Player.RuntimeDir != "" {
		cfg.Player.RuntimeDir = expandPath(cfg.Player.RuntimeDir)
	}

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/radiowidget/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "radiowidget", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetPlayerConfig returns the player configuration with defaults applied.
func (c *Config) GetPlayerConfig() PlayerConfig {
	cfg := c.Player

	if cfg.Binary == "" {
		cfg.Binary = "mpv"
	}
	if cfg.Volume <= 0 || cfg.Volume > 100 {
		cfg.Volume = 50
	}

	return cfg
}

// GetDirectoryConfig returns the directory configuration with defaults applied.
func (c *Config) GetDirectoryConfig() DirectoryConfig {
	cfg := c.Directory

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 5
	}
	if cfg.SearchLimit <= 0 || cfg.SearchLimit > 100 {
		cfg.SearchLimit = 25
	}

	return cfg
}
