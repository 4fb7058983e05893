// Package config handles limsg configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/limsg/config.yaml, /etc/limsg/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "limsg", "config.yaml"))
	}

	paths = append(paths, "/etc/limsg/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches DefaultSearchPaths and returns the first
// that exists. Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all limsg configuration.
type Config struct {
	// SessionFile is where the serialized session blob is persisted
	// between runs.
	SessionFile string `yaml:"session_file"`
	// Email pre-fills the login prompt. The password is never stored;
	// it is prompted for interactively.
	Email string `yaml:"email"`
	// ArchiveDB is the SQLite database the listen command writes
	// received messages to when archiving is enabled.
	ArchiveDB string `yaml:"archive_db"`
	LogLevel  string `yaml:"log_level"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{
		SessionFile: "session.json",
		ArchiveDB:   "messages.db",
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.SessionFile = filepath.Join(home, ".config", "limsg", "session.json")
		cfg.ArchiveDB = filepath.Join(home, ".config", "limsg", "messages.db")
	}
	return cfg
}
