// Package config loads application configuration from a TOML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Queue holds queue processing settings.
type Queue struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	BatchSize           int `toml:"batch_size"`
	MaxAttempts         int `toml:"max_attempts"`
	Concurrency         int `toml:"concurrency"`
}

// Archive holds archival service credentials and endpoints.
type Archive struct {
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	Collection   string `toml:"collection"`
	UploadBase   string `toml:"upload_base"`
	DownloadBase string `toml:"download_base"`
}

// Analysis holds extraction service settings.
type Analysis struct {
	Endpoint     string `toml:"endpoint"`
	Model        string `toml:"model"`
	APIKey       string `toml:"api_key"`
	SystemPrompt string `toml:"system_prompt"`
}

// Config holds application configuration.
type Config struct {
	DataDir     string   `toml:"data_dir"`
	DBPath      string   `toml:"db_path"`
	HTTPBind    string   `toml:"http_bind"`
	APIToken    string   `toml:"api_token"`
	SourcesFile string   `toml:"sources_file"`
	LogLevel    string   `toml:"log_level"`
	LogFormat   string   `toml:"log_format"`
	Queue       Queue    `toml:"queue"`
	Archive     Archive  `toml:"archive"`
	Analysis    Analysis `toml:"analysis"`
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "gazeta")
}

// DefaultConfigPath returns the default config file path using
// XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "gazeta", "config.toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:   dataDir,
		DBPath:    filepath.Join(dataDir, "gazeta.db"),
		HTTPBind:  ":8090",
		LogLevel:  "info",
		LogFormat: "text",
		Queue: Queue{
			PollIntervalSeconds: 30,
			BatchSize:           10,
			MaxAttempts:         3,
			Concurrency:         4,
		},
	}
}

// Load reads the config file at path on top of the defaults, then applies
// environment overrides and validates. An empty path uses the default
// location; a missing file at the default location is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if explicit {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"GAZETA_DATA_DIR":           &cfg.DataDir,
		"GAZETA_DB":                 &cfg.DBPath,
		"GAZETA_HTTP_BIND":          &cfg.HTTPBind,
		"GAZETA_API_TOKEN":          &cfg.APIToken,
		"GAZETA_SOURCES_FILE":       &cfg.SourcesFile,
		"GAZETA_ARCHIVE_ACCESS_KEY": &cfg.Archive.AccessKey,
		"GAZETA_ARCHIVE_SECRET_KEY": &cfg.Archive.SecretKey,
		"GAZETA_ANALYSIS_API_KEY":   &cfg.Analysis.APIKey,
	}
	for key, target := range overrides {
		if value := os.Getenv(key); value != "" {
			*target = value
		}
	}
}

// Validate checks the invariants the rest of the program relies on.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.Queue.PollIntervalSeconds < 1 {
		return fmt.Errorf("queue.poll_interval_seconds must be >= 1, got %d", c.Queue.PollIntervalSeconds)
	}
	if c.Queue.BatchSize < 1 {
		return fmt.Errorf("queue.batch_size must be >= 1, got %d", c.Queue.BatchSize)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be >= 1, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("queue.concurrency must be >= 1, got %d", c.Queue.Concurrency)
	}
	return nil
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Queue.PollIntervalSeconds) * time.Second
}
