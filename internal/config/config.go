// Package config loads client settings from ~/.quill/config.toml and
// QUILL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".quill"
	envPrefix  = "QUILL"
)

// Config is the resolved client configuration.
type Config struct {
	BaseURL   string         `mapstructure:"base_url"`
	WSURL     string         `mapstructure:"ws_url"`
	SSEURL    string         `mapstructure:"sse_url"`
	LogLevel  string         `mapstructure:"log_level"`
	TokenFile string         `mapstructure:"token_file"`
	Stream    StreamConfig   `mapstructure:"stream"`
	Autosave  AutosaveConfig `mapstructure:"autosave"`
}

// StreamConfig tunes the streaming session client.
type StreamConfig struct {
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	ExponentialBackoff   bool          `mapstructure:"exponential_backoff"`
}

// AutosaveConfig tunes document autosave.
type AutosaveConfig struct {
	Delay    time.Duration `mapstructure:"delay"`
	DraftsDB string        `mapstructure:"drafts_db"`
}

// Dir returns ~/.quill.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, configDir), nil
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) Config {
	return Config{
		BaseURL:   "http://localhost:8080/api",
		WSURL:     "ws://localhost:8080/ws",
		SSEURL:    "http://localhost:8080/sse",
		LogLevel:  "info",
		TokenFile: filepath.Join(dir, "token"),
		Stream: StreamConfig{
			ReconnectInterval:    3 * time.Second,
			MaxReconnectAttempts: 5,
			HeartbeatInterval:    30 * time.Second,
		},
		Autosave: AutosaveConfig{
			Delay:    2 * time.Second,
			DraftsDB: filepath.Join(dir, "drafts.db"),
		},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("ws_url", d.WSURL)
	v.SetDefault("sse_url", d.SSEURL)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("token_file", d.TokenFile)
	v.SetDefault("stream.reconnect_interval", d.Stream.ReconnectInterval)
	v.SetDefault("stream.max_reconnect_attempts", d.Stream.MaxReconnectAttempts)
	v.SetDefault("stream.heartbeat_interval", d.Stream.HeartbeatInterval)
	v.SetDefault("stream.exponential_backoff", d.Stream.ExponentialBackoff)
	v.SetDefault("autosave.delay", d.Autosave.Delay)
	v.SetDefault("autosave.drafts_db", d.Autosave.DraftsDB)
}

// Load reads the configuration. An explicit path must exist; otherwise
// config.toml is looked up in dir and a missing file is not an error.
// Environment variables such as QUILL_BASE_URL or QUILL_STREAM_HEARTBEAT_INTERVAL
// override file values.
func Load(v *viper.Viper, dir, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v, Default(dir))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the clients cannot work with.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is empty")
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		return fmt.Errorf("stream.max_reconnect_attempts must not be negative, got %d", c.Stream.MaxReconnectAttempts)
	}
	if c.Stream.ReconnectInterval < 0 {
		return fmt.Errorf("stream.reconnect_interval must not be negative, got %s", c.Stream.ReconnectInterval)
	}
	if c.Autosave.Delay < 0 {
		return fmt.Errorf("autosave.delay must not be negative, got %s", c.Autosave.Delay)
	}
	return nil
}

// Level maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}
