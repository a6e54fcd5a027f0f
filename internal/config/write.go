package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	fileMode        = 0o600
	dirMode         = 0o700
	tempFilePattern = ".config-*.toml.tmp"
)

// ErrExists is returned by WriteDefault when the file is already there.
var ErrExists = errors.New("config file already exists")

type fileSchema struct {
	BaseURL   string         `toml:"base_url"`
	WSURL     string         `toml:"ws_url"`
	SSEURL    string         `toml:"sse_url"`
	LogLevel  string         `toml:"log_level"`
	TokenFile string         `toml:"token_file"`
	Stream    streamSchema   `toml:"stream"`
	Autosave  autosaveSchema `toml:"autosave"`
}

type streamSchema struct {
	ReconnectInterval    string `toml:"reconnect_interval"`
	MaxReconnectAttempts int    `toml:"max_reconnect_attempts"`
	HeartbeatInterval    string `toml:"heartbeat_interval"`
	ExponentialBackoff   bool   `toml:"exponential_backoff"`
}

type autosaveSchema struct {
	Delay    string `toml:"delay"`
	DraftsDB string `toml:"drafts_db"`
}

func toSchema(c Config) fileSchema {
	return fileSchema{
		BaseURL:   c.BaseURL,
		WSURL:     c.WSURL,
		SSEURL:    c.SSEURL,
		LogLevel:  c.LogLevel,
		TokenFile: c.TokenFile,
		Stream: streamSchema{
			ReconnectInterval:    c.Stream.ReconnectInterval.String(),
			MaxReconnectAttempts: c.Stream.MaxReconnectAttempts,
			HeartbeatInterval:    c.Stream.HeartbeatInterval.String(),
			ExponentialBackoff:   c.Stream.ExponentialBackoff,
		},
		Autosave: autosaveSchema{
			Delay:    c.Autosave.Delay.String(),
			DraftsDB: c.Autosave.DraftsDB,
		},
	}
}

// WriteDefault writes Default(filepath.Dir(path)) to path unless the file
// exists already.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w", path, ErrExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return Write(path, Default(filepath.Dir(path)))
}

// Write atomically replaces path with cfg.
func Write(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(toSchema(cfg))
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tempFile.Chmod(fileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	cleanup = false
	return nil
}
