// Package config loads schemahost settings from an optional YAML file.
// Flags set on the command line override file values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default values.
const (
	DefaultDatabase     = "schemahost.db"
	DefaultMaxCallDepth = 16
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultServerAddr   = ":8484"
)

// Config is the full settings tree.
type Config struct {
	Database string   `yaml:"database"`
	Engine   Engine   `yaml:"engine"`
	Log      Log      `yaml:"log"`
	Server   Server   `yaml:"server"`
	Identity Identity `yaml:"identity"`
}

// Engine tunes call execution.
type Engine struct {
	// MaxCallDepth bounds the invocation chain of one call. The top-level
	// invocation is depth 1 and each local or foreign call adds one, so 1
	// allows no nested calls at all.
	MaxCallDepth int `yaml:"max_call_depth"`
}

// Log selects the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Server configures the HTTP entry point.
type Server struct {
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

// Identity controls how callers are identified.
type Identity struct {
	// RequireSignatures rejects calls that name a caller without a signed
	// envelope.
	RequireSignatures bool `yaml:"require_signatures"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Database: DefaultDatabase,
		Engine:   Engine{MaxCallDepth: DefaultMaxCallDepth},
		Log:      Log{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Server:   Server{Addr: DefaultServerAddr, Metrics: true},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, rejecting unknown fields. Fields absent
// from data keep their current value.
func Parse(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, errors.New("database: must not be empty"))
	}
	if c.Engine.MaxCallDepth < 1 {
		errs = append(errs, fmt.Errorf("engine.max_call_depth: must be at least 1, got %d", c.Engine.MaxCallDepth))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr: must not be empty"))
	}
	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q", l.Level)
	}
	return lvl, nil
}
