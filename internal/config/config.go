// Package config loads service settings from a JSON5 file, an optional
// "<name>.local.<ext>" overlay, and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// Environment variables that override file values.
const (
	EnvUsername    = "IG_USERNAME"
	EnvPassword    = "IG_PASSWORD"
	EnvAddr        = "REELSCRAPE_ADDR"
	EnvSessionFile = "REELSCRAPE_SESSION_FILE"
	EnvProxy       = "REELSCRAPE_PROXY"
)

// Config is the full service configuration.
type Config struct {
	Addr            string   `json:"addr"`
	SessionFile     string   `json:"session_file"`
	Username        string   `json:"username"`
	Password        string   `json:"password"`
	AllowedOrigins  []string `json:"allowed_origins"`
	Proxy           string   `json:"proxy"`
	BrowserFallback bool     `json:"browser_fallback"`
	RequestDelay    string   `json:"request_delay"`
	ReadTimeout     string   `json:"read_timeout"`
	WriteTimeout    string   `json:"write_timeout"`
	Log             Log      `json:"log"`
	Tracing         Tracing  `json:"tracing"`
}

// Log configures the process logger.
type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// Tracing configures span export.
type Tracing struct {
	Enabled bool   `json:"enabled"`
	File    string `json:"file"`
}

// Default returns the configuration used when no file sets a value.
func Default() Config {
	return Config{
		Addr:           ":5001",
		SessionFile:    "insta_session.json",
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestDelay:   "300ms",
		// Scrapes make several sequential upstream calls plus comment paging.
		ReadTimeout:  "15s",
		WriteTimeout: "120s",
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Tracing: Tracing{
			File: "logs/reelscrape_traces.log",
		},
	}
}

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// Read loads name over the defaults and merges "<name>.local.<ext>" on top,
// where the local file wins. Missing files are skipped. Environment
// overrides are applied last.
func Read(name string) (Config, error) {
	out := Default()

	if name != "" {
		base, err := readFile(name)
		if err != nil {
			return out, err
		}
		if base != nil {
			if err := mergo.Merge(&out, *base, mergo.WithOverride); err != nil {
				return out, fmt.Errorf("merge %s: %w", name, err)
			}
		}

		prefix, ext := splitExt(filepath.Base(name))
		localPath := filepath.Join(filepath.Dir(name), fmt.Sprintf("%s.local.%s", prefix, ext))
		local, err := readFile(localPath)
		if err != nil {
			return out, err
		}
		if local != nil {
			if err := mergo.Merge(&out, *local, mergo.WithOverride); err != nil {
				return out, fmt.Errorf("merge %s: %w", localPath, err)
			}
			slog.Info("merging config with local overrides", "local", localPath)
		}
	}

	out.ApplyEnv(os.Getenv)
	return out, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var c Config
	if err := json5.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &c, nil
}

// ApplyEnv overrides fields from the environment. Empty values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Username, EnvUsername)
	set(&c.Password, EnvPassword)
	set(&c.Addr, EnvAddr)
	set(&c.SessionFile, EnvSessionFile)
	set(&c.Proxy, EnvProxy)
}

// Validate reports configuration that cannot serve requests.
func (c Config) Validate() error {
	var errs []error
	if c.Username == "" || c.Password == "" {
		errs = append(errs, fmt.Errorf("credentials missing: set username/password or %s/%s", EnvUsername, EnvPassword))
	}
	if c.SessionFile == "" {
		errs = append(errs, errors.New("session_file is empty"))
	}
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is empty"))
	}
	for name, v := range map[string]string{
		"request_delay": c.RequestDelay,
		"read_timeout":  c.ReadTimeout,
		"write_timeout": c.WriteTimeout,
	} {
		if _, err := parseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// RequestDelayDuration is the minimum spacing between upstream calls.
func (c Config) RequestDelayDuration() time.Duration {
	d, _ := parseDuration(c.RequestDelay)
	return d
}

// ReadTimeoutDuration is the HTTP server read timeout.
func (c Config) ReadTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.ReadTimeout)
	return d
}

// WriteTimeoutDuration is the HTTP server write timeout.
func (c Config) WriteTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.WriteTimeout)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
