// Package config loads numcheck configuration from a JSON5 file with
// environment variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// DefaultConfigFile is the file name looked up in the data directory.
const DefaultConfigFile = "config.json5"

// Config is the root configuration.
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Sessions SessionsConfig `json:"sessions"`
	Verify   VerifyConfig   `json:"verify"`
	Cache    CacheConfig    `json:"cache"`
	Log      LogConfig      `json:"log"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

// GatewayConfig configures the WebSocket RPC server.
type GatewayConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Token      string `json:"token,omitempty"`
	CheckRPM   int    `json:"check_rpm"`   // numbers.check calls per minute per user, 0 = unlimited
	CheckBurst int    `json:"check_burst"` // burst for CheckRPM
}

// SessionsConfig configures the session manager.
type SessionsConfig struct {
	DataDir              string `json:"data_dir"`
	StuckThresholdSec    int    `json:"stuck_threshold_sec"`
	ReconnectDelayMs     int    `json:"reconnect_delay_ms"`
	MaxReconnectAttempts int    `json:"max_reconnect_attempts"` // 0 = unbounded
	ReconnectBackoff     bool   `json:"reconnect_backoff"`
	MaxReconnectDelayMs  int    `json:"max_reconnect_delay_ms"`
	RestartDelayMs       int    `json:"restart_delay_ms"`
	ShutdownGraceMs      int    `json:"shutdown_grace_ms"`
}

// VerifyConfig configures the batch verification engine.
type VerifyConfig struct {
	MaxItems        int `json:"max_items"`
	BatchSize       int `json:"batch_size"`
	QueryIntervalMs int `json:"query_interval_ms"`
	BatchCooldownMs int `json:"batch_cooldown_ms"`
	QueryTimeoutSec int `json:"query_timeout_sec"`
	HistorySize     int `json:"history_size"`
}

// CacheConfig configures the shared result cache.
type CacheConfig struct {
	TTLMinutes int `json:"ttl_minutes"`
	Capacity   int `json:"capacity"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error
	JSON  bool   `json:"json"`
}

// WhatsAppConfig configures the protocol client adapter.
type WhatsAppConfig struct {
	LogLevel string `json:"log_level"` // level for whatsmeow's internal logs
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:       "127.0.0.1",
			Port:       18800,
			CheckRPM:   20,
			CheckBurst: 3,
		},
		Sessions: SessionsConfig{
			DataDir:             "~/.numcheck/sessions",
			StuckThresholdSec:   60,
			ReconnectDelayMs:    3000,
			MaxReconnectDelayMs: 60000,
			RestartDelayMs:      1000,
			ShutdownGraceMs:     2000,
		},
		Verify: VerifyConfig{
			MaxItems:        5000,
			BatchSize:       5,
			QueryIntervalMs: 2000,
			BatchCooldownMs: 1000,
			QueryTimeoutSec: 20,
			HistorySize:     50,
		},
		Cache: CacheConfig{
			TTLMinutes: 60,
			Capacity:   1000,
		},
		Log: LogConfig{
			Level: "info",
		},
		WhatsApp: WhatsAppConfig{
			LogLevel: "warn",
		},
	}
}

// Load reads the config file at path. A missing file yields the defaults.
// Environment overrides are applied afterwards, then the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from NUMCHECK_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("NUMCHECK_HOST", &c.Gateway.Host)
	num("NUMCHECK_PORT", &c.Gateway.Port)
	str("NUMCHECK_TOKEN", &c.Gateway.Token)
	str("NUMCHECK_DATA_DIR", &c.Sessions.DataDir)
	num("NUMCHECK_MAX_RECONNECT_ATTEMPTS", &c.Sessions.MaxReconnectAttempts)
	flag("NUMCHECK_RECONNECT_BACKOFF", &c.Sessions.ReconnectBackoff)
	num("NUMCHECK_MAX_ITEMS", &c.Verify.MaxItems)
	num("NUMCHECK_BATCH_SIZE", &c.Verify.BatchSize)
	num("NUMCHECK_QUERY_INTERVAL_MS", &c.Verify.QueryIntervalMs)
	num("NUMCHECK_CACHE_TTL_MINUTES", &c.Cache.TTLMinutes)
	num("NUMCHECK_CACHE_CAPACITY", &c.Cache.Capacity)
	str("NUMCHECK_LOG_LEVEL", &c.Log.Level)
	flag("NUMCHECK_LOG_JSON", &c.Log.JSON)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port %d out of range", c.Gateway.Port))
	}
	if c.Sessions.DataDir == "" {
		errs = append(errs, errors.New("sessions.data_dir is required"))
	}
	if c.Verify.MaxItems <= 0 {
		errs = append(errs, fmt.Errorf("verify.max_items must be positive, got %d", c.Verify.MaxItems))
	}
	if c.Verify.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("verify.batch_size must be positive, got %d", c.Verify.BatchSize))
	}
	if c.Verify.QueryIntervalMs < 0 || c.Verify.BatchCooldownMs < 0 {
		errs = append(errs, errors.New("verify intervals cannot be negative"))
	}
	if c.Cache.TTLMinutes <= 0 || c.Cache.Capacity <= 0 {
		errs = append(errs, errors.New("cache.ttl_minutes and cache.capacity must be positive"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return errors.Join(errs...)
}

// SessionsDir returns the expanded credential root directory.
func (c *Config) SessionsDir() string {
	return ExpandHome(c.Sessions.DataDir)
}

// Duration helpers used when wiring components.

func (c SessionsConfig) StuckThreshold() time.Duration {
	return time.Duration(c.StuckThresholdSec) * time.Second
}

func (c SessionsConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

func (c SessionsConfig) MaxReconnectDelay() time.Duration {
	return time.Duration(c.MaxReconnectDelayMs) * time.Millisecond
}

func (c SessionsConfig) RestartDelay() time.Duration {
	return time.Duration(c.RestartDelayMs) * time.Millisecond
}

func (c SessionsConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceMs) * time.Millisecond
}

func (c VerifyConfig) QueryInterval() time.Duration {
	return time.Duration(c.QueryIntervalMs) * time.Millisecond
}

func (c VerifyConfig) BatchCooldown() time.Duration {
	return time.Duration(c.BatchCooldownMs) * time.Millisecond
}

func (c VerifyConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSec) * time.Second
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// DefaultPath returns ~/.numcheck/config.json5, or $NUMCHECK_CONFIG when set.
func DefaultPath() string {
	if p := os.Getenv("NUMCHECK_CONFIG"); p != "" {
		return p
	}
	return ExpandHome(filepath.Join("~", ".numcheck", DefaultConfigFile))
}

// Save writes cfg to path as indented JSON, which is valid JSON5. The file is
// replaced atomically and readable only by its owner since it holds the token.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
