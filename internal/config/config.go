// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for learnsync. Values resolve through a
// four-layer override chain: defaults -> config file -> environment -> CLI
// flags. An optional .env file seeds the environment layer.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Remote   RemoteConfig   `toml:"remote"`
	Tracking TrackingConfig `toml:"tracking"`
	Refresh  RefreshConfig  `toml:"refresh"`
	Storage  StorageConfig  `toml:"storage"`
	Serve    ServeConfig    `toml:"serve"`
	Logging  LoggingConfig  `toml:"logging"`
	Network  NetworkConfig  `toml:"network"`
}

// RemoteConfig points at the learning platform and its OAuth2 endpoints.
type RemoteConfig struct {
	BaseURL       string   `toml:"base_url"`
	ClientID      string   `toml:"client_id"`
	AuthURL       string   `toml:"auth_url"`
	TokenURL      string   `toml:"token_url"`
	DeviceAuthURL string   `toml:"device_auth_url"`
	Scopes        []string `toml:"scopes"`
}

// TrackingConfig controls how often watch sessions report progress.
type TrackingConfig struct {
	MinReportInterval string `toml:"min_report_interval"`
}

// RefreshConfig controls the background refresh of account data under serve.
// An interval of "0" disables the scheduler.
type RefreshConfig struct {
	Interval     string `toml:"interval"`
	ForceOnStart bool   `toml:"force_on_start"`
}

// StorageConfig locates the local mirror and the content catalog.
type StorageConfig struct {
	DataDir     string `toml:"data_dir"`
	CatalogFile string `toml:"catalog_file"`
}

// ServeConfig controls the local player endpoint.
type ServeConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish
// "not specified" (nil) from "explicitly set".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	DataDir    *string // --data-dir flag
}

// MinReportInterval returns the parsed tracking interval. Validate guarantees
// the string parses; the default is returned for a Config that skipped it.
func (c *Config) MinReportInterval() time.Duration {
	return parseDurationOr(c.Tracking.MinReportInterval, defaultMinReportIntervalDur)
}

// RefreshInterval returns the parsed refresh interval. Zero means disabled.
func (c *Config) RefreshInterval() time.Duration {
	return parseDurationOr(c.Refresh.Interval, defaultRefreshIntervalDur)
}

// ConnectTimeout returns the parsed dial timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return parseDurationOr(c.Network.ConnectTimeout, defaultConnectTimeoutDur)
}

// DataTimeout returns the parsed overall request timeout.
func (c *Config) DataTimeout() time.Duration {
	return parseDurationOr(c.Network.DataTimeout, defaultDataTimeoutDur)
}

// DataDir returns the effective data directory.
func (c *Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return expandTilde(c.Storage.DataDir)
	}

	return DefaultDataDir()
}

// StatePath returns the path of the local mirror database.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir(), stateFileName)
}

// TokenPath returns the path of the persisted OAuth2 token.
func (c *Config) TokenPath() string {
	return filepath.Join(c.DataDir(), tokenFileName)
}

// PIDPath returns the path of the serve PID file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir(), pidFileName)
}

// CatalogPath returns the catalog file path, or "" when none is configured.
func (c *Config) CatalogPath() string {
	if c.Storage.CatalogFile == "" {
		return ""
	}

	return expandTilde(c.Storage.CatalogFile)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}

	return d
}

// String renders the effective configuration as a single log-friendly line.
func (c *Config) String() string {
	return fmt.Sprintf("base_url=%s data_dir=%s min_report_interval=%s refresh_interval=%s listen_addr=%s log_level=%s",
		c.Remote.BaseURL, c.DataDir(), c.MinReportInterval(), c.RefreshInterval(),
		c.Serve.ListenAddr, c.Logging.LogLevel)
}
