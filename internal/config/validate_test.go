package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidDefaults(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty base url", func(c *Config) { c.Remote.BaseURL = "" }, "remote.base_url"},
		{"non-http base url", func(c *Config) { c.Remote.BaseURL = "ftp://x" }, "remote.base_url"},
		{"bad token url", func(c *Config) { c.Remote.TokenURL = "not a url" }, "remote.token_url"},
		{"report interval too small", func(c *Config) { c.Tracking.MinReportInterval = "999ms" }, "tracking.min_report_interval"},
		{"report interval garbage", func(c *Config) { c.Tracking.MinReportInterval = "soon" }, "tracking.min_report_interval"},
		{"refresh too frequent", func(c *Config) { c.Refresh.Interval = "10s" }, "refresh.interval"},
		{"refresh garbage", func(c *Config) { c.Refresh.Interval = "hourly" }, "refresh.interval"},
		{"listen addr without port", func(c *Config) { c.Serve.ListenAddr = "localhost" }, "serve.listen_addr"},
		{"log level", func(c *Config) { c.Logging.LogLevel = "trace" }, "logging.log_level"},
		{"log format", func(c *Config) { c.Logging.LogFormat = "xml" }, "logging.log_format"},
		{"connect timeout", func(c *Config) { c.Network.ConnectTimeout = "100ms" }, "network.connect_timeout"},
		{"data timeout", func(c *Config) { c.Network.DataTimeout = "1s" }, "network.data_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.LogLevel = "trace"
	cfg.Serve.ListenAddr = "nope"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.log_level")
	assert.Contains(t, err.Error(), "serve.listen_addr")
}

func TestValidate_RefreshZeroAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Refresh.Interval = "0"
	assert.NoError(t, Validate(cfg))
}

func TestValidateSignIn(t *testing.T) {
	r := DefaultConfig().Remote

	err := ValidateSignIn(&r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote.client_id")
	assert.Contains(t, err.Error(), "remote.device_auth_url")
	assert.Contains(t, err.Error(), "remote.token_url")

	r.ClientID = "desktop"
	r.DeviceAuthURL = "https://learn.example.com/oauth/device"
	r.TokenURL = "https://learn.example.com/oauth/token"
	assert.NoError(t, ValidateSignIn(&r))
}
