package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogWriter adapts t.Log to io.Writer so slog output lands in test output.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	var out io.Writer = testLogWriter{t: t}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[remote]
base_url = "https://learn.example.com/api/v1"
client_id = "desktop"
auth_url = "https://learn.example.com/oauth/authorize"
token_url = "https://learn.example.com/oauth/token"
device_auth_url = "https://learn.example.com/oauth/device"
scopes = ["progress", "profile"]

[tracking]
min_report_interval = "5s"

[refresh]
interval = "1h"
force_on_start = true

[storage]
data_dir = "/srv/learnsync"
catalog_file = "/srv/learnsync/catalog.json"

[serve]
listen_addr = "0.0.0.0:9000"

[logging]
log_level = "debug"
log_format = "json"

[network]
connect_timeout = "3s"
data_timeout = "20s"
user_agent = "learnsync-test/1.0"
`)

	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "https://learn.example.com/api/v1", cfg.Remote.BaseURL)
	assert.Equal(t, "desktop", cfg.Remote.ClientID)
	assert.Equal(t, []string{"progress", "profile"}, cfg.Remote.Scopes)
	assert.Equal(t, 5*time.Second, cfg.MinReportInterval())
	assert.Equal(t, time.Hour, cfg.RefreshInterval())
	assert.True(t, cfg.Refresh.ForceOnStart)
	assert.Equal(t, "/srv/learnsync/state.db", cfg.StatePath())
	assert.Equal(t, "/srv/learnsync/catalog.json", cfg.CatalogPath())
	assert.Equal(t, "0.0.0.0:9000", cfg.Serve.ListenAddr)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 20*time.Second, cfg.DataTimeout())
	assert.Equal(t, "learnsync-test/1.0", cfg.Network.UserAgent)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, "[tracking]\nmin_report_interval = \"30s\"\n")

	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.MinReportInterval())
	assert.Equal(t, defaultBaseURL, cfg.Remote.BaseURL)
	assert.Equal(t, 30*time.Minute, cfg.RefreshInterval())
	assert.Equal(t, defaultListenAddr, cfg.Serve.ListenAddr)
}

func TestLoad_RefreshDisabled(t *testing.T) {
	path := writeTestConfig(t, "[refresh]\ninterval = \"0\"\n")

	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)
	assert.Zero(t, cfg.RefreshInterval())
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "[tracking\nmin_report_interval = 1")

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeTestConfig(t, "[tracking]\nmin_report_interval = \"500ms\"\n")

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracking.min_report_interval")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"), testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Precedence(t *testing.T) {
	path := writeTestConfig(t, `
[storage]
data_dir = "/from/file"

[logging]
log_level = "warn"
`)

	cliDir := "/from/cli"

	cfg, usedPath, err := Resolve(
		EnvOverrides{ConfigPath: path, DataDir: "/from/env", LogLevel: "debug"},
		CLIOverrides{DataDir: &cliDir},
		testLogger(t),
	)
	require.NoError(t, err)

	assert.Equal(t, path, usedPath)
	assert.Equal(t, "/from/cli", cfg.DataDir())
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
}

func TestResolve_CLIConfigPathWins(t *testing.T) {
	envPath := writeTestConfig(t, "[serve]\nlisten_addr = \"127.0.0.1:1\"\n")
	cliPath := writeTestConfig(t, "[serve]\nlisten_addr = \"127.0.0.1:2\"\n")

	cfg, usedPath, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath}, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, cliPath, usedPath)
	assert.Equal(t, "127.0.0.1:2", cfg.Serve.ListenAddr)
}

func TestResolve_InvalidEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")

	_, _, err := Resolve(EnvOverrides{ConfigPath: path, LogLevel: "loud"}, CLIOverrides{}, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.log_level")
}
