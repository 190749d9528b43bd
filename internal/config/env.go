package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig     = "LEARNSYNC_CONFIG"
	EnvDataDir    = "LEARNSYNC_DATA_DIR"
	EnvLogLevel   = "LEARNSYNC_LOG_LEVEL"
	EnvBaseURL    = "LEARNSYNC_BASE_URL"
	EnvClientID   = "LEARNSYNC_CLIENT_ID"
	EnvListenAddr = "LEARNSYNC_LISTEN_ADDR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // LEARNSYNC_CONFIG: override config file path
	DataDir    string // LEARNSYNC_DATA_DIR: data directory override
	LogLevel   string // LEARNSYNC_LOG_LEVEL
	BaseURL    string // LEARNSYNC_BASE_URL
	ClientID   string // LEARNSYNC_CLIENT_ID
	ListenAddr string // LEARNSYNC_LISTEN_ADDR
}

// LoadDotEnv populates the process environment from a .env file. Variables
// already present in the environment win over the file. A missing file is
// not an error. An empty path means ".env" in the working directory.
func LoadDotEnv(path string, logger *slog.Logger) error {
	if path == "" {
		path = dotEnvFileName
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	logger.Debug("loaded environment file", slog.String("path", path))

	return nil
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	env := EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DataDir:    os.Getenv(EnvDataDir),
		LogLevel:   os.Getenv(EnvLogLevel),
		BaseURL:    os.Getenv(EnvBaseURL),
		ClientID:   os.Getenv(EnvClientID),
		ListenAddr: os.Getenv(EnvListenAddr),
	}

	if env.ConfigPath != "" {
		logger.Debug("config path from environment", slog.String("path", env.ConfigPath))
	}

	return env
}

// apply copies non-empty overrides onto cfg.
func (e EnvOverrides) apply(cfg *Config) {
	if e.DataDir != "" {
		cfg.Storage.DataDir = e.DataDir
	}

	if e.LogLevel != "" {
		cfg.Logging.LogLevel = e.LogLevel
	}

	if e.BaseURL != "" {
		cfg.Remote.BaseURL = e.BaseURL
	}

	if e.ClientID != "" {
		cfg.Remote.ClientID = e.ClientID
	}

	if e.ListenAddr != "" {
		cfg.Serve.ListenAddr = e.ListenAddr
	}
}
