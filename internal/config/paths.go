package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "learnsync"

// File names inside the config and data directories.
const (
	configFileName = "config.toml"
	stateFileName  = "state.db"
	tokenFileName  = "token.json"
	pidFileName    = "serve.pid"
	dotEnvFileName = ".env"
)

type dirKind int

const (
	configDirKind dirKind = iota
	dataDirKind
)

// xdgDirs maps each kind to its XDG variable and the fallback under $HOME.
var xdgDirs = map[dirKind]struct {
	env      string
	fallback []string
}{
	configDirKind: {"XDG_CONFIG_HOME", []string{".config"}},
	dataDirKind:   {"XDG_DATA_HOME", []string{".local", "share"}},
}

// userDir resolves the per-user directory of kind. macOS keeps config and
// data together under Application Support; XDG variables apply on Linux only.
func userDir(goos, home string, kind dirKind, getenv func(string) string) string {
	if goos == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	xdg := xdgDirs[kind]
	if v := getenv(xdg.env); goos == "linux" && v != "" {
		return filepath.Join(v, appName)
	}

	return filepath.Join(append(append([]string{home}, xdg.fallback...), appName)...)
}

func defaultDir(kind dirKind) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return userDir(runtime.GOOS, home, kind, os.Getenv)
}

// DefaultConfigDir is where config.toml lives unless overridden.
func DefaultConfigDir() string { return defaultDir(configDirKind) }

// DefaultDataDir holds the mirror database, token and PID file unless
// storage.data_dir says otherwise.
func DefaultDataDir() string { return defaultDir(dataDirKind) }

// DefaultConfigPath is used when neither --config nor LEARNSYNC_CONFIG is set.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
