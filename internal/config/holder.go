package config

import "sync/atomic"

// Holder shares the live config between serve and the config watcher.
// Readers never block; a reload swaps the whole *Config.
type Holder struct {
	cur  atomic.Pointer[Config]
	path string
}

// NewHolder returns a Holder for cfg, loaded from path.
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cur.Store(cfg)

	return h
}

// Config returns the current config. Callers must treat it as read-only.
func (h *Holder) Config() *Config {
	return h.cur.Load()
}

// Path is the file the config was loaded from.
func (h *Holder) Path() string {
	return h.path
}

// Update installs cfg and returns the config it replaced.
func (h *Holder) Update(cfg *Config) *Config {
	return h.cur.Swap(cfg)
}
