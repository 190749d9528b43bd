package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minReportInterval = 1 * time.Second
	minRefreshEnabled = 1 * time.Minute
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
)

// Validate checks all configuration values and returns all errors found, so
// users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateDurationMin("tracking.min_report_interval",
		cfg.Tracking.MinReportInterval, minReportInterval)...)
	errs = append(errs, validateRefresh(&cfg.Refresh)...)
	errs = append(errs, validateServe(&cfg.Serve)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// ValidateSignIn checks the settings the device-code sign-in needs. They are
// optional for every other command.
func ValidateSignIn(r *RemoteConfig) error {
	var errs []error

	if r.ClientID == "" {
		errs = append(errs, errors.New("remote.client_id: required to sign in"))
	}

	if r.DeviceAuthURL == "" {
		errs = append(errs, errors.New("remote.device_auth_url: required to sign in"))
	}

	if r.TokenURL == "" {
		errs = append(errs, errors.New("remote.token_url: required to sign in"))
	}

	return errors.Join(errs...)
}

func validateRemote(r *RemoteConfig) []error {
	var errs []error

	if err := validateURL("remote.base_url", r.BaseURL, true); err != nil {
		errs = append(errs, err)
	}

	for field, v := range map[string]string{
		"remote.auth_url":        r.AuthURL,
		"remote.token_url":       r.TokenURL,
		"remote.device_auth_url": r.DeviceAuthURL,
	} {
		if err := validateURL(field, v, false); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

func validateURL(field, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s: must not be empty", field)
		}

		return nil
	}

	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: invalid URL %q: %w", field, value, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: must be an http or https URL, got %q", field, value)
	}

	return nil
}

func validateRefresh(r *RefreshConfig) []error {
	d, err := time.ParseDuration(r.Interval)
	if err != nil {
		return []error{fmt.Errorf("refresh.interval: invalid duration %q: %w", r.Interval, err)}
	}

	if d != 0 && d < minRefreshEnabled {
		return []error{fmt.Errorf("refresh.interval: must be 0 (disabled) or >= %s, got %s", minRefreshEnabled, d)}
	}

	return nil
}

func validateServe(s *ServeConfig) []error {
	if _, _, err := net.SplitHostPort(s.ListenAddr); err != nil {
		return []error{fmt.Errorf("serve.listen_addr: invalid address %q: %w", s.ListenAddr, err)}
	}

	return nil
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("network.data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}
