package config

import "time"

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultBaseURL           = "https://www.khanacademy.org/api/v1"
	defaultMinReportInterval = "10s"
	defaultRefreshInterval   = "30m"
	defaultListenAddr        = "127.0.0.1:8719"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
	defaultConnectTimeout    = "10s"
	defaultDataTimeout       = "60s"
)

const (
	defaultMinReportIntervalDur = 10 * time.Second
	defaultRefreshIntervalDur   = 30 * time.Minute
	defaultConnectTimeoutDur    = 10 * time.Second
	defaultDataTimeoutDur       = 60 * time.Second
)

// DefaultConfig returns a Config populated with all default values. It is the
// starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL: defaultBaseURL,
		},
		Tracking: TrackingConfig{
			MinReportInterval: defaultMinReportInterval,
		},
		Refresh: RefreshConfig{
			Interval: defaultRefreshInterval,
		},
		Serve: ServeConfig{
			ListenAddr: defaultListenAddr,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
	}
}
