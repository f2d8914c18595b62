// Package config handles configuration for the clipsync device client,
// including defaults, an optional JSON overlay and command-line flags.
package config

import "time"

// Config holds runtime settings for the device client.
//
// Fields:
//   - ServerAddr: host:port of the relay's framed TCP endpoint.
//   - DeviceName: human-readable label shown to the account's other devices.
//   - DatabasePath: sqlite file backing the local history cache.
//   - MaxCacheItems: cache bound; oldest entries are evicted past it.
//   - HeartbeatInterval: how often an idle connection sends a heartbeat.
//   - RequestTimeout: how long to wait for a relay reply.
type Config struct {
	ServerAddr        string
	DeviceName        string
	DatabasePath      string
	MaxCacheItems     int
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerAddr = "127.0.0.1:6789"
	c.DeviceName = defaultDeviceName()
	c.DatabasePath = "clipsync.db"
	c.MaxCacheItems = 200
	c.HeartbeatInterval = 30 * time.Second
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
