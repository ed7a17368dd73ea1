package config

import "time"

// Conflict policies of the CLI delegate.
const (
	ConflictKeep   = "keep"
	ConflictDelete = "delete"
	ConflictAsk    = "ask"
)

// Config holds runtime settings for the sync client CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the sync server gRPC endpoint.
//   - AccessToken: JWT issued by the server (syncserver -issue-token).
//   - DeviceID: identifies this installation to the server; empty derives one from the host name.
//   - DatabasePath: SQLite file holding local sync state.
//   - DownloadDir: where downloaded files are materialized.
//   - MaxAttempts / RetryBaseDelay: retry policy of a failing sync step.
//   - StatusPollInterval: how often an outbound operation status is polled.
//   - OnlineCheckInterval: how often the client probes server reachability while offline.
//   - ConflictPolicy: keep, delete or ask.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	ServerEndpointAddr  string
	AccessToken         string
	DeviceID            string
	DatabasePath        string
	DownloadDir         string
	MaxAttempts         int
	RetryBaseDelay      time.Duration
	StatusPollInterval  time.Duration
	OnlineCheckInterval time.Duration
	ConflictPolicy      string
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.AccessToken = ""
	c.DeviceID = ""
	c.DatabasePath = "syncclient.db"
	c.DownloadDir = "downloads"
	c.MaxAttempts = 3
	c.RetryBaseDelay = 500 * time.Millisecond
	c.StatusPollInterval = 500 * time.Millisecond
	c.OnlineCheckInterval = 3 * time.Second
	c.ConflictPolicy = ConflictAsk
	c.LogLevel = "warn"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
