package config

import (
	"time"

	"github.com/dmitrijs2005/syncserver/internal/flagx"
	"github.com/dmitrijs2005/syncserver/internal/timex"
)

// FileConfig is the on-disk form of Config. Absent keys leave the current
// value alone.
type FileConfig struct {
	ServerEndpointAddr  *string         `json:"server_endpoint_addr" yaml:"server_endpoint_addr"`
	AccessToken         *string         `json:"access_token" yaml:"access_token"`
	DeviceID            *string         `json:"device_id" yaml:"device_id"`
	DatabasePath        *string         `json:"database_path" yaml:"database_path"`
	DownloadDir         *string         `json:"download_dir" yaml:"download_dir"`
	MaxAttempts         *int            `json:"max_attempts" yaml:"max_attempts"`
	RetryBaseDelay      *timex.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	StatusPollInterval  *timex.Duration `json:"status_poll_interval" yaml:"status_poll_interval"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	ConflictPolicy      *string         `json:"conflict_policy" yaml:"conflict_policy"`
	LogLevel            *string         `json:"log_level" yaml:"log_level"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}

// parseFile overlays cfg with the file given by -c or -config (JSON, or
// YAML for .yaml/.yml). Read or decode errors panic.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	var c FileConfig
	if err := flagx.DecodeConfigFile(path, &c); err != nil {
		panic(err)
	}

	set(&cfg.ServerEndpointAddr, c.ServerEndpointAddr)
	set(&cfg.AccessToken, c.AccessToken)
	set(&cfg.DeviceID, c.DeviceID)
	set(&cfg.DatabasePath, c.DatabasePath)
	set(&cfg.DownloadDir, c.DownloadDir)
	set(&cfg.MaxAttempts, c.MaxAttempts)
	setDuration(&cfg.RetryBaseDelay, c.RetryBaseDelay)
	setDuration(&cfg.StatusPollInterval, c.StatusPollInterval)
	setDuration(&cfg.OnlineCheckInterval, c.OnlineCheckInterval)
	set(&cfg.ConflictPolicy, c.ConflictPolicy)
	set(&cfg.LogLevel, c.LogLevel)
}
