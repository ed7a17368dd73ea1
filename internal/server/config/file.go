package config

import (
	"time"

	"github.com/dmitrijs2005/syncserver/internal/flagx"
	"github.com/dmitrijs2005/syncserver/internal/timex"
)

// FileConfig is the on-disk form of Config. Pointer fields distinguish
// "absent" from a zero value, so a file only overrides what it names.
// Durations use timex.Duration: "1m" or integer nanoseconds.
type FileConfig struct {
	EndpointAddrGRPC            *string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN                 *string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                   *string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	LockTimeout                 *timex.Duration `json:"lock_timeout" yaml:"lock_timeout"`
	LockReapInterval            *timex.Duration `json:"lock_reap_interval" yaml:"lock_reap_interval"`
	S3RootUser                  *string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword              *string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                    *string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                    *string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint              *string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	CompressBlobs               *bool           `json:"compress_blobs" yaml:"compress_blobs"`
	BlobPassphrase              *string         `json:"blob_passphrase" yaml:"blob_passphrase"`
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

// parseFile overlays config with the file given by -c or -config. Files
// ending in .yaml or .yml are YAML, anything else JSON. A file that cannot
// be read or parsed panics, like a bad flag.
func parseFile(config *Config) {

	// try flags
	path := flagx.ConfigFileFlag()

	// nothing to load
	if path == "" {
		return
	}

	var c FileConfig
	if err := flagx.DecodeConfigFile(path, &c); err != nil {
		panic(err)
	}

	set(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.LockTimeout, c.LockTimeout)
	setDuration(&config.LockReapInterval, c.LockReapInterval)
	set(&config.S3RootUser, c.S3RootUser)
	set(&config.S3RootPassword, c.S3RootPassword)
	set(&config.S3Bucket, c.S3Bucket)
	set(&config.S3Region, c.S3Region)
	set(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	set(&config.CompressBlobs, c.CompressBlobs)
	set(&config.BlobPassphrase, c.BlobPassphrase)
}
