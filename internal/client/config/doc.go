// Package config loads runtime configuration for the sync client CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file (see parseFile) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the sync server
//	-t string   access token
//	-D string   device id
//	-d string   local SQLite database path
//	-o string   download directory
//	-m int      attempts per failing sync step
//	-r int      base retry delay (milliseconds)
//	-i int      online status check interval (seconds)
//	-p string   conflict policy: keep, delete or ask
//	-l string   log level
//
// # File schema
//
// Intervals use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "access_token": "eyJ...",
//	  "device_id": "laptop",
//	  "online_check_interval": "3s",
//	  "conflict_policy": "keep"
//	}
//
// Note: This package does not read environment variables directly; use the
// config file or flags to configure values.
package config
