package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   address and port of the sync server
//	-t string   access token
//	-D string   device id
//	-d string   local SQLite database path
//	-o string   download directory
//	-m int      attempts per failing sync step
//	-r int      base retry delay (in milliseconds)
//	-i int      online check interval (in seconds)
//	-p string   conflict policy: keep, delete or ask
//	-l string   log level
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-t", "-D", "-d", "-o", "-m", "-r", "-i", "-p", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "access token")
	fs.StringVar(&cfg.DeviceID, "D", cfg.DeviceID, "device id")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.DownloadDir, "o", cfg.DownloadDir, "download directory")
	fs.IntVar(&cfg.MaxAttempts, "m", cfg.MaxAttempts, "attempts per failing sync step")
	retryDelay := fs.Int("r", int(cfg.RetryBaseDelay.Milliseconds()), "base retry delay (in milliseconds)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.ConflictPolicy, "p", cfg.ConflictPolicy, "conflict policy: keep, delete or ask")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RetryBaseDelay = time.Duration(*retryDelay) * time.Millisecond
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
