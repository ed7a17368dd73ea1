package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-l int      lock timeout, seconds
//	-i int      lock reaper interval, seconds
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-z bool     compress stored blobs
//	-k string   blob encryption passphrase
//
// Duration flags are accepted as integers and then converted to
// time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-l", "-i", "-u", "-p", "-b", "-g", "-e", "-z", "-k"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	lockTimeout := fs.Int("l", int(config.LockTimeout.Seconds()), "lock timeout (in seconds)")
	lockReapInterval := fs.Int("i", int(config.LockReapInterval.Seconds()), "expired lock reaper interval (in seconds)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.BoolVar(&config.CompressBlobs, "z", config.CompressBlobs, "compress stored blobs")
	fs.StringVar(&config.BlobPassphrase, "k", config.BlobPassphrase, "blob encryption passphrase")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.LockTimeout = time.Duration(*lockTimeout) * time.Second
	config.LockReapInterval = time.Duration(*lockReapInterval) * time.Second
}
