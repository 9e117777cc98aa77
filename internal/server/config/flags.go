package config

import (
	"flag"
	"os"
	"time"

	"github.com/dkarpov/filevault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-m int      max single file size, bytes
//	-q int      max total size per owner, bytes
//	-t string   allowed content types, comma-separated
//	-x int      presigned link expiry, minutes
//	-u string   S3 access key
//	-p string   S3 secret key
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-r int      S3 retry attempts per call
//	-l int      display cache TTL, seconds
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in coarse units and converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-s", "-m", "-q", "-t", "-x", "-u", "-p", "-b", "-g", "-e", "-r", "-l",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	fs.Int64Var(&config.MaxFileSizeBytes, "m", config.MaxFileSizeBytes, "max file size (bytes)")
	fs.Int64Var(&config.MaxTotalSizeBytes, "q", config.MaxTotalSizeBytes, "max total size per owner (bytes)")
	fs.StringVar(&config.AllowedContentTypes, "t", config.AllowedContentTypes, "allowed content types (comma-separated)")

	presignExpiryMinutes := fs.Int("x", int(config.PresignExpiry.Minutes()), "presigned link expiry (in minutes)")

	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.IntVar(&config.S3MaxAttempts, "r", config.S3MaxAttempts, "S3 retry attempts")

	cacheTTLSeconds := fs.Int("l", int(config.CacheTTL.Seconds()), "display cache TTL (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.PresignExpiry = time.Duration(*presignExpiryMinutes) * time.Minute
	config.CacheTTL = time.Duration(*cacheTTLSeconds) * time.Second
}
