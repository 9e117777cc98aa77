package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-d", "db", "-s", "secret",
			"-m", "1024", "-q", "4096", "-t", "image/*",
			"-x", "30", "-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint",
			"-r", "5", "-l", "90",
		}, expectPanic: false,
			expected: &Config{
				EndpointAddrHTTP:    "127.0.0.1:9090",
				DatabaseDSN:         "db",
				SecretKey:           "secret",
				MaxFileSizeBytes:    1024,
				MaxTotalSizeBytes:   4096,
				AllowedContentTypes: "image/*",
				PresignExpiry:       30 * time.Minute,
				S3AccessKey:         "user",
				S3SecretKey:         "password",
				S3Bucket:            "bucket",
				S3Region:            "us-west-1",
				S3BaseEndpoint:      "http://endpoint",
				S3MaxAttempts:       5,
				CacheTTL:            90 * time.Second,
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {

				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
