package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dkarpov/filevault/internal/flagx"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. Duration-like values are plain integers in coarse units
// (minutes, seconds, milliseconds) so config files stay readable.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its set fields are copied into
// the runtime Config; omitted fields keep their defaults.
type JsonConfig struct {
	EndpointAddrHTTP     string `json:"endpoint_addr_http"`
	DatabaseDSN          string `json:"database_dsn"`
	SecretKey            string `json:"secret_key"`
	MaxFileSizeBytes     int64  `json:"max_file_size_bytes"`
	MaxTotalSizeBytes    int64  `json:"max_total_size_bytes"`
	AllowedContentTypes  string `json:"allowed_content_types"`
	PresignExpiryMinutes int    `json:"presign_expiry_minutes"`
	S3AccessKey          string `json:"s3_access_key"`
	S3SecretKey          string `json:"s3_secret_key"`
	S3Bucket             string `json:"s3_bucket"`
	S3Region             string `json:"s3_region"`
	S3BaseEndpoint       string `json:"s3_base_endpoint"`
	S3CallTimeoutSeconds int    `json:"s3_call_timeout_seconds"`
	S3MaxAttempts        int    `json:"s3_max_attempts"`
	S3RetryBaseDelayMs   int    `json:"s3_retry_base_delay_ms"`
	CacheTTLSeconds      int    `json:"cache_ttl_seconds"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. A file that cannot be read or
// parsed is a fatal startup error, so the function panics.
//
// Only fields present in the file (non-zero after unmarshalling) overwrite
// the target Config; defaults survive omissions.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setInt64(&config.MaxFileSizeBytes, c.MaxFileSizeBytes)
	setInt64(&config.MaxTotalSizeBytes, c.MaxTotalSizeBytes)
	setString(&config.AllowedContentTypes, c.AllowedContentTypes)
	setDuration(&config.PresignExpiry, c.PresignExpiryMinutes, time.Minute)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.S3CallTimeout, c.S3CallTimeoutSeconds, time.Second)
	if c.S3MaxAttempts != 0 {
		config.S3MaxAttempts = c.S3MaxAttempts
	}
	setDuration(&config.S3RetryBaseDelay, c.S3RetryBaseDelayMs, time.Millisecond)
	setDuration(&config.CacheTTL, c.CacheTTLSeconds, time.Second)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, v int64) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v int, unit time.Duration) {
	if v != 0 {
		*dst = time.Duration(v) * unit
	}
}
