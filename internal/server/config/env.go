package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays settings from the environment. A .env file in the
// working directory is loaded first if present; real environment variables
// win over it.
//
// Recognized variables:
//
//	CLIPSYNC_LISTEN_ADDR
//	CLIPSYNC_DATABASE_DSN
//	CLIPSYNC_SECRET_KEY
//	CLIPSYNC_RESUME_TOKEN_TTL      (Go duration, e.g. "24h")
//	CLIPSYNC_RETENTION_DAYS
//	CLIPSYNC_CLEANUP_INTERVAL      (Go duration)
//	CLIPSYNC_MAX_CONTENT_BYTES
//	CLIPSYNC_INLINE_CONTENT_LIMIT
//	CLIPSYNC_S3_ACCESS_KEY
//	CLIPSYNC_S3_SECRET_KEY
//	CLIPSYNC_S3_BUCKET
//	CLIPSYNC_S3_REGION
//	CLIPSYNC_S3_BASE_ENDPOINT
func parseEnv(config *Config) {
	_ = godotenv.Load()

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString("CLIPSYNC_LISTEN_ADDR", &config.ListenAddr)
	setString("CLIPSYNC_DATABASE_DSN", &config.DatabaseDSN)
	setString("CLIPSYNC_SECRET_KEY", &config.SecretKey)
	setDuration("CLIPSYNC_RESUME_TOKEN_TTL", &config.ResumeTokenValidityDuration)
	setInt("CLIPSYNC_RETENTION_DAYS", &config.RetentionDays)
	setDuration("CLIPSYNC_CLEANUP_INTERVAL", &config.CleanupInterval)
	setInt("CLIPSYNC_MAX_CONTENT_BYTES", &config.MaxContentBytes)
	setInt("CLIPSYNC_INLINE_CONTENT_LIMIT", &config.InlineContentLimit)
	setString("CLIPSYNC_S3_ACCESS_KEY", &config.S3AccessKey)
	setString("CLIPSYNC_S3_SECRET_KEY", &config.S3SecretKey)
	setString("CLIPSYNC_S3_BUCKET", &config.S3Bucket)
	setString("CLIPSYNC_S3_REGION", &config.S3Region)
	setString("CLIPSYNC_S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
}
