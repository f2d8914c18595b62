package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/flagx"
	"github.com/dmitrijs2005/clipsync/internal/timex"
)

// JsonConfig is the intermediate DTO used only for reading JSON
// configuration files. Interval fields use timex.Duration so both string
// values such as "1h" and integer nanoseconds parse. After unmarshalling,
// the values are copied into the runtime Config.
type JsonConfig struct {
	ListenAddr                  string         `json:"listen_addr"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	ResumeTokenValidityDuration timex.Duration `json:"resume_token_validity_duration"`
	RetentionDays               int            `json:"retention_days"`
	CleanupInterval             timex.Duration `json:"cleanup_interval"`
	MaxContentBytes             int            `json:"max_content_bytes"`
	InlineContentLimit          int            `json:"inline_content_limit"`
	S3AccessKey                 string         `json:"s3_access_key"`
	S3SecretKey                 string         `json:"s3_secret_key"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the JSON file named by the -c
// or -config flags. If no file is named, nothing is loaded. An unreadable
// or invalid file panics: a half-applied config is worse than no start.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.ListenAddr = c.ListenAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.ResumeTokenValidityDuration = time.Duration(c.ResumeTokenValidityDuration.Std())
	config.RetentionDays = c.RetentionDays
	config.CleanupInterval = time.Duration(c.CleanupInterval.Std())
	config.MaxContentBytes = c.MaxContentBytes
	config.InlineContentLimit = c.InlineContentLimit
	config.S3AccessKey = c.S3AccessKey
	config.S3SecretKey = c.S3SecretKey
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
