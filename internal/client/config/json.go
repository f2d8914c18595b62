package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/flagx"
	"github.com/dmitrijs2005/clipsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds.
type JsonConfig struct {
	ServerAddr        string         `json:"server_addr"`
	DeviceName        string         `json:"device_name"`
	DatabasePath      string         `json:"database_path"`
	MaxCacheItems     int            `json:"max_cache_items"`
	HeartbeatInterval timex.Duration `json:"heartbeat_interval"`
	RequestTimeout    timex.Duration `json:"request_timeout"`
}

// parseJson overlays cfg with values loaded from the JSON file named by the
// -c or -config flags. If no file is named, nothing is loaded. Panics on
// read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.ServerAddr = jc.ServerAddr
	cfg.DeviceName = jc.DeviceName
	cfg.DatabasePath = jc.DatabasePath
	cfg.MaxCacheItems = jc.MaxCacheItems
	cfg.HeartbeatInterval = time.Duration(jc.HeartbeatInterval.Std())
	cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Std())
}
