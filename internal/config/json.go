package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/fieldsync/internal/timex"
)

// jsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so intervals can be written either as strings like "3s" or
// as integer nanoseconds. After parsing, set values are copied into the
// runtime Config.
type jsonConfig struct {
	Endpoint              *string         `json:"endpoint"`
	DBPath                *string         `json:"db_path"`
	OpenTimeout           *timex.Duration `json:"open_timeout"`
	PushTimeout           *timex.Duration `json:"push_timeout"`
	InterPushDelay        *timex.Duration `json:"inter_push_delay"`
	SyncInterval          *timex.Duration `json:"sync_interval"`
	ProbeInterval         *timex.Duration `json:"probe_interval"`
	AttachmentSizeWarning *int64          `json:"attachment_size_warning"`
	Retention             *timex.Duration `json:"retention"`
}

// parseJSON overlays cfg with values from the JSON file at path. An empty
// path is a no-op. Only fields present in the file are overridden.
func parseJSON(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if jc.Endpoint != nil {
		cfg.Endpoint = *jc.Endpoint
	}
	if jc.DBPath != nil {
		cfg.DBPath = *jc.DBPath
	}
	if jc.OpenTimeout != nil {
		cfg.OpenTimeout = jc.OpenTimeout.Duration
	}
	if jc.PushTimeout != nil {
		cfg.PushTimeout = jc.PushTimeout.Duration
	}
	if jc.InterPushDelay != nil {
		cfg.InterPushDelay = jc.InterPushDelay.Duration
	}
	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.ProbeInterval != nil {
		cfg.ProbeInterval = jc.ProbeInterval.Duration
	}
	if jc.AttachmentSizeWarning != nil {
		cfg.AttachmentSizeWarning = *jc.AttachmentSizeWarning
	}
	if jc.Retention != nil {
		cfg.Retention = jc.Retention.Duration
	}
	return nil
}
