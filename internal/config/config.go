// Package config holds runtime settings for the fieldsync engine and the
// platform presets that replace the old per-platform code paths.
package config

import "time"

// Config holds the engine's tuning knobs.
//
// Units: all intervals are time.Duration; AttachmentSizeWarning is bytes.
type Config struct {
	// Endpoint is the base URL of the remote service, e.g. "https://portal.example.org".
	Endpoint string
	// DBPath is the SQLite database file path.
	DBPath string

	// OpenTimeout bounds store opening, including schema migrations that
	// may block behind another process holding the database.
	OpenTimeout time.Duration
	// PushTimeout bounds one record push (session plus its photo batch).
	PushTimeout time.Duration
	// InterPushDelay paces successive pushes within one sync pass.
	InterPushDelay time.Duration
	// SyncInterval is the periodic sync trigger cadence.
	SyncInterval time.Duration
	// ProbeInterval is how often connectivity is re-checked.
	ProbeInterval time.Duration
	// AttachmentSizeWarning logs a warning for attachments above this size.
	AttachmentSizeWarning int64
	// Retention is how long synced records are kept before the sweep
	// removes them.
	Retention time.Duration
}

// LoadDefaults populates c with the desktop preset.
func (c *Config) LoadDefaults() {
	*c = DesktopPreset()
	c.Endpoint = "http://127.0.0.1:10000"
	c.DBPath = "fieldsync.db"
}

// DesktopPreset tunes the engine for a stable connection and fast storage.
func DesktopPreset() Config {
	return Config{
		OpenTimeout:           5 * time.Second,
		PushTimeout:           15 * time.Second,
		InterPushDelay:        0,
		SyncInterval:          30 * time.Second,
		ProbeInterval:         3 * time.Second,
		AttachmentSizeWarning: 2 * 1024 * 1024,
		Retention:             7 * 24 * time.Hour,
	}
}

// MobilePreset tunes the engine for constrained networks and slower
// storage: longer timeouts, gentler pacing, less frequent probing.
func MobilePreset() Config {
	return Config{
		OpenTimeout:           15 * time.Second,
		PushTimeout:           45 * time.Second,
		InterPushDelay:        500 * time.Millisecond,
		SyncInterval:          2 * time.Minute,
		ProbeInterval:         10 * time.Second,
		AttachmentSizeWarning: 1024 * 1024,
		Retention:             7 * 24 * time.Hour,
	}
}

// Preset returns the named preset, defaulting to desktop for unknown names.
// Platform detection is the caller's concern; this is a pure lookup.
func Preset(name string) Config {
	if name == "mobile" {
		return MobilePreset()
	}
	return DesktopPreset()
}

// Load constructs a Config: defaults, then the named preset, then values
// from an optional JSON file. Later sources take precedence.
func Load(preset, jsonPath string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if preset != "" {
		p := Preset(preset)
		p.Endpoint = cfg.Endpoint
		p.DBPath = cfg.DBPath
		*cfg = p
	}
	if err := parseJSON(cfg, jsonPath); err != nil {
		return nil, err
	}
	return cfg, nil
}
