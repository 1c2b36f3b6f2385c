package api

import "time"

// Config holds the HTTP server settings.
type Config struct {
	// Host is the listen address. Empty binds all interfaces.
	Host string

	// Port is the listen port.
	Port int

	// RequestTimeout bounds a single request.
	RequestTimeout time.Duration

	// JWTSecret verifies inbound bearer tokens. Empty disables verification
	// (development only).
	JWTSecret string
}

// applyDefaults fills missing values with defaults.
//
// Defaults are applied here to ensure the server works correctly even when
// created directly (e.g., in tests). This is idempotent with the defaults
// applied during config loading.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 60 * time.Second
	}
}
