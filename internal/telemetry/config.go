package telemetry

// Config holds OpenTelemetry configuration
type Config struct {
	// Enabled indicates whether tracing is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ServiceName is the name of the service reported to the trace backend
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	// ServiceVersion is the version of the service
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version"`

	// Endpoint is the OTLP endpoint (e.g., "localhost:4317")
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure indicates whether to use insecure connection (no TLS)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`

	// Profiling holds the Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling. When enabled,
// profiles are streamed to a Pyroscope server for flame graph analysis.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is active
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL (e.g. "http://localhost:4040")
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes selects the profiles to collect. Valid values: cpu,
	// alloc_objects, alloc_space, inuse_objects, inuse_space, goroutines,
	// mutex_count, mutex_duration, block_count, block_duration.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "flightdeck",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
		Profiling: ProfilingConfig{
			Enabled:      false,
			Endpoint:     "http://localhost:4040",
			ProfileTypes: []string{"cpu", "inuse_space", "goroutines"},
		},
	}
}

// Common attribute keys for flight coordination spans.
const (
	AttrFlightID   = "flight.declaration_id"
	AttrOpIntentID = "flight.opint_id"
	AttrAircraftID = "flight.aircraft_id"
	AttrState      = "flight.state"
	AttrEvent      = "flight.event"
	AttrCheck      = "conformance.check"
	AttrAudience   = "dss.audience"
	AttrStatusCode = "http.status_code"
)
