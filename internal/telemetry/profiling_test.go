package telemetry

import "testing"

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{Enabled: false}, "flightdeck", "dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected a shutdown function")
	}
	if err := shutdown(); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if IsProfilingEnabled() {
		t.Fatal("profiling should be disabled")
	}
}

func TestInitProfilingRejectsUnknownProfileType(t *testing.T) {
	cfg := ProfilingConfig{
		Enabled:      true,
		Endpoint:     "http://localhost:4040",
		ProfileTypes: []string{"cpu", "bogus"},
	}
	if _, err := InitProfiling(cfg, "flightdeck", "dev"); err == nil {
		t.Fatal("expected an error for an unknown profile type")
	}
}

func TestDefaultConfigProfiling(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Profiling.Enabled {
		t.Fatal("profiling must default to disabled")
	}
	if cfg.Profiling.Endpoint == "" || len(cfg.Profiling.ProfileTypes) == 0 {
		t.Fatal("expected profiling defaults to be populated")
	}
}
