package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.API.Port != 8000 {
		t.Errorf("unexpected api port %d", cfg.API.Port)
	}
	if cfg.Coordination.HeartbeatRate != 5*time.Second {
		t.Errorf("unexpected heartbeat rate %v", cfg.Coordination.HeartbeatRate)
	}
	if cfg.Coordination.TelemetryTimeout != 15*time.Second {
		t.Errorf("unexpected telemetry timeout %v", cfg.Coordination.TelemetryTimeout)
	}
	if cfg.Coordination.MaxDeclarationWindow != 48*time.Hour {
		t.Errorf("unexpected declaration window %v", cfg.Coordination.MaxDeclarationWindow)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
logging:
  level: DEBUG
  format: json
api:
  port: 9000
coordination:
  self_base_url: https://uss.example.com
  heartbeat_rate: 10s
  ussp_network_enabled: true
dss:
  base_url: https://dss.example.com
`)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("unexpected port %d", cfg.API.Port)
	}
	if cfg.Coordination.SelfBaseURL != "https://uss.example.com" {
		t.Errorf("unexpected self base url %q", cfg.Coordination.SelfBaseURL)
	}
	if cfg.Coordination.HeartbeatRate != 10*time.Second {
		t.Errorf("unexpected heartbeat rate %v", cfg.Coordination.HeartbeatRate)
	}
	if !cfg.Coordination.USSPNetworkEnabled {
		t.Error("expected ussp network enabled")
	}
	if cfg.DSS.BaseURL != "https://dss.example.com" {
		t.Errorf("unexpected dss base url %q", cfg.DSS.BaseURL)
	}
	// Unset values fall back to defaults.
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("unexpected shutdown timeout %v", cfg.ShutdownTimeout)
	}
	if cfg.Coordination.Workers != 4 {
		t.Errorf("unexpected worker count %d", cfg.Coordination.Workers)
	}
}

func TestLegacyEnvOverrides(t *testing.T) {
	t.Setenv("DSS_BASE_URL", "https://legacy-dss.example.com")
	t.Setenv("HEARTBEAT_RATE_SECS", "7")
	t.Setenv("ENABLE_CONFORMANCE_MONITORING", "1")
	t.Setenv("BLENDER_FQDN", "https://legacy-uss.example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if cfg.DSS.BaseURL != "https://legacy-dss.example.com" {
		t.Errorf("unexpected dss base url %q", cfg.DSS.BaseURL)
	}
	if cfg.Coordination.HeartbeatRate != 7*time.Second {
		t.Errorf("unexpected heartbeat rate %v", cfg.Coordination.HeartbeatRate)
	}
	if !cfg.Coordination.EnableConformanceMonitoring {
		t.Error("expected conformance monitoring enabled")
	}
	if cfg.Coordination.SelfBaseURL != "https://legacy-uss.example.com" {
		t.Errorf("unexpected self base url %q", cfg.Coordination.SelfBaseURL)
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := GetDefaultConfig()
	cfg.API.Port = 8443
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("unexpected file mode %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if loaded.API.Port != 8443 {
		t.Errorf("unexpected port after reload %d", loaded.API.Port)
	}
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "LOUD"
	if err := Validate(cfg); err == nil {
		t.Error("expected validation error for bad level")
	}
}
