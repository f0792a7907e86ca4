package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
	if cfg.CommandTimeout() != 4000*time.Millisecond {
		t.Errorf("CommandTimeout() = %v, want 4s", cfg.CommandTimeout())
	}
	if cfg.StreamingInactivity() != 4000*time.Millisecond {
		t.Errorf("StreamingInactivity() = %v, want 4s", cfg.StreamingInactivity())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
command_timeout_ms: 1500
log_level: debug
profiles:
  - name: mystery-clone
    service: ABC0
    write: ABC1
    notify: ABC2
    write_with_response: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.CommandTimeoutMs != 1500 {
		t.Errorf("CommandTimeoutMs = %d, want 1500", cfg.CommandTimeoutMs)
	}
	// Unset fields keep their defaults.
	if cfg.StreamingInactivityMs != 4000 {
		t.Errorf("StreamingInactivityMs = %d, want default 4000", cfg.StreamingInactivityMs)
	}
	if len(cfg.Profiles) != 1 || cfg.Profiles[0].Name != "mystery-clone" {
		t.Errorf("Profiles = %+v", cfg.Profiles)
	}
	if !cfg.Profiles[0].WriteWithResponse {
		t.Error("WriteWithResponse not parsed")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() on missing file should error")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero command timeout", func(c *Config) { c.CommandTimeoutMs = 0 }},
		{"negative inactivity", func(c *Config) { c.StreamingInactivityMs = -1 }},
		{"zero scan timeout", func(c *Config) { c.ScanTimeoutMs = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }},
		{"profile missing notify", func(c *Config) {
			c.Profiles = []ProfileConfig{{Service: "ABC0", Write: "ABC1"}}
		}},
		{"profile name with spaces", func(c *Config) {
			c.Profiles = []ProfileConfig{{Name: "my clone", Service: "ABC0", Write: "ABC1", Notify: "ABC2"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
