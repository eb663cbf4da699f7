package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestDefaults(t *testing.T) {
	cfg, err := loadFrom(filepath.Join(t.TempDir(), "missing.json"), noEnv)
	if err != nil {
		t.Fatalf("loadFrom: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Escalation.RequestTimeout != 10*time.Minute {
		t.Errorf("request timeout = %s, want 10m", cfg.Escalation.RequestTimeout)
	}
	if cfg.Escalation.SweepInterval != 30*time.Second {
		t.Errorf("sweep interval = %s, want 30s", cfg.Escalation.SweepInterval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"port": 8080,
		"request_timeout": "2m",
		"sweep_interval": "5s",
		"livekit_api_key": "key",
		"livekit_api_secret": "secret",
		"api_token": "tok"
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := loadFrom(path, noEnv)
	if err != nil {
		t.Fatalf("loadFrom: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Escalation.RequestTimeout != 2*time.Minute {
		t.Errorf("request timeout = %s, want 2m", cfg.Escalation.RequestTimeout)
	}
	if cfg.Escalation.SweepInterval != 5*time.Second {
		t.Errorf("sweep interval = %s, want 5s", cfg.Escalation.SweepInterval)
	}
	if cfg.Voice.APIKey != "key" || cfg.API.Token != "tok" {
		t.Errorf("credentials not applied: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"port": 8080, "request_timeout": "2m"}`), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := loadFrom(path, envMap(map[string]string{
		"SWITCHBOARD_PORT":            "9090",
		"SWITCHBOARD_REQUEST_TIMEOUT": "30m",
		"SWITCHBOARD_SWEEP_INTERVAL":  "10s",
		"SWITCHBOARD_DATA_DIR":        "/var/lib/switchboard",
	}))
	if err != nil {
		t.Fatalf("loadFrom: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want env value 9090", cfg.Server.Port)
	}
	if cfg.Escalation.RequestTimeout != 30*time.Minute {
		t.Errorf("request timeout = %s, want env value 30m", cfg.Escalation.RequestTimeout)
	}
	if cfg.Escalation.SweepInterval != 10*time.Second {
		t.Errorf("sweep interval = %s, want env value 10s", cfg.Escalation.SweepInterval)
	}
	if cfg.Storage.DataDir != "/var/lib/switchboard" {
		t.Errorf("data dir = %q", cfg.Storage.DataDir)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := []map[string]string{
		{"SWITCHBOARD_PORT": "not-a-number"},
		{"SWITCHBOARD_PORT": "-1"},
		{"SWITCHBOARD_REQUEST_TIMEOUT": "banana"},
		{"SWITCHBOARD_REQUEST_TIMEOUT": "-5m"},
		{"SWITCHBOARD_SWEEP_INTERVAL": "0s"},
	}
	for _, env := range cases {
		if _, err := loadFrom(filepath.Join(t.TempDir(), "missing.json"), envMap(env)); err == nil {
			t.Errorf("expected error for %v", env)
		}
	}
}

func TestMalformedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := loadFrom(path, noEnv); err == nil {
		t.Error("expected error for malformed config file")
	}
}
