package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL == "" || cfg.LogLevel != "info" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Capture.Format == "" {
		t.Error("capture format default missing")
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"base_url": "https://practice.example/api", "token": "tok", "session_type": "Individual Session"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "https://practice.example/api" || cfg.Token != "tok" {
		t.Errorf("file values not loaded: %+v", cfg)
	}
	if cfg.SessionType != "Individual Session" {
		t.Errorf("session type not loaded: %+v", cfg)
	}
	// Unset fields keep defaults.
	if cfg.LogLevel != "info" {
		t.Errorf("default log level lost: %q", cfg.LogLevel)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("SOAPAI_BASE_URL", "https://env.example/api")
	t.Setenv("SOAPAI_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "https://env.example/api" {
		t.Errorf("base url env override ignored: %q", cfg.BaseURL)
	}
	if cfg.Token != "env-token" {
		t.Errorf("token env override ignored: %q", cfg.Token)
	}
}
