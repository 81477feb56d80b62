package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
)

// Config is the CLI configuration, persisted at ~/.soapai/config.json.
type Config struct {
	BaseURL   string `json:"base_url"`
	Token     string `json:"token"`
	DataDir   string `json:"data_dir"`
	OutputDir string `json:"output_dir"`
	LogLevel  string `json:"log_level"`
	Capture   struct {
		Format     string `json:"format"`
		Camera     string `json:"camera"`
		Microphone string `json:"microphone"`
	} `json:"capture"`
	SessionType string `json:"session_type"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".soapai", "config.json")
}

func defaultCaptureFormat() string {
	if runtime.GOOS == "darwin" {
		return "avfoundation"
	}
	return "v4l2"
}

// Load reads the config file, writing defaults on first run. A .env file
// in the working directory is honored, and environment variables take
// highest precedence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	home := os.Getenv("HOME")
	cfg := &Config{
		BaseURL:     "http://localhost:4000/api",
		DataDir:     filepath.Join(home, ".soapai"),
		OutputDir:   filepath.Join(home, ".soapai", "materials"),
		LogLevel:    "info",
		SessionType: "Group Session",
	}
	cfg.Capture.Format = defaultCaptureFormat()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	if baseURL := os.Getenv("SOAPAI_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if token := os.Getenv("SOAPAI_TOKEN"); token != "" {
		cfg.Token = token
	}
	if level := os.Getenv("SOAPAI_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return cfg, nil
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}
