package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Escalation EscalationConfig
	Voice      VoiceConfig
	API        APIConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type EscalationConfig struct {
	// RequestTimeout is how long a help request may stay PENDING.
	RequestTimeout time.Duration
	// SweepInterval is how often the timeout sweeper polls.
	SweepInterval time.Duration
}

type VoiceConfig struct {
	LiveKitURL string
	APIKey     string
	APISecret  string
}

type APIConfig struct {
	// Token guards the management endpoints with bearer auth. Empty
	// disables auth (local development).
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Escalation: EscalationConfig{
			RequestTimeout: 10 * time.Minute,
			SweepInterval:  30 * time.Second,
		},
		Voice: VoiceConfig{
			LiveKitURL: "wss://localhost:7880",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "switchboard")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "switchboard")
}

// DefaultConfigPath is where Load looks for the optional JSON config file.
func DefaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "switchboard", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".config", "switchboard", "config.json")
}

// Load reads configuration from defaults, the optional JSON config file, and
// SWITCHBOARD_* environment variables, in increasing precedence.
func Load() (Config, error) {
	return loadFrom(DefaultConfigPath(), os.Getenv)
}

// fileConfig is the on-disk shape; durations are parsed strings ("10m", "30s").
type fileConfig struct {
	Port             int    `json:"port"`
	DataDir          string `json:"data_dir"`
	RequestTimeout   string `json:"request_timeout"`
	SweepInterval    string `json:"sweep_interval"`
	LiveKitURL       string `json:"livekit_url"`
	LiveKitAPIKey    string `json:"livekit_api_key"`
	LiveKitAPISecret string `json:"livekit_api_secret"`
	APIToken         string `json:"api_token"`
	LogLevel         string `json:"log_level"`
}

func loadFrom(path string, getenv func(string) string) (Config, error) {
	cfg := defaults()

	if err := applyFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Server.Port)
	}
	if cfg.Escalation.RequestTimeout <= 0 {
		return Config{}, fmt.Errorf("request timeout must be positive, got %s", cfg.Escalation.RequestTimeout)
	}
	if cfg.Escalation.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("sweep interval must be positive, got %s", cfg.Escalation.SweepInterval)
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil // Config file is optional.
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		cfg.Server.Port = fc.Port
	}
	if fc.DataDir != "" {
		cfg.Storage.DataDir = fc.DataDir
	}
	if fc.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("parsing request_timeout: %w", err)
		}
		cfg.Escalation.RequestTimeout = d
	}
	if fc.SweepInterval != "" {
		d, err := time.ParseDuration(fc.SweepInterval)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval: %w", err)
		}
		cfg.Escalation.SweepInterval = d
	}
	if fc.LiveKitURL != "" {
		cfg.Voice.LiveKitURL = fc.LiveKitURL
	}
	if fc.LiveKitAPIKey != "" {
		cfg.Voice.APIKey = fc.LiveKitAPIKey
	}
	if fc.LiveKitAPISecret != "" {
		cfg.Voice.APISecret = fc.LiveKitAPISecret
	}
	if fc.APIToken != "" {
		cfg.API.Token = fc.APIToken
	}
	if fc.LogLevel != "" {
		cfg.Log.Level = fc.LogLevel
	}

	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("SWITCHBOARD_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing SWITCHBOARD_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := getenv("SWITCHBOARD_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := getenv("SWITCHBOARD_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing SWITCHBOARD_REQUEST_TIMEOUT: %w", err)
		}
		cfg.Escalation.RequestTimeout = d
	}
	if v := getenv("SWITCHBOARD_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing SWITCHBOARD_SWEEP_INTERVAL: %w", err)
		}
		cfg.Escalation.SweepInterval = d
	}
	if v := getenv("SWITCHBOARD_LIVEKIT_URL"); v != "" {
		cfg.Voice.LiveKitURL = v
	}
	if v := getenv("SWITCHBOARD_LIVEKIT_API_KEY"); v != "" {
		cfg.Voice.APIKey = v
	}
	if v := getenv("SWITCHBOARD_LIVEKIT_API_SECRET"); v != "" {
		cfg.Voice.APISecret = v
	}
	if v := getenv("SWITCHBOARD_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := getenv("SWITCHBOARD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}
