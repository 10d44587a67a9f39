package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr  = ":8080"
	defaultDBPath      = "courier.db"
	defaultCallTimeout = 30 * time.Second

	envConfigFile  = "COURIER_CONFIG"
	envListenAddr  = "COURIER_LISTEN_ADDR"
	envDBPath      = "COURIER_DB_PATH"
	envLogLevel    = "COURIER_LOG_LEVEL"
	envMaxWorkers  = "COURIER_MAX_WORKERS"
	envCallTimeout = "COURIER_CALL_TIMEOUT"
)

// Config holds application configuration.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	// MaxWorkers bounds concurrent invocations; 0 means unbounded.
	MaxWorkers int
	// CallTimeout is the HTTP client timeout of outgoing calls.
	CallTimeout time.Duration
}

// fileConfig is the YAML file named by COURIER_CONFIG.
type fileConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	DBPath      string `yaml:"db_path"`
	LogLevel    string `yaml:"log_level"`
	MaxWorkers  *int   `yaml:"max_workers"`
	CallTimeout string `yaml:"call_timeout"`
}

// Load builds the configuration from defaults, then an optional .env file in
// the working directory, then the optional YAML file named by COURIER_CONFIG,
// then environment variables. Values from .env never override variables that
// are already set.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:  defaultListenAddr,
		DBPath:      defaultDBPath,
		LogLevel:    slog.LevelInfo,
		CallTimeout: defaultCallTimeout,
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (cfg *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if fc.MaxWorkers != nil {
		if *fc.MaxWorkers < 0 {
			return fmt.Errorf("config file %s: max_workers must not be negative", path)
		}
		cfg.MaxWorkers = *fc.MaxWorkers
	}
	if fc.CallTimeout != "" {
		d, err := time.ParseDuration(fc.CallTimeout)
		if err != nil {
			return fmt.Errorf("config file %s: call_timeout: %w", path, err)
		}
		cfg.CallTimeout = d
	}
	return nil
}

func (cfg *Config) applyEnv() error {
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envMaxWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%s: want a non-negative integer, got %q", envMaxWorkers, v)
		}
		cfg.MaxWorkers = n
	}
	if v := os.Getenv(envCallTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envCallTimeout, err)
		}
		cfg.CallTimeout = d
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
