package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate runs the test in an empty directory with every variable unset.
// t.Setenv restores the previous values, including those set from .env.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, k := range []string{envConfigFile, envListenAddr, envDBPath, envLogLevel, envMaxWorkers, envCallTimeout} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.MaxWorkers != 0 {
		t.Errorf("MaxWorkers = %d, want 0", cfg.MaxWorkers)
	}
	if cfg.CallTimeout != defaultCallTimeout {
		t.Errorf("CallTimeout = %v, want %v", cfg.CallTimeout, defaultCallTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envDBPath, "/tmp/test.db")
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envMaxWorkers, "8")
	t.Setenv(envCallTimeout, "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.MaxWorkers != 8 {
		t.Errorf("MaxWorkers = %d, want 8", cfg.MaxWorkers)
	}
	if cfg.CallTimeout != 2*time.Second {
		t.Errorf("CallTimeout = %v, want 2s", cfg.CallTimeout)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "courier.yaml")
	writeFile(t, path, `
listen_addr: ":7070"
db_path: /var/lib/courier.db
log_level: warn
max_workers: 4
call_timeout: 5s
`)
	t.Setenv(envConfigFile, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7070" || cfg.DBPath != "/var/lib/courier.db" {
		t.Errorf("ListenAddr/DBPath = %q/%q", cfg.ListenAddr, cfg.DBPath)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelWarn)
	}
	if cfg.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want 4", cfg.MaxWorkers)
	}
	if cfg.CallTimeout != 5*time.Second {
		t.Errorf("CallTimeout = %v, want 5s", cfg.CallTimeout)
	}
}

func TestEnvOverridesYAMLFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "courier.yaml")
	writeFile(t, path, "listen_addr: \":7070\"\nmax_workers: 4\n")
	t.Setenv(envConfigFile, path)
	t.Setenv(envListenAddr, ":6060")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":6060" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":6060")
	}
	if cfg.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want 4", cfg.MaxWorkers)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".env"), "COURIER_DB_PATH=from-dotenv.db\nCOURIER_LISTEN_ADDR=:5050\n")
	t.Setenv(envListenAddr, ":4040")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "from-dotenv.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "from-dotenv.db")
	}
	// Real environment variables win over .env.
	if cfg.ListenAddr != ":4040" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":4040")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{"bad max workers", func(t *testing.T, _ string) { t.Setenv(envMaxWorkers, "many") }},
		{"negative max workers", func(t *testing.T, _ string) { t.Setenv(envMaxWorkers, "-1") }},
		{"bad call timeout", func(t *testing.T, _ string) { t.Setenv(envCallTimeout, "soon") }},
		{"missing config file", func(t *testing.T, dir string) {
			t.Setenv(envConfigFile, filepath.Join(dir, "absent.yaml"))
		}},
		{"malformed config file", func(t *testing.T, dir string) {
			path := filepath.Join(dir, "bad.yaml")
			writeFile(t, path, "listen_addr: [unclosed\n")
			t.Setenv(envConfigFile, path)
		}},
		{"bad file call timeout", func(t *testing.T, dir string) {
			path := filepath.Join(dir, "bad.yaml")
			writeFile(t, path, "call_timeout: later\n")
			t.Setenv(envConfigFile, path)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			tt.setup(t, dir)
			if _, err := Load(); err == nil {
				t.Error("Load succeeded, want an error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
}
