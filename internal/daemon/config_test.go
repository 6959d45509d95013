package daemon

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every AYNI_* override for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AYNI_API_HOST", "AYNI_API_PORT", "AYNI_DB_DIR", "AYNI_SCORE_WINDOW_DAYS",
		"AYNI_REWARD_PER_POINT", "AYNI_METRICS_ENABLED", "AYNI_LOG_LEVEL", "AYNI_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8420 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8420)
	}
	if cfg.Economy.ScoreWindowDays != 365 {
		t.Errorf("Economy.ScoreWindowDays = %d, want 365", cfg.Economy.ScoreWindowDays)
	}
	if cfg.Economy.RewardPerPoint != 10 {
		t.Errorf("Economy.RewardPerPoint = %d, want 10", cfg.Economy.RewardPerPoint)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be true by default")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()

	cfg, err := LoadConfig("", home)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Database.Dir != filepath.Join(home, "data") {
		t.Errorf("Database.Dir = %q, want %q", cfg.Database.Dir, filepath.Join(home, "data"))
	}
	if cfg.Addr() != "127.0.0.1:8420" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestLoadConfig_File(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	writeFile(t, filepath.Join(home, ConfigFileName), `
[api]
host = "0.0.0.0"
port = 9000

[database]
dir = "/var/lib/ayni"

[economy]
score_window_days = 90
reward_per_point = 3

[metrics]
enabled = false

[log]
level = "debug"
format = "json"
`)

	cfg, err := LoadConfig("", home)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:9000" {
		t.Errorf("Addr() = %q, want 0.0.0.0:9000", cfg.Addr())
	}
	if cfg.Database.Dir != "/var/lib/ayni" {
		t.Errorf("Database.Dir = %q", cfg.Database.Dir)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
	ec := cfg.EconomyConfig()
	if ec.ScoreWindow != 90*24*time.Hour || ec.RewardPerPoint != 3 {
		t.Errorf("EconomyConfig() = %+v", ec)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	writeFile(t, filepath.Join(home, ConfigFileName), "[api]\nport = 9000\n")
	t.Setenv("AYNI_API_PORT", "9100")
	t.Setenv("AYNI_METRICS_ENABLED", "false")
	t.Setenv("AYNI_REWARD_PER_POINT", "25")

	cfg, err := LoadConfig("", home)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("API.Port = %d, want 9100 from env", cfg.API.Port)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false from env")
	}
	if cfg.Economy.RewardPerPoint != 25 {
		t.Errorf("RewardPerPoint = %d, want 25", cfg.Economy.RewardPerPoint)
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("AYNI_LOG_LEVEL")
	t.Cleanup(func() { os.Unsetenv("AYNI_LOG_LEVEL") })

	home := t.TempDir()
	writeFile(t, filepath.Join(home, ".env"), "AYNI_LOG_LEVEL=warn\n")

	cfg, err := LoadConfig("", home)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn from .env", cfg.Log.Level)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     [2]string
		wantErr string
	}{
		{"unknown key", "[api]\nhots = \"x\"\n", [2]string{}, "unknown keys"},
		{"bad toml", "[api\n", [2]string{}, "read config"},
		{"port range", "[api]\nport = 70000\n", [2]string{}, "api.port"},
		{"window", "[economy]\nscore_window_days = 0\n", [2]string{}, "score_window_days"},
		{"log format", "[log]\nformat = \"xml\"\n", [2]string{}, "log.format"},
		{"log level", "[log]\nlevel = \"loud\"\n", [2]string{}, "log.level"},
		{"env port", "", [2]string{"AYNI_API_PORT", "eighty"}, "AYNI_API_PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.env[0] != "" {
				t.Setenv(tt.env[0], tt.env[1])
			}
			home := t.TempDir()
			if tt.file != "" {
				writeFile(t, filepath.Join(home, ConfigFileName), tt.file)
			}
			_, err := LoadConfig("", home)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigEncodeRoundTrip(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	want := DefaultConfig()
	want.API.Port = 9999
	want.Database.Dir = filepath.Join(home, "db")

	var buf bytes.Buffer
	if err := want.Encode(&buf); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	path := filepath.Join(home, "custom.toml")
	writeFile(t, path, buf.String())

	got, err := LoadConfig(path, home)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got != want {
		t.Errorf("LoadConfig() = %+v, want %+v", got, want)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Log.Format = "json"

	cfg.NewLogger(&buf, false).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line written at info level: %q", buf.String())
	}
	cfg.NewLogger(&buf, true).Debug("shown", "k", 1)
	if !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Errorf("verbose logger output = %q, want JSON debug line", buf.String())
	}
}
