// Package daemon wires configuration, storage, the economy service and the
// HTTP server into one long-running process.
package daemon

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/coomunity/ayni/internal/app/economy"
)

// ConfigFileName is the config file looked up inside the home directory.
const ConfigFileName = "config.toml"

// Config is the full daemon configuration, loaded from
// <home>/config.toml and overridden by AYNI_* environment variables.
type Config struct {
	API      APIConfig      `toml:"api"`
	Database DatabaseConfig `toml:"database"`
	Economy  EconomyConfig  `toml:"economy"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Log      LogConfig      `toml:"log"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DatabaseConfig locates the SQLite store. Empty Dir means <home>/data.
type DatabaseConfig struct {
	Dir string `toml:"dir"`
}

// EconomyConfig tunes scoring and rewards.
type EconomyConfig struct {
	ScoreWindowDays int   `toml:"score_window_days"`
	RewardPerPoint  int64 `toml:"reward_per_point"`
}

// MetricsConfig controls /metrics and span recording.
type MetricsConfig struct {
	Enabled     bool `toml:"enabled"`
	TraceBuffer int  `toml:"trace_buffer"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `toml:"level"`  // debug | info | warn | error
	Format string `toml:"format"` // text | json
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8420,
		},
		Economy: EconomyConfig{
			ScoreWindowDays: 365,
			RewardPerPoint:  10,
		},
		Metrics: MetricsConfig{
			Enabled:     true,
			TraceBuffer: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Home returns $AYNI_HOME, falling back to ~/.ayni.
func Home() string {
	if env := os.Getenv("AYNI_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ayni"
	}
	return filepath.Join(home, ".ayni")
}

// LoadConfig reads path (default <home>/config.toml) over DefaultConfig,
// then applies <home>/.env, ./.env and AYNI_* overrides. A missing file is
// not an error; unknown keys are.
func LoadConfig(path, home string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = filepath.Join(home, ConfigFileName)
	}

	md, err := toml.DecodeFile(path, &cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	default:
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}

	// .env files never override variables already set in the environment.
	for _, envFile := range []string{filepath.Join(home, ".env"), ".env"} {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if cfg.Database.Dir == "" {
		cfg.Database.Dir = filepath.Join(home, "data")
	}
	return cfg, cfg.Validate()
}

// applyEnv overlays AYNI_* environment variables.
func (c *Config) applyEnv() error {
	c.API.Host = getEnv("AYNI_API_HOST", c.API.Host)
	c.Database.Dir = getEnv("AYNI_DB_DIR", c.Database.Dir)
	c.Log.Level = getEnv("AYNI_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("AYNI_LOG_FORMAT", c.Log.Format)

	var err error
	if c.API.Port, err = getEnvInt("AYNI_API_PORT", c.API.Port); err != nil {
		return err
	}
	if c.Economy.ScoreWindowDays, err = getEnvInt("AYNI_SCORE_WINDOW_DAYS", c.Economy.ScoreWindowDays); err != nil {
		return err
	}
	reward, err := getEnvInt("AYNI_REWARD_PER_POINT", int(c.Economy.RewardPerPoint))
	if err != nil {
		return err
	}
	c.Economy.RewardPerPoint = int64(reward)
	if raw := os.Getenv("AYNI_METRICS_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("AYNI_METRICS_ENABLED: %w", err)
		}
		c.Metrics.Enabled = enabled
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Economy.ScoreWindowDays <= 0 {
		return fmt.Errorf("economy.score_window_days must be positive, got %d", c.Economy.ScoreWindowDays)
	}
	if c.Economy.RewardPerPoint < 0 {
		return fmt.Errorf("economy.reward_per_point must not be negative, got %d", c.Economy.RewardPerPoint)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Addr returns the API listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.API.Host, strconv.Itoa(c.API.Port))
}

// EconomyConfig converts the [economy] section.
func (c Config) EconomyConfig() economy.Config {
	return economy.Config{
		ScoreWindow:    time.Duration(c.Economy.ScoreWindowDays) * 24 * time.Hour,
		RewardPerPoint: c.Economy.RewardPerPoint,
	}
}

// NewLogger builds the slog logger described by the [log] section.
// verbose forces debug level.
func (c Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil || verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Encode writes c as TOML.
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: want debug, info, warn or error", s)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
