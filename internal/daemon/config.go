// Package daemon holds the progression service configuration.
// Config lives at $PROGRESSION_HOME/config.toml (default ~/.progression).
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the config file name inside the home directory.
const ConfigFileName = "config.toml"

// Config is the root of config.toml.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Engine   EngineConfig   `toml:"engine"`
}

// DatabaseConfig locates and tunes the SQLite store.
type DatabaseConfig struct {
	Path         string `toml:"path"`           // Directory holding progression.db
	BusyTimeout  string `toml:"busy_timeout"`   // e.g. "5s"
	MaxReadConns int    `toml:"max_read_conns"` // Reader pool size
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // console or json
}

// MetricsConfig controls the ops listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// EngineConfig tunes the economy engine.
type EngineConfig struct {
	MaxRetries    int  `toml:"max_retries"`
	StrictRewards bool `toml:"strict_rewards"`
	HistoryLimit  int  `toml:"history_limit"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Path:         HomeDir(),
			BusyTimeout:  "5s",
			MaxReadConns: 8,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9464",
		},
		Engine: EngineConfig{
			MaxRetries:   8,
			HistoryLimit: 50,
		},
	}
}

// HomeDir returns $PROGRESSION_HOME, or ~/.progression.
func HomeDir() string {
	if env := os.Getenv("PROGRESSION_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".progression"
	}
	return filepath.Join(home, ".progression")
}

// DefaultConfigPath returns the config file inside HomeDir.
func DefaultConfigPath() string {
	return filepath.Join(HomeDir(), ConfigFileName)
}

// Load reads path over the defaults. A missing file yields the defaults;
// a malformed or invalid one is an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path must not be empty"))
	}
	if _, err := parseDuration(c.Database.BusyTimeout); err != nil {
		errs = append(errs, fmt.Errorf("database.busy_timeout: %w", err))
	}
	if c.Database.MaxReadConns <= 0 {
		errs = append(errs, fmt.Errorf("database.max_read_conns must be positive, got %d", c.Database.MaxReadConns))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want console or json", c.Log.Format))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen must be set when metrics are enabled"))
	}
	if c.Engine.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_retries must be positive, got %d", c.Engine.MaxRetries))
	}
	if c.Engine.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("engine.history_limit must be positive, got %d", c.Engine.HistoryLimit))
	}
	return errors.Join(errs...)
}

// BusyTimeoutDuration parses Database.BusyTimeout, falling back to 5s.
func (c DatabaseConfig) BusyTimeoutDuration() time.Duration {
	d, err := parseDuration(c.BusyTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// parseDuration accepts Go duration strings; empty means the default.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 5 * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// Save writes cfg to path as TOML, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}
