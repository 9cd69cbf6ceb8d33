package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("PROGRESSION_HOME", "/tmp/prog-home")
	cfg := DefaultConfig()

	if cfg.Database.Path != "/tmp/prog-home" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/prog-home")
	}
	if cfg.Database.BusyTimeout != "5s" {
		t.Errorf("Database.BusyTimeout = %q, want %q", cfg.Database.BusyTimeout, "5s")
	}
	if cfg.Database.MaxReadConns != 8 {
		t.Errorf("Database.MaxReadConns = %d, want %d", cfg.Database.MaxReadConns, 8)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v, want info/console", cfg.Log)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be true by default")
	}
	if cfg.Metrics.Listen != "127.0.0.1:9464" {
		t.Errorf("Metrics.Listen = %q, want %q", cfg.Metrics.Listen, "127.0.0.1:9464")
	}
	if cfg.Engine.MaxRetries != 8 {
		t.Errorf("Engine.MaxRetries = %d, want %d", cfg.Engine.MaxRetries, 8)
	}
	if cfg.Engine.StrictRewards {
		t.Error("Engine.StrictRewards should be false by default (lenient)")
	}
	if cfg.Engine.HistoryLimit != 50 {
		t.Errorf("Engine.HistoryLimit = %d, want %d", cfg.Engine.HistoryLimit, 50)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error: %v", err)
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("PROGRESSION_HOME", t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Engine.MaxRetries != 8 {
		t.Errorf("Engine.MaxRetries = %d, want default 8", cfg.Engine.MaxRetries)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	data := `
[database]
path = "/var/lib/progression"
busy_timeout = "250ms"

[log]
level = "debug"
format = "json"

[engine]
strict_rewards = true
history_limit = 10
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Path != "/var/lib/progression" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if got := cfg.Database.BusyTimeoutDuration(); got != 250*time.Millisecond {
		t.Errorf("BusyTimeoutDuration() = %v, want 250ms", got)
	}
	if cfg.Database.MaxReadConns != 8 {
		t.Errorf("Database.MaxReadConns = %d, want default 8", cfg.Database.MaxReadConns)
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "debug" {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}
	if !cfg.Engine.StrictRewards || cfg.Engine.HistoryLimit != 10 {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"malformed", "[database\npath=", "parse"},
		{"unknown key", "[engine]\nmax_retires = 3\n", "unknown keys"},
		{"bad duration", "[database]\nbusy_timeout = \"soon\"\n", "busy_timeout"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"zero retries", "[engine]\nmax_retries = 0\n", "max_retries"},
		{"negative reads", "[database]\nmax_read_conns = -1\n", "max_read_conns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ConfigFileName)
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)
	cfg := DefaultConfig()
	cfg.Engine.HistoryLimit = 7

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Engine.HistoryLimit != 7 {
		t.Errorf("HistoryLimit = %d, want 7", got.Engine.HistoryLimit)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"5s", 5 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"", 5 * time.Second, false}, // Default
		{"-1s", 0, true},
		{"later", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
