package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.ManifestPath != "carousel/manifest.json" {
		t.Errorf("ManifestPath = %q", cfg.ManifestPath)
	}
	if cfg.RefreshInterval != 30*time.Second || cfg.BoardDuration != 30*time.Second {
		t.Errorf("intervals = %s, %s", cfg.RefreshInterval, cfg.BoardDuration)
	}
	if cfg.MaxRows != 7 || !cfg.PadRows || !cfg.ReadManifestOnStartup {
		t.Errorf("board defaults = %d %v %v", cfg.MaxRows, cfg.PadRows, cfg.ReadManifestOnStartup)
	}
	if cfg.ManifestCron != "" {
		t.Errorf("cron should default off, got %q", cfg.ManifestCron)
	}
	p := cfg.RetryPolicy()
	if p.MaxRetries != 2 || p.BaseDelay != time.Second || p.MaxDelay != 10*time.Second || p.BackoffFactor != 2 {
		t.Errorf("retry policy = %+v", p)
	}
	if cfg.BoardDurationMs() != 30000 {
		t.Errorf("BoardDurationMs = %d", cfg.BoardDurationMs())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("INFOBOARD_LISTEN", ":9000")
	t.Setenv("INFOBOARD_DATA_DIR", "/var/lib/infoboard")
	t.Setenv("INFOBOARD_PROJECTS_URL", "https://sheets.example/projects.csv")
	t.Setenv("INFOBOARD_MAX_ROWS", "5")
	t.Setenv("INFOBOARD_PAD_ROWS", "false")
	t.Setenv("INFOBOARD_BOARD_DURATION", "45s")
	t.Setenv("INFOBOARD_MANIFEST_CRON", "*/5 * * * *")
	t.Setenv("INFOBOARD_ALLOWED_ORIGINS", "kiosk.local,*.example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.MaxRows != 5 || cfg.PadRows {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.DBPath() != "/var/lib/infoboard/infoboard.db" || cfg.ObjectsDir() != "/var/lib/infoboard/objects" {
		t.Errorf("paths = %s, %s", cfg.DBPath(), cfg.ObjectsDir())
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "*.example.org" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if m := cfg.Machine(); m.BoardDuration != 45*time.Second {
		t.Errorf("machine board duration = %s", m.BoardDuration)
	}
	if cfg.BoardDurationMs() != 45000 {
		t.Errorf("BoardDurationMs = %d", cfg.BoardDurationMs())
	}
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("INFOBOARD_MAX_ROWS", "many")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }, "listen address"},
		{"relative public base", func(c *Config) { c.PublicBase = "/objects" }, "public base"},
		{"bad cron", func(c *Config) { c.ManifestCron = "every minute" }, "manifest cron"},
		{"ftp feed", func(c *Config) { c.FlightsURL = "ftp://example.com/f.csv" }, "flights URL"},
		{"zero rows", func(c *Config) { c.MaxRows = 0 }, "max rows"},
		{"negative retries", func(c *Config) { c.FetchRetries = -1 }, "fetch retries"},
		{"zero refresh", func(c *Config) { c.RefreshInterval = 0 }, "refresh interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
