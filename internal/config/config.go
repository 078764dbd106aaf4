// Package config loads the display's settings from INFOBOARD_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"

	"github.com/infoboard/infoboard/internal/display"
	"github.com/infoboard/infoboard/internal/manifest"
	"github.com/infoboard/infoboard/pkg/tabular"
)

// Config is the full runtime configuration.
type Config struct {
	Listen     string `env:"INFOBOARD_LISTEN"      envDefault:"127.0.0.1:8080"`
	DataDir    string `env:"INFOBOARD_DATA_DIR"    envDefault:"./data"`
	PublicBase string `env:"INFOBOARD_PUBLIC_BASE" envDefault:"http://127.0.0.1:8080/objects"`
	// AllowedOrigins are extra host patterns accepted on the display websocket.
	AllowedOrigins []string `env:"INFOBOARD_ALLOWED_ORIGINS" envSeparator:","`

	ManifestPath          string        `env:"INFOBOARD_MANIFEST_PATH"            envDefault:"carousel/manifest.json"`
	ReadManifestOnStartup bool          `env:"INFOBOARD_READ_MANIFEST_ON_STARTUP" envDefault:"true"`
	ManifestCron          string        `env:"INFOBOARD_MANIFEST_CRON"`
	BoardDuration         time.Duration `env:"INFOBOARD_BOARD_DURATION"           envDefault:"30s"`
	ImageLoadTimeout      time.Duration `env:"INFOBOARD_IMAGE_LOAD_TIMEOUT"       envDefault:"15s"`
	VideoStartTimeout     time.Duration `env:"INFOBOARD_VIDEO_START_TIMEOUT"      envDefault:"5s"`

	ProjectsURL     string        `env:"INFOBOARD_PROJECTS_URL"`
	FlightsURL      string        `env:"INFOBOARD_FLIGHTS_URL"`
	RefreshInterval time.Duration `env:"INFOBOARD_REFRESH_INTERVAL" envDefault:"30s"`
	MaxRows         int           `env:"INFOBOARD_MAX_ROWS"         envDefault:"7"`
	PadRows         bool          `env:"INFOBOARD_PAD_ROWS"         envDefault:"true"`

	FetchTimeout    time.Duration `env:"INFOBOARD_FETCH_TIMEOUT"     envDefault:"12s"`
	FetchRetries    int           `env:"INFOBOARD_FETCH_RETRIES"     envDefault:"2"`
	FetchBaseDelay  time.Duration `env:"INFOBOARD_FETCH_BASE_DELAY"  envDefault:"1s"`
	FetchGrowth     float64       `env:"INFOBOARD_FETCH_GROWTH"      envDefault:"2"`
	FetchMaxDelay   time.Duration `env:"INFOBOARD_FETCH_MAX_DELAY"   envDefault:"10s"`

	// AdminToken guards the admin endpoint. When empty the keyring is consulted.
	AdminToken   string `env:"INFOBOARD_ADMIN_TOKEN"`
	OTLPEndpoint string `env:"INFOBOARD_OTEL_ENDPOINT"`
	// LogFile, when set, receives a copy of every console log line.
	LogFile string `env:"INFOBOARD_LOG_FILE"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data dir is empty"))
	}
	if u, err := url.Parse(c.PublicBase); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("public base %q is not an absolute URL", c.PublicBase))
	}
	if c.ManifestPath == "" {
		errs = append(errs, errors.New("manifest path is empty"))
	}
	if c.ManifestCron != "" && !gronx.IsValid(c.ManifestCron) {
		errs = append(errs, fmt.Errorf("manifest cron %q is invalid", c.ManifestCron))
	}
	for name, raw := range map[string]string{"projects": c.ProjectsURL, "flights": c.FlightsURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("%s URL %q must be http or https", name, raw))
		}
	}
	if c.MaxRows < 1 {
		errs = append(errs, fmt.Errorf("max rows must be positive, got %d", c.MaxRows))
	}
	if c.FetchRetries < 0 {
		errs = append(errs, fmt.Errorf("fetch retries must not be negative, got %d", c.FetchRetries))
	}
	for name, d := range map[string]time.Duration{
		"board duration":      c.BoardDuration,
		"refresh interval":    c.RefreshInterval,
		"image load timeout":  c.ImageLoadTimeout,
		"video start timeout": c.VideoStartTimeout,
		"fetch timeout":       c.FetchTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("error: invalid config: %w", err)
	}
	return nil
}

// DBPath is where the SQLite database lives.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "infoboard.db")
}

// ObjectsDir is the root of the local object store.
func (c *Config) ObjectsDir() string {
	return filepath.Join(c.DataDir, "objects")
}

// RetryPolicy converts the fetch settings.
func (c *Config) RetryPolicy() tabular.RetryPolicy {
	return tabular.RetryPolicy{
		MaxRetries:    c.FetchRetries,
		BaseDelay:     c.FetchBaseDelay,
		MaxDelay:      c.FetchMaxDelay,
		BackoffFactor: c.FetchGrowth,
	}
}

// Machine converts the display timing settings.
func (c *Config) Machine() display.Config {
	return display.Config{
		BoardDuration:     c.BoardDuration,
		RefreshInterval:   c.RefreshInterval,
		ImageLoadTimeout:  c.ImageLoadTimeout,
		VideoStartTimeout: c.VideoStartTimeout,
	}
}

// BoardDurationMs is the manifest default board duration.
func (c *Config) BoardDurationMs() int {
	if c.BoardDuration <= 0 {
		return manifest.DefBoardDurationMs
	}
	return int(c.BoardDuration / time.Millisecond)
}
