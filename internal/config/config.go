package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the YAML file (and .env) are read.
const (
	EnvListen   = "TZTIMELINE_LISTEN"
	EnvTimezone = "TZTIMELINE_TIMEZONE"
	EnvLogLevel = "TZTIMELINE_LOG_LEVEL"
	EnvState    = "TZTIMELINE_STATE_PATH"
)

const (
	defaultListen    = "127.0.0.1:8080"
	defaultStatePath = "/var/lib/tztimeline/state.yaml"
	defaultClockCron = "@every 1m"
	defaultLogLevel  = "info"
	defaultPadding   = 0.1
	defaultNowWindow = 30
)

// ProjectionConfig holds the projector policy constants.
type ProjectionConfig struct {
	// PaddingFraction widens the plot domain on each side by this share of
	// its width.
	PaddingFraction float64 `yaml:"padding_fraction" json:"padding_fraction"`
	// NowWindowMinutes is the half width of the "around now" bars.
	NowWindowMinutes int `yaml:"now_window_minutes" json:"now_window_minutes"`
}

// SnapshotConfig controls the headless PNG capture of /timeline.
type SnapshotConfig struct {
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
	TimeoutSec int    `yaml:"timeout_sec" json:"timeout_sec"`
	Output     string `yaml:"output" json:"output"`
}

// ImportConfig restricts the calendars POST /api/import?url= may fetch.
type ImportConfig struct {
	// AllowedHosts, when non-empty, lists the only hosts that may be
	// fetched. ".example.com" matches every subdomain.
	AllowedHosts []string `yaml:"allowed_hosts,omitempty" json:"allowed_hosts,omitempty"`
	// AllowPrivateHosts lifts the block on loopback and private addresses.
	AllowPrivateHosts bool `yaml:"allow_private_hosts" json:"allow_private_hosts"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA id used as reference zone for a fresh range.
	// Empty means the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// StatePath is where the selection and range are persisted.
	StatePath string `yaml:"state_path" json:"state_path"`

	// ClockCron is the robfig/cron schedule that refreshes "now".
	ClockCron string `yaml:"clock_cron" json:"clock_cron"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogJSON selects the production JSON encoder.
	LogJSON bool `yaml:"log_json" json:"log_json"`

	// BusinessTimezones overrides the built-in business set when non-empty.
	BusinessTimezones []string `yaml:"business_timezones,omitempty" json:"business_timezones,omitempty"`

	Projection ProjectionConfig `yaml:"projection" json:"projection"`
	Snapshot   SnapshotConfig   `yaml:"snapshot" json:"snapshot"`
	Import     ImportConfig     `yaml:"import" json:"import"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    defaultListen,
		StatePath: defaultStatePath,
		ClockCron: defaultClockCron,
		LogLevel:  defaultLogLevel,
		Projection: ProjectionConfig{
			PaddingFraction:  defaultPadding,
			NowWindowMinutes: defaultNowWindow,
		},
		Snapshot: SnapshotConfig{
			Width:      1280,
			Height:     720,
			TimeoutSec: 30,
			Output:     "/var/lib/tztimeline/timeline.png",
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.StatePath == "" {
		c.StatePath = def.StatePath
	}
	if c.ClockCron == "" {
		c.ClockCron = def.ClockCron
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	// Zero padding reads as "unset"; use a tiny positive value for none.
	if c.Projection.PaddingFraction <= 0 {
		c.Projection.PaddingFraction = def.Projection.PaddingFraction
	}
	if c.Projection.NowWindowMinutes <= 0 {
		c.Projection.NowWindowMinutes = def.Projection.NowWindowMinutes
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = def.Snapshot.Width
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = def.Snapshot.Height
	}
	if c.Snapshot.TimeoutSec <= 0 {
		c.Snapshot.TimeoutSec = def.Snapshot.TimeoutSec
	}
	if c.Snapshot.Output == "" {
		c.Snapshot.Output = def.Snapshot.Output
	}
}

// ApplyEnv overrides file values from the environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		c.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimezone)); v != "" {
		c.Timezone = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvState)); v != "" {
		c.StatePath = v
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if _, err := cron.ParseStandard(c.ClockCron); err != nil {
		result = multierror.Append(result, fmt.Errorf("clock_cron %q: %w", c.ClockCron, err))
	}
	if c.Projection.PaddingFraction > 1 {
		result = multierror.Append(result, fmt.Errorf("projection.padding_fraction %.2f: must be <= 1", c.Projection.PaddingFraction))
	}
	if c.Projection.NowWindowMinutes > 12*60 {
		result = multierror.Append(result, fmt.Errorf("projection.now_window_minutes %d: must be <= 720", c.Projection.NowWindowMinutes))
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "") != (c.BasicAuth.Password == "") {
		result = multierror.Append(result, errors.New("basic_auth: username and password must both be set"))
	}
	return result.ErrorOrNil()
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically with
// 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data next to path and renames it into place, so
// readers never observe a partial file.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes to a temp file in the same directory, fsyncs, chmods 0600.
//   - Renames over the target path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tztimeline-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
