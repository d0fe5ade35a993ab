package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so intervals can be written as "4s" in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Account identifies one source page whose inbox is aggregated.
type Account struct {
	PageID      string `toml:"page_id"`
	AccessToken string `toml:"access_token"`
}

// Config represents ~/.inboxd/config.toml.
type Config struct {
	Accounts []Account `toml:"accounts"`

	// ScanInterval is the cadence of the global new-message scan.
	ScanInterval Duration `toml:"scan_interval"`
	// FocusInterval is the cadence of the open-conversation refresh.
	FocusInterval Duration `toml:"focus_interval"`
	// ReconcileEvery makes every Nth focused tick hit the provider directly
	// instead of reading local storage.
	ReconcileEvery int `toml:"reconcile_every"`
	// CallTimeout bounds each provider/storage call.
	CallTimeout Duration `toml:"call_timeout"`

	SoundEnabled         bool `toml:"sound_enabled"`
	DesktopNotifications bool `toml:"desktop_notifications"`
	// PreviewLength caps toast/notification body previews, in runes.
	PreviewLength int `toml:"preview_length"`

	// APIBaseURL overrides the provider endpoint; empty uses the client default.
	APIBaseURL string `toml:"api_base_url"`
	// DBPath overrides the profile database location.
	DBPath string `toml:"db_path"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ScanInterval:         Duration(4 * time.Second),
		FocusInterval:        Duration(3 * time.Second),
		ReconcileEvery:       10,
		CallTimeout:          Duration(30 * time.Second),
		SoundEnabled:         true,
		DesktopNotifications: true,
		PreviewLength:        80,
	}
}

// Normalize fills zero or negative tunables with their defaults.
func (c *Config) Normalize() {
	def := Default()
	if c.ScanInterval <= 0 {
		c.ScanInterval = def.ScanInterval
	}
	if c.FocusInterval <= 0 {
		c.FocusInterval = def.FocusInterval
	}
	if c.ReconcileEvery <= 0 {
		c.ReconcileEvery = def.ReconcileEvery
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.PreviewLength <= 0 {
		c.PreviewLength = def.PreviewLength
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	for i, a := range c.Accounts {
		if a.PageID == "" {
			return fmt.Errorf("accounts[%d]: page_id is required", i)
		}
		if a.AccessToken == "" {
			return fmt.Errorf("accounts[%d] (%s): access_token is required", i, a.PageID)
		}
	}
	return nil
}

// Load reads config from the given path. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
