package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Duration is a time.Duration that unmarshals from TOML strings
// like "30s" or "2m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Library holds the API credentials and endpoint settings.
// The key is never read from the config file; it comes from the
// environment (optionally via a .env file) so config files stay safe
// to commit.
type Library struct {
	ID       string `toml:"id"`
	Type     string `toml:"type"` // "user" or "group"
	BaseURL  string `toml:"base_url"`
	PageSize int    `toml:"page_size"`
	APIKey   string `toml:"-"`

	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Match configures the path comparison rules. Case sensitivity depends
// on the filesystem the attachment root lives on, so strictness is
// configurable rather than guessed from the OS.
type Match struct {
	Case       string  `toml:"case"`       // "strict" or "fold"
	Similarity float64 `toml:"similarity"` // 0 disables fuzzy matching
}

// Config is the full runtime configuration.
type Config struct {
	// Root is the attachment root directory to reconcile.
	Root string `toml:"root"`
	// StateDir holds the undo log, the lock file, and the default
	// quarantine/trash trees.
	StateDir string `toml:"state_dir"`
	// QuarantineDir and TrashDir override the defaults under StateDir.
	QuarantineDir string `toml:"quarantine_dir"`
	TrashDir      string `toml:"trash_dir"`
	// StorageDir is the library's managed storage tree, when stored
	// attachments should be located too.
	StorageDir string `toml:"storage_dir"`

	Workers   int      `toml:"workers"`
	Timeout   Duration `toml:"timeout"`
	FileTypes []string `toml:"file_types"`
	Exclude   []string `toml:"exclude"`

	Match   Match   `toml:"match"`
	Library Library `toml:"library"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "zotsweep", "config.toml")
	}
	return "config.toml"
}

func defaults() Config {
	stateDir := ".zotsweep"
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, ".local", "share", "zotsweep")
	}
	return Config{
		StateDir: stateDir,
		Workers:  4,
		Timeout:  Duration{5 * time.Minute},
		Match:    Match{Case: "strict"},
		Library: Library{
			Type:              "user",
			PageSize:          100,
			RequestsPerSecond: 5,
		},
	}
}

// Load reads the config file (missing file means defaults), then layers
// environment variables on top. A .env file in the working directory is
// honored for the credentials.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// Best effort; most setups export the variables directly.
	godotenv.Load()

	if v := os.Getenv("ZOTERO_API_KEY"); v != "" {
		cfg.Library.APIKey = v
	}
	if v := os.Getenv("ZOTERO_LIBRARY_ID"); v != "" {
		cfg.Library.ID = v
	}
	if v := os.Getenv("ZOTERO_LIBRARY_TYPE"); v != "" {
		cfg.Library.Type = v
	}
	if v := os.Getenv("ZOTSWEEP_ROOT"); v != "" {
		cfg.Root = v
	}

	cfg.applyDerived()
	return &cfg, nil
}

func (c *Config) applyDerived() {
	if c.QuarantineDir == "" {
		c.QuarantineDir = filepath.Join(c.StateDir, "quarantine")
	}
	if c.TrashDir == "" {
		c.TrashDir = filepath.Join(c.StateDir, "trash")
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
}

// UndoLogPath returns the undo log database location.
func (c *Config) UndoLogPath() string {
	return filepath.Join(c.StateDir, "undo.db")
}

// LockPath returns the run lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.StateDir, ".zotsweep.lock")
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("no attachment root configured (set root in the config file or ZOTSWEEP_ROOT)")
	}
	if c.Library.ID == "" {
		return fmt.Errorf("no library id configured (set library.id or ZOTERO_LIBRARY_ID)")
	}
	if c.Library.APIKey == "" {
		return fmt.Errorf("no API key configured (set ZOTERO_API_KEY)")
	}
	return nil
}
