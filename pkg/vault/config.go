package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default tunables.
const (
	// DefaultMinSecretLength is the minimum secret length in runes.
	DefaultMinSecretLength = 4
	// DefaultMaxSecretLength is the maximum secret length in runes.
	DefaultMaxSecretLength = 20
	// DefaultMaxDistinctAttempts is the distinct-secret ceiling per window.
	DefaultMaxDistinctAttempts = 10

	// ConfigFileName is the optional override file in the base directory.
	ConfigFileName = "config.yaml"
	// VaultsDirName is the subdirectory holding vault store files.
	VaultsDirName = "vaults"
	// LedgerFileName is the attempt ledger database file.
	LedgerFileName = "attempts.db"
)

// Config errors
var (
	ErrConfigInsecure = errors.New("vault: config file has insecure permissions")
	ErrConfigSymlink  = errors.New("vault: config file is a symlink")
)

// Config carries the tunables the vault manager consumes. The zero
// value is not usable; start from DefaultConfig.
type Config struct {
	// BaseDir is the root directory: vault stores live under
	// BaseDir/vaults, the attempt ledger at BaseDir/attempts.db.
	BaseDir string `yaml:"-"`

	// MinSecretLength and MaxSecretLength bound accepted secret
	// lengths, counted in runes.
	MinSecretLength int `yaml:"min_secret_length"`
	MaxSecretLength int `yaml:"max_secret_length"`

	// MaxDistinctAttempts is the ceiling on distinct secrets attempted
	// within one window before further opens are rejected.
	MaxDistinctAttempts int `yaml:"max_distinct_attempts"`

	// Timezone names the zone whose calendar days bound the attempt
	// window. Empty means the local zone.
	Timezone string `yaml:"timezone"`
}

// DefaultConfig returns the reference configuration rooted at baseDir.
func DefaultConfig(baseDir string) Config {
	return Config{
		BaseDir:             baseDir,
		MinSecretLength:     DefaultMinSecretLength,
		MaxSecretLength:     DefaultMaxSecretLength,
		MaxDistinctAttempts: DefaultMaxDistinctAttempts,
	}
}

// LoadConfig returns the configuration for baseDir, applying overrides
// from BaseDir/config.yaml when the file exists. The file must be a
// regular file with 0600 permissions, the same posture the rest of the
// base directory is kept at.
func LoadConfig(baseDir string) (Config, error) {
	cfg := DefaultConfig(baseDir)

	path := filepath.Join(baseDir, ConfigFileName)
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("vault: failed to stat config file: %w", err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return Config{}, ErrConfigSymlink
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return Config{}, fmt.Errorf("%w: %04o (expected 0600)", ErrConfigInsecure, perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("vault: failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("vault: failed to parse config file: %w", err)
	}
	cfg.BaseDir = baseDir

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MinSecretLength < 1 {
		return fmt.Errorf("vault: min_secret_length must be at least 1, got %d", c.MinSecretLength)
	}
	if c.MaxSecretLength < c.MinSecretLength {
		return fmt.Errorf("vault: max_secret_length %d is below min_secret_length %d",
			c.MaxSecretLength, c.MinSecretLength)
	}
	if c.MaxDistinctAttempts < 1 {
		return fmt.Errorf("vault: max_distinct_attempts must be at least 1, got %d", c.MaxDistinctAttempts)
	}
	if _, err := c.WindowLocation(); err != nil {
		return err
	}
	return nil
}

// WindowLocation resolves the configured attempt-window time zone.
func (c Config) WindowLocation() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("vault: invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// VaultsDir returns the directory holding vault store files.
func (c Config) VaultsDir() string {
	return filepath.Join(c.BaseDir, VaultsDirName)
}

// LedgerPath returns the attempt ledger database path. It is namespaced
// apart from the vaults directory so no locator can collide with it.
func (c Config) LedgerPath() string {
	return filepath.Join(c.BaseDir, LedgerFileName)
}
