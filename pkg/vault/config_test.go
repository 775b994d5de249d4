package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.MinSecretLength != DefaultMinSecretLength {
		t.Errorf("expected min %d, got %d", DefaultMinSecretLength, cfg.MinSecretLength)
	}
	if cfg.MaxSecretLength != DefaultMaxSecretLength {
		t.Errorf("expected max %d, got %d", DefaultMaxSecretLength, cfg.MaxSecretLength)
	}
	if cfg.MaxDistinctAttempts != DefaultMaxDistinctAttempts {
		t.Errorf("expected ceiling %d, got %d", DefaultMaxDistinctAttempts, cfg.MaxDistinctAttempts)
	}
	if cfg.VaultsDir() != filepath.Join(dir, VaultsDirName) {
		t.Errorf("unexpected vaults dir %q", cfg.VaultsDir())
	}
	if cfg.LedgerPath() != filepath.Join(dir, LedgerFileName) {
		t.Errorf("unexpected ledger path %q", cfg.LedgerPath())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	content := "min_secret_length: 6\nmax_secret_length: 12\nmax_distinct_attempts: 3\ntimezone: UTC\n"
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.MinSecretLength != 6 || cfg.MaxSecretLength != 12 {
		t.Errorf("length bounds not applied: %d-%d", cfg.MinSecretLength, cfg.MaxSecretLength)
	}
	if cfg.MaxDistinctAttempts != 3 {
		t.Errorf("expected ceiling 3, got %d", cfg.MaxDistinctAttempts)
	}
	loc, err := cfg.WindowLocation()
	if err != nil {
		t.Fatalf("WindowLocation failed: %v", err)
	}
	if loc.String() != "UTC" {
		t.Errorf("expected UTC, got %s", loc)
	}
}

func TestLoadConfigPartialOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("max_distinct_attempts: 5\n"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	// Unset keys keep their defaults.
	if cfg.MaxDistinctAttempts != 5 {
		t.Errorf("expected ceiling 5, got %d", cfg.MaxDistinctAttempts)
	}
	if cfg.MinSecretLength != DefaultMinSecretLength {
		t.Errorf("expected default min, got %d", cfg.MinSecretLength)
	}
}

func TestLoadConfigRejectsInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("max_distinct_attempts: 5\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := LoadConfig(dir); !errors.Is(err, ErrConfigInsecure) {
		t.Errorf("expected ErrConfigInsecure, got %v", err)
	}
}

func TestLoadConfigRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.yaml")
	if err := os.WriteFile(target, []byte("max_distinct_attempts: 5\n"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(dir, ConfigFileName)); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if _, err := LoadConfig(dir); !errors.Is(err, ErrConfigSymlink) {
		t.Errorf("expected ErrConfigSymlink, got %v", err)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := []string{
		"min_secret_length: 0\n",
		"min_secret_length: 8\nmax_secret_length: 4\n",
		"max_distinct_attempts: 0\n",
		"timezone: Not/AZone\n",
	}
	for _, content := range cases {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if _, err := LoadConfig(dir); err == nil {
			t.Errorf("config %q: expected validation error", content)
		}
	}
}
