// Package vault is the policy layer over the encrypted storage engine:
// it maps an arbitrary user secret to its own encrypted store, creating
// the store on first use and reopening it thereafter, while bounding
// how many distinct secrets can be tried per day.
//
// Because the secret is the encryption key, a wrong secret and a brand
// new vault are indistinguishable until an open has been attempted. The
// manager therefore snapshots store existence strictly before opening
// and uses that flag to classify the outcome of the decryption probe.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/kesuzuki/pinvault/pkg/crypto"
	"github.com/kesuzuki/pinvault/pkg/ledger"
	"github.com/kesuzuki/pinvault/pkg/store"
)

// Manager orchestrates vault opens: rate limiting via the attempt
// ledger, locator resolution, open-or-create, the decryption probe,
// schema migration, and failure classification. Open and delete calls
// for the same locator are serialized; distinct locators proceed
// concurrently.
type Manager struct {
	cfg    Config
	ledger *ledger.Ledger

	mu    sync.Mutex
	locks map[string]*sync.Mutex  // Per-locator serialization
	open  map[string]*store.Store // Currently open handles by locator
}

// NewManager returns a manager using cfg's tunables and the given
// attempt ledger. The ledger must be backed by storage separate from
// any vault; Config.LedgerPath provides the conventional location.
func NewManager(cfg Config, led *ledger.Ledger) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:    cfg,
		ledger: led,
		locks:  make(map[string]*sync.Mutex),
		open:   make(map[string]*store.Store),
	}, nil
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Ledger returns the attempt ledger, for status displays.
func (m *Manager) Ledger() *ledger.Ledger {
	return m.ledger
}

// lockFor returns the mutex serializing operations on one locator,
// creating it on first use.
func (m *Manager) lockFor(locator string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lk, ok := m.locks[locator]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[locator] = lk
	}
	return lk
}

// Open opens the vault keyed by secret, creating a new empty vault when
// none exists for it. The returned handle is probed and migrated to the
// current schema version.
//
// Ledger accounting: a genuinely new vault creation and a failed
// decryption of an existing vault each consume one unit of the daily
// distinct-secret budget; reopening an existing vault with its correct
// secret consumes nothing.
//
// Failures are classified before they cross this boundary:
// ErrInvalidSecret, ErrRateLimited (a *RateLimitError),
// ErrIncorrectSecret, or a *StorageError carrying the underlying cause.
func (m *Manager) Open(secret string) (*store.Store, error) {
	sec := Normalize(secret)

	if n := utf8.RuneCountInString(sec); n < m.cfg.MinSecretLength || n > m.cfg.MaxSecretLength {
		return nil, fmt.Errorf("%w: length must be %d-%d", ErrInvalidSecret,
			m.cfg.MinSecretLength, m.cfg.MaxSecretLength)
	}

	// Rate check comes before any vault I/O or existence side effect.
	count, err := m.ledger.DistinctAttemptsInWindow()
	if err != nil {
		return nil, &StorageError{Op: "open", Cause: err}
	}
	if count >= m.cfg.MaxDistinctAttempts {
		return nil, &RateLimitError{
			Attempts: count,
			Limit:    m.cfg.MaxDistinctAttempts,
			ResetAt:  m.ledger.WindowReset(),
		}
	}

	locator := Locator(sec)
	lk := m.lockFor(locator)
	lk.Lock()
	defer lk.Unlock()

	m.mu.Lock()
	_, alreadyOpen := m.open[locator]
	m.mu.Unlock()
	if alreadyOpen {
		return nil, &StorageError{Op: "open", Cause: ErrVaultOpen}
	}

	path := filepath.Join(m.cfg.VaultsDir(), locator)

	// Existence is captured strictly before the open call: once
	// open-or-create has run, a missing store is indistinguishable from
	// a freshly created one, and this flag is the only discriminant
	// between "wrong secret" and "new vault" after the probe.
	existed := fileExists(path)

	s, err := store.OpenOrCreate(path, sec)
	if err != nil {
		return nil, &StorageError{Op: "open", Cause: err}
	}

	if err := s.Probe(); err != nil {
		_ = s.Close()
		if errors.Is(err, crypto.ErrDecryptionFailed) && existed {
			// Wrong secret for an existing vault. The attempt consumes
			// budget so enumeration of existing vaults stays bounded.
			if lerr := m.ledger.LogAttempt(sec); lerr != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to record attempt: %v\n", lerr)
			}
			return nil, ErrIncorrectSecret
		}
		// A probe failure on a store that did not exist a moment ago is
		// a lower-level fault, not a guess; remove the husk and
		// propagate the cause.
		if !existed {
			_ = os.Remove(path)
		}
		return nil, &StorageError{Op: "probe", Cause: err}
	}

	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, &StorageError{Op: "migrate", Cause: err}
	}

	if !existed {
		// Genuine new-vault creation consumes one unit of the budget.
		if lerr := m.ledger.LogAttempt(sec); lerr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to record attempt: %v\n", lerr)
		}
	}

	m.mu.Lock()
	m.open[locator] = s
	m.mu.Unlock()
	return s, nil
}

// Close releases an open handle. Safe against a handle that was already
// closed through the manager; closing is idempotent at the store level.
func (m *Manager) Close(s *store.Store) error {
	if s == nil {
		return nil
	}

	m.mu.Lock()
	for locator, open := range m.open {
		if open == s {
			delete(m.open, locator)
			break
		}
	}
	m.mu.Unlock()

	if err := s.Close(); err != nil {
		return &StorageError{Op: "close", Cause: err}
	}
	return nil
}

// Delete permanently removes the vault keyed by secret. Deleting a
// vault that was never created is a no-op. The vault must not be open;
// a held handle fails the call.
func (m *Manager) Delete(secret string) error {
	sec := Normalize(secret)
	locator := Locator(sec)

	lk := m.lockFor(locator)
	lk.Lock()
	defer lk.Unlock()

	m.mu.Lock()
	_, alreadyOpen := m.open[locator]
	m.mu.Unlock()
	if alreadyOpen {
		return &StorageError{Op: "delete", Cause: ErrVaultOpen}
	}

	path := filepath.Join(m.cfg.VaultsDir(), locator)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &StorageError{Op: "delete", Cause: err}
	}
	return nil
}

// Exists reports whether a vault exists for secret. Pure check: no
// store is opened and no ledger entry is written.
func (m *Manager) Exists(secret string) bool {
	sec := Normalize(secret)
	return fileExists(filepath.Join(m.cfg.VaultsDir(), Locator(sec)))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
