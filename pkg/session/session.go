// Package session owns the in-memory binding between one active secret
// and its open vault handle, and tears it down on host lifecycle
// transitions. At most one session is active at a time; when the host
// backgrounds, the session is destroyed (secret wiped, handle closed)
// and the user must re-supply the secret. Transient system-UI
// interruptions are exempted through a scoped suppression guard.
package session

import (
	"errors"
	"sync"

	"github.com/kesuzuki/pinvault/pkg/crypto"
	"github.com/kesuzuki/pinvault/pkg/store"
	"github.com/kesuzuki/pinvault/pkg/vault"
)

// Phase is a host application lifecycle state.
type Phase int

const (
	// Foreground: the host is active and visible.
	Foreground Phase = iota
	// Interrupted: a transient system overlay (file chooser, share
	// sheet) covers the host. Never destroys the session.
	Interrupted
	// Background: the host left the screen. Destroys the session
	// unless a suppression guard is held.
	Background
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Foreground:
		return "foreground"
	case Interrupted:
		return "interrupted"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// ErrSessionActive indicates Bind was called while a session is open.
var ErrSessionActive = errors.New("session: a session is already active")

// Session binds an open vault handle to the secret that opened it. The
// secret copy exists only so it can be wiped on teardown.
type Session struct {
	secret []byte
	handle *store.Store
}

// Handle returns the open vault handle.
func (s *Session) Handle() *store.Store {
	return s.handle
}

// Controller observes host lifecycle transitions and exclusively owns
// the active session. All methods are safe for concurrent use; the
// host's signal dispatch and the UI may race.
type Controller struct {
	mgr *vault.Manager

	mu       sync.Mutex
	sess     *Session
	suppress int // Held suppression guards
}

// NewController returns a controller closing handles through mgr.
func NewController(mgr *vault.Manager) *Controller {
	return &Controller{mgr: mgr}
}

// Bind installs the session for an already opened vault handle. Exactly
// one session may be active; callers must Lock (or transition to
// Background) before binding another.
func (c *Controller) Bind(secret string, handle *store.Store) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil {
		return nil, ErrSessionActive
	}
	c.sess = &Session{
		secret: []byte(secret),
		handle: handle,
	}
	return c.sess, nil
}

// Active returns the current session, or nil when locked.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Transition feeds a host lifecycle phase change to the controller.
// Foreground and Interrupted are no-ops with respect to the session;
// there is no auto re-open. Background destroys the session unless a
// suppression guard is held. The returned error is a close failure
// from the vault manager; the session is gone either way.
func (c *Controller) Transition(p Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p != Background {
		return nil
	}
	if c.suppress > 0 {
		return nil
	}
	return c.teardownLocked()
}

// Lock destroys the session explicitly, regardless of phase or
// suppression. No-op when no session is active.
func (c *Controller) Lock() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardownLocked()
}

// Suppress marks the start of a caller-launched system overlay and
// returns its release func. While any guard is held, Background
// transitions do not destroy the session. The release func must be
// called on every exit path, including failure handlers, or auto-lock
// stays disabled; calling it more than once is safe.
func (c *Controller) Suppress() (release func()) {
	c.mu.Lock()
	c.suppress++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.suppress--
			c.mu.Unlock()
		})
	}
}

// Suppressed reports whether a suppression guard is currently held.
func (c *Controller) Suppressed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppress > 0
}

// teardownLocked wipes the secret and closes the handle. Callers must
// hold c.mu.
func (c *Controller) teardownLocked() error {
	if c.sess == nil {
		return nil
	}
	sess := c.sess
	c.sess = nil

	crypto.SecureWipe(sess.secret)
	sess.secret = nil
	return c.mgr.Close(sess.handle)
}
