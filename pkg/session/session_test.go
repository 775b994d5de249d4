package session

import (
	"errors"
	"testing"
	"time"

	"github.com/kesuzuki/pinvault/pkg/ledger"
	"github.com/kesuzuki/pinvault/pkg/store"
	"github.com/kesuzuki/pinvault/pkg/vault"
)

func testController(t *testing.T) (*Controller, *vault.Manager) {
	t.Helper()

	cfg := vault.DefaultConfig(t.TempDir())
	led, err := ledger.Open(cfg.LedgerPath(), ledger.WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("ledger.Open failed: %v", err)
	}
	t.Cleanup(func() { led.Close() })

	mgr, err := vault.NewManager(cfg, led)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return NewController(mgr), mgr
}

func bindSession(t *testing.T, c *Controller, mgr *vault.Manager, secret string) *Session {
	t.Helper()
	handle, err := mgr.Open(secret)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	sess, err := c.Bind(secret, handle)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	return sess
}

func TestBackgroundDestroysSession(t *testing.T) {
	c, mgr := testController(t)
	sess := bindSession(t, c, mgr, "4242")

	if err := c.Transition(Background); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	if c.Active() != nil {
		t.Error("session should be gone after background")
	}
	// The handle was closed through the manager: operations fail.
	if err := sess.Handle().PutEntry(&store.Entry{Name: "n", Body: []byte("v")}); err == nil {
		t.Error("closed handle accepted a write")
	}
	// And the manager released the locator, so a fresh open succeeds.
	h2, err := mgr.Open("4242")
	if err != nil {
		t.Fatalf("reopen after teardown failed: %v", err)
	}
	mgr.Close(h2)
}

func TestInterruptedKeepsSession(t *testing.T) {
	c, mgr := testController(t)
	sess := bindSession(t, c, mgr, "4242")

	if err := c.Transition(Interrupted); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if c.Active() != sess {
		t.Fatal("interruption must not destroy the session")
	}
	if err := sess.Handle().PutEntry(&store.Entry{Name: "n", Body: []byte("v")}); err != nil {
		t.Errorf("handle unusable after interruption: %v", err)
	}
}

func TestForegroundIsNoOp(t *testing.T) {
	c, mgr := testController(t)
	sess := bindSession(t, c, mgr, "4242")

	if err := c.Transition(Foreground); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if c.Active() != sess {
		t.Error("foreground must not touch the session")
	}

	// Foreground after teardown does not resurrect anything.
	if err := c.Lock(); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if err := c.Transition(Foreground); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if c.Active() != nil {
		t.Error("no session should exist after lock")
	}
}

func TestSuppressedBackgroundKeepsSession(t *testing.T) {
	c, mgr := testController(t)
	sess := bindSession(t, c, mgr, "4242")

	release := c.Suppress()
	if !c.Suppressed() {
		t.Fatal("expected suppression to be held")
	}

	if err := c.Transition(Background); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if c.Active() != sess {
		t.Fatal("suppressed background must not destroy the session")
	}

	// Releasing the guard restores auto-lock for the next transition.
	release()
	if c.Suppressed() {
		t.Error("suppression still held after release")
	}
	if err := c.Transition(Background); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if c.Active() != nil {
		t.Error("session should be gone after unsuppressed background")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	c, mgr := testController(t)
	bindSession(t, c, mgr, "4242")

	r1 := c.Suppress()
	r2 := c.Suppress()

	// Double release of one guard must not release the other.
	r1()
	r1()
	if !c.Suppressed() {
		t.Fatal("second guard should still be held")
	}
	if err := c.Transition(Background); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if c.Active() == nil {
		t.Fatal("session destroyed while a guard was held")
	}

	r2()
	if c.Suppressed() {
		t.Error("all guards released, suppression still held")
	}
}

func TestExplicitLockIgnoresSuppression(t *testing.T) {
	c, mgr := testController(t)
	bindSession(t, c, mgr, "4242")

	release := c.Suppress()
	defer release()

	if err := c.Lock(); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if c.Active() != nil {
		t.Error("explicit lock must destroy the session even under suppression")
	}
}

func TestLockWithoutSessionIsNoOp(t *testing.T) {
	c, _ := testController(t)
	if err := c.Lock(); err != nil {
		t.Errorf("Lock with no session should be a no-op, got %v", err)
	}
}

func TestBindRejectsSecondSession(t *testing.T) {
	c, mgr := testController(t)
	bindSession(t, c, mgr, "4242")

	if _, err := c.Bind("5678", nil); !errors.Is(err, ErrSessionActive) {
		t.Errorf("expected ErrSessionActive, got %v", err)
	}

	// After lock, binding works again.
	if err := c.Lock(); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	bindSession(t, c, mgr, "5678")
}

func TestPhaseString(t *testing.T) {
	cases := map[Phase]string{
		Foreground:  "foreground",
		Interrupted: "interrupted",
		Background:  "background",
		Phase(42):   "unknown",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(p), got, want)
		}
	}
}
