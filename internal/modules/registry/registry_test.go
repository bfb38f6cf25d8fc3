// README: Connection registry tests (lifecycle, last-connected-wins, silent offline unicast).
package registry

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"deliverd/internal/types"
)

type fakeConn struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (f *fakeConn) Send(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("socket closed")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeConn) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterRequiresIdentity(t *testing.T) {
	r := New(testLogger())
	if err := r.Register("s1", "", RoleCustomer, &fakeConn{}); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if err := r.Register("s1", "c1", Role("bogus"), &fakeConn{}); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired for unknown role, got %v", err)
	}
}

func TestLastConnectedWins(t *testing.T) {
	r := New(testLogger())
	oldConn := &fakeConn{}
	newConn := &fakeConn{}

	if err := r.Register("s1", "c1", RoleCustomer, oldConn); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("s2", "c1", RoleCustomer, newConn); err != nil {
		t.Fatalf("register: %v", err)
	}

	r.Unicast("c1", RoleCustomer, "order_confirmed", nil)
	if got := newConn.received(); len(got) != 1 || got[0] != "order_confirmed" {
		t.Fatalf("newer session did not receive unicast: %v", got)
	}
	if got := oldConn.received(); len(got) != 0 {
		t.Fatalf("superseded session received unicast: %v", got)
	}

	// the old session disconnecting must not break the newer mapping
	r.Unregister("s1")
	if r.Resolve("c1", RoleCustomer) == nil {
		t.Fatal("newer session lost after old session unregistered")
	}
}

// TestReauthenticateReplacesIdentity: a session that authenticates again
// under a new identity must stop receiving unicasts for the old one, and the
// old mapping must not outlive the session.
func TestReauthenticateReplacesIdentity(t *testing.T) {
	r := New(testLogger())
	conn := &fakeConn{}

	if err := r.Register("s1", "c1", RoleCustomer, conn); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("s1", "c2", RoleCustomer, conn); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	r.Unicast("c1", RoleCustomer, "order_confirmed", nil)
	if got := conn.received(); len(got) != 0 {
		t.Fatalf("unicast for superseded identity delivered: %v", got)
	}
	r.Unicast("c2", RoleCustomer, "order_confirmed", nil)
	if got := conn.received(); len(got) != 1 {
		t.Fatalf("current identity did not receive unicast: %v", got)
	}

	r.Unregister("s1")
	if r.IsOnline("c1", RoleCustomer) || r.IsOnline("c2", RoleCustomer) {
		t.Fatal("identity still online after unregister")
	}
	r.mu.RLock()
	stale := len(r.byActor)
	r.mu.RUnlock()
	if stale != 0 {
		t.Fatalf("byActor retains %d stale entries", stale)
	}
}

func TestUnregisterIdempotentAndTeardown(t *testing.T) {
	r := New(testLogger())
	var torn []types.ID
	r.OnUnregister(func(id types.ID) { torn = append(torn, id) })

	if err := r.Register("s1", "r1", RoleRider, &fakeConn{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Unregister("s1")
	r.Unregister("s1") // no-op

	if len(torn) != 1 || torn[0] != "s1" {
		t.Fatalf("teardown hook calls = %v, want exactly one for s1", torn)
	}
	if r.IsOnline("r1", RoleRider) {
		t.Fatal("rider still online after unregister")
	}
}

func TestUnicastOfflineIsSilent(t *testing.T) {
	r := New(testLogger())
	// must not panic, error, or queue anything
	r.Unicast("ghost", RoleCustomer, "order_confirmed", nil)
}

func TestUnicastDeliveryFailureIsSwallowed(t *testing.T) {
	r := New(testLogger())
	if err := r.Register("s1", "c1", RoleCustomer, &fakeConn{fail: true}); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Unicast("c1", RoleCustomer, "order_confirmed", nil)
}

func TestCounts(t *testing.T) {
	r := New(testLogger())
	_ = r.Register("s1", "c1", RoleCustomer, &fakeConn{})
	_ = r.Register("s2", "a1", RoleAdmin, &fakeConn{})
	_ = r.Register("s3", "r1", RoleRider, &fakeConn{})
	_ = r.Register("s4", "r2", RoleRider, &fakeConn{})

	st := r.Counts()
	if st.Customers != 1 || st.Admins != 1 || st.Riders != 2 || st.Total != 4 {
		t.Fatalf("unexpected counts: %+v", st)
	}
}
