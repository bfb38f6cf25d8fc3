// README: State machine tests (transition table, guards, concurrency) over an in-memory store.
package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"deliverd/internal/types"
)

// TestNextStatus verifies the transition table without any store.
func TestNextStatus(t *testing.T) {
	cases := []struct {
		from  Status
		event EventType
		want  Status
		ok    bool
	}{
		// happy path
		{StatusPending, EventPaymentConfirmed, StatusConfirmed, true},
		{StatusConfirmed, EventKitchenStart, StatusPreparing, true},
		{StatusPreparing, EventKitchenReady, StatusReady, true},
		{StatusReady, EventRiderAssigned, StatusOutForDelivery, true},
		{StatusOutForDelivery, EventRiderDelivered, StatusDelivered, true},
		// payment failure
		{StatusPending, EventPaymentFailed, StatusCancelled, true},
		// cancel from every non-terminal state
		{StatusPending, EventCancel, StatusCancelled, true},
		{StatusConfirmed, EventCancel, StatusCancelled, true},
		{StatusPreparing, EventCancel, StatusCancelled, true},
		{StatusReady, EventCancel, StatusCancelled, true},
		{StatusOutForDelivery, EventCancel, StatusCancelled, true},
		// terminal states have no outgoing transitions
		{StatusDelivered, EventCancel, "", false},
		{StatusCancelled, EventCancel, "", false},
		{StatusDelivered, EventRiderDelivered, "", false},
		// skipping states
		{StatusPending, EventKitchenStart, "", false},
		{StatusPending, EventRiderAssigned, "", false},
		{StatusConfirmed, EventKitchenReady, "", false},
		{StatusPreparing, EventRiderAssigned, "", false},
		{StatusReady, EventRiderDelivered, "", false},
		// events only valid earlier in the lifecycle
		{StatusConfirmed, EventPaymentConfirmed, "", false},
		{StatusOutForDelivery, EventRiderAssigned, "", false},
	}

	for _, tc := range cases {
		got, ok := NextStatus(tc.from, tc.event)
		if ok != tc.ok || got != tc.want {
			t.Errorf("NextStatus(%s, %s) = (%s, %v), want (%s, %v)", tc.from, tc.event, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusOutForDelivery} {
		if Terminal(s) {
			t.Errorf("Terminal(%s) = true, want false", s)
		}
	}
	for _, s := range []Status{StatusDelivered, StatusCancelled} {
		if !Terminal(s) {
			t.Errorf("Terminal(%s) = false, want true", s)
		}
	}
}

func TestApplyPaymentGuard(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewMachine(store)

	o := seedOrder(t, store, "o1", StatusPending, 39000)

	// wrong amount is a guard failure; no state change
	_, err := m.Apply(ctx, o.ID, EventPaymentConfirmed, EventPayload{Amount: &types.Money{Amount: 100, Currency: "KES"}})
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("expected ErrGuardFailed, got %v", err)
	}
	if got := mustGet(t, store, o.ID); got.Status != StatusPending {
		t.Fatalf("status changed on guard failure: %s", got.Status)
	}

	// same figure in the wrong currency must not pass either
	_, err = m.Apply(ctx, o.ID, EventPaymentConfirmed, EventPayload{Amount: &types.Money{Amount: 39000, Currency: "USD"}})
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("expected ErrGuardFailed for currency mismatch, got %v", err)
	}

	// matching amount confirms the order and completes payment
	tr, err := m.Apply(ctx, o.ID, EventPaymentConfirmed, EventPayload{Amount: &types.Money{Amount: 39000, Currency: "KES"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if tr.To != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", tr.To)
	}
	got := mustGet(t, store, o.ID)
	if got.Status != StatusConfirmed || got.PaymentStatus != PaymentCompleted {
		t.Fatalf("unexpected state after payment: %s / %s", got.Status, got.PaymentStatus)
	}
}

// TestApplyDuplicatePayment covers idempotence of at-least-once callbacks: a
// duplicate payment_confirmed must be rejected, not re-applied.
func TestApplyDuplicatePayment(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewMachine(store)

	o := seedOrder(t, store, "o1", StatusPending, 39000)
	amount := &types.Money{Amount: 39000, Currency: "KES"}

	if _, err := m.Apply(ctx, o.ID, EventPaymentConfirmed, EventPayload{Amount: amount}); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	_, err := m.Apply(ctx, o.ID, EventPaymentConfirmed, EventPayload{Amount: amount})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition on duplicate, got %v", err)
	}
	if got := mustGet(t, store, o.ID); got.Status != StatusConfirmed {
		t.Fatalf("duplicate moved order to %s", got.Status)
	}
}

func TestApplyPaymentFailed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewMachine(store)

	o := seedOrder(t, store, "o1", StatusPending, 39000)
	tr, err := m.Apply(ctx, o.ID, EventPaymentFailed, EventPayload{Reason: "insufficient funds"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if tr.To != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", tr.To)
	}
	if got := mustGet(t, store, o.ID); got.PaymentStatus != PaymentFailed {
		t.Fatalf("expected payment failed, got %s", got.PaymentStatus)
	}
}

func TestAssignRiderRequiresReady(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewMachine(store)

	o := seedOrder(t, store, "o1", StatusPreparing, 39000)
	_, err := m.Apply(ctx, o.ID, EventRiderAssigned, EventPayload{RiderID: "r1"})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestAssignRiderBusyGuard(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewMachine(store)

	first := seedOrder(t, store, "o1", StatusReady, 39000)
	if _, err := m.Apply(ctx, first.ID, EventRiderAssigned, EventPayload{RiderID: "r1"}); err != nil {
		t.Fatalf("first assignment: %v", err)
	}

	second := seedOrder(t, store, "o2", StatusReady, 39000)
	_, err := m.Apply(ctx, second.ID, EventRiderAssigned, EventPayload{RiderID: "r1"})
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("expected ErrGuardFailed for busy rider, got %v", err)
	}
}

// TestSameRiderConcurrentAcceptTwoOrders: a rider racing themselves onto two
// ready orders wins at most one; the assignment write itself enforces the
// single-active-delivery rule.
func TestSameRiderConcurrentAcceptTwoOrders(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewMachine(store)

	first := seedOrder(t, store, "o1", StatusReady, 39000)
	second := seedOrder(t, store, "o2", StatusReady, 39000)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, id := range []types.ID{first.ID, second.ID} {
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			_, err := m.Apply(ctx, id, EventRiderAssigned, EventPayload{RiderID: "r1"})
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrGuardFailed) {
			t.Fatalf("loser got %v, want ErrGuardFailed", err)
		}
	}
	if success != 1 {
		t.Fatalf("rider won %d orders, want exactly 1", success)
	}
}

// TestAssignRiderAfterAssigned covers the non-racing latecomer: a rider who
// accepts an already-taken order gets "order no longer available", not a
// generic transition error.
func TestAssignRiderAfterAssigned(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewMachine(store)

	o := seedOrder(t, store, "o1", StatusReady, 39000)
	if _, err := m.Apply(ctx, o.ID, EventRiderAssigned, EventPayload{RiderID: "r1"}); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := m.Apply(ctx, o.ID, EventRiderAssigned, EventPayload{RiderID: "r2"})
	if !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned, got %v", err)
	}
	if got := mustGet(t, store, o.ID); *got.RiderID != "r1" {
		t.Fatalf("latecomer overwrote rider: %s", *got.RiderID)
	}
}

// TestConcurrentRiderAccept is the one true race in the system: many riders
// accept the same ready order; exactly one may win.
func TestConcurrentRiderAccept(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewMachine(store)

	o := seedOrder(t, store, "o1", StatusReady, 39000)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		riderID := types.ID(fmt.Sprintf("r%d", i))
		wg.Add(1)
		go func(rid types.ID) {
			defer wg.Done()
			_, err := m.Apply(ctx, o.ID, EventRiderAssigned, EventPayload{RiderID: rid})
			errs <- err
		}(riderID)
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrAlreadyAssigned) {
			t.Fatalf("loser got %v, want ErrAlreadyAssigned", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", success)
	}

	got := mustGet(t, store, o.ID)
	if got.Status != StatusOutForDelivery {
		t.Fatalf("unexpected final status: %s", got.Status)
	}
	if got.RiderID == nil || *got.RiderID == "" {
		t.Fatal("expected rider_id to be set")
	}
}

func TestDeliveredIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewMachine(store)

	o := seedOrder(t, store, "o1", StatusReady, 39000)
	if _, err := m.Apply(ctx, o.ID, EventRiderAssigned, EventPayload{RiderID: "r1"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := m.Apply(ctx, o.ID, EventRiderDelivered, EventPayload{}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	_, err := m.Apply(ctx, o.ID, EventCancel, EventPayload{})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition from terminal state, got %v", err)
	}
}

// --- in-memory Store with the same conditional-write semantics as Postgres ---

type memStore struct {
	mu     sync.Mutex
	orders map[types.ID]*Order
	events []*StatusEvent
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[types.ID]*Order)}
}

func (s *memStore) Create(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *memStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) ApplyTransition(ctx context.Context, id types.ID, from, to Status, version int, pay PaymentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = to
	o.PaymentStatus = pay
	o.StatusVersion++
	o.UpdatedAt = time.Now()
	return true, nil
}

func (s *memStore) AssignRider(ctx context.Context, id types.ID, riderID types.ID, version int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != StatusReady || o.RiderID != nil || o.StatusVersion != version {
		return false, nil
	}
	for _, other := range s.orders {
		if other.RiderID != nil && *other.RiderID == riderID && other.Status == StatusOutForDelivery {
			return false, nil
		}
	}
	rid := riderID
	o.RiderID = &rid
	o.Status = StatusOutForDelivery
	o.StatusVersion++
	o.UpdatedAt = time.Now()
	return true, nil
}

func (s *memStore) HasActiveAssignment(ctx context.Context, riderID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.RiderID != nil && *o.RiderID == riderID && o.Status == StatusOutForDelivery {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) AppendEvent(ctx context.Context, e *StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func seedOrder(t *testing.T, store *memStore, id types.ID, status Status, total int64) *Order {
	t.Helper()
	o := &Order{
		ID:            id,
		CustomerID:    "c1",
		Status:        status,
		PaymentStatus: PaymentPending,
		Items:         []Item{{Name: "nyama choma", Quantity: 1, UnitPrice: types.Money{Amount: total, Currency: "KES"}}},
		Total:         types.Money{Amount: total, Currency: "KES"},
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := store.Create(context.Background(), o); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func mustGet(t *testing.T, store *memStore, id types.ID) *Order {
	t.Helper()
	o, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	return o
}
