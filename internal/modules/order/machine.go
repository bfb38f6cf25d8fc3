// README: Order state machine; the single authority for validating and applying transitions.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deliverd/internal/types"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrGuardFailed       = errors.New("transition guard failed")
	ErrAlreadyAssigned   = errors.New("order no longer available")
	ErrBadRequest        = errors.New("bad request")
)

// Store is the persistence boundary the machine drives. ApplyTransition and
// AssignRider are conditional writes keyed on the previous state; they report
// false (no error) when the condition no longer holds.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	ApplyTransition(ctx context.Context, id types.ID, from, to Status, version int, pay PaymentStatus) (bool, error)
	AssignRider(ctx context.Context, id types.ID, riderID types.ID, version int) (bool, error)
	HasActiveAssignment(ctx context.Context, riderID types.ID) (bool, error)
	AppendEvent(ctx context.Context, e *StatusEvent) error
}

// EventPayload carries the event-specific inputs consulted by guards.
type EventPayload struct {
	Amount  *types.Money // payment_confirmed: must match the order total
	Receipt string
	RiderID types.ID // rider_assigned
	Reason  string   // cancel
}

// Transition is the applied result handed back to the dispatcher for fan-out.
type Transition struct {
	Order *Order
	Event EventType
	From  Status
	To    Status
}

type Machine struct {
	store Store
}

func NewMachine(store Store) *Machine {
	return &Machine{store: store}
}

// Apply validates (orderID, event) against the transition table and its
// guards, then persists the new status with a conditional write. Competing
// writers race on the condition; exactly one wins per transition.
func (m *Machine) Apply(ctx context.Context, orderID types.ID, event EventType, p EventPayload) (Transition, error) {
	o, err := m.store.Get(ctx, orderID)
	if err != nil {
		return Transition{}, err
	}

	to, ok := NextStatus(o.Status, event)
	if !ok {
		if event == EventRiderAssigned && o.RiderID != nil {
			return Transition{}, fmt.Errorf("%w: order %s", ErrAlreadyAssigned, orderID)
		}
		return Transition{}, fmt.Errorf("%w: %s on %s order %s", ErrIllegalTransition, event, o.Status, orderID)
	}

	var applied bool
	pay := o.PaymentStatus

	switch event {
	case EventPaymentConfirmed:
		if p.Amount == nil || *p.Amount != o.Total {
			return Transition{}, fmt.Errorf("%w: payment amount does not match order total", ErrGuardFailed)
		}
		pay = PaymentCompleted
		applied, err = m.store.ApplyTransition(ctx, o.ID, o.Status, to, o.StatusVersion, pay)

	case EventPaymentFailed:
		pay = PaymentFailed
		applied, err = m.store.ApplyTransition(ctx, o.ID, o.Status, to, o.StatusVersion, pay)

	case EventRiderAssigned:
		if p.RiderID == "" {
			return Transition{}, fmt.Errorf("%w: missing rider id", ErrBadRequest)
		}
		busy, berr := m.store.HasActiveAssignment(ctx, p.RiderID)
		if berr != nil {
			return Transition{}, berr
		}
		if busy {
			return Transition{}, fmt.Errorf("%w: rider %s already has an active delivery", ErrGuardFailed, p.RiderID)
		}
		applied, err = m.store.AssignRider(ctx, o.ID, p.RiderID, o.StatusVersion)

	default:
		applied, err = m.store.ApplyTransition(ctx, o.ID, o.Status, to, o.StatusVersion, pay)
	}
	if err != nil {
		return Transition{}, err
	}
	if !applied {
		return Transition{}, m.classifyConflict(ctx, orderID, event, p)
	}

	from := o.Status
	o.Status = to
	o.PaymentStatus = pay
	o.StatusVersion++
	o.UpdatedAt = time.Now()
	if event == EventRiderAssigned {
		rid := p.RiderID
		o.RiderID = &rid
	}
	return Transition{Order: o, Event: event, From: from, To: to}, nil
}

// classifyConflict re-reads after a lost conditional write so the loser gets
// a precise rejection instead of a generic conflict.
func (m *Machine) classifyConflict(ctx context.Context, orderID types.ID, event EventType, p EventPayload) error {
	o, err := m.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if event == EventRiderAssigned {
		if o.RiderID != nil {
			return fmt.Errorf("%w: order %s", ErrAlreadyAssigned, orderID)
		}
		busy, berr := m.store.HasActiveAssignment(ctx, p.RiderID)
		if berr != nil {
			return berr
		}
		if busy {
			return fmt.Errorf("%w: rider %s already has an active delivery", ErrGuardFailed, p.RiderID)
		}
	}
	return fmt.Errorf("%w: %s raced on order %s (now %s)", ErrIllegalTransition, event, orderID, o.Status)
}

// Record appends the audit row for an applied transition. Failures are
// reported but must not unwind the already-committed transition.
func (m *Machine) Record(ctx context.Context, tr Transition, actorRole string, actorID *types.ID) error {
	return m.store.AppendEvent(ctx, &StatusEvent{
		OrderID:   tr.Order.ID,
		Event:     tr.Event,
		From:      tr.From,
		To:        tr.To,
		ActorRole: actorRole,
		ActorID:   actorID,
		CreatedAt: time.Now(),
	})
}
