// README: Order aggregate, status definitions, and the event-keyed transition table.
package order

import (
	"time"

	"deliverd/internal/types"
)

type Status string

const (
	// StatusNone is the audit-trail placeholder for "before the order existed".
	StatusNone           Status = "none"
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// EventType names a lifecycle trigger. order_created is broadcast-only and
// never appears in the transition table (orders are born pending).
type EventType string

const (
	EventOrderCreated     EventType = "order_created"
	EventPaymentConfirmed EventType = "payment_confirmed"
	EventPaymentFailed    EventType = "payment_failed"
	EventKitchenStart     EventType = "kitchen_start"
	EventKitchenReady     EventType = "kitchen_ready"
	EventRiderAssigned    EventType = "rider_assigned"
	EventRiderDelivered   EventType = "rider_delivered"
	EventCancel           EventType = "cancel"
)

type Item struct {
	Name      string      `json:"name"`
	Quantity  int         `json:"quantity"`
	UnitPrice types.Money `json:"unit_price"`
}

type Address struct {
	Street       string      `json:"street"`
	City         string      `json:"city"`
	Instructions string      `json:"instructions,omitempty"`
	Position     types.Point `json:"position"`
}

type Order struct {
	ID            types.ID
	CustomerID    types.ID
	Guest         bool
	RiderID       *types.ID
	Status        Status
	PaymentStatus PaymentStatus
	StatusVersion int
	Items         []Item
	Address       Address
	Total         types.Money
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StatusEvent is the audit row appended for every applied transition.
type StatusEvent struct {
	ID        int64
	OrderID   types.ID
	Event     EventType
	From      Status
	To        Status
	ActorRole string
	ActorID   *types.ID
	CreatedAt time.Time
}

// Transitions encodes the lifecycle graph as (current status, event) -> next status.
// Every pair not listed is rejected.
var Transitions = map[Status]map[EventType]Status{
	StatusPending: {
		EventPaymentConfirmed: StatusConfirmed,
		EventPaymentFailed:    StatusCancelled,
		EventCancel:           StatusCancelled,
	},
	StatusConfirmed: {
		EventKitchenStart: StatusPreparing,
		EventCancel:       StatusCancelled,
	},
	StatusPreparing: {
		EventKitchenReady: StatusReady,
		EventCancel:       StatusCancelled,
	},
	StatusReady: {
		EventRiderAssigned: StatusOutForDelivery,
		EventCancel:        StatusCancelled,
	},
	StatusOutForDelivery: {
		EventRiderDelivered: StatusDelivered,
		EventCancel:         StatusCancelled,
	},
}

// NextStatus reports the status an event would move the order to, if listed.
func NextStatus(from Status, event EventType) (Status, bool) {
	next, ok := Transitions[from]
	if !ok {
		return "", false
	}
	to, ok := next[event]
	return to, ok
}

// Terminal reports whether a status has no outgoing transitions.
func Terminal(s Status) bool {
	_, ok := Transitions[s]
	return !ok
}
