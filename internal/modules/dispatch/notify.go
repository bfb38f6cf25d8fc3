// README: Notification payloads and per-audience message construction.
package dispatch

import (
	"time"

	"deliverd/internal/modules/order"
	"deliverd/internal/types"
)

// Outbound event names, one per notification kind.
const (
	EventNewOrder           = "new_order"
	EventNewOrderAvailable  = "new_order_available"
	EventOrderConfirmed     = "order_confirmed"
	EventOrderUpdated       = "order_updated"
	EventOrderStatusUpdated = "order_status_updated"
	EventOrderAssigned      = "order_assigned"
	EventRiderStatusUpdated = "rider_status_updated"
	EventSystemNotification = "system_notification"
	EventEmergency          = "emergency_notification"
)

// StatusNotification is what the order room (customer view) receives.
type StatusNotification struct {
	OrderID   types.ID     `json:"order_id"`
	Status    order.Status `json:"status"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}

// AdminNotification carries the raw status plus the acting identity.
type AdminNotification struct {
	OrderID   types.ID     `json:"order_id"`
	Status    order.Status `json:"status"`
	ActorID   types.ID     `json:"actor_id,omitempty"`
	ActorRole string       `json:"actor_role,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// RiderOffer announces an order riders can pick up.
type RiderOffer struct {
	OrderID   types.ID      `json:"order_id"`
	Total     types.Money   `json:"total"`
	Address   order.Address `json:"address"`
	Timestamp time.Time     `json:"timestamp"`
}

// Assignment is unicast to the rider who won an order.
type Assignment struct {
	OrderID   types.ID      `json:"order_id"`
	Address   order.Address `json:"address"`
	Total     types.Money   `json:"total"`
	Timestamp time.Time     `json:"timestamp"`
}

// PaymentNotification is unicast to the paying customer.
type PaymentNotification struct {
	OrderID   types.ID     `json:"order_id"`
	Status    order.Status `json:"status"`
	Amount    types.Money  `json:"amount"`
	Receipt   string       `json:"receipt,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

type RiderStatusNotification struct {
	RiderID   types.ID  `json:"rider_id"`
	OrderID   types.ID  `json:"order_id,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type SystemNotification struct {
	Message   string    `json:"message"`
	Level     string    `json:"level,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var statusMessages = map[order.Status]string{
	order.StatusPending:        "Your order is being processed",
	order.StatusConfirmed:      "Your order has been confirmed and is being prepared",
	order.StatusPreparing:      "Your delicious meal is being prepared",
	order.StatusReady:          "Your order is ready and will be picked up shortly",
	order.StatusOutForDelivery: "Your order is on the way!",
	order.StatusDelivered:      "Your order has been delivered. Enjoy your meal!",
	order.StatusCancelled:      "Your order has been cancelled",
}

// StatusMessage returns the customer-facing text for a status.
func StatusMessage(s order.Status) string {
	if m, ok := statusMessages[s]; ok {
		return m
	}
	return "Order status: " + string(s)
}

var riderStatusMessages = map[string]string{
	"picked_up": "Your order has been picked up and is on the way!",
	"nearby":    "Your rider is nearby. Please be ready to receive your order.",
}
