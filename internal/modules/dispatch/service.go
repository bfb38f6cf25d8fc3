// README: Event dispatcher; authorizes lifecycle events, drives the state machine, fans out notifications.
package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"deliverd/internal/modules/order"
	"deliverd/internal/modules/registry"
	"deliverd/internal/modules/rooms"
	"deliverd/internal/types"
)

var ErrForbidden = errors.New("role not permitted to raise this event")

// Actor is the already-verified identity raising an event. The dispatcher
// trusts it; authentication happens upstream.
type Actor struct {
	ID   types.ID
	Role registry.Role
}

// allowedRoles gates which role may raise which lifecycle event.
var allowedRoles = map[order.EventType][]registry.Role{
	order.EventOrderCreated:     {registry.RoleSystem, registry.RoleCustomer},
	order.EventPaymentConfirmed: {registry.RoleSystem},
	order.EventPaymentFailed:    {registry.RoleSystem},
	order.EventKitchenStart:     {registry.RoleAdmin},
	order.EventKitchenReady:     {registry.RoleAdmin},
	order.EventRiderAssigned:    {registry.RoleRider, registry.RoleAdmin},
	order.EventRiderDelivered:   {registry.RoleRider},
	order.EventCancel:           {registry.RoleCustomer, registry.RoleAdmin, registry.RoleSystem},
}

type Service struct {
	machine *order.Machine
	store   order.Store
	router  *rooms.Router
	reg     *registry.Registry
	log     *slog.Logger
}

func NewService(machine *order.Machine, store order.Store, router *rooms.Router, reg *registry.Registry, log *slog.Logger) *Service {
	return &Service{machine: machine, store: store, router: router, reg: reg, log: log}
}

// Dispatch is the single entry point for "an event happened": authorize,
// apply through the state machine, and only then notify interested parties.
// Any rejection is returned to the caller with nothing broadcast.
func (s *Service) Dispatch(ctx context.Context, orderID types.ID, event order.EventType, p order.EventPayload, actor Actor) (order.Transition, error) {
	if !roleAllowed(event, actor.Role) {
		return order.Transition{}, fmt.Errorf("%w: %s cannot raise %s", ErrForbidden, actor.Role, event)
	}

	if event == order.EventOrderCreated {
		o, err := s.store.Get(ctx, orderID)
		if err != nil {
			return order.Transition{}, err
		}
		tr := order.Transition{Order: o, Event: event, From: order.StatusNone, To: o.Status}
		s.fanOut(ctx, tr, p, actor)
		return tr, nil
	}

	tr, err := s.machine.Apply(ctx, orderID, event, p)
	if err != nil {
		return order.Transition{}, err
	}
	if rerr := s.machine.Record(ctx, tr, string(actor.Role), actorIDPtr(actor)); rerr != nil {
		s.log.Error("status event audit append failed", "order_id", orderID, "event", event, "error", rerr)
	}
	s.fanOut(ctx, tr, p, actor)
	s.log.Info("order transition applied",
		"order_id", orderID, "event", event, "from", tr.From, "to", tr.To,
		"actor_id", actor.ID, "actor_role", actor.Role)
	return tr, nil
}

// PlaceOrderCommand comes from the order-creation endpoint.
type PlaceOrderCommand struct {
	CustomerID types.ID
	Guest      bool
	Items      []order.Item
	Address    order.Address
	Total      types.Money
}

// PlaceOrder creates the order at pending, auto-joins the customer's live
// session (if any) to the order room, and announces it to admins and riders.
func (s *Service) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand, minimumAmount int64) (*order.Order, error) {
	if cmd.CustomerID == "" || len(cmd.Items) == 0 {
		return nil, order.ErrBadRequest
	}
	if cmd.Total.Amount < minimumAmount {
		return nil, fmt.Errorf("%w: order total below delivery minimum", order.ErrBadRequest)
	}

	now := time.Now()
	o := &order.Order{
		ID:            newID(),
		CustomerID:    cmd.CustomerID,
		Guest:         cmd.Guest,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		Items:         cmd.Items,
		Address:       cmd.Address,
		Total:         cmd.Total,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}

	if sess := s.reg.Resolve(cmd.CustomerID, registry.RoleCustomer); sess != nil {
		s.router.Join(sess.ID, rooms.OrderRoom(o.ID))
	}

	actor := Actor{ID: cmd.CustomerID, Role: registry.RoleSystem}
	if _, err := s.Dispatch(ctx, o.ID, order.EventOrderCreated, order.EventPayload{}, actor); err != nil {
		s.log.Error("order_created fan-out failed", "order_id", o.ID, "error", err)
	}
	return o, nil
}

// RiderStatusUpdate republishes informational rider progress (picked_up,
// nearby). It never touches order state; delivered goes through Dispatch.
func (s *Service) RiderStatusUpdate(ctx context.Context, riderID types.ID, status string, orderID types.ID) {
	note := RiderStatusNotification{
		RiderID:   riderID,
		OrderID:   orderID,
		Status:    status,
		Message:   riderStatusMessages[status],
		Timestamp: time.Now(),
	}
	s.broadcast(ctx, rooms.RoomAdmins, EventRiderStatusUpdated, note)
	if orderID != "" {
		s.broadcast(ctx, rooms.OrderRoom(orderID), EventRiderStatusUpdated, note)
	}
}

// Notify pushes a system-wide informational notification to every session.
func (s *Service) Notify(ctx context.Context, message, level string) {
	_ = s.router.BroadcastAll(ctx, EventSystemNotification, SystemNotification{
		Message: message, Level: level, Timestamp: time.Now(),
	})
}

// Emergency pushes a service-interruption broadcast to every session.
func (s *Service) Emergency(ctx context.Context, message string) {
	_ = s.router.BroadcastAll(ctx, EventEmergency, SystemNotification{
		Message: message, Timestamp: time.Now(),
	})
}

// fanOut builds one notification per audience for an applied transition.
func (s *Service) fanOut(ctx context.Context, tr order.Transition, p order.EventPayload, actor Actor) {
	o := tr.Order
	now := time.Now()

	if tr.Event == order.EventOrderCreated {
		s.broadcast(ctx, rooms.RoomAdmins, EventNewOrder, AdminNotification{
			OrderID: o.ID, Status: o.Status, ActorID: actor.ID, ActorRole: string(actor.Role), Timestamp: now,
		})
		s.broadcast(ctx, rooms.RoomRiders, EventNewOrderAvailable, RiderOffer{
			OrderID: o.ID, Total: o.Total, Address: o.Address, Timestamp: now,
		})
		return
	}

	s.broadcast(ctx, rooms.OrderRoom(o.ID), EventOrderStatusUpdated, StatusNotification{
		OrderID: o.ID, Status: tr.To, Message: StatusMessage(tr.To), Timestamp: now,
	})
	s.broadcast(ctx, rooms.RoomAdmins, EventOrderUpdated, AdminNotification{
		OrderID: o.ID, Status: tr.To, ActorID: actor.ID, ActorRole: string(actor.Role), Timestamp: now,
	})

	switch tr.Event {
	case order.EventPaymentConfirmed:
		if !o.Guest {
			s.reg.Unicast(o.CustomerID, registry.RoleCustomer, EventOrderConfirmed, PaymentNotification{
				OrderID: o.ID, Status: tr.To, Amount: o.Total, Receipt: p.Receipt, Timestamp: now,
			})
		}
	case order.EventKitchenReady:
		s.broadcast(ctx, rooms.RoomRiders, EventNewOrderAvailable, RiderOffer{
			OrderID: o.ID, Total: o.Total, Address: o.Address, Timestamp: now,
		})
	case order.EventRiderAssigned:
		if o.RiderID != nil {
			s.reg.Unicast(*o.RiderID, registry.RoleRider, EventOrderAssigned, Assignment{
				OrderID: o.ID, Address: o.Address, Total: o.Total, Timestamp: now,
			})
			if sess := s.reg.Resolve(*o.RiderID, registry.RoleRider); sess != nil {
				s.router.Join(sess.ID, rooms.OrderRoom(o.ID))
			}
		}
	}
}

func (s *Service) broadcast(ctx context.Context, room, event string, payload any) {
	if err := s.router.Broadcast(ctx, room, event, payload); err != nil {
		s.log.Warn("broadcast failed", "room", room, "event", event, "error", err)
	}
}

// statusOverrideEvents maps an admin's target status to the lifecycle event
// it implies. Statuses owned by other actors (confirmed, out_for_delivery,
// delivered) cannot be forced through an override.
var statusOverrideEvents = map[order.Status]order.EventType{
	order.StatusPreparing: order.EventKitchenStart,
	order.StatusReady:     order.EventKitchenReady,
	order.StatusCancelled: order.EventCancel,
}

// EventForStatusOverride resolves an admin status override to its event.
func EventForStatusOverride(s order.Status) (order.EventType, bool) {
	ev, ok := statusOverrideEvents[s]
	return ev, ok
}

func roleAllowed(event order.EventType, role registry.Role) bool {
	for _, r := range allowedRoles[event] {
		if r == role {
			return true
		}
	}
	return false
}

func actorIDPtr(a Actor) *types.ID {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
