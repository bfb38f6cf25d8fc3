// README: Websocket hub; upgrades connections and routes inbound actor events through the dispatcher.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"deliverd/internal/modules/dispatch"
	"deliverd/internal/modules/order"
	"deliverd/internal/modules/presence"
	"deliverd/internal/modules/registry"
	"deliverd/internal/modules/rooms"
	"deliverd/internal/types"
)

var upgrader = websocket.Upgrader{
	// Browser clients come from separate PWA origins; identity is verified
	// upstream, so the origin check is permissive here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Hub struct {
	reg        *registry.Registry
	router     *rooms.Router
	dispatcher *dispatch.Service
	presence   *presence.Service
	log        *slog.Logger
}

func NewHub(reg *registry.Registry, router *rooms.Router, dispatcher *dispatch.Service, presenceSvc *presence.Service, log *slog.Logger) *Hub {
	return &Hub{reg: reg, router: router, dispatcher: dispatcher, presence: presenceSvc, log: log}
}

// Handle upgrades the connection and runs the session read loop until the
// peer disconnects.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := newSession(conn)
	defer func() {
		h.reg.Unregister(sess.id)
		_ = conn.Close()
	}()

	ctx := r.Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			h.ack(sess, "", "malformed message")
			continue
		}
		h.route(ctx, sess, env.Event, env.Data)
	}
}

// route is the single inbound entry point: every actor event funnels through
// here so authentication and authorization checks are centralized.
func (h *Hub) route(ctx context.Context, sess *session, event string, data json.RawMessage) {
	if event == "authenticate" {
		h.authenticate(sess, data)
		return
	}
	if !sess.authenticated() {
		h.ack(sess, event, "authentication required")
		return
	}

	switch event {
	case "join_order_room":
		var req struct {
			OrderID types.ID `json:"order_id"`
		}
		if err := json.Unmarshal(data, &req); err != nil || req.OrderID == "" {
			h.ack(sess, event, "order_id required")
			return
		}
		h.router.Join(sess.id, rooms.OrderRoom(req.OrderID))

	case "leave_order_room":
		var req struct {
			OrderID types.ID `json:"order_id"`
		}
		if err := json.Unmarshal(data, &req); err != nil || req.OrderID == "" {
			h.ack(sess, event, "order_id required")
			return
		}
		h.router.Leave(sess.id, rooms.OrderRoom(req.OrderID))

	case "rider_location_update":
		if sess.role != registry.RoleRider {
			h.ack(sess, event, "rider role required")
			return
		}
		var req struct {
			Location types.Point `json:"location"`
			Accuracy float64     `json:"accuracy"`
			OrderID  types.ID    `json:"order_id"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			h.ack(sess, event, "malformed location")
			return
		}
		if err := h.presence.Report(ctx, presence.Ping{
			RiderID:  sess.actorID,
			OrderID:  req.OrderID,
			Position: req.Location,
			Accuracy: req.Accuracy,
		}); err != nil {
			h.log.Warn("location report failed", "rider_id", sess.actorID, "error", err)
		}

	case "rider_status_update":
		if sess.role != registry.RoleRider {
			h.ack(sess, event, "rider role required")
			return
		}
		var req struct {
			Status  string   `json:"status"`
			OrderID types.ID `json:"order_id"`
		}
		if err := json.Unmarshal(data, &req); err != nil || req.Status == "" {
			h.ack(sess, event, "status required")
			return
		}
		if req.Status == "delivered" {
			actor := dispatch.Actor{ID: sess.actorID, Role: sess.role}
			if _, err := h.dispatcher.Dispatch(ctx, req.OrderID, order.EventRiderDelivered, order.EventPayload{}, actor); err != nil {
				h.ack(sess, event, err.Error())
			}
			return
		}
		h.dispatcher.RiderStatusUpdate(ctx, sess.actorID, req.Status, req.OrderID)

	case "admin_order_update":
		if sess.role != registry.RoleAdmin {
			h.ack(sess, event, "admin role required")
			return
		}
		var req struct {
			OrderID types.ID     `json:"order_id"`
			Status  order.Status `json:"status"`
			Message string       `json:"message"`
		}
		if err := json.Unmarshal(data, &req); err != nil || req.OrderID == "" {
			h.ack(sess, event, "order_id and status required")
			return
		}
		ev, ok := dispatch.EventForStatusOverride(req.Status)
		if !ok {
			h.ack(sess, event, "unsupported status override: "+string(req.Status))
			return
		}
		actor := dispatch.Actor{ID: sess.actorID, Role: sess.role}
		if _, err := h.dispatcher.Dispatch(ctx, req.OrderID, ev, order.EventPayload{Reason: req.Message}, actor); err != nil {
			h.ack(sess, event, err.Error())
		}

	default:
		h.ack(sess, event, "unknown event")
	}
}

func (h *Hub) authenticate(sess *session, data json.RawMessage) {
	var req struct {
		Identity types.ID      `json:"identity"`
		Role     registry.Role `json:"role"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		h.ack(sess, "authenticate", "malformed authenticate payload")
		return
	}
	if err := h.reg.Register(sess.id, req.Identity, req.Role, sess); err != nil {
		if errors.Is(err, registry.ErrAuthRequired) {
			h.ack(sess, "authenticate", "authentication required")
			return
		}
		h.ack(sess, "authenticate", err.Error())
		return
	}
	sess.actorID = req.Identity
	sess.role = req.Role

	switch req.Role {
	case registry.RoleAdmin:
		h.router.Join(sess.id, rooms.RoomAdmins)
	case registry.RoleRider:
		h.router.Join(sess.id, rooms.RoomRiders)
	}
	_ = sess.Send("authenticated", map[string]any{"session_id": sess.id, "role": req.Role})
}

// ack reports a rejected or failed inbound event back to its sender.
func (h *Hub) ack(sess *session, event, msg string) {
	_ = sess.Send("error", map[string]any{"event": event, "message": msg})
}
