// README: Order room router; resolves fan-out topics to the live sessions that should hear them.
package rooms

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"deliverd/internal/modules/registry"
	"deliverd/internal/types"
)

const (
	RoomAdmins = "admins"
	RoomRiders = "riders"
	// roomAll is the internal topic for process-wide notifications
	// (system/emergency broadcasts).
	roomAll = "*"
)

// OrderRoom names the per-order topic joined by the order's customer, its
// rider, and admins.
func OrderRoom(orderID types.ID) string {
	return "order_" + string(orderID)
}

// Router keeps session-based room membership and delivers published
// envelopes to local member sessions. Membership is explicit: a reconnecting
// actor must re-join its rooms.
type Router struct {
	mu       sync.RWMutex
	rooms    map[string]map[types.ID]struct{}
	sessions map[types.ID]map[string]struct{}
	reg      *registry.Registry
	backend  PubSubBackend
	log      *slog.Logger
}

func NewRouter(reg *registry.Registry, backend PubSubBackend, log *slog.Logger) *Router {
	r := &Router{
		rooms:    make(map[string]map[types.ID]struct{}),
		sessions: make(map[types.ID]map[string]struct{}),
		reg:      reg,
		backend:  backend,
		log:      log,
	}
	backend.Subscribe(r.deliver)
	return r
}

// Join is idempotent.
func (r *Router) Join(sessionID types.ID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[types.ID]struct{})
	}
	r.rooms[room][sessionID] = struct{}{}
	if r.sessions[sessionID] == nil {
		r.sessions[sessionID] = make(map[string]struct{})
	}
	r.sessions[sessionID][room] = struct{}{}
}

// Leave is idempotent.
func (r *Router) Leave(sessionID types.ID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[room]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if joined, ok := r.sessions[sessionID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.sessions, sessionID)
		}
	}
}

// DropSession clears every membership for a session; wired as the registry's
// unregister teardown hook.
func (r *Router) DropSession(sessionID types.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.sessions[sessionID] {
		delete(r.rooms[room], sessionID)
		if len(r.rooms[room]) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.sessions, sessionID)
}

// Broadcast publishes to a room through the backend. Local (and, with the
// Redis backend, remote) delivery happens in deliver.
func (r *Router) Broadcast(ctx context.Context, room, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.backend.Publish(ctx, Envelope{Room: room, Event: event, Payload: body})
}

// BroadcastAll reaches every live session regardless of room membership.
func (r *Router) BroadcastAll(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.backend.Publish(ctx, Envelope{Room: roomAll, Event: event, Payload: body})
}

// deliver writes an envelope to each local member session independently; a
// failed socket write is logged and never blocks the remaining members.
func (r *Router) deliver(env Envelope) {
	var targets []*registry.Session
	if env.Room == roomAll {
		targets = r.reg.Each()
	} else {
		r.mu.RLock()
		ids := make([]types.ID, 0, len(r.rooms[env.Room]))
		for sid := range r.rooms[env.Room] {
			ids = append(ids, sid)
		}
		r.mu.RUnlock()
		for _, sid := range ids {
			if s, ok := r.reg.Get(sid); ok {
				targets = append(targets, s)
			}
		}
	}

	for _, s := range targets {
		if err := s.Conn.Send(env.Event, env.Payload); err != nil {
			r.log.Warn("room delivery failed", "room", env.Room, "session_id", s.ID, "event", env.Event, "error", err)
		}
	}
}

// Members returns a snapshot of a room's session ids (test and admin
// introspection helper).
func (r *Router) Members(room string) []types.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ID, 0, len(r.rooms[room]))
	for sid := range r.rooms[room] {
		out = append(out, sid)
	}
	return out
}
