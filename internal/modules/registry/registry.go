// README: Connection registry; maps actor identities to their live transport session.
package registry

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"deliverd/internal/types"
)

var ErrAuthRequired = errors.New("authentication required")

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleRider    Role = "rider"
	// RoleSystem marks trusted internal callers (payment callbacks, order
	// placement). System actors never hold a session.
	RoleSystem Role = "system"
)

// Conn is the write side of a transport session. Implementations must be
// safe for concurrent Send calls.
type Conn interface {
	Send(event string, payload any) error
}

type Session struct {
	ID          types.ID
	ActorID     types.ID
	Role        Role
	Conn        Conn
	ConnectedAt time.Time
}

type actorKey struct {
	role Role
	id   types.ID
}

// Registry owns all live sessions. It is constructed once at process start
// and injected into the router and dispatcher; there is no package singleton.
type Registry struct {
	mu       sync.RWMutex
	sessions map[types.ID]*Session
	byActor  map[actorKey]types.ID
	teardown func(sessionID types.ID)
	log      *slog.Logger
}

func New(log *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[types.ID]*Session),
		byActor:  make(map[actorKey]types.ID),
		log:      log,
	}
}

// OnUnregister installs the room-teardown hook invoked for every removed
// session. Set once during wiring, before any connection is accepted.
func (r *Registry) OnUnregister(fn func(sessionID types.ID)) {
	r.teardown = fn
}

// Register records the actor→session mapping. A newer connection from the
// same (identity, role) supersedes the old one for unicast routing; the old
// socket keeps whatever room memberships it had until it disconnects.
func (r *Registry) Register(sessionID, actorID types.ID, role Role, conn Conn) error {
	if actorID == "" {
		return ErrAuthRequired
	}
	switch role {
	case RoleCustomer, RoleAdmin, RoleRider:
	default:
		return ErrAuthRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-authentication on a live session: drop the superseded identity's
	// mapping so unicasts for it stop landing on this socket.
	if prev, ok := r.sessions[sessionID]; ok {
		key := actorKey{prev.Role, prev.ActorID}
		if r.byActor[key] == sessionID {
			delete(r.byActor, key)
		}
	}
	s := &Session{ID: sessionID, ActorID: actorID, Role: role, Conn: conn, ConnectedAt: time.Now()}
	r.sessions[sessionID] = s
	r.byActor[actorKey{role, actorID}] = sessionID
	r.log.Info("session registered", "session_id", sessionID, "actor_id", actorID, "role", role)
	return nil
}

// Unregister removes a session from all maps. Idempotent; called on
// transport disconnect.
func (r *Registry) Unregister(sessionID types.ID) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
		key := actorKey{s.Role, s.ActorID}
		if r.byActor[key] == sessionID {
			delete(r.byActor, key)
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if r.teardown != nil {
		r.teardown(sessionID)
	}
	r.log.Info("session unregistered", "session_id", sessionID, "actor_id", s.ActorID, "role", s.Role)
}

// Get returns the session by transport id.
func (r *Registry) Get(sessionID types.ID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Resolve returns the authoritative live session for an actor, or nil.
func (r *Registry) Resolve(actorID types.ID, role Role) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byActor[actorKey{role, actorID}]
	if !ok {
		return nil
	}
	return r.sessions[sid]
}

// Unicast delivers to an actor's current session. An offline target is an
// expected silent no-op; the actor reconciles on reconnect via the order
// read API.
func (r *Registry) Unicast(actorID types.ID, role Role, event string, payload any) {
	s := r.Resolve(actorID, role)
	if s == nil {
		return
	}
	if err := s.Conn.Send(event, payload); err != nil {
		r.log.Warn("unicast delivery failed", "session_id", s.ID, "event", event, "error", err)
	}
}

func (r *Registry) IsOnline(actorID types.ID, role Role) bool {
	return r.Resolve(actorID, role) != nil
}

type Stats struct {
	Customers int `json:"customers"`
	Admins    int `json:"admins"`
	Riders    int `json:"riders"`
	Total     int `json:"total"`
}

func (r *Registry) Counts() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var st Stats
	for _, s := range r.sessions {
		switch s.Role {
		case RoleCustomer:
			st.Customers++
		case RoleAdmin:
			st.Admins++
		case RoleRider:
			st.Riders++
		}
	}
	st.Total = len(r.sessions)
	return st
}

// Each returns a snapshot of all live sessions, for process-wide broadcasts.
func (r *Registry) Each() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
