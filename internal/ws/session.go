// README: Websocket session; the transport-side implementation of registry.Conn.
package ws

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/gorilla/websocket"

	"deliverd/internal/modules/registry"
	"deliverd/internal/types"
)

// envelope is the bidirectional wire frame: an event name plus its payload.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type session struct {
	id   types.ID
	conn *websocket.Conn

	mu sync.Mutex // serializes writes; gorilla allows one concurrent writer

	actorID types.ID
	role    registry.Role
}

func newSession(conn *websocket.Conn) *session {
	return &session{id: newSessionID(), conn: conn}
}

// Send satisfies registry.Conn.
func (s *session) Send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(envelope{Event: event, Data: payload})
}

func (s *session) authenticated() bool {
	return s.actorID != ""
}

func newSessionID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
