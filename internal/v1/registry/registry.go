// Package registry tracks which connection belongs to which room
// participant, and the inverse, under one lock discipline. The room
// aggregate stores only identifiers; resolving a participant's connection
// is always a registry query, never a pointer traversal.
package registry

import (
	"sync"

	"github.com/lexiclash/server/internal/v1/types"
)

// Binding ties a connection to a seat in a room.
type Binding struct {
	Room        types.RoomCode
	Participant types.ParticipantName
	ConnID      types.ConnID
	AuthID      types.AuthUserID
	IsHost      bool
}

// Registry maintains three indices that are updated atomically:
// conn -> binding, (room, participant) -> conn, and auth identity ->
// binding. Reads return copies, never internal references.
type Registry struct {
	mu      sync.RWMutex
	byConn  map[types.ConnID]Binding
	bySeat  map[seatKey]types.ConnID
	byAuth  map[types.AuthUserID]Binding
	senders map[types.ConnID]types.Sender

	// migrating marks connections whose session has been taken over by a
	// newer connection; the dispatcher drops their messages.
	migrating map[types.ConnID]struct{}
}

type seatKey struct {
	room types.RoomCode
	name types.ParticipantName
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byConn:    make(map[types.ConnID]Binding),
		bySeat:    make(map[seatKey]types.ConnID),
		byAuth:    make(map[types.AuthUserID]Binding),
		senders:   make(map[types.ConnID]types.Sender),
		migrating: make(map[types.ConnID]struct{}),
	}
}

// Register installs the sender for a connection. Called on transport accept,
// before the connection is bound to any room.
func (r *Registry) Register(s types.Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[s.ConnID()] = s
}

// Bind associates a connection with a room seat, updating all three
// indices atomically. Any previous binding for the seat is overwritten.
func (r *Registry) Bind(b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Drop a stale conn index if the seat was bound elsewhere.
	key := seatKey{room: b.Room, name: b.Participant}
	if old, ok := r.bySeat[key]; ok && old != b.ConnID {
		delete(r.byConn, old)
	}

	r.byConn[b.ConnID] = b
	r.bySeat[key] = b.ConnID
	if b.AuthID != "" {
		r.byAuth[b.AuthID] = b
	}
}

// Unbind removes a connection's room binding, keeping the sender alive.
func (r *Registry) Unbind(connID types.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbindLocked(connID)
}

func (r *Registry) unbindLocked(connID types.ConnID) {
	b, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	key := seatKey{room: b.Room, name: b.Participant}
	if r.bySeat[key] == connID {
		delete(r.bySeat, key)
	}
	if b.AuthID != "" && r.byAuth[b.AuthID].ConnID == connID {
		delete(r.byAuth, b.AuthID)
	}
}

// Drop removes every trace of a connection: binding, sender, migration tag.
func (r *Registry) Drop(connID types.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbindLocked(connID)
	delete(r.senders, connID)
	delete(r.migrating, connID)
}

// Lookup returns the binding for a connection.
func (r *Registry) Lookup(connID types.ConnID) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byConn[connID]
	return b, ok
}

// SeatConn returns the connection currently bound to a room seat.
func (r *Registry) SeatConn(room types.RoomCode, name types.ParticipantName) (types.ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySeat[seatKey{room: room, name: name}]
	return id, ok
}

// AuthBinding returns the binding for an authenticated identity, letting
// the dispatcher detect the same user arriving on a second connection.
func (r *Registry) AuthBinding(authID types.AuthUserID) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byAuth[authID]
	return b, ok
}

// Sender returns the write half for a connection.
func (r *Registry) Sender(connID types.ConnID) (types.Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[connID]
	return s, ok
}

// RoomSenders snapshots the senders of every connection bound into a room.
func (r *Registry) RoomSenders(room types.RoomCode) []types.Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.Sender
	for connID, b := range r.byConn {
		if b.Room != room {
			continue
		}
		if s, ok := r.senders[connID]; ok {
			out = append(out, s)
		}
	}
	return out
}

// MarkMigrating tags a connection as superseded. Messages from a migrating
// connection are dropped before they touch room state.
func (r *Registry) MarkMigrating(connID types.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.migrating[connID] = struct{}{}
}

// IsMigrating reports whether the connection has been superseded.
func (r *Registry) IsMigrating(connID types.ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.migrating[connID]
	return ok
}
