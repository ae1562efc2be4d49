// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"sync"

	"github.com/smswire/smswire/lib/ref"
)

// Directory is the registry of administrative rooms: the single source
// of truth for "which rooms are admin rooms and whose are they". It is
// an injectable component — construct one per bridge (or per test),
// never a package-level singleton.
//
// Two indexes are maintained atomically under one lock: the primary
// room → session map and a secondary owner → room index. The secondary
// index makes the one-session-per-owner invariant mechanically
// checkable at insertion time instead of depending on scan order.
//
// Entries are never removed: classification has no teardown path, and
// the directory's lifetime is the process lifetime.
type Directory struct {
	mu      sync.RWMutex
	byRoom  map[ref.RoomID]*AdminSession
	byOwner map[ref.UserID]ref.RoomID
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byRoom:  make(map[ref.RoomID]*AdminSession),
		byOwner: make(map[ref.UserID]ref.RoomID),
	}
}

// Put registers a session. Registration is idempotent: re-putting the
// session for a room with the same owner is a no-op.
//
// The first committed entry is authoritative. Put fails with an
// *InvariantError, mutating nothing, when the room is already
// registered to a different owner, or when the owner already has a
// different admin room.
func (d *Directory) Put(session *AdminSession) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byRoom[session.RoomID()]; ok {
		if existing.Owner() != session.Owner() {
			return &InvariantError{
				RoomID: session.RoomID(),
				Owner:  session.Owner(),
				Reason: "room already registered to owner " + existing.Owner().String(),
			}
		}
		return nil
	}

	if existingRoom, ok := d.byOwner[session.Owner()]; ok && existingRoom != session.RoomID() {
		return &InvariantError{
			RoomID: session.RoomID(),
			Owner:  session.Owner(),
			Reason: "owner already has admin room " + existingRoom.String(),
		}
	}

	d.byRoom[session.RoomID()] = session
	d.byOwner[session.Owner()] = session.RoomID()
	return nil
}

// ByRoom returns the session registered for a room, if any.
func (d *Directory) ByRoom(roomID ref.RoomID) (*AdminSession, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	session, ok := d.byRoom[roomID]
	return session, ok
}

// ByOwner returns the session belonging to an owner, if any. The
// secondary index makes this a direct lookup; no linear scan, no
// undefined tie-break.
func (d *Directory) ByOwner(owner ref.UserID) (*AdminSession, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	roomID, ok := d.byOwner[owner]
	if !ok {
		return nil, false
	}
	session, ok := d.byRoom[roomID]
	return session, ok
}

// All returns a snapshot of every registered session. The snapshot is
// stable for iteration; it does not reflect mutations made after the
// call.
func (d *Directory) All() []*AdminSession {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sessions := make([]*AdminSession, 0, len(d.byRoom))
	for _, session := range d.byRoom {
		sessions = append(sessions, session)
	}
	return sessions
}

// Len returns the number of registered admin rooms.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byRoom)
}
