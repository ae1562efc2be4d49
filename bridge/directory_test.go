// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"testing"

	"github.com/smswire/smswire/lib/ref"
)

func newSession(t *testing.T, roomID, owner string) *AdminSession {
	t.Helper()
	return NewAdminSession(ref.MustParseRoomID(roomID), ref.MustParseUserID(owner), nil, nil)
}

func TestDirectoryPutAndLookup(t *testing.T) {
	directory := NewDirectory()
	session := newSession(t, "!room1:example.org", "@alice:example.org")

	if err := directory.Put(session); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	byRoom, ok := directory.ByRoom(session.RoomID())
	if !ok || byRoom != session {
		t.Error("ByRoom did not return the registered session")
	}

	byOwner, ok := directory.ByOwner(session.Owner())
	if !ok || byOwner != session {
		t.Error("ByOwner did not return the registered session")
	}

	if directory.Len() != 1 {
		t.Errorf("Len = %d", directory.Len())
	}
}

func TestDirectoryPutIdempotent(t *testing.T) {
	directory := NewDirectory()

	first := newSession(t, "!room1:example.org", "@alice:example.org")
	if err := directory.Put(first); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}

	// Re-registering the same room with the same owner is a no-op; the
	// first committed session stays authoritative.
	second := newSession(t, "!room1:example.org", "@alice:example.org")
	if err := directory.Put(second); err != nil {
		t.Fatalf("idempotent Put failed: %v", err)
	}
	if directory.Len() != 1 {
		t.Errorf("Len = %d after idempotent Put", directory.Len())
	}
	got, _ := directory.ByRoom(first.RoomID())
	if got != first {
		t.Error("idempotent Put replaced the original session")
	}
}

func TestDirectoryOwnerDivergence(t *testing.T) {
	directory := NewDirectory()
	if err := directory.Put(newSession(t, "!room1:example.org", "@alice:example.org")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	err := directory.Put(newSession(t, "!room1:example.org", "@bob:example.org"))
	if !IsInvariantError(err) {
		t.Fatalf("re-registering a room under a new owner should be an invariant error, got %v", err)
	}

	// The original entry is untouched.
	session, _ := directory.ByRoom(ref.MustParseRoomID("!room1:example.org"))
	if session.Owner().String() != "@alice:example.org" {
		t.Errorf("owner after failed Put = %q", session.Owner())
	}
}

func TestDirectoryOneSessionPerOwner(t *testing.T) {
	directory := NewDirectory()
	if err := directory.Put(newSession(t, "!room1:example.org", "@alice:example.org")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// A second admin room for the same owner violates the invariant;
	// nothing is mutated.
	err := directory.Put(newSession(t, "!room2:example.org", "@alice:example.org"))
	if !IsInvariantError(err) {
		t.Fatalf("second room for one owner should be an invariant error, got %v", err)
	}
	if _, ok := directory.ByRoom(ref.MustParseRoomID("!room2:example.org")); ok {
		t.Error("conflicting room must not be registered")
	}
	if directory.Len() != 1 {
		t.Errorf("Len = %d", directory.Len())
	}
}

func TestDirectoryAllSnapshot(t *testing.T) {
	directory := NewDirectory()
	for _, pair := range [][2]string{
		{"!room1:example.org", "@alice:example.org"},
		{"!room2:example.org", "@bob:example.org"},
		{"!room3:example.org", "@carol:example.org"},
	} {
		if err := directory.Put(newSession(t, pair[0], pair[1])); err != nil {
			t.Fatalf("Put %s failed: %v", pair[0], err)
		}
	}

	snapshot := directory.All()
	if len(snapshot) != 3 {
		t.Fatalf("All returned %d sessions", len(snapshot))
	}

	// Mutations after the snapshot do not affect it.
	if err := directory.Put(newSession(t, "!room4:example.org", "@dave:example.org")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if len(snapshot) != 3 {
		t.Error("snapshot reflected later mutation")
	}
}
