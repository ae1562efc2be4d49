// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/smswire/smswire/lib/ref"
	"github.com/smswire/smswire/relay"
)

// fakeTransport is an in-memory Transport. Safe for concurrent use so
// the creation-race tests can hammer it from multiple goroutines.
type fakeTransport struct {
	mu  sync.Mutex
	bot ref.UserID

	// rooms maps each room to its joined members.
	rooms map[ref.RoomID][]ref.UserID

	// membersErr, when set, fails every JoinedMembers call.
	membersErr error

	createdRooms []ref.RoomID
	sentTexts    map[ref.RoomID][]string
	joins        []string // "identity room" pairs, in call order
	nextRoom     int
}

func newFakeTransport(bot string) *fakeTransport {
	return &fakeTransport{
		bot:       ref.MustParseUserID(bot),
		rooms:     make(map[ref.RoomID][]ref.UserID),
		sentTexts: make(map[ref.RoomID][]string),
	}
}

func (t *fakeTransport) addRoom(roomID string, members ...string) ref.RoomID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := ref.MustParseRoomID(roomID)
	users := make([]ref.UserID, len(members))
	for i, m := range members {
		users[i] = ref.MustParseUserID(m)
	}
	t.rooms[id] = users
	return id
}

func (t *fakeTransport) BotUserID() ref.UserID {
	return t.bot
}

func (t *fakeTransport) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rooms := make([]ref.RoomID, 0, len(t.rooms))
	for roomID := range t.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms, nil
}

func (t *fakeTransport) JoinedMembers(ctx context.Context, roomID ref.RoomID) ([]ref.UserID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.membersErr != nil {
		return nil, t.membersErr
	}
	members, ok := t.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("fake: no such room %s", roomID)
	}
	return append([]ref.UserID(nil), members...), nil
}

func (t *fakeTransport) CreateRoom(ctx context.Context, config RoomConfig) (ref.RoomID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextRoom++
	roomID := ref.MustParseRoomID(fmt.Sprintf("!created%d:example.org", t.nextRoom))
	t.rooms[roomID] = []ref.UserID{t.bot}
	t.createdRooms = append(t.createdRooms, roomID)
	return roomID, nil
}

func (t *fakeTransport) JoinRoomAs(ctx context.Context, identity ref.UserID, roomID ref.RoomID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rooms[roomID] = append(t.rooms[roomID], identity)
	t.joins = append(t.joins, identity.String()+" "+roomID.String())
	return nil
}

func (t *fakeTransport) SendText(ctx context.Context, roomID ref.RoomID, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sentTexts[roomID] = append(t.sentTexts[roomID], text)
	return nil
}

func (t *fakeTransport) SetProfile(ctx context.Context, identity ref.UserID, profile Profile) error {
	return nil
}

func (t *fakeTransport) textsSent(roomID ref.RoomID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sentTexts[roomID])
}

func (t *fakeTransport) totalCreated() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.createdRooms)
}

// failingSendTransport wraps fakeTransport with SendText failures.
type failingSendTransport struct {
	*fakeTransport
}

func (t *failingSendTransport) SendText(ctx context.Context, roomID ref.RoomID, text string) error {
	return fmt.Errorf("fake: send failed")
}

// fakeForwarder records relayed messages.
type fakeForwarder struct {
	mu       sync.Mutex
	messages []relay.Message
	err      error
}

func (f *fakeForwarder) Forward(ctx context.Context, message relay.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}
