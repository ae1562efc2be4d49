// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"

	"github.com/smswire/smswire/lib/ref"
)

// Transport is the narrow view of the chat network the bridge core
// consumes. Any call may fail with a network or auth error; the core
// never retries internally — a failed classification attempt is
// abandoned without mutating the directory and retried on the next
// relevant event or startup scan.
type Transport interface {
	// BotUserID returns the bridge bot's own identity.
	BotUserID() ref.UserID

	// JoinedRooms lists every room the bot currently occupies.
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)

	// JoinedMembers returns the currently-joined members of a room.
	// This is the classification input: invited-but-not-joined users
	// are excluded.
	JoinedMembers(ctx context.Context, roomID ref.RoomID) ([]ref.UserID, error)

	// CreateRoom creates a room as the bot and returns its ID.
	CreateRoom(ctx context.Context, config RoomConfig) (ref.RoomID, error)

	// JoinRoomAs joins a room on behalf of a bridge-controlled
	// identity (the bot or a virtual SMS identity).
	JoinRoomAs(ctx context.Context, identity ref.UserID, roomID ref.RoomID) error

	// SendText delivers a text notice to a room as the bot.
	// Best-effort: callers log failures and carry on.
	SendText(ctx context.Context, roomID ref.RoomID, text string) error

	// SetProfile updates a bridge-controlled identity's profile.
	SetProfile(ctx context.Context, identity ref.UserID, profile Profile) error
}

// RoomConfig holds the parameters for creating a room through the
// transport.
type RoomConfig struct {
	Name     string
	Topic    string
	Invite   []ref.UserID
	Preset   string // "private_chat", "trusted_private_chat", "public_chat"
	IsDirect bool
}

// Profile is the mutable profile surface of a bridge-controlled
// identity. Empty fields are left unchanged.
type Profile struct {
	DisplayName string
	AvatarURL   string
}

// AccountDataStore persists small JSON records keyed by type, scoped to
// the bot account. Reads of an absent key fail with a not-found error
// from the underlying store; callers treat that as "empty record".
type AccountDataStore interface {
	AccountData(ctx context.Context, key string, v any) error
	SetAccountData(ctx context.Context, key string, v any) error
}
