// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"log/slog"

	"github.com/smswire/smswire/lib/ref"
)

// CommandHandler processes traffic arriving in an administrative room.
// The bridge core only provides the plumbing: which room is an admin
// room and whose it is. What the commands mean is the handler's
// business.
type CommandHandler interface {
	Handle(ctx context.Context, session *AdminSession, event Event) error
}

// CommandHandlerFunc adapts a function to the CommandHandler interface.
type CommandHandlerFunc func(ctx context.Context, session *AdminSession, event Event) error

func (f CommandHandlerFunc) Handle(ctx context.Context, session *AdminSession, event Event) error {
	return f(ctx, session, event)
}

// AdminSession binds one owner to their administrative room. Sessions
// are immutable once created: re-pointing a session at a different room
// or owner is not supported, and a session lives until the directory it
// is registered in is discarded (process restart).
type AdminSession struct {
	roomID  ref.RoomID
	owner   ref.UserID
	handler CommandHandler
	logger  *slog.Logger
}

// NewAdminSession creates a session for an owner's admin room. handler
// may be nil, in which case admin-room traffic is logged and otherwise
// ignored. logger may be nil to use slog.Default().
func NewAdminSession(roomID ref.RoomID, owner ref.UserID, handler CommandHandler, logger *slog.Logger) *AdminSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminSession{
		roomID:  roomID,
		owner:   owner,
		handler: handler,
		logger:  logger,
	}
}

// RoomID returns the administrative room this session is bound to.
func (s *AdminSession) RoomID() ref.RoomID {
	return s.roomID
}

// Owner returns the real user this session belongs to.
func (s *AdminSession) Owner() ref.UserID {
	return s.owner
}

// HandleEvent processes one event arriving in the admin room. Only
// messages from the owner reach the command handler; everything else
// (state events, the bot's own messages, third parties) is ignored.
func (s *AdminSession) HandleEvent(ctx context.Context, event Event) error {
	if event.Kind() != KindMessage {
		return nil
	}
	if event.Sender != s.owner {
		return nil
	}
	if s.handler == nil {
		s.logger.Info("admin room message",
			"room_id", s.roomID,
			"owner", s.owner,
			"body", event.Body,
		)
		return nil
	}
	return s.handler.Handle(ctx, s, event)
}
