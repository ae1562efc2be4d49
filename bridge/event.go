// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"github.com/smswire/smswire/lib/ref"

	"github.com/smswire/smswire/messaging"
)

// EventKind is the router's exhaustive view of an inbound event. Every
// event is exactly one kind; the router switches over all three.
type EventKind int

const (
	// KindOther covers event types the router has no interest in.
	KindOther EventKind = iota
	// KindMembership is an m.room.member state event (invite, join,
	// leave, ban).
	KindMembership
	// KindMessage is an m.room.message timeline event.
	KindMessage
)

func (k EventKind) String() string {
	switch k {
	case KindMembership:
		return "membership"
	case KindMessage:
		return "message"
	default:
		return "other"
	}
}

// Event is one inbound transport event, normalized for routing. Fields
// beyond RoomID, Type, and Sender are populated only where the kind
// carries them: Target and Membership for membership events, Body for
// messages.
type Event struct {
	RoomID  ref.RoomID
	EventID ref.EventID
	Type    ref.EventType
	Sender  ref.UserID

	// Target is the user a membership event applies to (the state key).
	// Zero for non-membership events or unparseable state keys.
	Target ref.UserID

	// Membership is the new membership state ("invite", "join", ...).
	Membership string

	// Body is the plain-text body of a message event.
	Body string
}

// Kind classifies the event for the router's dispatch switch.
func (e Event) Kind() EventKind {
	switch e.Type.String() {
	case "m.room.member":
		return KindMembership
	case "m.room.message":
		return KindMessage
	default:
		return KindOther
	}
}

// EventFromMatrix normalizes a raw Matrix event from the sync stream.
// Malformed content fields are dropped rather than erroring — the
// router treats events it cannot interpret as KindOther no-ops.
func EventFromMatrix(roomID ref.RoomID, event messaging.Event) Event {
	normalized := Event{
		RoomID:  roomID,
		EventID: event.EventID,
		Type:    event.Type,
		Sender:  event.Sender,
	}

	switch normalized.Kind() {
	case KindMembership:
		if event.StateKey != nil {
			if target, err := ref.ParseUserID(*event.StateKey); err == nil {
				normalized.Target = target
			}
		}
		if membership, ok := event.Content["membership"].(string); ok {
			normalized.Membership = membership
		}
	case KindMessage:
		if body, ok := event.Content["body"].(string); ok {
			normalized.Body = body
		}
	}
	return normalized
}
