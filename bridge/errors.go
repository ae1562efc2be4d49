// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"

	"github.com/smswire/smswire/lib/ref"
)

// InvariantError reports a detected divergence in the bridge's room
// bookkeeping: an admin room re-classified with a different owner, a
// second admin room materializing for an owner that already has one, or
// a degenerate member set that names two participants without the bot.
//
// Invariant violations are never silently coerced. The offending room
// stays unregistered and the classification attempt fails; the next
// relevant event or startup scan retries it.
type InvariantError struct {
	RoomID ref.RoomID
	Owner  ref.UserID
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("bridge: invariant violation in room %s (owner %s): %s", e.RoomID, e.Owner, e.Reason)
}

// IsInvariantError reports whether err is an *InvariantError.
func IsInvariantError(err error) bool {
	var invariantErr *InvariantError
	return errors.As(err, &invariantErr)
}
