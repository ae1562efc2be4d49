// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"strings"

	"github.com/smswire/smswire/lib/ref"
)

// virtualLocalpartPrefix marks the localparts of virtual SMS identities.
// "@_sms_15551234567:example.org" represents the phone number
// 15551234567 on the example.org bridge.
const virtualLocalpartPrefix = "_sms_"

// Identities is the deterministic mapping between phone numbers and
// virtual Matrix identities, scoped to one homeserver. All methods are
// pure: no I/O, no side effects, no failure modes.
type Identities struct {
	server ref.ServerName
	bot    ref.UserID
}

// NewIdentities creates the identity mapping for a homeserver. The bot
// localpart names the bridge's own service account.
func NewIdentities(server ref.ServerName, botLocalpart string) Identities {
	return Identities{
		server: server,
		bot:    ref.MatrixUserID(botLocalpart, server),
	}
}

// Bot returns the bridge bot's user ID.
func (i Identities) Bot() ref.UserID {
	return i.bot
}

// Server returns the homeserver the bridge's identities live on.
func (i Identities) Server() ref.ServerName {
	return i.server
}

// UserForNumber returns the virtual Matrix identity representing a
// phone number. Deterministic and total: the same number always yields
// the same identity, which is how invites addressed to virtual
// identities are recognized without any lookup table.
func (i Identities) UserForNumber(number ref.PhoneNumber) ref.UserID {
	return ref.MatrixUserID(virtualLocalpartPrefix+number.String(), i.server)
}

// NumberForUser is the inverse of UserForNumber. The second return is
// false when the identity is not a virtual SMS identity on this
// bridge's homeserver.
func (i Identities) NumberForUser(userID ref.UserID) (ref.PhoneNumber, bool) {
	if userID.Server() != i.server.String() {
		return ref.PhoneNumber{}, false
	}
	digits, ok := strings.CutPrefix(userID.Localpart(), virtualLocalpartPrefix)
	if !ok {
		return ref.PhoneNumber{}, false
	}
	number, err := ref.ParsePhoneNumber(digits)
	if err != nil {
		return ref.PhoneNumber{}, false
	}
	return number, true
}

// IsBridgeControlled reports whether an identity belongs to the bridge:
// either the bot itself or a virtual SMS identity on the configured
// homeserver. Returns false (never an error) for zero or foreign
// identities.
func (i Identities) IsBridgeControlled(userID ref.UserID) bool {
	if userID.IsZero() {
		return false
	}
	if userID == i.bot {
		return true
	}
	_, ok := i.NumberForUser(userID)
	return ok
}
