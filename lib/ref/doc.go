// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated identifier value types for SMSWire.
//
// Matrix identifiers ([UserID], [RoomID], [EventID], [ServerName]) are
// opaque strings with a sigil-and-server structure defined by the Matrix
// spec. They are parsed and validated once at the boundary (config, CLI
// flags, API responses) and passed through the rest of the bridge as
// immutable typed values. The zero value of each type is invalid; use
// IsZero to check.
//
// [PhoneNumber] is the telephony-side identifier: a canonical string of
// digits (E.164 without the leading '+'). The bridge maps each phone
// number bijectively to a virtual Matrix user; see the bridge package's
// Identities type for the naming rule.
//
// All types implement encoding.TextMarshaler and TextUnmarshaler, so
// encoding/json validates identifiers automatically at deserialization
// boundaries such as /sync responses.
package ref
