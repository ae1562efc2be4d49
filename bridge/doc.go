// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge implements the room classification and virtual-identity
// lifecycle engine at the heart of SMSWire.
//
// Every room the bridge bot occupies is either an administrative room (a
// private two-party channel between the bot and one real user, used for
// bridge control), a bridged conversation room (real user plus a virtual
// SMS identity), or an ordinary room the bridge ignores. There is no
// durable room-classification store: classification is re-derived from
// live membership on every startup scan, so it must be idempotent and
// consistent under concurrent membership events.
//
// Components, leaf first:
//
//   - [Identities] maps phone numbers to virtual Matrix users
//     (localpart "_sms_<digits>") and recognizes bridge-controlled
//     identities. Pure functions, no I/O.
//   - [AdminSession] is a per-owner administrative session bound to one
//     room. Immutable once created.
//   - [Directory] is the injectable registry of room → AdminSession with
//     an atomically-maintained owner → room index enforcing the
//     one-session-per-owner invariant.
//   - [Classifier] decides a room's category from its membership and
//     registers AdminSessions, emitting a one-time welcome notice for
//     newly created admin rooms.
//   - [Router] is the event entry point: it dispatches admin-room
//     traffic, accepts invites addressed to bridge-controlled
//     identities, and forwards user messages to the SMS relay boundary.
//     Failures are logged and never stop the event loop.
//
// The package talks to Matrix only through the [Transport] and
// [AccountDataStore] interfaces; [MatrixTransport] implements them over
// the messaging package.
package bridge
