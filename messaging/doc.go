// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API for the bridge.
//
// The package provides two core types. [Client] is an unauthenticated
// Matrix client that handles registration (token-authenticated via the
// MSC3231 UIAA flow) and login, returning authenticated sessions.
// Client holds the homeserver URL and HTTP transport, shared across all
// sessions derived from it.
//
// [DirectSession] wraps a Client with an access token for authenticated
// operations: room management (create, join, leave, invite, kick),
// messaging, membership queries (joined rooms, joined members), profile
// updates, per-user account data, incremental sync with long-polling,
// and identity verification (WhoAmI).
//
// Sessions are lightweight (a pointer to the parent Client plus an
// access token in mmap-backed secret.Buffer memory) and safe to create
// in large numbers. The bridge holds one Client and one session per
// virtual SMS identity plus one for the bot. Access tokens are locked
// against swap and excluded from core dumps; callers must call
// DirectSession.Close to release the protected memory.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status
// code. [IsMatrixError] tests for a specific error code. Request URLs
// are built by string concatenation rather than url.URL to avoid
// double-encoding of path segments that contain URL-encoded characters.
//
// [EventStream] drives the bridge's main loop: it long-polls /sync and
// delivers room events to a callback, retrying transient failures and
// recycling pooled connections after network errors.
package messaging
