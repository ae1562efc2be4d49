// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay is the boundary between the bridge core and the SMS
// carrier. The router hands every user message to a [Forwarder]; what
// happens past that point — carrier protocol, delivery receipts — is
// outside the bridge's concern.
//
// Two forwarders are provided. [LogSender] wraps a [Sender] that only
// logs, for deployments without a carrier hookup. [Outbox] is the
// production path: a durable SQLite-backed queue that deduplicates by
// room and event, assigns provider-facing message IDs, and drains
// through an injected Sender with clock-driven exponential backoff, so
// carrier outages never lose messages and bridge restarts never
// duplicate them.
package relay
