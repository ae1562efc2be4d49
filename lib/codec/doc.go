// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides SMSWire's standard CBOR encoding.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical value always produces identical bytes, which is what
// makes stored outbox payloads safe to hash and compare.
//
// Types implementing encoding.TextMarshaler (ref.UserID, ref.RoomID,
// ref.PhoneNumber, ...) serialize as CBOR text strings, mirroring their
// JSON representation. The decoder ignores unknown fields for forward
// compatibility.
package codec
