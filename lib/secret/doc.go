// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data such
// as Matrix access tokens, account passwords, and registration tokens.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, so secret material does not persist after release.
//
// The bridge daemon holds one long-lived token buffer for the bot
// account plus one per provisioned virtual identity; buffers are cheap
// enough for that to be a non-concern.
//
// Access via [Buffer.Bytes] (slice into the mmap region) or
// [Buffer.String] (heap copy for API boundaries such as Authorization
// headers). After Close, any access panics. Close is idempotent.
//
// Depends only on golang.org/x/sys/unix.
package secret
