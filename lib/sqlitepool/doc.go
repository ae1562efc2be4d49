// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides SMSWire's standard SQLite connection pool.
//
// The relay outbox uses this package for its durable message queue. It
// wraps zombiezen.com/go/sqlite with production defaults: WAL journal
// mode, NORMAL synchronous (transactions survive process crashes without
// fsync-per-commit overhead — acceptable because undelivered messages
// are re-derivable from Matrix room history), memory-mapped reads, and
// a busy timeout so write contention degrades gracefully instead of
// returning SQLITE_BUSY.
//
// The pool is built on sqlitex.Pool, which manages a fixed-size set of
// connections. Callers [Pool.Take] a connection, perform work, and
// [Pool.Put] it back. Connections are NOT safe for concurrent use —
// each goroutine must hold its own connection for the duration of its
// work.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/lib/smswire/outbox.db",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
package sqlitepool
