// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/smswire/smswire/lib/clock"
	"github.com/smswire/smswire/lib/codec"
	"github.com/smswire/smswire/lib/ref"
	"github.com/smswire/smswire/lib/sqlitepool"
)

// ResolveFunc determines the SMS destination for a bridged message.
// Returning ok=false means the room is not a bridged conversation (no
// virtual identity member); the message is dropped without error.
type ResolveFunc func(ctx context.Context, message Message) (ref.PhoneNumber, bool, error)

// outboxSchema holds queued messages. dedup_key is a hash of
// (room, event) so a re-delivered sync event inserts nothing. The
// payload is the CBOR-encoded outbound record; rows survive process
// restarts and are drained in arrival order.
const outboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
	dedup_key    BLOB PRIMARY KEY,
	payload      BLOB NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	next_attempt INTEGER NOT NULL,
	failed       INTEGER NOT NULL DEFAULT 0,
	created      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS outbox_pending ON outbox (failed, next_attempt);
`

// drainBatchSize caps how many rows one drain pass loads. Keeps a
// burst of queued messages from holding a connection for the whole
// carrier round-trip sequence.
const drainBatchSize = 32

// maxBackoffShift caps the exponential backoff doubling.
const maxBackoffShift = 10

// outboundRecord is the durable form of a queued SMS.
type outboundRecord struct {
	MessageID string          `cbor:"message_id"`
	To        ref.PhoneNumber `cbor:"to"`
	Sender    ref.UserID      `cbor:"sender"`
	Body      string          `cbor:"body"`
}

// OutboxConfig configures an Outbox.
type OutboxConfig struct {
	Pool    *sqlitepool.Pool
	Sender  Sender
	Resolve ResolveFunc

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// PollInterval is how often the worker checks for due rows.
	// Default 1s.
	PollInterval time.Duration

	// RetryInterval is the base delay after a failed delivery attempt;
	// backoff doubles per attempt. Default 30s.
	RetryInterval time.Duration

	// MaxAttempts marks a row failed after this many delivery
	// attempts. Default 8. Failed rows are kept for inspection and
	// never retried.
	MaxAttempts int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Outbox is a durable Forwarder: messages are committed to SQLite on
// Forward and drained to the carrier by Run. Deduplication by (room,
// event) makes Forward idempotent across sync re-deliveries and
// process restarts.
type Outbox struct {
	pool          *sqlitepool.Pool
	sender        Sender
	resolve       ResolveFunc
	clk           clock.Clock
	pollInterval  time.Duration
	retryInterval time.Duration
	maxAttempts   int
	logger        *slog.Logger
}

var _ Forwarder = (*Outbox)(nil)

// NewOutbox creates the outbox and its schema.
func NewOutbox(ctx context.Context, config OutboxConfig) (*Outbox, error) {
	if config.Pool == nil {
		return nil, fmt.Errorf("relay: Pool is required")
	}
	if config.Sender == nil {
		return nil, fmt.Errorf("relay: Sender is required")
	}
	if config.Resolve == nil {
		return nil, fmt.Errorf("relay: Resolve is required")
	}

	outbox := &Outbox{
		pool:          config.Pool,
		sender:        config.Sender,
		resolve:       config.Resolve,
		clk:           config.Clock,
		pollInterval:  config.PollInterval,
		retryInterval: config.RetryInterval,
		maxAttempts:   config.MaxAttempts,
		logger:        config.Logger,
	}
	if outbox.clk == nil {
		outbox.clk = clock.Real()
	}
	if outbox.pollInterval <= 0 {
		outbox.pollInterval = time.Second
	}
	if outbox.retryInterval <= 0 {
		outbox.retryInterval = 30 * time.Second
	}
	if outbox.maxAttempts <= 0 {
		outbox.maxAttempts = 8
	}
	if outbox.logger == nil {
		outbox.logger = slog.Default()
	}

	conn, err := outbox.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer outbox.pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, outboxSchema, nil); err != nil {
		return nil, fmt.Errorf("relay: creating outbox schema: %w", err)
	}
	return outbox, nil
}

// dedupKey hashes the room and event IDs into the primary key.
func dedupKey(message Message) []byte {
	hash := blake3.Sum256([]byte(message.RoomID.String() + "\x00" + message.EventID.String()))
	return hash[:]
}

// Forward resolves the destination and commits the message to the
// outbox. Messages from rooms without a virtual identity member are
// dropped — they are ordinary chat, not bridged conversations.
func (o *Outbox) Forward(ctx context.Context, message Message) error {
	to, ok, err := o.resolve(ctx, message)
	if err != nil {
		return fmt.Errorf("relay: resolving destination for %s: %w", message.RoomID, err)
	}
	if !ok {
		o.logger.Debug("message not bridged, dropping",
			"room_id", message.RoomID,
			"sender", message.Sender,
		)
		return nil
	}

	payload, err := codec.Marshal(outboundRecord{
		MessageID: uuid.NewString(),
		To:        to,
		Sender:    message.Sender,
		Body:      message.Body,
	})
	if err != nil {
		return fmt.Errorf("relay: encoding outbound record: %w", err)
	}

	conn, err := o.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer o.pool.Put(conn)

	now := o.clk.Now().UnixMilli()
	err = sqlitex.Execute(conn,
		`INSERT INTO outbox (dedup_key, payload, next_attempt, created)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (dedup_key) DO NOTHING`,
		&sqlitex.ExecOptions{
			Args: []any{dedupKey(message), payload, now, now},
		})
	if err != nil {
		return fmt.Errorf("relay: enqueueing message for %s: %w", message.RoomID, err)
	}
	return nil
}

// Run drains the outbox until ctx is cancelled. Delivery failures are
// retried with exponential backoff; the loop itself never fails on a
// carrier error.
func (o *Outbox) Run(ctx context.Context) error {
	ticker := o.clk.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.DrainOnce(ctx); err != nil {
				o.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// drainRow is one due row loaded from the outbox.
type drainRow struct {
	key      []byte
	record   outboundRecord
	attempts int
}

// DrainOnce delivers every due row once. Exposed so the operator CLI
// can flush the queue on demand; Run calls it on each poll tick.
func (o *Outbox) DrainOnce(ctx context.Context) error {
	conn, err := o.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer o.pool.Put(conn)

	now := o.clk.Now().UnixMilli()
	var rows []drainRow
	err = sqlitex.Execute(conn,
		`SELECT dedup_key, payload, attempts FROM outbox
		 WHERE failed = 0 AND next_attempt <= ?
		 ORDER BY created LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{now, drainBatchSize},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				key := make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, key)
				payload := make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, payload)

				var record outboundRecord
				if err := codec.Unmarshal(payload, &record); err != nil {
					return fmt.Errorf("decoding outbox row: %w", err)
				}
				rows = append(rows, drainRow{
					key:      key,
					record:   record,
					attempts: int(stmt.ColumnInt64(2)),
				})
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("relay: loading due outbox rows: %w", err)
	}

	for _, row := range rows {
		sendErr := o.sender.Send(ctx, OutboundSMS{
			MessageID: row.record.MessageID,
			To:        row.record.To,
			Body:      row.record.Body,
		})
		if sendErr == nil {
			err = sqlitex.Execute(conn, `DELETE FROM outbox WHERE dedup_key = ?`,
				&sqlitex.ExecOptions{Args: []any{row.key}})
			if err != nil {
				return fmt.Errorf("relay: removing delivered row: %w", err)
			}
			continue
		}

		attempts := row.attempts + 1
		if attempts >= o.maxAttempts {
			o.logger.Error("sms delivery failed permanently",
				"message_id", row.record.MessageID,
				"to", row.record.To,
				"attempts", attempts,
				"error", sendErr,
			)
			err = sqlitex.Execute(conn,
				`UPDATE outbox SET attempts = ?, failed = 1 WHERE dedup_key = ?`,
				&sqlitex.ExecOptions{Args: []any{attempts, row.key}})
			if err != nil {
				return fmt.Errorf("relay: marking row failed: %w", err)
			}
			continue
		}

		shift := attempts - 1
		if shift > maxBackoffShift {
			shift = maxBackoffShift
		}
		backoff := o.retryInterval << shift
		o.logger.Warn("sms delivery failed, will retry",
			"message_id", row.record.MessageID,
			"to", row.record.To,
			"attempts", attempts,
			"retry_in", backoff,
			"error", sendErr,
		)
		err = sqlitex.Execute(conn,
			`UPDATE outbox SET attempts = ?, next_attempt = ? WHERE dedup_key = ?`,
			&sqlitex.ExecOptions{Args: []any{attempts, o.clk.Now().Add(backoff).UnixMilli(), row.key}})
		if err != nil {
			return fmt.Errorf("relay: rescheduling row: %w", err)
		}
	}
	return nil
}

// Stats reports queue depth for operators.
type Stats struct {
	Pending int
	Failed  int
}

// Stats counts pending and permanently failed rows.
func (o *Outbox) Stats(ctx context.Context) (Stats, error) {
	conn, err := o.pool.Take(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer o.pool.Put(conn)

	var stats Stats
	err = sqlitex.Execute(conn,
		`SELECT failed, COUNT(*) FROM outbox GROUP BY failed`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if stmt.ColumnInt64(0) == 0 {
					stats.Pending = int(stmt.ColumnInt64(1))
				} else {
					stats.Failed = int(stmt.ColumnInt64(1))
				}
				return nil
			},
		})
	if err != nil {
		return Stats{}, fmt.Errorf("relay: counting outbox rows: %w", err)
	}
	return stats, nil
}
