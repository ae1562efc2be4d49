// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"log/slog"

	"github.com/smswire/smswire/lib/ref"
)

// Message is one chat message bound for the SMS network. EventID makes
// the message identifiable across restarts: the outbox deduplicates on
// (room, event) so re-delivered sync events enqueue nothing.
type Message struct {
	RoomID  ref.RoomID
	EventID ref.EventID
	Sender  ref.UserID
	Body    string
}

// Forwarder accepts messages leaving the chat network. The bridge
// router depends only on this interface.
type Forwarder interface {
	Forward(ctx context.Context, message Message) error
}

// OutboundSMS is a message as handed to the carrier: destination phone
// number, text, and a stable provider-facing ID for idempotent
// submission.
type OutboundSMS struct {
	MessageID string
	To        ref.PhoneNumber
	Body      string
}

// Sender submits one SMS to the carrier. Implementations are provided
// by carrier integrations; [NewLogSender] is the no-carrier stand-in.
type Sender interface {
	Send(ctx context.Context, sms OutboundSMS) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, sms OutboundSMS) error

func (f SenderFunc) Send(ctx context.Context, sms OutboundSMS) error {
	return f(ctx, sms)
}

// LogSender is a Sender that logs each SMS instead of delivering it.
// Used when no carrier is configured, so the rest of the pipeline can
// be exercised end to end.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. logger may be nil to use
// slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, sms OutboundSMS) error {
	s.logger.Info("outbound sms (no carrier configured)",
		"message_id", sms.MessageID,
		"to", sms.To,
		"bytes", len(sms.Body),
	)
	return nil
}
