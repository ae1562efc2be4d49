// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/smswire/smswire/lib/ref"
)

// StreamFilter configures what events an EventStream receives from /sync.
//
// A nil *StreamFilter means "all room events" (state and timeline).
// Presence and account data sections are always suppressed — the bridge
// reads account data explicitly, never from the sync stream.
type StreamFilter struct {
	// TimelineTypes restricts timeline events to these Matrix event types
	// (e.g., "m.room.message"). An empty slice means all timeline types.
	TimelineTypes []string `json:"timeline_types,omitempty"`

	// TimelineLimit caps the number of timeline events per /sync response.
	// Zero means no explicit limit (server default).
	TimelineLimit int `json:"timeline_limit,omitempty"`
}

// buildInlineFilter constructs the inline JSON filter string for /sync.
func buildInlineFilter(filter *StreamFilter) string {
	roomFilter := map[string]any{}

	if filter != nil {
		if len(filter.TimelineTypes) > 0 {
			timeline := map[string]any{"types": filter.TimelineTypes}
			if filter.TimelineLimit > 0 {
				timeline["limit"] = filter.TimelineLimit
			}
			roomFilter["timeline"] = timeline
		} else if filter.TimelineLimit > 0 {
			roomFilter["timeline"] = map[string]any{"limit": filter.TimelineLimit}
		}
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}

	data, _ := json.Marshal(top)
	return string(data)
}

// maxSyncRetries is the number of consecutive /sync failures allowed
// before Run returns an error. Each retry uses a 1-second server-side
// timeout so the HTTP round-trip itself provides backoff.
const maxSyncRetries = 5

// longPollTimeout is the server-side long-poll hold time in
// milliseconds for normal /sync calls. The server holds the connection
// for up to this duration, returning immediately when new events
// arrive. 30 seconds matches the Matrix client-server spec
// recommendation.
const longPollTimeout = 30000

// retryTimeout is the server-side timeout in milliseconds used after
// a /sync error. Short so the retry completes quickly and the next
// attempt can proceed.
const retryTimeout = 1000

// EventStream drives the bridge's main loop over the Matrix /sync
// stream. It long-polls the homeserver and delivers every room event
// (state before timeline, matching server delivery order) to a handler
// callback, tagged with the room it arrived in.
//
// All waiting uses Matrix /sync long-polling: the server holds the
// connection until new events arrive, then returns immediately. There
// is no client-side polling interval.
//
// EventStream is not safe for concurrent use by multiple goroutines.
type EventStream struct {
	session   *DirectSession
	logger    *slog.Logger
	filter    string // inline JSON /sync filter
	nextBatch string // sync token at the current position
}

// NewEventStream captures the current position in the Matrix /sync
// stream. The returned stream only delivers events arriving after this
// call — historical events are handled separately by the startup scan,
// which classifies rooms from live membership rather than replaying
// the timeline.
//
// This performs an immediate /sync (timeout=0) to obtain the current
// next_batch token without blocking. The token anchors all subsequent
// long-poll calls.
func NewEventStream(ctx context.Context, session *DirectSession, filter *StreamFilter, logger *slog.Logger) (*EventStream, error) {
	if logger == nil {
		logger = slog.Default()
	}
	inlineFilter := buildInlineFilter(filter)
	response, err := session.Sync(ctx, SyncOptions{
		SetTimeout: true,
		Timeout:    0,
		Filter:     inlineFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: initial sync for event stream: %w", err)
	}
	return &EventStream{
		session:   session,
		logger:    logger,
		filter:    inlineFilter,
		nextBatch: response.NextBatch,
	}, nil
}

// Run long-polls /sync and invokes handle for each event until ctx is
// cancelled or /sync fails maxSyncRetries consecutive times. Events
// from invited rooms are delivered as m.room.member invite state so
// the handler can auto-join; joined rooms deliver state then timeline.
//
// Errors returned by handle do not stop the stream — the handler owns
// its own error policy (the bridge router logs and continues).
func (s *EventStream) Run(ctx context.Context, handle func(roomID ref.RoomID, event Event)) error {
	var syncRetries int

	for {
		// On retry after a sync error, use a short server-side
		// timeout (1s) so the HTTP round-trip itself provides
		// backoff. On first attempt or after success, use the
		// normal 30s long-poll hold.
		syncTimeout := longPollTimeout
		if syncRetries > 0 {
			syncTimeout = retryTimeout
		}
		response, err := s.session.Sync(ctx, SyncOptions{
			Since:      s.nextBatch,
			SetTimeout: true,
			Timeout:    syncTimeout,
			Filter:     s.filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("messaging: event stream stopped: %w", ctx.Err())
			}
			syncRetries++
			// TCP-level errors (connection reset, EOF) often indicate
			// a poisoned connection in Go's HTTP pool. Drop idle
			// connections so the next attempt opens a fresh socket.
			s.session.CloseIdleConnections()
			if syncRetries > maxSyncRetries {
				return fmt.Errorf("messaging: sync failed %d consecutive times: %w", syncRetries, err)
			}
			s.logger.Debug("event stream sync error, retrying",
				"attempt", syncRetries,
				"max_attempts", maxSyncRetries,
				"error", err,
			)
			continue
		}
		syncRetries = 0
		s.nextBatch = response.NextBatch

		for roomID, invited := range response.Rooms.Invite {
			for _, event := range invited.InviteState.Events {
				handle(roomID, event)
			}
		}
		for roomID, joined := range response.Rooms.Join {
			for _, event := range joined.State.Events {
				handle(roomID, event)
			}
			for _, event := range joined.Timeline.Events {
				handle(roomID, event)
			}
		}
	}
}

// SyncPosition returns the current sync stream position token.
func (s *EventStream) SyncPosition() string {
	return s.nextBatch
}
