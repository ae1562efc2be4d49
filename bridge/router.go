// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smswire/smswire/lib/ref"
	"github.com/smswire/smswire/relay"
)

// defaultTransportTimeout bounds the transport calls a single event can
// trigger (membership fetch, invite accept, room creation). A hung call
// delays that one room's classification, never the whole router.
const defaultTransportTimeout = 15 * time.Second

// RouterConfig configures a Router.
type RouterConfig struct {
	Transport  Transport
	Directory  *Directory
	Classifier *Classifier
	Identities Identities

	// Forwarder receives every message sent by a user other than the
	// bot. Nil disables relay dispatch.
	Forwarder relay.Forwarder

	// TransportTimeout overrides the per-call transport timeout.
	// Zero uses the 15s default.
	TransportTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Router is the entry point for inbound transport events. Each event is
// handled independently; the only cross-event state is the directory.
// OnEvent never panics and never returns an error — every failure is
// logged with room and sender context and the loop moves on, so one
// broken room cannot stall the bridge.
type Router struct {
	transport  Transport
	directory  *Directory
	classifier *Classifier
	identities Identities
	forwarder  relay.Forwarder
	timeout    time.Duration
	logger     *slog.Logger

	// creating serializes getOrCreate for each owner. The directory
	// check and the room creation are not atomic; without this guard
	// two concurrent calls for the same owner would both miss the
	// lookup and both create a room.
	creatingMu sync.Mutex
	creating   map[ref.UserID]*sync.Mutex
}

// NewRouter creates a router.
func NewRouter(config RouterConfig) *Router {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := config.TransportTimeout
	if timeout == 0 {
		timeout = defaultTransportTimeout
	}
	return &Router{
		transport:  config.Transport,
		directory:  config.Directory,
		classifier: config.Classifier,
		identities: config.Identities,
		forwarder:  config.Forwarder,
		timeout:    timeout,
		logger:     logger,
		creating:   make(map[ref.UserID]*sync.Mutex),
	}
}

// OnEvent routes one inbound event:
//
//   - A room with a registered AdminSession gets the event forwarded to
//     that session.
//   - A membership invite naming a bridge-controlled identity is
//     accepted on that identity's behalf, then the room is classified
//     with NewRoom=true.
//   - A message from anyone but the bot goes to the relay boundary.
//     This is independent of the admin dispatch — an admin-room
//     message reaches both.
//   - Anything else is a no-op.
func (r *Router) OnEvent(ctx context.Context, event Event) {
	if session, ok := r.directory.ByRoom(event.RoomID); ok {
		if err := session.HandleEvent(ctx, event); err != nil {
			r.logger.Error("admin session event failed",
				"room_id", event.RoomID,
				"owner", session.Owner(),
				"sender", event.Sender,
				"error", err,
			)
		}
	}

	switch event.Kind() {
	case KindMembership:
		if event.Membership == "invite" && r.identities.IsBridgeControlled(event.Target) {
			if err := r.acceptInvite(ctx, event); err != nil {
				r.logger.Error("invite acceptance failed",
					"room_id", event.RoomID,
					"invitee", event.Target,
					"sender", event.Sender,
					"error", err,
				)
			}
		}
	case KindMessage:
		if event.Sender != r.transport.BotUserID() && r.forwarder != nil {
			err := r.forwarder.Forward(ctx, relay.Message{
				RoomID:  event.RoomID,
				EventID: event.EventID,
				Sender:  event.Sender,
				Body:    event.Body,
			})
			if err != nil {
				r.logger.Error("relay forward failed",
					"room_id", event.RoomID,
					"sender", event.Sender,
					"error", err,
				)
			}
		}
	case KindOther:
		// No-op.
	}
}

// acceptInvite joins the room as the invited bridge-controlled identity
// and classifies the result as a newly created room.
func (r *Router) acceptInvite(ctx context.Context, event Event) error {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.transport.JoinRoomAs(callCtx, event.Target, event.RoomID); err != nil {
		return err
	}

	members, err := r.transport.JoinedMembers(callCtx, event.RoomID)
	if err != nil {
		return err
	}

	_, err = r.classifier.Classify(callCtx, event.RoomID, members, ClassifyOptions{NewRoom: true})
	return err
}

// StartupScan reconciles the directory with reality: every room the bot
// currently occupies is classified from its live membership, in no
// particular order, with NewRoom=false so no welcome notices fire for
// pre-existing rooms. Per-room failures are logged and skipped; the
// affected room is retried on the next relevant event or scan.
func (r *Router) StartupScan(ctx context.Context) error {
	listCtx, cancel := context.WithTimeout(ctx, r.timeout)
	rooms, err := r.transport.JoinedRooms(listCtx)
	cancel()
	if err != nil {
		return err
	}

	for _, roomID := range rooms {
		if err := r.classifyRoom(ctx, roomID); err != nil {
			r.logger.Error("startup classification failed",
				"room_id", roomID,
				"error", err,
			)
		}
	}

	r.logger.Info("startup scan complete",
		"rooms_scanned", len(rooms),
		"admin_rooms", r.directory.Len(),
	)
	return nil
}

func (r *Router) classifyRoom(ctx context.Context, roomID ref.RoomID) error {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	members, err := r.transport.JoinedMembers(callCtx, roomID)
	if err != nil {
		return err
	}
	_, err = r.classifier.Classify(callCtx, roomID, members, ClassifyOptions{})
	return err
}

// GetOrCreateAdminRoom returns the owner's admin session, creating a
// fresh private room when none exists. Creation is serialized per
// owner: concurrent calls for the same owner produce exactly one room,
// and a directory entry committed by a racing startup scan wins over a
// later creation attempt.
func (r *Router) GetOrCreateAdminRoom(ctx context.Context, owner ref.UserID) (*AdminSession, error) {
	if session, ok := r.directory.ByOwner(owner); ok {
		return session, nil
	}

	lock := r.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock: a concurrent call or scan may have
	// committed an entry while we waited.
	if session, ok := r.directory.ByOwner(owner); ok {
		return session, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	roomID, err := r.transport.CreateRoom(callCtx, RoomConfig{
		Name:     "SMSWire",
		Topic:    "SMSWire bridge control channel",
		Invite:   []ref.UserID{owner},
		Preset:   "trusted_private_chat",
		IsDirect: true,
	})
	if err != nil {
		return nil, err
	}

	// The owner has only been invited, so membership alone cannot
	// classify the room yet; the forced owner carries the intent.
	classification, err := r.classifier.Classify(callCtx, roomID, []ref.UserID{r.transport.BotUserID()}, ClassifyOptions{
		ForcedOwner: owner,
		NewRoom:     true,
	})
	if err != nil {
		return nil, err
	}
	return classification.Session, nil
}

func (r *Router) ownerLock(owner ref.UserID) *sync.Mutex {
	r.creatingMu.Lock()
	defer r.creatingMu.Unlock()
	lock, ok := r.creating[owner]
	if !ok {
		lock = &sync.Mutex{}
		r.creating[owner] = lock
	}
	return lock
}
