// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"log/slog"

	"github.com/smswire/smswire/lib/ref"
)

// defaultWelcomeText greets the owner of a newly created admin room.
const defaultWelcomeText = "Welcome to SMSWire. This room is your private control channel with the bridge."

// Classification is the outcome of classifying one room.
type Classification struct {
	// Administrative is true when the room is an admin room. False is
	// a valid terminal result, not an error: the room is ordinary and
	// the bridge ignores it.
	Administrative bool

	// Session is the admin session for the room. Set only when
	// Administrative is true.
	Session *AdminSession

	// NewlyRegistered is true when this call created the directory
	// entry (as opposed to confirming an existing one).
	NewlyRegistered bool
}

// ClassifyOptions modulates a classification attempt.
type ClassifyOptions struct {
	// ForcedOwner classifies the room as administrative for this owner
	// regardless of member count. Used when the bridge itself creates
	// an admin room and the owner has not joined yet.
	ForcedOwner ref.UserID

	// NewRoom marks the room as newly created rather than rediscovered
	// by a startup scan. Only newly created admin rooms receive the
	// welcome notice.
	NewRoom bool
}

// ClassifierConfig configures a Classifier.
type ClassifierConfig struct {
	Transport Transport
	Directory *Directory

	// Handler receives admin-room traffic for every session the
	// classifier creates. Nil means log-only sessions.
	Handler CommandHandler

	// WelcomeText overrides the notice sent to newly created admin
	// rooms. Empty uses the default.
	WelcomeText string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Classifier decides, for one room at a time, whether it is an
// administrative room, and creates or confirms its AdminSession.
// Classification is idempotent given stable membership: re-classifying
// a registered room confirms the existing entry without duplicating it
// or re-sending the welcome notice.
type Classifier struct {
	transport   Transport
	directory   *Directory
	handler     CommandHandler
	welcomeText string
	logger      *slog.Logger
}

// NewClassifier creates a classifier.
func NewClassifier(config ClassifierConfig) *Classifier {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	welcomeText := config.WelcomeText
	if welcomeText == "" {
		welcomeText = defaultWelcomeText
	}
	return &Classifier{
		transport:   config.Transport,
		directory:   config.Directory,
		handler:     config.Handler,
		welcomeText: welcomeText,
		logger:      logger,
	}
}

// Classify decides the category of one room from its live membership.
//
// A room is administrative when a forced owner is supplied, or when the
// membership is exactly the bot plus one other user (who becomes the
// owner). Any other member count is a valid non-administrative result:
// no session, no error. A two-member room that does not contain the bot
// is degenerate input and fails with an *InvariantError.
//
// On administrative classification the session is registered in the
// directory; when the directory already holds the room this is an
// idempotent confirmation. The welcome notice fires at most once per
// room creation — only when opts.NewRoom is set and the entry is new —
// and its delivery is best-effort: a send failure is logged, not
// returned, since the room is correctly classified regardless.
func (c *Classifier) Classify(ctx context.Context, roomID ref.RoomID, members []ref.UserID, opts ClassifyOptions) (Classification, error) {
	owner, administrative, err := c.resolveOwner(roomID, members, opts)
	if err != nil {
		return Classification{}, err
	}
	if !administrative {
		return Classification{}, nil
	}

	if existing, ok := c.directory.ByRoom(roomID); ok {
		// Confirmation path. Put would catch a divergent owner, but
		// checking here keeps the failure before any session
		// construction.
		if existing.Owner() != owner {
			return Classification{}, &InvariantError{
				RoomID: roomID,
				Owner:  owner,
				Reason: "room already registered to owner " + existing.Owner().String(),
			}
		}
		return Classification{Administrative: true, Session: existing}, nil
	}

	session := NewAdminSession(roomID, owner, c.handler, c.logger)
	if err := c.directory.Put(session); err != nil {
		return Classification{}, err
	}

	c.logger.Info("classified admin room",
		"room_id", roomID,
		"owner", owner,
		"new_room", opts.NewRoom,
	)

	if opts.NewRoom {
		if err := c.transport.SendText(ctx, roomID, c.welcomeText); err != nil {
			c.logger.Warn("welcome notice failed",
				"room_id", roomID,
				"owner", owner,
				"error", err,
			)
		}
	}

	return Classification{Administrative: true, Session: session, NewlyRegistered: true}, nil
}

// resolveOwner applies the membership rules: forced owner wins; exactly
// {bot, other} yields the other; anything else is non-administrative.
func (c *Classifier) resolveOwner(roomID ref.RoomID, members []ref.UserID, opts ClassifyOptions) (ref.UserID, bool, error) {
	if !opts.ForcedOwner.IsZero() {
		return opts.ForcedOwner, true, nil
	}

	if len(members) != 2 {
		return ref.UserID{}, false, nil
	}

	bot := c.transport.BotUserID()
	var other ref.UserID
	sawBot := false
	for _, member := range members {
		if member == bot {
			sawBot = true
			continue
		}
		other = member
	}
	if !sawBot {
		return ref.UserID{}, false, &InvariantError{
			RoomID: roomID,
			Reason: "two-member room does not contain the bridge bot",
		}
	}
	return other, true, nil
}
