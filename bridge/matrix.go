// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smswire/smswire/lib/ref"
	"github.com/smswire/smswire/messaging"
)

// SessionProvider supplies an authenticated Matrix session for a
// bridge-controlled identity. The daemon's provider reads virtual
// identity tokens from the bot's account data (written at provision
// time by the operator CLI).
type SessionProvider interface {
	SessionFor(ctx context.Context, identity ref.UserID) (*messaging.DirectSession, error)
}

// MatrixTransport implements Transport and AccountDataStore over the
// messaging package: bot-level calls use the bot's session, identity
// calls (join, profile) use per-identity sessions from the provider.
type MatrixTransport struct {
	bot      *messaging.DirectSession
	sessions SessionProvider
	logger   *slog.Logger
}

// NewMatrixTransport creates the production transport. sessions may be
// nil when no virtual identities are provisioned; JoinRoomAs and
// SetProfile then only work for the bot itself.
func NewMatrixTransport(bot *messaging.DirectSession, sessions SessionProvider, logger *slog.Logger) *MatrixTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatrixTransport{
		bot:      bot,
		sessions: sessions,
		logger:   logger,
	}
}

var (
	_ Transport        = (*MatrixTransport)(nil)
	_ AccountDataStore = (*MatrixTransport)(nil)
)

func (t *MatrixTransport) BotUserID() ref.UserID {
	return t.bot.UserID()
}

func (t *MatrixTransport) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	return t.bot.JoinedRooms(ctx)
}

func (t *MatrixTransport) JoinedMembers(ctx context.Context, roomID ref.RoomID) ([]ref.UserID, error) {
	return t.bot.JoinedMembers(ctx, roomID)
}

func (t *MatrixTransport) CreateRoom(ctx context.Context, config RoomConfig) (ref.RoomID, error) {
	response, err := t.bot.CreateRoom(ctx, messaging.CreateRoomRequest{
		Name:     config.Name,
		Topic:    config.Topic,
		Invite:   config.Invite,
		Preset:   config.Preset,
		IsDirect: config.IsDirect,
	})
	if err != nil {
		return ref.RoomID{}, err
	}
	return response.RoomID, nil
}

func (t *MatrixTransport) JoinRoomAs(ctx context.Context, identity ref.UserID, roomID ref.RoomID) error {
	session, err := t.sessionFor(ctx, identity)
	if err != nil {
		return err
	}
	_, err = session.JoinRoom(ctx, roomID)
	return err
}

func (t *MatrixTransport) SendText(ctx context.Context, roomID ref.RoomID, text string) error {
	_, err := t.bot.SendMessage(ctx, roomID, messaging.NewNoticeMessage(text))
	return err
}

func (t *MatrixTransport) SetProfile(ctx context.Context, identity ref.UserID, profile Profile) error {
	session, err := t.sessionFor(ctx, identity)
	if err != nil {
		return err
	}
	if profile.DisplayName != "" {
		if err := session.SetDisplayName(ctx, profile.DisplayName); err != nil {
			return err
		}
	}
	if profile.AvatarURL != "" {
		if err := session.SetAvatarURL(ctx, profile.AvatarURL); err != nil {
			return err
		}
	}
	return nil
}

func (t *MatrixTransport) AccountData(ctx context.Context, key string, v any) error {
	return t.bot.AccountData(ctx, key, v)
}

func (t *MatrixTransport) SetAccountData(ctx context.Context, key string, v any) error {
	return t.bot.SetAccountData(ctx, key, v)
}

func (t *MatrixTransport) sessionFor(ctx context.Context, identity ref.UserID) (*messaging.DirectSession, error) {
	if identity == t.bot.UserID() {
		return t.bot, nil
	}
	if t.sessions == nil {
		return nil, fmt.Errorf("bridge: no session provider for identity %s", identity)
	}
	return t.sessions.SessionFor(ctx, identity)
}

// identityTokenKey is the account data type under which the operator
// CLI stores virtual identity access tokens, keyed by user ID.
const identityTokenKey = "org.smswire.identity_tokens"

// IdentitySessions is a SessionProvider backed by the bot's account
// data: provisioning a phone number (smswire-admin provision) registers
// the virtual account and records its access token under
// org.smswire.identity_tokens. Sessions are built lazily and cached.
type IdentitySessions struct {
	client *messaging.Client
	store  AccountDataStore

	mu    sync.Mutex
	cache map[ref.UserID]*messaging.DirectSession
}

// NewIdentitySessions creates a provider reading tokens from store.
func NewIdentitySessions(client *messaging.Client, store AccountDataStore) *IdentitySessions {
	return &IdentitySessions{
		client: client,
		store:  store,
		cache:  make(map[ref.UserID]*messaging.DirectSession),
	}
}

// SessionFor returns the cached session for an identity, creating it
// from the stored token on first use.
func (p *IdentitySessions) SessionFor(ctx context.Context, identity ref.UserID) (*messaging.DirectSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if session, ok := p.cache[identity]; ok {
		return session, nil
	}

	var tokens map[string]string
	if err := p.store.AccountData(ctx, identityTokenKey, &tokens); err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
			return nil, fmt.Errorf("bridge: identity %s is not provisioned", identity)
		}
		return nil, fmt.Errorf("bridge: loading identity tokens: %w", err)
	}

	token, ok := tokens[identity.String()]
	if !ok {
		return nil, fmt.Errorf("bridge: identity %s is not provisioned", identity)
	}

	session, err := p.client.SessionFromToken(identity, token)
	if err != nil {
		return nil, err
	}
	p.cache[identity] = session
	return session, nil
}

// StoreToken records a virtual identity's access token in account
// data, merging with previously stored tokens. Called by the operator
// CLI at provision time.
func StoreToken(ctx context.Context, store AccountDataStore, identity ref.UserID, token string) error {
	var tokens map[string]string
	err := store.AccountData(ctx, identityTokenKey, &tokens)
	if err != nil && !messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
		return fmt.Errorf("bridge: loading identity tokens: %w", err)
	}
	if tokens == nil {
		tokens = make(map[string]string)
	}
	tokens[identity.String()] = token
	if err := store.SetAccountData(ctx, identityTokenKey, tokens); err != nil {
		return fmt.Errorf("bridge: storing identity token: %w", err)
	}
	return nil
}

// Close releases every cached session's token memory.
func (p *IdentitySessions) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, session := range p.cache {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.cache = make(map[ref.UserID]*messaging.DirectSession)
	return firstErr
}
