// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

// Smswire-daemon is the bridge daemon. It connects to the Matrix
// homeserver as the bridge bot, classifies every joined room, and then
// follows the /sync stream: invites to bridge-controlled identities are
// accepted and classified, user messages are forwarded to the durable
// SMS outbox.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/smswire/smswire/bridge"
	"github.com/smswire/smswire/lib/config"
	"github.com/smswire/smswire/lib/ref"
	"github.com/smswire/smswire/lib/secret"
	"github.com/smswire/smswire/lib/sqlitepool"
	"github.com/smswire/smswire/lib/version"
	"github.com/smswire/smswire/messaging"
	"github.com/smswire/smswire/relay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "",
		"path to smswire.yaml (defaults to $SMSWIRE_CONFIG)")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("smswire-daemon %s\n", version.Info())
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureState(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating matrix client: %w", err)
	}

	if cfg.Bot.TokenFile == "" {
		return fmt.Errorf("bot.token_file is required; run smswire-admin register first")
	}
	token, err := secret.ReadFromPath(cfg.Bot.TokenFile)
	if err != nil {
		return fmt.Errorf("reading bot token: %w", err)
	}
	botSession, err := client.SessionFromToken(cfg.BotUserID(), token.String())
	token.Close()
	if err != nil {
		return err
	}
	defer botSession.Close()

	// Validate the token before building anything on top of it.
	botUser, err := botSession.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("verifying bot session: %w", err)
	}
	if botUser != cfg.BotUserID() {
		return fmt.Errorf("bot token belongs to %s, config expects %s", botUser, cfg.BotUserID())
	}

	if cfg.Bot.DisplayName != "" {
		if err := botSession.SetDisplayName(ctx, cfg.Bot.DisplayName); err != nil {
			logger.Warn("setting bot display name failed", "error", err)
		}
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Relay.OutboxPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening outbox database: %w", err)
	}
	defer pool.Close()

	identities := bridge.NewIdentities(cfg.ServerName(), cfg.Bot.Localpart)
	sessions := bridge.NewIdentitySessions(client, botSession)
	defer sessions.Close()
	transport := bridge.NewMatrixTransport(botSession, sessions, logger)

	outbox, err := relay.NewOutbox(ctx, relay.OutboxConfig{
		Pool:          pool,
		Sender:        relay.NewLogSender(logger),
		Resolve:       destinationResolver(transport, identities),
		RetryInterval: cfg.Relay.RetryInterval,
		MaxAttempts:   cfg.Relay.MaxAttempts,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	directory := bridge.NewDirectory()
	classifier := bridge.NewClassifier(bridge.ClassifierConfig{
		Transport: transport,
		Directory: directory,
		Logger:    logger,
	})
	router := bridge.NewRouter(bridge.RouterConfig{
		Transport:        transport,
		Directory:        directory,
		Classifier:       classifier,
		Identities:       identities,
		Forwarder:        outbox,
		TransportTimeout: cfg.TransportTimeout,
		Logger:           logger,
	})

	// Checkpoint the sync position before the startup scan so events
	// arriving during the scan are replayed afterward, not lost.
	stream, err := messaging.NewEventStream(ctx, botSession, &messaging.StreamFilter{
		TimelineTypes: []string{"m.room.message", "m.room.member"},
	}, logger)
	if err != nil {
		return err
	}

	if err := router.StartupScan(ctx); err != nil {
		return fmt.Errorf("startup scan: %w", err)
	}

	outboxDone := make(chan error, 1)
	go func() {
		outboxDone <- outbox.Run(ctx)
	}()

	logger.Info("smswire bridge running",
		"bot", cfg.BotUserID(),
		"homeserver", cfg.Homeserver.URL,
		"admin_rooms", directory.Len(),
		"outbox", cfg.Relay.OutboxPath,
	)

	streamErr := stream.Run(ctx, func(roomID ref.RoomID, event messaging.Event) {
		router.OnEvent(ctx, bridge.EventFromMatrix(roomID, event))
	})

	stop()
	<-outboxDone

	if ctx.Err() != nil {
		logger.Info("shutting down")
		return nil
	}
	return streamErr
}

// destinationResolver maps a bridged message to its SMS destination:
// the phone number of the virtual identity sharing the room with the
// sender. Rooms without a virtual identity member are ordinary chat
// and resolve to nothing.
func destinationResolver(transport *bridge.MatrixTransport, identities bridge.Identities) relay.ResolveFunc {
	return func(ctx context.Context, message relay.Message) (ref.PhoneNumber, bool, error) {
		members, err := transport.JoinedMembers(ctx, message.RoomID)
		if err != nil {
			return ref.PhoneNumber{}, false, err
		}
		for _, member := range members {
			if member == message.Sender {
				continue
			}
			if number, ok := identities.NumberForUser(member); ok {
				return number, true, nil
			}
		}
		return ref.PhoneNumber{}, false, nil
	}
}
