// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

// Smswire-admin is the operator CLI for the SMSWire bridge. It creates
// the bot account, provisions virtual identities for phone numbers, and
// inspects the bridge's rooms and outbox. Safe to re-run: registration
// commands are idempotent.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/smswire/smswire/bridge"
	"github.com/smswire/smswire/lib/config"
	"github.com/smswire/smswire/lib/ref"
	"github.com/smswire/smswire/lib/secret"
	"github.com/smswire/smswire/lib/sqlitepool"
	"github.com/smswire/smswire/lib/version"
	"github.com/smswire/smswire/messaging"
	"github.com/smswire/smswire/relay"
)

const usage = `Usage: smswire-admin [--config PATH] COMMAND [flags]

Commands:
  register    create the bridge bot account and write its token file
  provision   register a virtual identity for a phone number
  rooms       list joined rooms and their classification
  outbox      show outbox queue depth

Global flags:
  --config PATH   path to smswire.yaml (defaults to $SMSWIRE_CONFIG)
  --version       print version information and exit
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	global := pflag.NewFlagSet("smswire-admin", pflag.ContinueOnError)
	global.SetInterspersed(false)
	configPath := global.String("config", "", "path to smswire.yaml")
	showVersion := global.Bool("version", false, "print version information and exit")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	if err := global.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("smswire-admin %s\n", version.Info())
		return nil
	}
	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		return fmt.Errorf("a command is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	switch args[0] {
	case "register":
		return runRegister(ctx, cfg, args[1:], logger)
	case "provision":
		return runProvision(ctx, cfg, args[1:], logger)
	case "rooms":
		return runRooms(ctx, cfg, logger)
	case "outbox":
		return runOutbox(ctx, cfg, logger)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func newClient(cfg *config.Config, logger *slog.Logger) (*messaging.Client, error) {
	return messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
		Logger:        logger,
	})
}

// botSession opens an authenticated session from the configured token
// file. The caller must Close it.
func botSession(cfg *config.Config, client *messaging.Client) (*messaging.DirectSession, error) {
	if cfg.Bot.TokenFile == "" {
		return nil, fmt.Errorf("bot.token_file is not configured")
	}
	token, err := secret.ReadFromPath(cfg.Bot.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("reading bot token: %w", err)
	}
	defer token.Close()
	return client.SessionFromToken(cfg.BotUserID(), token.String())
}

// derivePassword deterministically derives an account password from the
// registration token and the account localpart. Re-running a
// registration command with the same token therefore reproduces the
// same password, letting register-or-login make provisioning
// idempotent. The token is high-entropy material, so SHA-256 with a
// domain separator is sufficient here: the password only needs to
// resist online guessing, which the homeserver rate-limits.
func derivePassword(registrationToken *secret.Buffer, localpart string) (*secret.Buffer, error) {
	hash := sha256.Sum256([]byte("smswire-account-password:" + localpart + ":" + registrationToken.String()))
	return secret.NewFromBytes([]byte(hex.EncodeToString(hash[:])))
}

// registerOrLogin registers an account, or logs in when it already
// exists with the password derived from the registration token.
func registerOrLogin(ctx context.Context, client *messaging.Client, localpart string, registrationToken *secret.Buffer, logger *slog.Logger) (*messaging.DirectSession, error) {
	password, err := derivePassword(registrationToken, localpart)
	if err != nil {
		return nil, err
	}
	defer password.Close()

	session, err := client.Register(ctx, messaging.RegisterRequest{
		Username:          localpart,
		Password:          password,
		RegistrationToken: registrationToken,
	})
	if err == nil {
		return session, nil
	}
	if messaging.IsMatrixError(err, messaging.ErrCodeUserInUse) {
		logger.Info("account already exists, logging in", "localpart", localpart)
		return client.Login(ctx, localpart, password)
	}
	return nil, err
}

func runRegister(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("register", pflag.ContinueOnError)
	tokenFile := flags.String("registration-token-file", "",
		"path to the homeserver registration token, or - for stdin (required)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *tokenFile == "" {
		return fmt.Errorf("--registration-token-file is required (use - for stdin)")
	}
	if cfg.Bot.TokenFile == "" {
		return fmt.Errorf("bot.token_file must be configured so the bot token can be written")
	}

	registrationToken, err := secret.ReadFromPath(*tokenFile)
	if err != nil {
		return fmt.Errorf("reading registration token: %w", err)
	}
	defer registrationToken.Close()

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	session, err := registerOrLogin(ctx, client, cfg.Bot.Localpart, registrationToken, logger)
	if err != nil {
		return fmt.Errorf("registering bot account: %w", err)
	}
	defer session.Close()

	if err := os.WriteFile(cfg.Bot.TokenFile, []byte(session.AccessToken()+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing bot token file: %w", err)
	}

	fmt.Printf("bot account ready: %s\ntoken written to %s\n", session.UserID(), cfg.Bot.TokenFile)
	return nil
}

func runProvision(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("provision", pflag.ContinueOnError)
	number := flags.String("number", "", "phone number to provision, digits only (required)")
	tokenFile := flags.String("registration-token-file", "",
		"path to the homeserver registration token, or - for stdin (required)")
	displayName := flags.String("display-name", "", "profile display name (default: +<number> (SMS))")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *number == "" {
		return fmt.Errorf("--number is required")
	}
	if *tokenFile == "" {
		return fmt.Errorf("--registration-token-file is required (use - for stdin)")
	}

	phone, err := ref.ParsePhoneNumber(*number)
	if err != nil {
		return err
	}
	registrationToken, err := secret.ReadFromPath(*tokenFile)
	if err != nil {
		return fmt.Errorf("reading registration token: %w", err)
	}
	defer registrationToken.Close()

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	identities := bridge.NewIdentities(cfg.ServerName(), cfg.Bot.Localpart)
	identity := identities.UserForNumber(phone)

	session, err := registerOrLogin(ctx, client, identity.Localpart(), registrationToken, logger)
	if err != nil {
		return fmt.Errorf("registering virtual identity: %w", err)
	}
	defer session.Close()

	name := *displayName
	if name == "" {
		name = fmt.Sprintf("+%s (SMS)", phone)
	}
	if err := session.SetDisplayName(ctx, name); err != nil {
		return fmt.Errorf("setting display name: %w", err)
	}

	// Record the identity's token in the bot's account data so the
	// daemon can act as this identity (accept invites, join rooms).
	bot, err := botSession(cfg, client)
	if err != nil {
		return err
	}
	defer bot.Close()
	if err := bridge.StoreToken(ctx, bot, identity, session.AccessToken()); err != nil {
		return err
	}

	fmt.Printf("provisioned %s as %s\n", phone, identity)
	return nil
}

func runRooms(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	bot, err := botSession(cfg, client)
	if err != nil {
		return err
	}
	defer bot.Close()

	transport := bridge.NewMatrixTransport(bot, nil, logger)
	directory := bridge.NewDirectory()
	classifier := bridge.NewClassifier(bridge.ClassifierConfig{
		Transport: transport,
		Directory: directory,
		Logger:    logger,
	})

	rooms, err := transport.JoinedRooms(ctx)
	if err != nil {
		return fmt.Errorf("listing joined rooms: %w", err)
	}
	for _, roomID := range rooms {
		members, err := transport.JoinedMembers(ctx, roomID)
		if err != nil {
			fmt.Printf("%s\tERROR\t%v\n", roomID, err)
			continue
		}
		result, err := classifier.Classify(ctx, roomID, members, bridge.ClassifyOptions{})
		switch {
		case err != nil:
			fmt.Printf("%s\tINVALID\t%v\n", roomID, err)
		case result.Administrative:
			fmt.Printf("%s\tADMIN\towner=%s\n", roomID, result.Session.Owner())
		default:
			fmt.Printf("%s\tCONVERSATION\tmembers=%d\n", roomID, len(members))
		}
	}
	return nil
}

func runOutbox(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Relay.OutboxPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening outbox database: %w", err)
	}
	defer pool.Close()

	outbox, err := relay.NewOutbox(ctx, relay.OutboxConfig{
		Pool:    pool,
		Sender:  relay.NewLogSender(logger),
		Resolve: func(context.Context, relay.Message) (ref.PhoneNumber, bool, error) { return ref.PhoneNumber{}, false, nil },
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	stats, err := outbox.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("pending: %d\nfailed: %d\n", stats.Pending, stats.Failed)
	return nil
}
