// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

// chatkit is a terminal chat client. It connects the synchronization
// engine to a real backend and drives it from a line-based prompt:
// plain input sends a message to the open conversation, slash commands
// manage state.
//
// Commands:
//
//	/open <peer>    open a conversation with peer
//	/close          close the open conversation
//	/peers          list registered peers
//	/who            list online users
//	/messages       print the open conversation's timeline
//	/notifications  print stored notifications and the unread count
//	/read <id>      mark one notification read
//	/read-all       mark every notification read
//	/quit           disconnect and exit
//
// Configuration comes from CHATKIT_CONFIG or --config; see lib/config.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/socialconnect/chatkit/backend"
	"github.com/socialconnect/chatkit/channel"
	"github.com/socialconnect/chatkit/engine"
	"github.com/socialconnect/chatkit/lib/config"
	"github.com/socialconnect/chatkit/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var userID string
	var displayName string

	flagSet := pflag.NewFlagSet("chatkit", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to chatkit.yaml (default: $CHATKIT_CONFIG)")
	flagSet.StringVar(&userID, "user", "", "user ID to connect as (required)")
	flagSet.StringVar(&displayName, "name", "", "display name (default: the user ID)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	if displayName == "" {
		displayName = userID
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}

	token, err := cfg.BearerToken()
	if err != nil {
		return err
	}

	client, err := backend.NewClient(backend.ClientConfig{
		BaseURL: cfg.Server.APIBaseURL,
		Token:   token,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	expiry, idle, err := cfg.Engine.Durations()
	if err != nil {
		return err
	}

	notices := make(chan wire.Notice, 16)
	eng, err := engine.New(engine.Config{
		Backend: client,
		Dial: func(ctx context.Context, _ engine.Identity, credential string) (channel.Conn, error) {
			return channel.Dial(ctx, channel.DialConfig{
				URL:    cfg.Server.ChannelURL,
				Token:  credential,
				Logger: logger,
			})
		},
		Logger: logger,
		Notifier: engine.Gated(
			func() bool { return cfg.Notifications.System },
			engine.LogNotifier{Logger: logger},
		),
		OnNotice: func(notice wire.Notice) {
			select {
			case notices <- notice:
			default:
			}
		},
		TypingExpiry: expiry,
		TypingIdle:   idle,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	identity := engine.Identity{ID: userID, DisplayName: displayName}
	if err := eng.Connect(identity, token); err != nil {
		return err
	}

	go printNotices(ctx, notices)

	fmt.Printf("connected as %s — /open <peer> to start, /quit to exit\n", userID)
	return repl(ctx, eng, client)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}
	options := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
}

func printNotices(ctx context.Context, notices <-chan wire.Notice) {
	for {
		select {
		case notice := <-notices:
			fmt.Printf("! %s\n", notice.Message)
		case <-ctx.Done():
			return
		}
	}
}

// repl reads lines from stdin until EOF, /quit, or the context ends.
func repl(ctx context.Context, eng *engine.Engine, client *backend.Client) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			eng.Disconnect()
			return nil
		case line, open := <-lines:
			if !open {
				eng.Disconnect()
				return nil
			}
			quit, err := dispatch(ctx, eng, client, line)
			if err != nil {
				fmt.Printf("! %v\n", err)
			}
			if quit {
				eng.Disconnect()
				return nil
			}
		}
	}
}

func dispatch(ctx context.Context, eng *engine.Engine, client *backend.Client, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, send(eng, line)
	}

	command, argument, _ := strings.Cut(line, " ")
	argument = strings.TrimSpace(argument)

	switch command {
	case "/quit":
		return true, nil

	case "/open":
		if argument == "" {
			return false, fmt.Errorf("usage: /open <peer>")
		}
		return false, eng.OpenConversation(argument)

	case "/close":
		eng.CloseConversation()
		return false, nil

	case "/peers":
		peers, err := client.ChatPeers(ctx)
		if err != nil {
			return false, err
		}
		for _, peer := range peers {
			marker := " "
			if eng.IsOnline(peer.ID) {
				marker = "*"
			}
			fmt.Printf("%s %s (%s)\n", marker, peer.ID, peer.DisplayName)
		}
		return false, nil

	case "/who":
		for _, id := range eng.OnlineUsers() {
			fmt.Println(id)
		}
		return false, nil

	case "/messages":
		messages, loading := eng.Timeline()
		if loading {
			fmt.Println("(still loading)")
		}
		for _, message := range messages {
			fmt.Printf("[%s] %s: %s (%s)\n",
				message.CreatedAt.Format("15:04:05"), message.SenderID, message.Content, message.State)
		}
		return false, nil

	case "/notifications":
		list, unread := eng.Notifications()
		fmt.Printf("%d unread\n", unread)
		for _, notification := range list {
			marker := " "
			if !notification.Read {
				marker = "*"
			}
			fmt.Printf("%s %s %s\n", marker, notification.ID, notification.Message)
		}
		return false, nil

	case "/read":
		if argument == "" {
			return false, fmt.Errorf("usage: /read <id>")
		}
		eng.MarkNotificationRead(argument)
		return false, nil

	case "/read-all":
		eng.MarkAllNotificationsRead()
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", command)
	}
}

// send dispatches one message and reports the durable outcome inline.
func send(eng *engine.Engine, text string) error {
	completion, err := eng.SendMessage(text, "")
	if err != nil {
		return err
	}
	go func() {
		if err := <-completion; err != nil {
			fmt.Printf("! message not saved: %v\n", err)
		}
	}()
	return nil
}
