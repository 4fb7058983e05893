// Limsg is a command-line client for LinkedIn messaging.
//
// It wraps the unofficial messaging client library with an interactive
// login flow (including the verification challenge step), a persisted
// session, and commands for inspecting and sending messages.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	limsg login                  Log in and persist the session
//	limsg whoami                 Show the logged-in profile
//	limsg conversations [-all]   List conversations
//	limsg send <conv-urn> <text> Send a message
//	limsg listen [-archive]      Stream realtime events to stdout
//	limsg logout                 End the remote session
//	limsg version                Print version and build information
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	linkedinmessaging "github.com/wirebird/linkedin-messaging"
	"github.com/wirebird/linkedin-messaging/internal/archive"
	"github.com/wirebird/linkedin-messaging/internal/buildinfo"
	"github.com/wirebird/linkedin-messaging/internal/config"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so the full
// lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the limsg command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run concurrently from tests, and
// the argument surface is small.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case command == "":
			command = args[i]
		default:
			cmdArgs = append(cmdArgs, args[i])
		}
	}

	if command == "" {
		return printUsage(stdout)
	}
	if command == "version" {
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	}

	cfg := config.Default()
	if path, err := config.FindConfig(configPath); err == nil {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = loaded
	} else if configPath != "" {
		// An explicit -config that doesn't exist is an error; silently
		// falling back to defaults would mask a typo.
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	slog.SetDefault(logger)

	client, err := loadClient(cfg, logger)
	if err != nil {
		return err
	}

	switch command {
	case "login":
		return cmdLogin(ctx, stdout, cfg, client)
	case "whoami":
		return cmdWhoami(ctx, stdout, client)
	case "conversations":
		return cmdConversations(ctx, stdout, client, cmdArgs)
	case "send":
		return cmdSend(ctx, stdout, client, cmdArgs)
	case "listen":
		return cmdListen(ctx, stdout, cfg, client, logger, cmdArgs)
	case "logout":
		return cmdLogout(ctx, stdout, cfg, client)
	default:
		return fmt.Errorf("unknown command %q (run with -h for usage)", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprint(w, `usage: limsg [-config path] <command>

commands:
  login                  Log in and persist the session
  whoami                 Show the logged-in profile
  conversations [-all]   List conversations
  send <conv-urn> <text> Send a message to a conversation
  listen [-archive]      Stream realtime events to stdout
  logout                 End the remote session
  version                Print version and build information
`)
	return nil
}

// loadClient restores the persisted session when one exists, otherwise
// starts with a fresh client.
func loadClient(cfg *config.Config, logger *slog.Logger) (*linkedinmessaging.Client, error) {
	blob, err := os.ReadFile(cfg.SessionFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read session file: %w", err)
		}
		return linkedinmessaging.NewClient(linkedinmessaging.WithLogger(logger)), nil
	}
	client, err := linkedinmessaging.RestoreClient(blob, linkedinmessaging.WithLogger(logger))
	if err != nil {
		if errors.Is(err, linkedinmessaging.ErrCorruptSession) {
			logger.Warn("ignoring corrupt session file", "path", cfg.SessionFile, "error", err)
			return linkedinmessaging.NewClient(linkedinmessaging.WithLogger(logger)), nil
		}
		return nil, err
	}
	return client, nil
}

// saveSession persists the client's session blob next to the config.
func saveSession(cfg *config.Config, client *linkedinmessaging.Client) error {
	blob, err := client.Serialize()
	if err != nil {
		return fmt.Errorf("serialize session: %w", err)
	}
	if dir := filepath.Dir(cfg.SessionFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	if err := os.WriteFile(cfg.SessionFile, blob, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func cmdLogin(ctx context.Context, stdout io.Writer, cfg *config.Config, client *linkedinmessaging.Client) error {
	if client.LoggedIn(ctx) {
		fmt.Fprintln(stdout, "already logged in")
		return nil
	}

	reader := bufio.NewReader(os.Stdin)
	email := cfg.Email
	if email == "" {
		fmt.Fprint(stdout, "email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}

	fmt.Fprint(stdout, "password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(stdout)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	err = client.Login(ctx, email, string(password))
	if errors.Is(err, linkedinmessaging.ErrChallengeRequired) {
		fmt.Fprint(stdout, "verification code: ")
		line, rerr := reader.ReadString('\n')
		if rerr != nil {
			return fmt.Errorf("read verification code: %w", rerr)
		}
		err = client.Enter2FA(ctx, strings.TrimSpace(line))
	}
	if err != nil {
		return err
	}

	if err := saveSession(cfg, client); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "logged in, session saved to", cfg.SessionFile)
	return nil
}

func cmdWhoami(ctx context.Context, stdout io.Writer, client *linkedinmessaging.Client) error {
	profile, err := client.GetUserProfile(ctx)
	if err != nil {
		return err
	}
	p := profile.MiniProfile
	fmt.Fprintf(stdout, "%s %s (%s)\n", p.FirstName, p.LastName, p.PublicIdentifier)
	fmt.Fprintf(stdout, "urn: %s\n", p.EntityURN)
	return nil
}

func cmdConversations(ctx context.Context, stdout io.Writer, client *linkedinmessaging.Client, args []string) error {
	all := len(args) > 0 && args[0] == "-all"

	var conversations []linkedinmessaging.Conversation
	if all {
		var err error
		conversations, err = client.GetAllConversations(ctx)
		if err != nil {
			return err
		}
	} else {
		page, err := client.GetConversations(ctx, time.Time{})
		if err != nil {
			return err
		}
		conversations = page.Elements
	}

	for _, conv := range conversations {
		var names []string
		for _, p := range conv.Participants {
			if m := p.MessagingMember; m != nil {
				names = append(names, strings.TrimSpace(
					m.MiniProfile.FirstName+" "+m.MiniProfile.LastName))
			}
		}
		marker := " "
		if conv.UnreadCount > 0 {
			marker = "*"
		}
		fmt.Fprintf(stdout, "%s %s  %s  %s\n",
			marker,
			conv.LastActivityAt.Format("2006-01-02 15:04"),
			conv.EntityURN,
			strings.Join(names, ", "),
		)
	}
	return nil
}

func cmdSend(ctx context.Context, stdout io.Writer, client *linkedinmessaging.Client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: limsg send <conv-urn> <text>")
	}
	conv := linkedinmessaging.ParseURN(args[0])
	text := strings.Join(args[1:], " ")

	resp, err := client.SendMessage(ctx, conv, linkedinmessaging.MessageCreate{
		AttributedBody: linkedinmessaging.AttributedBody{Text: text},
		Body:           text,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "sent %s\n", resp.Value.EventURN)
	return nil
}

func cmdListen(ctx context.Context, stdout io.Writer, cfg *config.Config, client *linkedinmessaging.Client, logger *slog.Logger, args []string) error {
	var store *archive.Store
	if len(args) > 0 && args[0] == "-archive" {
		var err error
		store, err = archive.Open(cfg.ArchiveDB, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info("archiving messages", "db", cfg.ArchiveDB)
	}

	client.RegisterEventHandler("event", func(ctx context.Context, ev linkedinmessaging.RealtimeEvent) error {
		e := ev.Event
		if e == nil || e.EventContent.MessageEvent == nil {
			return nil
		}
		me := e.EventContent.MessageEvent
		sender := "unknown"
		if m := e.From.MessagingMember; m != nil {
			sender = strings.TrimSpace(m.MiniProfile.FirstName + " " + m.MiniProfile.LastName)
		}
		if me.RecalledAt != nil {
			fmt.Fprintf(stdout, "[%s] %s recalled a message\n",
				e.CreatedAt.Format("15:04:05"), sender)
			return nil
		}
		fmt.Fprintf(stdout, "[%s] %s: %s\n",
			e.CreatedAt.Format("15:04:05"), sender, me.Body)
		if store == nil {
			return nil
		}
		return store.SaveMessage(ctx, archive.Message{
			EventURN:        e.EntityURN.String(),
			ConversationURN: conversationOf(e),
			Sender:          sender,
			Body:            me.Body,
			CreatedAt:       e.CreatedAt.Time,
		})
	})

	client.RegisterEventHandler("reactionSummary", func(ctx context.Context, ev linkedinmessaging.RealtimeEvent) error {
		if ev.ReactionSummary == nil || ev.EventURN == nil {
			return nil
		}
		fmt.Fprintf(stdout, "reaction %s x%d on %s\n",
			ev.ReactionSummary.Emoji, ev.ReactionSummary.Count, ev.EventURN)
		return nil
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := client.Listen(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(stdout, "listener stopped")
		return nil
	}
	return err
}

func cmdLogout(ctx context.Context, stdout io.Writer, cfg *config.Config, client *linkedinmessaging.Client) error {
	if !client.Logout(ctx) {
		return fmt.Errorf("logout not confirmed by server")
	}
	if err := os.Remove(cfg.SessionFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	fmt.Fprintln(stdout, "logged out")
	return nil
}

// conversationOf extracts the conversation id from a compound event
// URN. Event URNs embed the conversation id as their first id part.
func conversationOf(e *linkedinmessaging.ConversationEvent) string {
	parts := e.EntityURN.IDParts()
	if len(parts) > 1 {
		return parts[0]
	}
	return ""
}
