package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wander-app/wander/internal/config"
	"github.com/wander-app/wander/internal/domain"
	"github.com/wander-app/wander/internal/messaging"
	"github.com/wander-app/wander/internal/transport/ws"
	"github.com/wander-app/wander/pkg/validator"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if cfg.AuthToken == "" {
		logger.Fatal().Msg("AUTH_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway, err := ws.Dial(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connecting to messaging backend")
	}
	defer gateway.Close()

	localUserID := gateway.LocalUserID()
	logger.Info().Str("user", localUserID).Msg("connected")

	m := messaging.New(gateway, localUserID, messaging.Options{
		TypingTimeout:   cfg.TypingTimeout,
		RefreshDebounce: cfg.RefreshDebounce,
		CallTimeout:     cfg.CallTimeout,
		Logger:          logger,
	})

	m.SetOnConversations(func(convs []domain.Conversation) {
		fmt.Printf("-- %d conversations (use /list)\n", len(convs))
	})
	m.SetOnMessages(func(msgs []domain.Message) {
		printMessages(localUserID, msgs)
	})
	m.SetOnTypingUsers(func(users []string) {
		if len(users) > 0 {
			fmt.Printf("-- %s typing...\n", strings.Join(users, ", "))
		}
	})
	m.SetOnError(func(err error) {
		fmt.Fprintf(os.Stderr, "!! %v\n", err)
	})

	m.Open()
	defer m.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return inputLoop(ctx, m, localUserID)
	})
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("exiting")
	}
}

func inputLoop(ctx context.Context, m *messaging.Messenger, localUserID string) error {
	fmt.Println("commands: /list, /search <q>, /open <id|key>, /chat <userID> [name], /close, /quit")
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return context.Canceled

		case line == "/list":
			printConversations(localUserID, m.Conversations())

		case strings.HasPrefix(line, "/search "):
			query := strings.TrimPrefix(line, "/search ")
			if errs := validator.ValidateSearchQuery(query); errs.HasErrors() {
				fmt.Fprintf(os.Stderr, "!! %v\n", errs)
				continue
			}
			printConversations(localUserID, m.Search(query))

		case strings.HasPrefix(line, "/open "):
			if err := m.OpenConversation(strings.TrimPrefix(line, "/open ")); err != nil {
				fmt.Fprintf(os.Stderr, "!! %v\n", err)
			}

		case strings.HasPrefix(line, "/chat "):
			fields := strings.Fields(strings.TrimPrefix(line, "/chat "))
			other := domain.User{ID: fields[0]}
			if len(fields) > 1 {
				other.Name = strings.Join(fields[1:], " ")
			}
			m.StartConversation(other)

		case line == "/close":
			m.CloseConversation()

		default:
			m.OnTypingChange(line)
			if err := m.Send(line, domain.MessageTypeText); err != nil {
				fmt.Fprintf(os.Stderr, "!! %v\n", err)
			}
		}
	}
	return scanner.Err()
}

func printConversations(localUserID string, convs []domain.Conversation) {
	for _, conv := range convs {
		name := "(unknown)"
		if other := conv.OtherParticipant(localUserID); other != nil {
			name = other.Name
		}
		last := ""
		if conv.LastMessage != nil {
			last = conv.LastMessage.Content
		}
		online := " "
		if conv.IsOnline {
			online = "*"
		}
		fmt.Printf("%s [%s] %s (%d unread): %s\n", online, conv.ID, name, conv.UnreadCount, last)
	}
}

func printMessages(localUserID string, msgs []domain.Message) {
	for _, msg := range msgs {
		who := "them"
		if msg.SenderID == localUserID {
			who = "me"
		}
		marker := ""
		if msg.Failed {
			marker = " [failed]"
		} else if msg.Optimistic {
			marker = " [sending]"
		}
		fmt.Printf("[%s] %s: %s%s\n", msg.Timestamp.Format("15:04"), who, msg.Content, marker)
	}
}
