// Package discord wires hibiki to the Discord gateway. It adapts inbound
// message-create events into responder events, and implements the responder's
// Messenger and the memory package's Fetcher against the Discord REST API.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/hibiki-bot/hibiki/internal/memory"
	"github.com/hibiki-bot/hibiki/internal/responder"
)

// maxMessageLen is Discord's hard limit on message content.
const maxMessageLen = 2000

// Handler consumes inbound events. Implemented by responder.Responder.
type Handler interface {
	Handle(ctx context.Context, ev responder.Event)
}

// Session owns the Discord gateway connection.
type Session struct {
	s   *discordgo.Session
	log *slog.Logger
}

// New constructs a Session for the given bot token. The connection is not
// opened until Run.
func New(token string, log *slog.Logger) (*Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	return &Session{s: s, log: log}, nil
}

// Run opens the gateway connection, dispatches message-create events to
// handler, and blocks until ctx is cancelled. Each event is handled on the
// goroutine discordgo dispatches it on.
func (d *Session) Run(ctx context.Context, handler Handler) error {
	d.s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if d.s.State.User != nil && m.Author.ID == d.s.State.User.ID {
			return
		}
		handler.Handle(ctx, responder.Event{
			ChannelID: m.ChannelID,
			Content:   strings.TrimSpace(m.ContentWithMentionsReplaced()),
		})
	})

	if err := d.s.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	d.log.Info("discord: gateway connected",
		slog.String("user", d.s.State.User.Username))

	<-ctx.Done()

	if err := d.s.Close(); err != nil {
		return fmt.Errorf("discord: close gateway: %w", err)
	}
	return nil
}

// Reply posts text to the channel, splitting it into chunks when it exceeds
// Discord's message length limit.
func (d *Session) Reply(ctx context.Context, channelID, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if _, err := d.s.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord: send message: %w", err)
		}
	}
	return nil
}

// Typing signals that a reply is being prepared.
func (d *Session) Typing(ctx context.Context, channelID string) error {
	if err := d.s.ChannelTyping(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: typing indicator: %w", err)
	}
	return nil
}

// RecentMessages implements memory.Fetcher over the channel-history REST
// endpoint. Discord returns messages newest-first, which is exactly the
// contract the assembler expects.
func (d *Session) RecentMessages(ctx context.Context, channelID string, limit int) ([]memory.PlatformMessage, error) {
	msgs, err := d.s.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: fetch channel history: %w", err)
	}

	out := make([]memory.PlatformMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, memory.PlatformMessage{
			AuthorIsBot: m.Author != nil && m.Author.Bot,
			Content:     strings.TrimSpace(m.ContentWithMentionsReplaced()),
		})
	}
	return out, nil
}

// splitMessage breaks text into chunks of at most limit runes, preferring to
// break on newlines so code blocks and paragraphs stay readable.
func splitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	return append(chunks, string(runes))
}
