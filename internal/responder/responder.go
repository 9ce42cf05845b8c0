// Package responder orchestrates one conversational turn: it filters inbound
// platform events, handles the !reset and !search commands, assembles the
// LLM context from the bounded memory window plus fresh platform history,
// calls the generation backend, and appends the completed exchange back into
// memory. Platform transport stays behind the Messenger interface so the
// whole loop is testable with fakes.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/hibiki-bot/hibiki/internal/archive"
	"github.com/hibiki-bot/hibiki/internal/memory"
	"github.com/hibiki-bot/hibiki/internal/search"
)

// Channel rate-limit parameters: sustained one turn per two seconds with a
// burst of three, per channel. Protects the generation backend from a single
// channel flooding the bot.
const (
	channelRPS   = 0.5
	channelBurst = 3
)

// resetCommand clears the channel's short-term history.
const resetCommand = "!reset"

// searchPrefixes trigger the search-then-summarize path.
var searchPrefixes = []string{"!search", "!research"}

// fallbackReply is sent when the model returns an empty string.
const fallbackReply = "Hmm..."

// Event is one inbound platform message, already cleaned by the transport
// layer and with the bot's own messages filtered out.
type Event struct {
	// ChannelID is where the message was posted.
	ChannelID string
	// Content is the cleaned display text.
	Content string
}

// Messenger is the platform output surface.
type Messenger interface {
	// Reply posts text to the channel.
	Reply(ctx context.Context, channelID, text string) error
	// Typing signals that a reply is being prepared.
	Typing(ctx context.Context, channelID string) error
}

// Searcher runs a web search for the !search command.
type Searcher interface {
	Search(ctx context.Context, query string, num int) ([]search.Result, error)
}

// Config holds the dependencies and settings for a Responder.
type Config struct {
	// TargetChannelID is the only channel the bot responds in.
	TargetChannelID string
	// Store is the bounded conversation memory.
	Store *memory.Store
	// Assembler builds the generation context.
	Assembler *memory.Assembler
	// Chat is the generation backend.
	Chat model.BaseChatModel
	// Messenger is the platform output surface.
	Messenger Messenger
	// Searcher handles !search queries. Nil disables the command.
	Searcher Searcher
	// SearchResultCount is the number of results folded into the prompt.
	SearchResultCount int
	// Archive persists completed exchanges. Nil disables archiving.
	Archive *archive.Archive
	// Log is the structured logger.
	Log *slog.Logger
	// Registry receives the responder metrics.
	Registry prometheus.Registerer
}

// Responder handles inbound events one at a time per call. It is safe for
// concurrent use; memory mutations stay atomic per call, but two overlapping
// events on the same channel can each assemble a context that misses the
// other's not-yet-appended turn. That window is inherent to reading, then
// generating, then appending.
type Responder struct {
	target      string
	store       *memory.Store
	assembler   *memory.Assembler
	chat        model.BaseChatModel
	messenger   Messenger
	searcher    Searcher
	resultCount int
	arch        *archive.Archive
	log         *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// turnsTotal counts handled events, partitioned by outcome.
	turnsTotal *prometheus.CounterVec
	// generateSeconds records generation backend latency.
	generateSeconds prometheus.Histogram
}

// New constructs a Responder from cfg.
func New(cfg *Config) *Responder {
	resultCount := cfg.SearchResultCount
	if resultCount <= 0 {
		resultCount = 3
	}
	factory := promauto.With(cfg.Registry)
	return &Responder{
		target:      cfg.TargetChannelID,
		store:       cfg.Store,
		assembler:   cfg.Assembler,
		chat:        cfg.Chat,
		messenger:   cfg.Messenger,
		searcher:    cfg.Searcher,
		resultCount: resultCount,
		arch:        cfg.Archive,
		log:         cfg.Log,
		limiters:    make(map[string]*rate.Limiter),
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hibiki",
			Subsystem: "responder",
			Name:      "turns_total",
			Help:      "Inbound events handled, partitioned by outcome.",
		}, []string{"outcome"}),
		generateSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hibiki",
			Subsystem: "responder",
			Name:      "generate_duration_seconds",
			Help:      "Wall-clock latency of generation backend calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),
	}
}

// Handle processes one inbound event end to end. All failures are reported
// to the channel and logged; Handle itself never fails.
func (r *Responder) Handle(ctx context.Context, ev Event) {
	if ev.ChannelID != r.target {
		return
	}

	content := strings.TrimSpace(ev.Content)
	if content == "" {
		return
	}

	if content == resetCommand {
		r.store.Clear(ev.ChannelID)
		r.turnsTotal.WithLabelValues("reset").Inc()
		r.send(ctx, ev.ChannelID, "Short-term conversation history has been reset.")
		return
	}

	if !r.limiter(ev.ChannelID).Allow() {
		r.turnsTotal.WithLabelValues("throttled").Inc()
		r.log.Debug("responder: channel throttled", slog.String("channel_id", ev.ChannelID))
		return
	}

	if err := r.messenger.Typing(ctx, ev.ChannelID); err != nil {
		r.log.Debug("responder: typing indicator failed", slog.Any("error", err))
	}

	if query, ok := searchQuery(content); ok {
		r.handleSearch(ctx, ev.ChannelID, query)
		return
	}

	r.handleChat(ctx, ev.ChannelID, content)
}

// handleChat runs the normal conversational turn: assemble context, generate,
// append both halves of the exchange, reply.
func (r *Responder) handleChat(ctx context.Context, channelID, content string) {
	turns, err := r.assembler.Build(ctx, channelID)
	if err != nil {
		r.turnsTotal.WithLabelValues("context_error").Inc()
		r.log.Error("responder: context assembly failed", slog.Any("error", err))
		r.send(ctx, channelID, apology(err))
		return
	}

	msgs := make([]*schema.Message, 0, len(turns)+1)
	for _, turn := range turns {
		msgs = append(msgs, toSchema(turn))
	}
	msgs = append(msgs, schema.UserMessage(content))

	start := time.Now()
	resp, err := r.chat.Generate(ctx, msgs)
	r.generateSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		r.turnsTotal.WithLabelValues("generation_error").Inc()
		r.log.Error("responder: generation failed",
			slog.String("channel_id", channelID),
			slog.Any("error", err))
		r.send(ctx, channelID, apology(err))
		return
	}

	reply := strings.TrimSpace(resp.Content)

	// Both halves of the exchange are appended together. Appending only the
	// user turn after a failed generation would skew later contexts.
	r.store.Add(ctx, channelID, memory.RoleUser, content)
	r.store.Add(ctx, channelID, memory.RoleAssistant, reply)
	r.record(ctx, channelID, content, reply)

	r.turnsTotal.WithLabelValues("ok").Inc()
	if reply == "" {
		reply = fallbackReply
	}
	r.send(ctx, channelID, reply)
}

// handleSearch runs the search-then-summarize path. Search turns bypass the
// memory window entirely.
func (r *Responder) handleSearch(ctx context.Context, channelID, query string) {
	if r.searcher == nil {
		r.turnsTotal.WithLabelValues("search_disabled").Inc()
		r.send(ctx, channelID, "Search is not configured on this bot.")
		return
	}

	results, err := r.searcher.Search(ctx, query, r.resultCount)
	if err != nil {
		r.turnsTotal.WithLabelValues("search_error").Inc()
		r.log.Error("responder: search failed", slog.Any("error", err))
		r.send(ctx, channelID, apology(err))
		return
	}

	prompt := fmt.Sprintf(
		"Answer the user's question clearly and concisely, using the search results below as reference.\n\n# Reference\n%s\n\n# Question\n%s",
		search.FormatResults(results), query)

	start := time.Now()
	resp, err := r.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	r.generateSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		r.turnsTotal.WithLabelValues("generation_error").Inc()
		r.log.Error("responder: search summarization failed", slog.Any("error", err))
		r.send(ctx, channelID, apology(err))
		return
	}

	r.turnsTotal.WithLabelValues("search_ok").Inc()
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		reply = fallbackReply
	}
	r.send(ctx, channelID, reply)
}

// record archives both halves of a completed exchange. Archive failures are
// logged and otherwise ignored; the archive is an audit trail, not a
// dependency of the conversation.
func (r *Responder) record(ctx context.Context, channelID, userText, assistantText string) {
	if r.arch == nil {
		return
	}
	if err := r.arch.Record(ctx, channelID, memory.RoleUser, userText); err != nil {
		r.log.Warn("responder: archive user turn failed", slog.Any("error", err))
	}
	if err := r.arch.Record(ctx, channelID, memory.RoleAssistant, assistantText); err != nil {
		r.log.Warn("responder: archive assistant turn failed", slog.Any("error", err))
	}
}

// send posts text to the channel, logging delivery failures.
func (r *Responder) send(ctx context.Context, channelID, text string) {
	if err := r.messenger.Reply(ctx, channelID, text); err != nil {
		r.log.Error("responder: reply failed",
			slog.String("channel_id", channelID),
			slog.Any("error", err))
	}
}

// limiter returns the per-channel rate limiter, creating one on first use.
func (r *Responder) limiter(channelID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[channelID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(channelRPS), channelBurst)
		r.limiters[channelID] = l
	}
	return l
}

// searchQuery extracts the query from a !search / !research command.
// Returns false when content is not a search command or has no query text.
func searchQuery(content string) (string, bool) {
	lower := strings.ToLower(content)
	for _, prefix := range searchPrefixes {
		if lower == prefix {
			return "", false // command with no query text
		}
		if !strings.HasPrefix(lower, prefix+" ") {
			continue
		}
		rest := strings.TrimSpace(content[len(prefix):])
		if rest == "" {
			return "", false
		}
		return rest, true
	}
	return "", false
}

// toSchema converts a memory turn to the generation backend's message type.
func toSchema(turn memory.Turn) *schema.Message {
	if turn.Role == memory.RoleAssistant {
		return schema.AssistantMessage(turn.Content, nil)
	}
	return schema.UserMessage(turn.Content)
}

// apology is the user-visible failure message for a turn that could not be
// completed. The store is left untouched for that turn.
func apology(err error) string {
	return fmt.Sprintf("Sorry, I ran into an error handling that.\n`%v`", err)
}
