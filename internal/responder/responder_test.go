package responder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hibiki-bot/hibiki/internal/memory"
	"github.com/hibiki-bot/hibiki/internal/search"
)

const testChannel = "123456789"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChat is a scripted generation backend.
type fakeChat struct {
	reply string
	err   error
	got   []*schema.Message
}

func (f *fakeChat) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChat) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported in fake")
}

// fakeMessenger records replies.
type fakeMessenger struct {
	replies []string
	typing  int
}

func (f *fakeMessenger) Reply(_ context.Context, _ string, text string) error {
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeMessenger) Typing(_ context.Context, _ string) error {
	f.typing++
	return nil
}

// fakeFetcher returns scripted platform history, newest-first.
type fakeFetcher struct {
	msgs []memory.PlatformMessage
	err  error
}

func (f *fakeFetcher) RecentMessages(_ context.Context, _ string, _ int) ([]memory.PlatformMessage, error) {
	return f.msgs, f.err
}

// fakeSearcher returns scripted search results.
type fakeSearcher struct {
	results  []search.Result
	err      error
	gotQuery string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]search.Result, error) {
	f.gotQuery = query
	return f.results, f.err
}

// harness bundles a Responder with its fakes.
type harness struct {
	r         *Responder
	store     *memory.Store
	chat      *fakeChat
	messenger *fakeMessenger
	fetcher   *fakeFetcher
	searcher  *fakeSearcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := prometheus.NewRegistry()
	est := memory.NewEstimator(nil, testLogger(), reg)
	store := memory.NewStore(memory.DefaultPolicy(), est, testLogger(), reg)
	fetcher := &fakeFetcher{}
	chat := &fakeChat{reply: "generated reply"}
	messenger := &fakeMessenger{}
	searcher := &fakeSearcher{}

	r := New(&Config{
		TargetChannelID: testChannel,
		Store:           store,
		Assembler:       memory.NewAssembler(store, fetcher, 5),
		Chat:            chat,
		Messenger:       messenger,
		Searcher:        searcher,
		Archive:         nil,
		Log:             testLogger(),
		Registry:        reg,
	})
	return &harness{r: r, store: store, chat: chat, messenger: messenger, fetcher: fetcher, searcher: searcher}
}

func Test_Handle_IgnoresOtherChannelsAndEmptyContent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.r.Handle(ctx, Event{ChannelID: "999", Content: "hello"})
	h.r.Handle(ctx, Event{ChannelID: testChannel, Content: "   "})

	if len(h.messenger.replies) != 0 {
		t.Errorf("want no replies, got %v", h.messenger.replies)
	}
	if h.chat.got != nil {
		t.Error("generation backend must not be called")
	}
}

func Test_Handle_ResetClearsChannel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.store.Add(ctx, testChannel, memory.RoleUser, "old turn")
	h.r.Handle(ctx, Event{ChannelID: testChannel, Content: "!reset"})

	if got := h.store.History(testChannel); len(got) != 0 {
		t.Errorf("store not cleared: %v", got)
	}
	if len(h.messenger.replies) != 1 || !strings.Contains(h.messenger.replies[0], "reset") {
		t.Errorf("want reset confirmation, got %v", h.messenger.replies)
	}
}

func Test_Handle_NormalTurn(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.store.Add(ctx, testChannel, memory.RoleUser, "earlier question")
	h.fetcher.msgs = []memory.PlatformMessage{{AuthorIsBot: true, Content: "fetched reply"}}

	h.r.Handle(ctx, Event{ChannelID: testChannel, Content: "new question"})

	// Context: store history, fetched history, then the new user message.
	if len(h.chat.got) != 3 {
		t.Fatalf("want 3 messages sent to backend, got %d", len(h.chat.got))
	}
	if h.chat.got[0].Content != "earlier question" {
		t.Errorf("first message = %q, want store history first", h.chat.got[0].Content)
	}
	if h.chat.got[1].Content != "fetched reply" || h.chat.got[1].Role != schema.Assistant {
		t.Errorf("second message = %+v, want fetched assistant turn", h.chat.got[1])
	}
	if h.chat.got[2].Content != "new question" {
		t.Errorf("last message = %q, want the new user turn", h.chat.got[2].Content)
	}

	// Both halves of the exchange are appended.
	hist := h.store.History(testChannel)
	if len(hist) != 3 {
		t.Fatalf("want 3 stored turns, got %d", len(hist))
	}
	if hist[1].Role != memory.RoleUser || hist[1].Content != "new question" {
		t.Errorf("user half missing: %v", hist)
	}
	if hist[2].Role != memory.RoleAssistant || hist[2].Content != "generated reply" {
		t.Errorf("assistant half missing: %v", hist)
	}

	if len(h.messenger.replies) != 1 || h.messenger.replies[0] != "generated reply" {
		t.Errorf("replies = %v", h.messenger.replies)
	}
	if h.messenger.typing != 1 {
		t.Errorf("typing = %d, want 1", h.messenger.typing)
	}
}

func Test_Handle_GenerationErrorLeavesStoreUntouched(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.chat.err = errors.New("backend down")

	h.r.Handle(context.Background(), Event{ChannelID: testChannel, Content: "question"})

	if got := h.store.History(testChannel); len(got) != 0 {
		t.Errorf("store must be untouched after failed generation: %v", got)
	}
	if len(h.messenger.replies) != 1 || !strings.Contains(h.messenger.replies[0], "Sorry") {
		t.Errorf("want apology reply, got %v", h.messenger.replies)
	}
}

func Test_Handle_FetchErrorLeavesStoreUntouched(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.fetcher.err = errors.New("gateway timeout")

	h.r.Handle(context.Background(), Event{ChannelID: testChannel, Content: "question"})

	if got := h.store.History(testChannel); len(got) != 0 {
		t.Errorf("store must be untouched after failed fetch: %v", got)
	}
	if h.chat.got != nil {
		t.Error("generation backend must not be called after failed fetch")
	}
	if len(h.messenger.replies) != 1 || !strings.Contains(h.messenger.replies[0], "Sorry") {
		t.Errorf("want apology reply, got %v", h.messenger.replies)
	}
}

func Test_Handle_EmptyModelReplyGetsFallback(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.chat.reply = "   "

	h.r.Handle(context.Background(), Event{ChannelID: testChannel, Content: "question"})

	if len(h.messenger.replies) != 1 || h.messenger.replies[0] != fallbackReply {
		t.Errorf("replies = %v, want fallback", h.messenger.replies)
	}
}

func Test_Handle_SearchCommand(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.searcher.results = []search.Result{{Title: "Doc", Snippet: "useful fact"}}

	h.r.Handle(context.Background(), Event{ChannelID: testChannel, Content: "!search weather in tokyo"})

	if h.searcher.gotQuery != "weather in tokyo" {
		t.Errorf("search query = %q", h.searcher.gotQuery)
	}
	if len(h.chat.got) != 1 {
		t.Fatalf("want single prompt message, got %d", len(h.chat.got))
	}
	prompt := h.chat.got[0].Content
	if !strings.Contains(prompt, "useful fact") || !strings.Contains(prompt, "weather in tokyo") {
		t.Errorf("prompt missing results or query: %q", prompt)
	}
	// Search turns bypass the memory window.
	if got := h.store.History(testChannel); len(got) != 0 {
		t.Errorf("search turn must not touch the store: %v", got)
	}
}

func Test_Handle_SearchDisabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.r.searcher = nil

	h.r.Handle(context.Background(), Event{ChannelID: testChannel, Content: "!search anything"})

	if len(h.messenger.replies) != 1 || !strings.Contains(h.messenger.replies[0], "not configured") {
		t.Errorf("replies = %v", h.messenger.replies)
	}
}

func Test_Handle_ThrottlesRapidTurns(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	for range channelBurst + 1 {
		h.r.Handle(ctx, Event{ChannelID: testChannel, Content: "spam"})
	}

	if len(h.messenger.replies) != channelBurst {
		t.Errorf("want %d replies before throttling, got %d", channelBurst, len(h.messenger.replies))
	}
}

func Test_SearchQuery(t *testing.T) {
	t.Parallel()
	cases := []struct {
		content string
		want    string
		ok      bool
	}{
		{"!search go generics", "go generics", true},
		{"!research history of tea", "history of tea", true},
		{"!Search MIXED case", "MIXED case", true},
		{"!search", "", false},
		{"!searching for something", "", false},
		{"plain message", "", false},
	}
	for _, tc := range cases {
		got, ok := searchQuery(tc.content)
		if got != tc.want || ok != tc.ok {
			t.Errorf("searchQuery(%q) = (%q, %v), want (%q, %v)", tc.content, got, ok, tc.want, tc.ok)
		}
	}
}
