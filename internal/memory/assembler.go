package memory

import (
	"context"
	"fmt"
)

// DefaultFetchLimit is the number of recent platform messages merged into the
// assembled context. Small on purpose: the fetched segment is a safety net
// for turns the bounded store has already evicted, not a second archive.
const DefaultFetchLimit = 5

// PlatformMessage is one message as reported by the messaging platform's
// history endpoint: the author's bot flag plus the cleaned display text.
type PlatformMessage struct {
	// AuthorIsBot is true when the platform attributes the message to a bot.
	AuthorIsBot bool
	// Content is the cleaned text (mentions resolved, markup stripped).
	Content string
}

// Fetcher retrieves up to limit of the most recent messages for a channel,
// newest first, directly from the messaging platform.
type Fetcher interface {
	RecentMessages(ctx context.Context, channelID string, limit int) ([]PlatformMessage, error)
}

// Assembler builds the final ordered context for a generation call: the
// store's short-term history followed by freshly fetched platform history.
// The two segments are not deduplicated; the most recent exchange may appear
// in both, and the generation backend tolerates the repetition.
type Assembler struct {
	store      *Store
	fetcher    Fetcher
	fetchLimit int
}

// NewAssembler constructs an Assembler. fetchLimit defaults to
// DefaultFetchLimit when zero or negative.
func NewAssembler(store *Store, fetcher Fetcher, fetchLimit int) *Assembler {
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	return &Assembler{store: store, fetcher: fetcher, fetchLimit: fetchLimit}
}

// Build returns the context for channelID: store history oldest-first, then
// the fetched platform history reordered oldest-first with empty messages
// dropped and authors mapped onto the two canonical roles. A fetch failure is
// returned to the caller; the store is left untouched either way.
func (a *Assembler) Build(ctx context.Context, channelID string) ([]Turn, error) {
	turns := a.store.History(channelID)

	fetched, err := a.fetcher.RecentMessages(ctx, channelID, a.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("memory: fetch platform history for channel %s: %w", channelID, err)
	}

	// The platform delivers newest-first; walk backwards to append
	// oldest-first. Empty-content messages (attachment-only posts, embeds)
	// carry no text for the model and are skipped.
	for i := len(fetched) - 1; i >= 0; i-- {
		m := fetched[i]
		if m.Content == "" {
			continue
		}
		turns = append(turns, Turn{
			Role:    RoleFromAuthor(m.AuthorIsBot),
			Content: m.Content,
		})
	}

	return turns, nil
}
