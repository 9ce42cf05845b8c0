package memory

import (
	"context"
	"time"
)

// Default limits for the eviction policy. These mirror the production
// deployment: a 10 minute window, at most 20 turns, and a 7168 token budget
// (half of an 8k context, leaving room for fetched history and the reply).
const (
	// DefaultMaxAge is the age window for the first eviction pass.
	DefaultMaxAge = 10 * time.Minute
	// DefaultMaxMessages is the per-channel count cap.
	DefaultMaxMessages = 20
	// DefaultTokenLimit is the estimated token budget for one channel's log.
	DefaultTokenLimit = 7168
)

// Policy holds the three eviction limits applied after every insertion.
// The passes run in a fixed order (age filter, count cap, token trim)
// from the cheapest structural check to the one that needs a token estimate.
// Recency always wins: trimming removes the oldest records first.
type Policy struct {
	// MaxAge is the maximum age of a retained record.
	MaxAge time.Duration
	// MaxMessages is the maximum number of retained records.
	MaxMessages int
	// TokenLimit is the maximum estimated token cost of the retained log.
	TokenLimit int
}

// DefaultPolicy returns a Policy with the production limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxAge:      DefaultMaxAge,
		MaxMessages: DefaultMaxMessages,
		TokenLimit:  DefaultTokenLimit,
	}
}

// Stats reports how many records each pass evicted.
type Stats struct {
	// Age is the number of records dropped by the age filter.
	Age int
	// Count is the number of records dropped by the count cap.
	Count int
	// Token is the number of records dropped by the token-budget trim.
	Token int
}

// Total returns the number of records evicted across all passes.
func (s Stats) Total() int { return s.Age + s.Count + s.Token }

// Apply runs the three eviction passes over msgs (oldest first) and returns
// the trimmed log plus per-pass eviction counts. The input slice is not
// mutated beyond re-slicing; order is always preserved.
func (p Policy) Apply(ctx context.Context, msgs []Message, now time.Time, est TokenEstimator) ([]Message, Stats) {
	var stats Stats

	// Pass 1: age filter. The log is ordered oldest-first with non-decreasing
	// timestamps, so expired records form a prefix.
	cutoff := 0
	for cutoff < len(msgs) && now.Sub(msgs[cutoff].Timestamp) > p.MaxAge {
		cutoff++
	}
	stats.Age = cutoff
	msgs = msgs[cutoff:]

	// Pass 2: count cap. Keep the suffix of the most recent MaxMessages.
	if p.MaxMessages > 0 && len(msgs) > p.MaxMessages {
		stats.Count = len(msgs) - p.MaxMessages
		msgs = msgs[len(msgs)-p.MaxMessages:]
	}

	// Pass 3: token-budget trim. Drop the oldest record until the estimate
	// fits. Stops at an empty log: a single oversized record is removed
	// rather than blocking eviction forever.
	if p.TokenLimit > 0 {
		for len(msgs) > 0 && est.Estimate(ctx, contents(msgs)).Tokens > p.TokenLimit {
			msgs = msgs[1:]
			stats.Token++
		}
	}

	return msgs, stats
}

// contents projects the content strings of msgs for token estimation.
func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
