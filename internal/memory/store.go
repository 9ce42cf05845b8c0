package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store holds one bounded log of recent turns per channel. Every Add runs the
// eviction policy for that channel, so the invariants (age window, count cap,
// token budget) hold after each mutation. A channel with no log behaves
// exactly like a channel with an empty one.
//
// The store is safe for concurrent use. The mutex is held across the eviction
// passes, including the token estimate, which serializes insertions; message
// volume on a chat channel is nowhere near the point where that matters.
type Store struct {
	mu     sync.Mutex
	logs   map[string][]Message
	policy Policy
	est    TokenEstimator
	log    *slog.Logger

	// now is the clock used for timestamps and age checks. Tests override it.
	now func() time.Time

	// evictionsTotal counts evicted records, partitioned by pass.
	evictionsTotal *prometheus.CounterVec
	// messagesTotal counts appended records, partitioned by role.
	messagesTotal *prometheus.CounterVec
}

// NewStore constructs a Store with the given eviction policy and estimator.
// Metrics register against reg so tests can inject a fresh registry.
func NewStore(policy Policy, est TokenEstimator, log *slog.Logger, reg prometheus.Registerer) *Store {
	factory := promauto.With(reg)
	return &Store{
		logs:   make(map[string][]Message),
		policy: policy,
		est:    est,
		log:    log,
		now:    time.Now,
		evictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hibiki",
			Subsystem: "memory",
			Name:      "evictions_total",
			Help:      "Conversation records evicted, partitioned by pass (age, count, token).",
		}, []string{"pass"}),
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hibiki",
			Subsystem: "memory",
			Name:      "messages_total",
			Help:      "Conversation records appended to the store, partitioned by role.",
		}, []string{"role"}),
	}
}

// Add appends a turn to the channel's log, timestamped now, then runs the
// eviction passes for that channel. The channel's log is created on first
// use. Add is total: it has no failure modes of its own, and estimation
// failures inside the token pass are absorbed by the Estimator.
func (s *Store) Add(ctx context.Context, channelID string, role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.logs[channelID] = append(s.logs[channelID], Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	s.messagesTotal.WithLabelValues(string(role)).Inc()

	trimmed, stats := s.policy.Apply(ctx, s.logs[channelID], now, s.est)
	s.logs[channelID] = trimmed

	if stats.Total() > 0 {
		s.evictionsTotal.WithLabelValues("age").Add(float64(stats.Age))
		s.evictionsTotal.WithLabelValues("count").Add(float64(stats.Count))
		s.evictionsTotal.WithLabelValues("token").Add(float64(stats.Token))
		s.log.Debug("memory: evicted records",
			slog.String("channel_id", channelID),
			slog.Int("age", stats.Age),
			slog.Int("count", stats.Count),
			slog.Int("token", stats.Token),
			slog.Int("remaining", len(trimmed)),
		)
	}
}

// Clear empties the named channel's log. A channel that has never received a
// message is a no-op. The log itself survives and can receive new records.
func (s *Store) Clear(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[channelID]; ok {
		s.logs[channelID] = nil
	}
}

// ClearAll empties every channel's log (process-wide reset).
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = make(map[string][]Message)
}

// History returns a copy of the channel's log as Turns, oldest first.
// Unknown channels return an empty slice.
func (s *Store) History(channelID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.logs[channelID]
	turns := make([]Turn, len(msgs))
	for i, m := range msgs {
		turns[i] = Turn{Role: m.Role, Content: m.Content}
	}
	return turns
}
