package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// heuristicEstimator returns an Estimator with no counter, so token costs are
// exactly the summed character counts, which is predictable in tests.
func heuristicEstimator() *Estimator {
	return NewEstimator(nil, testLogger(), prometheus.NewRegistry())
}

// mkMessages builds n user messages with the given content, timestamped at
// base plus i seconds so the log is strictly ordered.
func mkMessages(n int, content string, base time.Time) []Message {
	msgs := make([]Message, n)
	for i := range msgs {
		msgs[i] = Message{
			Role:      RoleUser,
			Content:   content,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
	}
	return msgs
}

func Test_Policy_AgeFilterDropsExpiredPrefix(t *testing.T) {
	t.Parallel()
	now := time.Now()
	p := Policy{MaxAge: 10 * time.Minute, MaxMessages: 100, TokenLimit: 100000}

	msgs := []Message{
		{Role: RoleUser, Content: "stale", Timestamp: now.Add(-11 * time.Minute)},
		{Role: RoleUser, Content: "fresh", Timestamp: now.Add(-1 * time.Minute)},
		{Role: RoleAssistant, Content: "fresher", Timestamp: now},
	}

	got, stats := p.Apply(context.Background(), msgs, now, heuristicEstimator())
	if len(got) != 2 {
		t.Fatalf("want 2 records after age filter, got %d", len(got))
	}
	if got[0].Content != "fresh" || got[1].Content != "fresher" {
		t.Errorf("order not preserved: %v", got)
	}
	if stats.Age != 1 {
		t.Errorf("stats.Age = %d, want 1", stats.Age)
	}
}

func Test_Policy_CountCapKeepsMostRecentSuffix(t *testing.T) {
	t.Parallel()
	now := time.Now()
	p := Policy{MaxAge: time.Hour, MaxMessages: 3, TokenLimit: 100000}

	msgs := make([]Message, 0, 5)
	for i := range 5 {
		msgs = append(msgs, Message{
			Role:      RoleUser,
			Content:   fmt.Sprintf("msg-%d", i),
			Timestamp: now.Add(time.Duration(i-5) * time.Second),
		})
	}

	got, stats := p.Apply(context.Background(), msgs, now, heuristicEstimator())
	if len(got) != 3 {
		t.Fatalf("want 3 records after count cap, got %d", len(got))
	}
	if got[0].Content != "msg-2" || got[2].Content != "msg-4" {
		t.Errorf("wrong suffix kept: %v", got)
	}
	if stats.Count != 2 {
		t.Errorf("stats.Count = %d, want 2", stats.Count)
	}
}

func Test_Policy_TokenTrimDropsOldestUntilBudgetFits(t *testing.T) {
	t.Parallel()
	now := time.Now()
	// Each message is 6 characters → 6 heuristic tokens. Three messages cost
	// 18 tokens; a 13 token budget fits exactly two.
	p := Policy{MaxAge: time.Hour, MaxMessages: 100, TokenLimit: 13}
	msgs := mkMessages(3, "sixchr", now.Add(-time.Minute))

	got, stats := p.Apply(context.Background(), msgs, now, heuristicEstimator())
	if len(got) != 2 {
		t.Fatalf("want 2 records after token trim, got %d", len(got))
	}
	if stats.Token != 1 {
		t.Errorf("stats.Token = %d, want 1", stats.Token)
	}
}

func Test_Policy_TokenTrimStopsAtEmptyLog(t *testing.T) {
	t.Parallel()
	now := time.Now()
	// A single record over budget is removed; the trim must not loop forever.
	p := Policy{MaxAge: time.Hour, MaxMessages: 100, TokenLimit: 3}
	msgs := mkMessages(1, "waytoolong", now.Add(-time.Minute))

	got, stats := p.Apply(context.Background(), msgs, now, heuristicEstimator())
	if len(got) != 0 {
		t.Fatalf("want empty log, got %d records", len(got))
	}
	if stats.Token != 1 {
		t.Errorf("stats.Token = %d, want 1", stats.Token)
	}
}

func Test_Policy_PassesRunInOrder(t *testing.T) {
	t.Parallel()
	now := time.Now()
	// One stale record plus four fresh ones; cap of 3; each fresh record is
	// 4 tokens with a 9 token budget. Age drops 1, count drops 1, token drops 1.
	p := Policy{MaxAge: 10 * time.Minute, MaxMessages: 3, TokenLimit: 9}

	msgs := []Message{{Role: RoleUser, Content: "old!", Timestamp: now.Add(-time.Hour)}}
	msgs = append(msgs, mkMessages(4, "4chr", now.Add(-time.Minute))...)

	got, stats := p.Apply(context.Background(), msgs, now, heuristicEstimator())
	if stats.Age != 1 || stats.Count != 1 || stats.Token != 1 {
		t.Errorf("stats = %+v, want 1/1/1", stats)
	}
	if len(got) != 2 {
		t.Errorf("want 2 records, got %d", len(got))
	}
}
