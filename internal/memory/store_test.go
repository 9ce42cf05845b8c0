package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// newTestStore returns a Store with the given policy, a heuristic-only
// estimator, and a controllable clock.
func newTestStore(t *testing.T, policy Policy) (*Store, *time.Time) {
	t.Helper()
	s := NewStore(policy, heuristicEstimator(), testLogger(), prometheus.NewRegistry())
	current := time.Now()
	s.now = func() time.Time { return current }
	return s, &current
}

func Test_Store_CountCap(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Policy{MaxAge: time.Hour, MaxMessages: 20, TokenLimit: 100000})
	ctx := context.Background()

	for i := range 25 {
		s.Add(ctx, "chan", RoleUser, fmt.Sprintf("msg-%d", i))
	}

	got := s.History("chan")
	if len(got) != 20 {
		t.Fatalf("want 20 records, got %d", len(got))
	}
	if got[0].Content != "msg-5" || got[19].Content != "msg-24" {
		t.Errorf("earliest 5 should be dropped: first=%q last=%q", got[0].Content, got[19].Content)
	}
}

func Test_Store_AgeCap(t *testing.T) {
	t.Parallel()
	s, clock := newTestStore(t, Policy{MaxAge: 10 * time.Minute, MaxMessages: 100, TokenLimit: 100000})
	ctx := context.Background()

	s.Add(ctx, "chan", RoleUser, "stale")
	*clock = clock.Add(11 * time.Minute)
	s.Add(ctx, "chan", RoleAssistant, "fresh")

	got := s.History("chan")
	if len(got) != 1 {
		t.Fatalf("want 1 record, got %d", len(got))
	}
	if got[0].Content != "fresh" {
		t.Errorf("stale record survived: %v", got)
	}
}

func Test_Store_TokenCapHoldsAfterEveryAdd(t *testing.T) {
	t.Parallel()
	const limit = 30
	s, _ := newTestStore(t, Policy{MaxAge: time.Hour, MaxMessages: 100, TokenLimit: limit})
	ctx := context.Background()
	est := heuristicEstimator()

	for i := range 10 {
		s.Add(ctx, "chan", RoleUser, fmt.Sprintf("message number %d", i))
		texts := make([]string, 0, 10)
		for _, turn := range s.History("chan") {
			texts = append(texts, turn.Content)
		}
		if got := est.Estimate(ctx, texts).Tokens; got > limit && len(texts) > 0 {
			t.Fatalf("after add %d: estimated %d tokens, limit %d", i, got, limit)
		}
	}
}

func Test_Store_ClearScope(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, DefaultPolicy())
	ctx := context.Background()

	s.Add(ctx, "5", RoleUser, "in five")
	s.Add(ctx, "7", RoleUser, "in seven")

	s.Clear("5")
	if got := s.History("5"); len(got) != 0 {
		t.Errorf("channel 5 not cleared: %v", got)
	}
	if got := s.History("7"); len(got) != 1 {
		t.Errorf("channel 7 affected by Clear(5): %v", got)
	}

	// Clearing an unknown channel is a no-op.
	s.Clear("does-not-exist")

	s.ClearAll()
	if got := s.History("7"); len(got) != 0 {
		t.Errorf("ClearAll left records in channel 7: %v", got)
	}
}

func Test_Store_ClearedChannelAcceptsNewRecords(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, DefaultPolicy())
	ctx := context.Background()

	s.Add(ctx, "chan", RoleUser, "before")
	s.Clear("chan")
	s.Add(ctx, "chan", RoleUser, "after")

	got := s.History("chan")
	if len(got) != 1 || got[0].Content != "after" {
		t.Errorf("want single record %q, got %v", "after", got)
	}
}

func Test_Store_HistoryPreservesInsertionOrder(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, DefaultPolicy())
	ctx := context.Background()

	// Contents chosen so any content-based reordering would be visible.
	inputs := []string{"zebra", "apple", "zebra", "mango"}
	for _, c := range inputs {
		s.Add(ctx, "chan", RoleUser, c)
	}

	got := s.History("chan")
	if len(got) != len(inputs) {
		t.Fatalf("want %d records, got %d", len(inputs), len(got))
	}
	for i, c := range inputs {
		if got[i].Content != c {
			t.Errorf("got[%d] = %q, want %q", i, got[i].Content, c)
		}
	}
}

func Test_Store_UnknownChannelIsEmpty(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, DefaultPolicy())
	if got := s.History("never-seen"); len(got) != 0 {
		t.Errorf("want empty history, got %v", got)
	}
}

func Test_Store_RoleMappingAtBoundary(t *testing.T) {
	t.Parallel()
	cases := []struct {
		label string
		want  Role
	}{
		{"assistant", RoleAssistant},
		{"model", RoleAssistant},
		{"user", RoleUser},
		{"anything-else", RoleUser},
	}
	for _, tc := range cases {
		if got := RoleFromLabel(tc.label); got != tc.want {
			t.Errorf("RoleFromLabel(%q) = %q, want %q", tc.label, got, tc.want)
		}
	}

	if RoleFromAuthor(true) != RoleAssistant || RoleFromAuthor(false) != RoleUser {
		t.Error("RoleFromAuthor mapping wrong")
	}
}
