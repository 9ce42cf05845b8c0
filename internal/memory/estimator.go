package memory

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter is the external token-counting capability, implemented in
// production by the Gemini countTokens endpoint (internal/tokencount).
// Count may fail transiently; the Estimator absorbs every failure.
type Counter interface {
	// Count returns the exact token count of the concatenation of texts.
	Count(ctx context.Context, texts []string) (int, error)
}

// Source tags which path produced a Count.
type Source string

const (
	// SourcePrecise means the external counting service answered.
	SourcePrecise Source = "precise"
	// SourceHeuristic means the character-count fallback was used.
	SourceHeuristic Source = "heuristic"
)

// Count is a token estimate tagged with the path that produced it, so callers
// and tests can observe whether the precise service or the fallback answered.
type Count struct {
	// Tokens is the estimated token cost.
	Tokens int
	// Source is the path that produced the estimate.
	Source Source
}

// TokenEstimator estimates the token cost of a list of text fragments.
type TokenEstimator interface {
	// Estimate never fails: it returns a usable (possibly approximate) count.
	Estimate(ctx context.Context, texts []string) Count
}

// Estimator estimates token costs by asking a Counter and degrading to a
// character-count heuristic when the counter is unavailable or errors.
// Failures are logged as warnings and counted in metrics; they never reach
// the caller.
type Estimator struct {
	counter Counter
	log     *slog.Logger

	// estimatesTotal counts estimates partitioned by source (precise/heuristic).
	estimatesTotal *prometheus.CounterVec
}

// NewEstimator constructs an Estimator. counter may be nil, in which case
// every estimate uses the heuristic. Metrics register against reg so tests
// can inject a fresh registry.
func NewEstimator(counter Counter, log *slog.Logger, reg prometheus.Registerer) *Estimator {
	return &Estimator{
		counter: counter,
		log:     log,
		estimatesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "hibiki",
			Subsystem: "memory",
			Name:      "token_estimates_total",
			Help:      "Token estimates performed, partitioned by source (precise or heuristic).",
		}, []string{"source"}),
	}
}

// Estimate returns the token cost of texts. Empty input returns zero without
// touching the counter. On any counter failure the heuristic answer is
// returned instead and the failure is logged as a recoverable warning.
func (e *Estimator) Estimate(ctx context.Context, texts []string) Count {
	if len(texts) == 0 {
		return Count{Tokens: 0, Source: SourcePrecise}
	}

	if e.counter != nil {
		n, err := e.counter.Count(ctx, texts)
		if err == nil {
			e.estimatesTotal.WithLabelValues(string(SourcePrecise)).Inc()
			return Count{Tokens: n, Source: SourcePrecise}
		}
		e.log.Warn("memory: token count failed, using character heuristic",
			slog.Any("error", err))
	}

	e.estimatesTotal.WithLabelValues(string(SourceHeuristic)).Inc()
	return Count{Tokens: heuristicTokens(texts), Source: SourceHeuristic}
}

// heuristicTokens is the fallback proxy: the summed character count of each
// text. It deliberately over-counts for most tokenizers, which only makes the
// budget trim more aggressive, never less safe.
func heuristicTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		total += utf8.RuneCountInString(t)
	}
	return total
}
