// Package evaluator turns current provider data plus the previously
// persisted document into at most one signal and a flat state delta per
// cycle. Evaluators are edge triggered: the delta records the current
// status every cycle, but an alertable level is only produced when the
// status differs from the persisted one. When the data needed for a
// check cannot be resolved the evaluator returns (nil, nil) and leaves
// state untouched until the next cycle.
package evaluator

import (
	"context"
	"math"
	"time"

	"market-sentinel/internal/fetcher"
	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

// MarketData resolves metrics and candle history. *fetcher.Chain
// satisfies it; tests substitute fixed values.
type MarketData interface {
	Resolve(ctx context.Context, m fetcher.Metric, symbol string) fetcher.Result
	Bars(ctx context.Context, symbol string, days int) ([]fetcher.Bar, fetcher.Source, bool)
}

// NewsSource supplies the latest headline batch.
type NewsSource interface {
	News(ctx context.Context, limit int) ([]fetcher.Article, error)
}

// CalendarSource supplies economic calendar events for a date window.
type CalendarSource interface {
	Calendar(ctx context.Context, from, to time.Time) ([]fetcher.CalendarEvent, error)
}

// Evaluator is one monitored phenomenon.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, prev state.Document) (*signal.Signal, state.Delta)
}

// round2 rounds to two decimals at the state-write boundary. Comparisons
// always run on full precision values.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
