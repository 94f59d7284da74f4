package evaluator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"market-sentinel/internal/fetcher"
	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

// RegimeOptions configures the moving-average regime check.
type RegimeOptions struct {
	// Symbol is the benchmark ticker, SPY by default.
	Symbol string
	// SMAPeriod is the moving-average window in trading days.
	SMAPeriod int
}

// Regime classifies the benchmark as bullish or bearish relative to its
// long moving average and alerts on crossovers. A cross below pages at
// CRITICAL, a cross back above at GREEN. The first observation never
// alerts; it only seeds the persisted side of the comparison.
type Regime struct {
	data   MarketData
	opts   RegimeOptions
	keys   state.Keys
	logger zerolog.Logger
}

func NewRegime(data MarketData, opts RegimeOptions, logger zerolog.Logger) *Regime {
	if opts.Symbol == "" {
		opts.Symbol = "SPY"
	}
	if opts.SMAPeriod <= 0 {
		opts.SMAPeriod = 200
	}
	return &Regime{
		data:   data,
		opts:   opts,
		keys:   state.Keys{Benchmark: opts.Symbol, SMAPeriod: opts.SMAPeriod},
		logger: logger.With().Str("component", "evaluator").Str("check", "regime").Logger(),
	}
}

func (r *Regime) Name() string { return "regime" }

func (r *Regime) Evaluate(ctx context.Context, prev state.Document) (*signal.Signal, state.Delta) {
	price := r.data.Resolve(ctx, fetcher.Price(), r.opts.Symbol)
	sma := r.data.Resolve(ctx, fetcher.SMA(r.opts.SMAPeriod), r.opts.Symbol)
	if !price.Present || !sma.Present {
		r.logger.Warn().Str("symbol", r.opts.Symbol).Msg("no sma data from any source, skipping cycle")
		return nil, nil
	}

	above := price.Value > sma.Value

	delta := state.Delta{
		r.keys.BenchmarkPrice(): price.Value,
		r.keys.BenchmarkSMA():   round2(sma.Value),
		r.keys.AboveSMA():       above,
	}

	r.logger.Info().
		Str("symbol", r.opts.Symbol).
		Float64("price", price.Value).
		Float64("sma", sma.Value).
		Bool("above", above).
		Str("source", string(price.Source)).
		Msg("regime evaluated")

	wasAbove, known := prev.Bool(r.keys.AboveSMA())
	if known {
		switch {
		case wasAbove && !above:
			return &signal.Signal{
				Name:  "SMA_CROSS_BELOW",
				Level: signal.LevelCritical,
				Message: fmt.Sprintf(
					"🔴 DEFENSIVE MODE TRIGGERED\n%s crossed BELOW %d-day SMA\nPrice: $%.2f | SMA: $%.2f\nAction: consider rotating to defensive income",
					r.opts.Symbol, r.opts.SMAPeriod, price.Value, sma.Value),
				Value: signal.Float(price.Value),
			}, delta
		case !wasAbove && above:
			return &signal.Signal{
				Name:  "SMA_CROSS_ABOVE",
				Level: signal.LevelGreen,
				Message: fmt.Sprintf(
					"🟢 RECOVERY DETECTED\n%s crossed ABOVE %d-day SMA\nPrice: $%.2f | SMA: $%.2f\nAction: consider re-entry",
					r.opts.Symbol, r.opts.SMAPeriod, price.Value, sma.Value),
				Value: signal.Float(price.Value),
			}, delta
		}
	}

	regime := "BULLISH"
	if !above {
		regime = "BEARISH"
	}
	return &signal.Signal{
		Name:    "SMA_STATUS",
		Level:   signal.LevelInfo,
		Message: fmt.Sprintf("%s $%.2f | SMA $%.2f | Regime: %s", r.opts.Symbol, price.Value, sma.Value, regime),
		Value:   signal.Float(price.Value),
	}, delta
}

var _ Evaluator = (*Regime)(nil)
