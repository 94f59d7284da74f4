package evaluator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

// TrailingStopOptions configures the drawdown check.
type TrailingStopOptions struct {
	Symbol string
	// StopPercent is the drawdown from the high-water mark, in percent,
	// that trips the stop. Stored positive, compared negative.
	StopPercent float64
	// LookbackDays bounds the high-water-mark window.
	LookbackDays int
}

// TrailingStop tracks a position against its rolling high-water mark.
// The mark is recomputed from source candles every cycle rather than
// ratcheted incrementally, so a gap in history heals itself on the next
// good fetch. The stop fires on the first cycle the drawdown breaches
// the threshold, including the very first observation.
type TrailingStop struct {
	data   MarketData
	opts   TrailingStopOptions
	keys   state.Keys
	logger zerolog.Logger
}

func NewTrailingStop(data MarketData, opts TrailingStopOptions, logger zerolog.Logger) *TrailingStop {
	if opts.Symbol == "" {
		opts.Symbol = "IVV"
	}
	if opts.StopPercent <= 0 {
		opts.StopPercent = 5.0
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 30
	}
	return &TrailingStop{
		data:   data,
		opts:   opts,
		keys:   state.Keys{Stop: opts.Symbol},
		logger: logger.With().Str("component", "evaluator").Str("check", "trailing_stop").Logger(),
	}
}

func (t *TrailingStop) Name() string { return "trailing_stop" }

func (t *TrailingStop) Evaluate(ctx context.Context, prev state.Document) (*signal.Signal, state.Delta) {
	// Fetch twice the window so the mark still covers a full lookback
	// when the tail of the range has holiday gaps.
	bars, _, ok := t.data.Bars(ctx, t.opts.Symbol, t.opts.LookbackDays*2)
	if !ok || len(bars) == 0 {
		t.logger.Warn().Str("symbol", t.opts.Symbol).Msg("no candle data for trailing stop, skipping cycle")
		return nil, nil
	}

	recent := bars
	if len(recent) > t.opts.LookbackDays {
		recent = recent[len(recent)-t.opts.LookbackDays:]
	}
	highWaterMark := 0.0
	for _, bar := range recent {
		if bar.High > highWaterMark {
			highWaterMark = bar.High
		}
	}
	current := bars[len(bars)-1].Close
	if highWaterMark <= 0 {
		t.logger.Warn().Str("symbol", t.opts.Symbol).Msg("degenerate high-water mark, skipping cycle")
		return nil, nil
	}

	dropPct := (current - highWaterMark) / highWaterMark * 100

	delta := state.Delta{
		t.keys.StopPrice():     current,
		t.keys.HighWaterMark(): round2(highWaterMark),
		t.keys.DropPct():       round2(dropPct),
	}

	t.logger.Info().
		Str("symbol", t.opts.Symbol).
		Float64("price", current).
		Float64("high_water_mark", highWaterMark).
		Float64("drop_pct", dropPct).
		Msg("trailing stop evaluated")

	if dropPct <= -t.opts.StopPercent {
		wasStopped, _ := prev.Bool(t.keys.StopHit())
		delta[t.keys.StopHit()] = true
		if !wasStopped {
			return &signal.Signal{
				Name:  "TRAILING_STOP",
				Level: signal.LevelWarning,
				Message: fmt.Sprintf(
					"⚠️ TRAILING STOP HIT, %s\nPrice: $%.2f | %dd High: $%.2f\nDrop: %.2f%% (threshold: -%.0f%%)\nAction: review position / consider defensive shift",
					t.opts.Symbol, current, t.opts.LookbackDays, highWaterMark, dropPct, t.opts.StopPercent),
				Value: signal.Float(dropPct),
			}, delta
		}
	} else {
		delta[t.keys.StopHit()] = false
	}

	return &signal.Signal{
		Name:  "TRAILING_STOP_STATUS",
		Level: signal.LevelInfo,
		Message: fmt.Sprintf("%s $%.2f | High: $%.2f | Drop: %.2f%%",
			t.opts.Symbol, current, highWaterMark, dropPct),
		Value: signal.Float(dropPct),
	}, delta
}

var _ Evaluator = (*TrailingStop)(nil)
