package evaluator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

// CanaryOptions configures the crash canary.
type CanaryOptions struct {
	Symbol string
	// CrashThresholdPct is negative, e.g. -10 alerts on a 10% drop
	// within 24 hours.
	CrashThresholdPct float64
	// TrendLookbackDays sizes the secondary trend figure.
	TrendLookbackDays int
}

// Canary watches a fast-moving reference asset for sudden drops as an
// early risk-off warning. The alert latches while the drop persists and
// releases once the 24h change recovers above the threshold.
type Canary struct {
	data   MarketData
	opts   CanaryOptions
	keys   state.Keys
	logger zerolog.Logger
}

func NewCanary(data MarketData, opts CanaryOptions, logger zerolog.Logger) *Canary {
	if opts.Symbol == "" {
		opts.Symbol = "BTC-USD"
	}
	if opts.CrashThresholdPct >= 0 {
		opts.CrashThresholdPct = -10.0
	}
	if opts.TrendLookbackDays <= 0 {
		opts.TrendLookbackDays = 7
	}
	return &Canary{
		data:   data,
		opts:   opts,
		keys:   state.Keys{Canary: opts.Symbol},
		logger: logger.With().Str("component", "evaluator").Str("check", "canary").Logger(),
	}
}

func (c *Canary) Name() string { return "canary" }

func (c *Canary) Evaluate(ctx context.Context, prev state.Document) (*signal.Signal, state.Delta) {
	bars, _, ok := c.data.Bars(ctx, c.opts.Symbol, 30)
	if !ok || len(bars) < 2 {
		c.logger.Warn().Str("symbol", c.opts.Symbol).Msg("insufficient candle data for canary, skipping cycle")
		return nil, nil
	}

	current := bars[len(bars)-1].Close
	previous := bars[len(bars)-2].Close
	if previous <= 0 {
		c.logger.Warn().Str("symbol", c.opts.Symbol).Msg("degenerate previous close, skipping cycle")
		return nil, nil
	}
	change24 := (current - previous) / previous * 100

	change7d := 0.0
	if n := c.opts.TrendLookbackDays; len(bars) >= n {
		ago := bars[len(bars)-n].Close
		if ago > 0 {
			change7d = (current - ago) / ago * 100
		}
	}

	delta := state.Delta{
		c.keys.CanaryPrice():     current,
		c.keys.CanaryChange24h(): round2(change24),
		c.keys.CanaryChange7d():  round2(change7d),
	}

	c.logger.Info().
		Str("symbol", c.opts.Symbol).
		Float64("price", current).
		Float64("change_24h_pct", change24).
		Float64("change_7d_pct", change7d).
		Msg("canary evaluated")

	if change24 <= c.opts.CrashThresholdPct {
		wasCrashing, _ := prev.Bool(c.keys.CrashActive())
		delta[c.keys.CrashActive()] = true
		if !wasCrashing {
			return &signal.Signal{
				Name:  "CRYPTO_CANARY",
				Level: signal.LevelWarning,
				Message: fmt.Sprintf(
					"⚠️ LIQUIDITY DRAIN DETECTED, %s\n%s dropped %.2f%% in 24 hours\nPrice: $%.2f\n%d-day trend: %+.2f%%\nPossible crash imminent, review risk exposure",
					c.opts.Symbol, c.opts.Symbol, change24, current, c.opts.TrendLookbackDays, change7d),
				Value: signal.Float(change24),
			}, delta
		}
	} else {
		delta[c.keys.CrashActive()] = false
	}

	return &signal.Signal{
		Name:  "CRYPTO_STATUS",
		Level: signal.LevelInfo,
		Message: fmt.Sprintf("%s $%.2f | 24h: %+.2f%% | %dd: %+.2f%%",
			c.opts.Symbol, current, change24, c.opts.TrendLookbackDays, change7d),
		Value: signal.Float(change24),
	}, delta
}

var _ Evaluator = (*Canary)(nil)
