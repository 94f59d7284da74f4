package evaluator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"market-sentinel/internal/fetcher"
	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

// OscillatorOptions configures the RSI band check.
type OscillatorOptions struct {
	Symbol     string
	Period     int
	Overbought float64
	Oversold   float64
}

// Oscillator watches a bounded 0-100 oscillator for band entries.
// Crossing into the overbought band from neutral warns, crossing into
// the oversold band signals GREEN. Staying inside a band does not
// re-alert; leaving both bands resets the flags so the next entry
// counts as a fresh crossing.
type Oscillator struct {
	data   MarketData
	opts   OscillatorOptions
	keys   state.Keys
	logger zerolog.Logger
}

func NewOscillator(data MarketData, opts OscillatorOptions, logger zerolog.Logger) *Oscillator {
	if opts.Symbol == "" {
		opts.Symbol = "SPY"
	}
	if opts.Period <= 0 {
		opts.Period = 14
	}
	if opts.Overbought <= 0 {
		opts.Overbought = 70
	}
	if opts.Oversold <= 0 {
		opts.Oversold = 30
	}
	return &Oscillator{
		data:   data,
		opts:   opts,
		keys:   state.Keys{Benchmark: opts.Symbol},
		logger: logger.With().Str("component", "evaluator").Str("check", "oscillator").Logger(),
	}
}

func (o *Oscillator) Name() string { return "oscillator" }

func (o *Oscillator) Evaluate(ctx context.Context, prev state.Document) (*signal.Signal, state.Delta) {
	res := o.data.Resolve(ctx, fetcher.RSI(o.opts.Period), o.opts.Symbol)
	if !res.Present {
		o.logger.Warn().Str("symbol", o.opts.Symbol).Msg("no rsi data, skipping cycle")
		return nil, nil
	}
	rsi := res.Value

	delta := state.Delta{o.keys.RSI(): round2(rsi)}

	o.logger.Info().Str("symbol", o.opts.Symbol).Float64("rsi", rsi).Msg("oscillator evaluated")

	wasOverbought, _ := prev.Bool(o.keys.Overbought())
	wasOversold, _ := prev.Bool(o.keys.Oversold())

	switch {
	case rsi >= o.opts.Overbought:
		delta[o.keys.Overbought()] = true
		delta[o.keys.Oversold()] = false
		if !wasOverbought {
			return &signal.Signal{
				Name:  "RSI_OVERBOUGHT",
				Level: signal.LevelWarning,
				Message: fmt.Sprintf(
					"⚠️ %s OVERBOUGHT, RSI = %.1f\nRSI above %.0f threshold\nMarket may be extended, watch for a pullback",
					o.opts.Symbol, rsi, o.opts.Overbought),
				Value: signal.Float(rsi),
			}, delta
		}
	case rsi <= o.opts.Oversold:
		delta[o.keys.Overbought()] = false
		delta[o.keys.Oversold()] = true
		if !wasOversold {
			return &signal.Signal{
				Name:  "RSI_OVERSOLD",
				Level: signal.LevelGreen,
				Message: fmt.Sprintf(
					"🟢 %s OVERSOLD, RSI = %.1f\nRSI below %.0f threshold\nPotential buy opportunity, market may be bottoming",
					o.opts.Symbol, rsi, o.opts.Oversold),
				Value: signal.Float(rsi),
			}, delta
		}
	default:
		delta[o.keys.Overbought()] = false
		delta[o.keys.Oversold()] = false
	}

	return &signal.Signal{
		Name:    "RSI_STATUS",
		Level:   signal.LevelInfo,
		Message: fmt.Sprintf("%s RSI(%d): %.1f", o.opts.Symbol, o.opts.Period, rsi),
		Value:   signal.Float(rsi),
	}, delta
}

var _ Evaluator = (*Oscillator)(nil)
