package fetcher

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"market-sentinel/internal/metrics"
)

// Chain resolves market data across a primary and a fallback provider
// without exposing which vendor answered. Network conditions never escape
// as errors: callers get a present value or an unavailable outcome and
// must treat the latter as a first-class branch.
type Chain struct {
	primary  Provider
	fallback Provider
	logger   zerolog.Logger
}

// NewChain builds a chain. Either provider may be nil when its vendor is
// not configured; the chain simply skips it.
func NewChain(primary, fallback Provider, logger zerolog.Logger) *Chain {
	return &Chain{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "provider_chain").Logger(),
	}
}

type chainSource struct {
	provider Provider
	tag      Source
}

func (c *Chain) sources() []chainSource {
	out := make([]chainSource, 0, 2)
	if c.primary != nil {
		out = append(out, chainSource{c.primary, SourcePrimary})
	}
	if c.fallback != nil {
		out = append(out, chainSource{c.fallback, SourceFallback})
	}
	return out
}

// Resolve fetches one scalar metric, primary first.
func (c *Chain) Resolve(ctx context.Context, m Metric, symbol string) Result {
	for _, src := range c.sources() {
		value, err := src.provider.Metric(ctx, m, symbol)
		if err == nil {
			metrics.ObserveProviderRequest(src.provider.Name(), "ok")
			c.logger.Debug().
				Str("metric", m.String()).
				Str("symbol", symbol).
				Str("source", string(src.tag)).
				Float64("value", value).
				Msg("metric resolved")
			return Resolved(value, src.tag)
		}
		c.observeFailure(src.provider.Name(), m.String(), symbol, err)
	}
	return Unavailable()
}

// Bars fetches daily candles, primary first. ok is false when no source
// could answer.
func (c *Chain) Bars(ctx context.Context, symbol string, days int) ([]Bar, Source, bool) {
	for _, src := range c.sources() {
		bars, err := src.provider.Bars(ctx, symbol, days)
		if err == nil && len(bars) > 0 {
			metrics.ObserveProviderRequest(src.provider.Name(), "ok")
			return bars, src.tag, true
		}
		if err == nil {
			err = ErrUnavailable
		}
		c.observeFailure(src.provider.Name(), "bars", symbol, err)
	}
	return nil, "", false
}

// Prices quotes many symbols at once, using a bulk endpoint when the
// primary offers one and falling back per symbol for the rest.
func (c *Chain) Prices(ctx context.Context, symbols []string) map[string]Result {
	out := make(map[string]Result, len(symbols))

	if bulk, ok := c.primary.(BulkPriceProvider); ok {
		quotes, err := bulk.BulkPrices(ctx, symbols)
		if err == nil {
			metrics.ObserveProviderRequest(c.primary.Name(), "ok")
			for sym, price := range quotes {
				out[sym] = Resolved(price, SourcePrimary)
			}
		} else {
			c.observeFailure(c.primary.Name(), "bulk_prices", "", err)
		}
	}

	for _, sym := range symbols {
		if r, done := out[sym]; done && r.Present {
			continue
		}
		out[sym] = c.Resolve(ctx, Price(), sym)
	}
	return out
}

// MarketOpen reports exchange status when a configured vendor can serve
// it. known is false otherwise; callers should fail open.
func (c *Chain) MarketOpen(ctx context.Context) (open, known bool) {
	for _, src := range c.sources() {
		status, ok := src.provider.(MarketStatusProvider)
		if !ok {
			continue
		}
		isOpen, err := status.MarketOpen(ctx)
		if err != nil {
			c.observeFailure(src.provider.Name(), "market_status", "", err)
			continue
		}
		metrics.ObserveProviderRequest(src.provider.Name(), "ok")
		return isOpen, true
	}
	return false, false
}

func (c *Chain) observeFailure(provider, metric, symbol string, err error) {
	outcome := "error"
	evt := c.logger.Warn()
	if errors.Is(err, ErrUnavailable) {
		outcome = "unavailable"
		evt = c.logger.Debug()
	}
	metrics.ObserveProviderRequest(provider, outcome)
	evt.Err(err).
		Str("provider", provider).
		Str("metric", metric).
		Str("symbol", symbol).
		Msg("provider request failed")
}
