package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable reports that a provider cannot serve the requested series
// right now (no data, rate limit, missing credentials). The chain treats
// it like any transport error: try the next source.
var ErrUnavailable = errors.New("fetcher: data unavailable")

// Kind enumerates the scalar series a provider can serve.
type Kind string

const (
	KindPrice Kind = "price"
	KindSMA   Kind = "sma"
	KindRSI   Kind = "rsi"
)

// Metric identifies one scalar series request.
type Metric struct {
	Kind   Kind
	Window int // periods for windowed indicators, ignored for price
}

// Price requests the most recent traded price.
func Price() Metric { return Metric{Kind: KindPrice} }

// SMA requests a simple moving average over window daily closes.
func SMA(window int) Metric { return Metric{Kind: KindSMA, Window: window} }

// RSI requests a relative strength index over window daily closes.
func RSI(window int) Metric { return Metric{Kind: KindRSI, Window: window} }

func (m Metric) String() string {
	if m.Window > 0 {
		return fmt.Sprintf("%s_%d", m.Kind, m.Window)
	}
	return string(m.Kind)
}

// Bar is one daily candle.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Provider serves market data for one upstream vendor. Implementations
// answer with ErrUnavailable rather than guessing; a missing value must
// never come back as zero.
type Provider interface {
	Name() string
	Metric(ctx context.Context, m Metric, symbol string) (float64, error)
	Bars(ctx context.Context, symbol string, days int) ([]Bar, error)
}

// MarketStatusProvider is asserted by the chain when a vendor can report
// exchange hours.
type MarketStatusProvider interface {
	MarketOpen(ctx context.Context) (bool, error)
}

// BulkPriceProvider is asserted by the chain for vendors that can quote
// many symbols in one request.
type BulkPriceProvider interface {
	BulkPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// Source identifies which half of the chain produced a value.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// Result is the tri-state outcome of a resolution: a value with its source
// tag, or unavailable. The zero Result is unavailable; a present zero
// value stays distinguishable from a missing one.
type Result struct {
	Value   float64
	Source  Source
	Present bool
}

// Resolved wraps a present value.
func Resolved(v float64, src Source) Result {
	return Result{Value: v, Source: src, Present: true}
}

// Unavailable is the explicit absent outcome.
func Unavailable() Result { return Result{} }
