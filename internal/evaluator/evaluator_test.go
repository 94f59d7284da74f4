package evaluator

import (
	"context"

	"github.com/rs/zerolog"

	"market-sentinel/internal/fetcher"
)

// stubData serves canned metric results and candles.
type stubData struct {
	price  fetcher.Result
	sma    fetcher.Result
	rsi    fetcher.Result
	bars   []fetcher.Bar
	barsOK bool
}

func (s *stubData) Resolve(_ context.Context, m fetcher.Metric, _ string) fetcher.Result {
	switch m.Kind {
	case fetcher.KindPrice:
		return s.price
	case fetcher.KindSMA:
		return s.sma
	case fetcher.KindRSI:
		return s.rsi
	}
	return fetcher.Result{}
}

func (s *stubData) Bars(_ context.Context, _ string, _ int) ([]fetcher.Bar, fetcher.Source, bool) {
	if !s.barsOK {
		return nil, "", false
	}
	return s.bars, fetcher.SourceFallback, true
}

type stubNews struct {
	articles []fetcher.Article
	err      error
}

func (s *stubNews) News(_ context.Context, _ int) ([]fetcher.Article, error) {
	return s.articles, s.err
}

func present(v float64) fetcher.Result {
	return fetcher.Result{Value: v, Source: fetcher.SourcePrimary, Present: true}
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func barsFromCloses(closes ...float64) []fetcher.Bar {
	bars := make([]fetcher.Bar, len(closes))
	for i, c := range closes {
		bars[i] = fetcher.Bar{Open: c, High: c, Low: c, Close: c}
	}
	return bars
}
