package state

import (
	"strings"
	"time"
)

// Monitor is the typed read view of a document for one instrument set.
// Fields are pointers so "never observed" stays distinct from zero. Keys
// not claimed by a typed field land in Extra unchanged.
type Monitor struct {
	LastUpdated *time.Time
	Version     string
	LastStartup *time.Time

	Equity EquityView
	Crypto CryptoView
	Macro  MacroView

	// Prices holds the daily-summary price slots keyed by ticker
	// (lower case, as stored).
	Prices map[string]float64

	Extra map[string]any
}

// EquityView groups the regime, oscillator, and trailing-stop keys.
type EquityView struct {
	Price      *float64
	SMA        *float64
	AboveSMA   *bool
	RSI        *float64
	Overbought *bool
	Oversold   *bool

	StopPrice     *float64
	HighWaterMark *float64
	DropPct       *float64
	StopHit       *bool
}

// CryptoView groups the canary keys.
type CryptoView struct {
	Price       *float64
	Change24Pct *float64
	Change7Pct  *float64
	CrashActive *bool
}

// MacroView groups the news and rate-policy keys.
type MacroView struct {
	NegativeHits    *int
	MatchedKeywords []string
	ArticlesScanned *int
	NewsLastCheck   *time.Time

	RateCurrent   *float64
	RatePrevious  *float64
	RateDate      string
	RateLastCheck *time.Time
}

// Decode builds the typed view of doc for the given key set.
func Decode(doc Document, keys Keys) Monitor {
	claimed := make(map[string]struct{}, len(doc))

	f := func(key string) *float64 {
		claimed[key] = struct{}{}
		if v, ok := doc.Float(key); ok {
			return &v
		}
		return nil
	}
	i := func(key string) *int {
		claimed[key] = struct{}{}
		if v, ok := doc.Int(key); ok {
			return &v
		}
		return nil
	}
	b := func(key string) *bool {
		claimed[key] = struct{}{}
		if v, ok := doc.Bool(key); ok {
			return &v
		}
		return nil
	}
	s := func(key string) string {
		claimed[key] = struct{}{}
		v, _ := doc.String(key)
		return v
	}
	t := func(key string) *time.Time {
		claimed[key] = struct{}{}
		if v, ok := doc.Time(key); ok {
			return &v
		}
		return nil
	}
	list := func(key string) []string {
		claimed[key] = struct{}{}
		v, _ := doc.Strings(key)
		return v
	}

	m := Monitor{
		LastUpdated: t(KeyLastUpdated),
		Version:     s(KeySchemaVersion),
		LastStartup: t(KeyLastStartup),
		Equity: EquityView{
			Price:         f(keys.BenchmarkPrice()),
			SMA:           f(keys.BenchmarkSMA()),
			AboveSMA:      b(keys.AboveSMA()),
			RSI:           f(keys.RSI()),
			Overbought:    b(keys.Overbought()),
			Oversold:      b(keys.Oversold()),
			StopPrice:     f(keys.StopPrice()),
			HighWaterMark: f(keys.HighWaterMark()),
			DropPct:       f(keys.DropPct()),
			StopHit:       b(keys.StopHit()),
		},
		Crypto: CryptoView{
			Price:       f(keys.CanaryPrice()),
			Change24Pct: f(keys.CanaryChange24h()),
			Change7Pct:  f(keys.CanaryChange7d()),
			CrashActive: b(keys.CrashActive()),
		},
		Macro: MacroView{
			NegativeHits:    i(KeyNewsNegativeHits),
			MatchedKeywords: list(KeyNewsMatchedKeywords),
			ArticlesScanned: i(KeyNewsArticlesScanned),
			NewsLastCheck:   t(KeyNewsLastCheck),
			RateCurrent:     f(KeyFedRateCurrent),
			RatePrevious:    f(KeyFedRatePrevious),
			RateDate:        s(KeyFedRateDate),
			RateLastCheck:   t(KeyFedLastCheck),
		},
		Prices: make(map[string]float64),
	}

	for key := range doc {
		if strings.HasPrefix(key, "price_") {
			if v, ok := doc.Float(key); ok {
				m.Prices[strings.TrimPrefix(key, "price_")] = v
			}
			claimed[key] = struct{}{}
		}
	}

	extra := make(map[string]any)
	for key, value := range doc {
		if _, ok := claimed[key]; ok {
			continue
		}
		extra[key] = value
	}
	m.Extra = extra

	return m
}
