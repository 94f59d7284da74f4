package state

import "fmt"

// Fixed macro keys. These do not derive from a ticker.
const (
	KeyNewsNegativeHits    = "news_negative_hits"
	KeyNewsMatchedKeywords = "news_matched_keywords"
	KeyNewsArticlesScanned = "news_articles_scanned"
	KeyNewsLastCheck       = "news_last_check"

	KeyFedRateCurrent  = "fed_rate_current"
	KeyFedRatePrevious = "fed_rate_previous"
	KeyFedRateDate     = "fed_rate_date"
	KeyFedLastCheck    = "fed_last_check"
)

// Keys derives the instrument-dependent document key names for one
// deployment. Evaluators and the typed view share the same derivation so
// reads and writes cannot drift apart.
type Keys struct {
	Benchmark string
	Stop      string
	Canary    string
	SMAPeriod int
}

func (k Keys) BenchmarkPrice() string { return KeyBase(k.Benchmark) + "_price" }

func (k Keys) BenchmarkSMA() string {
	return fmt.Sprintf("%s_sma_%d", KeyBase(k.Benchmark), k.SMAPeriod)
}

func (k Keys) AboveSMA() string { return KeyBase(k.Benchmark) + "_above_sma" }

func (k Keys) RSI() string { return KeyBase(k.Benchmark) + "_rsi" }

func (k Keys) Overbought() string { return KeyBase(k.Benchmark) + "_rsi_overbought" }

func (k Keys) Oversold() string { return KeyBase(k.Benchmark) + "_rsi_oversold" }

func (k Keys) StopPrice() string { return KeyBase(k.Stop) + "_price" }

func (k Keys) HighWaterMark() string { return KeyBase(k.Stop) + "_high_water_mark" }

func (k Keys) DropPct() string { return KeyBase(k.Stop) + "_drop_pct" }

func (k Keys) StopHit() string { return KeyBase(k.Stop) + "_trailing_stop_hit" }

func (k Keys) CanaryPrice() string { return KeyBase(k.Canary) + "_price" }

func (k Keys) CanaryChange24h() string { return KeyBase(k.Canary) + "_change_24h_pct" }

func (k Keys) CanaryChange7d() string { return KeyBase(k.Canary) + "_change_7d_pct" }

func (k Keys) CrashActive() string { return KeyBase(k.Canary) + "_crash_alert_active" }
