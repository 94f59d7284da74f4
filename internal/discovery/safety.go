package discovery

import (
	"math"

	"github.com/shopspring/decimal"

	"market-sentinel/internal/signal"
)

// Score grades a token 0-100 from its security audit. A honeypot scores
// exactly zero no matter what else the audit says; a missing audit also
// scores zero. Penalties are fixed per risk flag.
func Score(sec *Security) int {
	if sec == nil {
		return 0
	}
	if sec.Honeypot {
		return 0
	}

	score := 100.0
	if sec.Mintable {
		score -= 30
	}
	if sec.OwnershipReclaimable {
		score -= 20
	}
	if sec.OwnerChangeBalance {
		score -= 20
	}
	if sec.HiddenOwner {
		score -= 15
	}
	if sec.BuyTaxPct > 5 {
		score -= math.Min(20, sec.BuyTaxPct)
	}
	if sec.SellTaxPct > 5 {
		score -= math.Min(20, sec.SellTaxPct)
	}
	if !sec.OpenSource {
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	return int(score)
}

// Tiers are the liquidity thresholds used for grading, in USD.
type Tiers struct {
	High decimal.Decimal
	Mid  decimal.Decimal
	Low  decimal.Decimal
}

// DefaultTiers returns the stock grading thresholds.
func DefaultTiers() Tiers {
	return Tiers{
		High: decimal.NewFromInt(20000),
		Mid:  decimal.NewFromInt(5000),
		Low:  decimal.NewFromInt(1000),
	}
}

// Classify buckets a scored candidate into an alert grade. Score and
// liquidity grade jointly; unknown liquidity (a brand-new pool) lands on
// the watchlist rather than HOT regardless of score.
func Classify(score int, liquidity decimal.NullDecimal, honeypot bool, tiers Tiers) signal.Level {
	switch {
	case honeypot || score < 40:
		return signal.LevelWarning
	case score >= 80 && liquidity.Valid && liquidity.Decimal.GreaterThanOrEqual(tiers.High):
		return signal.LevelHot
	case score >= 60 && liquidity.Valid && liquidity.Decimal.GreaterThanOrEqual(tiers.Mid):
		return signal.LevelHot
	case !liquidity.Valid || liquidity.Decimal.GreaterThanOrEqual(tiers.Low):
		return signal.LevelWatchlist
	default:
		return signal.LevelInfo
	}
}
