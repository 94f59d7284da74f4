// Package discovery watches decentralized exchanges for newly created
// token pairs, grades the survivors with a deterministic safety score,
// and emits one signal per find. Discovery runs around the clock,
// independent of equity market hours, and never grades the same
// chain:address twice in one process lifetime.
package discovery

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"market-sentinel/internal/metrics"
	"market-sentinel/internal/signal"
)

// PoolSource lists newly created and trending pools per chain.
type PoolSource interface {
	NewPools(ctx context.Context, chain string) ([]Pair, error)
	TrendingPools(ctx context.Context, chain string) ([]TrendingPool, error)
}

// PairSource resolves a token's trading pairs and the promoted listing.
type PairSource interface {
	TokenPairs(ctx context.Context, address string) ([]Pair, error)
	BoostedTokens(ctx context.Context, chain string) ([]Boost, error)
}

// SecuritySource audits a token contract.
type SecuritySource interface {
	TokenSecurity(ctx context.Context, chain, address string) (*Security, error)
}

// ScannerOptions configure the discovery sweep.
type ScannerOptions struct {
	// Chains to sweep for new pairs.
	Chains []string
	// TrendingChains to sweep for outsized movers.
	TrendingChains []string
	// MinLiquidityUSD rejects candidates whose liquidity is known and
	// positive but below this floor. Unknown liquidity passes.
	MinLiquidityUSD decimal.Decimal
	// MaxNewTokenAge rejects pairs created longer ago than this.
	MaxNewTokenAge time.Duration
	// Tiers grade score plus liquidity into an alert level.
	Tiers Tiers
	// TrendingMovePct is the minimum absolute 24h move worth reporting.
	TrendingMovePct float64
	// TrendingLimit caps how many trending pools are considered per chain.
	TrendingLimit int
}

// boostResolveLimit bounds the pair lookups done when falling back to
// the boosted listing.
const boostResolveLimit = 10

// Scanner sweeps chains for new tokens and trending pools.
type Scanner struct {
	pools    PoolSource
	pairs    PairSource
	security SecuritySource
	seen     *SeenSet
	opts     ScannerOptions
	logger   zerolog.Logger
	now      func() time.Time
}

// NewScanner constructs the scanner with its own seen-set.
func NewScanner(pools PoolSource, pairs PairSource, security SecuritySource, opts ScannerOptions, logger zerolog.Logger) *Scanner {
	if len(opts.Chains) == 0 {
		opts.Chains = []string{"solana", "base", "ethereum"}
	}
	if len(opts.TrendingChains) == 0 {
		opts.TrendingChains = []string{"solana", "base"}
	}
	if opts.MinLiquidityUSD.IsZero() {
		opts.MinLiquidityUSD = decimal.NewFromInt(10000)
	}
	if opts.MaxNewTokenAge <= 0 {
		opts.MaxNewTokenAge = 2 * time.Hour
	}
	if opts.Tiers.High.IsZero() && opts.Tiers.Mid.IsZero() && opts.Tiers.Low.IsZero() {
		opts.Tiers = DefaultTiers()
	}
	if opts.TrendingMovePct <= 0 {
		opts.TrendingMovePct = 50
	}
	if opts.TrendingLimit <= 0 {
		opts.TrendingLimit = 5
	}

	return &Scanner{
		pools:    pools,
		pairs:    pairs,
		security: security,
		seen:     NewSeenSet(),
		opts:     opts,
		logger:   logger.With().Str("component", "discovery").Logger(),
		now:      time.Now,
	}
}

// Scan sweeps each configured chain for new pairs and returns one signal
// per candidate that survives filtering and grading. A failing chain is
// skipped, not fatal.
func (s *Scanner) Scan(ctx context.Context) []signal.Signal {
	var signals []signal.Signal
	for _, chain := range s.opts.Chains {
		for _, pair := range s.newPairs(ctx, chain) {
			if sig, ok := s.gradePair(ctx, pair); ok {
				signals = append(signals, sig)
			}
		}
	}
	return signals
}

// newPairs prefers the pool discovery source and falls back to resolving
// the boosted listing when it yields nothing.
func (s *Scanner) newPairs(ctx context.Context, chain string) []Pair {
	pairs, err := s.pools.NewPools(ctx, chain)
	if err != nil {
		s.logger.Warn().Err(err).Str("chain", chain).Msg("new pools source failed, trying boosted listings")
	}
	if len(pairs) > 0 {
		return pairs
	}

	boosts, err := s.pairs.BoostedTokens(ctx, chain)
	if err != nil {
		s.logger.Warn().Err(err).Str("chain", chain).Msg("boosted listings failed")
		return nil
	}
	if len(boosts) > boostResolveLimit {
		boosts = boosts[:boostResolveLimit]
	}

	var resolved []Pair
	for _, boost := range boosts {
		tokenPairs, err := s.pairs.TokenPairs(ctx, boost.Address)
		if err != nil || len(tokenPairs) == 0 {
			continue
		}
		resolved = append(resolved, primaryPair(tokenPairs))
	}
	return resolved
}

// gradePair runs the candidate filters, the one-shot dedup, and the
// safety grade for a single pair.
func (s *Scanner) gradePair(ctx context.Context, pair Pair) (signal.Signal, bool) {
	if !ValidAddress(pair.Chain, pair.Address) {
		return signal.Signal{}, false
	}
	if placeholderSymbol(pair.Symbol) || placeholderName(pair.Name) {
		return signal.Signal{}, false
	}
	if s.seen.Contains(pair.Chain, pair.Address) {
		return signal.Signal{}, false
	}
	if pair.CreatedAt != nil && s.now().Sub(*pair.CreatedAt) > s.opts.MaxNewTokenAge {
		return signal.Signal{}, false
	}
	// Liquidity known and under the floor is a skip. Unknown liquidity is
	// a brand-new pool and passes; zero means none added yet.
	if pair.LiquidityUSD.Valid && pair.LiquidityUSD.Decimal.IsPositive() && pair.LiquidityUSD.Decimal.LessThan(s.opts.MinLiquidityUSD) {
		return signal.Signal{}, false
	}

	s.seen.Add(pair.Chain, pair.Address)

	sec, err := s.security.TokenSecurity(ctx, pair.Chain, pair.Address)
	if err != nil {
		// An unverifiable token grades as risky, not as invisible.
		s.logger.Warn().Err(err).Str("chain", pair.Chain).Str("address", pair.Address).Msg("token security check failed")
		sec = nil
	}
	score := Score(sec)
	honeypot := sec != nil && sec.Honeypot
	level := Classify(score, pair.LiquidityUSD, honeypot, s.opts.Tiers)
	metrics.ObserveDiscovery(string(level))

	s.logger.Info().
		Str("chain", pair.Chain).
		Str("symbol", pair.Symbol).
		Int("score", score).
		Str("level", string(level)).
		Msg("new token graded")

	return signal.Signal{
		Name:    "new_token_" + pair.Symbol,
		Level:   level,
		Message: newTokenMessage(pair, sec, score, s.now()),
	}, true
}

// Trending reports pools with outsized 24h moves. Only triple-digit
// gains grade HOT; large drawdowns stay informational.
func (s *Scanner) Trending(ctx context.Context) []signal.Signal {
	var signals []signal.Signal
	for _, chain := range s.opts.TrendingChains {
		pools, err := s.pools.TrendingPools(ctx, chain)
		if err != nil {
			s.logger.Warn().Err(err).Str("chain", chain).Msg("trending pools failed")
			continue
		}
		if len(pools) > s.opts.TrendingLimit {
			pools = pools[:s.opts.TrendingLimit]
		}

		for _, pool := range pools {
			if math.Abs(pool.Change24hPct) < s.opts.TrendingMovePct {
				continue
			}
			level := signal.LevelInfo
			switch {
			case pool.Change24hPct > 100:
				level = signal.LevelHot
			case pool.Change24hPct > 50:
				level = signal.LevelWatchlist
			}

			signals = append(signals, signal.Signal{
				Name:  "trending_" + chain + "_" + truncate(pool.Name, 10),
				Level: level,
				Message: fmt.Sprintf("📈 TRENDING: %s\nChain: %s\n24h Change: %+.1f%%",
					pool.Name, strings.ToUpper(chain), pool.Change24hPct),
			})
		}
	}
	return signals
}

func newTokenMessage(pair Pair, sec *Security, score int, now time.Time) string {
	liquidity := "⏳ Pending"
	if pair.LiquidityUSD.Valid {
		liquidity = "$" + pair.LiquidityUSD.Decimal.StringFixed(0)
	}
	price := "⏳ Pending"
	if pair.PriceUSD.Valid && pair.PriceUSD.Decimal.IsPositive() {
		price = "$" + pair.PriceUSD.Decimal.StringFixed(8)
	}
	volume := "N/A"
	if pair.Volume24hUSD.Valid && pair.Volume24hUSD.Decimal.IsPositive() {
		volume = "$" + pair.Volume24hUSD.Decimal.StringFixed(0)
	}
	age := ""
	if pair.CreatedAt != nil {
		age = fmt.Sprintf(" | Age: %dmin", int(now.Sub(*pair.CreatedAt).Minutes()))
	}

	honeypot := "✅ No"
	if sec != nil && sec.Honeypot {
		honeypot = "❌ YES"
	}
	mintable := "⚠️ Yes"
	if sec != nil && !sec.Mintable {
		mintable = "✅ Revoked"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🆕 NEW TOKEN DETECTED\n")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("━", 19))
	fmt.Fprintf(&b, "Token: $%s (%s)\n", pair.Symbol, pair.Name)
	fmt.Fprintf(&b, "Chain: %s\n", strings.ToUpper(pair.Chain))
	fmt.Fprintf(&b, "DEX: %s\n\n", pair.DEX)
	fmt.Fprintf(&b, "📊 METRICS\n")
	fmt.Fprintf(&b, "Liquidity: %s\n", liquidity)
	fmt.Fprintf(&b, "Price: %s\n", price)
	fmt.Fprintf(&b, "24h Volume: %s%s\n\n", volume, age)
	fmt.Fprintf(&b, "🔒 SAFETY SCORE: %d/100\n", score)
	fmt.Fprintf(&b, "Honeypot: %s\n", honeypot)
	fmt.Fprintf(&b, "Mintable: %s\n\n", mintable)
	fmt.Fprintf(&b, "🔗 Contract: %s\n", shortAddress(pair.Address))
	fmt.Fprintf(&b, "📈 %s", pair.URL)
	return b.String()
}
