package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"market-sentinel/internal/signal"
)

const (
	evmAddr    = "0x5cba0b7b488633cde1a57b8b406a7a7310d2993e"
	evmAddrAlt = "0x6b175474e89094c44da98b954eedeac495271d0f"
	solAddr    = "USoRyaQjch6E18nCdDvWoRgTo6osQs9MUd8JXEsspWR"
)

var scanNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubPools struct {
	pools    map[string][]Pair
	trending map[string][]TrendingPool
	poolsErr error
}

func (s *stubPools) NewPools(_ context.Context, chain string) ([]Pair, error) {
	if s.poolsErr != nil {
		return nil, s.poolsErr
	}
	return s.pools[chain], nil
}

func (s *stubPools) TrendingPools(_ context.Context, chain string) ([]TrendingPool, error) {
	return s.trending[chain], nil
}

type stubPairs struct {
	byToken map[string][]Pair
	boosts  map[string][]Boost
}

func (s *stubPairs) TokenPairs(_ context.Context, address string) ([]Pair, error) {
	return s.byToken[address], nil
}

func (s *stubPairs) BoostedTokens(_ context.Context, chain string) ([]Boost, error) {
	return s.boosts[chain], nil
}

type stubSecurity struct {
	audits map[string]*Security
	err    error
}

func (s *stubSecurity) TokenSecurity(_ context.Context, _, address string) (*Security, error) {
	if s.err != nil {
		return nil, s.err
	}
	if sec, ok := s.audits[address]; ok {
		return sec, nil
	}
	return &Security{OpenSource: true}, nil
}

func testScanner(pools PoolSource, pairs PairSource, sec SecuritySource, opts ScannerOptions) *Scanner {
	sc := NewScanner(pools, pairs, sec, opts, zerolog.Nop())
	sc.now = func() time.Time { return scanNow }
	return sc
}

func knownLiq(v int64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromInt(v), Valid: true}
}

func freshPair(chain, address, symbol string, liquidity decimal.NullDecimal) Pair {
	created := scanNow.Add(-30 * time.Minute)
	return Pair{
		Chain:        chain,
		Address:      address,
		PairAddress:  "pool1",
		Name:         symbol + " Token",
		Symbol:       symbol,
		DEX:          "raydium",
		URL:          "https://example.com/pools/pool1",
		PriceUSD:     decimal.NullDecimal{Decimal: decimal.RequireFromString("0.00001234"), Valid: true},
		LiquidityUSD: liquidity,
		CreatedAt:    &created,
	}
}

func TestScanGradesEachAddressOnce(t *testing.T) {
	pools := &stubPools{pools: map[string][]Pair{
		"ethereum": {freshPair("ethereum", evmAddr, "PEPE", knownLiq(15000))},
	}}
	sc := testScanner(pools, &stubPairs{}, &stubSecurity{}, ScannerOptions{Chains: []string{"ethereum"}})

	first := sc.Scan(context.Background())
	require.Len(t, first, 1)
	require.Equal(t, "new_token_PEPE", first[0].Name)
	require.Equal(t, signal.LevelHot, first[0].Level)

	require.Empty(t, sc.Scan(context.Background()), "an address is graded at most once per process")
	require.Equal(t, 1, sc.seen.Len())
}

func TestScanCandidateFilters(t *testing.T) {
	stale := scanNow.Add(-3 * time.Hour)

	cases := []struct {
		name string
		pair func() Pair
	}{
		{"malformed address", func() Pair {
			return freshPair("ethereum", "0x123", "PEPE", knownLiq(15000))
		}},
		{"solana address on evm chain", func() Pair {
			return freshPair("ethereum", solAddr, "PEPE", knownLiq(15000))
		}},
		{"placeholder symbol", func() Pair {
			return freshPair("ethereum", evmAddr, "???", knownLiq(15000))
		}},
		{"placeholder name", func() Pair {
			p := freshPair("ethereum", evmAddr, "PEPE", knownLiq(15000))
			p.Name = "Unknown"
			return p
		}},
		{"too old", func() Pair {
			p := freshPair("ethereum", evmAddr, "PEPE", knownLiq(15000))
			p.CreatedAt = &stale
			return p
		}},
		{"known thin liquidity", func() Pair {
			return freshPair("ethereum", evmAddr, "PEPE", knownLiq(500))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pools := &stubPools{pools: map[string][]Pair{"ethereum": {tc.pair()}}}
			sc := testScanner(pools, &stubPairs{}, &stubSecurity{}, ScannerOptions{Chains: []string{"ethereum"}})
			require.Empty(t, sc.Scan(context.Background()))
		})
	}
}

func TestScanAllowsUnknownAndZeroLiquidity(t *testing.T) {
	brandNew := freshPair("solana", solAddr, "WEN", decimal.NullDecimal{})
	noLiquidityYet := freshPair("ethereum", evmAddr, "MOON", knownLiq(0))

	pools := &stubPools{pools: map[string][]Pair{
		"solana":   {brandNew},
		"ethereum": {noLiquidityYet},
	}}
	sc := testScanner(pools, &stubPairs{}, &stubSecurity{}, ScannerOptions{Chains: []string{"solana", "ethereum"}})

	signals := sc.Scan(context.Background())
	require.Len(t, signals, 2)
	require.Equal(t, signal.LevelWatchlist, signals[0].Level, "unknown liquidity lands on the watchlist")
	require.Equal(t, signal.LevelInfo, signals[1].Level, "zero liquidity is informational")
}

func TestScanRejectedCandidateIsRetriedLater(t *testing.T) {
	pools := &stubPools{pools: map[string][]Pair{
		"ethereum": {freshPair("ethereum", evmAddr, "PEPE", knownLiq(500))},
	}}
	sc := testScanner(pools, &stubPairs{}, &stubSecurity{}, ScannerOptions{Chains: []string{"ethereum"}})

	require.Empty(t, sc.Scan(context.Background()))
	require.Zero(t, sc.seen.Len(), "filtered candidates are not marked seen")

	// Liquidity grew past the floor by the next sweep.
	pools.pools["ethereum"] = []Pair{freshPair("ethereum", evmAddr, "PEPE", knownLiq(15000))}
	require.Len(t, sc.Scan(context.Background()), 1)
}

func TestScanHoneypotWarns(t *testing.T) {
	pools := &stubPools{pools: map[string][]Pair{
		"ethereum": {freshPair("ethereum", evmAddr, "TRAP", knownLiq(50000))},
	}}
	sec := &stubSecurity{audits: map[string]*Security{
		evmAddr: {Honeypot: true, OpenSource: true},
	}}
	sc := testScanner(pools, &stubPairs{}, sec, ScannerOptions{Chains: []string{"ethereum"}})

	signals := sc.Scan(context.Background())
	require.Len(t, signals, 1)
	require.Equal(t, signal.LevelWarning, signals[0].Level)
	require.Contains(t, signals[0].Message, "SAFETY SCORE: 0/100")
	require.Contains(t, signals[0].Message, "Honeypot: ❌ YES")
}

func TestScanSecurityFailureGradesAsRisky(t *testing.T) {
	pools := &stubPools{pools: map[string][]Pair{
		"ethereum": {freshPair("ethereum", evmAddr, "GHOST", knownLiq(50000))},
	}}
	sc := testScanner(pools, &stubPairs{}, &stubSecurity{err: errors.New("audit backend down")}, ScannerOptions{Chains: []string{"ethereum"}})

	signals := sc.Scan(context.Background())
	require.Len(t, signals, 1)
	require.Equal(t, signal.LevelWarning, signals[0].Level, "unverifiable tokens grade as risky")
	require.Contains(t, signals[0].Message, "SAFETY SCORE: 0/100")
}

func TestScanFallsBackToBoostedListings(t *testing.T) {
	shallow := freshPair("base", evmAddrAlt, "WIF", knownLiq(1000))
	deep := freshPair("base", evmAddrAlt, "WIF", knownLiq(50000))

	pairs := &stubPairs{
		boosts:  map[string][]Boost{"base": {{Chain: "base", Address: evmAddrAlt, URL: "https://example.com/boost"}}},
		byToken: map[string][]Pair{evmAddrAlt: {shallow, deep}},
	}
	sc := testScanner(&stubPools{}, pairs, &stubSecurity{}, ScannerOptions{Chains: []string{"base"}})

	signals := sc.Scan(context.Background())
	require.Len(t, signals, 1)
	require.Equal(t, "new_token_WIF", signals[0].Name)
	require.Contains(t, signals[0].Message, "Liquidity: $50000", "the deepest pair wins")
}

func TestTrendingBuckets(t *testing.T) {
	pools := &stubPools{trending: map[string][]TrendingPool{
		"solana": {
			{Name: "SUPERLONGNAME / SOL", Change24hPct: 150},
			{Name: "DOGE / SOL", Change24hPct: 60},
			{Name: "FLAT / SOL", Change24hPct: 30},
			{Name: "RUG / SOL", Change24hPct: -80},
		},
	}}
	sc := testScanner(pools, &stubPairs{}, &stubSecurity{}, ScannerOptions{TrendingChains: []string{"solana"}})

	signals := sc.Trending(context.Background())
	require.Len(t, signals, 3)

	require.Equal(t, "trending_solana_SUPERLONGN", signals[0].Name, "pool names truncate to ten runes")
	require.Equal(t, signal.LevelHot, signals[0].Level)
	require.Contains(t, signals[0].Message, "+150.0%")

	require.Equal(t, signal.LevelWatchlist, signals[1].Level)
	require.Equal(t, signal.LevelInfo, signals[2].Level, "large drawdowns stay informational")
}

func TestTrendingHonoursLimit(t *testing.T) {
	var many []TrendingPool
	for i := 0; i < 6; i++ {
		many = append(many, TrendingPool{Name: "POOL", Change24hPct: 200})
	}
	pools := &stubPools{trending: map[string][]TrendingPool{"solana": many}}
	sc := testScanner(pools, &stubPairs{}, &stubSecurity{}, ScannerOptions{TrendingChains: []string{"solana"}})

	require.Len(t, sc.Trending(context.Background()), 5)
}

func TestSeenSetScopedByChain(t *testing.T) {
	seen := NewSeenSet()
	seen.Add("ethereum", evmAddr)

	require.True(t, seen.Contains("ethereum", evmAddr))
	require.False(t, seen.Contains("base", evmAddr), "the same address on another chain is a different token")
	require.Equal(t, 1, seen.Len())
}

func TestValidAddress(t *testing.T) {
	require.True(t, ValidAddress("ethereum", evmAddr))
	require.True(t, ValidAddress("base", evmAddrAlt))
	require.False(t, ValidAddress("ethereum", "0x123"))
	require.False(t, ValidAddress("ethereum", "not-an-address"))

	require.True(t, ValidAddress("solana", solAddr))
	require.False(t, ValidAddress("solana", evmAddr), "hex is not base58")
	require.False(t, ValidAddress("solana", "tooshort"))
}
