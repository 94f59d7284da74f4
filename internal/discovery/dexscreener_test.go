package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const tokenPairsFixture = `{
  "schemaVersion": "1.0.0",
  "pairs": [
    {
      "chainId": "ethereum",
      "dexId": "uniswap",
      "url": "https://dexscreener.com/ethereum/0xpair",
      "pairAddress": "0xpair",
      "baseToken": {"address": "0x5cba0b7b488633cde1a57b8b406a7a7310d2993e", "name": "Auki", "symbol": "AUKI"},
      "priceUsd": "0.02250000",
      "liquidity": {"usd": 152340.12},
      "volume": {"h24": null},
      "priceChange": {"h24": -3.2},
      "pairCreatedAt": 1767225600000
    }
  ]
}`

func TestDexScreenerTokenPairs(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(tokenPairsFixture))
	}))
	defer srv.Close()

	client := NewDexScreener(DexScreenerOptions{BaseURL: srv.URL}, zerolog.Nop())

	pairs, err := client.TokenPairs(context.Background(), evmAddr)
	require.NoError(t, err)
	require.Equal(t, "/latest/dex/tokens/"+evmAddr, gotPath)
	require.Len(t, pairs, 1)

	pair := pairs[0]
	require.Equal(t, "ethereum", pair.Chain)
	require.Equal(t, evmAddr, pair.Address)
	require.Equal(t, "AUKI", pair.Symbol)
	require.Equal(t, "uniswap", pair.DEX)
	require.Equal(t, "https://dexscreener.com/ethereum/0xpair", pair.URL)

	require.True(t, pair.PriceUSD.Valid, "string prices decode")
	require.Equal(t, "0.0225", pair.PriceUSD.Decimal.String())
	require.True(t, pair.LiquidityUSD.Valid, "numeric liquidity decodes")
	require.Equal(t, "152340.12", pair.LiquidityUSD.Decimal.String())
	require.False(t, pair.Volume24hUSD.Valid, "null volume stays unknown")
	require.InDelta(t, -3.2, pair.Change24hPct, 1e-9)

	require.NotNil(t, pair.CreatedAt)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *pair.CreatedAt)
}

func TestDexScreenerNoPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"schemaVersion": "1.0.0", "pairs": null}`))
	}))
	defer srv.Close()

	client := NewDexScreener(DexScreenerOptions{BaseURL: srv.URL}, zerolog.Nop())

	pairs, err := client.TokenPairs(context.Background(), evmAddr)
	require.NoError(t, err)
	require.Empty(t, pairs)
}

func TestDexScreenerBoostedTokensFiltersChain(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`[
		  {"chainId": "base", "tokenAddress": "0x6b175474e89094c44da98b954eedeac495271d0f", "url": "https://dexscreener.com/base/x"},
		  {"chainId": "solana", "tokenAddress": "USoRyaQjch6E18nCdDvWoRgTo6osQs9MUd8JXEsspWR", "url": "https://dexscreener.com/solana/y"}
		]`))
	}))
	defer srv.Close()

	client := NewDexScreener(DexScreenerOptions{BaseURL: srv.URL}, zerolog.Nop())

	boosts, err := client.BoostedTokens(context.Background(), "base")
	require.NoError(t, err)
	require.Equal(t, "/token-boosts/latest/v1", gotPath)
	require.Len(t, boosts, 1)
	require.Equal(t, evmAddrAlt, boosts[0].Address)
	require.Equal(t, "base", boosts[0].Chain)
}

func TestDexScreenerRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewDexScreener(DexScreenerOptions{BaseURL: srv.URL}, zerolog.Nop())

	_, err := client.TokenPairs(context.Background(), evmAddr)
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limited")
}
