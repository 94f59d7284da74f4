package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// GeckoTerminalOptions parameterise the pool discovery client.
type GeckoTerminalOptions struct {
	BaseURL string
	Timeout time.Duration
}

// GeckoTerminal lists newly created and trending pools. It is the
// primary discovery source: unlike the boosted listings it includes
// liquidity and price for pools that are minutes old.
type GeckoTerminal struct {
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewGeckoTerminal constructs the client.
func NewGeckoTerminal(opts GeckoTerminalOptions, logger zerolog.Logger) *GeckoTerminal {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.geckoterminal.com/api/v2"
	}

	return &GeckoTerminal{
		logger:  logger.With().Str("component", "provider_geckoterminal").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

var networkIDs = map[string]string{
	"solana":   "solana",
	"ethereum": "eth",
	"base":     "base",
	"bsc":      "bsc",
	"arbitrum": "arbitrum",
}

func networkID(chain string) string {
	if id, ok := networkIDs[strings.ToLower(chain)]; ok {
		return id
	}
	return chain
}

// NewPools fetches the most recently created pools on a chain. Pools
// whose base token cannot be identified are dropped.
func (g *GeckoTerminal) NewPools(ctx context.Context, chain string) ([]Pair, error) {
	network := networkID(chain)
	endpoint := fmt.Sprintf("%s/networks/%s/new_pools?include=base_token,quote_token", g.baseURL, network)

	body, err := g.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	included := make(map[string]gjson.Result)
	for _, item := range gjson.GetBytes(body, "included").Array() {
		included[item.Get("id").String()] = item
	}

	var pairs []Pair
	for _, pool := range gjson.GetBytes(body, "data").Array() {
		attrs := pool.Get("attributes")
		tokenID := pool.Get("relationships.base_token.data.id").String()
		token := included[tokenID].Get("attributes")

		address := token.Get("address").String()
		symbol := token.Get("symbol").String()
		if address == "" || symbol == "" || symbol == "???" {
			continue
		}

		pairAddress := poolAddress(pool.Get("id").String())
		pair := Pair{
			Chain:        chain,
			Address:      address,
			PairAddress:  pairAddress,
			Name:         token.Get("name").String(),
			Symbol:       symbol,
			DEX:          attrs.Get("dex_id").String(),
			URL:          fmt.Sprintf("https://www.geckoterminal.com/%s/pools/%s", network, pairAddress),
			PriceUSD:     nullDecimal(attrs.Get("base_token_price_usd")),
			LiquidityUSD: nullDecimal(attrs.Get("reserve_in_usd")),
			Volume24hUSD: nullDecimal(attrs.Get("volume_usd.h24")),
			Change24hPct: attrs.Get("price_change_percentage.h24").Float(),
		}
		if ts := attrs.Get("pool_created_at").String(); ts != "" {
			if created, err := time.Parse(time.RFC3339, ts); err == nil {
				created = created.UTC()
				pair.CreatedAt = &created
			}
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// TrendingPools fetches the chain's trending listing.
func (g *GeckoTerminal) TrendingPools(ctx context.Context, chain string) ([]TrendingPool, error) {
	endpoint := fmt.Sprintf("%s/networks/%s/trending_pools", g.baseURL, networkID(chain))

	body, err := g.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var pools []TrendingPool
	for _, pool := range gjson.GetBytes(body, "data").Array() {
		attrs := pool.Get("attributes")
		name := attrs.Get("name").String()
		if name == "" {
			name = "Unknown"
		}
		pools = append(pools, TrendingPool{
			Name:         name,
			Change24hPct: attrs.Get("price_change_percentage.h24").Float(),
		})
	}
	return pools, nil
}

// poolAddress strips the network prefix from a pool id ("solana_AbC" to
// "AbC"). Ids without a prefix pass through unchanged.
func poolAddress(id string) string {
	if idx := strings.LastIndexByte(id, '_'); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

func nullDecimal(value gjson.Result) decimal.NullDecimal {
	if !value.Exists() || value.String() == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(value.String())
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func (g *GeckoTerminal) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create geckoterminal request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geckoterminal request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read geckoterminal response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		g.logger.Warn().Msg("geckoterminal rate limit hit")
		return nil, fmt.Errorf("geckoterminal rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geckoterminal api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return payload, nil
}

var _ PoolSource = (*GeckoTerminal)(nil)
