package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DexScreenerOptions parameterise the pair lookup client.
type DexScreenerOptions struct {
	BaseURL string
	Timeout time.Duration
}

// DexScreener resolves trading pairs for a known token address and
// serves the boosted listing used as a discovery fallback.
type DexScreener struct {
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewDexScreener constructs the client.
func NewDexScreener(opts DexScreenerOptions, logger zerolog.Logger) *DexScreener {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}

	return &DexScreener{
		logger:  logger.With().Str("component", "provider_dexscreener").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// dexPair mirrors the vendor pair schema. priceUsd arrives as a string,
// liquidity.usd as a number; decimal handles both.
type dexPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	URL         string `json:"url"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  decimal.NullDecimal `json:"priceUsd"`
	Liquidity struct {
		USD decimal.NullDecimal `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 decimal.NullDecimal `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	PairCreatedAt int64 `json:"pairCreatedAt"`
}

func (p dexPair) toPair() Pair {
	pair := Pair{
		Chain:        p.ChainID,
		Address:      p.BaseToken.Address,
		PairAddress:  p.PairAddress,
		Name:         p.BaseToken.Name,
		Symbol:       p.BaseToken.Symbol,
		DEX:          p.DexID,
		URL:          p.URL,
		PriceUSD:     p.PriceUSD,
		LiquidityUSD: p.Liquidity.USD,
		Volume24hUSD: p.Volume.H24,
		Change24hPct: p.PriceChange.H24,
	}
	if pair.URL == "" {
		pair.URL = fmt.Sprintf("https://dexscreener.com/%s/%s", p.ChainID, p.PairAddress)
	}
	if p.PairCreatedAt > 0 {
		created := time.UnixMilli(p.PairCreatedAt).UTC()
		pair.CreatedAt = &created
	}
	return pair
}

// TokenPairs fetches every pair trading the given token address.
func (d *DexScreener) TokenPairs(ctx context.Context, address string) ([]Pair, error) {
	endpoint := d.baseURL + "/latest/dex/tokens/" + url.PathEscape(address)

	body, err := d.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Pairs []dexPair `json:"pairs"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode dexscreener pairs: %w", err)
	}

	pairs := make([]Pair, 0, len(decoded.Pairs))
	for _, p := range decoded.Pairs {
		pairs = append(pairs, p.toPair())
	}
	return pairs, nil
}

// BoostedTokens fetches the latest promoted listings for one chain. The
// listing has no market data; callers resolve each address through
// TokenPairs before grading.
func (d *DexScreener) BoostedTokens(ctx context.Context, chain string) ([]Boost, error) {
	body, err := d.get(ctx, d.baseURL+"/token-boosts/latest/v1")
	if err != nil {
		return nil, err
	}

	var decoded []struct {
		URL          string `json:"url"`
		ChainID      string `json:"chainId"`
		TokenAddress string `json:"tokenAddress"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode dexscreener boosts: %w", err)
	}

	var boosts []Boost
	for _, entry := range decoded {
		if !strings.EqualFold(entry.ChainID, chain) {
			continue
		}
		boosts = append(boosts, Boost{
			Chain:   chain,
			Address: entry.TokenAddress,
			URL:     entry.URL,
		})
	}
	return boosts, nil
}

func (d *DexScreener) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create dexscreener request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dexscreener request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read dexscreener response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		d.logger.Warn().Msg("dexscreener rate limit hit")
		return nil, fmt.Errorf("dexscreener rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return payload, nil
}

var _ PairSource = (*DexScreener)(nil)
