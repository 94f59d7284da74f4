package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// GoPlusOptions parameterise the token security client.
type GoPlusOptions struct {
	BaseURL string
	Timeout time.Duration
}

// GoPlus audits token contracts for rug-pull mechanics. Solana has a
// dedicated endpoint; EVM chains share one keyed by numeric chain id.
type GoPlus struct {
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewGoPlus constructs the client.
func NewGoPlus(opts GoPlusOptions, logger zerolog.Logger) *GoPlus {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.gopluslabs.io/api/v1"
	}

	return &GoPlus{
		logger:  logger.With().Str("component", "provider_goplus").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

var goPlusChainIDs = map[string]string{
	"ethereum": "1",
	"base":     "8453",
	"bsc":      "56",
	"arbitrum": "42161",
}

// Security is the parsed audit of one token contract. Tax figures are
// percentages.
type Security struct {
	Honeypot             bool
	Mintable             bool
	OwnershipReclaimable bool
	OwnerChangeBalance   bool
	HiddenOwner          bool
	SelfDestruct         bool
	ExternalCall         bool
	OpenSource           bool
	BuyTaxPct            float64
	SellTaxPct           float64
	HolderCount          int64
	LPHolderCount        int64
}

// TokenSecurity audits one contract address.
func (g *GoPlus) TokenSecurity(ctx context.Context, chain, address string) (*Security, error) {
	var endpoint string
	if strings.EqualFold(chain, "solana") {
		endpoint = fmt.Sprintf("%s/solana/token_security?contract_addresses=%s", g.baseURL, url.QueryEscape(address))
	} else {
		chainID, ok := goPlusChainIDs[strings.ToLower(chain)]
		if !ok {
			chainID = "1"
		}
		endpoint = fmt.Sprintf("%s/token_security/%s?contract_addresses=%s", g.baseURL, chainID, url.QueryEscape(address))
	}

	body, err := g.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	if code := gjson.GetBytes(body, "code").Int(); code != 1 {
		return nil, fmt.Errorf("goplus api code %d: %s", code, gjson.GetBytes(body, "message").String())
	}

	// EVM results are keyed by the lower-cased address; solana keys keep
	// the original base58 casing.
	result := gjson.GetBytes(body, "result."+address)
	if !result.Exists() {
		result = gjson.GetBytes(body, "result."+strings.ToLower(address))
	}
	if !result.Exists() {
		return nil, fmt.Errorf("goplus: no security result for %s", address)
	}

	flag := func(key string) bool {
		return result.Get(key).String() == "1"
	}

	return &Security{
		Honeypot:             flag("is_honeypot"),
		Mintable:             flag("is_mintable"),
		OwnershipReclaimable: flag("can_take_back_ownership"),
		OwnerChangeBalance:   flag("owner_change_balance"),
		HiddenOwner:          flag("hidden_owner"),
		SelfDestruct:         flag("selfdestruct"),
		ExternalCall:         flag("external_call"),
		OpenSource:           flag("is_open_source"),
		BuyTaxPct:            result.Get("buy_tax").Float() * 100,
		SellTaxPct:           result.Get("sell_tax").Float() * 100,
		HolderCount:          result.Get("holder_count").Int(),
		LPHolderCount:        result.Get("lp_holder_count").Int(),
	}, nil
}

func (g *GoPlus) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create goplus request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("goplus request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read goplus response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		g.logger.Warn().Msg("goplus rate limit hit")
		return nil, fmt.Errorf("goplus rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("goplus api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return payload, nil
}

var _ SecuritySource = (*GoPlus)(nil)
