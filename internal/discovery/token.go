package discovery

import (
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Pair is one DEX trading pair, normalised across sources. Money fields
// are NullDecimal: brand-new pools often have no liquidity figure yet,
// and "unknown" must stay distinct from "zero" for the candidate filter.
type Pair struct {
	Chain        string
	Address      string
	PairAddress  string
	Name         string
	Symbol       string
	DEX          string
	URL          string
	PriceUSD     decimal.NullDecimal
	LiquidityUSD decimal.NullDecimal
	Volume24hUSD decimal.NullDecimal
	Change24hPct float64
	CreatedAt    *time.Time
}

// TrendingPool is one entry from the trending listing. Only the name and
// the 24h move matter for grading.
type TrendingPool struct {
	Name         string
	Change24hPct float64
}

// Boost is a promoted token listing. It carries no market data; callers
// resolve the token's pairs before grading.
type Boost struct {
	Chain   string
	Address string
	URL     string
}

var solanaAddressRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ValidAddress reports whether address is plausible for the chain.
// Solana uses base58; every other supported chain is EVM hex.
func ValidAddress(chain, address string) bool {
	if strings.EqualFold(chain, "solana") {
		return solanaAddressRe.MatchString(address)
	}
	return common.IsHexAddress(address)
}

func placeholderSymbol(symbol string) bool {
	switch symbol {
	case "", "???", "UNKNOWN":
		return true
	}
	return false
}

func placeholderName(name string) bool {
	switch name {
	case "", "Unknown", "UNKNOWN":
		return true
	}
	return false
}

// primaryPair picks the deepest market for a token. Pairs with unknown
// liquidity rank below any known figure.
func primaryPair(pairs []Pair) Pair {
	best := pairs[0]
	bestLiq := liquidityOrZero(best)
	for _, pair := range pairs[1:] {
		if liq := liquidityOrZero(pair); liq.GreaterThan(bestLiq) {
			best, bestLiq = pair, liq
		}
	}
	return best
}

func liquidityOrZero(pair Pair) decimal.Decimal {
	if pair.LiquidityUSD.Valid {
		return pair.LiquidityUSD.Decimal
	}
	return decimal.Zero
}

func shortAddress(address string) string {
	if len(address) <= 20 {
		return address
	}
	return address[:20] + "..."
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
