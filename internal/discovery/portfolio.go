package discovery

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"market-sentinel/internal/signal"
)

// PortfolioToken identifies one held token to watch.
type PortfolioToken struct {
	Name    string
	Symbol  string
	Address string
	Chain   string
}

// PortfolioOptions configure the held-token monitor.
type PortfolioOptions struct {
	Tokens []PortfolioToken
}

// Portfolio polls the configured holdings and grades each by its 24h
// move. Unlike discovery, the same token reports on every check; the
// dispatcher's cooldowns keep the repeats quiet.
type Portfolio struct {
	pairs    PairSource
	security SecuritySource
	prices   *PriceCache
	opts     PortfolioOptions
	logger   zerolog.Logger
}

// NewPortfolio constructs the monitor with its own price cache.
func NewPortfolio(pairs PairSource, security SecuritySource, opts PortfolioOptions, logger zerolog.Logger) *Portfolio {
	return &Portfolio{
		pairs:    pairs,
		security: security,
		prices:   NewPriceCache(),
		opts:     opts,
		logger:   logger.With().Str("component", "portfolio").Logger(),
	}
}

// Check reports one signal per configured token that could be resolved.
func (p *Portfolio) Check(ctx context.Context) []signal.Signal {
	var signals []signal.Signal
	for _, token := range p.opts.Tokens {
		if sig, ok := p.check(ctx, token); ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

func (p *Portfolio) check(ctx context.Context, token PortfolioToken) (signal.Signal, bool) {
	pairs, err := p.pairs.TokenPairs(ctx, token.Address)
	if err != nil {
		p.logger.Warn().Err(err).Str("symbol", token.Symbol).Msg("token pairs lookup failed")
		return signal.Signal{}, false
	}
	if len(pairs) == 0 {
		p.logger.Warn().Str("symbol", token.Symbol).Str("address", token.Address).Msg("no pairs found")
		return signal.Signal{}, false
	}
	pair := primaryPair(pairs)

	sec, err := p.security.TokenSecurity(ctx, token.Chain, token.Address)
	if err != nil {
		p.logger.Warn().Err(err).Str("symbol", token.Symbol).Msg("token security check failed")
		sec = nil
	}
	score := Score(sec)

	var sinceLast *decimal.Decimal
	if prev, ok := p.prices.Previous(token.Chain, token.Address); ok && prev.IsPositive() && pair.PriceUSD.Valid {
		change := pair.PriceUSD.Decimal.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100))
		sinceLast = &change
	}
	if pair.PriceUSD.Valid && pair.PriceUSD.Decimal.IsPositive() {
		p.prices.Store(token.Chain, token.Address, pair.PriceUSD.Decimal)
	}

	// A steady holding reports nothing; the price cache above still
	// advances so the next notable move measures from here.
	if math.Abs(pair.Change24hPct) < minNotableMovePct {
		p.logger.Debug().
			Str("symbol", token.Symbol).
			Float64("change_24h_pct", pair.Change24hPct).
			Msg("portfolio token steady")
		return signal.Signal{}, false
	}

	level := bandLevel(pair.Change24hPct)

	p.logger.Info().
		Str("symbol", token.Symbol).
		Str("level", string(level)).
		Float64("change_24h_pct", pair.Change24hPct).
		Msg("portfolio token checked")

	return signal.Signal{
		Name:    "portfolio_" + token.Symbol,
		Level:   level,
		Message: portfolioMessage(token, pair, score, sinceLast),
	}, true
}

// minNotableMovePct is the 24h move below which a holding counts as
// steady.
const minNotableMovePct = 1.0

// bandLevel grades a notable 24h move. Double-digit drops page as
// WARNING, double-digit gains as HOT, mid moves land on the watchlist,
// and smaller notable moves stay informational.
func bandLevel(change24 float64) signal.Level {
	abs := math.Abs(change24)
	switch {
	case abs >= 10 && change24 < 0:
		return signal.LevelWarning
	case abs >= 10:
		return signal.LevelHot
	case abs >= 5:
		return signal.LevelWatchlist
	default:
		return signal.LevelInfo
	}
}

func portfolioMessage(token PortfolioToken, pair Pair, score int, sinceLast *decimal.Decimal) string {
	price := "N/A"
	if pair.PriceUSD.Valid && pair.PriceUSD.Decimal.IsPositive() {
		price = "$" + pair.PriceUSD.Decimal.StringFixed(8)
	}
	liquidity := "N/A"
	if pair.LiquidityUSD.Valid {
		liquidity = "$" + pair.LiquidityUSD.Decimal.StringFixed(0)
	}
	volume := "N/A"
	if pair.Volume24hUSD.Valid {
		volume = "$" + pair.Volume24hUSD.Decimal.StringFixed(0)
	}

	changeEmoji := "📈"
	if pair.Change24hPct < 0 {
		changeEmoji = "📉"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💼 PORTFOLIO UPDATE: $%s\n", token.Symbol)
	fmt.Fprintf(&b, "%s\n", strings.Repeat("━", 19))
	fmt.Fprintf(&b, "Token: %s\n", token.Name)
	fmt.Fprintf(&b, "Chain: %s\n\n", strings.ToUpper(token.Chain))
	fmt.Fprintf(&b, "💰 PRICE: %s\n", price)
	fmt.Fprintf(&b, "%s 24h Change: %+.2f%%\n", changeEmoji, pair.Change24hPct)
	if sinceLast != nil {
		arrow := "⬆️"
		if sinceLast.IsNegative() {
			arrow = "⬇️"
		}
		fmt.Fprintf(&b, "Since Last Check: %s %s%%\n", arrow, signedFixed(*sinceLast))
	}
	fmt.Fprintf(&b, "\n📊 METRICS\n")
	fmt.Fprintf(&b, "Liquidity: %s\n", liquidity)
	fmt.Fprintf(&b, "24h Volume: %s\n", volume)
	fmt.Fprintf(&b, "Safety Score: %d/100\n\n", score)
	fmt.Fprintf(&b, "🔗 %s", pair.URL)
	return b.String()
}

// signedFixed renders a decimal with an explicit sign at two places.
func signedFixed(d decimal.Decimal) string {
	text := d.StringFixed(2)
	if !strings.HasPrefix(text, "-") {
		text = "+" + text
	}
	return text
}
