package fetcher

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
	"golang.org/x/time/rate"
)

// PolygonOptions parameterise the primary market data client.
type PolygonOptions struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
}

// Polygon serves prices, server-side indicators, daily aggregates, and
// exchange status. Crypto symbols use the vendor's X: convention; the
// translation stays inside this client.
type Polygon struct {
	opts    PolygonOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewPolygon constructs the client. Free-tier accounts are limited to a
// handful of requests per minute, so every call waits on a limiter.
func NewPolygon(opts PolygonOptions, logger zerolog.Logger) *Polygon {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.polygon.io"
	}

	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = 5
	}

	return &Polygon{
		opts:    opts,
		logger:  logger.With().Str("component", "provider_polygon").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}
}

// Name implements Provider.
func (p *Polygon) Name() string { return "polygon" }

// Metric implements Provider.
func (p *Polygon) Metric(ctx context.Context, m Metric, symbol string) (float64, error) {
	switch m.Kind {
	case KindPrice:
		return p.currentPrice(ctx, symbol)
	case KindSMA:
		return p.indicator(ctx, "sma", symbol, m.Window)
	case KindRSI:
		return p.indicator(ctx, "rsi", symbol, m.Window)
	default:
		return 0, ErrUnavailable
	}
}

// Bars implements Provider via the daily aggregates endpoint.
func (p *Polygon) Bars(ctx context.Context, symbol string, days int) ([]Bar, error) {
	if days <= 0 {
		days = 30
	}
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -days).Format("2006-01-02")
	to := now.Format("2006-01-02")

	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s", convertSymbol(symbol), from, to)
	query := url.Values{"sort": {"asc"}, "limit": {"50000"}, "adjusted": {"true"}}

	var res polygonAggsResponse
	if err := p.get(ctx, path, query, &res); err != nil {
		return nil, err
	}
	if res.ResultsCount == 0 || len(res.Results) == 0 {
		return nil, ErrUnavailable
	}

	bars := make([]Bar, 0, len(res.Results))
	for _, r := range res.Results {
		bars = append(bars, Bar{
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return bars, nil
}

// MarketOpen reports whether the US equity session is open right now.
func (p *Polygon) MarketOpen(ctx context.Context) (bool, error) {
	var res polygonMarketStatusResponse
	if err := p.get(ctx, "/v1/marketstatus/now", nil, &res); err != nil {
		return false, err
	}
	p.logger.Debug().Str("market", res.Market).Msg("market status")
	return res.Market == "open", nil
}

// BulkPrices quotes every equity symbol in one snapshot call. Crypto
// symbols are skipped here; the chain resolves them individually.
func (p *Polygon) BulkPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	equities := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if !isCryptoSymbol(sym) {
			equities = append(equities, convertSymbol(sym))
		}
	}
	if len(equities) == 0 {
		return map[string]float64{}, nil
	}

	query := url.Values{"tickers": {strings.Join(equities, ",")}}
	var res polygonSnapshotsResponse
	if err := p.get(ctx, "/v2/snapshot/locale/us/markets/stocks/tickers", query, &res); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(res.Tickers))
	for _, snap := range res.Tickers {
		if price, ok := snap.price(); ok {
			out[snap.Ticker] = price
		}
	}
	return out, nil
}

func (p *Polygon) currentPrice(ctx context.Context, symbol string) (float64, error) {
	if !isCryptoSymbol(symbol) {
		quotes, err := p.BulkPrices(ctx, []string{symbol})
		if err == nil {
			if price, ok := quotes[symbol]; ok {
				return price, nil
			}
		}
	}
	return p.previousClose(ctx, symbol)
}

func (p *Polygon) previousClose(ctx context.Context, symbol string) (float64, error) {
	path := fmt.Sprintf("/v2/aggs/ticker/%s/prev", convertSymbol(symbol))
	var res polygonAggsResponse
	if err := p.get(ctx, path, nil, &res); err != nil {
		return 0, err
	}
	if res.ResultsCount == 0 || len(res.Results) == 0 {
		return 0, ErrUnavailable
	}
	return res.Results[0].Close, nil
}

func (p *Polygon) indicator(ctx context.Context, name, symbol string, window int) (float64, error) {
	if window <= 0 {
		return 0, ErrUnavailable
	}

	path := fmt.Sprintf("/v1/indicators/%s/%s", name, convertSymbol(symbol))
	query := url.Values{
		"timespan":    {"day"},
		"window":      {fmt.Sprintf("%d", window)},
		"series_type": {"close"},
		"order":       {"desc"},
		"limit":       {"1"},
	}

	var res polygonIndicatorResponse
	if err := p.get(ctx, path, query, &res); err != nil {
		return 0, err
	}
	if len(res.Results.Values) == 0 {
		p.logger.Debug().Str("indicator", name).Str("symbol", symbol).Int("window", window).Msg("no indicator data returned")
		return 0, ErrUnavailable
	}
	return res.Results.Values[0].Value, nil
}

func (p *Polygon) get(ctx context.Context, path string, query url.Values, out any) error {
	if p.opts.APIKey == "" {
		return ErrUnavailable
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", p.opts.APIKey)
	endpoint := p.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create polygon request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("polygon request %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read polygon response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		p.logger.Warn().Str("path", path).Msg("polygon rate limit hit")
		return ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polygon api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode polygon response: %w", err)
	}
	return nil
}

// convertSymbol maps pair-style crypto symbols to the vendor convention:
// BTC-USD becomes X:BTCUSD. Equity symbols pass through.
func convertSymbol(symbol string) string {
	if isCryptoSymbol(symbol) {
		base := strings.TrimSuffix(strings.ToUpper(symbol), "-USD")
		return "X:" + base + "USD"
	}
	return symbol
}

func isCryptoSymbol(symbol string) bool {
	return strings.HasSuffix(strings.ToUpper(symbol), "-USD")
}

type polygonAggsResponse struct {
	ResultsCount int `json:"resultsCount"`
	Results      []struct {
		Timestamp int64   `json:"t"`
		Open      float64 `json:"o"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Close     float64 `json:"c"`
		Volume    float64 `json:"v"`
		VWAP      float64 `json:"vw"`
	} `json:"results"`
}

type polygonIndicatorResponse struct {
	Results struct {
		Values []struct {
			Timestamp int64   `json:"timestamp"`
			Value     float64 `json:"value"`
		} `json:"values"`
	} `json:"results"`
}

type polygonMarketStatusResponse struct {
	Market     string `json:"market"`
	ServerTime string `json:"serverTime"`
}

type polygonSnapshotsResponse struct {
	Tickers []polygonSnapshot `json:"tickers"`
}

type polygonSnapshot struct {
	Ticker string `json:"ticker"`
	Day    struct {
		Open   float64 `json:"o"`
		High   float64 `json:"h"`
		Low    float64 `json:"l"`
		Close  float64 `json:"c"`
		Volume float64 `json:"v"`
	} `json:"day"`
	PrevDay struct {
		Close float64 `json:"c"`
	} `json:"prevDay"`
	LastTrade struct {
		Price float64 `json:"p"`
	} `json:"lastTrade"`
}

// price prefers the real-time last trade, then today's close, then the
// previous close. All-zero means the vendor sent nothing usable.
func (s polygonSnapshot) price() (float64, bool) {
	for _, candidate := range []float64{s.LastTrade.Price, s.Day.Close, s.PrevDay.Close} {
		if candidate != 0 {
			return candidate, true
		}
	}
	return 0, false
}

var _ Provider = (*Polygon)(nil)
var _ MarketStatusProvider = (*Polygon)(nil)
var _ BulkPriceProvider = (*Polygon)(nil)
