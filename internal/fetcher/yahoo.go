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
)

// YahooOptions parameterise the fallback market data client.
type YahooOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Yahoo serves daily candles from the public chart endpoint and derives
// price and SMA from them locally. It has no server-side oscillator, so
// RSI requests come back unavailable and stay primary-only.
type Yahoo struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewYahoo constructs the client. The chart endpoint rejects requests
// without a browser-ish User-Agent, so one is always set.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}

	return &Yahoo{
		opts:    opts,
		logger:  logger.With().Str("component", "provider_yahoo").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name implements Provider.
func (y *Yahoo) Name() string { return "yahoo" }

// Metric implements Provider. Price is the latest close; SMA averages the
// most recent window of closes.
func (y *Yahoo) Metric(ctx context.Context, m Metric, symbol string) (float64, error) {
	switch m.Kind {
	case KindPrice:
		bars, err := y.Bars(ctx, symbol, 5)
		if err != nil {
			return 0, err
		}
		if len(bars) == 0 {
			return 0, ErrUnavailable
		}
		return bars[len(bars)-1].Close, nil

	case KindSMA:
		if m.Window <= 0 {
			return 0, ErrUnavailable
		}
		// calendar days roughly double trading days; over-fetch to be
		// sure the window is covered
		bars, err := y.Bars(ctx, symbol, m.Window*2)
		if err != nil {
			return 0, err
		}
		if len(bars) < m.Window {
			y.logger.Debug().Str("symbol", symbol).Int("window", m.Window).Int("bars", len(bars)).Msg("not enough history for sma")
			return 0, ErrUnavailable
		}
		sum := 0.0
		for _, b := range bars[len(bars)-m.Window:] {
			sum += b.Close
		}
		return sum / float64(m.Window), nil

	default:
		return 0, ErrUnavailable
	}
}

// Bars implements Provider via the v8 chart endpoint. Sessions the vendor
// reports with null candles are skipped.
func (y *Yahoo) Bars(ctx context.Context, symbol string, days int) ([]Bar, error) {
	if days <= 0 {
		days = 30
	}

	query := url.Values{
		"range":    {rangeForDays(days)},
		"interval": {"1d"},
	}
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(symbol), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create chart request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	ua := strings.TrimSpace(y.opts.UserAgent)
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; market-sentinel/1.0)"
	}
	req.Header.Set("User-Agent", ua)

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chart response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		y.logger.Warn().Str("symbol", symbol).Msg("yahoo rate limit hit")
		return nil, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var res yahooChartResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode chart response: %w", err)
	}
	if res.Chart.Error != nil {
		return nil, fmt.Errorf("chart api error: %s", res.Chart.Error.Description)
	}
	if len(res.Chart.Result) == 0 || len(res.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, ErrUnavailable
	}

	series := res.Chart.Result[0]
	quote := series.Indicators.Quote[0]

	bars := make([]Bar, 0, len(series.Timestamp))
	for i, ts := range series.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		bar := Bar{Time: time.Unix(ts, 0).UTC(), Close: *quote.Close[i]}
		if i < len(quote.Open) && quote.Open[i] != nil {
			bar.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			bar.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			bar.Low = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, ErrUnavailable
	}
	return bars, nil
}

// rangeForDays maps a day count onto the fixed range tokens the chart
// endpoint accepts.
func rangeForDays(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	case days <= 730:
		return "2y"
	default:
		return "5y"
	}
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

var _ Provider = (*Yahoo)(nil)
