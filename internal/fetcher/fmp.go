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

// FMPOptions parameterise the macro data client.
type FMPOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// FMP serves market news and the economic calendar. There is no fallback
// vendor for macro data; callers degrade to "no signal this cycle" when a
// request fails.
type FMP struct {
	opts    FMPOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewFMP constructs the client.
func NewFMP(opts FMPOptions, logger zerolog.Logger) *FMP {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://financialmodelingprep.com/api/v3"
	}

	return &FMP{
		opts:    opts,
		logger:  logger.With().Str("component", "provider_fmp").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Enabled reports whether an API key is configured. Without one the macro
// evaluators are disabled for the run.
func (f *FMP) Enabled() bool { return f.opts.APIKey != "" }

// Article is one market news item.
type Article struct {
	Title         string `json:"title"`
	Text          string `json:"text"`
	Site          string `json:"site"`
	URL           string `json:"url"`
	PublishedDate string `json:"publishedDate"`
}

// News fetches the latest stock market news.
func (f *FMP) News(ctx context.Context, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 50
	}
	query := url.Values{"limit": {fmt.Sprintf("%d", limit)}}

	var articles []Article
	if err := f.get(ctx, "/stock_news", query, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// CalendarEvent is one economic calendar entry. Actual and Previous stay
// pointers: the vendor sends null until a figure is published.
type CalendarEvent struct {
	Event    string   `json:"event"`
	Date     string   `json:"date"`
	Country  string   `json:"country"`
	Actual   *float64 `json:"actual"`
	Previous *float64 `json:"previous"`
}

// Calendar fetches economic calendar events for a date window.
func (f *FMP) Calendar(ctx context.Context, from, to time.Time) ([]CalendarEvent, error) {
	query := url.Values{
		"from": {from.UTC().Format("2006-01-02")},
		"to":   {to.UTC().Format("2006-01-02")},
	}

	var events []CalendarEvent
	if err := f.get(ctx, "/economic_calendar", query, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (f *FMP) get(ctx context.Context, path string, query url.Values, out any) error {
	if !f.Enabled() {
		return ErrUnavailable
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("apikey", f.opts.APIKey)
	endpoint := f.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create fmp request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fmp request %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read fmp response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		f.logger.Warn().Str("path", path).Msg("fmp rate limit hit")
		return ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fmp api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode fmp response: %w", err)
	}
	return nil
}
