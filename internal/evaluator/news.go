package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-sentinel/internal/fetcher"
	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

// DefaultNegativeKeywords is the stock list of risk-off phrases scanned
// for in headline batches.
var DefaultNegativeKeywords = []string{
	"crash", "recession", "plummet", "liquidity crisis",
	"bear market", "sell-off", "selloff", "collapse",
	"downturn", "panic", "correction", "default",
	"bankruptcy", "crisis", "contagion", "meltdown",
}

// NewsOptions configures the keyword sentiment scan.
type NewsOptions struct {
	Keywords []string
	// Threshold is the hit count at or above which the batch warns.
	Threshold int
	// BatchSize is how many articles to pull per cycle.
	BatchSize int
}

// NewsSentiment counts negative keyword occurrences across the latest
// headline batch. Unlike the technical checks it is stateless: batches
// differ cycle to cycle, so a count above threshold warns every time
// and the dispatcher's cooldown does the de-duplication.
type NewsSentiment struct {
	source   NewsSource
	opts     NewsOptions
	keywords []string
	logger   zerolog.Logger
	now      func() time.Time
}

func NewNewsSentiment(source NewsSource, opts NewsOptions, logger zerolog.Logger) *NewsSentiment {
	if len(opts.Keywords) == 0 {
		opts.Keywords = DefaultNegativeKeywords
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	keywords := make([]string, len(opts.Keywords))
	for i, kw := range opts.Keywords {
		keywords[i] = strings.ToLower(kw)
	}
	return &NewsSentiment{
		source:   source,
		opts:     opts,
		keywords: keywords,
		logger:   logger.With().Str("component", "evaluator").Str("check", "news").Logger(),
		now:      time.Now,
	}
}

func (n *NewsSentiment) Name() string { return "news" }

func (n *NewsSentiment) Evaluate(ctx context.Context, _ state.Document) (*signal.Signal, state.Delta) {
	articles, err := n.source.News(ctx, n.opts.BatchSize)
	if err != nil {
		if errors.Is(err, fetcher.ErrUnavailable) {
			n.logger.Debug().Msg("news source unavailable, skipping cycle")
		} else {
			n.logger.Warn().Err(err).Msg("news fetch failed, skipping cycle")
		}
		return nil, nil
	}

	hits := 0
	var matched []string
	matchedSet := make(map[string]struct{})
	var headlines []string
	seenHeadline := make(map[string]struct{})

	for _, article := range articles {
		combined := strings.ToLower(article.Title + " " + article.Text)
		for _, keyword := range n.keywords {
			count := strings.Count(combined, keyword)
			if count == 0 {
				continue
			}
			hits += count
			if _, ok := matchedSet[keyword]; !ok {
				matchedSet[keyword] = struct{}{}
				matched = append(matched, keyword)
			}
			if title := article.Title; title != "" {
				if _, ok := seenHeadline[strings.ToLower(title)]; !ok {
					seenHeadline[strings.ToLower(title)] = struct{}{}
					headlines = append(headlines, title)
				}
			}
		}
	}

	delta := state.Delta{
		state.KeyNewsNegativeHits:    hits,
		state.KeyNewsMatchedKeywords: capList(matched, 10),
		state.KeyNewsArticlesScanned: len(articles),
		state.KeyNewsLastCheck:       n.now().UTC().Format(state.TimeLayout),
	}

	n.logger.Info().
		Int("negative_hits", hits).
		Int("articles", len(articles)).
		Strs("keywords", matched).
		Msg("news sentiment evaluated")

	if hits >= n.opts.Threshold {
		var b strings.Builder
		for _, h := range capList(headlines, 5) {
			fmt.Fprintf(&b, "  • %s\n", h)
		}
		return &signal.Signal{
			Name:  "NEWS_SENTIMENT_NEGATIVE",
			Level: signal.LevelWarning,
			Message: fmt.Sprintf(
				"⚠️ NEGATIVE NEWS SPIKE DETECTED\nFound %d negative keyword matches in %d articles\nKeywords: %s\nTop headlines:\n%s",
				hits, len(articles), strings.Join(capList(matched, 5), ", "), strings.TrimRight(b.String(), "\n")),
			Value: signal.Float(float64(hits)),
		}, delta
	}

	return &signal.Signal{
		Name:    "NEWS_STATUS",
		Level:   signal.LevelInfo,
		Message: fmt.Sprintf("News: %d neg hits / %d articles scanned", hits, len(articles)),
		Value:   signal.Float(float64(hits)),
	}, delta
}

func capList(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

var _ Evaluator = (*NewsSentiment)(nil)
