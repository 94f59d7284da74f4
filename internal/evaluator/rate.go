package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-sentinel/internal/fetcher"
	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

// fedEventKeywords select policy-rate rows out of the economic calendar.
var fedEventKeywords = []string{
	"federal funds rate",
	"interest rate decision",
	"fed interest rate",
}

// RatePolicyOptions configures the rate-decision check.
type RatePolicyOptions struct {
	// LookbackDays is how far back to scan the calendar for decisions.
	LookbackDays int
}

// RatePolicy tracks central-bank rate decisions and flags direction
// changes. The gate compares the decision's published rate against the
// last rate recorded in state, so a decision alerts once no matter how
// many polls see it. A cut reads dovish (INFO pivot), a hike warns.
type RatePolicy struct {
	source CalendarSource
	opts   RatePolicyOptions
	logger zerolog.Logger
	now    func() time.Time
}

func NewRatePolicy(source CalendarSource, opts RatePolicyOptions, logger zerolog.Logger) *RatePolicy {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 90
	}
	return &RatePolicy{
		source: source,
		opts:   opts,
		logger: logger.With().Str("component", "evaluator").Str("check", "rate_policy").Logger(),
		now:    time.Now,
	}
}

func (r *RatePolicy) Name() string { return "rate_policy" }

func (r *RatePolicy) Evaluate(ctx context.Context, prev state.Document) (*signal.Signal, state.Delta) {
	now := r.now().UTC()
	from := now.AddDate(0, 0, -r.opts.LookbackDays)

	events, err := r.source.Calendar(ctx, from, now)
	if err != nil {
		if errors.Is(err, fetcher.ErrUnavailable) {
			r.logger.Debug().Msg("calendar source unavailable, skipping cycle")
		} else {
			r.logger.Warn().Err(err).Msg("calendar fetch failed, skipping cycle")
		}
		return nil, nil
	}

	decisions := events[:0:0]
	for _, event := range events {
		name := strings.ToLower(event.Event)
		for _, kw := range fedEventKeywords {
			if strings.Contains(name, kw) {
				decisions = append(decisions, event)
				break
			}
		}
	}

	checked := now.Format(state.TimeLayout)
	if len(decisions) == 0 {
		r.logger.Info().Int("lookback_days", r.opts.LookbackDays).Msg("no rate decisions in window")
		return nil, state.Delta{state.KeyFedLastCheck: checked}
	}

	// Calendar dates sort lexicographically; newest decision first.
	sort.Slice(decisions, func(i, j int) bool { return decisions[i].Date > decisions[j].Date })
	latest := decisions[0]

	delta := state.Delta{
		state.KeyFedRateDate:  latest.Date,
		state.KeyFedLastCheck: checked,
	}
	if latest.Actual != nil {
		delta[state.KeyFedRateCurrent] = *latest.Actual
	}
	if latest.Previous != nil {
		delta[state.KeyFedRatePrevious] = *latest.Previous
	}

	r.logger.Info().
		Str("date", latest.Date).
		Interface("current", latest.Actual).
		Interface("previous", latest.Previous).
		Msg("rate decision evaluated")

	if latest.Actual != nil && latest.Previous != nil {
		curr, prevRate := *latest.Actual, *latest.Previous
		lastKnown, known := prev.Float(state.KeyFedRateCurrent)
		fresh := !known || lastKnown != curr

		switch {
		case curr < prevRate && fresh:
			return &signal.Signal{
				Name:  "FED_PIVOT",
				Level: signal.LevelInfo,
				Message: fmt.Sprintf(
					"🟢 FED PIVOT, RATE CUT DETECTED\nRate: %.2f%% → %.2f%%\nDate: %s\nImplication: dovish, potential BUY signal for equities",
					prevRate, curr, latest.Date),
				Value: signal.Float(curr),
			}, delta
		case curr > prevRate && fresh:
			return &signal.Signal{
				Name:  "FED_HIKE",
				Level: signal.LevelWarning,
				Message: fmt.Sprintf(
					"🔴 FED RATE HIKE\nRate: %.2f%% → %.2f%%\nDate: %s\nImplication: hawkish, tighten risk",
					prevRate, curr, latest.Date),
				Value: signal.Float(curr),
			}, delta
		}
	}

	status := &signal.Signal{
		Name:  "FED_STATUS",
		Level: signal.LevelInfo,
		Message: fmt.Sprintf("Fed Rate: %s (prev: %s) as of %s",
			formatRate(latest.Actual), formatRate(latest.Previous), latest.Date),
	}
	if latest.Actual != nil {
		status.Value = signal.Float(*latest.Actual)
	}
	return status, delta
}

func formatRate(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v)
}

var _ Evaluator = (*RatePolicy)(nil)
