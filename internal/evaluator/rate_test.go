package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"market-sentinel/internal/fetcher"
	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

type stubCalendar struct {
	events []fetcher.CalendarEvent
	err    error

	gotFrom time.Time
	gotTo   time.Time
}

func (s *stubCalendar) Calendar(_ context.Context, from, to time.Time) ([]fetcher.CalendarEvent, error) {
	s.gotFrom, s.gotTo = from, to
	return s.events, s.err
}

func rateEvent(date string, actual, previous *float64) fetcher.CalendarEvent {
	return fetcher.CalendarEvent{Event: "Fed Interest Rate Decision", Date: date, Country: "US", Actual: actual, Previous: previous}
}

func TestRatePolicyCutIsPivot(t *testing.T) {
	source := &stubCalendar{events: []fetcher.CalendarEvent{
		rateEvent("2026-08-20 14:00:00", signal.Float(5.25), signal.Float(5.50)),
	}}
	r := NewRatePolicy(source, RatePolicyOptions{}, nopLogger())

	sig, delta := r.Evaluate(context.Background(), state.Document{})

	require.NotNil(t, sig)
	require.Equal(t, "FED_PIVOT", sig.Name)
	require.Equal(t, signal.LevelInfo, sig.Level)
	require.Equal(t, 5.25, *sig.Value)
	require.Equal(t, 5.25, delta["fed_rate_current"])
	require.Equal(t, 5.5, delta["fed_rate_previous"])
	require.Equal(t, "2026-08-20 14:00:00", delta["fed_rate_date"])
	require.Contains(t, delta, "fed_last_check")
}

func TestRatePolicyHikeWarns(t *testing.T) {
	source := &stubCalendar{events: []fetcher.CalendarEvent{
		rateEvent("2026-08-20 14:00:00", signal.Float(5.75), signal.Float(5.50)),
	}}
	r := NewRatePolicy(source, RatePolicyOptions{}, nopLogger())

	sig, _ := r.Evaluate(context.Background(), state.Document{})

	require.NotNil(t, sig)
	require.Equal(t, "FED_HIKE", sig.Name)
	require.Equal(t, signal.LevelWarning, sig.Level)
}

func TestRatePolicySeenDecisionIsStatus(t *testing.T) {
	source := &stubCalendar{events: []fetcher.CalendarEvent{
		rateEvent("2026-08-20 14:00:00", signal.Float(5.25), signal.Float(5.50)),
	}}
	r := NewRatePolicy(source, RatePolicyOptions{}, nopLogger())

	sig, _ := r.Evaluate(context.Background(), state.Document{"fed_rate_current": 5.25})

	require.NotNil(t, sig)
	require.Equal(t, "FED_STATUS", sig.Name)
	require.Equal(t, signal.LevelInfo, sig.Level)
}

func TestRatePolicyUnchangedRateIsStatus(t *testing.T) {
	source := &stubCalendar{events: []fetcher.CalendarEvent{
		rateEvent("2026-08-20 14:00:00", signal.Float(5.50), signal.Float(5.50)),
	}}
	r := NewRatePolicy(source, RatePolicyOptions{}, nopLogger())

	sig, _ := r.Evaluate(context.Background(), state.Document{})

	require.Equal(t, "FED_STATUS", sig.Name)
}

func TestRatePolicyPicksLatestDecision(t *testing.T) {
	source := &stubCalendar{events: []fetcher.CalendarEvent{
		rateEvent("2026-06-18 14:00:00", signal.Float(5.50), signal.Float(5.50)),
		rateEvent("2026-08-20 14:00:00", signal.Float(5.25), signal.Float(5.50)),
		{Event: "Nonfarm Payrolls", Date: "2026-08-21 08:30:00", Country: "US"},
	}}
	r := NewRatePolicy(source, RatePolicyOptions{LookbackDays: 90}, nopLogger())

	sig, delta := r.Evaluate(context.Background(), state.Document{})

	require.Equal(t, "FED_PIVOT", sig.Name)
	require.Equal(t, "2026-08-20 14:00:00", delta["fed_rate_date"])
	require.WithinDuration(t, r.now(), source.gotTo, time.Minute)
	require.WithinDuration(t, r.now().AddDate(0, 0, -90), source.gotFrom, time.Minute)
}

func TestRatePolicyPendingReleaseNoAlert(t *testing.T) {
	source := &stubCalendar{events: []fetcher.CalendarEvent{
		rateEvent("2026-09-17 14:00:00", nil, signal.Float(5.25)),
	}}
	r := NewRatePolicy(source, RatePolicyOptions{}, nopLogger())

	sig, delta := r.Evaluate(context.Background(), state.Document{"fed_rate_current": 5.25})

	require.Equal(t, "FED_STATUS", sig.Name)
	require.Nil(t, sig.Value)
	// pending decisions must not blank the dedup register
	require.NotContains(t, delta, "fed_rate_current")
	require.Equal(t, 5.25, delta["fed_rate_previous"])
}

func TestRatePolicyNoDecisionsWritesCheckpointOnly(t *testing.T) {
	source := &stubCalendar{events: []fetcher.CalendarEvent{
		{Event: "CPI YoY", Date: "2026-08-12 08:30:00", Country: "US"},
	}}
	r := NewRatePolicy(source, RatePolicyOptions{}, nopLogger())

	sig, delta := r.Evaluate(context.Background(), state.Document{})

	require.Nil(t, sig)
	require.Len(t, delta, 1)
	require.Contains(t, delta, "fed_last_check")
}

func TestRatePolicySourceFailureSkipsCycle(t *testing.T) {
	source := &stubCalendar{err: fetcher.ErrUnavailable}
	r := NewRatePolicy(source, RatePolicyOptions{}, nopLogger())

	sig, delta := r.Evaluate(context.Background(), state.Document{})

	require.Nil(t, sig)
	require.Empty(t, delta)
}
