package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

func TestRegimeCrossBelow(t *testing.T) {
	data := &stubData{price: present(400), sma: present(420)}
	r := NewRegime(data, RegimeOptions{Symbol: "SPY", SMAPeriod: 200}, nopLogger())

	prev := state.Document{"spy_above_sma": true}
	sig, delta := r.Evaluate(context.Background(), prev)

	require.NotNil(t, sig)
	require.Equal(t, "SMA_CROSS_BELOW", sig.Name)
	require.Equal(t, signal.LevelCritical, sig.Level)
	require.NotNil(t, sig.Value)
	require.Equal(t, 400.0, *sig.Value)
	require.Equal(t, state.Delta{
		"spy_price":     400.0,
		"spy_sma_200":   420.0,
		"spy_above_sma": false,
	}, delta)
}

func TestRegimeCrossAbove(t *testing.T) {
	data := &stubData{price: present(430), sma: present(420)}
	r := NewRegime(data, RegimeOptions{}, nopLogger())

	sig, delta := r.Evaluate(context.Background(), state.Document{"spy_above_sma": false})

	require.NotNil(t, sig)
	require.Equal(t, "SMA_CROSS_ABOVE", sig.Name)
	require.Equal(t, signal.LevelGreen, sig.Level)
	require.Equal(t, true, delta["spy_above_sma"])
}

func TestRegimeFirstObservationNoAlert(t *testing.T) {
	data := &stubData{price: present(400), sma: present(420)}
	r := NewRegime(data, RegimeOptions{}, nopLogger())

	sig, delta := r.Evaluate(context.Background(), state.Document{})

	require.NotNil(t, sig)
	require.Equal(t, "SMA_STATUS", sig.Name)
	require.Equal(t, signal.LevelInfo, sig.Level)
	require.Contains(t, sig.Message, "BEARISH")
	require.Equal(t, false, delta["spy_above_sma"])
}

func TestRegimeSteadyStateInfo(t *testing.T) {
	data := &stubData{price: present(430), sma: present(420)}
	r := NewRegime(data, RegimeOptions{}, nopLogger())

	sig, _ := r.Evaluate(context.Background(), state.Document{"spy_above_sma": true})

	require.NotNil(t, sig)
	require.Equal(t, "SMA_STATUS", sig.Name)
	require.Contains(t, sig.Message, "BULLISH")
}

func TestRegimeRoundsSMAOnly(t *testing.T) {
	data := &stubData{price: present(412.345678), sma: present(420.456789)}
	r := NewRegime(data, RegimeOptions{}, nopLogger())

	_, delta := r.Evaluate(context.Background(), state.Document{})

	require.Equal(t, 412.345678, delta["spy_price"])
	require.Equal(t, 420.46, delta["spy_sma_200"])
}

func TestRegimeUnavailableDataSkipsCycle(t *testing.T) {
	cases := map[string]*stubData{
		"sma missing":   {price: present(400)},
		"price missing": {sma: present(420)},
		"both missing":  {},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			r := NewRegime(data, RegimeOptions{}, nopLogger())
			sig, delta := r.Evaluate(context.Background(), state.Document{"spy_above_sma": true})
			require.Nil(t, sig)
			require.Empty(t, delta)
		})
	}
}

func TestRegimeAlertsOncePerCross(t *testing.T) {
	data := &stubData{price: present(400), sma: present(420)}
	r := NewRegime(data, RegimeOptions{}, nopLogger())

	doc := state.Document{"spy_above_sma": true}

	sig, delta := r.Evaluate(context.Background(), doc)
	require.Equal(t, "SMA_CROSS_BELOW", sig.Name)
	doc = state.Merge(doc, delta)

	// still below: heartbeat only, no second page
	for i := 0; i < 3; i++ {
		sig, delta = r.Evaluate(context.Background(), doc)
		require.Equal(t, "SMA_STATUS", sig.Name)
		doc = state.Merge(doc, delta)
	}

	// recovery crosses back above
	data.price = present(425)
	sig, delta = r.Evaluate(context.Background(), doc)
	require.Equal(t, "SMA_CROSS_ABOVE", sig.Name)
	doc = state.Merge(doc, delta)

	sig, _ = r.Evaluate(context.Background(), doc)
	require.Equal(t, "SMA_STATUS", sig.Name)
}
