package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

func TestCanaryCrashDetected(t *testing.T) {
	data := &stubData{bars: barsFromCloses(60000, 60000, 50000, 44000), barsOK: true}
	c := NewCanary(data, CanaryOptions{Symbol: "BTC-USD"}, nopLogger())

	sig, delta := c.Evaluate(context.Background(), state.Document{})

	require.NotNil(t, sig)
	require.Equal(t, "CRYPTO_CANARY", sig.Name)
	require.Equal(t, signal.LevelWarning, sig.Level)
	require.Equal(t, 44000.0, delta["btc_price"])
	require.InDelta(t, -12.0, delta["btc_change_24h_pct"].(float64), 0.001)
	require.Equal(t, true, delta["btc_crash_alert_active"])
}

func TestCanaryStillCrashingHeartbeatOnly(t *testing.T) {
	data := &stubData{bars: barsFromCloses(60000, 50000, 44000), barsOK: true}
	c := NewCanary(data, CanaryOptions{}, nopLogger())

	sig, delta := c.Evaluate(context.Background(), state.Document{"btc_crash_alert_active": true})

	require.NotNil(t, sig)
	require.Equal(t, "CRYPTO_STATUS", sig.Name)
	require.Equal(t, signal.LevelInfo, sig.Level)
	require.Equal(t, true, delta["btc_crash_alert_active"])
}

func TestCanaryRecovers(t *testing.T) {
	data := &stubData{bars: barsFromCloses(50000, 50000, 49000), barsOK: true}
	c := NewCanary(data, CanaryOptions{}, nopLogger())

	sig, delta := c.Evaluate(context.Background(), state.Document{"btc_crash_alert_active": true})

	require.Equal(t, "CRYPTO_STATUS", sig.Name)
	require.Equal(t, false, delta["btc_crash_alert_active"])
	require.Equal(t, -2.0, delta["btc_change_24h_pct"])
}

func TestCanarySevenDayTrend(t *testing.T) {
	// bars[len-7] is the reference close for the trend figure
	data := &stubData{bars: barsFromCloses(90, 100, 100, 80, 90, 95, 100, 110), barsOK: true}
	c := NewCanary(data, CanaryOptions{}, nopLogger())

	_, delta := c.Evaluate(context.Background(), state.Document{})

	require.Equal(t, 10.0, delta["btc_change_7d_pct"])
	require.Equal(t, 10.0, delta["btc_change_24h_pct"])
}

func TestCanaryShortHistoryOmitsTrend(t *testing.T) {
	data := &stubData{bars: barsFromCloses(100, 101), barsOK: true}
	c := NewCanary(data, CanaryOptions{}, nopLogger())

	sig, delta := c.Evaluate(context.Background(), state.Document{})

	require.NotNil(t, sig)
	require.Equal(t, 0.0, delta["btc_change_7d_pct"])
	require.Equal(t, 1.0, delta["btc_change_24h_pct"])
}

func TestCanaryInsufficientDataSkipsCycle(t *testing.T) {
	data := &stubData{bars: barsFromCloses(100), barsOK: true}
	c := NewCanary(data, CanaryOptions{}, nopLogger())

	sig, delta := c.Evaluate(context.Background(), state.Document{})

	require.Nil(t, sig)
	require.Empty(t, delta)
}
