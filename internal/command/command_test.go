package command

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testTickers = []string{"SPY", "IVV", "BTC-USD"}

func TestParseRoutesKeywords(t *testing.T) {
	cases := []struct {
		query string
		want  Kind
	}{
		{"what is the price of SPY", KindPrice},
		{"how is the trend looking", KindRegime},
		{"are we overbought", KindOscillator},
		{"is bitcoin dropping", KindCanary},
		{"any bad news today", KindNews},
		{"will the fomc pivot", KindRatePolicy},
		{"current status", KindState},
		{"upcoming events", KindCalendar},
		{"run a complete health check", KindHealth},
		{"what tools are available", KindHelp},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			cmd, err := Parse(tc.query, testTickers)
			require.NoError(t, err)
			require.Equal(t, tc.want, cmd.Kind)
		})
	}
}

func TestParsePrecedence(t *testing.T) {
	// Overlapping trigger words resolve to the earliest route.
	cmd, err := Parse("btc price", testTickers)
	require.NoError(t, err)
	require.Equal(t, KindPrice, cmd.Kind)

	cmd, err = Parse("news summary", testTickers)
	require.NoError(t, err)
	require.Equal(t, KindNews, cmd.Kind)

	cmd, err = Parse("fed rate summary", testTickers)
	require.NoError(t, err)
	require.Equal(t, KindRatePolicy, cmd.Kind)
}

func TestParseTickerExtraction(t *testing.T) {
	cmd, err := Parse("quote for ivv please", testTickers)
	require.NoError(t, err)
	require.Equal(t, KindPrice, cmd.Kind)
	require.Equal(t, "IVV", cmd.Ticker)

	cmd, err = Parse("price of BTC-USD", testTickers)
	require.NoError(t, err)
	require.Equal(t, "BTC-USD", cmd.Ticker)

	// No symbol named means every symbol.
	cmd, err = Parse("quote everything", testTickers)
	require.NoError(t, err)
	require.Empty(t, cmd.Ticker)

	// Ticker words only bind inside a price query.
	cmd, err = Parse("is bitcoin dropping", testTickers)
	require.NoError(t, err)
	require.Empty(t, cmd.Ticker)
}

func TestParseUnknownQuery(t *testing.T) {
	_, err := Parse("hello there", testTickers)
	require.ErrorIs(t, err, ErrNoMatch)

	_, err = Parse("   ", testTickers)
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter(RouterOptions{Tickers: testTickers}, zerolog.Nop())
	r.Register(KindState, func(ctx context.Context, cmd Command) (string, error) {
		return "STATE OK", nil
	})

	out, err := r.Run(context.Background(), "current status")
	require.NoError(t, err)
	require.Equal(t, "STATE OK", out)
}

func TestRouterUnregisteredKind(t *testing.T) {
	r := NewRouter(RouterOptions{Tickers: testTickers}, zerolog.Nop())

	_, err := r.Run(context.Background(), "current status")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no handler registered")
}

func TestRouterUnknownQueryIsError(t *testing.T) {
	r := NewRouter(RouterOptions{Tickers: testTickers}, zerolog.Nop())
	r.Register(KindState, func(ctx context.Context, cmd Command) (string, error) {
		return "STATE OK", nil
	})

	_, err := r.Run(context.Background(), "make me a sandwich")
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestRouterWrapsHandlerError(t *testing.T) {
	boom := errors.New("provider down")
	r := NewRouter(RouterOptions{Tickers: testTickers}, zerolog.Nop())
	r.Register(KindNews, func(ctx context.Context, cmd Command) (string, error) {
		return "", boom
	})

	_, err := r.Run(context.Background(), "any news?")
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), string(KindNews))
}

func TestRouterRegistered(t *testing.T) {
	r := NewRouter(RouterOptions{}, zerolog.Nop())
	r.Register(KindState, nil)
	r.Register(KindHealth, nil)

	require.Equal(t, []Kind{KindHealth, KindState}, r.Registered())
}

func TestHelpListsEveryCommand(t *testing.T) {
	text := Help()
	for _, r := range routes {
		require.Contains(t, text, string(r.kind))
	}
}
