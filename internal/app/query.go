package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"market-sentinel/internal/command"
	"market-sentinel/internal/evaluator"
	"market-sentinel/internal/fetcher"
	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

const (
	calendarLookaheadDays = 7
	calendarEventCap      = 20
)

// Query routes one operator question through the command set and returns
// the rendered answer. Handlers read fresh market data but never persist
// state; only the scheduled cycles and explicit checks write.
func (a *App) Query(ctx context.Context, text string) (string, error) {
	m, err := a.newMonitor(ctx)
	if err != nil {
		return "", err
	}
	defer m.close()

	router := command.NewRouter(command.RouterOptions{Tickers: a.Config.Monitor.AllTickers()}, a.Logger)
	a.registerHandlers(router, m)
	return router.Run(ctx, text)
}

func (a *App) registerHandlers(router *command.Router, m *monitor) {
	router.Register(command.KindPrice, a.handlePrice(m))
	router.Register(command.KindRegime, a.handleRegime(m))
	router.Register(command.KindOscillator, a.handleOscillator(m))
	router.Register(command.KindCanary, a.handleCanary(m))
	router.Register(command.KindNews, a.handleNews(m))
	router.Register(command.KindRatePolicy, a.handleRatePolicy(m))
	router.Register(command.KindState, a.handleState(m))
	router.Register(command.KindCalendar, a.handleCalendar(m))
	router.Register(command.KindHealth, a.handleHealth(m))
	router.Register(command.KindHelp, func(context.Context, command.Command) (string, error) {
		return command.Help(), nil
	})
}

func (a *App) handlePrice(m *monitor) command.HandlerFunc {
	return func(ctx context.Context, cmd command.Command) (string, error) {
		if cmd.Ticker != "" {
			res := m.chain.Resolve(ctx, fetcher.Price(), cmd.Ticker)
			if !res.Present {
				return "", fmt.Errorf("could not fetch price for %s", cmd.Ticker)
			}
			return fmt.Sprintf("%s: $%.2f", cmd.Ticker, res.Value), nil
		}

		tickers := a.Config.Monitor.AllTickers()
		results := m.chain.Prices(ctx, tickers)
		lines := []string{"Current prices:"}
		for _, ticker := range tickers {
			if res, ok := results[ticker]; ok && res.Present {
				lines = append(lines, fmt.Sprintf("  %s: $%.2f", ticker, res.Value))
			} else {
				lines = append(lines, fmt.Sprintf("  %s: unavailable", ticker))
			}
		}
		return strings.Join(lines, "\n"), nil
	}
}

func (a *App) handleRegime(m *monitor) command.HandlerFunc {
	mcfg := a.Config.Monitor
	return func(ctx context.Context, _ command.Command) (string, error) {
		price := m.chain.Resolve(ctx, fetcher.Price(), mcfg.Benchmark)
		sma := m.chain.Resolve(ctx, fetcher.SMA(mcfg.SMAPeriod), mcfg.Benchmark)
		if !price.Present || !sma.Present {
			return "", fmt.Errorf("could not fetch price and SMA for %s", mcfg.Benchmark)
		}

		regime := "BEARISH"
		if price.Value > sma.Value {
			regime = "BULLISH"
		}
		return fmt.Sprintf("%s: $%.2f (SMA%d: $%.2f) [%s]",
			strings.ToUpper(mcfg.Benchmark), price.Value, mcfg.SMAPeriod, sma.Value, regime), nil
	}
}

func (a *App) handleOscillator(m *monitor) command.HandlerFunc {
	mcfg := a.Config.Monitor
	return func(ctx context.Context, _ command.Command) (string, error) {
		res := m.chain.Resolve(ctx, fetcher.RSI(mcfg.RSIPeriod), mcfg.Benchmark)
		if !res.Present {
			return "", fmt.Errorf("could not fetch RSI for %s", mcfg.Benchmark)
		}

		label := "NEUTRAL"
		switch {
		case res.Value >= mcfg.RSIOverbought:
			label = "OVERBOUGHT"
		case res.Value <= mcfg.RSIOversold:
			label = "OVERSOLD"
		}
		return fmt.Sprintf("%s RSI(%d): %.1f [%s]",
			strings.ToUpper(mcfg.Benchmark), mcfg.RSIPeriod, res.Value, label), nil
	}
}

func (a *App) handleCanary(m *monitor) command.HandlerFunc {
	keys := a.keys()
	return func(ctx context.Context, _ command.Command) (string, error) {
		view := state.Decode(m.engine.Snapshot(ctx), keys)

		price := view.Crypto.Price
		if res := m.chain.Resolve(ctx, fetcher.Price(), keys.Canary); res.Present {
			price = &res.Value
		}
		if price == nil {
			return "", fmt.Errorf("no readings for %s yet; run a health check first", keys.Canary)
		}

		c24, c7 := "n/a", "n/a"
		if view.Crypto.Change24Pct != nil {
			c24 = fmt.Sprintf("%+.1f%%", *view.Crypto.Change24Pct)
		}
		if view.Crypto.Change7Pct != nil {
			c7 = fmt.Sprintf("%+.1f%%", *view.Crypto.Change7Pct)
		}
		return fmt.Sprintf("%s: $%.2f (24h: %s, 7d: %s)",
			strings.ToUpper(state.KeyBase(keys.Canary)), *price, c24, c7), nil
	}
}

func (a *App) handleNews(m *monitor) command.HandlerFunc {
	mcfg := a.Config.Monitor
	ev := evaluator.NewNewsSentiment(m.fmp, evaluator.NewsOptions{
		Keywords:  mcfg.NegativeKeywords,
		Threshold: mcfg.NewsThreshold,
		BatchSize: mcfg.NewsBatchSize,
	}, a.Logger)
	return func(ctx context.Context, _ command.Command) (string, error) {
		if !m.fmp.Enabled() {
			return "", errors.New("news sentiment needs providers.fmp.api_key")
		}

		sig, delta := ev.Evaluate(ctx, state.Document{})
		if delta == nil {
			return "", errors.New("news source unavailable")
		}
		if sig != nil && sig.Level.Immediate() {
			return sig.Message, nil
		}

		readings := state.Merge(state.Document{}, delta)
		hits, _ := readings.Int(state.KeyNewsNegativeHits)
		scanned, _ := readings.Int(state.KeyNewsArticlesScanned)
		return fmt.Sprintf("News sentiment: %d negative hits across %d articles (threshold %d)",
			hits, scanned, mcfg.NewsThreshold), nil
	}
}

func (a *App) handleRatePolicy(m *monitor) command.HandlerFunc {
	mcfg := a.Config.Monitor
	ev := evaluator.NewRatePolicy(m.fmp, evaluator.RatePolicyOptions{
		LookbackDays: mcfg.RateLookbackDays,
	}, a.Logger)
	return func(ctx context.Context, _ command.Command) (string, error) {
		if !m.fmp.Enabled() {
			return "", errors.New("rate tracking needs providers.fmp.api_key")
		}

		sig, delta := ev.Evaluate(ctx, m.engine.Snapshot(ctx))
		if sig == nil && delta == nil {
			return "", errors.New("economic calendar unavailable")
		}
		if sig != nil {
			return sig.Message, nil
		}
		return fmt.Sprintf("No rate decisions in the last %d days.", mcfg.RateLookbackDays), nil
	}
}

func (a *App) handleState(m *monitor) command.HandlerFunc {
	return func(ctx context.Context, _ command.Command) (string, error) {
		return a.stateSummary(m.engine.Snapshot(ctx)), nil
	}
}

func (a *App) handleCalendar(m *monitor) command.HandlerFunc {
	return func(ctx context.Context, _ command.Command) (string, error) {
		if !m.fmp.Enabled() {
			return "", errors.New("economic calendar needs providers.fmp.api_key")
		}

		now := time.Now().UTC()
		events, err := m.fmp.Calendar(ctx, now, now.AddDate(0, 0, calendarLookaheadDays))
		if err != nil {
			return "", fmt.Errorf("fetch economic calendar: %w", err)
		}
		if len(events) == 0 {
			return fmt.Sprintf("No economic events in the next %d days.", calendarLookaheadDays), nil
		}

		lines := []string{fmt.Sprintf("Upcoming economic events (next %d days):", calendarLookaheadDays)}
		for i, event := range events {
			if i >= calendarEventCap {
				lines = append(lines, fmt.Sprintf("  ... and %d more", len(events)-calendarEventCap))
				break
			}
			prev := "n/a"
			if event.Previous != nil {
				prev = fmt.Sprintf("%.2f", *event.Previous)
			}
			lines = append(lines, fmt.Sprintf("  %s  %s (%s)  prev: %s", event.Date, event.Event, event.Country, prev))
		}
		return strings.Join(lines, "\n"), nil
	}
}

func (a *App) handleHealth(m *monitor) command.HandlerFunc {
	return func(ctx context.Context, _ command.Command) (string, error) {
		sigs := m.engine.CheckAll(ctx)
		return renderSignals("Health check complete", sigs), nil
	}
}

// renderSignals prints most severe first; ties keep evaluator order.
func renderSignals(header string, sigs []signal.Signal) string {
	if len(sigs) == 0 {
		return header + ": nothing to report."
	}

	ordered := make([]signal.Signal, len(sigs))
	copy(ordered, sigs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Level.Rank() > ordered[j].Level.Rank()
	})

	lines := []string{fmt.Sprintf("%s: %d signal(s)", header, len(sigs))}
	for _, sig := range ordered {
		lines = append(lines, "", fmt.Sprintf("[%s] %s", sig.Level, sig.Name), sig.Message)
	}
	return strings.Join(lines, "\n")
}

// stateSummary renders the compact operator view of the document.
func (a *App) stateSummary(doc state.Document) string {
	keys := a.keys()
	view := state.Decode(doc, keys)
	lines := []string{"Current Monitor State:"}

	if eq := view.Equity; eq.Price != nil {
		regime := "BEARISH"
		if eq.AboveSMA != nil && *eq.AboveSMA {
			regime = "BULLISH"
		}
		sma := "N/A"
		if eq.SMA != nil {
			sma = fmt.Sprintf("$%.2f", *eq.SMA)
		}
		lines = append(lines, fmt.Sprintf("  %s: $%.2f (SMA: %s) [%s]",
			strings.ToUpper(keys.Benchmark), *eq.Price, sma, regime))
	}

	if eq := view.Equity; eq.StopPrice != nil {
		hwm := "N/A"
		if eq.HighWaterMark != nil {
			hwm = fmt.Sprintf("$%.2f", *eq.HighWaterMark)
		}
		drop := 0.0
		if eq.DropPct != nil {
			drop = *eq.DropPct
		}
		lines = append(lines, fmt.Sprintf("  %s: $%.2f (HWM: %s, Drop: %.1f%%)",
			strings.ToUpper(keys.Stop), *eq.StopPrice, hwm, drop))
	}

	if crypto := view.Crypto; crypto.Price != nil {
		c24, c7 := 0.0, 0.0
		if crypto.Change24Pct != nil {
			c24 = *crypto.Change24Pct
		}
		if crypto.Change7Pct != nil {
			c7 = *crypto.Change7Pct
		}
		lines = append(lines, fmt.Sprintf("  %s: $%.2f (24h: %+.1f%%, 7d: %+.1f%%)",
			strings.ToUpper(state.KeyBase(keys.Canary)), *crypto.Price, c24, c7))
	}

	if view.Macro.RateCurrent != nil {
		lines = append(lines, fmt.Sprintf("  Fed Rate: %.2f%%", *view.Macro.RateCurrent))
	}
	if view.Macro.NegativeHits != nil {
		lines = append(lines, fmt.Sprintf("  News: %d negative hits", *view.Macro.NegativeHits))
	}

	last := "N/A"
	if view.LastUpdated != nil {
		last = view.LastUpdated.UTC().Format(time.RFC3339)
	}
	lines = append(lines, "  Last Updated: "+last)

	return strings.Join(lines, "\n")
}
