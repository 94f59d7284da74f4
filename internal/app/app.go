package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"market-sentinel/internal/alerting"
	"market-sentinel/internal/config"
	"market-sentinel/internal/discovery"
	"market-sentinel/internal/evaluator"
	"market-sentinel/internal/fetcher"
	"market-sentinel/internal/metrics"
	"market-sentinel/internal/schedule"
	"market-sentinel/internal/service"
	"market-sentinel/internal/state"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) keys() state.Keys {
	m := a.Config.Monitor
	keys := state.Keys{Benchmark: m.Benchmark, SMAPeriod: m.SMAPeriod}
	if len(m.CorePortfolio) > 0 {
		keys.Stop = m.CorePortfolio[0]
	}
	if len(m.CryptoCanaries) > 0 {
		keys.Canary = m.CryptoCanaries[0]
	}
	return keys
}

func (a *App) newChain() *fetcher.Chain {
	p := a.Config.Providers
	primary := fetcher.NewPolygon(fetcher.PolygonOptions{
		APIKey:            p.Polygon.APIKey,
		BaseURL:           p.Polygon.BaseURL,
		Timeout:           p.Polygon.Timeout,
		RequestsPerMinute: p.Polygon.RequestsPerMinute,
	}, a.Logger)

	fallback := fetcher.NewYahoo(fetcher.YahooOptions{
		BaseURL:   p.Yahoo.BaseURL,
		Timeout:   p.Yahoo.Timeout,
		UserAgent: p.Yahoo.UserAgent,
	}, a.Logger)

	return fetcher.NewChain(primary, fallback, a.Logger)
}

func (a *App) newFMP() *fetcher.FMP {
	p := a.Config.Providers.FMP
	return fetcher.NewFMP(fetcher.FMPOptions{
		APIKey:  p.APIKey,
		BaseURL: p.BaseURL,
		Timeout: p.Timeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	tg := a.Config.Alerting.Telegram
	if !a.Config.Alerting.Enabled || !tg.Enabled {
		return nil
	}
	return alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, tg.Timeout, a.Logger)
}

func (a *App) newDispatcher() *alerting.Dispatcher {
	cd := a.Config.Alerting.Cooldowns
	return alerting.NewDispatcher(a.newNotifier(), alerting.DispatcherOptions{
		Windows: alerting.CooldownWindows{
			Critical: cd.Critical,
			Warning:  cd.Warning,
			Info:     cd.Info,
		},
	}, a.Logger)
}

// openStore selects the state backend. The closer is nil for the file
// backend, which holds no connections.
func (a *App) openStore(ctx context.Context) (state.Store, func(), error) {
	st := a.Config.State
	switch st.Backend {
	case "postgres":
		store, err := state.NewPostgresStore(ctx, state.PostgresOptions{
			DSN:             st.Postgres.DSN,
			DocumentName:    st.Postgres.DocumentName,
			MaxOpenConns:    st.Postgres.MaxOpenConns,
			MinIdleConns:    st.Postgres.MinIdleConns,
			ConnMaxLifetime: st.Postgres.ConnMaxLifetime,
		}, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return state.NewFileStore(st.File.Path, a.Logger), nil, nil
	}
}

func (a *App) evaluators(chain *fetcher.Chain, fmp *fetcher.FMP) (market, canary, macro []evaluator.Evaluator) {
	m := a.Config.Monitor
	keys := a.keys()

	market = []evaluator.Evaluator{
		evaluator.NewRegime(chain, evaluator.RegimeOptions{
			Symbol:    m.Benchmark,
			SMAPeriod: m.SMAPeriod,
		}, a.Logger),
		evaluator.NewOscillator(chain, evaluator.OscillatorOptions{
			Symbol:     m.Benchmark,
			Period:     m.RSIPeriod,
			Overbought: m.RSIOverbought,
			Oversold:   m.RSIOversold,
		}, a.Logger),
		evaluator.NewTrailingStop(chain, evaluator.TrailingStopOptions{
			Symbol:       keys.Stop,
			StopPercent:  m.TrailingStopPct,
			LookbackDays: m.HighWaterDays,
		}, a.Logger),
	}

	canary = []evaluator.Evaluator{
		evaluator.NewCanary(chain, evaluator.CanaryOptions{
			Symbol:            keys.Canary,
			CrashThresholdPct: m.CrashThresholdPct,
			TrendLookbackDays: m.TrendLookbackDays,
		}, a.Logger),
	}

	if fmp.Enabled() {
		macro = []evaluator.Evaluator{
			evaluator.NewNewsSentiment(fmp, evaluator.NewsOptions{
				Keywords:  m.NegativeKeywords,
				Threshold: m.NewsThreshold,
				BatchSize: m.NewsBatchSize,
			}, a.Logger),
			evaluator.NewRatePolicy(fmp, evaluator.RatePolicyOptions{
				LookbackDays: m.RateLookbackDays,
			}, a.Logger),
		}
	} else {
		a.Logger.Warn().Msg("fmp api key not configured; macro checks disabled")
	}

	return market, canary, macro
}

func (a *App) newDiscovery() (*discovery.Scanner, *discovery.Portfolio) {
	d := a.Config.Discovery
	if !d.Enabled {
		return nil, nil
	}
	p := a.Config.Providers

	pools := discovery.NewGeckoTerminal(discovery.GeckoTerminalOptions{
		BaseURL: p.GeckoTerminal.BaseURL,
		Timeout: p.GeckoTerminal.Timeout,
	}, a.Logger)
	pairs := discovery.NewDexScreener(discovery.DexScreenerOptions{
		BaseURL: p.DexScreener.BaseURL,
		Timeout: p.DexScreener.Timeout,
	}, a.Logger)
	security := discovery.NewGoPlus(discovery.GoPlusOptions{
		BaseURL: p.GoPlus.BaseURL,
		Timeout: p.GoPlus.Timeout,
	}, a.Logger)

	scanner := discovery.NewScanner(pools, pairs, security, discovery.ScannerOptions{
		Chains:          d.Chains,
		TrendingChains:  d.TrendingChains,
		MinLiquidityUSD: decimal.NewFromFloat(d.MinLiquidityUSD),
		MaxNewTokenAge:  d.MaxTokenAge,
		Tiers: discovery.Tiers{
			High: decimal.NewFromFloat(d.TierHighUSD),
			Mid:  decimal.NewFromFloat(d.TierMidUSD),
			Low:  decimal.NewFromFloat(d.TierLowUSD),
		},
		TrendingMovePct: d.TrendingMovePct,
		TrendingLimit:   d.TrendingLimit,
	}, a.Logger)

	var portfolio *discovery.Portfolio
	if len(d.PortfolioTokens) > 0 {
		tokens := make([]discovery.PortfolioToken, 0, len(d.PortfolioTokens))
		for _, t := range d.PortfolioTokens {
			tokens = append(tokens, discovery.PortfolioToken{
				Name:    t.Name,
				Symbol:  t.Symbol,
				Address: t.Address,
				Chain:   t.Chain,
			})
		}
		portfolio = discovery.NewPortfolio(pairs, security, discovery.PortfolioOptions{Tokens: tokens}, a.Logger)
	}

	return scanner, portfolio
}

// monitor bundles the assembled engine with the clients the query
// handlers reach past it for.
type monitor struct {
	engine *service.Engine
	chain  *fetcher.Chain
	fmp    *fetcher.FMP
	close  func()
}

func (a *App) newMonitor(ctx context.Context) (*monitor, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	closeAll := func() {
		if closeStore != nil {
			closeStore()
		}
	}

	loc, err := a.Config.Schedule.Location()
	if err != nil {
		closeAll()
		return nil, err
	}

	chain := a.newChain()
	fmp := a.newFMP()
	market, canary, macro := a.evaluators(chain, fmp)
	scanner, portfolio := a.newDiscovery()

	deps := service.Deps{
		Store:   store,
		Data:    chain,
		Alerter: a.newDispatcher(),
		Market:  market,
		Canary:  canary,
		Macro:   macro,
	}
	// Typed nils must not reach the interface fields; the engine gates
	// discovery on a plain nil check.
	if scanner != nil {
		deps.Scanner = scanner
	}
	if portfolio != nil {
		deps.Portfolio = portfolio
	}

	var lockKey int64
	if a.Config.State.Backend == "postgres" {
		lockKey = a.Config.Schedule.AdvisoryLockKey
	}

	eng := service.NewEngine(deps, service.Options{
		Keys:            a.keys(),
		Tickers:         a.Config.Monitor.AllTickers(),
		RSIPeriod:       a.Config.Monitor.RSIPeriod,
		Location:        loc,
		MarketHoursOnly: a.Config.Monitor.MarketHoursOnly,
		LockKey:         lockKey,
	}, a.Logger)

	return &monitor{engine: eng, chain: chain, fmp: fmp, close: closeAll}, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m, err := a.newMonitor(ctx)
	if err != nil {
		return err
	}
	defer m.close()

	loc, err := a.Config.Schedule.Location()
	if err != nil {
		return err
	}

	if a.Config.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, a.Config.Metrics.Addr, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics listener terminated")
			}
		}()
	}

	runner := schedule.NewRunner(schedule.Options{Location: loc}, a.Logger)
	if err := m.engine.RegisterJobs(runner, a.Config.Schedule); err != nil {
		return err
	}

	m.engine.StartupNotice(ctx, a.startupBody(loc))

	a.Logger.Info().Msg("running initial checks")
	m.engine.InitialChecks(ctx)

	a.Logger.Info().Msg("starting monitoring service")
	err = runner.Run(ctx)

	// The run context is already cancelled here; the shutdown notice
	// gets its own deadline.
	notifyCtx, cancelNotify := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelNotify()
	m.engine.ShutdownNotice(notifyCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}
	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

func (a *App) startupBody(loc *time.Location) string {
	s := a.Config.Schedule
	lines := []string{
		"🚀 Market Monitor Started",
		"Time: " + time.Now().In(loc).Format("2006-01-02 03:04 PM MST"),
		"Schedule:",
	}
	for _, spec := range s.MarketHealth {
		lines = append(lines, "  • Market health: "+spec)
	}
	entries := []struct{ name, spec string }{
		{"Crypto canary", s.CryptoCanary},
		{"Macro sentiment", s.MacroSentiment},
		{"Discovery scan", s.DiscoveryScan},
		{"Trending scan", s.TrendingScan},
		{"Portfolio check", s.PortfolioCheck},
		{"Daily summary", s.DailySummary},
	}
	for _, entry := range entries {
		if entry.spec != "" {
			lines = append(lines, fmt.Sprintf("  • %s: %s", entry.name, entry.spec))
		}
	}

	channels := []string{
		channelMark("Telegram", a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled),
		channelMark("FMP", a.Config.Providers.FMP.APIKey != ""),
	}
	lines = append(lines, "Channels: "+strings.Join(channels, " | "))

	return strings.Join(lines, "\n")
}

func channelMark(name string, configured bool) string {
	if configured {
		return name + " ✅"
	}
	return name + " ❌"
}
