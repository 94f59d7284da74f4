// Package service orchestrates the monitor: it drives evaluators and
// discovery scans on schedule, owns the load-merge-save state cycle,
// and routes every resulting signal through the alert dispatcher or the
// daily digest.
package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-sentinel/internal/alerting"
	"market-sentinel/internal/config"
	"market-sentinel/internal/evaluator"
	"market-sentinel/internal/fetcher"
	"market-sentinel/internal/metrics"
	"market-sentinel/internal/schedule"
	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

const (
	startupDedupWindow = 5 * time.Minute
	noticeTimeLayout   = "2006-01-02 03:04 PM MST"
)

// MarketData is the slice of the provider chain the engine itself
// consumes; evaluators hold their own view.
type MarketData interface {
	Prices(ctx context.Context, symbols []string) map[string]fetcher.Result
	MarketOpen(ctx context.Context) (open, known bool)
}

// Alerter is the cooldown-aware delivery layer.
type Alerter interface {
	Send(ctx context.Context, alert alerting.Alert) alerting.Outcome
}

// TokenScanner produces discovery signals for new and trending tokens.
type TokenScanner interface {
	Scan(ctx context.Context) []signal.Signal
	Trending(ctx context.Context) []signal.Signal
}

// PortfolioWatcher grades held tokens on every check.
type PortfolioWatcher interface {
	Check(ctx context.Context) []signal.Signal
}

// Deps collects the engine's collaborators. Scanner and Portfolio may
// be nil when discovery is disabled; Macro may be empty when the macro
// vendor has no API key.
type Deps struct {
	Store     state.Store
	Data      MarketData
	Alerter   Alerter
	Market    []evaluator.Evaluator
	Canary    []evaluator.Evaluator
	Macro     []evaluator.Evaluator
	Scanner   TokenScanner
	Portfolio PortfolioWatcher
}

// Options tune engine behaviour.
type Options struct {
	Keys      state.Keys
	Tickers   []string
	RSIPeriod int
	// Location is the reporting timezone for rendered notices.
	Location *time.Location
	// MarketHoursOnly skips equity cycles while the exchange is closed.
	// The gate fails open: an unknown market status never blocks a run.
	MarketHoursOnly bool
	// LockKey enables cross-replica serialisation when the store
	// supports advisory locking. Zero disables the lock.
	LockKey int64
}

// Engine runs the monitoring jobs. Each job is one cycle: acquire the
// state guard, load, evaluate, merge, save, then dispatch outside the
// guard.
type Engine struct {
	store     state.Store
	data      MarketData
	alerter   Alerter
	market    []evaluator.Evaluator
	canary    []evaluator.Evaluator
	macro     []evaluator.Evaluator
	scanner   TokenScanner
	portfolio PortfolioWatcher

	digest *alerting.Digest
	opts   Options
	logger zerolog.Logger
	locker state.AdvisoryLocker
	now    func() time.Time

	guard sync.Mutex
}

// NewEngine constructs the engine. The advisory-lock capability is
// asserted from the store rather than configured.
func NewEngine(deps Deps, opts Options, logger zerolog.Logger) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	var locker state.AdvisoryLocker
	if l, ok := deps.Store.(state.AdvisoryLocker); ok {
		locker = l
	}

	return &Engine{
		store:     deps.Store,
		data:      deps.Data,
		alerter:   deps.Alerter,
		market:    deps.Market,
		canary:    deps.Canary,
		macro:     deps.Macro,
		scanner:   deps.Scanner,
		portfolio: deps.Portfolio,
		digest:    alerting.NewDigest(),
		opts:      opts,
		logger:    logger.With().Str("component", "engine").Logger(),
		locker:    locker,
		now:       time.Now,
	}
}

// RegisterJobs binds every engine job to its cron expression. An empty
// expression leaves that job unscheduled.
func (e *Engine) RegisterJobs(r *schedule.Runner, cfg config.ScheduleConfig) error {
	for _, spec := range cfg.MarketHealth {
		if err := r.Add("market_health", spec, e.MarketHealth); err != nil {
			return err
		}
	}
	jobs := []struct {
		name string
		spec string
		fn   schedule.JobFunc
	}{
		{"crypto_canary", cfg.CryptoCanary, e.CryptoCanary},
		{"macro_sentiment", cfg.MacroSentiment, e.MacroSentiment},
		{"discovery_scan", cfg.DiscoveryScan, e.DiscoveryScan},
		{"trending_scan", cfg.TrendingScan, e.TrendingScan},
		{"portfolio_check", cfg.PortfolioCheck, e.PortfolioCheck},
		{"daily_summary", cfg.DailySummary, e.DailySummary},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if err := r.Add(j.name, j.spec, j.fn); err != nil {
			return err
		}
	}
	return nil
}

// MarketHealth runs the equity evaluators. Outside trading hours the
// cycle is skipped when the gate is enabled and the exchange status is
// actually known.
func (e *Engine) MarketHealth(ctx context.Context) error {
	if e.opts.MarketHoursOnly {
		if open, known := e.data.MarketOpen(ctx); known && !open {
			e.logger.Debug().Msg("market closed, skipping equity cycle")
			metrics.ObserveCycle("market_health", "skipped")
			return nil
		}
	}
	return e.runEvaluators(ctx, "market_health", e.market)
}

// CryptoCanary runs the crash canary. Crypto trades around the clock,
// so there is no market-hours gate.
func (e *Engine) CryptoCanary(ctx context.Context) error {
	return e.runEvaluators(ctx, "crypto_canary", e.canary)
}

// MacroSentiment runs the news and rate-policy evaluators.
func (e *Engine) MacroSentiment(ctx context.Context) error {
	return e.runEvaluators(ctx, "macro_sentiment", e.macro)
}

// DiscoveryScan grades newly listed tokens.
func (e *Engine) DiscoveryScan(ctx context.Context) error {
	if e.scanner == nil {
		return nil
	}
	e.handleDiscovery(ctx, e.scanner.Scan(ctx))
	metrics.ObserveCycle("discovery_scan", "ok")
	return nil
}

// TrendingScan grades the top movers.
func (e *Engine) TrendingScan(ctx context.Context) error {
	if e.scanner == nil {
		return nil
	}
	e.handleDiscovery(ctx, e.scanner.Trending(ctx))
	metrics.ObserveCycle("trending_scan", "ok")
	return nil
}

// PortfolioCheck grades the held tokens.
func (e *Engine) PortfolioCheck(ctx context.Context) error {
	if e.portfolio == nil {
		return nil
	}
	e.handleDiscovery(ctx, e.portfolio.Check(ctx))
	metrics.ObserveCycle("portfolio_check", "ok")
	return nil
}

// DailySummary refreshes the price slots, renders the digest, and
// delivers it regardless of level under the summary key.
func (e *Engine) DailySummary(ctx context.Context) error {
	unlock, proceed, err := e.acquireLock(ctx)
	if err != nil {
		metrics.ObserveCycle("daily_summary", "error")
		return fmt.Errorf("daily_summary: %w", err)
	}
	if !proceed {
		metrics.ObserveCycle("daily_summary", "skipped")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	delta := state.Delta{}
	for sym, res := range e.data.Prices(ctx, e.opts.Tickers) {
		if res.Present {
			delta[state.PriceKey(sym)] = round2(res.Value)
		}
	}

	e.guard.Lock()
	doc := e.store.Load(ctx)
	doc = state.Merge(doc, delta)
	if err := e.store.Save(ctx, doc); err != nil {
		e.logger.Error().Err(err).Msg("failed to persist state")
	}
	e.guard.Unlock()

	body := alerting.BuildSummary(alerting.SummaryData{
		State:     state.Decode(doc, e.opts.Keys),
		Keys:      e.opts.Keys,
		RSIPeriod: e.opts.RSIPeriod,
		Signals:   e.digest.Drain(),
		Now:       e.now().In(e.opts.Location),
	})
	outcome := e.alerter.Send(ctx, alerting.Alert{
		Key:     alerting.KeyDailySummary,
		Subject: "Daily Market Summary",
		Body:    body,
		Level:   signal.LevelInfo,
	})
	e.logOutcome(e.logger.With().Str("signal", "daily_summary").Logger(), outcome)
	metrics.ObserveCycle("daily_summary", "ok")
	return nil
}

// InitialChecks runs every job once at boot so a fresh deploy reports
// within seconds instead of waiting for the first cron fire. Failures
// are logged and never abort startup.
func (e *Engine) InitialChecks(ctx context.Context) {
	jobs := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"market_health", e.MarketHealth},
		{"crypto_canary", e.CryptoCanary},
		{"macro_sentiment", e.MacroSentiment},
		{"discovery_scan", e.DiscoveryScan},
		{"portfolio_check", e.PortfolioCheck},
	}
	for _, job := range jobs {
		if err := job.fn(ctx); err != nil {
			e.logger.Warn().Err(err).Str("job", job.name).Msg("initial check failed")
		}
	}
}

// CheckAll runs every configured evaluator once and returns their
// signals without dispatching anything. State is persisted as in a
// normal cycle.
func (e *Engine) CheckAll(ctx context.Context) []signal.Signal {
	all := make([]evaluator.Evaluator, 0, len(e.market)+len(e.canary)+len(e.macro))
	all = append(all, e.market...)
	all = append(all, e.canary...)
	all = append(all, e.macro...)
	return e.evaluate(ctx, all)
}

// ScanOnce runs one discovery pass and returns the graded signals
// without dispatching.
func (e *Engine) ScanOnce(ctx context.Context) []signal.Signal {
	if e.scanner == nil {
		return nil
	}
	return e.scanner.Scan(ctx)
}

// Snapshot returns the persisted document.
func (e *Engine) Snapshot(ctx context.Context) state.Document {
	e.guard.Lock()
	defer e.guard.Unlock()
	return e.store.Load(ctx)
}

// StartupNotice announces the boot at GREEN. Restarts within the dedup
// window stay silent so a crash-looping deploy does not page on every
// supervisor retry; the last startup time is persisted, not held in
// memory, on purpose.
func (e *Engine) StartupNotice(ctx context.Context, body string) {
	e.guard.Lock()
	doc := e.store.Load(ctx)
	if last, ok := doc.Time(state.KeyLastStartup); ok {
		if age := e.now().Sub(last); age < startupDedupWindow {
			e.guard.Unlock()
			e.logger.Info().Dur("age", age).Msg("startup notice suppressed")
			return
		}
	}
	doc = state.Merge(doc, state.Delta{state.KeyLastStartup: e.now().UTC().Format(state.TimeLayout)})
	if err := e.store.Save(ctx, doc); err != nil {
		e.logger.Error().Err(err).Msg("failed to persist state")
	}
	e.guard.Unlock()

	outcome := e.alerter.Send(ctx, alerting.Alert{
		Key:     "STARTUP",
		Subject: "Market Monitor Started",
		Body:    body,
		Level:   signal.LevelGreen,
	})
	e.logOutcome(e.logger.With().Str("signal", "startup").Logger(), outcome)
}

// ShutdownNotice records the stop at INFO. INFO never pages, so this
// lands in logs and the cooldown register rather than the channel.
func (e *Engine) ShutdownNotice(ctx context.Context) {
	e.alerter.Send(ctx, alerting.Alert{
		Key:     "SHUTDOWN",
		Subject: "Market Monitor Stopped",
		Body:    fmt.Sprintf("Monitor shut down at %s", e.now().In(e.opts.Location).Format(noticeTimeLayout)),
		Level:   signal.LevelInfo,
	})
	e.logger.Info().Msg("shutdown notice recorded")
}

func (e *Engine) runEvaluators(ctx context.Context, job string, evals []evaluator.Evaluator) error {
	if len(evals) == 0 {
		return nil
	}
	unlock, proceed, err := e.acquireLock(ctx)
	if err != nil {
		metrics.ObserveCycle(job, "error")
		return fmt.Errorf("%s: %w", job, err)
	}
	if !proceed {
		e.logger.Debug().Str("job", job).Msg("skip cycle because advisory lock held elsewhere")
		metrics.ObserveCycle(job, "skipped")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	sigs := e.evaluate(ctx, evals)
	for _, sig := range sigs {
		e.handleSignal(ctx, sig)
	}
	metrics.ObserveCycle(job, "ok")
	e.logger.Info().Str("job", job).Int("signals", len(sigs)).Msg("cycle complete")
	return nil
}

// evaluate 在状态守卫内完成 load-评估-merge-save; 派发在守卫外进行。
// 每个评估器都能看到同周期内先前评估器已合并的增量。
func (e *Engine) evaluate(ctx context.Context, evals []evaluator.Evaluator) []signal.Signal {
	e.guard.Lock()
	defer e.guard.Unlock()

	doc := e.store.Load(ctx)
	var sigs []signal.Signal
	for _, ev := range evals {
		sig, delta := ev.Evaluate(ctx, doc)
		if len(delta) > 0 {
			doc = state.Merge(doc, delta)
		}
		if sig != nil {
			sigs = append(sigs, *sig)
		}
	}
	if err := e.store.Save(ctx, doc); err != nil {
		e.logger.Error().Err(err).Msg("failed to persist state")
	}
	return sigs
}

// handleSignal routes one evaluator signal: immediate levels go to the
// dispatcher, INFO heartbeats accumulate for the daily summary.
func (e *Engine) handleSignal(ctx context.Context, sig signal.Signal) {
	metrics.ObserveSignal(sig.Name, string(sig.Level))
	log := e.logger.With().Str("signal", sig.Name).Str("level", string(sig.Level)).Logger()
	if sig.Level.Immediate() {
		e.logOutcome(log, e.alerter.Send(ctx, alerting.FromSignal(sig)))
		return
	}
	e.digest.Add(sig)
	log.Debug().Msg("signal added to daily digest")
}

// handleDiscovery routes scanner signals. Token names are unbounded, so
// these do not feed the per-signal metric; the scanner already counts
// grades. WATCHLIST entries pass through the dispatcher to occupy a
// cooldown slot without paging, plain INFO is logged only.
func (e *Engine) handleDiscovery(ctx context.Context, sigs []signal.Signal) {
	for _, sig := range sigs {
		log := e.logger.With().Str("signal", sig.Name).Str("level", string(sig.Level)).Logger()
		if sig.Level == signal.LevelInfo {
			log.Debug().Msg("discovery heartbeat logged only")
			continue
		}
		e.logOutcome(log, e.alerter.Send(ctx, alerting.FromSignal(sig)))
	}
}

func (e *Engine) logOutcome(log zerolog.Logger, outcome alerting.Outcome) {
	switch {
	case outcome.Delivered:
		log.Info().Msg("alert delivered")
	case outcome.RateLimited:
		log.Debug().Msg("alert suppressed by cooldown")
	default:
		log.Info().Msg("alert recorded without delivery")
	}
}

func (e *Engine) acquireLock(ctx context.Context) (func(), bool, error) {
	if e.opts.LockKey == 0 || e.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := e.locker.TryAdvisoryLock(ctx, e.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// round2 rounds at the state-write boundary, matching the evaluators.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
