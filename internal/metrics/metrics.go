package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry collects every sentinel metric. A dedicated registry keeps the
// scrape surface limited to what this process owns.
var Registry = prometheus.NewRegistry()

var (
	cyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "engine",
		Name:      "cycles_total",
		Help:      "Evaluation cycles by job and outcome.",
	}, []string{"job", "outcome"})

	lastCycleUnix = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "engine",
		Name:      "last_cycle_timestamp_seconds",
		Help:      "Unix time of the last completed cycle per job.",
	}, []string{"job"})

	signalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "engine",
		Name:      "signals_total",
		Help:      "Signals produced by name and level.",
	}, []string{"name", "level"})

	alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "alerting",
		Name:      "alerts_total",
		Help:      "Alert dispatch outcomes.",
	}, []string{"outcome"})

	providerRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "fetcher",
		Name:      "provider_requests_total",
		Help:      "Upstream provider requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	discoveryTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "discovery",
		Name:      "tokens_total",
		Help:      "Discovery candidates by grade.",
	}, []string{"grade"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		cyclesTotal,
		lastCycleUnix,
		signalsTotal,
		alertsTotal,
		providerRequestsTotal,
		discoveryTokensTotal,
	)
}

// ObserveCycle records one finished job run.
func ObserveCycle(job, outcome string) {
	cyclesTotal.WithLabelValues(job, outcome).Inc()
	lastCycleUnix.WithLabelValues(job).SetToCurrentTime()
}

// ObserveSignal records one produced signal.
func ObserveSignal(name, level string) {
	signalsTotal.WithLabelValues(name, level).Inc()
}

// ObserveAlert records one dispatch outcome.
func ObserveAlert(outcome string) {
	alertsTotal.WithLabelValues(outcome).Inc()
}

// ObserveProviderRequest records one upstream call.
func ObserveProviderRequest(provider, outcome string) {
	providerRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveDiscovery records one graded discovery candidate.
func ObserveDiscovery(grade string) {
	discoveryTokensTotal.WithLabelValues(grade).Inc()
}

// Serve exposes the registry over HTTP until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	log := logger.With().Str("component", "metrics").Logger()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", addr).Msg("metrics listener started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics listener failed")
			return err
		}
		return nil
	}
}
