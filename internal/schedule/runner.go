// Package schedule drives the engine's recurring jobs from cron
// expressions. Job errors are logged, never fatal, and a panicking job
// is recovered so one bad cycle cannot take the clock down with it.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

// Options tune the runner.
type Options struct {
	// Location all cron expressions evaluate in. Defaults to UTC.
	Location *time.Location
}

// Runner registers named jobs against cron expressions and drives them
// until its context is cancelled.
type Runner struct {
	opts   Options
	cron   *cron.Cron
	logger zerolog.Logger

	mu  sync.Mutex
	ctx context.Context
}

func NewRunner(opts Options, logger zerolog.Logger) *Runner {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Runner{
		opts:   opts,
		cron:   cron.New(cron.WithLocation(opts.Location)),
		logger: logger.With().Str("component", "schedule").Logger(),
	}
}

// Add registers fn under a cron spec. Standard five-field expressions
// and @every descriptors are accepted. The same job may be registered
// under several specs, which is how open/close anchors ride alongside
// an intraday interval.
func (r *Runner) Add(name, spec string, fn JobFunc) error {
	if _, err := r.cron.AddFunc(spec, r.wrap(name, fn)); err != nil {
		return fmt.Errorf("schedule: add %s (%q): %w", name, spec, err)
	}
	r.logger.Debug().Str("job", name).Str("spec", spec).Msg("job registered")
	return nil
}

// Run starts the clock and blocks until ctx is cancelled, then waits
// for in-flight jobs to finish before returning.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	r.logger.Info().
		Str("location", r.opts.Location.String()).
		Int("entries", len(r.cron.Entries())).
		Msg("scheduler started")
	r.cron.Start()
	<-ctx.Done()

	stopped := r.cron.Stop()
	<-stopped.Done()
	r.logger.Info().Msg("scheduler stopped")
	return ctx.Err()
}

func (r *Runner) jobCtx() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

func (r *Runner) wrap(name string, fn JobFunc) func() {
	logger := r.logger.With().Str("job", name).Logger()
	return func() {
		ctx := r.jobCtx()
		if ctx.Err() != nil {
			return
		}
		log := logger.With().Str("run_id", uuid.NewString()).Logger()
		started := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Msg("job panicked")
			}
		}()
		log.Debug().Msg("job starting")
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("job failed")
			return
		}
		log.Info().Dur("elapsed", time.Since(started)).Msg("job finished")
	}
}
