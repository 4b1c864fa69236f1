// Package jobs runs the periodic maintenance work of the engine: reaping stale sessions and
// garbage-collecting old handoffs.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// jobTimeout bounds a single run of one job.
const jobTimeout = 30 * time.Second

// Job is one unit of periodic work. It returns how many records it affected.
type Job struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Runner runs its jobs in order on every tick. Jobs must be idempotent: several replicas may run
// the same job concurrently.
type Runner struct {
	interval time.Duration
	jobs     []Job
	log      zerolog.Logger
}

// NewRunner returns a Runner that ticks every interval.
func NewRunner(interval time.Duration, log zerolog.Logger, jobs ...Job) *Runner {
	return &Runner{
		interval: interval,
		jobs:     jobs,
		log:      log.With().Str("component", "jobs").Logger(),
	}
}

// Run runs every job once immediately and then on every tick until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce runs every job once. A failing job is logged and does not stop the others.
func (r *Runner) RunOnce(ctx context.Context) {
	for _, j := range r.jobs {
		if ctx.Err() != nil {
			return
		}
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		start := time.Now()
		n, err := j.Run(jobCtx)
		cancel()
		if err != nil {
			r.log.Error().Err(err).Str("job", j.Name).Int("affected", n).Msg("job failed")
			continue
		}
		r.log.Debug().Str("job", j.Name).Int("affected", n).Dur("duration", time.Since(start)).Msg("job done")
	}
}
