// Package jobs runs the periodic batch work: the overdue sweep and the
// recalculation-queue drain. Both are idempotent, so overlapping or
// double-fired runs are harmless.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"taskpulse/internal/recalc"
	"taskpulse/internal/taskops"
)

type Config struct {
	// Cron specs, standard five-field format.
	SweepSpec string
	DrainSpec string
	// Max queue entries consumed per drain run.
	DrainBatchSize int
}

type Runner struct {
	tasks   *taskops.Service
	recalcs *recalc.Manager
	cron    *cron.Cron
	cfg     Config
	log     zerolog.Logger
}

func NewRunner(tasks *taskops.Service, recalcs *recalc.Manager, cfg Config, log zerolog.Logger) *Runner {
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = "5 0 * * *" // daily, shortly after UTC midnight
	}
	if cfg.DrainSpec == "" {
		cfg.DrainSpec = "*/5 * * * *"
	}
	if cfg.DrainBatchSize <= 0 {
		cfg.DrainBatchSize = 50
	}
	return &Runner{tasks: tasks, recalcs: recalcs, cron: cron.New(), cfg: cfg, log: log}
}

// Start registers and launches the cron entries. The jobs run against
// ctx so shutting the process down stops in-flight batches at the next
// store call.
func (r *Runner) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.cfg.SweepSpec, func() { r.RunSweep(ctx) }); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(r.cfg.DrainSpec, func() { r.RunDrain(ctx) }); err != nil {
		return err
	}
	r.cron.Start()
	r.log.Info().
		Str("sweep", r.cfg.SweepSpec).
		Str("drain", r.cfg.DrainSpec).
		Msg("job runner started")
	return nil
}

// Stop halts the cron scheduler and waits for running jobs.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Runner) RunSweep(ctx context.Context) taskops.SweepResult {
	res := r.tasks.MarkOverdueTasks(ctx)
	if !res.Success {
		r.log.Error().Interface("errors", res.Errors).Msg("overdue sweep failed")
	}
	return res
}

func (r *Runner) RunDrain(ctx context.Context) recalc.DrainResult {
	res := r.recalcs.ProcessQueue(ctx, r.cfg.DrainBatchSize)
	if len(res.Errors) > 0 {
		r.log.Error().Strs("errors", res.Errors).Int("processed", res.Processed).Msg("recalc drain finished with errors")
	} else if res.Processed > 0 {
		r.log.Info().Int("processed", res.Processed).Msg("recalc drain finished")
	}
	return res
}
