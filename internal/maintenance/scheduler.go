// Package maintenance runs periodic relationship store upkeep on a cron
// schedule.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"dupegraph/internal/store"
)

const defaultRunTimeout = 10 * time.Minute

// Maintainer is the store operation the scheduler drives.
type Maintainer interface {
	Maintain(ctx context.Context) (*store.MaintenanceResult, error)
}

// Scheduler wraps a cron instance that runs store maintenance.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	store   Maintainer
	timeout time.Duration
}

// NewScheduler registers the maintenance job on spec, a six-field cron
// expression with seconds first. An empty spec yields a scheduler with no
// jobs.
func NewScheduler(st Maintainer, spec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "maintenance")

	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			recoverWrapper(logger),
			loggingWrapper(logger),
			cron.DelayIfStillRunning(cron.DiscardLogger),
		),
	)
	s := &Scheduler{cron: c, logger: logger, store: st, timeout: defaultRunTimeout}
	if spec == "" {
		logger.Info("maintenance schedule disabled")
		return s, nil
	}
	if _, err := c.AddJob(spec, job{s: s}); err != nil {
		return nil, fmt.Errorf("register maintenance job %q: %w", spec, err)
	}
	logger.Info("maintenance job registered", "schedule", spec)
	return s, nil
}

// RunOnce performs one maintenance pass synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) (*store.MaintenanceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := s.store.Maintain(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("maintenance pass complete",
		"purged_pairs", result.PurgedPairs,
		"pruned_carriers", result.PrunedCarriers,
		"dropped_alternates", result.DroppedAlternates,
	)
	return result, nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("maintenance scheduler stopped")
	return nil
}

type job struct {
	s *Scheduler
}

func (job) Name() string { return "store_maintenance" }

func (j job) Run() {
	if _, err := j.s.RunOnce(context.Background()); err != nil {
		j.s.logger.Error("maintenance pass failed", "error", err)
	}
}

func loggingWrapper(logger *slog.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			jobLogger := logger.With("job", jobName(j), "execution_id", uuid.NewString())
			start := time.Now()
			jobLogger.Debug("job started")
			j.Run()
			jobLogger.Debug("job finished", "duration", time.Since(start))
		})
	}
}

func recoverWrapper(logger *slog.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("job panicked",
						"job", jobName(j),
						"panic", r,
						"stack", string(debug.Stack()),
					)
				}
			}()
			j.Run()
		})
	}
}

func jobName(j cron.Job) string {
	if named, ok := j.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", j)
}
