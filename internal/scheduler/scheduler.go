// Package scheduler runs the control loop: reload definitions, sweep old
// reports and dispatch one lifecycle run per due entity.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
	"github.com/aevon-lab/spreadsheet-report/internal/lifecycle"
	"golang.org/x/sync/errgroup"
)

const defaultWorkerCount = 4

// Runner executes one scheduled lifecycle run.
type Runner interface {
	Run(ctx context.Context, e *lifecycle.Entity, set *definition.Set) (lifecycle.Result, error)
}

// Options controls the loop cadence and concurrency.
type Options struct {
	Interval    time.Duration
	WorkerCount int
}

func (o Options) normalized() Options {
	n := o
	if n.Interval <= 0 {
		n.Interval = time.Minute
	}
	if n.WorkerCount <= 0 {
		n.WorkerCount = defaultWorkerCount
	}
	return n
}

// Scheduler wakes on a fixed interval and schedules entity runs onto a
// bounded worker group. It never waits for a single run inside a cycle.
type Scheduler struct {
	repo     definition.Repository
	runner   Runner
	registry *Registry
	sweeper  *Sweeper
	opts     Options

	workers *errgroup.Group
}

func New(repo definition.Repository, runner Runner, registry *Registry, sweeper *Sweeper, opts Options) *Scheduler {
	opts = opts.normalized()
	workers := &errgroup.Group{}
	workers.SetLimit(opts.WorkerCount)
	return &Scheduler{
		repo:     repo,
		runner:   runner,
		registry: registry,
		sweeper:  sweeper,
		opts:     opts,
		workers:  workers,
	}
}

// Start runs cycles until ctx is cancelled, then waits for in-flight runs.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting report scheduler",
		"interval", s.opts.Interval,
		"workers", s.opts.WorkerCount,
	)

	s.RunCycle(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled), waiting for running entities")
			_ = s.workers.Wait()
			slog.Info("[Scheduler] Stopped")
			return nil
		}
	}
}

// RunCycle performs one pass. An invalid definition set skips the pass.
func (s *Scheduler) RunCycle(ctx context.Context) int {
	set, err := s.repo.Load(ctx)
	if err != nil {
		slog.Error("[Scheduler] Failed to load definitions, skipping cycle", "error", err)
		return 0
	}

	entities := s.registry.Sync(set)

	if s.sweeper != nil {
		if removed, err := s.sweeper.Sweep(); err != nil {
			slog.Error("[Scheduler] Sweeping old reports failed", "removed", removed, "error", err)
		} else if removed > 0 {
			slog.Info("[Scheduler] Swept old reports", "removed", removed)
		}
	}

	dispatched := 0
	for _, e := range entities {
		if ctx.Err() != nil {
			break
		}
		if !e.TryBegin() {
			slog.Debug("[Scheduler] Entity still running", "entity", e.Key().String())
			continue
		}
		ok := s.workers.TryGo(func() error {
			defer e.End()
			// Errors are recorded on the entity; one entity never stops another.
			_, _ = s.runner.Run(ctx, e, set)
			return nil
		})
		if !ok {
			e.End()
			slog.Debug("[Scheduler] All workers busy, deferring entity", "entity", e.Key().String())
			continue
		}
		dispatched++
	}

	slog.Debug("[Scheduler] Cycle complete", "entities", len(entities), "dispatched", dispatched)
	return dispatched
}

// Wait blocks until every dispatched run has finished.
func (s *Scheduler) Wait() {
	_ = s.workers.Wait()
}
