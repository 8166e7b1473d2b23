package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/joblist"
	"github.com/vk/chunkgrid/internal/scheduler"
	"github.com/vk/chunkgrid/internal/snapshot"
)

// checker is implemented by platforms that can verify their connection and
// prepare the remote directories before the first tick.
type checker interface {
	Check(ctx context.Context) error
}

// Run generates the job list and schedules it until the experiment ends,
// the context is cancelled, or a single tick when Config.Once is set.
// Platforms, the store and the publishers are closed on return.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	defer a.close(ctx)

	for _, name := range slices.Sorted(maps.Keys(a.platforms)) {
		if c, ok := a.platforms[name].(checker); ok {
			if err := c.Check(ctx); err != nil {
				return fmt.Errorf("checking platform %s: %w", name, err)
			}
		}
	}

	list, err := a.generate(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("Job list generated.", "expid", list.Expid(), "jobs", list.Len(), "ready", len(list.Ready("")))

	sched, err := scheduler.New(list, a.platforms, scheduler.Options{
		Store:     a.store,
		Publisher: a.publisher,
		Interval:  a.model.Experiment.SafetySleep,
		Clock:     a.clock,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	a.sched = sched

	if a.config.HealthcheckPort > 0 {
		a.healthCheckServer()
	}

	if a.config.Once {
		res, err := sched.Tick(ctx)
		if err != nil {
			return fmt.Errorf("tick failed: %w", err)
		}
		a.logger.Info("Single tick finished.", "submitted", res.Submitted, "active", res.Active, "events", res.Events)
		return nil
	}

	a.logger.Info("Starting experiment.", "expid", list.Expid(), "run_id", sched.RunID())
	if err := sched.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			a.logger.Info("Experiment interrupted.", "expid", list.Expid())
			return nil
		}
		return fmt.Errorf("experiment %s: %w", list.Expid(), err)
	}
	a.logger.Info("Experiment finished.", "expid", list.Expid())
	return nil
}

// generate builds the job list, restoring the saved snapshot unless
// Config.New is set, and applies the rerun selection when one is given.
func (a *App) generate(ctx context.Context) (*joblist.JobList, error) {
	var previous []snapshot.Record
	if !a.config.New {
		records, err := a.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot: %w", err)
		}
		previous = records
		a.logger.Debug("Snapshot loaded.", "records", len(records))
	}

	platforms := make(map[string]job.Platform, len(a.platforms))
	for name, p := range a.platforms {
		platforms[name] = p
	}
	list := joblist.New(a.model, platforms)
	if err := list.Generate(ctx, joblist.GenerateOptions{New: a.config.New, Previous: previous}); err != nil {
		return nil, fmt.Errorf("failed to generate job list: %w", err)
	}

	if a.config.RerunPath == "" {
		if err := list.RemoveRerunOnlyJobs(ctx); err != nil {
			return nil, fmt.Errorf("removing rerun-only jobs: %w", err)
		}
		return list, nil
	}
	sel, err := joblist.LoadSelection(a.config.RerunPath)
	if err != nil {
		return nil, err
	}
	if err := list.Rerun(ctx, sel); err != nil {
		return nil, fmt.Errorf("applying rerun selection: %w", err)
	}
	return list, nil
}

// close releases everything Run used. Failures are logged only.
func (a *App) close(ctx context.Context) {
	if err := a.closeHealthCheckServer(ctx); err != nil {
		a.logger.Error("Failed to stop health check server.", "error", err)
	}
	if err := a.publisher.Close(); err != nil {
		a.logger.Error("Failed to close event publisher.", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close snapshot store.", "error", err)
	}
	for _, name := range slices.Sorted(maps.Keys(a.platforms)) {
		if c, ok := a.platforms[name].(io.Closer); ok {
			if err := c.Close(); err != nil {
				a.logger.Error("Failed to close platform.", "platform", name, "error", err)
			}
		}
	}
	a.logger.Debug("App.Run method finished.")
}
