package scheduler

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/events"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/remote"
	"github.com/vk/chunkgrid/internal/wrapper"
	"golang.org/x/sync/errgroup"
)

// submission is the outcome of one Submit call.
type submission struct {
	platform string
	pkg      wrapper.Package
	id       string
	err      error
}

// Tick runs one scheduling round. Only fatal platform errors and
// persistence failures are returned; everything else is job state.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	var res TickResult
	before := events.Statuses(s.list.Jobs())

	polled, err := s.poll(ctx)
	res.Polled = polled
	if err != nil {
		return res, err
	}

	retried := s.list.UpdateList(ctx)

	subs, err := s.submit(ctx)
	for _, sub := range subs {
		if sub.err != nil {
			continue
		}
		res.Packages++
		res.Submitted += len(sub.pkg.Jobs())
	}
	if err != nil {
		return res, err
	}

	evs := events.Diff(s.opts.RunID, s.now(), before, s.list.Jobs())
	res.Events = len(evs)
	res.Active = len(s.list.Active(""))

	if s.opts.Store != nil && (len(evs) > 0 || retried) {
		if err := s.opts.Store.Save(ctx, s.list.Snapshot()); err != nil {
			return res, fmt.Errorf("saving snapshot: %w", err)
		}
		res.Saved = true
	}

	if s.opts.Publisher != nil && len(evs) > 0 {
		if err := s.opts.Publisher.Publish(ctx, evs); err != nil {
			logger.Warn("Publishing status events failed.", "events", len(evs), "error", err)
		}
	}
	return res, nil
}

// poll queries every remote id that still owns jobs.
func (s *Scheduler) poll(ctx context.Context) (int, error) {
	logger := ctxlog.FromContext(ctx)
	checkTime := s.checkTime()
	polled := 0

	for _, name := range s.names {
		p := s.platforms[name]
		groups := s.list.InQueueGroupedByID(name)
		for _, id := range slices.Sorted(maps.Keys(groups)) {
			jobs := groups[id]
			w := s.wrapperFor(id, p, jobs)
			if w != nil && !w.Due(checkTime) {
				continue
			}

			status, err := p.Status(ctx, id)
			polled++
			if err != nil {
				if !remote.IsTransient(err) {
					return polled, fmt.Errorf("polling %s on %s: %w", id, name, err)
				}
				if w != nil {
					logger.Warn("Wrapper status poll failed, retrying next tick.", "wrapper", w.Name, "id", id, "error", err)
					continue
				}
				logger.Warn("Status poll failed, marking jobs UNKNOWN.", "id", id, "platform", name, "error", err)
				status = job.Unknown
			}

			if w != nil {
				w.CheckStatus(ctx, status)
				if w.Done() {
					logger.Debug("Wrapper finished.", "wrapper", w.Name, "id", id, "status", w.Status())
					delete(s.wrappers, id)
				}
				continue
			}
			for _, j := range jobs {
				j.UpdateStatus(ctx, status)
			}
		}
	}

	// Inner jobs may have been settled by the update file or a failure
	// cascade, leaving the wrapper with nothing in the queue to poll.
	for _, id := range slices.Sorted(maps.Keys(s.wrappers)) {
		if w := s.wrappers[id]; w.Done() {
			logger.Info("Wrapper has no unfinished jobs left.", "wrapper", w.Name, "id", id)
			w.Abandon(ctx)
			delete(s.wrappers, id)
		}
	}
	return polled, nil
}

// checkTime is the minimum interval between two polls of one wrapper.
func (s *Scheduler) checkTime() time.Duration {
	if w := s.list.Model().Wrapper; w != nil {
		return w.CheckTime
	}
	return 0
}

// wrapperFor returns the wrapper that owns id, rebuilding it from packed
// jobs after a restart. Ids of single jobs have no wrapper.
func (s *Scheduler) wrapperFor(id string, p Platform, jobs []*job.Job) *wrapper.Job {
	if w, ok := s.wrappers[id]; ok {
		return w
	}
	if !slices.ContainsFunc(jobs, func(j *job.Job) bool { return j.Packed }) {
		return nil
	}
	policy := wrapper.Vertical
	if cfg := s.list.Model().Wrapper; cfg != nil {
		if parsed, err := wrapper.ParsePolicy(cfg.Type); err == nil {
			policy = parsed
		}
	}
	w := wrapper.New(id, id, policy, p, jobs)
	w.SetClock(s.now)
	s.wrappers[id] = w
	return w
}

// submit packages and submits the READY jobs of every platform. Remote
// calls run concurrently per platform; their outcomes are applied to the
// jobs afterwards, in platform order.
func (s *Scheduler) submit(ctx context.Context) ([]submission, error) {
	logger := ctxlog.FromContext(ctx)

	plans := make([][]wrapper.Package, len(s.names))
	for i, name := range s.names {
		pkgs := s.packagesOf(name)
		if free := s.slots(name); free >= 0 && len(pkgs) > free {
			logger.Debug("Platform queue is full, holding packages back.", "platform", name, "ready", len(pkgs), "free", free)
			pkgs = pkgs[:free]
		}
		plans[i] = pkgs
	}

	results := make([][]submission, len(s.names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range s.names {
		if len(plans[i]) == 0 {
			continue
		}
		p := s.platforms[name]
		g.Go(func() error {
			for _, pkg := range plans[i] {
				id, err := p.Submit(gctx, pkg)
				results[i] = append(results[i], submission{platform: name, pkg: pkg, id: id, err: err})
				if err != nil && !remote.IsTransient(err) {
					return fmt.Errorf("submitting %s to %s: %w", pkg.Name, name, err)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	var out []submission
	for _, subs := range results {
		for _, sub := range subs {
			s.apply(ctx, sub)
			out = append(out, sub)
		}
	}
	return out, err
}

// apply records the outcome of a submission on its jobs.
func (s *Scheduler) apply(ctx context.Context, sub submission) {
	logger := ctxlog.FromContext(ctx)
	if sub.err != nil {
		logger.Warn("Submission failed, jobs stay READY.", "package", sub.pkg.Name, "platform", sub.platform, "error", sub.err)
		return
	}
	jobs := sub.pkg.Jobs()
	for _, j := range jobs {
		j.MarkSubmitted(sub.id, sub.pkg.Wrapped())
		j.RemoteLogs = job.Logs{Out: j.Name + ".cmd.out", Err: j.Name + ".cmd.err"}
		j.LocalLogs = job.Logs{Out: fmt.Sprintf("%s.%s.out", j.Name, sub.id), Err: fmt.Sprintf("%s.%s.err", j.Name, sub.id)}
	}
	if sub.pkg.Wrapped() {
		w := wrapper.New(sub.pkg.Name, sub.id, sub.pkg.Policy, s.platforms[sub.platform], jobs)
		w.SetClock(s.now)
		s.wrappers[sub.id] = w
	}
	logger.Debug("Package submitted.", "package", sub.pkg.Name, "id", sub.id, "jobs", len(jobs), "platform", sub.platform)
}
