package hcl_adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vk/chunkgrid/internal/config"
	"github.com/vk/chunkgrid/internal/coord"
)

// translateExperiment converts the HCL experiment block into the agnostic model.
func translateExperiment(e *ExperimentBlock) (*config.Experiment, error) {
	exp := &config.Experiment{
		ID:              e.ID,
		Members:         e.Members,
		NumChunks:       e.NumChunks,
		ChunkIni:        1,
		DateFormat:      e.DateFormat,
		Retrials:        e.Retrials,
		DefaultJobType:  e.DefaultJobType,
		DefaultPlatform: e.DefaultPlatform,
		UpdateFile:      e.UpdateFile,
		SafetySleep:     10 * time.Second,
	}
	if e.ChunkIni != nil {
		exp.ChunkIni = *e.ChunkIni
	}
	for _, raw := range e.StartDates {
		d, err := coord.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: experiment %q: %w", config.ErrInvalid, e.ID, err)
		}
		exp.StartDates = append(exp.StartDates, d)
	}
	if e.SafetySleep != "" {
		d, err := time.ParseDuration(e.SafetySleep)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: experiment %q: invalid safety_sleep %q", config.ErrInvalid, e.ID, e.SafetySleep)
		}
		exp.SafetySleep = d
	}
	return exp, nil
}

// translateWrapper converts the HCL wrapper block into the agnostic model.
func translateWrapper(w *WrapperBlock) (*config.Wrapper, error) {
	out := &config.Wrapper{
		Type:       strings.ToLower(w.Type),
		Sections:   splitList(w.Jobs),
		MaxWrapped: w.MaxWrapped,
	}
	if w.CheckTime != "" {
		d, err := time.ParseDuration(w.CheckTime)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%w: wrapper: invalid check_time %q", config.ErrInvalid, w.CheckTime)
		}
		out.CheckTime = d
	}
	return out, nil
}

// translatePlatform converts an HCL platform block into the agnostic model.
func translatePlatform(p *PlatformBlock) (*config.Platform, error) {
	wallclock, err := config.ParseWallclock(p.MaxWallclock)
	if err != nil {
		return nil, fmt.Errorf("platform %q: %w", p.Name, err)
	}
	port := p.Port
	if port == 0 {
		port = 22
	}
	return &config.Platform{
		Name:           p.Name,
		Type:           strings.ToLower(p.Type),
		Host:           p.Host,
		User:           p.User,
		Port:           port,
		IdentityFile:   p.IdentityFile,
		RemoteDir:      p.RemoteDir,
		MaxWaitingJobs: p.MaxWaitingJobs,
		TotalJobs:      p.TotalJobs,
		MaxProcessors:  p.MaxProcessors,
		MaxWallclock:   wallclock,
		AllowWrappers:  p.AllowWrappers,
	}, nil
}

// translateSection converts an HCL job block into a job section, filling in
// the defaults for attributes the user left out.
func translateSection(ctx context.Context, j *JobBlock) (*config.Section, error) {
	running, err := coord.ParseRunning(j.Running)
	if err != nil {
		return nil, fmt.Errorf("%w: job %q: %w", config.ErrInvalid, j.Section, err)
	}
	sync, err := coord.ParseSynchronize(j.Synchronize)
	if err != nil {
		return nil, fmt.Errorf("%w: job %q: %w", config.ErrInvalid, j.Section, err)
	}
	wallclock, err := config.ParseWallclock(j.Wallclock)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", j.Section, err)
	}
	params, err := evalParameters(ctx, j.Section, j.Parameters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	s := &config.Section{
		Name:              j.Section,
		File:              j.File,
		Running:           running,
		Frequency:         1,
		Wait:              true,
		Delay:             -1,
		Synchronize:       sync,
		Splits:            j.Splits,
		RerunOnly:         j.RerunOnly,
		Dependencies:      splitList(j.Dependencies),
		RerunDependencies: splitList(j.RerunDependencies),
		Platform:          j.Platform,
		Type:              j.Type,
		Processors:        j.Processors,
		Threads:           j.Threads,
		Tasks:             j.Tasks,
		Wallclock:         wallclock,
		Memory:            j.Memory,
		Queue:             j.Queue,
		Retrials:          j.Retrials,
		Priority:          j.Priority,
		Parameters:        params,
	}
	if j.Frequency != nil {
		s.Frequency = *j.Frequency
	}
	if j.Wait != nil {
		s.Wait = *j.Wait
	}
	if j.Delay != nil {
		s.Delay = *j.Delay
	}
	return s, nil
}

// splitList accepts both ["INI", "SIM-1"] and ["INI SIM-1"].
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		out = append(out, strings.Fields(item)...)
	}
	return out
}
