// Package sshplatform runs jobs on a Slurm cluster reached over SSH. Every
// operation is a shell command on the login node: sbatch, sacct, squeue and
// scancel for the batch system, plus plain file tests for the stat files
// and completion markers the job scripts leave in the experiment's log
// directory.
package sshplatform

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/remote"
	"github.com/vk/chunkgrid/internal/wrapper"
)

// Config describes how to reach a platform and where the experiment lives
// on it.
type Config struct {
	Name         string
	Host         string
	User         string
	Port         int
	IdentityFile string
	// KnownHosts is a known_hosts file used to verify the host key. When
	// empty, host keys are not checked.
	KnownHosts string
	// RemoteDir is the scratch root. The experiment's files go to
	// RemoteDir/<expid>/LOG_<expid>.
	RemoteDir string
	Expid     string
	// TemplateDir is the local directory job File paths are relative to.
	TemplateDir string
	// PollRetries is how many times a status query is repeated within one
	// call before giving up. Zero means 3.
	PollRetries int
	RetryDelay  time.Duration
}

// Platform is a Slurm cluster.
type Platform struct {
	cfg     Config
	logDir  string
	run     runner
	retries int
}

// New prepares a platform. The SSH connection is opened on first use.
func New(cfg Config) (*Platform, error) {
	r, err := newSSHRunner(cfg)
	if err != nil {
		return nil, fmt.Errorf("platform %s: %w", cfg.Name, err)
	}
	return newPlatform(cfg, r), nil
}

func newPlatform(cfg Config, r runner) *Platform {
	retries := cfg.PollRetries
	if retries <= 0 {
		retries = 3
	}
	return &Platform{
		cfg:     cfg,
		logDir:  path.Join(cfg.RemoteDir, cfg.Expid, "LOG_"+cfg.Expid),
		run:     r,
		retries: retries,
	}
}

func (p *Platform) Name() string { return p.cfg.Name }

// LogDir is the remote directory holding scripts, logs and markers.
func (p *Platform) LogDir() string { return p.logDir }

// Check verifies the scratch root exists and creates the log directory.
func (p *Platform) Check(ctx context.Context) error {
	out, err := p.run.Run(ctx, fmt.Sprintf("if [ -d %s ]; then mkdir -p %s && echo ok; fi", p.cfg.RemoteDir, p.logDir), nil)
	if err != nil {
		return fmt.Errorf("platform %s: %w", p.cfg.Name, err)
	}
	if strings.TrimSpace(out) != "ok" {
		return fmt.Errorf("%w: platform %s: remote directory %s does not exist", remote.ErrFatal, p.cfg.Name, p.cfg.RemoteDir)
	}
	return nil
}

// Close drops the SSH connection.
func (p *Platform) Close() error { return p.run.Close() }

func (p *Platform) Cancel(ctx context.Context, remoteID string) error {
	_, err := p.run.Run(ctx, "scancel "+remoteID, nil)
	return err
}

func (p *Platform) QueueReason(ctx context.Context, remoteID string) (string, error) {
	out, err := p.run.Run(ctx, fmt.Sprintf("squeue -h -j %s -o %%r", remoteID), nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (p *Platform) CompletedMarker(ctx context.Context, jobName string) (bool, error) {
	out, err := p.run.Run(ctx, fmt.Sprintf("if [ -f %s ]; then echo 1; else echo 0; fi", p.file(jobName+"_COMPLETED")), nil)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "1", nil
}

func (p *Platform) StatFile(ctx context.Context, jobName string) (remote.Stat, error) {
	out, err := p.run.Run(ctx, "cat "+p.file(jobName+"_STAT"), nil)
	if err != nil {
		return remote.Stat{}, err
	}
	return parseStat(strings.Fields(out))
}

func (p *Platform) MoveFile(ctx context.Context, src, dst string) error {
	_, err := p.run.Run(ctx, fmt.Sprintf("mv %s %s", p.file(src), p.file(dst)), nil)
	return err
}

// Status asks sacct for the state of a remote job, retrying while the
// answer is empty or the command fails.
func (p *Platform) Status(ctx context.Context, remoteID string) (job.Status, error) {
	logger := ctxlog.FromContext(ctx).With("platform", p.cfg.Name, "id", remoteID)
	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		out, err := p.run.Run(ctx, fmt.Sprintf("sacct -n -X -P -j %s -o State", remoteID), nil)
		if err == nil {
			if state := firstField(out); state != "" {
				return mapState(state), nil
			}
			err = fmt.Errorf("%w: empty sacct output for job %s", remote.ErrTransient, remoteID)
		}
		lastErr = err
		logger.Debug("Status poll failed.", "attempt", attempt, "error", err)
		if !remote.IsTransient(err) {
			break
		}
		if attempt < p.retries && p.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return job.Unknown, ctx.Err()
			case <-time.After(p.cfg.RetryDelay):
			}
		}
	}
	return job.Unknown, lastErr
}

// InnerStats reads the stat files of several jobs with one command.
func (p *Platform) InnerStats(ctx context.Context, names []string) (map[string]remote.Stat, error) {
	cmd := fmt.Sprintf("cd %s; for job in %s; do echo ${job} $(head ${job}_STAT 2>/dev/null); done", p.logDir, strings.Join(names, " "))
	out, err := p.run.Run(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}
	return parseInnerStats(out), nil
}

// Submit uploads the scripts of a package and queues it with sbatch.
func (p *Platform) Submit(ctx context.Context, pkg wrapper.Package) (string, error) {
	for _, j := range pkg.Jobs() {
		body, err := renderJob(p.cfg, p.logDir, j, !pkg.Wrapped())
		if err != nil {
			return "", fmt.Errorf("rendering %s: %w", j.Name, err)
		}
		if err := p.upload(ctx, j.Name+".cmd", body); err != nil {
			return "", err
		}
	}

	script := pkg.Name + ".cmd"
	if pkg.Wrapped() {
		if err := p.upload(ctx, script, renderWrapper(p.logDir, pkg)); err != nil {
			return "", err
		}
	}

	out, err := p.run.Run(ctx, fmt.Sprintf("cd %s; sbatch %s", p.logDir, script), nil)
	if err != nil {
		return "", fmt.Errorf("submitting %s: %w", pkg.Name, err)
	}
	id, err := parseSubmitID(out)
	if err != nil {
		return "", fmt.Errorf("submitting %s: %w", pkg.Name, err)
	}
	ctxlog.FromContext(ctx).Debug("Package submitted.", "platform", p.cfg.Name, "package", pkg.Name, "id", id, "jobs", len(pkg.Jobs()))
	return id, nil
}

func (p *Platform) upload(ctx context.Context, name, body string) error {
	if _, err := p.run.Run(ctx, "cat > "+p.file(name), strings.NewReader(body)); err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	return nil
}

func (p *Platform) file(name string) string { return path.Join(p.logDir, name) }
