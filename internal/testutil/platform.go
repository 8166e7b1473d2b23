package testutil

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/remote"
	"github.com/vk/chunkgrid/internal/wrapper"
)

// FakePlatform is a scripted platform. Tests set the statuses, markers,
// stat files and queue reasons it reports, and read back what the code
// under test asked it to do.
type FakePlatform struct {
	name string

	mu          sync.Mutex
	statuses    map[string]job.Status
	pollErrs    map[string]error
	reasons     map[string]string
	markers     map[string]bool
	stats       map[string]remote.Stat
	innerErr    error
	submitErr   error
	nextID      int
	cancelled   []string
	moves       [][2]string
	submissions []wrapper.Package
}

// NewFakePlatform creates an empty fake named name.
func NewFakePlatform(name string) *FakePlatform {
	return &FakePlatform{
		name:     name,
		statuses: make(map[string]job.Status),
		pollErrs: make(map[string]error),
		reasons:  make(map[string]string),
		markers:  make(map[string]bool),
		stats:    make(map[string]remote.Stat),
		nextID:   1,
	}
}

func (p *FakePlatform) Name() string { return p.name }

// SetStatus scripts the status reported for a remote id.
func (p *FakePlatform) SetStatus(remoteID string, s job.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[remoteID] = s
	delete(p.pollErrs, remoteID)
}

// FailPoll makes status polls of remoteID return err.
func (p *FakePlatform) FailPoll(remoteID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pollErrs[remoteID] = err
}

// FailInnerStats makes InnerStats return err. A nil err clears it.
func (p *FakePlatform) FailInnerStats(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.innerErr = err
}

// FailSubmit makes every submission return err. A nil err clears it.
func (p *FakePlatform) FailSubmit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitErr = err
}

// SetReason scripts the queue reason of a remote id.
func (p *FakePlatform) SetReason(remoteID, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reasons[remoteID] = reason
}

// SetMarker makes the completion marker of the named jobs exist.
func (p *FakePlatform) SetMarker(names ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range names {
		p.markers[n] = true
	}
}

// SetStat scripts the stat file of a job.
func (p *FakePlatform) SetStat(name string, s remote.Stat) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats[name] = s
}

// Cancelled returns the remote ids cancelled so far, in order.
func (p *FakePlatform) Cancelled() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.cancelled)
}

// Moves returns the file renames requested so far.
func (p *FakePlatform) Moves() [][2]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.moves)
}

// Submissions returns the packages submitted so far.
func (p *FakePlatform) Submissions() []wrapper.Package {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.submissions)
}

func (p *FakePlatform) Cancel(_ context.Context, remoteID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, remoteID)
	return nil
}

func (p *FakePlatform) QueueReason(_ context.Context, remoteID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reasons[remoteID], nil
}

func (p *FakePlatform) CompletedMarker(_ context.Context, name string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.markers[name], nil
}

func (p *FakePlatform) StatFile(_ context.Context, name string) (remote.Stat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stats[name]
	if !ok {
		return remote.Stat{}, fmt.Errorf("%w: no stat file for %s", remote.ErrTransient, name)
	}
	return s, nil
}

func (p *FakePlatform) MoveFile(_ context.Context, src, dst string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moves = append(p.moves, [2]string{src, dst})
	return nil
}

// Status returns the scripted status, SUBMITTED when none was set.
func (p *FakePlatform) Status(_ context.Context, remoteID string) (job.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.pollErrs[remoteID]; err != nil {
		return job.Unknown, err
	}
	if s, ok := p.statuses[remoteID]; ok {
		return s, nil
	}
	return job.Submitted, nil
}

func (p *FakePlatform) InnerStats(_ context.Context, names []string) (map[string]remote.Stat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.innerErr != nil {
		return nil, p.innerErr
	}
	out := make(map[string]remote.Stat, len(names))
	for _, n := range names {
		if s, ok := p.stats[n]; ok {
			out[n] = s
		}
	}
	return out, nil
}

// Submit records pkg and hands out sequential remote ids starting at 1.
func (p *FakePlatform) Submit(_ context.Context, pkg wrapper.Package) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return "", p.submitErr
	}
	p.submissions = append(p.submissions, pkg)
	id := strconv.Itoa(p.nextID)
	p.nextID++
	return id, nil
}
