package wrapper

import (
	"fmt"
	"slices"
	"time"

	"github.com/vk/chunkgrid/internal/job"
)

// Limits bound the size of a package.
type Limits struct {
	// Wraps reports whether jobs of a section may be wrapped. A nil func
	// wraps nothing.
	Wraps func(section string) bool
	// MaxWrapped caps the number of jobs in one package. Zero means no cap.
	MaxWrapped int
	// MaxWallclock caps the wallclock a package requests.
	MaxWallclock time.Duration
	// MaxProcessors caps the processors a package requests.
	MaxProcessors int
}

// Package is one submission: a single job, or several chains of jobs that
// run side by side while the jobs of each chain run one after another.
type Package struct {
	Name   string
	Policy Policy
	Chains [][]*job.Job
}

// Jobs returns every job of the package, chain by chain.
func (p Package) Jobs() []*job.Job {
	var out []*job.Job
	for _, c := range p.Chains {
		out = append(out, c...)
	}
	return out
}

// Wrapped reports whether the package bundles more than one job.
func (p Package) Wrapped() bool {
	return len(p.Chains) > 1 || (len(p.Chains) == 1 && len(p.Chains[0]) > 1)
}

// Wallclock is the longest chain's summed wallclock.
func (p Package) Wallclock() time.Duration {
	var longest time.Duration
	for _, c := range p.Chains {
		if w := chainWallclock(c); w > longest {
			longest = w
		}
	}
	return longest
}

// Processors is the sum over chains of each chain's widest job.
func (p Package) Processors() int {
	total := 0
	for _, c := range p.Chains {
		total += chainProcessors(c)
	}
	return total
}

func chainWallclock(c []*job.Job) time.Duration {
	var total time.Duration
	for _, j := range c {
		total += j.Wallclock
	}
	return total
}

func chainProcessors(c []*job.Job) int {
	widest := 0
	for _, j := range c {
		widest = max(widest, j.Processors)
	}
	return widest
}

type packager struct {
	policy Policy
	limits Limits
	used   map[*job.Job]bool
}

// Build splits ready jobs into packages. Jobs of sections that are not
// wrapped become single-job packages; the others are bundled according
// to policy. Vertical policies also pull in WAITING descendants whose only
// pending parent is the previous job of the chain.
func Build(policy Policy, limits Limits, ready []*job.Job) []Package {
	b := &packager{policy: policy, limits: limits, used: make(map[*job.Job]bool)}

	var out []Package
	var wrappable []*job.Job
	for _, j := range ready {
		if b.wraps(j.Section) {
			wrappable = append(wrappable, j)
		} else {
			out = append(out, single(j))
		}
	}

	switch policy {
	case Vertical, VerticalMixed:
		for _, j := range wrappable {
			if b.used[j] {
				continue
			}
			out = append(out, b.pack([][]*job.Job{b.chain(j, b.limits.MaxWrapped)}))
		}
	case Horizontal:
		for _, group := range bySection(wrappable) {
			out = append(out, b.horizontal(group, false)...)
		}
	case VerticalHorizontal, HorizontalVertical:
		for _, group := range bySection(wrappable) {
			out = append(out, b.horizontal(group, true)...)
		}
	}

	// Packages follow the order of the jobs that head them.
	pos := make(map[*job.Job]int, len(ready))
	for i, j := range ready {
		pos[j] = i
	}
	slices.SortStableFunc(out, func(a, b Package) int {
		return pos[a.Chains[0][0]] - pos[b.Chains[0][0]]
	})
	return out
}

func (b *packager) wraps(section string) bool {
	return b.limits.Wraps != nil && b.limits.Wraps(section)
}

func single(j *job.Job) Package {
	return Package{Name: j.Name, Chains: [][]*job.Job{{j}}}
}

// pack names a package. Packages of one job keep the job's name.
func (b *packager) pack(chains [][]*job.Job) Package {
	p := Package{Policy: b.policy, Chains: chains}
	if !p.Wrapped() {
		return single(chains[0][0])
	}
	p.Name = fmt.Sprintf("%s_%s_%d", chains[0][0].Name, b.policy, len(p.Jobs()))
	return p
}

// chain starts at j and follows children for at most budget jobs.
func (b *packager) chain(j *job.Job, budget int) []*job.Job {
	b.used[j] = true
	out := []*job.Job{j}
	wall := j.Wallclock
	for budget <= 0 || len(out) < budget {
		next := b.nextLink(out, wall)
		if next == nil {
			break
		}
		b.used[next] = true
		out = append(out, next)
		wall += next.Wallclock
	}
	return out
}

// nextLink picks the child of the chain's last job that can run right after
// it inside the same submission.
func (b *packager) nextLink(chain []*job.Job, wall time.Duration) *job.Job {
	head, last := chain[0], chain[len(chain)-1]
	inChain := make(map[*job.Job]bool, len(chain))
	for _, j := range chain {
		inChain[j] = true
	}
	for _, c := range last.Children() {
		if b.used[c] || c.Status() != job.Waiting || !b.wraps(c.Section) {
			continue
		}
		if b.policy != VerticalMixed && c.Section != head.Section {
			continue
		}
		if b.limits.MaxWallclock > 0 && wall+c.Wallclock > b.limits.MaxWallclock {
			continue
		}
		if b.limits.MaxProcessors > 0 && c.Processors > b.limits.MaxProcessors {
			continue
		}
		pending := false
		for _, p := range c.Parents() {
			if p.Status() != job.Completed && !inChain[p] {
				pending = true
				break
			}
		}
		if !pending {
			return c
		}
	}
	return nil
}

// horizontal packs the jobs of one section side by side. With vertical set,
// every job is first extended into a chain.
func (b *packager) horizontal(group []*job.Job, vertical bool) []Package {
	var out []Package
	var chains [][]*job.Job
	count, procs := 0, 0

	flush := func() {
		if len(chains) > 0 {
			out = append(out, b.pack(chains))
		}
		chains, count, procs = nil, 0, 0
	}

	for _, j := range group {
		if b.used[j] {
			continue
		}
		budget := 1
		if vertical {
			budget = b.limits.MaxWrapped
			if budget > 0 {
				budget = max(1, budget-count)
			}
		}
		c := b.chain(j, budget)
		n, p := len(c), chainProcessors(c)
		overflows := (b.limits.MaxWrapped > 0 && count+n > b.limits.MaxWrapped) ||
			(b.limits.MaxProcessors > 0 && procs+p > b.limits.MaxProcessors)
		if overflows && len(chains) > 0 {
			flush()
		}
		chains = append(chains, c)
		count += n
		procs += p
	}
	flush()
	return out
}

// bySection groups jobs by section, keeping the order sections first
// appear in.
func bySection(jobs []*job.Job) [][]*job.Job {
	index := make(map[string]int)
	var out [][]*job.Job
	for _, j := range jobs {
		i, ok := index[j.Section]
		if !ok {
			i = len(out)
			index[j.Section] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], j)
	}
	return out
}
