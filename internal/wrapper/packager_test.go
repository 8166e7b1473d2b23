package wrapper_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/wrapper"
)

type spec struct {
	name, section string
	parents       []string
	status        job.Status
}

// graph adds one job per spec, in order, to a fresh arena.
func graph(t *testing.T, specs ...spec) map[string]*job.Job {
	t.Helper()
	a := job.NewArena()
	jobs := make(map[string]*job.Job)
	for i, s := range specs {
		j := job.New(s.name, s.section, coord.Coordinate{Chunk: i + 1})
		j.Wallclock = time.Hour
		j.Processors = 4
		require.NoError(t, a.Add(j))
		for _, p := range s.parents {
			require.NoError(t, j.AddParent(jobs[p]))
		}
		j.SetStatus(s.status)
		jobs[s.name] = j
	}
	return jobs
}

func wraps(sections ...string) func(string) bool {
	return func(s string) bool {
		for _, w := range sections {
			if w == s {
				return true
			}
		}
		return false
	}
}

// layout renders packages as chains of job names.
func layout(pkgs []wrapper.Package) [][][]string {
	out := make([][][]string, 0, len(pkgs))
	for _, p := range pkgs {
		var chains [][]string
		for _, c := range p.Chains {
			var names []string
			for _, j := range c {
				names = append(names, j.Name)
			}
			chains = append(chains, names)
		}
		out = append(out, chains)
	}
	return out
}

func simChain(t *testing.T) map[string]*job.Job {
	return graph(t,
		spec{"S1", "SIM", nil, job.Ready},
		spec{"S2", "SIM", []string{"S1"}, job.Waiting},
		spec{"S3", "SIM", []string{"S2"}, job.Waiting},
		spec{"S4", "SIM", []string{"S3"}, job.Waiting},
		spec{"P1", "POST", []string{"S1"}, job.Ready},
	)
}

func TestBuildVertical(t *testing.T) {
	jobs := simChain(t)
	pkgs := wrapper.Build(wrapper.Vertical, wrapper.Limits{Wraps: wraps("SIM"), MaxWrapped: 3},
		[]*job.Job{jobs["S1"], jobs["P1"]})

	assert.Equal(t, [][][]string{{{"S1", "S2", "S3"}}, {{"P1"}}}, layout(pkgs))
	require.Len(t, pkgs, 2)
	assert.True(t, pkgs[0].Wrapped())
	assert.Equal(t, "S1_vertical_3", pkgs[0].Name)
	assert.Equal(t, 3*time.Hour, pkgs[0].Wallclock())
	assert.Equal(t, 4, pkgs[0].Processors())
	assert.False(t, pkgs[1].Wrapped())
	assert.Equal(t, "P1", pkgs[1].Name)
}

func TestBuildVerticalLimits(t *testing.T) {
	t.Run("wallclock", func(t *testing.T) {
		jobs := simChain(t)
		pkgs := wrapper.Build(wrapper.Vertical, wrapper.Limits{Wraps: wraps("SIM"), MaxWallclock: 2 * time.Hour},
			[]*job.Job{jobs["S1"]})
		assert.Equal(t, [][][]string{{{"S1", "S2"}}}, layout(pkgs))
	})

	t.Run("pending parent outside the chain", func(t *testing.T) {
		jobs := graph(t,
			spec{"X", "INI", nil, job.Running},
			spec{"S1", "SIM", nil, job.Ready},
			spec{"S2", "SIM", []string{"S1", "X"}, job.Waiting},
		)
		pkgs := wrapper.Build(wrapper.Vertical, wrapper.Limits{Wraps: wraps("SIM")}, []*job.Job{jobs["S1"]})
		assert.Equal(t, [][][]string{{{"S1"}}}, layout(pkgs))
		assert.False(t, pkgs[0].Wrapped())
	})

	t.Run("other sections only when mixed", func(t *testing.T) {
		jobs := graph(t,
			spec{"S1", "SIM", nil, job.Ready},
			spec{"P1", "POST", []string{"S1"}, job.Waiting},
			spec{"S2", "SIM", []string{"P1"}, job.Waiting},
		)
		limits := wrapper.Limits{Wraps: wraps("SIM", "POST")}
		assert.Equal(t, [][][]string{{{"S1"}}}, layout(wrapper.Build(wrapper.Vertical, limits, []*job.Job{jobs["S1"]})))
		assert.Equal(t, [][][]string{{{"S1", "P1", "S2"}}}, layout(wrapper.Build(wrapper.VerticalMixed, limits, []*job.Job{jobs["S1"]})))
	})
}

func TestBuildHorizontal(t *testing.T) {
	jobs := graph(t,
		spec{"A", "SIM", nil, job.Ready},
		spec{"B", "SIM", nil, job.Ready},
		spec{"C", "SIM", nil, job.Ready},
		spec{"D", "SIM", nil, job.Ready},
		spec{"E", "SIM", nil, job.Ready},
	)
	ready := []*job.Job{jobs["A"], jobs["B"], jobs["C"], jobs["D"], jobs["E"]}

	pkgs := wrapper.Build(wrapper.Horizontal, wrapper.Limits{Wraps: wraps("SIM"), MaxWrapped: 2}, ready)
	assert.Equal(t, [][][]string{{{"A"}, {"B"}}, {{"C"}, {"D"}}, {{"E"}}}, layout(pkgs))
	assert.Equal(t, "A_horizontal_2", pkgs[0].Name)
	assert.Equal(t, 8, pkgs[0].Processors())
	assert.Equal(t, time.Hour, pkgs[0].Wallclock())
	assert.False(t, pkgs[2].Wrapped())

	pkgs = wrapper.Build(wrapper.Horizontal, wrapper.Limits{Wraps: wraps("SIM"), MaxProcessors: 12}, ready)
	assert.Equal(t, [][][]string{{{"A"}, {"B"}, {"C"}}, {{"D"}, {"E"}}}, layout(pkgs))
}

func TestBuildVerticalHorizontal(t *testing.T) {
	jobs := graph(t,
		spec{"A1", "SIM", nil, job.Ready},
		spec{"A2", "SIM", []string{"A1"}, job.Waiting},
		spec{"B1", "SIM", nil, job.Ready},
		spec{"B2", "SIM", []string{"B1"}, job.Waiting},
	)
	pkgs := wrapper.Build(wrapper.VerticalHorizontal, wrapper.Limits{Wraps: wraps("SIM"), MaxWrapped: 4},
		[]*job.Job{jobs["A1"], jobs["B1"]})

	assert.Equal(t, [][][]string{{{"A1", "A2"}, {"B1", "B2"}}}, layout(pkgs))
	assert.Equal(t, 2*time.Hour, pkgs[0].Wallclock())
	assert.Len(t, pkgs[0].Jobs(), 4)
}

func TestBuildWithoutWrapping(t *testing.T) {
	jobs := simChain(t)
	pkgs := wrapper.Build(wrapper.Vertical, wrapper.Limits{}, []*job.Job{jobs["S1"], jobs["P1"]})
	assert.Equal(t, [][][]string{{{"S1"}}, {{"P1"}}}, layout(pkgs))
}
