package job_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/remote"
	"github.com/vk/chunkgrid/internal/testutil"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newArena returns an arena with a frozen clock and the named jobs added.
func newArena(t *testing.T, names ...string) (*job.Arena, map[string]*job.Job) {
	t.Helper()
	a := job.NewArena()
	a.SetClock(func() time.Time { return t0 })
	jobs := make(map[string]*job.Job)
	for _, n := range names {
		j := job.New(n, n, coord.Coordinate{})
		require.NoError(t, a.Add(j))
		jobs[n] = j
	}
	return a, jobs
}

func names(jobs []*job.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Name)
	}
	return out
}

func TestName(t *testing.T) {
	d := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "a000_INI", job.Name("a000", "", "INI", coord.Coordinate{}))
	assert.Equal(t, "a000_20160101_fc0_3_SIM", job.Name("a000", "", "SIM", coord.Coordinate{Date: d, Member: "fc0", Chunk: 3}))
	assert.Equal(t, "a000_2016010100_fc1_2_4_POST", job.Name("a000", "H", "POST", coord.Coordinate{Date: d, Member: "fc1", Chunk: 2, Split: 4}))
}

func TestNewDefaults(t *testing.T) {
	j := job.New("a000_SIM", "SIM", coord.Coordinate{Chunk: 1})
	assert.Equal(t, job.Waiting, j.Status())
	assert.Equal(t, -1, j.Delay)
	assert.Equal(t, 1, j.Frequency)
	assert.Equal(t, -1, j.Index())
	assert.Equal(t, 1, j.Chunk())
}

func TestParentChildSymmetry(t *testing.T) {
	a, jobs := newArena(t, "A", "B", "C")

	require.NoError(t, jobs["C"].AddParent(jobs["A"], jobs["B"]))
	assert.Equal(t, []string{"A", "B"}, names(jobs["C"].Parents()))
	assert.Equal(t, []string{"C"}, names(jobs["A"].Children()))
	assert.Equal(t, []string{"C"}, names(jobs["B"].Children()))
	assert.True(t, jobs["C"].HasParent(jobs["A"]))

	jobs["C"].DeleteParent(jobs["A"])
	assert.Equal(t, []string{"B"}, names(jobs["C"].Parents()))
	assert.Empty(t, jobs["A"].Children())

	require.NoError(t, a.Remove(jobs["B"]))
	assert.Empty(t, jobs["C"].Parents())
	assert.False(t, jobs["C"].HasParents())
	_, ok := a.ByName("B")
	assert.False(t, ok)
	assert.Equal(t, []string{"A", "C"}, names(a.Jobs()))

	// Every parent lists the child and every child lists the parent.
	for _, j := range a.Jobs() {
		for _, p := range j.Parents() {
			assert.Contains(t, names(p.Children()), j.Name)
		}
		for _, c := range j.Children() {
			assert.Contains(t, names(c.Parents()), j.Name)
		}
	}
}

func TestAddParentErrors(t *testing.T) {
	a, jobs := newArena(t, "A")

	assert.ErrorContains(t, jobs["A"].AddParent(jobs["A"]), "self-referential edge")

	detached := job.New("X", "X", coord.Coordinate{})
	assert.ErrorContains(t, jobs["A"].AddParent(detached), "not in the same arena")

	assert.ErrorContains(t, a.Add(job.New("A", "A", coord.Coordinate{})), "duplicate job name")
	assert.ErrorContains(t, a.Add(jobs["A"]), "already belongs")
}

func TestUpdateStatusCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("missing marker keeps previous status", func(t *testing.T) {
		_, jobs := newArena(t, "A")
		p := testutil.NewFakePlatform("hpc")
		jobs["A"].Platform = p
		jobs["A"].SetStatus(job.Running)

		jobs["A"].UpdateStatus(ctx, job.Completed)

		assert.Equal(t, job.Running, jobs["A"].Status())
	})

	t.Run("marker accepts completion and closes the attempt", func(t *testing.T) {
		_, jobs := newArena(t, "A")
		p := testutil.NewFakePlatform("hpc")
		p.SetMarker("A")
		start, end := t0.Add(-time.Hour), t0.Add(-time.Minute)
		p.SetStat("A", remote.Stat{Start: start, End: end})
		jobs["A"].Platform = p
		jobs["A"].MarkSubmitted("42", false)

		jobs["A"].UpdateStatus(ctx, job.Completed)

		require.Equal(t, job.Completed, jobs["A"].Status())
		require.Len(t, jobs["A"].Attempts, 1)
		att := jobs["A"].Attempts[0]
		assert.Equal(t, t0, att.Submit)
		assert.Equal(t, start, att.Start)
		assert.Equal(t, end, att.End)
		assert.Equal(t, job.Completed, att.Status)
	})
}

func TestUpdateStatusQueuing(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		reason    string
		want      job.Status
		cancelled bool
	}{
		{"(QOSMaxWallDurationPerJobLimit)", job.Failed, true},
		{"(InvalidAccount)", job.Failed, true},
		{"(Priority)", job.Queuing, false},
		{"", job.Queuing, false},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			_, jobs := newArena(t, "A")
			p := testutil.NewFakePlatform("hpc")
			p.SetReason("7", tt.reason)
			jobs["A"].Platform = p
			jobs["A"].MarkSubmitted("7", false)

			jobs["A"].UpdateStatus(ctx, job.Queuing)

			assert.Equal(t, tt.want, jobs["A"].Status())
			if tt.cancelled {
				assert.Equal(t, []string{"7"}, p.Cancelled())
			} else {
				assert.Empty(t, p.Cancelled())
			}
		})
	}
}

func TestUpdateStatusFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("marker overrides reported failure", func(t *testing.T) {
		_, jobs := newArena(t, "A", "B")
		require.NoError(t, jobs["B"].AddParent(jobs["A"]))
		p := testutil.NewFakePlatform("hpc")
		p.SetMarker("A")
		jobs["A"].Platform = p
		jobs["A"].SetStatus(job.Running)
		jobs["B"].SetStatus(job.Submitted)

		jobs["A"].UpdateStatus(ctx, job.Failed)

		assert.Equal(t, job.Completed, jobs["A"].Status())
		assert.Equal(t, job.Submitted, jobs["B"].Status())
	})

	for _, reported := range []job.Status{job.Failed, job.Unknown} {
		t.Run("cascade on "+reported.String(), func(t *testing.T) {
			_, jobs := newArena(t, "A", "B", "C", "D", "E", "F")
			// A -> B -> C, B -> D -> E, A -> F
			require.NoError(t, jobs["B"].AddParent(jobs["A"]))
			require.NoError(t, jobs["C"].AddParent(jobs["B"]))
			require.NoError(t, jobs["D"].AddParent(jobs["B"]))
			require.NoError(t, jobs["E"].AddParent(jobs["D"]))
			require.NoError(t, jobs["F"].AddParent(jobs["A"]))
			p := testutil.NewFakePlatform("hpc")
			jobs["A"].Platform = p
			jobs["A"].SetStatus(job.Running)
			jobs["B"].SetStatus(job.Running)
			jobs["C"].SetStatus(job.Queuing)
			jobs["D"].SetStatus(job.Waiting)
			jobs["E"].SetStatus(job.Unknown)
			jobs["F"].SetStatus(job.Completed)

			jobs["A"].UpdateStatus(ctx, reported)

			assert.Equal(t, reported, jobs["A"].Status())
			assert.Equal(t, job.Failed, jobs["B"].Status())
			assert.Equal(t, job.Failed, jobs["C"].Status())
			assert.Equal(t, job.Waiting, jobs["D"].Status())
			assert.Equal(t, job.Failed, jobs["E"].Status())
			assert.Equal(t, job.Completed, jobs["F"].Status())
		})
	}
}

func TestUpdateStatusMovesLogs(t *testing.T) {
	_, jobs := newArena(t, "A")
	p := testutil.NewFakePlatform("hpc")
	j := jobs["A"]
	j.Platform = p
	j.RemoteLogs = job.Logs{Out: "A.cmd.out", Err: "A.cmd.err"}
	j.LocalLogs = job.Logs{Out: "A.1.out", Err: "A.1.err"}
	j.SetStatus(job.Running)

	j.UpdateStatus(context.Background(), job.Failed)

	assert.Equal(t, [][2]string{{"A.cmd.out", "A.1.out"}, {"A.cmd.err", "A.1.err"}}, p.Moves())
	assert.Equal(t, j.LocalLogs, j.RemoteLogs)
}

func TestFinishAndCheckFinished(t *testing.T) {
	ctx := context.Background()
	_, jobs := newArena(t, "A", "B")
	p := testutil.NewFakePlatform("hpc")
	p.SetMarker("A")
	jobs["A"].Platform = p
	jobs["B"].Platform = p
	jobs["A"].SetStatus(job.Running)
	jobs["B"].SetStatus(job.Running)

	jobs["A"].CheckFinished(ctx)
	jobs["B"].CheckFinished(ctx)
	assert.Equal(t, job.Completed, jobs["A"].Status())
	assert.Equal(t, job.Failed, jobs["B"].Status())

	jobs["B"].Finish(ctx, job.Completed)
	assert.Equal(t, job.Completed, jobs["B"].Status())
}

func TestCancelWorthy(t *testing.T) {
	assert.True(t, job.CancelWorthy("(AssociationJobLimit)"))
	assert.True(t, job.CancelWorthy("TimeLimit"))
	assert.True(t, job.CancelWorthy("  (InvalidQOS) "))
	assert.False(t, job.CancelWorthy("(Resources)"))
	assert.False(t, job.CancelWorthy("()"))
	assert.False(t, job.CancelWorthy(""))
}

func TestStatus(t *testing.T) {
	s, err := job.ParseStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, job.Completed, s)
	_, err = job.ParseStatus("DONE")
	assert.ErrorContains(t, err, "unknown job status")

	assert.True(t, job.Unknown.InQueue())
	assert.False(t, job.Ready.InQueue())
	assert.True(t, job.Failed.Finished())

	b, err := job.Queuing.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "QUEUING", string(b))
	var back job.Status
	require.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, job.Queuing, back)

	typ, err := job.ParseType("Python")
	require.NoError(t, err)
	assert.Equal(t, job.Python, typ)
}
