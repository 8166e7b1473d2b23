package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/testutil"
)

var at = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func jobsWith(statuses ...job.Status) []*job.Job {
	var out []*job.Job
	for i, s := range statuses {
		j := job.New(string(rune('A'+i)), "SIM", coord.Coordinate{Chunk: i + 1})
		j.SetStatus(s)
		out = append(out, j)
	}
	return out
}

func TestDiff(t *testing.T) {
	jobs := jobsWith(job.Waiting, job.Ready, job.Submitted)
	before := Statuses(jobs)
	jobs[1].SetStatus(job.Submitted)
	jobs[2].SetStatus(job.Running)
	delete(before, "C")

	run := uuid.New()
	got := Diff(run, at, before, jobs)

	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Job)
	assert.Equal(t, "SIM", got[0].Section)
	assert.Equal(t, job.Ready, got[0].From)
	assert.Equal(t, job.Submitted, got[0].To)
	assert.Equal(t, run, got[0].RunID)
	assert.Equal(t, at, got[0].At)
	assert.NotEqual(t, uuid.Nil, got[0].ID)

	assert.Empty(t, Diff(run, at, Statuses(jobs), jobs))
}

func TestLogPublisher(t *testing.T) {
	ctx, buf := testutil.LogContext(context.Background())
	events := []Event{{ID: uuid.New(), Job: "a000_SIM", Section: "SIM", From: job.Running, To: job.Completed}}

	require.NoError(t, LogPublisher{}.Publish(ctx, events))
	assert.Contains(t, buf.String(), "job=a000_SIM")
	assert.Contains(t, buf.String(), "to=COMPLETED")
}

type recordingPublisher struct {
	got    [][]Event
	err    error
	closed bool
}

func (r *recordingPublisher) Publish(_ context.Context, events []Event) error {
	r.got = append(r.got, events)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return r.err
}

func TestMulti(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("sink down")}
	ok := &recordingPublisher{}
	m := Multi{failing, ok}
	events := []Event{{Job: "A"}}

	err := m.Publish(context.Background(), events)
	assert.ErrorContains(t, err, "sink down")
	assert.Equal(t, [][]Event{events}, ok.got)

	assert.ErrorContains(t, m.Close(), "sink down")
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)
}

func TestToPayload(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	p, err := toPayload(Event{ID: id, Job: "A", Section: "SIM", From: job.Queuing, To: job.Running, At: at})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":      id.String(),
		"run_id":  uuid.Nil.String(),
		"job":     "A",
		"section": "SIM",
		"from":    "QUEUING",
		"to":      "RUNNING",
		"at":      "2024-03-01T12:00:00Z",
	}, p)
}

func TestNewSocketIOPublisher(t *testing.T) {
	p, err := NewSocketIOPublisher(SocketIOConfig{URL: "http://localhost:3000/socket.io/"})
	require.NoError(t, err)
	assert.Equal(t, "/", p.cfg.Namespace)
	assert.Equal(t, 15*time.Second, p.cfg.ConnectTimeout)

	_, err = NewSocketIOPublisher(SocketIOConfig{URL: "localhost"})
	assert.ErrorContains(t, err, "needs a scheme and a host")
}

func TestSocketIOPublisherUnreachable(t *testing.T) {
	p, err := NewSocketIOPublisher(SocketIOConfig{URL: "http://127.0.0.1:1/socket.io/", ConnectTimeout: 500 * time.Millisecond})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Publish(context.Background(), nil), "empty batches never connect")
	assert.Error(t, p.Publish(context.Background(), []Event{{Job: "A"}}))
}
