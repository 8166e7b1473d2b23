package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/snapshot"
)

// SampleRecords returns a small snapshot covering every record field.
func SampleRecords() []snapshot.Record {
	date := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	return []snapshot.Record{
		{
			Name:     "a000_20000101_fc0_INI",
			Section:  "INI",
			Status:   job.Completed,
			Date:     date,
			Member:   "fc0",
			Children: []string{"a000_20000101_fc0_1_SIM"},
		},
		{
			Name:      "a000_20000101_fc0_1_SIM",
			Section:   "SIM",
			Status:    job.Running,
			FailCount: 1,
			Date:      date,
			Member:    "fc0",
			Chunk:     1,
			Split:     2,
			RemoteID:  "4711",
			Packed:    true,
			Parents:   []string{"a000_20000101_fc0_INI"},
		},
		{
			Name:    "a000_LOCAL",
			Section: "LOCAL",
			Status:  job.Waiting,
		},
	}
}

// RunStoreConformance exercises the behaviour every snapshot.Store backend
// must share. newStore must return an empty store for a fresh experiment.
func RunStoreConformance(t *testing.T, newStore func(t *testing.T) snapshot.Store) {
	t.Helper()
	ctx := context.Background()
	sortByName := cmpopts.SortSlices(func(a, b snapshot.Record) bool { return a.Name < b.Name })
	emptyAsNil := cmpopts.EquateEmpty()

	t.Run("empty store loads nothing", func(t *testing.T) {
		s := newStore(t)
		records, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("save then load", func(t *testing.T) {
		s := newStore(t)
		want := SampleRecords()
		require.NoError(t, s.Save(ctx, want))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got, sortByName, emptyAsNil); diff != "" {
			t.Errorf("loaded snapshot mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("save replaces previous snapshot", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, SampleRecords()))

		want := SampleRecords()[:1]
		want[0].Status = job.Failed
		require.NoError(t, s.Save(ctx, want))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got, sortByName, emptyAsNil); diff != "" {
			t.Errorf("loaded snapshot mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("save empty snapshot", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, SampleRecords()))
		require.NoError(t, s.Save(ctx, nil))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
