package coord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"20000101", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2016010112", time.Date(2016, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"201601011230", time.Date(2016, 1, 1, 12, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}

	_, err := ParseDate("2000-01-01")
	assert.ErrorContains(t, err, "expected YYYYMMDD")
	_, err = ParseDate("2000+10101")
	assert.ErrorContains(t, err, "expected YYYYMMDD")
	_, err = ParseDate("20001301")
	assert.Error(t, err)
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2016, 1, 1, 6, 45, 0, 0, time.UTC)
	assert.Equal(t, "20160101", FormatDate(d, ""))
	assert.Equal(t, "2016010106", FormatDate(d, "H"))
	assert.Equal(t, "201601010645", FormatDate(d, "M"))
}

func TestDateFormatFor(t *testing.T) {
	day := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "", DateFormatFor([]time.Time{day}))
	assert.Equal(t, "H", DateFormatFor([]time.Time{day, day.Add(6 * time.Hour)}))
	assert.Equal(t, "M", DateFormatFor([]time.Time{day.Add(90 * time.Minute)}))
}

func TestParseRunning(t *testing.T) {
	for in, want := range map[string]Running{"": RunOnce, "ONCE": RunOnce, "date": RunDate, "Member": RunMember, "chunk": RunChunk} {
		got, err := ParseRunning(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseRunning("hourly")
	assert.ErrorContains(t, err, "unknown running type")
}

func TestParseSynchronize(t *testing.T) {
	got, err := ParseSynchronize("DATE")
	require.NoError(t, err)
	assert.Equal(t, SyncDate, got)
	_, err = ParseSynchronize("chunk")
	assert.Error(t, err)
}

func TestAxesIndexes(t *testing.T) {
	d1 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	axes := Axes{Dates: []time.Time{d1, d2}, Members: []string{"fc0", "fc1"}, Chunks: ChunkRange(1, 3)}

	assert.Equal(t, 1, axes.DateIndex(d2))
	assert.Equal(t, -1, axes.DateIndex(d2.Add(time.Hour)))
	assert.Equal(t, 0, axes.MemberIndex("fc0"))
	assert.Equal(t, -1, axes.MemberIndex("fc9"))
	assert.Equal(t, []int{1, 2, 3}, axes.Chunks)
	assert.Equal(t, 2, axes.ChunkIndex(3))
	assert.Nil(t, ChunkRange(1, 0))
}

func TestCoordinateEqual(t *testing.T) {
	d := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Coordinate{Date: d, Member: "fc0", Chunk: 2, Split: 1}
	assert.True(t, a.Equal(Coordinate{Date: d, Member: "fc0", Chunk: 2, Split: 1}))
	assert.False(t, a.Equal(a.WithoutSplit()))
	assert.False(t, Coordinate{}.HasDate())
	assert.True(t, a.HasChunk())
}
