package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPauseKeepsPointsArrivingWhilePaused(t *testing.T) {
	b := NewBuffer()
	pre := []Sample{{0, 1}, {1, 2}, {2, 3}}
	for _, s := range pre {
		require.NoError(t, b.AppendPoint(0, s.Time, s.Value, true, false))
	}
	b.TakeDirty()

	b.Pause()
	require.True(t, b.Paused())

	var during []Sample
	for i := 0; i < 5; i++ {
		s := Sample{Time: float64(3 + i), Value: float64(10 * i)}
		during = append(during, s)
		require.NoError(t, b.AppendPoint(0, s.Time, s.Value, true, false))
	}
	assert.Equal(t, pre, b.Series(0), "live series must stay frozen")
	assert.Empty(t, b.TakeDirty())

	b.Resume()
	assert.False(t, b.Paused())
	assert.Equal(t, append(append([]Sample(nil), pre...), during...), b.Series(0))
	assert.Equal(t, []int{0}, b.TakeDirty())
}

func TestPauseIgnorePauseWritesLive(t *testing.T) {
	b := NewBuffer()
	b.Pause()
	require.NoError(t, b.AppendPoint(1, 1, 1, true, true))
	assert.Equal(t, []Sample{{1, 1}}, b.Series(1))
	b.Resume()
	// the snapshot of channel 1 was empty, so the live series survives
	assert.Equal(t, []Sample{{1, 1}}, b.Series(1))
}

func TestPauseVectorGoesToSnapshot(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.ReplaceOrAppendVector(0, []Sample{{0, 0}, {1, 1}}, false))
	b.Pause()
	require.NoError(t, b.ReplaceOrAppendVector(0, []Sample{{5, 5}, {6, 6}}, false))
	require.NoError(t, b.ReplaceOrAppendVector(0, []Sample{{7, 7}}, false))
	assert.Equal(t, []Sample{{0, 0}, {1, 1}}, b.Series(0))

	b.Resume()
	assert.Equal(t, []Sample{{5, 5}, {6, 6}, {7, 7}}, b.Series(0))
}

func TestClearWhilePausedDropsSnapshot(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.AppendPoint(0, 0, 1, true, false))
	b.Pause()
	require.NoError(t, b.AppendPoint(0, 1, 2, true, false))
	require.NoError(t, b.ClearChannel(0))
	b.Resume()
	assert.Empty(t, b.Series(0))
}

func TestPauseResumeAreIdempotent(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.AppendPoint(0, 0, 1, true, false))
	b.Resume()
	b.Pause()
	require.NoError(t, b.AppendPoint(0, 1, 2, true, false))
	b.Pause()
	b.Resume()
	b.Resume()
	assert.Equal(t, []Sample{{0, 1}, {1, 2}}, b.Series(0))
}
