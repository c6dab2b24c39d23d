package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendPointReplacesWithoutExtend(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.AppendPoint(0, 1, 10, true, false))
	require.NoError(t, b.AppendPoint(0, 2, 20, true, false))
	assert.Equal(t, []Sample{{1, 10}, {2, 20}}, b.Series(0))

	require.NoError(t, b.AppendPoint(0, 0.5, 5, false, false))
	assert.Equal(t, []Sample{{0.5, 5}}, b.Series(0))
}

func TestReplaceOrAppendVectorSingleSample(t *testing.T) {
	b := NewBuffer()

	// empty channel appends
	require.NoError(t, b.ReplaceOrAppendVector(2, []Sample{{1, 1}}, false))
	require.NoError(t, b.ReplaceOrAppendVector(2, []Sample{{2, 2}}, false))
	assert.Equal(t, []Sample{{1, 1}, {2, 2}}, b.Series(2))

	// equal time replaces
	require.NoError(t, b.ReplaceOrAppendVector(2, []Sample{{2, 3}}, false))
	assert.Equal(t, []Sample{{2, 3}}, b.Series(2))

	// earlier time replaces
	require.NoError(t, b.ReplaceOrAppendVector(2, []Sample{{1, 4}}, false))
	assert.Equal(t, []Sample{{1, 4}}, b.Series(2))
}

func TestReplaceOrAppendVectorReplacesSeries(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.AppendPoint(1, 100, 1, true, false))

	in := []Sample{{0, 1}, {1, 2}, {2, 3}}
	require.NoError(t, b.ReplaceOrAppendVector(1, in, false))
	assert.Equal(t, in, b.Series(1))

	in[0].Value = 99
	assert.Equal(t, 1.0, b.Series(1)[0].Value, "buffer must not alias caller's slice")

	require.NoError(t, b.ReplaceOrAppendVector(1, nil, false))
	assert.Len(t, b.Series(1), 3)
}

func TestChannelRangeErrors(t *testing.T) {
	b := NewBuffer()
	assert.ErrorIs(t, b.AppendPoint(-1, 0, 0, true, false), ErrChannelRange)
	assert.ErrorIs(t, b.AppendPoint(ChannelCount, 0, 0, true, false), ErrChannelRange)
	assert.ErrorIs(t, b.ReplaceOrAppendVector(ChannelCount, []Sample{{0, 0}}, false), ErrChannelRange)
	assert.ErrorIs(t, b.AppendLogic(LogicGroups, 0, 1, 1, false), ErrChannelRange)
	assert.ErrorIs(t, b.AppendLogic(0, 0, 1, LogicBits+1, false), ErrChannelRange)
	assert.ErrorIs(t, b.ClearLogicGroup(0, LogicBits), ErrChannelRange)
	assert.Nil(t, b.Series(ChannelCount))
}

func TestAppendLogicStoresLevelsModThree(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.AppendLogic(1, 0.5, 0b101, 3, false))
	require.NoError(t, b.AppendLogic(1, 1.0, 0b010, 3, false))

	for bit, want := range [][]float64{{1, 0}, {0, 1}, {1, 0}} {
		ch := LogicChannelID(1, bit)
		series := b.Series(ch)
		require.Len(t, series, 2, "bit %d", bit)
		assert.Equal(t, want[0], series[0].Value, "bit %d", bit)
		assert.Equal(t, want[1], series[1].Value, "bit %d", bit)
		assert.Equal(t, 0.5, series[0].Time)
	}
	assert.Empty(t, b.Series(LogicChannelID(1, 3)))
}

func TestLogicLevel(t *testing.T) {
	assert.Equal(t, 0, LogicLevel(LogicValue(7, false)))
	assert.Equal(t, 1, LogicLevel(LogicValue(7, true)))
	assert.Equal(t, 2, LogicLevel(3*7+2))
	assert.Equal(t, 1, LogicLevel(4.0000001))
	assert.Equal(t, 2, LogicLevel(-1))
}

func TestParseChannel(t *testing.T) {
	cases := map[string]int{
		"0":         0,
		"18":        18,
		"ch1":       0,
		"CH16":      15,
		"math1":     AnalogChannels,
		"math3":     AnalogChannels + 2,
		"logic1.1":  LogicChannelID(0, 0),
		"logic3.32": LogicChannelID(2, 31),
	}
	for ref, want := range cases {
		got, err := ParseChannel(ref)
		require.NoError(t, err, ref)
		assert.Equal(t, want, got, ref)
	}

	for _, ref := range []string{"", "-1", "115", "ch0", "ch17", "math4", "logic4.1", "logic1.33", "logic1", "x"} {
		_, err := ParseChannel(ref)
		assert.ErrorIs(t, err, ErrChannelRange, ref)
	}
}

func TestChannelLayout(t *testing.T) {
	ch, ok := AnalogChannelID(1)
	require.True(t, ok)
	assert.Equal(t, 0, ch)
	_, ok = AnalogChannelID(AnalogChannels + 1)
	assert.False(t, ok)

	m, ok := MathChannelID(1)
	require.True(t, ok)
	assert.Equal(t, AnalogChannels, m)

	id := LogicChannelID(2, 31)
	assert.Equal(t, ChannelCount-1, id)
	assert.True(t, IsLogicChannel(id))
	assert.False(t, IsLogicChannel(m))
	group, bit := LogicGroupBit(id)
	assert.Equal(t, 2, group)
	assert.Equal(t, 31, bit)

	assert.Equal(t, "Ch 1", ChannelName(0))
	assert.Equal(t, "Math 2", ChannelName(AnalogChannels+1))
	assert.Equal(t, "Logic 1 bit 3", ChannelName(LogicChannelID(0, 2)))
}

func TestClearAndReset(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.AppendPoint(0, 1, 1, true, false))
	require.NoError(t, b.AppendPoint(3, 1, 1, true, false))
	require.NoError(t, b.AppendLogic(0, 1, 0xFF, 8, false))

	require.NoError(t, b.ClearChannel(0))
	assert.Empty(t, b.Series(0))
	assert.Equal(t, 1, b.Len(3))

	require.NoError(t, b.ClearLogicGroup(0, 4))
	assert.Equal(t, 1, b.Len(LogicChannelID(0, 3)))
	assert.Equal(t, 0, b.Len(LogicChannelID(0, 4)))

	b.Reset()
	assert.Equal(t, 0, b.Len(3))
	assert.Equal(t, 0, b.Len(LogicChannelID(0, 0)))
	_, _, ok := b.Extents()
	assert.False(t, ok)
}

func TestExtentsSkipHiddenChannels(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.ReplaceOrAppendVector(0, []Sample{{1, 0}, {5, 0}}, false))
	require.NoError(t, b.ReplaceOrAppendVector(1, []Sample{{-2, 0}, {3, 0}}, false))
	require.NoError(t, b.AppendLogic(0, 9, 1, 1, false))

	minT, maxT, ok := b.Extents()
	require.True(t, ok)
	assert.Equal(t, -2.0, minT)
	assert.Equal(t, 9.0, maxT)

	require.NoError(t, b.SetVisible(1, false))
	require.NoError(t, b.SetVisible(LogicChannelID(0, 0), false))
	minT, maxT, ok = b.Extents()
	require.True(t, ok)
	assert.Equal(t, 1.0, minT)
	assert.Equal(t, 5.0, maxT)
}

func TestTakeDirtyCoalescesMutations(t *testing.T) {
	b := NewBuffer()
	for i := 0; i < 100; i++ {
		require.NoError(t, b.AppendPoint(4, float64(i), 0, true, false))
	}
	require.NoError(t, b.AppendPoint(2, 0, 0, true, false))

	assert.Equal(t, []int{2, 4}, b.TakeDirty())
	assert.Empty(t, b.TakeDirty())
}

func TestMaxSamplesDropsOldest(t *testing.T) {
	b := NewBuffer(WithMaxSamples(3))
	for i := 0; i < 5; i++ {
		require.NoError(t, b.AppendPoint(0, float64(i), float64(i), true, false))
	}
	assert.Equal(t, []Sample{{2, 2}, {3, 3}, {4, 4}}, b.Series(0))

	require.NoError(t, b.ReplaceOrAppendVector(1, []Sample{{0, 0}, {1, 1}, {2, 2}, {3, 3}}, false))
	assert.Equal(t, []Sample{{1, 1}, {2, 2}, {3, 3}}, b.Series(1))
}
