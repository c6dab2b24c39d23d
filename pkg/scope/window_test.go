package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowEmptyGrowingRolling(t *testing.T) {
	w := NewWindow()
	assert.Equal(t, WindowEmpty, w.State().Mode)

	st := w.Observe(0, 1, true)
	assert.Equal(t, WindowGrowing, st.Mode)
	assert.Equal(t, Range{0, 10}, st.View)

	st = w.Observe(0, 5, true)
	assert.Equal(t, WindowGrowing, st.Mode)
	assert.Equal(t, Range{0, 10}, st.View)

	st = w.Observe(0, 12, true)
	require.Equal(t, WindowRolling, st.Mode)
	assert.Equal(t, 12.0, st.View.Upper)

	for _, xMax := range []float64{15, 20.5, 33.25, 100} {
		st = w.Observe(0, xMax, true)
		require.Equal(t, WindowRolling, st.Mode, "xMax %v", xMax)
		assert.Equal(t, xMax, st.View.Upper)
		assert.InDelta(t, 10, st.View.Size(), 1e-9)
	}
}

func TestWindowNoDataResets(t *testing.T) {
	w := NewWindow(WithLength(4))
	w.Observe(0, 50, true)
	w.Observe(0, 60, true)

	st := w.Observe(0, 0, false)
	assert.Equal(t, WindowEmpty, st.Mode)
	assert.Equal(t, Range{0, 4}, st.View)

	st = w.Observe(2, 3, true)
	assert.Equal(t, WindowGrowing, st.Mode)
	assert.Equal(t, Range{2, 6}, st.View)
}

func TestWindowPanLeavesRolling(t *testing.T) {
	w := NewWindow()
	w.Observe(0, 1, true)
	w.Observe(0, 12, true)
	w.Observe(0, 20, true)
	require.Equal(t, WindowRolling, w.State().Mode)

	st := w.Pan(0, 8)
	assert.Equal(t, WindowFreeLocked, st.Mode)
	assert.Equal(t, Range{0, 8}, st.View)

	st = w.Observe(0, 21, true)
	assert.Equal(t, WindowFree, st.Mode)
	assert.Equal(t, Range{0, 8}, st.View, "free view must not follow the signal")

	st = w.Observe(0, 22, true)
	assert.Equal(t, WindowFree, st.Mode)

	// signal restarted behind the visible edge
	st = w.Observe(0, 3, true)
	assert.Equal(t, WindowGrowing, st.Mode)
}

func TestWindowRollingDetectsMovedEdge(t *testing.T) {
	w := NewWindow()
	w.Observe(0, 1, true)
	w.Observe(0, 12, true)
	require.Equal(t, WindowRolling, w.State().Mode)

	// the view is moved without re-evaluating, as a zoom would
	w.mu.Lock()
	w.view = Range{1, 11}
	w.mu.Unlock()

	assert.Equal(t, WindowFreeLocked, w.Observe(0, 13, true).Mode)
	assert.Equal(t, WindowFree, w.Observe(0, 14, true).Mode)
}

func TestWindowShiftStep(t *testing.T) {
	w := NewWindow(WithShiftStep(50))
	w.Observe(0, 1, true)

	st := w.Observe(0, 12, true)
	assert.Equal(t, WindowGrowing, st.Mode)
	assert.Equal(t, Range{7, 17}, st.View)

	st = w.Observe(0, 15, true)
	assert.Equal(t, Range{7, 17}, st.View)

	st = w.Observe(0, 18, true)
	assert.Equal(t, WindowGrowing, st.Mode)
	assert.Equal(t, Range{13, 23}, st.View)
}

func TestWindowSetShiftStepLeavesRolling(t *testing.T) {
	w := NewWindow()
	w.Observe(0, 1, true)
	w.Observe(0, 12, true)
	require.Equal(t, WindowRolling, w.State().Mode)

	w.SetShiftStep(20)
	assert.Equal(t, WindowGrowing, w.State().Mode)

	st := w.Observe(0, 13, true)
	assert.Equal(t, WindowGrowing, st.Mode)
	assert.InDelta(t, 15, st.View.Upper, 1e-9)
}

func TestWindowSetLength(t *testing.T) {
	w := NewWindow()
	w.Observe(0, 1, true)
	w.Observe(0, 6, true)

	st := w.SetLength(4)
	assert.Equal(t, WindowRolling, st.Mode)
	assert.Equal(t, Range{2, 6}, st.View)

	st = w.SetLength(8)
	assert.Equal(t, WindowRolling, st.Mode)
	assert.Equal(t, Range{-2, 6}, st.View)

	st = w.SetLength(0)
	assert.Equal(t, Range{-2, 6}, st.View)
}

func TestWindowSetLengthBeforeData(t *testing.T) {
	w := NewWindow()
	st := w.SetLength(5)
	assert.Equal(t, WindowEmpty, st.Mode)
	assert.Equal(t, Range{0, 5}, st.View)

	st = w.Observe(0, 1, true)
	assert.Equal(t, WindowGrowing, st.Mode)
	assert.Equal(t, Range{0, 5}, st.View)

	st = w.Observe(0, 7, true)
	assert.Equal(t, WindowRolling, st.Mode)
	assert.Equal(t, Range{2, 7}, st.View)
}

func TestWindowEnvelopeThreshold(t *testing.T) {
	w := NewWindow(WithRolling(false))

	st := w.Observe(1, 10, true)
	assert.Equal(t, Range{1, 10}, st.View)

	st = w.Observe(1, 10.5, true)
	assert.Equal(t, Range{1, 10}, st.View, "a 5 percent change must not re-centre")
	assert.Equal(t, Range{1, 10.5}, st.Envelope)

	st = w.Observe(1, 10.9, true)
	assert.Equal(t, Range{1, 10}, st.View)

	st = w.Observe(1, 11.5, true)
	assert.Equal(t, Range{1, 11.5}, st.View)
}

func TestWindowEnvelopeZeroEdge(t *testing.T) {
	w := NewWindow(WithRolling(false))
	w.Observe(0, 10, true)

	st := w.Observe(0, 30, true)
	assert.Equal(t, Range{0, 30}, st.View)
}

func TestWindowSetRolling(t *testing.T) {
	w := NewWindow()
	w.Observe(0, 1, true)
	w.Observe(0, 12, true)

	st := w.SetRolling(false)
	assert.False(t, st.Rolling)
	assert.Equal(t, Range{0, 12}, st.View)

	st = w.SetRolling(true)
	assert.True(t, st.Rolling)
	assert.Equal(t, WindowFree, st.Mode)
}

func TestWindowModeText(t *testing.T) {
	for mode := WindowEmpty; mode <= WindowFreeLocked; mode++ {
		text, err := mode.MarshalText()
		require.NoError(t, err)
		var got WindowMode
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, mode, got)
	}
	var m WindowMode
	assert.Error(t, m.UnmarshalText([]byte("sideways")))
}
