package scope

import (
	"fmt"
	"math"
	"sync"
)

const (
	DefaultLength = 10.0
	// envelopeThreshold is the summed relative edge movement that re-centres
	// the view when rolling is off.
	envelopeThreshold = 0.1
	maxZoomOut        = 1e6
)

type WindowMode int

const (
	WindowEmpty WindowMode = iota
	WindowGrowing
	WindowRolling
	WindowFree
	WindowFreeLocked
)

func (m WindowMode) String() string {
	switch m {
	case WindowGrowing:
		return "growing"
	case WindowRolling:
		return "rolling"
	case WindowFree:
		return "free"
	case WindowFreeLocked:
		return "free_locked"
	default:
		return "empty"
	}
}

func (m WindowMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *WindowMode) UnmarshalText(text []byte) error {
	for mode := WindowEmpty; mode <= WindowFreeLocked; mode++ {
		if mode.String() == string(text) {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("unknown window mode %q", text)
}

// Range is a closed time interval.
type Range struct {
	Lower float64 `json:"lower" msgpack:"lower"`
	Upper float64 `json:"upper" msgpack:"upper"`
}

func (r Range) Size() float64 {
	return r.Upper - r.Lower
}

func (r Range) Center() float64 {
	return (r.Lower + r.Upper) / 2
}

// WindowState is what a tick needs to know about the time axis.
type WindowState struct {
	Mode     WindowMode `json:"mode" msgpack:"mode"`
	View     Range      `json:"view" msgpack:"view"`
	Envelope Range      `json:"envelope" msgpack:"envelope"`
	Rolling  bool       `json:"rolling" msgpack:"rolling"`
}

// Window decides the visible time range from the live channel extents.
type Window struct {
	mu sync.Mutex

	mode      WindowMode
	rolling   bool
	shiftStep float64
	length    float64

	view          Range
	envelope      Range
	anchor        Range
	rangeUnknown  bool
	lastSignalEnd float64

	minT, maxT float64
	hasData    bool
}

type WindowOption func(*Window)

func WithRolling(enabled bool) WindowOption {
	return func(w *Window) {
		w.rolling = enabled
	}
}

// WithShiftStep sets the growing catch-up step in percent of the window
// length. Zero snaps to rolling.
func WithShiftStep(percent float64) WindowOption {
	return func(w *Window) {
		if percent >= 0 {
			w.shiftStep = percent
		}
	}
}

func WithLength(length float64) WindowOption {
	return func(w *Window) {
		if length > 0 {
			w.length = length
		}
	}
}

func NewWindow(opts ...WindowOption) *Window {
	w := &Window{
		rolling: true,
		length:  DefaultLength,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.resetLocked()
	return w
}

// Observe feeds the extents computed on a tick and returns the new state.
func (w *Window) Observe(xMin, xMax float64, hasData bool) WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observeLocked(xMin, xMax, hasData)
	return w.stateLocked()
}

func (w *Window) State() WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

// Pan moves the visible range, as a user scrolling or zooming would.
func (w *Window) Pan(lower, upper float64) WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if upper > lower {
		w.view = Range{Lower: lower, Upper: upper}
		if w.rolling && w.hasData {
			w.updateRollingLocked(w.maxT)
		}
	}
	return w.stateLocked()
}

// SetShiftStep changes the catch-up step. A rolling window drops back to
// growing so the new step takes effect.
func (w *Window) SetShiftStep(percent float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if percent < 0 {
		percent = 0
	}
	w.shiftStep = percent
	if w.rolling && w.mode == WindowRolling {
		w.mode = WindowGrowing
	}
}

// SetRolling switches between the rolling state machine and the envelope
// model.
func (w *Window) SetRolling(enabled bool) WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rolling != enabled {
		w.rolling = enabled
		if !enabled {
			w.mode = WindowFree
		}
		w.observeLocked(w.minT, w.maxT, w.hasData)
	}
	return w.stateLocked()
}

// SetLength changes the visible window length.
func (w *Window) SetLength(length float64) WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if length <= 0 {
		return w.stateLocked()
	}
	w.length = length
	if !w.hasData {
		w.view = Range{Lower: 0, Upper: length}
		w.maxT = length
		return w.stateLocked()
	}
	if !w.rolling {
		ctr := w.view.Center()
		w.view = Range{Lower: ctr - length/2, Upper: ctr + length/2}
		return w.stateLocked()
	}

	switch {
	case w.mode == WindowRolling:
		w.view = Range{Lower: w.maxT - length, Upper: w.maxT}
	case w.maxT-w.minT > length:
		w.mode = WindowRolling
		w.view = Range{Lower: w.maxT - length, Upper: w.maxT}
	default:
		w.mode = WindowGrowing
		w.view = Range{Lower: w.minT, Upper: w.minT + length}
	}
	if w.hasData {
		w.updateRollingLocked(w.maxT)
	}
	return w.stateLocked()
}

func (w *Window) observeLocked(xMin, xMax float64, hasData bool) {
	w.hasData = hasData
	if !hasData {
		w.resetLocked()
		return
	}
	w.minT, w.maxT = xMin, xMax

	if w.rolling {
		if w.rangeUnknown {
			w.view = Range{Lower: xMin, Upper: xMin + w.length}
		}
		w.envelope = Range{Lower: xMin, Upper: xMax + w.view.Size()}
		w.updateRollingLocked(xMax)
	} else {
		// Measured against the envelope the view was last fitted to.
		diff := relativeChange(xMax, w.anchor.Upper) + relativeChange(xMin, w.anchor.Lower)
		w.envelope = Range{Lower: xMin, Upper: xMax}
		if w.rangeUnknown || diff > envelopeThreshold {
			w.view = w.envelope
			w.anchor = w.envelope
		}
	}
	w.rangeUnknown = false
}

func (w *Window) updateRollingLocked(xMax float64) {
	size := w.view.Size()
	switch w.mode {
	case WindowEmpty:
		w.mode = WindowGrowing
	case WindowGrowing:
		if xMax > w.view.Upper {
			if w.shiftStep > 0 {
				end := w.maxT + w.shiftStep/100*size
				w.view = Range{Lower: end - size, Upper: end}
			} else {
				w.mode = WindowRolling
				w.view = Range{Lower: xMax - size, Upper: xMax}
			}
		}
	case WindowFree:
		if xMax < w.view.Upper {
			w.mode = WindowGrowing
		}
	case WindowFreeLocked:
		w.mode = WindowFree
	case WindowRolling:
		if !fuzzyEqual(w.view.Upper, w.lastSignalEnd) {
			w.mode = WindowFreeLocked
		} else {
			w.view = Range{Lower: xMax - size, Upper: xMax}
		}
	}
	w.lastSignalEnd = xMax
}

func (w *Window) resetLocked() {
	w.minT, w.maxT = 0, w.length
	w.envelope = Range{Lower: 0, Upper: maxZoomOut}
	w.view = Range{Lower: 0, Upper: w.length}
	w.anchor = Range{}
	w.rangeUnknown = true
	w.mode = WindowEmpty
}

func (w *Window) stateLocked() WindowState {
	return WindowState{
		Mode:     w.mode,
		View:     w.view,
		Envelope: w.envelope,
		Rolling:  w.rolling,
	}
}

// relativeChange is |v-ref|/|ref|; a zero reference counts as an unbounded
// change unless v is zero too.
func relativeChange(v, ref float64) float64 {
	if ref == 0 {
		if v == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(v-ref) / math.Abs(ref)
}

func fuzzyEqual(a, b float64) bool {
	const eps = 1e-12
	return math.Abs(a-b) <= eps*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
