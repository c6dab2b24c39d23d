package scope

import (
	"errors"
	"fmt"
	"sync"
)

var ErrChannelRange = errors.New("scope: channel id out of range")

// Sample is one (time, value) pair of a channel series.
type Sample struct {
	Time  float64 `json:"t" msgpack:"t"`
	Value float64 `json:"v" msgpack:"v"`
}

// Buffer holds the live series of every channel. The lock is held across a
// single mutation only; readers get copies.
type Buffer struct {
	mu         sync.Mutex
	series     [][]Sample
	dirty      []bool
	hidden     []bool
	maxSamples int

	paused   bool
	snapshot [][]Sample
}

type BufferOption func(*Buffer)

// WithMaxSamples caps every series; the oldest samples are dropped first.
func WithMaxSamples(n int) BufferOption {
	return func(b *Buffer) {
		if n > 0 {
			b.maxSamples = n
		}
	}
}

func NewBuffer(opts ...BufferOption) *Buffer {
	b := &Buffer{
		series: make([][]Sample, ChannelCount),
		dirty:  make([]bool, ChannelCount),
		hidden: make([]bool, ChannelCount),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AppendPoint stores one sample. Without extend the channel's prior series
// is dropped first. While paused the sample goes to the pause snapshot unless
// ignorePause is set.
func (b *Buffer) AppendPoint(ch int, t, v float64, extend bool, ignorePause bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(ch, Sample{Time: t, Value: v}, extend, ignorePause)
	return nil
}

// ReplaceOrAppendVector stores a vector of samples. A single sample is
// appended when its time is strictly after the channel's last sample and
// replaces the series otherwise. Longer vectors replace the series.
func (b *Buffer) ReplaceOrAppendVector(ch int, samples []Sample, ignorePause bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(samples) == 1 {
		target := b.target(ch, ignorePause)
		extend := len(target) == 0 || samples[0].Time > target[len(target)-1].Time
		b.appendLocked(ch, samples[0], extend, ignorePause)
		return nil
	}

	series := b.capped(copySamples(samples))
	if b.paused && !ignorePause {
		b.snapshot[ch] = series
		return nil
	}
	b.series[ch] = series
	b.dirty[ch] = true
	return nil
}

// AppendLogic expands the lowest bits of word into one sample per logic bit
// of group.
func (b *Buffer) AppendLogic(group int, t float64, word uint32, bits int, ignorePause bool) error {
	if group < 0 || group >= LogicGroups {
		return fmt.Errorf("%w: logic group %d", ErrChannelRange, group)
	}
	if bits <= 0 || bits > LogicBits {
		return fmt.Errorf("%w: %d logic bits", ErrChannelRange, bits)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for bit := 0; bit < bits; bit++ {
		high := word&(1<<uint(bit)) != 0
		b.appendLocked(LogicChannelID(group, bit), Sample{Time: t, Value: LogicValue(bit, high)}, true, ignorePause)
	}
	return nil
}

// ClearChannel drops the channel's series, including its pause snapshot.
func (b *Buffer) ClearChannel(ch int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked(ch)
	return nil
}

// ClearLogicGroup clears the bits of group from fromBit upwards.
func (b *Buffer) ClearLogicGroup(group int, fromBit int) error {
	if group < 0 || group >= LogicGroups || fromBit < 0 || fromBit >= LogicBits {
		return fmt.Errorf("%w: logic group %d bit %d", ErrChannelRange, group, fromBit)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for bit := fromBit; bit < LogicBits; bit++ {
		b.clearLocked(LogicChannelID(group, bit))
	}
	return nil
}

// Reset clears every channel.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.series {
		b.clearLocked(ch)
	}
}

// SetVisible includes or excludes a channel from Extents. A logic group is
// represented by its bit 0 channel.
func (b *Buffer) SetVisible(ch int, visible bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	b.mu.Lock()
	b.hidden[ch] = !visible
	b.dirty[ch] = true
	b.mu.Unlock()
	return nil
}

// Series returns a copy of the live series. Logic channels are reduced to
// their level.
func (b *Buffer) Series(ch int) []Sample {
	if checkChannel(ch) != nil {
		return nil
	}
	b.mu.Lock()
	out := copySamples(b.series[ch])
	b.mu.Unlock()
	if IsLogicChannel(ch) {
		for i := range out {
			out[i].Value = float64(LogicLevel(out[i].Value))
		}
	}
	return out
}

// Len returns the number of live samples of a channel.
func (b *Buffer) Len(ch int) int {
	if checkChannel(ch) != nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.series[ch])
}

// Extents returns the earliest first time and latest last time over the
// visible analog and math channels and the visible logic groups.
func (b *Buffer) Extents() (minT, maxT float64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	consider := func(ch int) {
		s := b.series[ch]
		if len(s) == 0 || b.hidden[ch] {
			return
		}
		first, last := s[0].Time, s[len(s)-1].Time
		if !ok || first < minT {
			minT = first
		}
		if !ok || last > maxT {
			maxT = last
		}
		ok = true
	}
	for ch := 0; ch < AnalogChannels+MathChannels; ch++ {
		consider(ch)
	}
	for group := 0; group < LogicGroups; group++ {
		consider(LogicChannelID(group, 0))
	}
	return minT, maxT, ok
}

// TakeDirty returns the ids of channels mutated since the last call and
// clears their flags.
func (b *Buffer) TakeDirty() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []int
	for ch, d := range b.dirty {
		if d {
			out = append(out, ch)
			b.dirty[ch] = false
		}
	}
	return out
}

func (b *Buffer) target(ch int, ignorePause bool) []Sample {
	if b.paused && !ignorePause {
		return b.snapshot[ch]
	}
	return b.series[ch]
}

func (b *Buffer) appendLocked(ch int, s Sample, extend bool, ignorePause bool) {
	if b.paused && !ignorePause {
		if !extend {
			b.snapshot[ch] = nil
		}
		b.snapshot[ch] = b.capped(append(b.snapshot[ch], s))
		return
	}
	if !extend {
		b.series[ch] = nil
	}
	b.series[ch] = b.capped(append(b.series[ch], s))
	b.dirty[ch] = true
}

func (b *Buffer) clearLocked(ch int) {
	b.series[ch] = nil
	if b.paused {
		b.snapshot[ch] = nil
	}
	b.dirty[ch] = true
}

func (b *Buffer) capped(s []Sample) []Sample {
	if b.maxSamples > 0 && len(s) > b.maxSamples {
		return s[len(s)-b.maxSamples:]
	}
	return s
}

func copySamples(s []Sample) []Sample {
	if len(s) == 0 {
		return nil
	}
	return append([]Sample(nil), s...)
}

func checkChannel(ch int) error {
	if ch < 0 || ch >= ChannelCount {
		return fmt.Errorf("%w: %d", ErrChannelRange, ch)
	}
	return nil
}
