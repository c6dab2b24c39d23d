package scope

import (
	"context"
	"time"
)

const DefaultRefreshInterval = 50 * time.Millisecond

// ChannelFrame is the full series of one channel that changed since the
// previous frame. An empty Samples slice means the channel was cleared.
type ChannelFrame struct {
	Channel int      `json:"channel" msgpack:"channel"`
	Name    string   `json:"name" msgpack:"name"`
	Samples []Sample `json:"samples" msgpack:"samples"`
}

// Frame is one coalesced redraw.
type Frame struct {
	Seq      uint64         `json:"seq" msgpack:"seq"`
	Time     time.Time      `json:"time" msgpack:"time"`
	Window   WindowState    `json:"window" msgpack:"window"`
	Paused   bool           `json:"paused" msgpack:"paused"`
	Channels []ChannelFrame `json:"channels" msgpack:"channels"`
}

// Refresher turns buffer mutations into at most one Frame per tick.
type Refresher struct {
	buf      *Buffer
	win      *Window
	publish  func(Frame)
	interval time.Duration
	seq      uint64
}

type RefreshOption func(*Refresher)

func WithInterval(d time.Duration) RefreshOption {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRate sets the tick rate in hertz.
func WithRate(hz float64) RefreshOption {
	return func(r *Refresher) {
		if hz > 0 {
			r.interval = time.Duration(float64(time.Second) / hz)
		}
	}
}

func NewRefresher(buf *Buffer, win *Window, publish func(Frame), opts ...RefreshOption) *Refresher {
	r := &Refresher{
		buf:      buf,
		win:      win,
		publish:  publish,
		interval: DefaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Refresher) Interval() time.Duration {
	return r.interval
}

// Run ticks until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick builds and publishes a frame if any channel changed since the last
// tick. Nothing happens otherwise.
func (r *Refresher) Tick() (Frame, bool) {
	dirty := r.buf.TakeDirty()
	if len(dirty) == 0 {
		return Frame{}, false
	}

	minT, maxT, ok := r.buf.Extents()
	r.seq++
	frame := Frame{
		Seq:      r.seq,
		Time:     time.Now(),
		Window:   r.win.Observe(minT, maxT, ok),
		Paused:   r.buf.Paused(),
		Channels: make([]ChannelFrame, 0, len(dirty)),
	}
	for _, ch := range dirty {
		frame.Channels = append(frame.Channels, ChannelFrame{
			Channel: ch,
			Name:    ChannelName(ch),
			Samples: r.buf.Series(ch),
		})
	}
	if r.publish != nil {
		r.publish(frame)
	}
	return frame, true
}
