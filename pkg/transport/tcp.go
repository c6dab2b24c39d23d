package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"serialscope/pkg/protocol"
)

// Chunk is a run of bytes in arrival order. Reset marks the start of a new
// connection so the consumer can drop parser state from the previous one.
type Chunk struct {
	Data  []byte
	Reset bool
}

type Listener struct {
	addr         string
	out          chan<- Chunk
	reconnect    time.Duration
	reconnectMax time.Duration
	bufSize      int
	dialTimeout  time.Duration
	readTimeout  time.Duration
	cobsMax      int
	pace         time.Duration
	errorHandler func(error)
}

type Option func(*Listener)

func WithReconnectInterval(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.reconnect = d
		}
	}
}

func WithReconnectMax(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.reconnectMax = d
		}
	}
}

func WithBufferSize(n int) Option {
	return func(l *Listener) {
		if n > 0 {
			l.bufSize = n
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.dialTimeout = d
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.readTimeout = d
		}
	}
}

// WithCOBS treats the link as 0x00 delimited COBS frames and delivers the
// decoded payload. maxFrame bounds a frame still waiting for its delimiter.
func WithCOBS(maxFrame int) Option {
	return func(l *Listener) {
		if maxFrame <= 0 {
			maxFrame = protocol.DefaultMaxPayload
		}
		l.cobsMax = maxFrame
	}
}

// WithPace waits d between reads. Used to replay captures at link speed.
func WithPace(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.pace = d
		}
	}
}

func WithErrorHandler(fn func(error)) Option {
	return func(l *Listener) {
		if fn != nil {
			l.errorHandler = fn
		}
	}
}

func newListener(addr string, out chan<- Chunk, opts []Option) *Listener {
	l := &Listener{
		addr:         addr,
		out:          out,
		reconnect:    1 * time.Second,
		reconnectMax: 30 * time.Second,
		bufSize:      64 * 1024,
		dialTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StartListener dials addr and keeps streaming chunks into out, reconnecting
// with backoff until ctx is done.
func StartListener(ctx context.Context, addr string, out chan<- Chunk, opts ...Option) *Listener {
	l := newListener(addr, out, opts)
	go l.run(ctx)
	return l
}

// ReadStream streams r into out until EOF or ctx is done. EOF is not an
// error.
func ReadStream(ctx context.Context, r io.Reader, out chan<- Chunk, opts ...Option) error {
	l := newListener("", out, opts)
	if err := l.send(ctx, Chunk{Reset: true}); err != nil {
		return err
	}
	err := l.pump(ctx, r, nil)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (l *Listener) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := net.DialTimeout("tcp", l.addr, l.dialTimeout)
		if err != nil {
			l.handleError(err)
			attempt++
			l.sleepBackoff(ctx, attempt)
			continue
		}

		attempt = 0
		err = l.handleConn(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.handleError(err)
		}
		l.sleepBackoff(ctx, 1)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) error {
	if err := l.send(ctx, Chunk{Reset: true}); err != nil {
		return err
	}
	var deadline func()
	if l.readTimeout > 0 {
		deadline = func() { _ = conn.SetReadDeadline(time.Now().Add(l.readTimeout)) }
	}
	return l.pump(ctx, conn, deadline)
}

// pump copies reads from r into chunks. Read timeouts are not fatal.
func (l *Listener) pump(ctx context.Context, r io.Reader, beforeRead func()) error {
	var deframer *protocol.COBSDeframer
	if l.cobsMax > 0 {
		deframer = protocol.NewCOBSDeframer(l.cobsMax)
	}

	buf := make([]byte, l.bufSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if beforeRead != nil {
			beforeRead()
		}
		n, err := r.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if deframer != nil {
				var derr error
				data, derr = deframer.Feed(data)
				if derr != nil {
					l.handleError(derr)
				}
			}
			if len(data) > 0 {
				if serr := l.send(ctx, Chunk{Data: data}); serr != nil {
					return serr
				}
			}
			if l.pace > 0 {
				l.sleep(ctx, l.pace)
			}
		}
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			return err
		}
	}
}

func (l *Listener) send(ctx context.Context, chunk Chunk) error {
	select {
	case l.out <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Listener) sleepBackoff(ctx context.Context, attempt int) {
	l.sleep(ctx, min(l.reconnect*time.Duration(attempt), l.reconnectMax))
}

func (l *Listener) sleep(ctx context.Context, wait time.Duration) {
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
}

func (l *Listener) handleError(err error) {
	if l.errorHandler != nil {
		l.errorHandler(err)
	}
}
