package logger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"serialscope/pkg/engine"
	"serialscope/pkg/protocol"
	"serialscope/pkg/scope"
)

type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatMsgpack Format = "msgpack"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case FormatJSONL, "":
		return FormatJSONL, nil
	case FormatMsgpack:
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unknown capture format %q", raw)
	}
}

// Entry is one captured record.
type Entry struct {
	TS      string               `json:"ts" msgpack:"ts"`
	Kind    string               `json:"kind" msgpack:"kind"`
	Header  string               `json:"header,omitempty" msgpack:"header,omitempty"`
	Body    string               `json:"body,omitempty" msgpack:"body,omitempty"`
	Level   string               `json:"level,omitempty" msgpack:"level,omitempty"`
	Text    string               `json:"text,omitempty" msgpack:"text,omitempty"`
	DataHex string               `json:"data_hex,omitempty" msgpack:"data_hex,omitempty"`
	Values  []string             `json:"values,omitempty" msgpack:"values,omitempty"`
	Channel *protocol.ChannelData `json:"channel,omitempty" msgpack:"channel,omitempty"`
	Warning bool                 `json:"warning,omitempty" msgpack:"warning,omitempty"`
	Ended   bool                 `json:"ended,omitempty" msgpack:"ended,omitempty"`
	Frame   *scope.Frame         `json:"frame,omitempty" msgpack:"frame,omitempty"`
}

type encoder interface {
	Encode(v any) error
}

// Writer appends hub records to a capture stream.
type Writer struct {
	mu     sync.Mutex
	enc    encoder
	zw     *zstd.Encoder
	frames bool
}

type Option func(*writerConfig)

type writerConfig struct {
	zstd   bool
	frames bool
}

// WithZstd compresses the stream.
func WithZstd() Option {
	return func(c *writerConfig) {
		c.zstd = true
	}
}

// WithFrames also records refresh frames. Only events are kept otherwise.
func WithFrames(enabled bool) Option {
	return func(c *writerConfig) {
		c.frames = enabled
	}
}

func NewWriter(w io.Writer, format Format, opts ...Option) (*Writer, error) {
	var cfg writerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	out := &Writer{frames: cfg.frames}
	if cfg.zstd {
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		out.zw = zw
		w = zw
	}

	switch format {
	case FormatJSONL:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		out.enc = enc
	case FormatMsgpack:
		out.enc = msgpack.NewEncoder(w)
	default:
		return nil, fmt.Errorf("unknown capture format %q", format)
	}
	return out, nil
}

// Write encodes one record. Ready events and, unless enabled, frames are
// skipped.
func (w *Writer) Write(rec engine.Record) error {
	entry, ok := w.entry(rec)
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(entry)
}

func (w *Writer) Consume(ctx context.Context, in <-chan engine.Record, onError func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-in:
			if !ok {
				return
			}
			if err := w.Write(rec); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}

// Close flushes the compressor. The underlying writer is left open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.zw != nil {
		return w.zw.Close()
	}
	return nil
}

func (w *Writer) entry(rec engine.Record) (Entry, bool) {
	if rec.IsFrame() {
		if !w.frames {
			return Entry{}, false
		}
		return Entry{
			TS:    rec.Frame.Time.UTC().Format(time.RFC3339Nano),
			Kind:  "frame",
			Frame: rec.Frame,
		}, true
	}

	ev := rec.Event
	if ev.Kind == protocol.EventReady {
		return Entry{}, false
	}
	entry := Entry{
		TS:   ev.Timestamp.UTC().Format(time.RFC3339Nano),
		Kind: ev.Kind.String(),
	}
	switch ev.Kind {
	case protocol.EventMessage:
		entry.Header = ev.Message.Header
		entry.Body = ev.Message.Body
		entry.Level = ev.Message.Level.String()
	case protocol.EventTerminal, protocol.EventSettings, protocol.EventDeviceMessage:
		if utf8.Valid(ev.Data) {
			entry.Text = string(ev.Data)
		} else {
			entry.DataHex = hex.EncodeToString(ev.Data)
		}
		entry.Warning = ev.Warning
		entry.Ended = ev.Ended
	case protocol.EventPoint:
		entry.Values = ev.Values
	case protocol.EventChannel:
		ch := ev.Channel
		entry.Channel = &ch
	}
	return entry, true
}
