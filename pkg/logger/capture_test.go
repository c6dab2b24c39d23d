package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"serialscope/pkg/engine"
	"serialscope/pkg/protocol"
	"serialscope/pkg/scope"
)

func TestWriterWritesJSONL(t *testing.T) {
	var out bytes.Buffer
	w, err := NewWriter(&out, FormatJSONL)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	ts := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	rec := engine.EventRecord(protocol.Event{
		Kind:      protocol.EventChannel,
		Timestamp: ts,
		Channel: protocol.ChannelData{
			Channel: 2,
			TimeRaw: "0.5",
			Period:  0.5,
			Samples: []protocol.Sample{{Time: 0, Value: 1}, {Time: 0.5, Value: 2}},
		},
	})
	if err := w.Write(rec); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["kind"] != "channel" {
		t.Fatalf("unexpected kind: %v", got["kind"])
	}
	if _, err := time.Parse(time.RFC3339Nano, got["ts"].(string)); err != nil {
		t.Fatalf("timestamp format: %v", err)
	}
	channel := got["channel"].(map[string]any)
	if channel["channel"].(float64) != 2 {
		t.Fatalf("unexpected channel: %v", channel["channel"])
	}
	if samples := channel["samples"].([]any); len(samples) != 2 {
		t.Fatalf("unexpected samples: %v", samples)
	}
}

func TestWriterSkipsReadyAndFrames(t *testing.T) {
	var out bytes.Buffer
	w, err := NewWriter(&out, FormatJSONL)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Write(engine.EventRecord(protocol.Event{Kind: protocol.EventReady})); err != nil {
		t.Fatalf("write ready: %v", err)
	}
	if err := w.Write(engine.FrameRecord(scope.Frame{Seq: 1})); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}

func TestWriterEncodesBinaryTextAsHex(t *testing.T) {
	var out bytes.Buffer
	w, err := NewWriter(&out, FormatJSONL)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Write(engine.EventRecord(protocol.Event{Kind: protocol.EventTerminal, Data: []byte{0xff, 0x00}})); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(out.String(), `"data_hex":"ff00"`) {
		t.Fatalf("expected hex payload, got %q", out.String())
	}
}

func TestCompressedMsgpackRoundTrip(t *testing.T) {
	var out bytes.Buffer
	w, err := NewWriter(&out, FormatMsgpack, WithZstd(), WithFrames(true))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	records := []engine.Record{
		engine.EventRecord(protocol.Event{
			Kind:    protocol.EventMessage,
			Message: protocol.Message{Header: "Channel error", Body: "bad type", Level: protocol.LevelError},
		}),
		engine.EventRecord(protocol.Event{Kind: protocol.EventPoint, Values: []string{"1", "2.5"}}),
		engine.FrameRecord(scope.Frame{
			Seq:      7,
			Channels: []scope.ChannelFrame{{Channel: 0, Name: "Ch 1", Samples: []scope.Sample{{Time: 1, Value: 2.5}}}},
		}),
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := NewReader(&out, FormatMsgpack, true)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	defer r.Close()

	var entries []Entry
	for {
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		entries = append(entries, entry)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Kind != "message" || entries[0].Level != "error" || entries[0].Body != "bad type" {
		t.Fatalf("unexpected message entry: %+v", entries[0])
	}
	if len(entries[1].Values) != 2 || entries[1].Values[1] != "2.5" {
		t.Fatalf("unexpected point entry: %+v", entries[1])
	}
	if entries[2].Frame == nil || entries[2].Frame.Seq != 7 || entries[2].Frame.Channels[0].Name != "Ch 1" {
		t.Fatalf("unexpected frame entry: %+v", entries[2])
	}
}

func TestConsumeStopsWhenChannelCloses(t *testing.T) {
	var out bytes.Buffer
	w, err := NewWriter(&out, FormatJSONL)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	in := make(chan engine.Record, 2)
	in <- engine.EventRecord(protocol.Event{Kind: protocol.EventSettings, Data: []byte("rate=10")})
	close(in)

	done := make(chan struct{})
	go func() {
		w.Consume(context.Background(), in, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("consume did not return")
	}
	if !strings.Contains(out.String(), `"text":"rate=10"`) {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatJSONL {
		t.Fatalf("default format: %v %v", f, err)
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
