package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

type decoder interface {
	Decode(v any) error
}

// Reader walks a capture stream written by Writer.
type Reader struct {
	dec decoder
	zr  *zstd.Decoder
}

func NewReader(r io.Reader, format Format, compressed bool) (*Reader, error) {
	out := &Reader{}
	if compressed {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		out.zr = zr
		r = zr
	}

	switch format {
	case FormatJSONL:
		out.dec = json.NewDecoder(bufio.NewReader(r))
	case FormatMsgpack:
		out.dec = msgpack.NewDecoder(bufio.NewReader(r))
	default:
		out.Close()
		return nil, fmt.Errorf("unknown capture format %q", format)
	}
	return out, nil
}

// Next returns the next entry, or io.EOF at the end of the stream.
func (r *Reader) Next() (Entry, error) {
	var entry Entry
	if err := r.dec.Decode(&entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (r *Reader) Close() {
	if r.zr != nil {
		r.zr.Close()
	}
}
