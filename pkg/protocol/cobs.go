package protocol

import (
	"bytes"
	"fmt"
)

// CobsDecode decodes a COBS frame without the trailing 0x00 delimiter.
func CobsDecode(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, nil
	}

	out := make([]byte, 0, len(frame))
	for i := 0; i < len(frame); {
		code := frame[i]
		if code == 0 {
			return nil, ErrInvalidCOBSCode
		}
		i++

		count := int(code) - 1
		if i+count > len(frame) {
			return nil, ErrTruncatedCOBS
		}

		out = append(out, frame[i:i+count]...)
		i += count

		if code != 0xFF && i < len(frame) {
			out = append(out, 0x00)
		}
	}

	return out, nil
}

// COBSDeframer turns a COBS framed byte stream into decoded payload chunks.
// Bytes of an unterminated frame are kept until its delimiter arrives.
type COBSDeframer struct {
	pending  []byte
	maxFrame int
}

func NewCOBSDeframer(maxFrame int) *COBSDeframer {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxPayload
	}
	return &COBSDeframer{maxFrame: maxFrame}
}

// Feed consumes chunk and returns the decoded payload of every frame it
// completes. A corrupt frame is skipped and reported; later frames in the
// same chunk are still returned.
func (d *COBSDeframer) Feed(chunk []byte) ([]byte, error) {
	d.pending = append(d.pending, chunk...)

	var out []byte
	var firstErr error
	for {
		idx := bytes.IndexByte(d.pending, 0x00)
		if idx < 0 {
			break
		}
		frame := d.pending[:idx]
		d.pending = d.pending[idx+1:]
		if len(frame) == 0 {
			continue
		}
		decoded, err := CobsDecode(frame)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, decoded...)
	}

	if len(d.pending) > d.maxFrame {
		dropped := len(d.pending)
		d.pending = nil
		if firstErr == nil {
			firstErr = fmt.Errorf("%w: dropped %d byte(s) without delimiter", ErrTruncatedCOBS, dropped)
		}
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return out, firstErr
}

// Reset drops any partial frame.
func (d *COBSDeframer) Reset() {
	d.pending = nil
}
