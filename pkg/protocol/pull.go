package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

var markerPrefix = []byte("$$")

// pullUnknown forwards bytes up to the next possible marker as terminal data.
func (p *Parser) pullUnknown() readResult {
	n := len(p.buf)
	if idx := bytes.IndexByte(p.buf[1:], '$'); idx >= 0 {
		n = idx + 1
	}
	p.listener.Terminal(p.take(n))
	return resultComplete
}

// pullLineRecord handles the newline terminated grammars.
func (p *Parser) pullLineRecord() readResult {
	line, res := p.pullLine()
	if res == resultIncomplete {
		return res
	}
	ended := res == resultComplete

	switch p.mode {
	case ModeTerminal:
		p.listener.Terminal(line)
	case ModeInfo:
		p.listener.DeviceMessage(trimEOL(line), false, ended)
	case ModeWarning:
		p.listener.DeviceMessage(trimEOL(line), true, ended)
	case ModeSettings:
		p.listener.Settings(trimEOL(line))
	case ModeEcho:
		// Echoed records are always delivered, whatever the output level.
		p.listener.Message(Message{Header: "Echo", Body: string(trimEOL(line)), Level: LevelInfo})
	}
	if !ended {
		p.notProperlyEnded("line")
	}
	return res
}

// pullLine returns the next line including its terminator. A marker seen
// before the newline ends the line early.
func (p *Parser) pullLine() ([]byte, readResult) {
	nl := bytes.IndexByte(p.buf, '\n')
	if mk := markerIndex(p.buf); mk > 0 && (nl < 0 || mk < nl) {
		return p.take(mk), resultNotProperlyEnded
	}
	if nl < 0 {
		if len(p.buf) > maxLineLen {
			return p.take(len(p.buf)), resultNotProperlyEnded
		}
		return nil, resultIncomplete
	}
	return p.take(nl + 1), resultComplete
}

// markerIndex returns the offset of the first complete mode marker, or -1.
func markerIndex(buf []byte) int {
	offset := 0
	for {
		idx := bytes.Index(buf[offset:], markerPrefix)
		if idx < 0 {
			return -1
		}
		at := offset + idx
		if at+2 >= len(buf) {
			return -1
		}
		if _, ok := modeFromMarker(buf[at+2]); ok {
			return at
		}
		offset = at + 1
	}
}

// pullPoint collects "," separated tokens until ";". Completed tokens are
// parked in pendingPoint so a partial point survives chunk boundaries.
func (p *Parser) pullPoint() readResult {
	for {
		i := 0
		for i < len(p.buf) && isNumericChar(p.buf[i]) {
			i++
		}
		if i == len(p.buf) {
			if i > maxTokenLen {
				p.pendingPoint = nil
				return p.invalid(i, "Invalid point", "token too long")
			}
			return resultIncomplete
		}

		switch p.buf[i] {
		case ',':
			p.pendingPoint = append(p.pendingPoint, string(p.buf[:i]))
			p.consume(i + 1)
		case ';':
			if i == 0 && len(p.pendingPoint) == 0 {
				return p.invalid(1, "Invalid point", "empty point")
			}
			values := append(p.pendingPoint, string(p.buf[:i]))
			p.pendingPoint = nil
			p.consume(i + 1)
			p.listener.Point(values)
			return resultComplete
		default:
			if i > 0 {
				p.pendingPoint = append(p.pendingPoint, string(p.buf[:i]))
				p.consume(i)
			}
			if len(p.pendingPoint) == 0 {
				return p.invalid(1, "Invalid point", fmt.Sprintf("unexpected byte 0x%02x", p.buf[0]))
			}
			values := p.pendingPoint
			p.pendingPoint = nil
			p.listener.Point(values)
			p.notProperlyEnded("point")
			return resultNotProperlyEnded
		}
	}
}

func (p *Parser) pullChannel() readResult {
	switch st := p.channel.(type) {
	case awaitingPayload:
		return p.pullChannelPayload(st)
	default:
		return p.pullChannelHeader()
	}
}

// pullChannelHeader parses "[descriptor]<channel>,<time>,<length>;". On
// success the header is cached and the payload is attempted right away.
func (p *Parser) pullChannelHeader() readResult {
	vt := TextValueType()
	n := 0
	if !isDigit(p.buf[0]) {
		vt, n = DecodeValueType(p.buf)
		switch vt.Kind {
		case KindIncomplete:
			return resultIncomplete
		case KindInvalid:
			return p.invalid(n, "Invalid value type", vt.String())
		}
	}

	end := -1
	for i := n; i < len(p.buf); i++ {
		b := p.buf[i]
		if b == ';' {
			end = i
			break
		}
		if b != ',' && !isNumericChar(b) {
			return p.invalid(i, "Invalid channel header", fmt.Sprintf("unexpected byte 0x%02x", b))
		}
	}
	if end < 0 {
		if len(p.buf)-n > maxHeaderLen {
			return p.invalid(len(p.buf), "Invalid channel header", "header too long")
		}
		return resultIncomplete
	}

	fields := strings.Split(string(p.buf[n:end]), ",")
	raw := string(p.buf[:end+1])
	p.consume(end + 1)
	if len(fields) != 3 {
		p.sendMessage("Invalid channel header", fmt.Sprintf("%v: %q", ErrMalformedHeader, raw), LevelWarning)
		return resultDiscarded
	}

	channel, err := strconv.Atoi(fields[0])
	if err != nil {
		p.sendMessage("Invalid channel header", fmt.Sprintf("%v: channel %q", ErrMalformedHeader, fields[0]), LevelWarning)
		return resultDiscarded
	}
	period, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		p.sendMessage("Invalid channel header", fmt.Sprintf("%v: time %q", ErrMalformedHeader, fields[1]), LevelWarning)
		return resultDiscarded
	}
	length, err := strconv.Atoi(fields[2])
	if err != nil {
		p.sendMessage("Invalid channel header", fmt.Sprintf("%v: length %q", ErrMalformedHeader, fields[2]), LevelWarning)
		return resultDiscarded
	}

	if channel < 1 || channel > p.maxChannel {
		return p.fatalError("Channel error", fmt.Errorf("%w: %d (1..%d)", ErrChannelNumber, channel, p.maxChannel))
	}
	if err := p.checkLength(vt, length); err != nil {
		return p.fatalError("Channel error", err)
	}

	st := awaitingPayload{
		channel:   channel,
		length:    length,
		timeRaw:   fields[1],
		period:    period,
		valueType: vt,
	}
	p.channel = st
	return p.pullChannelPayload(st)
}

func (p *Parser) checkLength(vt ValueType, length int) error {
	if length <= 0 {
		return fmt.Errorf("%w: channel length %d", ErrEmptyPayload, length)
	}
	if length > p.maxPayload {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, length, p.maxPayload)
	}
	if vt.Binary && length%vt.Width != 0 {
		return fmt.Errorf("%w: %d bytes of %s", ErrPayloadLength, length, vt)
	}
	return nil
}

func (p *Parser) pullChannelPayload(st awaitingPayload) readResult {
	if st.valueType.Binary {
		if len(p.buf) < st.length {
			return resultIncomplete
		}
		payload := p.take(st.length)
		values, err := DecodeValues(st.valueType, payload)
		if err != nil {
			return p.fatalError("Channel error", err)
		}
		p.channel = awaitingHeader{}
		p.listener.Channel(st.data(values))
		return resultComplete
	}

	p.skipSpace()
	if len(p.buf) == 0 {
		return resultIncomplete
	}
	i := 0
	for i < len(p.buf) && (isNumericChar(p.buf[i]) || p.buf[i] == ',' || p.buf[i] == ' ') {
		i++
	}
	if i == len(p.buf) {
		if i > st.length*maxTokenLen {
			p.channel = awaitingHeader{}
			return p.invalid(i, "Invalid channel data", "text payload too long")
		}
		return resultIncomplete
	}

	ended := p.buf[i] == ';'
	text := string(p.buf[:i])
	if ended {
		p.consume(i + 1)
	} else {
		p.consume(i)
	}
	p.channel = awaitingHeader{}

	values, err := parseTextValues(text, st.valueType.Multiplier)
	if err != nil {
		p.sendMessage("Invalid channel data", err.Error(), LevelWarning)
		return resultDiscarded
	}
	if len(values) == 0 {
		p.sendMessage("Invalid channel data", fmt.Sprintf("no values for channel %d", st.channel), LevelWarning)
		return resultDiscarded
	}
	p.listener.Channel(st.data(values))
	if !ended || len(values) != st.length {
		p.notProperlyEnded("channel")
		return resultNotProperlyEnded
	}
	return resultComplete
}

func parseTextValues(text string, multiplier float64) ([]float64, error) {
	fields := strings.Split(text, ",")
	out := make([]float64, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("parse value %q: %w", field, err)
		}
		out = append(out, v*multiplier)
	}
	return out, nil
}

func isNumericChar(b byte) bool {
	return isDigit(b) || b == '-' || b == '+' || b == '.' || b == 'e' || b == 'E'
}

func trimEOL(line []byte) []byte {
	return bytes.TrimRight(line, "\r\n")
}
