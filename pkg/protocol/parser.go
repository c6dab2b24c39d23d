package protocol

import (
	"fmt"
	"strconv"
)

const (
	DefaultMaxPayload = 1 << 20
	DefaultMaxChannel = 16

	maxTokenLen  = 64
	maxHeaderLen = 96
	maxLineLen   = 64 * 1024
)

// readResult is the outcome of one attempt to pull a record from the buffer.
type readResult int

const (
	// resultIncomplete: more bytes are needed, nothing was lost.
	resultIncomplete readResult = iota
	// resultComplete: one record was extracted and emitted.
	resultComplete
	// resultNotProperlyEnded: a record was emitted without its terminator.
	resultNotProperlyEnded
	// resultDiscarded: malformed bytes were dropped, no record was emitted.
	resultDiscarded
	// resultMarker: a mode marker switched the grammar.
	resultMarker
)

// Stats counts parser activity since construction.
type Stats struct {
	Bytes            uint64
	Records          uint64
	Markers          uint64
	NotProperlyEnded uint64
	Invalid          uint64
	Fatal            uint64
}

// Parser is an incremental parser for one device connection. Parse must not
// be called concurrently; a call made from inside a Listener callback only
// appends its bytes and lets the running loop consume them.
type Parser struct {
	listener   Listener
	mode       Mode
	level      OutputLevel
	maxPayload int
	maxChannel int

	buf          []byte
	pendingPoint []string
	channel      channelState
	parsing      bool
	stats        Stats
}

type Option func(*Parser)

func WithMaxPayload(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxPayload = n
		}
	}
}

func WithMaxChannel(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxChannel = n
		}
	}
}

func WithOutputLevel(level OutputLevel) Option {
	return func(p *Parser) {
		p.level = level
	}
}

func NewParser(listener Listener, opts ...Option) *Parser {
	p := &Parser{
		listener:   listener,
		mode:       ModeUnknown,
		level:      OutputInfo,
		maxPayload: DefaultMaxPayload,
		maxChannel: DefaultMaxChannel,
		channel:    awaitingHeader{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse appends chunk to the buffer and extracts every complete record.
func (p *Parser) Parse(chunk []byte) {
	p.buf = append(p.buf, chunk...)
	p.stats.Bytes += uint64(len(chunk))
	if p.parsing {
		return
	}
	p.parsing = true
	defer func() { p.parsing = false }()

	for {
		res := p.step()
		switch res {
		case resultIncomplete:
			p.listener.Ready()
			return
		case resultComplete:
			p.stats.Records++
		case resultNotProperlyEnded:
			p.stats.Records++
			p.stats.NotProperlyEnded++
		case resultDiscarded:
			p.stats.Invalid++
		case resultMarker:
			p.stats.Markers++
		}
	}
}

// Mode returns the grammar currently in force.
func (p *Parser) Mode() Mode {
	return p.mode
}

// Stats returns a copy of the activity counters.
func (p *Parser) Stats() Stats {
	return p.stats
}

func (p *Parser) SetDebugLevel(level OutputLevel) {
	p.level = level
}

func (p *Parser) SetMsgLevel(level OutputLevel) {
	p.level = level
}

// ClearBuffer drops all buffered bytes, pending point tokens and the cached
// channel header. The next byte is parsed as if the connection were new.
func (p *Parser) ClearBuffer() {
	p.buf = nil
	p.pendingPoint = nil
	p.channel = awaitingHeader{}
	p.mode = ModeUnknown
}

// GetReady clears the parser and signals readiness.
func (p *Parser) GetReady() {
	p.ClearBuffer()
	p.listener.Ready()
}

// ShowBuffer reports the buffered bytes without consuming them.
func (p *Parser) ShowBuffer() []byte {
	out := append([]byte(nil), p.buf...)
	body := fmt.Sprintf("%d byte(s) in %s mode: %s", len(out), p.mode, strconv.Quote(string(out)))
	if len(p.pendingPoint) > 0 {
		body += fmt.Sprintf(", pending point %q", p.pendingPoint)
	}
	if st, ok := p.channel.(awaitingPayload); ok {
		body += fmt.Sprintf(", awaiting %d byte(s) for channel %d", st.length, st.channel)
	}
	p.sendMessage("Buffer", body, LevelInfo)
	return out
}

func (p *Parser) step() readResult {
	if p.atRecordBoundary() {
		if p.mode == ModePoint || p.mode == ModeChannel {
			p.skipSpace()
		}
		if len(p.buf) == 0 {
			return resultIncomplete
		}
		if p.buf[0] == '$' {
			if len(p.buf) < 3 && (len(p.buf) < 2 || p.buf[1] == '$') {
				return resultIncomplete
			}
			if p.buf[1] == '$' {
				if mode, ok := modeFromMarker(p.buf[2]); ok {
					p.consume(3)
					p.changeMode(mode)
					return resultMarker
				}
			}
		}
	}
	if len(p.buf) == 0 {
		return resultIncomplete
	}

	switch p.mode {
	case ModePoint:
		return p.pullPoint()
	case ModeChannel:
		return p.pullChannel()
	case ModeTerminal, ModeInfo, ModeWarning, ModeSettings, ModeEcho:
		return p.pullLineRecord()
	default:
		return p.pullUnknown()
	}
}

func (p *Parser) atRecordBoundary() bool {
	switch p.mode {
	case ModePoint:
		return len(p.pendingPoint) == 0
	case ModeChannel:
		_, ok := p.channel.(awaitingHeader)
		return ok
	default:
		return true
	}
}

func (p *Parser) changeMode(mode Mode) {
	previous := p.mode
	p.mode = mode
	p.pendingPoint = nil
	p.channel = awaitingHeader{}
	p.sendMessage("Mode changed", fmt.Sprintf("%s -> %s", previous, mode), LevelInfo)
}

func (p *Parser) sendMessage(header string, body string, level MessageLevel) {
	if !p.level.Allows(level) {
		return
	}
	p.listener.Message(Message{Header: header, Body: body, Level: level})
}

// invalid discards n bytes and raises a warning.
func (p *Parser) invalid(n int, header string, body string) readResult {
	if n < 1 {
		n = 1
	}
	if n > len(p.buf) {
		n = len(p.buf)
	}
	dropped := p.take(n)
	p.sendMessage(header, fmt.Sprintf("%s, discarded %s", body, strconv.Quote(string(dropped))), LevelWarning)
	return resultDiscarded
}

// fatalError abandons the channel record in progress.
func (p *Parser) fatalError(header string, err error) readResult {
	p.stats.Fatal++
	p.channel = awaitingHeader{}
	p.sendMessage(header, err.Error(), LevelError)
	return resultDiscarded
}

func (p *Parser) notProperlyEnded(what string) {
	p.sendMessage("Not properly ended", fmt.Sprintf("%s record in %s mode accepted without terminator", what, p.mode), LevelWarning)
}

// take removes and returns a copy of the first n buffered bytes.
func (p *Parser) take(n int) []byte {
	out := append([]byte(nil), p.buf[:n]...)
	p.consume(n)
	return out
}

func (p *Parser) consume(n int) {
	p.buf = p.buf[n:]
	if len(p.buf) == 0 {
		p.buf = nil
	}
}

func (p *Parser) skipSpace() {
	i := 0
	for i < len(p.buf) && isSpace(p.buf[i]) {
		i++
	}
	if i > 0 {
		p.consume(i)
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
