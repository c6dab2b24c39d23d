package ingest

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"serialscope/pkg/metrics"
	"serialscope/pkg/protocol"
	"serialscope/pkg/transport"
)

// Session owns the parser of one link and serializes every call into it, so
// the control API can clear or inspect the parser while chunks flow.
type Session struct {
	mu     sync.Mutex
	parser *protocol.Parser
	logger zerolog.Logger
}

func NewSession(parser *protocol.Parser, logger zerolog.Logger) *Session {
	return &Session{parser: parser, logger: logger}
}

// Feed applies one transport chunk. A reset chunk drops state left over from
// the previous connection.
func (s *Session) Feed(chunk transport.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chunk.Reset {
		s.parser.ClearBuffer()
		s.logger.Debug().Msg("link reset, parser cleared")
	}
	if len(chunk.Data) > 0 {
		metrics.RecordBytes(len(chunk.Data))
		s.parser.Parse(chunk.Data)
	}
}

// Run feeds chunks until in is closed or ctx is done.
func (s *Session) Run(ctx context.Context, in <-chan transport.Chunk) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-in:
			if !ok {
				return nil
			}
			s.Feed(chunk)
		}
	}
}

func (s *Session) ClearBuffer() {
	s.mu.Lock()
	s.parser.ClearBuffer()
	s.mu.Unlock()
}

// GetReady clears the parser and announces that it can take data again.
func (s *Session) GetReady() {
	s.mu.Lock()
	s.parser.GetReady()
	s.mu.Unlock()
}

func (s *Session) ShowBuffer() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parser.ShowBuffer()
}

func (s *Session) SetOutputLevel(level protocol.OutputLevel) {
	s.mu.Lock()
	s.parser.SetMsgLevel(level)
	s.mu.Unlock()
}

func (s *Session) Mode() protocol.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parser.Mode()
}

func (s *Session) Stats() protocol.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parser.Stats()
}
