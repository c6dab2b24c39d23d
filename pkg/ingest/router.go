package ingest

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"serialscope/pkg/metrics"
	"serialscope/pkg/protocol"
	"serialscope/pkg/scope"
)

// Publisher receives every event after it has been applied to the buffer.
type Publisher interface {
	PublishEvent(ev protocol.Event)
}

// LogicSource routes one device channel into a logic group. Every sample
// value of that channel is read as a bit word.
type LogicSource struct {
	Channel int
	Group   int
	Bits    int
}

// Router is the parser's listener: it applies points and channel vectors to
// the scope buffer, logs messages and forwards events.
type Router struct {
	buf         *scope.Buffer
	logger      zerolog.Logger
	pub         Publisher
	logic       map[int]LogicSource
	ignorePause bool
}

type Option func(*Router)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithPublisher(pub Publisher) Option {
	return func(r *Router) {
		r.pub = pub
	}
}

func WithLogicSource(src LogicSource) Option {
	return func(r *Router) {
		if src.Bits <= 0 || src.Bits > scope.LogicBits {
			src.Bits = scope.LogicBits
		}
		r.logic[src.Channel] = src
	}
}

// WithIgnorePause makes ingestion write to the live series even while the
// buffer is paused.
func WithIgnorePause(ignore bool) Option {
	return func(r *Router) {
		r.ignorePause = ignore
	}
}

func NewRouter(buf *scope.Buffer, opts ...Option) *Router {
	r := &Router{
		buf:    buf,
		logger: zerolog.Nop(),
		logic:  make(map[int]LogicSource),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Listener adapts the router for protocol.NewParser.
func (r *Router) Listener() protocol.Listener {
	return protocol.EventFunc(r.Handle)
}

func (r *Router) Handle(ev protocol.Event) {
	if ev.Kind != protocol.EventReady {
		metrics.RecordEvent(ev.Kind)
	}

	switch ev.Kind {
	case protocol.EventMessage:
		r.message(ev.Message)
	case protocol.EventDeviceMessage:
		r.deviceMessage(ev)
	case protocol.EventSettings:
		r.logger.Info().Str("settings", string(ev.Data)).Msg("device settings")
	case protocol.EventTerminal:
		r.logger.Debug().Str("text", string(ev.Data)).Msg("terminal")
	case protocol.EventPoint:
		r.point(ev.Values)
	case protocol.EventChannel:
		r.channel(ev.Channel)
	case protocol.EventReady:
		return
	}

	if r.pub != nil {
		r.pub.PublishEvent(ev)
	}
}

func (r *Router) message(msg protocol.Message) {
	metrics.RecordMessage(msg.Level)
	var e *zerolog.Event
	switch msg.Level {
	case protocol.LevelError:
		e = r.logger.Error()
	case protocol.LevelWarning, protocol.LevelDeviceWarning:
		e = r.logger.Warn()
	case protocol.LevelInfo:
		e = r.logger.Debug()
	default:
		e = r.logger.Info()
	}
	e.Str("header", msg.Header).Str("level", msg.Level.String()).Msg(msg.Body)
}

func (r *Router) deviceMessage(ev protocol.Event) {
	level := protocol.LevelDeviceInfo
	e := r.logger.Info()
	if ev.Warning {
		level = protocol.LevelDeviceWarning
		e = r.logger.Warn()
	}
	metrics.RecordMessage(level)
	e.Bool("ended", ev.Ended).Str("source", "device").Msg(string(ev.Data))
}

// point stores values[1:] at time values[0] on analog channels 1..n.
func (r *Router) point(values []string) {
	if len(values) < 2 {
		r.logger.Warn().Strs("values", values).Msg("point without values")
		return
	}
	t, err := parseNumber(values[0])
	if err != nil {
		r.logger.Warn().Err(err).Str("time", values[0]).Msg("point time")
		return
	}
	for i, raw := range values[1:] {
		ch, ok := scope.AnalogChannelID(i + 1)
		if !ok {
			r.logger.Warn().Int("values", len(values)-1).Msg("point has more values than channels")
			return
		}
		v, err := parseNumber(raw)
		if err != nil {
			r.logger.Warn().Err(err).Int("channel", i+1).Str("value", raw).Msg("point value")
			continue
		}
		if err := r.buf.ReplaceOrAppendVector(ch, []scope.Sample{{Time: t, Value: v}}, r.ignorePause); err != nil {
			r.logger.Error().Err(err).Msg("store point")
			continue
		}
		metrics.RecordSamples(scope.ChannelName(ch), 1)
	}
}

func (r *Router) channel(data protocol.ChannelData) {
	if src, ok := r.logic[data.Channel]; ok {
		for _, s := range data.Samples {
			if err := r.buf.AppendLogic(src.Group, s.Time, uint32(int64(s.Value)), src.Bits, r.ignorePause); err != nil {
				r.logger.Error().Err(err).Int("channel", data.Channel).Msg("store logic")
				return
			}
		}
		metrics.RecordSamples(scope.ChannelName(scope.LogicChannelID(src.Group, 0)), len(data.Samples))
		return
	}

	ch, ok := scope.AnalogChannelID(data.Channel)
	if !ok {
		r.logger.Warn().Int("channel", data.Channel).Msg("channel outside analog range")
		return
	}
	samples := make([]scope.Sample, len(data.Samples))
	for i, s := range data.Samples {
		samples[i] = scope.Sample{Time: s.Time, Value: s.Value}
	}
	if err := r.buf.ReplaceOrAppendVector(ch, samples, r.ignorePause); err != nil {
		r.logger.Error().Err(err).Msg("store channel")
		return
	}
	metrics.RecordSamples(scope.ChannelName(ch), len(samples))
}

func parseNumber(raw string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}
