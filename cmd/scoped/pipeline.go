package main

import (
	"github.com/rs/zerolog"

	"serialscope/pkg/config"
	"serialscope/pkg/engine"
	"serialscope/pkg/ingest"
	"serialscope/pkg/logger"
	"serialscope/pkg/metrics"
	"serialscope/pkg/protocol"
	"serialscope/pkg/scope"
)

// sink receives parser events and refresh frames.
type sink interface {
	PublishEvent(ev protocol.Event)
	PublishFrame(frame scope.Frame)
}

type pipeline struct {
	buf       *scope.Buffer
	win       *scope.Window
	session   *ingest.Session
	refresher *scope.Refresher
}

func newPipeline(cfg config.Config, out sink, log zerolog.Logger) *pipeline {
	buf := scope.NewBuffer(scope.WithMaxSamples(cfg.Scope.MaxSamples))
	win := scope.NewWindow(
		scope.WithRolling(cfg.Scope.Rolling),
		scope.WithShiftStep(cfg.Scope.ShiftStep),
		scope.WithLength(cfg.Scope.Length),
	)

	routerOpts := []ingest.Option{
		ingest.WithLogger(log.With().Str("component", "ingest").Logger()),
		ingest.WithPublisher(out),
		ingest.WithIgnorePause(cfg.Scope.IgnorePause),
	}
	for _, src := range cfg.Scope.Logic {
		routerOpts = append(routerOpts, ingest.WithLogicSource(ingest.LogicSource{
			Channel: src.Channel,
			Group:   src.Group,
			Bits:    src.Bits,
		}))
	}
	router := ingest.NewRouter(buf, routerOpts...)

	level, _ := protocol.ParseOutputLevel(cfg.Parser.OutputLevel)
	parser := protocol.NewParser(router.Listener(),
		protocol.WithMaxPayload(cfg.Parser.MaxPayload),
		protocol.WithMaxChannel(cfg.Parser.MaxChannel),
		protocol.WithOutputLevel(level),
	)

	refresher := scope.NewRefresher(buf, win, func(frame scope.Frame) {
		metrics.RecordFrame()
		out.PublishFrame(frame)
	}, scope.WithRate(cfg.Scope.RefreshHz))

	return &pipeline{
		buf:       buf,
		win:       win,
		session:   ingest.NewSession(parser, log),
		refresher: refresher,
	}
}

var _ sink = (*engine.Hub)(nil)

// captureSink writes straight to a capture writer. Replay uses it so every
// record is on disk before the command returns.
type captureSink struct {
	w      *logger.Writer
	events int
	frames int
	err    error
}

func (s *captureSink) PublishEvent(ev protocol.Event) {
	if ev.Kind == protocol.EventReady {
		return
	}
	s.events++
	s.write(engine.EventRecord(ev))
}

func (s *captureSink) PublishFrame(frame scope.Frame) {
	s.frames++
	s.write(engine.FrameRecord(frame))
}

func (s *captureSink) write(rec engine.Record) {
	if s.w == nil || s.err != nil {
		return
	}
	s.err = s.w.Write(rec)
}
