package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"serialscope/pkg/config"
	"serialscope/pkg/logging"
	"serialscope/pkg/scope"
	"serialscope/pkg/transport"
)

func runReplay(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfgPath := fs.String("config", config.DefaultConfigPath, "config file path")
	file := fs.String("file", "", "recorded byte stream (- for stdin)")
	capturePath := fs.String("capture", "", "capture output path")
	cobs := fs.Bool("cobs", false, "stream carries COBS frames")
	chunk := fs.Int("chunk", 4096, "bytes per read")
	pace := fs.Duration("pace", 0, "wait between reads, e.g. 10ms to replay at link speed")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(stderr, "replay requires --file")
		return 2
	}

	cfg, _, err := config.LoadOrDefault(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 2
	}
	if *capturePath != "" {
		cfg.Capture.Path = *capturePath
	}
	if *cobs {
		cfg.Link.COBS = true
	}
	log := logging.FromSettings(cfg.Log.Level, cfg.Log.Format, stderr)

	var src io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintln(stderr, "open stream:", err)
			return 1
		}
		defer f.Close()
		src = f
	}

	out := &captureSink{}
	if path := cfg.CapturePath(); path != "" {
		w, closer, err := openCapture(path, cfg.Capture)
		if err != nil {
			fmt.Fprintln(stderr, "capture:", err)
			return 1
		}
		defer closer.Close()
		defer w.Close()
		out.w = w
	}

	p := newPipeline(cfg, out, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	readOpts := []transport.Option{transport.WithBufferSize(*chunk), transport.WithPace(*pace)}
	if cfg.Link.COBS {
		readOpts = append(readOpts, transport.WithCOBS(cfg.Parser.MaxPayload))
	}

	chunks := make(chan transport.Chunk, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(chunks)
		return transport.ReadStream(gctx, src, chunks, readOpts...)
	})
	g.Go(func() error {
		return feedAndTick(gctx, p, chunks)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("replay")
		return 1
	}

	p.refresher.Tick()
	if out.err != nil {
		fmt.Fprintln(stderr, "capture:", out.err)
		return 1
	}
	writeSummary(stdout, p, out)
	return 0
}

// feedAndTick refreshes after every chunk so the window follows the stream
// the way it would at the refresh rate.
func feedAndTick(ctx context.Context, p *pipeline, in <-chan transport.Chunk) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-in:
			if !ok {
				return nil
			}
			p.session.Feed(chunk)
			p.refresher.Tick()
		}
	}
}

func writeSummary(w io.Writer, p *pipeline, out *captureSink) {
	stats := p.session.Stats()
	fmt.Fprintf(w, "bytes=%d records=%d markers=%d not_properly_ended=%d invalid=%d fatal=%d\n",
		stats.Bytes, stats.Records, stats.Markers, stats.NotProperlyEnded, stats.Invalid, stats.Fatal)
	fmt.Fprintf(w, "mode=%s events=%d frames=%d\n", p.session.Mode(), out.events, out.frames)

	for ch := 0; ch < scope.ChannelCount; ch++ {
		series := p.buf.Series(ch)
		if len(series) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s: %d samples t=[%g, %g]\n", scope.ChannelName(ch), len(series), series[0].Time, series[len(series)-1].Time)
	}

	st := p.win.State()
	fmt.Fprintf(w, "window=%s view=[%g, %g]\n", st.Mode, st.View.Lower, st.View.Upper)
}
