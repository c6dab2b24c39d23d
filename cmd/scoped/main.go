package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"serialscope/pkg/bridge/foxglove"
	"serialscope/pkg/config"
	"serialscope/pkg/control"
	"serialscope/pkg/engine"
	"serialscope/pkg/logger"
	"serialscope/pkg/logging"
	"serialscope/pkg/metrics"
	"serialscope/pkg/transport"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		return runServer([]string{}, stdout, stderr)
	}

	switch args[0] {
	case "server":
		return runServer(args[1:], stdout, stderr)
	case "replay":
		return runReplay(args[1:], stdout, stderr)
	case "inspect":
		return runInspect(args[1:], stdout, stderr)
	case "mock":
		return runMock(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

func runServer(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfgPath := fs.String("config", config.DefaultConfigPath, "config file path")
	addr := fs.String("addr", "", "device TCP address (overrides link.addr)")
	capturePath := fs.String("capture", "", "capture output path (overrides capture.path)")
	cobs := fs.Bool("cobs", false, "link carries COBS frames")
	noFoxglove := fs.Bool("no-foxglove", false, "disable the Foxglove bridge")
	noControl := fs.Bool("no-control", false, "disable the control API")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := config.LoadOrDefault(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 2
	}
	if *addr != "" {
		cfg.Link.Addr = *addr
	}
	if *capturePath != "" {
		cfg.Capture.Path = *capturePath
	}
	if *cobs {
		cfg.Link.COBS = true
	}
	if *noFoxglove {
		cfg.Foxglove.Enabled = false
	}
	if *noControl {
		cfg.Control.Enabled = false
	}

	log := logging.FromSettings(cfg.Log.Level, cfg.Log.Format, stderr)
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server stopped")
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	hub := engine.NewHub(engine.WithBroadcastBuffer(cfg.Scope.HubBuf))
	go hub.Run(ctx)

	p := newPipeline(cfg, hub, log)

	if path := cfg.CapturePath(); path != "" {
		w, closer, err := openCapture(path, cfg.Capture)
		if err != nil {
			return err
		}
		defer closer.Close()
		defer w.Close()
		sub := hub.Subscribe()
		g.Go(func() error {
			w.Consume(ctx, sub, func(err error) {
				log.Warn().Err(err).Msg("capture write")
			})
			return nil
		})
		log.Info().Str("path", path).Str("format", cfg.Capture.Format).Msg("capturing")
	}

	if cfg.Foxglove.Enabled {
		fox := foxglove.DefaultConfig()
		fox.WSAddr = cfg.Foxglove.WSAddr
		fox.Name = cfg.Foxglove.Name
		fox.LogName = cfg.Foxglove.LogName
		srv := foxglove.NewServer(fox, hub, foxglove.WithLogger(log.With().Str("component", "foxglove").Logger()))
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	if cfg.Control.Enabled {
		ctl := control.NewServer(cfg.Control.Addr, p.buf, p.win,
			control.WithSession(p.session),
			control.WithLogger(log.With().Str("component", "control").Logger()),
		)
		g.Go(func() error {
			return ctl.Run(ctx)
		})
	}

	chunks := make(chan transport.Chunk, cfg.Scope.HubBuf)
	linkOpts := []transport.Option{
		transport.WithReconnectInterval(config.Duration(cfg.Link.Reconnect)),
		transport.WithReconnectMax(config.Duration(cfg.Link.ReconnectMax)),
		transport.WithReadTimeout(config.Duration(cfg.Link.ReadTimeout)),
		transport.WithBufferSize(cfg.Link.ReaderBuf),
		transport.WithErrorHandler(func(err error) {
			metrics.RecordLinkError("tcp")
			log.Debug().Err(err).Str("addr", cfg.Link.Addr).Msg("link error")
		}),
	}
	if cfg.Link.COBS {
		linkOpts = append(linkOpts, transport.WithCOBS(cfg.Parser.MaxPayload))
	}
	transport.StartListener(ctx, cfg.Link.Addr, chunks, linkOpts...)
	log.Info().Str("addr", cfg.Link.Addr).Bool("cobs", cfg.Link.COBS).Msg("dialing device")

	g.Go(func() error {
		return p.session.Run(ctx, chunks)
	})
	g.Go(func() error {
		return p.refresher.Run(ctx)
	})

	return g.Wait()
}

// openCapture creates the capture file. The writer must be closed before the
// file.
func openCapture(path string, cfg config.CaptureConfig) (*logger.Writer, io.Closer, error) {
	format, err := logger.ParseFormat(cfg.Format)
	if err != nil {
		return nil, nil, err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create capture directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create capture: %w", err)
	}

	opts := []logger.Option{logger.WithFrames(cfg.Frames)}
	if cfg.Zstd {
		opts = append(opts, logger.WithZstd())
	}
	w, err := logger.NewWriter(file, format, opts...)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return w, file, nil
}

func compressedPath(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  scoped server  [--config serialscope.toml] [--addr host:port] [--capture file] [--cobs] [--no-foxglove] [--no-control]")
	fmt.Fprintln(w, "  scoped replay  --file stream.bin [--config serialscope.toml] [--capture file] [--cobs] [--chunk 4096]")
	fmt.Fprintln(w, "  scoped inspect --file capture.jsonl [--format jsonl|msgpack] [--zstd] [--dump]")
	fmt.Fprintln(w, "  scoped mock    [--listen 127.0.0.1:19021] [--hz 50]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  server   dial the device and run the scope pipeline")
	fmt.Fprintln(w, "  replay   feed a recorded byte stream through the pipeline and summarize it")
	fmt.Fprintln(w, "  inspect  summarize or dump a capture file")
	fmt.Fprintln(w, "  mock     serve a synthetic device stream over TCP")
}
