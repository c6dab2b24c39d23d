package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"os/signal"
	"strconv"
	"time"

	"serialscope/pkg/logging"
)

const (
	mockSineFreqHz   = 0.5
	mockCosineFreqHz = 0.2
	mockAmplitude    = 100.0

	// A channel record is sent every mockChannelEvery points.
	mockChannelEvery   = 50
	mockChannelSamples = 32
	mockChannelPeriod  = 0.001
	mockChannelNumber  = 3
)

func runMock(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("mock", flag.ContinueOnError)
	fs.SetOutput(stderr)

	listen := fs.String("listen", "127.0.0.1:19021", "TCP listen address")
	hz := fs.Int("hz", 50, "points per second")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	log := logging.FromSettings("info", "console", stderr)

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(stderr, "listen:", err)
		return 1
	}
	fmt.Fprintln(stdout, "mock device listening on", ln.Addr().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return 0
			}
			log.Warn().Err(err).Msg("accept")
			continue
		}
		log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")
		go func() {
			defer conn.Close()
			err := streamMock(ctx, conn, *hz)
			log.Info().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("client disconnected")
		}()
	}
}

// streamMock writes a synthetic device session to w until ctx is done or a
// write fails.
func streamMock(ctx context.Context, w io.Writer, hz int) error {
	if hz <= 0 {
		hz = 50
	}
	if _, err := w.Write(mockPreamble(hz)); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	start := time.Now()
	var seq int
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t := time.Since(start).Seconds()
			if _, err := w.Write(mockTick(seq, t)); err != nil {
				return err
			}
			seq++
		}
	}
}

func mockPreamble(hz int) []byte {
	var b bytes.Buffer
	b.WriteString("$$Imock device ready\n")
	b.WriteString("$$Srate=" + strconv.Itoa(hz) + "\n")
	b.WriteString("$$P")
	return b.Bytes()
}

// mockTick returns the bytes sent for point seq at time t. Every
// mockChannelEvery points a binary channel record is interleaved and point
// mode is re-entered.
func mockTick(seq int, t float64) []byte {
	var b bytes.Buffer
	b.Write(mockPoint(t))
	if seq > 0 && seq%mockChannelEvery == 0 {
		b.Write(mockChannelRecord(seq))
		b.WriteString("$$P")
	}
	return b.Bytes()
}

func mockPoint(t float64) []byte {
	s := mockAmplitude * math.Sin(2*math.Pi*mockSineFreqHz*t)
	c := mockAmplitude * math.Cos(2*math.Pi*mockCosineFreqHz*t)
	return []byte(strconv.FormatFloat(t, 'f', 4, 64) + "," +
		strconv.FormatFloat(s, 'f', 3, 64) + "," +
		strconv.FormatFloat(c, 'f', 3, 64) + ";")
}

// mockChannelRecord is a little endian int16 sawtooth on mockChannelNumber.
func mockChannelRecord(seq int) []byte {
	payload := make([]byte, 2*mockChannelSamples)
	for i := 0; i < mockChannelSamples; i++ {
		v := int16((seq+i)%mockChannelSamples*1000 - 16000)
		binary.LittleEndian.PutUint16(payload[2*i:], uint16(v))
	}
	header := fmt.Sprintf("$$Ci2%d,%g,%d;", mockChannelNumber, mockChannelPeriod, len(payload))
	return append([]byte(header), payload...)
}
