package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"help"}, &stdout, &stderr); code != 0 {
		t.Fatalf("unexpected exit code: %d", code)
	}
	if !strings.Contains(stdout.String(), "scoped server") {
		t.Fatalf("usage missing server command: %q", stdout.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("unexpected exit code: %d", code)
	}
	if !strings.Contains(stderr.String(), "unknown command: bogus") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestReplayRequiresFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"replay"}, &stdout, &stderr); code != 2 {
		t.Fatalf("unexpected exit code: %d", code)
	}
}

func TestReplayThenInspect(t *testing.T) {
	dir := t.TempDir()
	streamPath := writeMockStream(t, dir, 50)
	capturePath := filepath.Join(dir, "capture.jsonl")

	var stdout, stderr bytes.Buffer
	code := run([]string{
		"replay",
		"--config", filepath.Join(dir, "missing.toml"),
		"--file", streamPath,
		"--capture", capturePath,
		"--chunk", "7",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("replay failed with %d: %s", code, stderr.String())
	}

	summary := stdout.String()
	for _, want := range []string{"fatal=0", "Ch 1: 51 samples", "Ch 2: 51 samples", "Ch 3: 32 samples"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}

	stdout.Reset()
	stderr.Reset()
	if code := run([]string{"inspect", "--file", capturePath}, &stdout, &stderr); code != 0 {
		t.Fatalf("inspect failed with %d: %s", code, stderr.String())
	}
	counts := stdout.String()
	for _, want := range []string{"point 51", "channel 1", "device_message 1", "settings 1"} {
		if !strings.Contains(counts, want) {
			t.Fatalf("inspect output missing %q:\n%s", want, counts)
		}
	}
}

func TestReplayCompressedMsgpackCapture(t *testing.T) {
	dir := t.TempDir()
	streamPath := writeMockStream(t, dir, 10)
	cfgPath := filepath.Join(dir, "serialscope.toml")
	cfg := "[capture]\npath = \"out/capture.msgpack.zst\"\nformat = \"msgpack\"\nzstd = true\nframes = true\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"replay", "--config", cfgPath, "--file", streamPath}, &stdout, &stderr); code != 0 {
		t.Fatalf("replay failed with %d: %s", code, stderr.String())
	}

	capturePath := filepath.Join(dir, "out", "capture.msgpack.zst")
	stdout.Reset()
	if code := run([]string{"inspect", "--file", capturePath, "--format", "msgpack"}, &stdout, &stderr); code != 0 {
		t.Fatalf("inspect failed with %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "point 11") || !strings.Contains(stdout.String(), "frame 1") {
		t.Fatalf("unexpected inspect output:\n%s", stdout.String())
	}
}

func TestReplayWindowFollowsStream(t *testing.T) {
	dir := t.TempDir()
	// 600 ticks of 20ms run past the default 10s window.
	streamPath := writeMockStream(t, dir, 600)

	var stdout, stderr bytes.Buffer
	code := run([]string{
		"replay",
		"--config", filepath.Join(dir, "missing.toml"),
		"--file", streamPath,
		"--chunk", "64",
		"--pace", "1us",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("replay failed with %d: %s", code, stderr.String())
	}
	summary := stdout.String()
	for _, want := range []string{"window=rolling view=[", ", 12]", "invalid=0"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}
}

func writeMockStream(t *testing.T, dir string, points int) string {
	t.Helper()
	var stream bytes.Buffer
	stream.Write(mockPreamble(50))
	for seq := 0; seq <= points; seq++ {
		stream.Write(mockTick(seq, float64(seq)*0.02))
	}
	path := filepath.Join(dir, "stream.bin")
	if err := os.WriteFile(path, stream.Bytes(), 0o644); err != nil {
		t.Fatalf("write stream: %v", err)
	}
	return path
}
