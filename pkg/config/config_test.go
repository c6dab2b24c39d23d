package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"serialscope/pkg/config"
)

func TestLoadOrDefaultMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serialscope.toml")
	cfg, exists, err := config.LoadOrDefault(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if exists {
		t.Fatalf("expected missing config")
	}
	if cfg.Link.Addr == "" || cfg.Foxglove.WSAddr == "" || cfg.Control.Addr == "" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.ConfigPath() != path {
		t.Fatalf("unexpected config path: %s", cfg.ConfigPath())
	}
	if _, err := config.Load(path); !os.IsNotExist(err) {
		t.Fatalf("expected not exist error, got %v", err)
	}
}

func TestLoadOrDefaultFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "serialscope.toml")
	mustWriteFile(t, cfgPath, `
[link]
addr = "10.0.0.1:4000"
cobs = true

[scope]
rolling = false
shift_step = 25

[[scope.logic]]
channel = 4
group = 1
bits = 8
`)

	cfg, exists, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !exists {
		t.Fatalf("expected config to exist")
	}
	if cfg.Link.Addr != "10.0.0.1:4000" || !cfg.Link.COBS {
		t.Fatalf("unexpected link: %+v", cfg.Link)
	}
	if cfg.Link.Reconnect != "1s" || cfg.Link.ReaderBuf != 64*1024 {
		t.Fatalf("expected default link timings, got %+v", cfg.Link)
	}
	if cfg.Scope.Rolling || cfg.Scope.ShiftStep != 25 {
		t.Fatalf("unexpected scope: %+v", cfg.Scope)
	}
	if cfg.Scope.Length != 10 || cfg.Scope.RefreshHz != 20 {
		t.Fatalf("expected default scope timing, got %+v", cfg.Scope)
	}
	if len(cfg.Scope.Logic) != 1 || cfg.Scope.Logic[0].Bits != 8 {
		t.Fatalf("unexpected logic sources: %+v", cfg.Scope.Logic)
	}
	if cfg.Parser.OutputLevel != "warning" || cfg.Capture.Format != "jsonl" {
		t.Fatalf("unexpected parser/capture defaults: %+v %+v", cfg.Parser, cfg.Capture)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"duration":     "[link]\nreconnect = \"soon\"\n",
		"output level": "[parser]\noutput_level = \"loud\"\n",
		"shift step":   "[scope]\nshift_step = 150.0\n",
		"length":       "[scope]\nlength = -1.0\n",
		"format":       "[capture]\nformat = \"csv\"\n",
		"logic group":  "[[scope.logic]]\nchannel = 1\ngroup = 3\n",
		"logic dup":    "[[scope.logic]]\nchannel = 1\ngroup = 0\n[[scope.logic]]\nchannel = 1\ngroup = 1\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "serialscope.toml")
			mustWriteFile(t, path, content)
			if _, _, err := config.LoadOrDefault(path); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "serialscope.toml")

	cfg := config.Default()
	cfg.Capture.Path = "captures/run.jsonl"
	cfg.Scope.Logic = []config.LogicSource{{Channel: 3, Group: 2, Bits: 4}, {Channel: 2, Group: 0, Bits: 1}}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Scope.Logic[0].Group != 0 || loaded.Scope.Logic[1].Group != 2 {
		t.Fatalf("expected logic sorted by group: %+v", loaded.Scope.Logic)
	}
	want := filepath.Join(dir, "nested", "captures", "run.jsonl")
	if got := loaded.CapturePath(); got != want {
		t.Fatalf("unexpected capture path: got %q want %q", got, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved: %v", err)
	}
	if !strings.Contains(string(data), "[link]") {
		t.Fatalf("expected link table in saved config:\n%s", data)
	}
}

func TestDuration(t *testing.T) {
	if got := config.Duration("250ms"); got != 250*time.Millisecond {
		t.Fatalf("unexpected duration: %v", got)
	}
	if got := config.Duration("bogus"); got != 0 {
		t.Fatalf("expected zero for bad duration, got %v", got)
	}
}

func mustWriteFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}
