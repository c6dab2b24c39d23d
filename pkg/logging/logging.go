package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "SERIALSCOPE_LOG_LEVEL"
	EnvLogNoColor = "SERIALSCOPE_LOG_NOCOLOR"
	EnvLogFormat  = "SERIALSCOPE_LOG_FORMAT"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config selects level and output shape of the process logger.
type Config struct {
	Level     zerolog.Level
	JSON      bool
	NoColor   bool
	Timestamp bool
	Out       io.Writer
}

func DefaultConfig(profile Profile) Config {
	cfg := Config{Out: os.Stderr}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.NoColor = true
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

// New builds a logger without touching global state.
func New(cfg Config) zerolog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
	}
	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Str("app", "serialscope").Logger()
}

// FromSettings builds a logger from config file values. Environment
// variables still win.
func FromSettings(level, format string, out io.Writer) zerolog.Logger {
	cfg := DefaultConfig(ProfileRuntime)
	cfg.Out = out
	if lvl, ok := ParseLevel(level); ok {
		cfg.Level = lvl
	}
	cfg.JSON = strings.EqualFold(strings.TrimSpace(format), "json")
	ApplyEnv(&cfg)
	return New(cfg)
}

// ApplyEnv overrides cfg from SERIALSCOPE_LOG_* variables.
func ApplyEnv(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))) {
	case "json":
		cfg.JSON = true
	case "console", "text":
		cfg.JSON = false
	}
}

func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
