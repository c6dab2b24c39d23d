package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const DefaultConfigPath = "serialscope.toml"

type Config struct {
	Link       LinkConfig     `toml:"link"`
	Parser     ParserConfig   `toml:"parser"`
	Scope      ScopeConfig    `toml:"scope"`
	Capture    CaptureConfig  `toml:"capture"`
	Foxglove   FoxgloveConfig `toml:"foxglove"`
	Control    ControlConfig  `toml:"control"`
	Log        LogConfig      `toml:"log"`
	configPath string         `toml:"-"`
}

type LinkConfig struct {
	Addr         string `toml:"addr"`
	Reconnect    string `toml:"reconnect"`
	ReconnectMax string `toml:"reconnect_max"`
	ReadTimeout  string `toml:"read_timeout,omitempty"`
	ReaderBuf    int    `toml:"reader_buf"`
	COBS         bool   `toml:"cobs"`
}

type ParserConfig struct {
	MaxPayload  int    `toml:"max_payload"`
	MaxChannel  int    `toml:"max_channel"`
	OutputLevel string `toml:"output_level"`
}

type ScopeConfig struct {
	RefreshHz   float64       `toml:"refresh_hz"`
	Length      float64       `toml:"length"`
	Rolling     bool          `toml:"rolling"`
	ShiftStep   float64       `toml:"shift_step"`
	MaxSamples  int           `toml:"max_samples"`
	IgnorePause bool          `toml:"ignore_pause"`
	HubBuf      int           `toml:"hub_buf"`
	Logic       []LogicSource `toml:"logic"`
}

// LogicSource routes a device channel into a logic group.
type LogicSource struct {
	Channel int `toml:"channel"`
	Group   int `toml:"group"`
	Bits    int `toml:"bits"`
}

type CaptureConfig struct {
	Path   string `toml:"path,omitempty"`
	Format string `toml:"format"`
	Zstd   bool   `toml:"zstd"`
	Frames bool   `toml:"frames"`
}

type FoxgloveConfig struct {
	Enabled bool   `toml:"enabled"`
	WSAddr  string `toml:"ws_addr"`
	Name    string `toml:"name"`
	LogName string `toml:"log_name"`
}

type ControlConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() Config {
	return Config{
		Link: LinkConfig{
			Addr:         "127.0.0.1:19021",
			Reconnect:    "1s",
			ReconnectMax: "30s",
			ReaderBuf:    64 * 1024,
		},
		Parser: ParserConfig{
			MaxPayload:  1 << 20,
			MaxChannel:  16,
			OutputLevel: "warning",
		},
		Scope: ScopeConfig{
			RefreshHz:  20,
			Length:     10,
			Rolling:    true,
			MaxSamples: 100000,
			HubBuf:     256,
		},
		Capture: CaptureConfig{
			Format: "jsonl",
		},
		Foxglove: FoxgloveConfig{
			Enabled: true,
			WSAddr:  "127.0.0.1:8765",
			Name:    "serialscope",
			LogName: "device",
		},
		Control: ControlConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func Load(path string) (Config, error) {
	cfg, exists, err := LoadOrDefault(path)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, os.ErrNotExist
	}
	return cfg, nil
}

func LoadOrDefault(path string) (Config, bool, error) {
	cfg := Default()
	cfg.configPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.normalize(path)
			return cfg, false, nil
		}
		return Config{}, false, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, true, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize(path)

	if err := cfg.Validate(); err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}

func (cfg *Config) Save(path string) error {
	cfg.normalize(path)
	if err := cfg.Validate(); err != nil {
		return err
	}

	sort.Slice(cfg.Scope.Logic, func(i, j int) bool {
		return cfg.Scope.Logic[i].Group < cfg.Scope.Logic[j].Group
	})

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (cfg *Config) ConfigPath() string {
	return cfg.configPath
}

// CapturePath resolves capture.path against the config file's directory.
// Empty means capture is off.
func (cfg *Config) CapturePath() string {
	path := cfg.Capture.Path
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Clean(filepath.Join(filepath.Dir(cfg.configPath), path))
}

func (cfg *Config) Validate() error {
	for name, raw := range map[string]string{
		"link.reconnect":     cfg.Link.Reconnect,
		"link.reconnect_max": cfg.Link.ReconnectMax,
		"link.read_timeout":  cfg.Link.ReadTimeout,
	} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d < 0 {
			return fmt.Errorf("%s invalid duration: %q", name, raw)
		}
	}
	if cfg.Parser.MaxChannel < 1 || cfg.Parser.MaxChannel > 99 {
		return fmt.Errorf("parser.max_channel out of range: %d", cfg.Parser.MaxChannel)
	}
	switch cfg.Parser.OutputLevel {
	case "device", "error", "warning", "info":
	default:
		return fmt.Errorf("parser.output_level unknown: %q", cfg.Parser.OutputLevel)
	}
	if cfg.Scope.Length <= 0 {
		return fmt.Errorf("scope.length must be positive: %g", cfg.Scope.Length)
	}
	if cfg.Scope.ShiftStep < 0 || cfg.Scope.ShiftStep > 100 {
		return fmt.Errorf("scope.shift_step out of range: %g", cfg.Scope.ShiftStep)
	}
	switch cfg.Capture.Format {
	case "jsonl", "msgpack":
	default:
		return fmt.Errorf("capture.format unknown: %q", cfg.Capture.Format)
	}

	channels := make(map[int]struct{}, len(cfg.Scope.Logic))
	groups := make(map[int]struct{}, len(cfg.Scope.Logic))
	for _, src := range cfg.Scope.Logic {
		if src.Channel < 1 || src.Channel > cfg.Parser.MaxChannel {
			return fmt.Errorf("scope.logic channel out of range: %d", src.Channel)
		}
		if src.Group < 0 || src.Group > 2 {
			return fmt.Errorf("scope.logic group out of range: %d", src.Group)
		}
		if src.Bits < 0 || src.Bits > 32 {
			return fmt.Errorf("scope.logic group %d has invalid bits: %d", src.Group, src.Bits)
		}
		if _, ok := channels[src.Channel]; ok {
			return fmt.Errorf("duplicate scope.logic channel: %d", src.Channel)
		}
		if _, ok := groups[src.Group]; ok {
			return fmt.Errorf("duplicate scope.logic group: %d", src.Group)
		}
		channels[src.Channel] = struct{}{}
		groups[src.Group] = struct{}{}
	}
	return nil
}

// Duration parses a duration field that normalize has already filled.
func Duration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

func (cfg *Config) normalize(path string) {
	def := Default()

	if cfg.Link.Addr == "" {
		cfg.Link.Addr = def.Link.Addr
	}
	if cfg.Link.Reconnect == "" {
		cfg.Link.Reconnect = def.Link.Reconnect
	}
	if cfg.Link.ReconnectMax == "" {
		cfg.Link.ReconnectMax = def.Link.ReconnectMax
	}
	if cfg.Link.ReaderBuf <= 0 {
		cfg.Link.ReaderBuf = def.Link.ReaderBuf
	}

	if cfg.Parser.MaxPayload <= 0 {
		cfg.Parser.MaxPayload = def.Parser.MaxPayload
	}
	if cfg.Parser.MaxChannel == 0 {
		cfg.Parser.MaxChannel = def.Parser.MaxChannel
	}
	cfg.Parser.OutputLevel = strings.ToLower(strings.TrimSpace(cfg.Parser.OutputLevel))
	if cfg.Parser.OutputLevel == "" {
		cfg.Parser.OutputLevel = def.Parser.OutputLevel
	}

	if cfg.Scope.RefreshHz <= 0 {
		cfg.Scope.RefreshHz = def.Scope.RefreshHz
	}
	if cfg.Scope.Length == 0 {
		cfg.Scope.Length = def.Scope.Length
	}
	if cfg.Scope.MaxSamples <= 0 {
		cfg.Scope.MaxSamples = def.Scope.MaxSamples
	}
	if cfg.Scope.HubBuf <= 0 {
		cfg.Scope.HubBuf = def.Scope.HubBuf
	}

	cfg.Capture.Format = strings.ToLower(strings.TrimSpace(cfg.Capture.Format))
	if cfg.Capture.Format == "" {
		cfg.Capture.Format = def.Capture.Format
	}

	if cfg.Foxglove.WSAddr == "" {
		cfg.Foxglove.WSAddr = def.Foxglove.WSAddr
	}
	if cfg.Foxglove.Name == "" {
		cfg.Foxglove.Name = def.Foxglove.Name
	}
	if cfg.Foxglove.LogName == "" {
		cfg.Foxglove.LogName = def.Foxglove.LogName
	}
	if cfg.Control.Addr == "" {
		cfg.Control.Addr = def.Control.Addr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}

	if path == "" {
		path = cfg.configPath
	}
	if path == "" {
		path = DefaultConfigPath
	}
	cfg.configPath = path
}
