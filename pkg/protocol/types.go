package protocol

import "time"

// Mode is the grammar the parser applies to incoming bytes.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeTerminal
	ModeInfo
	ModeWarning
	ModeSettings
	ModePoint
	ModeChannel
	ModeEcho
)

func (m Mode) String() string {
	switch m {
	case ModeTerminal:
		return "terminal"
	case ModeInfo:
		return "info"
	case ModeWarning:
		return "warning"
	case ModeSettings:
		return "settings"
	case ModePoint:
		return "point"
	case ModeChannel:
		return "channel"
	case ModeEcho:
		return "echo"
	default:
		return "unknown"
	}
}

// modeFromMarker maps the letter following "$$" to a mode.
func modeFromMarker(b byte) (Mode, bool) {
	switch b {
	case 'T':
		return ModeTerminal, true
	case 'I':
		return ModeInfo, true
	case 'W':
		return ModeWarning, true
	case 'S':
		return ModeSettings, true
	case 'P':
		return ModePoint, true
	case 'C':
		return ModeChannel, true
	case 'E':
		return ModeEcho, true
	case 'U':
		return ModeUnknown, true
	default:
		return ModeUnknown, false
	}
}

// MessageLevel is the severity of a message. Lower is more severe.
type MessageLevel int

const (
	LevelDeviceInfo    MessageLevel = -1
	LevelDeviceWarning MessageLevel = 0
	LevelError         MessageLevel = 1
	LevelWarning       MessageLevel = 2
	LevelInfo          MessageLevel = 3
)

func (l MessageLevel) String() string {
	switch l {
	case LevelDeviceInfo:
		return "device-info"
	case LevelDeviceWarning:
		return "device-warning"
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	default:
		return "info"
	}
}

// OutputLevel is the least severe message level still emitted.
type OutputLevel int

const (
	OutputDevice  OutputLevel = 0
	OutputError   OutputLevel = 1
	OutputWarning OutputLevel = 2
	OutputInfo    OutputLevel = 3
)

// ParseOutputLevel accepts "device", "error", "warning" or "info".
func ParseOutputLevel(raw string) (OutputLevel, bool) {
	switch raw {
	case "device":
		return OutputDevice, true
	case "error":
		return OutputError, true
	case "warning":
		return OutputWarning, true
	case "info":
		return OutputInfo, true
	default:
		return OutputInfo, false
	}
}

// Allows reports whether a message of the given level passes the filter.
func (o OutputLevel) Allows(level MessageLevel) bool {
	return int(level) <= int(o)
}

// Message is a status or diagnostic line.
type Message struct {
	Header string       `json:"header" msgpack:"header"`
	Body   string       `json:"body,omitempty" msgpack:"body,omitempty"`
	Level  MessageLevel `json:"level" msgpack:"level"`
}

// Sample is one decoded (time, value) pair.
type Sample struct {
	Time  float64 `json:"t" msgpack:"t"`
	Value float64 `json:"v" msgpack:"v"`
}

// ChannelData is one complete channel record.
type ChannelData struct {
	Channel   int       `json:"channel" msgpack:"channel"`
	TimeRaw   string    `json:"time_raw" msgpack:"time_raw"`
	Period    float64   `json:"period" msgpack:"period"`
	ValueType ValueType `json:"-" msgpack:"-"`
	Samples   []Sample  `json:"samples" msgpack:"samples"`
}

// Listener receives parser output. Exactly one record callback fires per
// parsed record; Message may additionally carry diagnostics.
type Listener interface {
	Message(msg Message)
	Terminal(data []byte)
	Settings(data []byte)
	Point(values []string)
	Channel(data ChannelData)
	DeviceMessage(body []byte, warning bool, ended bool)
	Ready()
}

// EventKind tags an Event.
type EventKind uint8

const (
	EventMessage EventKind = iota + 1
	EventTerminal
	EventSettings
	EventPoint
	EventChannel
	EventDeviceMessage
	EventReady
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventTerminal:
		return "terminal"
	case EventSettings:
		return "settings"
	case EventPoint:
		return "point"
	case EventChannel:
		return "channel"
	case EventDeviceMessage:
		return "device_message"
	case EventReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Event is the normalized parser output flowing through the pipeline.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Message   Message
	Data      []byte
	Values    []string
	Channel   ChannelData
	Warning   bool
	Ended     bool
}
