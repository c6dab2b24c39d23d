package foxglove

const EventSchema = `{
  "type": "object",
  "properties": {
    "ts": { "type": "string" },
    "kind": { "type": "string" },
    "text": { "type": "string" },
    "values": { "type": "array", "items": { "type": "string" } },
    "channel": { "type": "integer" },
    "period": { "type": "number" },
    "samples": { "type": "array", "items": { "type": "object" } }
  },
  "required": ["ts", "kind"]
}`

const FrameSchema = `{
  "type": "object",
  "properties": {
    "seq": { "type": "integer" },
    "mode": { "type": "string" },
    "view": { "type": "object" },
    "envelope": { "type": "object" },
    "paused": { "type": "boolean" },
    "latest": { "type": "object", "additionalProperties": { "type": "number" } },
    "channels": { "type": "array", "items": { "type": "object" } }
  },
  "required": ["seq", "mode"]
}`

const LogSchema = `{
  "type": "object",
  "properties": {
    "timestamp": { "type": "object" },
    "level": { "type": "integer" },
    "message": { "type": "string" },
    "name": { "type": "string" },
    "file": { "type": "string" },
    "line": { "type": "integer" }
  }
}`

// Topic describes one advertised channel.
type Topic struct {
	Topic          string
	ChannelID      uint64
	SchemaName     string
	SchemaEncoding string
	Schema         string
	Encoding       string
}

type Config struct {
	WSAddr  string
	Name    string
	Event   Topic
	Frame   Topic
	Log     Topic
	LogName string
	SendBuf int
}

func DefaultConfig() Config {
	return Config{
		WSAddr: "127.0.0.1:8765",
		Name:   "serialscope",
		Event: Topic{
			Topic:          "serialscope/event",
			ChannelID:      1,
			SchemaName:     "serialscope.Event",
			SchemaEncoding: "jsonschema",
			Schema:         EventSchema,
			Encoding:       "json",
		},
		Frame: Topic{
			Topic:          "serialscope/frame",
			ChannelID:      2,
			SchemaName:     "serialscope.Frame",
			SchemaEncoding: "jsonschema",
			Schema:         FrameSchema,
			Encoding:       "json",
		},
		Log: Topic{
			Topic:          "serialscope/log",
			ChannelID:      3,
			SchemaName:     "foxglove.Log",
			SchemaEncoding: "jsonschema",
			Schema:         LogSchema,
			Encoding:       "json",
		},
		LogName: "device",
		SendBuf: 256,
	}
}

func (t Topic) withDefaults(def Topic) Topic {
	if t.Topic == "" {
		t.Topic = def.Topic
	}
	if t.ChannelID == 0 {
		t.ChannelID = def.ChannelID
	}
	if t.SchemaName == "" {
		t.SchemaName = def.SchemaName
	}
	if t.SchemaEncoding == "" {
		t.SchemaEncoding = def.SchemaEncoding
	}
	if t.Schema == "" {
		t.Schema = def.Schema
	}
	if t.Encoding == "" {
		t.Encoding = def.Encoding
	}
	return t
}

func (t Topic) channel() Channel {
	return Channel{
		ID:             t.ChannelID,
		Topic:          t.Topic,
		Encoding:       t.Encoding,
		SchemaName:     t.SchemaName,
		SchemaEncoding: t.SchemaEncoding,
		Schema:         t.Schema,
	}
}

func (c Config) normalize() Config {
	defaults := DefaultConfig()
	if c.WSAddr == "" {
		c.WSAddr = defaults.WSAddr
	}
	if c.Name == "" {
		c.Name = defaults.Name
	}
	if c.LogName == "" {
		c.LogName = defaults.LogName
	}
	if c.SendBuf <= 0 {
		c.SendBuf = defaults.SendBuf
	}
	c.Event = c.Event.withDefaults(defaults.Event)
	c.Frame = c.Frame.withDefaults(defaults.Frame)
	c.Log = c.Log.withDefaults(defaults.Log)

	if c.Frame.ChannelID == c.Event.ChannelID {
		c.Frame.ChannelID = c.Event.ChannelID + 1
	}
	if c.Log.ChannelID == c.Event.ChannelID || c.Log.ChannelID == c.Frame.ChannelID {
		c.Log.ChannelID = max(c.Event.ChannelID, c.Frame.ChannelID) + 1
	}
	return c
}
