package foxglove

import (
	"encoding/binary"
	"errors"
	"time"
)

const (
	OpServerInfo  = "serverInfo"
	OpAdvertise   = "advertise"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"

	BinaryOpMessageData = 0x01

	Subprotocol = "foxglove.websocket.v1"
)

// foxglove.Log levels.
const (
	LogLevelDebug uint8 = 1
	LogLevelInfo  uint8 = 2
	LogLevelWarn  uint8 = 3
	LogLevelError uint8 = 4
)

var ErrShortMessageData = errors.New("message data frame too short")

type ServerInfoMsg struct {
	Op                 string            `json:"op"`
	Name               string            `json:"name"`
	Capabilities       []string          `json:"capabilities"`
	SupportedEncodings []string          `json:"supportedEncodings,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	SessionID          string            `json:"sessionId,omitempty"`
}

type Channel struct {
	ID             uint64 `json:"id"`
	Topic          string `json:"topic"`
	Encoding       string `json:"encoding"`
	SchemaName     string `json:"schemaName"`
	SchemaEncoding string `json:"schemaEncoding,omitempty"`
	Schema         string `json:"schema,omitempty"`
}

type AdvertiseMsg struct {
	Op       string    `json:"op"`
	Channels []Channel `json:"channels"`
}

type Subscription struct {
	ID        uint32 `json:"id"`
	ChannelID uint64 `json:"channelId"`
}

type SubscribeMsg struct {
	Op            string         `json:"op"`
	Subscriptions []Subscription `json:"subscriptions"`
}

type UnsubscribeMsg struct {
	Op              string   `json:"op"`
	SubscriptionIDs []uint32 `json:"subscriptionIds"`
}

type FrameTime struct {
	Sec  uint32 `json:"sec"`
	Nsec uint32 `json:"nsec"`
}

func frameTime(ts time.Time) FrameTime {
	return FrameTime{Sec: uint32(ts.Unix()), Nsec: uint32(ts.Nanosecond())}
}

type LogMessage struct {
	Timestamp FrameTime `json:"timestamp"`
	Level     uint8     `json:"level"`
	Message   string    `json:"message"`
	Name      string    `json:"name"`
	File      string    `json:"file"`
	Line      uint32    `json:"line"`
}

func EncodeMessageData(subscriptionID uint32, logTime uint64, payload []byte) []byte {
	out := make([]byte, 1+4+8+len(payload))
	out[0] = BinaryOpMessageData
	binary.LittleEndian.PutUint32(out[1:5], subscriptionID)
	binary.LittleEndian.PutUint64(out[5:13], logTime)
	copy(out[13:], payload)
	return out
}

// DecodeMessageData splits a binary message data frame.
func DecodeMessageData(frame []byte) (subscriptionID uint32, logTime uint64, payload []byte, err error) {
	if len(frame) < 13 || frame[0] != BinaryOpMessageData {
		return 0, 0, nil, ErrShortMessageData
	}
	subscriptionID = binary.LittleEndian.Uint32(frame[1:5])
	logTime = binary.LittleEndian.Uint64(frame[5:13])
	return subscriptionID, logTime, frame[13:], nil
}
