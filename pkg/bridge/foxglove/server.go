package foxglove

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"serialscope/pkg/engine"
	"serialscope/pkg/protocol"
	"serialscope/pkg/scope"
)

// EventPayload is the JSON body published on the event topic.
type EventPayload struct {
	TS      string            `json:"ts"`
	Kind    string            `json:"kind"`
	Header  string            `json:"header,omitempty"`
	Level   string            `json:"level,omitempty"`
	Text    string            `json:"text,omitempty"`
	Values  []string          `json:"values,omitempty"`
	Channel int               `json:"channel,omitempty"`
	Period  float64           `json:"period,omitempty"`
	Samples []protocol.Sample `json:"samples,omitempty"`
}

// FramePayload is the JSON body published on the frame topic. Latest holds
// the newest value of every channel in the frame, keyed by channel name, so
// plot panels can follow it directly.
type FramePayload struct {
	Seq      uint64               `json:"seq"`
	Mode     string               `json:"mode"`
	View     scope.Range          `json:"view"`
	Envelope scope.Range          `json:"envelope"`
	Paused   bool                 `json:"paused"`
	Latest   map[string]float64   `json:"latest"`
	Channels []scope.ChannelFrame `json:"channels"`
}

type Server struct {
	cfg       Config
	hub       *engine.Hub
	logger    zerolog.Logger
	sessionID string
	clients   map[*client]struct{}
	mu        sync.RWMutex
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	subs map[uint32]uint64
	mu   sync.RWMutex
	once sync.Once
}

func NewServer(cfg Config, hub *engine.Hub, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg.normalize(),
		hub:       hub,
		logger:    zerolog.Nop(),
		sessionID: uuid.NewString(),
		clients:   make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)

	httpServer := &http.Server{
		Addr:    s.cfg.WSAddr,
		Handler: mux,
	}

	sub := s.hub.Subscribe()
	go s.broadcastLoop(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	s.logger.Info().Str("addr", s.cfg.WSAddr).Str("session", s.sessionID).Msg("foxglove bridge listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade")
		return
	}

	c := newClient(conn, s.cfg.SendBuf)
	s.addClient(c)
	defer s.removeClient(c)
	defer c.close()

	if err := conn.WriteJSON(s.serverInfo()); err != nil {
		return
	}
	if err := conn.WriteJSON(s.advertise()); err != nil {
		return
	}

	go c.writeLoop()
	c.readLoop(s.supportedChannels())
}

func (s *Server) supportedChannels() map[uint64]struct{} {
	return map[uint64]struct{}{
		s.cfg.Event.ChannelID: {},
		s.cfg.Frame.ChannelID: {},
		s.cfg.Log.ChannelID:   {},
	}
}

func (s *Server) serverInfo() ServerInfoMsg {
	return ServerInfoMsg{
		Op:                 OpServerInfo,
		Name:               s.cfg.Name,
		Capabilities:       []string{},
		SupportedEncodings: []string{},
		SessionID:          s.sessionID,
	}
}

func (s *Server) advertise() AdvertiseMsg {
	return AdvertiseMsg{
		Op: OpAdvertise,
		Channels: []Channel{
			s.cfg.Event.channel(),
			s.cfg.Frame.channel(),
			s.cfg.Log.channel(),
		},
	}
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan engine.Record) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-sub:
			if !ok {
				return
			}
			s.publishRecord(rec)
		}
	}
}

func (s *Server) publishRecord(rec engine.Record) {
	if rec.IsFrame() {
		ts := rec.Frame.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		s.publishJSONToChannel(s.cfg.Frame.ChannelID, ts, framePayload(*rec.Frame))
		return
	}

	ev := rec.Event
	if ev.Kind == protocol.EventReady {
		return
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	s.publishJSONToChannel(s.cfg.Event.ChannelID, ts, eventPayload(ev, ts))
	if log, ok := s.logFromEvent(ev, ts); ok {
		s.publishJSONToChannel(s.cfg.Log.ChannelID, ts, log)
	}
}

func eventPayload(ev protocol.Event, ts time.Time) EventPayload {
	out := EventPayload{
		TS:   ts.UTC().Format(time.RFC3339Nano),
		Kind: ev.Kind.String(),
	}
	switch ev.Kind {
	case protocol.EventMessage:
		out.Header = ev.Message.Header
		out.Level = ev.Message.Level.String()
		out.Text = ev.Message.Body
	case protocol.EventTerminal, protocol.EventSettings, protocol.EventDeviceMessage:
		out.Text = string(ev.Data)
	case protocol.EventPoint:
		out.Values = ev.Values
	case protocol.EventChannel:
		out.Channel = ev.Channel.Channel
		out.Period = ev.Channel.Period
		out.Samples = ev.Channel.Samples
	}
	return out
}

func framePayload(frame scope.Frame) FramePayload {
	latest := make(map[string]float64, len(frame.Channels))
	for _, ch := range frame.Channels {
		if n := len(ch.Samples); n > 0 {
			latest[ch.Name] = ch.Samples[n-1].Value
		}
	}
	return FramePayload{
		Seq:      frame.Seq,
		Mode:     frame.Window.Mode.String(),
		View:     frame.Window.View,
		Envelope: frame.Window.Envelope,
		Paused:   frame.Paused,
		Latest:   latest,
		Channels: frame.Channels,
	}
}

func (s *Server) logFromEvent(ev protocol.Event, ts time.Time) (LogMessage, bool) {
	msg := LogMessage{Timestamp: frameTime(ts), Name: s.cfg.LogName}
	switch ev.Kind {
	case protocol.EventMessage:
		msg.Name = ev.Message.Header
		msg.Message = ev.Message.Body
		switch ev.Message.Level {
		case protocol.LevelError:
			msg.Level = LogLevelError
		case protocol.LevelWarning, protocol.LevelDeviceWarning:
			msg.Level = LogLevelWarn
		case protocol.LevelInfo:
			msg.Level = LogLevelDebug
		default:
			msg.Level = LogLevelInfo
		}
	case protocol.EventDeviceMessage:
		msg.Message = string(ev.Data)
		msg.Level = LogLevelInfo
		if ev.Warning {
			msg.Level = LogLevelWarn
		}
	case protocol.EventTerminal:
		msg.Message = string(ev.Data)
		msg.Level = LogLevelInfo
		msg.Name = "terminal"
	default:
		return LogMessage{}, false
	}
	return msg, true
}

func (s *Server) publishJSONToChannel(channelID uint64, ts time.Time, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn().Err(err).Uint64("channel", channelID).Msg("encode foxglove message")
		return
	}

	logTime := uint64(ts.UnixNano())
	for _, c := range s.snapshotClients() {
		for _, subID := range c.subIDsForChannel(channelID) {
			c.trySend(EncodeMessageData(subID, logTime, payload))
		}
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

func newClient(conn *websocket.Conn, sendBuf int) *client {
	if sendBuf <= 0 {
		sendBuf = DefaultConfig().SendBuf
	}
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuf),
		subs: make(map[uint32]uint64),
	}
}

func (c *client) readLoop(supportedChannels map[uint64]struct{}) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var header struct {
			Op string `json:"op"`
		}
		if err := json.Unmarshal(data, &header); err != nil {
			continue
		}

		switch header.Op {
		case OpSubscribe:
			var msg SubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, sub := range msg.Subscriptions {
				if _, ok := supportedChannels[sub.ChannelID]; ok {
					c.addSub(sub.ID, sub.ChannelID)
				}
			}
		case OpUnsubscribe:
			var msg UnsubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, id := range msg.SubscriptionIDs {
				c.removeSub(id)
			}
		}
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

// trySend drops the frame when the client is behind or already closed.
func (c *client) trySend(msg []byte) {
	defer func() {
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) addSub(id uint32, channelID uint64) {
	c.mu.Lock()
	c.subs[id] = channelID
	c.mu.Unlock()
}

func (c *client) removeSub(id uint32) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *client) subIDsForChannel(channelID uint64) []uint32 {
	c.mu.RLock()
	ids := make([]uint32, 0, len(c.subs))
	for id, ch := range c.subs {
		if ch == channelID {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	return ids
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
