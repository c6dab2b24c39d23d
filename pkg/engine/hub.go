package engine

import (
	"context"

	"serialscope/pkg/protocol"
	"serialscope/pkg/scope"
)

// Record is one item fanned out to sinks: a parser event or a refresh frame.
type Record struct {
	Event protocol.Event
	Frame *scope.Frame
}

func EventRecord(ev protocol.Event) Record {
	return Record{Event: ev}
}

func FrameRecord(frame scope.Frame) Record {
	return Record{Frame: &frame}
}

func (r Record) IsFrame() bool {
	return r.Frame != nil
}

// Hub broadcasts records to subscribers. A subscriber whose buffer is full
// misses the record; publishers are never held up by a slow sink.
type Hub struct {
	broadcast  chan Record
	register   chan chan Record
	unregister chan chan Record
	clients    map[chan Record]struct{}
	clientBuf  int
	dropped    func(Record)
	done       chan struct{}
}

type Option func(*Hub)

func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan Record, size)
		}
	}
}

func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

// WithDropHandler is called for every record a subscriber could not take.
func WithDropHandler(fn func(Record)) Option {
	return func(h *Hub) {
		h.dropped = fn
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan Record, 256),
		register:   make(chan chan Record),
		unregister: make(chan chan Record),
		clients:    make(map[chan Record]struct{}),
		clientBuf:  100,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			close(h.done)
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case rec := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- rec:
				default:
					if h.dropped != nil {
						h.dropped(rec)
					}
				}
			}
		}
	}
}

func (h *Hub) Subscribe() chan Record {
	return h.SubscribeWithBuffer(h.clientBuf)
}

func (h *Hub) SubscribeWithBuffer(size int) chan Record {
	if size <= 0 {
		size = h.clientBuf
	}
	ch := make(chan Record, size)
	select {
	case h.register <- ch:
	case <-h.done:
		close(ch)
	}
	return ch
}

func (h *Hub) Unsubscribe(ch chan Record) {
	select {
	case h.unregister <- ch:
	case <-h.done:
	}
}

// Publish queues rec for broadcast. After Run has returned it is a no-op.
func (h *Hub) Publish(rec Record) {
	select {
	case h.broadcast <- rec:
	case <-h.done:
	}
}

// PublishEvent satisfies the ingest router's publisher.
func (h *Hub) PublishEvent(ev protocol.Event) {
	h.Publish(EventRecord(ev))
}

// PublishFrame is shaped to be a scope.Refresher callback.
func (h *Hub) PublishFrame(frame scope.Frame) {
	h.Publish(FrameRecord(frame))
}
