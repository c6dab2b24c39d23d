package protocol

import (
	"sync"
	"time"
)

// EventFunc adapts a function to the Listener interface by turning every
// callback into an Event.
type EventFunc func(Event)

func (f EventFunc) Message(msg Message) {
	f(Event{Kind: EventMessage, Timestamp: time.Now(), Message: msg})
}

func (f EventFunc) Terminal(data []byte) {
	f(Event{Kind: EventTerminal, Timestamp: time.Now(), Data: data})
}

func (f EventFunc) Settings(data []byte) {
	f(Event{Kind: EventSettings, Timestamp: time.Now(), Data: data})
}

func (f EventFunc) Point(values []string) {
	f(Event{Kind: EventPoint, Timestamp: time.Now(), Values: values})
}

func (f EventFunc) Channel(data ChannelData) {
	f(Event{Kind: EventChannel, Timestamp: time.Now(), Channel: data})
}

func (f EventFunc) DeviceMessage(body []byte, warning bool, ended bool) {
	f(Event{Kind: EventDeviceMessage, Timestamp: time.Now(), Data: body, Warning: warning, Ended: ended})
}

func (f EventFunc) Ready() {
	f(Event{Kind: EventReady, Timestamp: time.Now()})
}

// EventQueue is a Listener that records events until drained.
type EventQueue struct {
	mu     sync.Mutex
	events []Event
}

func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Listener returns the queue's Listener side.
func (q *EventQueue) Listener() Listener {
	return EventFunc(q.push)
}

func (q *EventQueue) push(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// Drain returns all queued events and empties the queue.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	out := q.events
	q.events = nil
	q.mu.Unlock()
	return out
}

// Records returns queued events excluding Ready and Message events.
func (q *EventQueue) Records() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Event, 0, len(q.events))
	for _, ev := range q.events {
		if ev.Kind == EventReady || ev.Kind == EventMessage {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Messages returns queued Message events.
func (q *EventQueue) Messages() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Message
	for _, ev := range q.events {
		if ev.Kind == EventMessage {
			out = append(out, ev.Message)
		}
	}
	return out
}
