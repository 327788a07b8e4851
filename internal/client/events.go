package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/lpio/internal/logging"
	"github.com/danmuck/lpio/internal/protocol/message"
	"github.com/goccy/go-json"
)

var ErrHandlerPanic = errors.New("client: handler panic")

type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventMessage      EventType = "message"
	EventData         EventType = "data"
	EventError        EventType = "error"
	EventUnauthorized EventType = "unauthorized"
	EventOption       EventType = "option"
)

// Event is one notification from the channel. Only the fields relevant to
// Type are set.
type Event struct {
	Type     EventType
	Message  message.Message
	Data     json.RawMessage
	Identity message.Identity
	Err      error
}

type Handler func(Event)

type subscriber struct {
	id int
	fn Handler
}

// registry is the publish/subscribe surface composed into Client.
type registry struct {
	mu     sync.Mutex
	nextID int
	subs   map[EventType][]subscriber
}

func newRegistry() *registry {
	return &registry{subs: make(map[EventType][]subscriber)}
}

func (r *registry) on(t EventType, fn Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.subs[t] = append(r.subs[t], subscriber{id: id, fn: fn})
	var once sync.Once
	return func() {
		once.Do(func() { r.off(t, id) })
	}
}

func (r *registry) off(t EventType, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.subs[t]
	for i, s := range subs {
		if s.id == id {
			r.subs[t] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (r *registry) emit(ev Event) {
	r.mu.Lock()
	subs := append([]subscriber(nil), r.subs[ev.Type]...)
	r.mu.Unlock()
	for _, s := range subs {
		r.call(s.fn, ev)
	}
}

// call reports a handler panic as an error event. A panicking error handler
// is only logged.
func (r *registry) call(fn Handler, ev Event) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		err := fmt.Errorf("%w: %s: %v", ErrHandlerPanic, ev.Type, p)
		if ev.Type == EventError {
			logging.Errorf("client.registry.call event=%s err=%v", ev.Type, err)
			return
		}
		r.emit(Event{Type: EventError, Err: err})
	}()
	fn(ev)
}
