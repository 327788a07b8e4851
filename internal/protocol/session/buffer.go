package session

import (
	"sync"
	"time"

	"github.com/danmuck/lpio/internal/protocol/message"
	"github.com/jonboulle/clockwork"
)

// Buffer holds outbound messages not yet included in an exchange.
// A message leaves the buffer only through Drain or Reset.
type Buffer struct {
	mu    sync.Mutex
	items []message.Message
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add appends msgs in order. Adding a batch equals adding each element in turn.
func (b *Buffer) Add(msgs ...message.Message) {
	if len(msgs) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, msgs...)
}

// Requeue puts back a drained batch that was never delivered, ahead of
// anything added since, so the original send order is kept.
func (b *Buffer) Requeue(msgs ...message.Message) {
	if len(msgs) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	items := make([]message.Message, 0, len(msgs)+len(b.items))
	items = append(items, msgs...)
	b.items = append(items, b.items...)
}

// Drain returns the buffered messages and empties the buffer atomically.
func (b *Buffer) Drain() []message.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}

// Get returns a copy of the buffered messages without removing them.
func (b *Buffer) Get() []message.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]message.Message, len(b.items))
	copy(out, b.items)
	return out
}

func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Start drains the buffer every interval and hands each batch, empty or not,
// to onDrain. The returned stop func is idempotent.
func (b *Buffer) Start(clock clockwork.Clock, interval time.Duration, onDrain func([]message.Message)) func() {
	ticker := clock.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				onDrain(b.Drain())
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
