package session

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrDeliveryTimeout    = errors.New("session: delivery timeout")
	ErrDuplicateMessageID = errors.New("session: ack already pending for message id")
)

// DeliveryFunc receives the outcome of one send: nil on ack, an error otherwise.
type DeliveryFunc func(err error)

// PendingAck is a snapshot of one message awaiting its ack.
type PendingAck struct {
	ID         string
	QueuedAt   time.Time
	DeadlineAt time.Time
}

type ackWatch struct {
	done     DeliveryFunc
	timer    clockwork.Timer
	queuedAt time.Time
	deadline time.Time
}

func (w *ackWatch) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

// AckTracker maps message ids to one-shot delivery callbacks with deadlines.
// Exactly one of Resolve or the deadline wins for each id.
type AckTracker struct {
	clock clockwork.Clock

	mu      sync.Mutex
	watches map[string]*ackWatch
}

func NewAckTracker(clock clockwork.Clock) *AckTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AckTracker{
		clock:   clock,
		watches: make(map[string]*ackWatch),
	}
}

// Subscribe arms a watcher for id. It returns ErrDuplicateMessageID when one is
// already pending; done is not retained in that case.
func (t *AckTracker) Subscribe(id string, done DeliveryFunc, timeout time.Duration) error {
	key := strings.TrimSpace(id)
	if key == "" || done == nil {
		return nil
	}
	t.mu.Lock()
	if _, ok := t.watches[key]; ok {
		t.mu.Unlock()
		return ErrDuplicateMessageID
	}
	now := t.clock.Now()
	w := &ackWatch{
		done:     done,
		queuedAt: now,
		deadline: now.Add(timeout),
	}
	t.watches[key] = w
	t.mu.Unlock()

	// Armed outside the lock: a fake clock may fire a non-positive timeout inline.
	timer := t.clock.AfterFunc(timeout, func() { t.expire(key, w) })
	t.mu.Lock()
	if current, ok := t.watches[key]; ok && current == w {
		w.timer = timer
	} else {
		timer.Stop()
	}
	t.mu.Unlock()
	return nil
}

// Resolve completes the watcher for id. Unknown or already expired ids are a no-op.
func (t *AckTracker) Resolve(id string) bool {
	key := strings.TrimSpace(id)
	t.mu.Lock()
	w, ok := t.watches[key]
	if ok {
		delete(t.watches, key)
		w.stop()
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	w.done(nil)
	return true
}

func (t *AckTracker) expire(key string, w *ackWatch) {
	t.mu.Lock()
	current, ok := t.watches[key]
	if !ok || current != w {
		t.mu.Unlock()
		return
	}
	delete(t.watches, key)
	t.mu.Unlock()
	w.done(ErrDeliveryTimeout)
}

// Abandon drops every watcher without invoking callbacks and returns how many were dropped.
func (t *AckTracker) Abandon() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.watches)
	for key, w := range t.watches {
		w.stop()
		delete(t.watches, key)
	}
	return n
}

func (t *AckTracker) Pending() []PendingAck {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PendingAck, 0, len(t.watches))
	for key, w := range t.watches {
		out = append(out, PendingAck{ID: key, QueuedAt: w.queuedAt, DeadlineAt: w.deadline})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *AckTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.watches)
}
