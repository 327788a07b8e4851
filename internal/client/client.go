// Package client owns the lpio connection state machine.
//
// Ownership boundary:
// - connect/disconnect lifecycle and state transitions
// - open/reopen exchange loop with a single in-flight exchange
// - inbound dispatch (acks, options, user messages)
// - connection events and heartbeat pings
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/lpio/internal/logging"
	"github.com/danmuck/lpio/internal/observability"
	"github.com/danmuck/lpio/internal/protocol/message"
	"github.com/danmuck/lpio/internal/protocol/session"
	"github.com/danmuck/lpio/internal/transport"
	"github.com/jonboulle/clockwork"
)

type State string

const (
	StateDisabled   State = "disabled"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateReopening  State = "reopening"
)

// Option customizes a Client at construction.
type Option func(*Client)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithIDGenerator(ids message.IDGenerator) Option {
	return func(c *Client) {
		if ids != nil {
			c.ids = ids
		}
	}
}

// flight is the one exchange allowed in flight.
type flight struct {
	seq      uint64
	batch    []message.Message
	started  time.Time
	exchange *transport.Exchange
}

// Client is one logical always-on channel to one endpoint. All state below mu
// is owned by the client; events and delivery callbacks run after mu is released.
type Client struct {
	cfg       session.Config
	transport transport.Transport
	clock     clockwork.Clock
	ids       message.IDGenerator
	buffer    *session.Buffer
	acks      *session.AckTracker
	backoff   *session.Backoff
	events    *registry

	mu            sync.Mutex
	state         State
	identity      message.Identity
	epoch         uint64
	seq           uint64
	inflight      *flight
	reopenTimer   clockwork.Timer
	stopDrain     func()
	stopHeartbeat func()
	received      bool
	ctx           context.Context
	cancel        context.CancelFunc
}

func New(cfg session.Config, t transport.Transport, opts ...Option) (*Client, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: transport required", session.ErrInvalidConfig)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:       cfg,
		transport: t,
		clock:     clockwork.NewRealClock(),
		ids:       message.UUIDGenerator{},
		buffer:    session.NewBuffer(),
		backoff:   session.NewBackoff(cfg.Backoff),
		events:    newRegistry(),
		state:     StateDisabled,
		identity: message.Identity{
			Client: strings.TrimSpace(cfg.ClientID),
			User:   strings.TrimSpace(cfg.UserID),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.acks = session.NewAckTracker(c.clock)
	return c, nil
}

// On registers fn for events of type t and returns a func that removes it.
func (c *Client) On(t EventType, fn Handler) func() {
	return c.events.on(t, fn)
}

// Connect starts the exchange loop. It is a no-op unless the client is disabled.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state != StateDisabled {
		c.mu.Unlock()
		return nil
	}
	if err := c.cfg.ValidateIdentity(c.identity.Client, c.identity.User); err != nil {
		c.mu.Unlock()
		logging.Warnf("client.Connect channel=%s err=%v", c.cfg.Name, err)
		go c.events.emit(Event{Type: EventError, Err: err})
		return err
	}
	var fx effects
	c.state = StateConnecting
	c.epoch++
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.stopDrain = c.buffer.Start(c.clock, c.cfg.DrainInterval, c.onDrain)
	logging.Infof("client.Connect channel=%s url=%q state=%s", c.cfg.Name, c.cfg.URL, c.state)
	c.openLocked(&fx, c.buffer.Drain())
	c.mu.Unlock()
	fx.run()
	return nil
}

// Disconnect tears the channel down. The buffer is preserved for a later Connect;
// pending acks are abandoned without callbacks.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisabled {
		c.mu.Unlock()
		return
	}
	var fx effects
	c.disconnectLocked(&fx)
	c.mu.Unlock()
	fx.run()
}

func (c *Client) disconnectLocked(fx *effects) {
	wasConnected := c.state == StateConnected
	c.state = StateDisabled
	c.epoch++
	if f := c.inflight; f != nil {
		c.inflight = nil
		f.exchange.Abort()
		c.buffer.Requeue(f.batch...)
		observability.RecordExchange(c.cfg.Name, observability.OutcomeAborted, c.clock.Since(f.started))
	}
	if c.reopenTimer != nil {
		c.reopenTimer.Stop()
		c.reopenTimer = nil
	}
	if c.stopDrain != nil {
		c.stopDrain()
		c.stopDrain = nil
	}
	c.stopHeartbeatLocked()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	abandoned := c.acks.Abandon()
	observability.SetBuffered(c.cfg.Name, c.buffer.Len())
	logging.Infof("client.Disconnect channel=%s buffered=%d abandoned_acks=%d", c.cfg.Name, c.buffer.Len(), abandoned)
	if wasConnected {
		observability.RecordDisconnect(c.cfg.Name)
		fx.emit(c, Event{Type: EventDisconnected})
	}
}

// Send buffers one message for the next exchange and returns its id. done, when
// non-nil, receives exactly one outcome: nil on ack, ErrDeliveryTimeout, or a
// validation error. Validation failures are reported asynchronously and the
// message is not buffered; "" is returned.
func (c *Client) Send(opts message.Options, done session.DeliveryFunc) string {
	m := message.Build(opts, c.ids)
	if err := m.Validate(); err != nil {
		c.reportSendError(err, done)
		return ""
	}
	if done != nil {
		if err := c.acks.Subscribe(m.ID, c.deliveryHook(done), c.cfg.AckTimeout); err != nil {
			c.reportSendError(fmt.Errorf("%w: %s", err, m.ID), done)
			return ""
		}
	}
	c.buffer.Add(m)
	observability.RecordMessageSent(c.cfg.Name, string(m.Type))
	observability.SetBuffered(c.cfg.Name, c.buffer.Len())
	logging.Debugf("client.Send channel=%s id=%s type=%s recipient=%s", c.cfg.Name, m.ID, m.Type, m.Recipient)
	return m.ID
}

func (c *Client) reportSendError(err error, done session.DeliveryFunc) {
	logging.Warnf("client.Send channel=%s err=%v", c.cfg.Name, err)
	if done != nil {
		go c.deliveryHook(done)(err)
		return
	}
	go c.events.emit(Event{Type: EventError, Err: err})
}

// deliveryHook wraps a caller callback with metrics and panic recovery.
func (c *Client) deliveryHook(done session.DeliveryFunc) session.DeliveryFunc {
	return func(err error) {
		switch {
		case err == nil:
			observability.RecordAck(c.cfg.Name, observability.AckDelivered)
		case errors.Is(err, session.ErrDeliveryTimeout):
			observability.RecordAck(c.cfg.Name, observability.AckTimeout)
		}
		defer func() {
			if p := recover(); p != nil {
				c.events.emit(Event{Type: EventError, Err: fmt.Errorf("%w: delivery: %v", ErrHandlerPanic, p)})
			}
		}()
		done(err)
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Identity() message.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Buffered returns a snapshot of messages waiting for the next exchange.
func (c *Client) Buffered() []message.Message {
	return c.buffer.Get()
}

func (c *Client) PendingAcks() []session.PendingAck {
	return c.acks.Pending()
}

// effects defers event delivery and ack resolution until mu is released,
// preserving the order they were produced in.
type effects []func()

func (fx *effects) emit(c *Client, ev Event) {
	*fx = append(*fx, func() { c.events.emit(ev) })
}

func (fx *effects) add(fn func()) {
	*fx = append(*fx, fn)
}

func (fx effects) run() {
	for _, fn := range fx {
		fn()
	}
}
