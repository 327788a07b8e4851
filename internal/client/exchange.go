package client

import (
	"errors"
	"time"

	"github.com/danmuck/lpio/internal/logging"
	"github.com/danmuck/lpio/internal/observability"
	"github.com/danmuck/lpio/internal/protocol/message"
	"github.com/danmuck/lpio/internal/transport"
)

// openLocked starts an exchange carrying batch. While another exchange is in
// flight, or the client is disabled, batch goes back to the buffer instead.
func (c *Client) openLocked(fx *effects, batch []message.Message) {
	if c.state == StateDisabled || c.inflight != nil {
		c.buffer.Requeue(batch...)
		observability.SetBuffered(c.cfg.Name, c.buffer.Len())
		return
	}
	c.seq++
	seq := c.seq
	f := &flight{
		seq:     seq,
		batch:   batch,
		started: c.clock.Now(),
	}
	c.inflight = f
	req := message.NewRequest(c.identity, batch)
	f.exchange = transport.Start(c.ctx, c.transport, req, transport.Callbacks{
		OnSuccess: func(res message.Response) { c.onSuccess(seq, res) },
		OnError:   func(err error) { c.onError(seq, err) },
		OnClose:   func() { c.onClose(seq) },
	})
	observability.SetBuffered(c.cfg.Name, c.buffer.Len())
	logging.Tracef("client.open channel=%s seq=%d messages=%d", c.cfg.Name, seq, len(batch))
}

// takeFlightLocked clears the in-flight marker if seq still owns it.
func (c *Client) takeFlightLocked(seq uint64) *flight {
	f := c.inflight
	if f == nil || f.seq != seq {
		return nil
	}
	c.inflight = nil
	return f
}

func (c *Client) onSuccess(seq uint64, res message.Response) {
	c.mu.Lock()
	f := c.takeFlightLocked(seq)
	if f == nil {
		c.mu.Unlock()
		return
	}
	var fx effects
	observability.RecordExchange(c.cfg.Name, observability.OutcomeSuccess, c.clock.Since(f.started))
	c.backoff.Reset()
	if c.state != StateConnected {
		c.state = StateConnected
		c.startHeartbeatLocked()
		logging.Infof("client.onSuccess channel=%s state=%s client=%q", c.cfg.Name, c.state, c.identity.Client)
		fx.emit(c, Event{Type: EventConnected})
	}
	for _, m := range res.Messages {
		c.dispatchLocked(&fx, m)
	}
	c.openLocked(&fx, c.buffer.Drain())
	c.mu.Unlock()
	fx.run()
}

func (c *Client) onError(seq uint64, err error) {
	c.mu.Lock()
	f := c.takeFlightLocked(seq)
	if f == nil {
		c.mu.Unlock()
		return
	}
	var fx effects
	c.buffer.Requeue(f.batch...)
	observability.SetBuffered(c.cfg.Name, c.buffer.Len())

	if errors.Is(err, transport.ErrUnauthorized) {
		observability.RecordExchange(c.cfg.Name, observability.OutcomeUnauthorized, c.clock.Since(f.started))
		logging.Warnf("client.onError channel=%s unauthorized err=%v", c.cfg.Name, err)
		fx.emit(c, Event{Type: EventUnauthorized, Err: err})
		c.disconnectLocked(&fx)
		c.mu.Unlock()
		fx.run()
		return
	}

	observability.RecordExchange(c.cfg.Name, observability.OutcomeError, c.clock.Since(f.started))
	fx.emit(c, Event{Type: EventError, Err: err})
	attempts := c.backoff.Attempts()
	delay, scheduled := c.reopenLocked()
	logging.Debugf("client.onError channel=%s attempts=%d delay=%s requeued=%d err=%v",
		c.cfg.Name, attempts, delay, len(f.batch), err)
	if scheduled && c.state == StateConnected && c.cfg.DisconnectDue(attempts, delay, c.backoff.Max()) {
		c.state = StateReopening
		c.stopHeartbeatLocked()
		observability.RecordDisconnect(c.cfg.Name)
		logging.Warnf("client.onError channel=%s state=%s policy=%s", c.cfg.Name, c.state, c.cfg.DisconnectPolicy)
		fx.emit(c, Event{Type: EventDisconnected})
	}
	c.mu.Unlock()
	fx.run()
}

// onClose releases the in-flight marker when neither continuation ran, which
// only happens for an exchange aborted outside Disconnect.
func (c *Client) onClose(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f := c.takeFlightLocked(seq); f != nil {
		c.buffer.Requeue(f.batch...)
		observability.SetBuffered(c.cfg.Name, c.buffer.Len())
	}
}

// reopenLocked schedules one reopen after the next backoff delay. It reports
// false when a reopen is already pending.
func (c *Client) reopenLocked() (delay time.Duration, scheduled bool) {
	if c.reopenTimer != nil {
		return 0, false
	}
	delay = c.backoff.Duration()
	epoch := c.epoch
	c.reopenTimer = c.clock.AfterFunc(delay, func() { c.onReopen(epoch) })
	return delay, true
}

func (c *Client) onReopen(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || c.state == StateDisabled {
		c.mu.Unlock()
		return
	}
	var fx effects
	c.reopenTimer = nil
	c.openLocked(&fx, c.buffer.Drain())
	c.mu.Unlock()
	fx.run()
}

// onDrain receives each periodic buffer drain. Batches that cannot be sent now
// go back to the buffer.
func (c *Client) onDrain(batch []message.Message) {
	c.mu.Lock()
	if c.state == StateDisabled || c.reopenTimer != nil {
		c.buffer.Requeue(batch...)
		c.mu.Unlock()
		return
	}
	var fx effects
	if f := c.inflight; f != nil {
		if c.cfg.FlushOnDrain && len(batch) > 0 && len(f.batch) == 0 {
			c.inflight = nil
			f.exchange.Abort()
			observability.RecordExchange(c.cfg.Name, observability.OutcomeAborted, c.clock.Since(f.started))
			logging.Tracef("client.onDrain channel=%s flush seq=%d messages=%d", c.cfg.Name, f.seq, len(batch))
		} else {
			c.buffer.Requeue(batch...)
			c.mu.Unlock()
			return
		}
	}
	c.openLocked(&fx, batch)
	c.mu.Unlock()
	fx.run()
}
