package client

import (
	"github.com/danmuck/lpio/internal/observability"
	"github.com/danmuck/lpio/internal/protocol/message"
)

// startHeartbeatLocked pings the server on each tick that saw no inbound message.
func (c *Client) startHeartbeatLocked() {
	if c.cfg.HeartbeatInterval <= 0 || c.stopHeartbeat != nil {
		return
	}
	ticker := c.clock.NewTicker(c.cfg.HeartbeatInterval)
	done := make(chan struct{})
	epoch := c.epoch
	c.received = false
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				c.onHeartbeat(epoch)
			}
		}
	}()
	c.stopHeartbeat = func() { close(done) }
}

func (c *Client) stopHeartbeatLocked() {
	if c.stopHeartbeat != nil {
		c.stopHeartbeat()
		c.stopHeartbeat = nil
	}
}

func (c *Client) onHeartbeat(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	idle := !c.received
	c.received = false
	if idle {
		c.buffer.Add(message.Build(message.Options{Type: message.TypePing}, c.ids))
		observability.RecordMessageSent(c.cfg.Name, string(message.TypePing))
	}
	c.mu.Unlock()
}
