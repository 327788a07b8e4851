package client

import (
	"strings"

	"github.com/danmuck/lpio/internal/logging"
	"github.com/danmuck/lpio/internal/observability"
	"github.com/danmuck/lpio/internal/protocol/message"
)

// dispatchLocked handles one response message in response order.
func (c *Client) dispatchLocked(fx *effects, m message.Message) {
	c.received = true
	observability.RecordMessageReceived(c.cfg.Name, string(m.Type))

	switch m.Type {
	case message.TypeAck:
		id := m.ID
		fx.add(func() { c.acks.Resolve(id) })
	case message.TypeOption:
		next, err := message.DecodeOption(m)
		if err != nil {
			logging.Warnf("client.dispatch channel=%s option id=%s err=%v", c.cfg.Name, m.ID, err)
			fx.emit(c, Event{Type: EventError, Message: m, Err: err})
			return
		}
		c.identity = c.identity.Merge(next)
		logging.Infof("client.dispatch channel=%s option client=%q user=%q", c.cfg.Name, c.identity.Client, c.identity.User)
		fx.emit(c, Event{Type: EventOption, Message: m, Identity: c.identity})
	default:
		fx.emit(c, Event{Type: EventMessage, Message: m})
		if message.HasPayload(m.Data) {
			fx.emit(c, Event{Type: EventData, Message: m, Data: m.Data})
		}
		if strings.TrimSpace(m.ID) != "" {
			c.buffer.Add(message.Ack(m.ID))
		}
	}
}
