// Package message owns the lpio message model and its JSON wire envelopes.
//
// Ownership boundary:
// - message construction and validation
// - id generation capability
// - request/response envelopes and option payloads
package message

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// ServerRecipient is the reserved recipient for control traffic (acks, pings).
const ServerRecipient = "server"

var (
	ErrInvalidMessage = errors.New("message: invalid message")
	ErrInvalidOption  = errors.New("message: invalid option payload")
)

type Type string

const (
	TypeData   Type = "data"
	TypeAck    Type = "ack"
	TypePing   Type = "ping"
	TypeOption Type = "option"
)

func (t Type) Known() bool {
	switch t {
	case TypeData, TypeAck, TypePing, TypeOption:
		return true
	default:
		return false
	}
}

// Message is one unit of channel traffic. Values are never mutated in place;
// Stamp returns a copy carrying the current connection identity.
type Message struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Recipient string          `json:"recipient,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Client    string          `json:"client,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Options describes a caller message before an id and defaults are applied.
type Options struct {
	ID        string
	Type      Type
	Recipient string
	Data      json.RawMessage
}

// Build applies defaults: generated id, data type, and the server recipient
// for acks and pings.
func Build(opts Options, ids IDGenerator) Message {
	m := Message{
		ID:        strings.TrimSpace(opts.ID),
		Type:      opts.Type,
		Recipient: strings.TrimSpace(opts.Recipient),
		Data:      opts.Data,
	}
	if m.ID == "" && ids != nil {
		m.ID = ids.NextID()
	}
	if m.Type == "" {
		m.Type = TypeData
	}
	if m.Type == TypeAck || m.Type == TypePing {
		m.Recipient = ServerRecipient
	}
	return m
}

// Ack builds the acknowledgment for message id.
func Ack(id string) Message {
	return Message{ID: id, Type: TypeAck, Recipient: ServerRecipient}
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: id required", ErrInvalidMessage)
	}
	if !m.Type.Known() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	if m.Type != TypeData {
		return nil
	}
	if strings.TrimSpace(m.Recipient) == "" {
		return fmt.Errorf("%w: recipient required", ErrInvalidMessage)
	}
	if !HasPayload(m.Data) {
		return fmt.Errorf("%w: data required", ErrInvalidMessage)
	}
	if !json.Valid(m.Data) {
		return fmt.Errorf("%w: data is not valid json", ErrInvalidMessage)
	}
	return nil
}

// Stamp returns a copy of m carrying the identity's client and user ids.
func (m Message) Stamp(id Identity) Message {
	m.Client = id.Client
	m.Sender = id.User
	return m
}

// HasPayload reports whether data holds a value other than JSON null.
func HasPayload(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Text encodes s as a JSON string payload.
func Text(s string) json.RawMessage {
	out, _ := json.Marshal(s)
	return out
}
