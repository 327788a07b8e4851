package message

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Identity is the connection identity stamped onto every outbound batch.
type Identity struct {
	Client string `json:"client,omitempty"`
	User   string `json:"user,omitempty"`
}

// Merge overlays the non-empty fields of next onto id.
func (id Identity) Merge(next Identity) Identity {
	if v := strings.TrimSpace(next.Client); v != "" {
		id.Client = v
	}
	if v := strings.TrimSpace(next.User); v != "" {
		id.User = v
	}
	return id
}

// Request is the body of one exchange. Empty ids encode as JSON null.
type Request struct {
	Client   *string   `json:"client"`
	User     *string   `json:"user"`
	Messages []Message `json:"messages"`
}

type Response struct {
	Messages []Message `json:"messages"`
}

// NewRequest packages batch for an exchange, re-stamping every message with id.
func NewRequest(id Identity, batch []Message) Request {
	msgs := make([]Message, 0, len(batch))
	for _, m := range batch {
		msgs = append(msgs, m.Stamp(id))
	}
	return Request{
		Client:   nullable(id.Client),
		User:     nullable(id.User),
		Messages: msgs,
	}
}

// Identity reads the request's client/user pair back into an Identity.
func (r Request) Identity() Identity {
	var out Identity
	if r.Client != nil {
		out.Client = *r.Client
	}
	if r.User != nil {
		out.User = *r.User
	}
	return out
}

// DecodeOption reads the identity carried by an option message.
// A bare client field on the message is used when the payload omits it.
func DecodeOption(m Message) (Identity, error) {
	if m.Type != TypeOption {
		return Identity{}, fmt.Errorf("%w: type %q", ErrInvalidOption, m.Type)
	}
	var out Identity
	if HasPayload(m.Data) {
		if err := json.Unmarshal(m.Data, &out); err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidOption, err)
		}
	}
	if strings.TrimSpace(out.Client) == "" {
		out.Client = strings.TrimSpace(m.Client)
	}
	if out.Client == "" && out.User == "" {
		return Identity{}, fmt.Errorf("%w: no identity fields", ErrInvalidOption)
	}
	return out, nil
}

// Option builds a server-side option message assigning id.
func Option(msgID string, id Identity) Message {
	data, _ := json.Marshal(id)
	return Message{ID: msgID, Type: TypeOption, Recipient: id.Client, Data: data}
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
