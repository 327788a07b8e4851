package message

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator hands out message ids that are unique for the life of a client.
type IDGenerator interface {
	NextID() string
}

// IDFunc adapts a plain function to IDGenerator.
type IDFunc func() string

func (f IDFunc) NextID() string {
	return f()
}

// UUIDGenerator issues time-ordered UUIDv7 ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NextID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SequenceGenerator issues prefix-N ids from a monotonic counter.
type SequenceGenerator struct {
	Prefix string
	next   atomic.Uint64
}

func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{Prefix: prefix}
}

func (g *SequenceGenerator) NextID() string {
	n := g.next.Add(1)
	if g.Prefix == "" {
		return strconv.FormatUint(n, 10)
	}
	return g.Prefix + "-" + strconv.FormatUint(n, 10)
}
