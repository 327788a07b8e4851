// Package lpserver is a fake long-poll endpoint for exercising lpio clients.
// It assigns client ids through option messages, routes data messages by
// recipient, acks every sender message, and can inject failures.
package lpserver

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/lpio/internal/auth"
	"github.com/danmuck/lpio/internal/logging"
	"github.com/danmuck/lpio/internal/observability"
	"github.com/danmuck/lpio/internal/protocol/message"
	"github.com/danmuck/lpio/internal/protocol/session"
	"github.com/gin-gonic/gin"
)

const DefaultHold = 100 * time.Millisecond

type peer struct {
	id     string
	user   string
	queue  []message.Message
	notify chan struct{}
}

type Server struct {
	hold time.Duration

	mu       sync.Mutex
	next     int
	peers    map[string]*peer
	failures []int
	received []message.Message
	tokens   auth.Validator
	engine   *gin.Engine
}

// New builds the endpoint. hold bounds how long an empty poll is parked.
func New(hold time.Duration) *Server {
	if hold <= 0 {
		hold = DefaultHold
	}
	gin.SetMode(gin.TestMode)
	s := &Server{
		hold:  hold,
		peers: make(map[string]*peer),
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logging.Logger(), "lpserver"))
	r.Use(observability.RequestMetricsMiddleware("lpserver"))
	r.POST(session.DefaultPath, s.handleExchange)
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// FailNext answers the next n exchanges with status.
func (s *Server) FailNext(status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures = append(s.failures, status)
	}
}

// RequireToken rejects exchanges whose bearer token v does not accept.
func (s *Server) RequireToken(v auth.Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = v
}

// Push queues m for clientID, waking a parked poll.
func (s *Server) Push(clientID string, m message.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[clientID]
	if !ok {
		return false
	}
	s.enqueueLocked(p, m)
	return true
}

// Received returns every non-ack message the endpoint accepted, in arrival order.
func (s *Server) Received() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Message, len(s.received))
	copy(out, s.received)
	return out
}

func (s *Server) Clients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.peers))
	for id := range s.peers {
		out = append(out, id)
	}
	return out
}

func (s *Server) handleExchange(c *gin.Context) {
	if status, ok := s.takeFailure(); ok {
		c.String(status, http.StatusText(status))
		return
	}
	if err := s.authorize(c.Request.Header); err != nil {
		c.String(http.StatusUnauthorized, err.Error())
		return
	}

	var req message.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	p := s.accept(req)
	select {
	case <-p.notify:
	case <-time.After(s.hold):
	case <-c.Request.Context().Done():
		return
	}

	s.mu.Lock()
	out := p.queue
	p.queue = nil
	s.mu.Unlock()
	if out == nil {
		out = []message.Message{}
	}
	c.JSON(http.StatusOK, message.Response{Messages: out})
}

func (s *Server) takeFailure() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failures) == 0 {
		return 0, false
	}
	status := s.failures[0]
	s.failures = s.failures[1:]
	return status, true
}

func (s *Server) authorize(h http.Header) error {
	s.mu.Lock()
	v := s.tokens
	s.mu.Unlock()
	if v == nil {
		return nil
	}
	return auth.CheckRequest(v, h)
}

// accept registers the caller, routes its messages and returns its peer.
func (s *Server) accept(req message.Request) *peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := req.Identity()
	p, ok := s.peers[id.Client]
	if !ok {
		s.next++
		p = &peer{
			id:     fmt.Sprintf("client-%d", s.next),
			notify: make(chan struct{}, 1),
		}
		s.peers[p.id] = p
		s.enqueueLocked(p, message.Option(fmt.Sprintf("option-%d", s.next), message.Identity{Client: p.id}))
		logging.Debugf("lpserver.accept assigned client=%s", p.id)
	}
	p.user = id.User

	for _, m := range req.Messages {
		if m.Type == message.TypeAck {
			continue
		}
		s.received = append(s.received, m)
		if m.Type == message.TypeData {
			if dst := s.routeLocked(m.Recipient); dst != nil {
				s.enqueueLocked(dst, m)
			}
		}
		s.enqueueLocked(p, message.Ack(m.ID))
	}
	return p
}

func (s *Server) routeLocked(recipient string) *peer {
	recipient = strings.TrimSpace(recipient)
	if p, ok := s.peers[recipient]; ok {
		return p
	}
	for _, p := range s.peers {
		if p.user != "" && p.user == recipient {
			return p
		}
	}
	return nil
}

func (s *Server) enqueueLocked(p *peer, m message.Message) {
	p.queue = append(p.queue, m)
	select {
	case p.notify <- struct{}{}:
	default:
	}
}
