// Package transport performs single lpio exchanges for the client state machine.
//
// Ownership boundary:
// - blocking Transport contract (one request/response per call)
// - callback exchange runner with abort
// - HTTP binding and status errors
package transport

import (
	"context"
	"sync"

	"github.com/danmuck/lpio/internal/protocol/message"
)

// Transport performs one request/response exchange. Implementations must
// return when ctx is cancelled.
type Transport interface {
	Exchange(ctx context.Context, req message.Request) (message.Response, error)
}

// Func adapts a plain function to Transport.
type Func func(ctx context.Context, req message.Request) (message.Response, error)

func (f Func) Exchange(ctx context.Context, req message.Request) (message.Response, error) {
	return f(ctx, req)
}

// Callbacks are the continuations of one exchange. Exactly one of OnSuccess
// or OnError runs unless the exchange was aborted; OnClose always runs last.
type Callbacks struct {
	OnSuccess func(message.Response)
	OnError   func(error)
	OnClose   func()
}

// Exchange is a handle on one in-flight exchange.
type Exchange struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	aborted bool
}

// Start runs one exchange in its own goroutine.
func Start(ctx context.Context, t Transport, req message.Request, cb Callbacks) *Exchange {
	ctx, cancel := context.WithCancel(ctx)
	ex := &Exchange{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(ex.done)
		defer cancel()
		res, err := t.Exchange(ctx, req)
		if !ex.isAborted() {
			if err != nil {
				if cb.OnError != nil {
					cb.OnError(err)
				}
			} else if cb.OnSuccess != nil {
				cb.OnSuccess(res)
			}
		}
		if cb.OnClose != nil {
			cb.OnClose()
		}
	}()
	return ex
}

// Abort cancels the exchange. OnError is suppressed for an aborted exchange;
// OnClose still runs.
func (e *Exchange) Abort() {
	e.mu.Lock()
	e.aborted = true
	e.mu.Unlock()
	e.cancel()
}

func (e *Exchange) isAborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborted
}

// Done is closed after OnClose has returned.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}
