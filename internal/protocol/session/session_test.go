package session

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/lpio/internal/logging"
	"github.com/danmuck/lpio/internal/protocol/message"
	"github.com/danmuck/lpio/internal/testutil/testlog"
	"github.com/jonboulle/clockwork"
)

func TestBackoffDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     time.Second,
	})
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := b.Duration(); got != w {
			t.Fatalf("attempt%d got=%v want=%v", i+1, got, w)
		}
	}
	if b.Attempts() != len(want) {
		t.Fatalf("unexpected attempts=%d", b.Attempts())
	}
	b.Reset()
	if b.Attempts() != 0 {
		t.Fatalf("reset should zero attempts, got %d", b.Attempts())
	}
	if got := b.Duration(); got != 100*time.Millisecond {
		t.Fatalf("after reset got=%v", got)
	}
}

func TestBackoffMonotoneAndCapped(t *testing.T) {
	testlog.Start(t)
	b := NewBackoff(BackoffConfig{InitialDelay: 7 * time.Millisecond, Multiplier: 1.7, MaxDelay: 300 * time.Millisecond})
	var prev time.Duration
	for i := 0; i < 50; i++ {
		d := b.Duration()
		if d < prev {
			t.Fatalf("attempt%d decreased: %v < %v", i+1, d, prev)
		}
		if d > b.Max() {
			t.Fatalf("attempt%d exceeded max: %v", i+1, d)
		}
		prev = d
	}
	if prev != b.Max() {
		t.Fatalf("schedule should settle at max, got %v", prev)
	}
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	testlog.Start(t)
	b := NewBackoff(BackoffConfig{InitialDelay: 50 * time.Millisecond, Multiplier: 2, MaxDelay: 400 * time.Millisecond, Jitter: true})
	for i := 0; i < 20; i++ {
		d := b.Duration()
		if d < 50*time.Millisecond || d > 400*time.Millisecond {
			t.Fatalf("jitter out of range: %v", d)
		}
	}
}

func TestDisconnectDuePolicies(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.DisconnectedAfter = 2
	if cfg.DisconnectDue(2, time.Second, 10*time.Second) {
		t.Fatalf("attempts policy fired at threshold")
	}
	if !cfg.DisconnectDue(3, time.Second, 10*time.Second) {
		t.Fatalf("attempts policy should fire past threshold")
	}

	cfg.DisconnectPolicy = DisconnectAtMaxDelay
	if cfg.DisconnectDue(99, time.Second, 10*time.Second) {
		t.Fatalf("max_delay policy fired below max")
	}
	if !cfg.DisconnectDue(0, 10*time.Second, 10*time.Second) {
		t.Fatalf("max_delay policy should fire at max")
	}

	cfg.DisconnectPolicy = DisconnectImmediately
	if !cfg.DisconnectDue(0, 0, time.Second) {
		t.Fatalf("immediate policy should always fire")
	}
}

func TestConfigWithDefaultsAndValidate(t *testing.T) {
	testlog.Start(t)
	cfg := Config{URL: "http://localhost:8080/lpio"}.WithDefaults()
	if cfg.DrainInterval != 200*time.Millisecond || cfg.DisconnectedAfter != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DisconnectPolicy != DisconnectAfterAttempts || cfg.SecurityMode != SecurityModeDevelopment {
		t.Fatalf("unexpected policy defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	bad := cfg
	bad.DisconnectPolicy = "never"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	bad = cfg
	bad.URL = "ftp://localhost/lpio"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for scheme, got %v", err)
	}
}

func TestDefaultConfigSendsBeforeAckDeadline(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	if !cfg.FlushOnDrain {
		t.Fatalf("default must flush parked polls on drain")
	}
	if cfg.DrainInterval >= cfg.AckTimeout {
		t.Fatalf("drain interval %v must be well under ack timeout %v", cfg.DrainInterval, cfg.AckTimeout)
	}
}

func TestValidateIdentity(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	if err := cfg.ValidateIdentity("", ""); err != nil {
		t.Fatalf("identity optional by default: %v", err)
	}
	cfg.RequireID = true
	if err := cfg.ValidateIdentity("", "u"); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
	cfg.RequireUser = true
	if err := cfg.ValidateIdentity("c", ""); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired for user, got %v", err)
	}
	if err := cfg.ValidateIdentity("c", "u"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBufferAddDrainPreservesOrder(t *testing.T) {
	testlog.Start(t)
	b := NewBuffer()
	b.Add(message.Ack("1"))
	b.Add(message.Ack("2"), message.Ack("3"))
	if got := b.Get(); len(got) != 3 || b.Len() != 3 {
		t.Fatalf("peek should not remove: %+v", got)
	}
	batch := b.Drain()
	if len(batch) != 3 || batch[0].ID != "1" || batch[2].ID != "3" {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	if b.Len() != 0 {
		t.Fatalf("drain should empty buffer")
	}
	b.Add(batch...)
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("reset should empty buffer")
	}
}

func TestBufferRequeueKeepsSendOrder(t *testing.T) {
	testlog.Start(t)
	b := NewBuffer()
	b.Add(message.Ack("a"), message.Ack("b"))
	batch := b.Drain()
	b.Add(message.Ack("c"))
	b.Requeue(batch...)
	b.Requeue()
	got := b.Drain()
	if len(got) != 3 || got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Fatalf("requeued batch should precede later adds: %+v", got)
	}
	logging.Logf("session/buffer: requeue order a,b,c")
}

func TestBufferStartDrainsOnInterval(t *testing.T) {
	testlog.Start(t)
	clock := clockwork.NewFakeClock()
	b := NewBuffer()
	batches := make(chan []message.Message, 4)
	stop := b.Start(clock, 200*time.Millisecond, func(batch []message.Message) {
		batches <- batch
	})
	defer stop()

	b.Add(message.Ack("a"), message.Ack("b"))
	clock.Advance(200 * time.Millisecond)
	select {
	case got := <-batches:
		if len(got) != 2 || got[0].ID != "a" {
			t.Fatalf("unexpected drained batch: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("drain did not fire")
	}
	if b.Len() != 0 {
		t.Fatalf("buffer should be empty after drain")
	}

	stop()
	stop()
}

func TestAckTrackerResolveBeforeTimeout(t *testing.T) {
	testlog.Start(t)
	clock := clockwork.NewFakeClock()
	tr := NewAckTracker(clock)
	var calls atomic.Int32
	results := make(chan error, 2)
	if err := tr.Subscribe("m-1", func(err error) {
		calls.Add(1)
		results <- err
	}, 50*time.Millisecond); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !tr.Resolve("m-1") {
		t.Fatalf("expected resolve to find watcher")
	}
	if err := <-results; err != nil {
		t.Fatalf("expected delivery, got %v", err)
	}
	clock.Advance(time.Second)
	if tr.Resolve("m-1") {
		t.Fatalf("duplicate ack must be a no-op")
	}
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("callback fired %d times", calls.Load())
	}
}

func TestAckTrackerTimeout(t *testing.T) {
	testlog.Start(t)
	clock := clockwork.NewFakeClock()
	tr := NewAckTracker(clock)
	results := make(chan error, 2)
	if err := tr.Subscribe("m-1", func(err error) { results <- err }, 50*time.Millisecond); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	pending := tr.Pending()
	if len(pending) != 1 || pending[0].DeadlineAt.Sub(pending[0].QueuedAt) != 50*time.Millisecond {
		t.Fatalf("unexpected pending: %+v", pending)
	}

	clock.Advance(50 * time.Millisecond)
	select {
	case err := <-results:
		if !errors.Is(err, ErrDeliveryTimeout) {
			t.Fatalf("expected ErrDeliveryTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout did not fire")
	}
	if tr.Len() != 0 {
		t.Fatalf("expired entry should be removed")
	}
	if tr.Resolve("m-1") {
		t.Fatalf("late ack must be a no-op")
	}
	select {
	case err := <-results:
		t.Fatalf("second outcome fired: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestAckTrackerDuplicateAndAbandon(t *testing.T) {
	testlog.Start(t)
	clock := clockwork.NewFakeClock()
	tr := NewAckTracker(clock)
	fired := make(chan error, 4)
	cb := func(err error) { fired <- err }
	if err := tr.Subscribe("m-1", cb, time.Second); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := tr.Subscribe("m-1", cb, time.Second); !errors.Is(err, ErrDuplicateMessageID) {
		t.Fatalf("expected ErrDuplicateMessageID, got %v", err)
	}
	if err := tr.Subscribe("m-2", cb, time.Second); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if n := tr.Abandon(); n != 2 {
		t.Fatalf("abandoned=%d", n)
	}
	clock.Advance(2 * time.Second)
	select {
	case err := <-fired:
		t.Fatalf("abandoned watcher fired: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestValidateClientTransportProductionRequiresTLSMTLS(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.SecurityMode = SecurityModeProduction
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}

	cfg.TLS.Enabled = true
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrMTLSRequired) {
		t.Fatalf("expected ErrMTLSRequired, got %v", err)
	}
}

func TestValidateClientTransportMutualRequiresCertKeyCA(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.TLS.Enabled = true
	cfg.TLS.Mutual = true
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSSchemeMismatch) {
		t.Fatalf("expected ErrTLSSchemeMismatch, got %v", err)
	}

	cfg.URL = "https://lpio.local/lpio"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSCAFileRequired) {
		t.Fatalf("expected ErrTLSCAFileRequired, got %v", err)
	}

	cfg.TLS.CAFile = "/tmp/ca.pem"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSCertFileRequired) {
		t.Fatalf("expected ErrTLSCertFileRequired, got %v", err)
	}

	cfg.TLS.CertFile = "/tmp/client.pem"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSKeyFileRequired) {
		t.Fatalf("expected ErrTLSKeyFileRequired, got %v", err)
	}

	cfg.TLS.KeyFile = "/tmp/client.key"
	if err := cfg.ValidateClientTransport(); err != nil {
		t.Fatalf("expected valid transport config, got %v", err)
	}
}

func TestValidateServerTransportProductionRequiresTLSMTLS(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.SecurityMode = SecurityModeProduction
	if err := cfg.ValidateServerTransport(); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}

	cfg.TLS.Enabled = true
	if err := cfg.ValidateServerTransport(); !errors.Is(err, ErrMTLSRequired) {
		t.Fatalf("expected ErrMTLSRequired, got %v", err)
	}
}
