package session

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultPath = "/lpio"
	DefaultURL  = "http://127.0.0.1:3000" + DefaultPath
)

var (
	ErrInvalidConfig    = errors.New("session: invalid config")
	ErrIdentityRequired = errors.New("session: identity required")
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DisconnectPolicy selects when a failing connected channel reports disconnected.
type DisconnectPolicy string

const (
	// DisconnectAfterAttempts fires once the failures already retried exceed DisconnectedAfter.
	DisconnectAfterAttempts DisconnectPolicy = "attempts"
	// DisconnectAtMaxDelay fires once the backoff delay reaches its cap.
	DisconnectAtMaxDelay DisconnectPolicy = "max_delay"
	// DisconnectImmediately fires on the first failure after a success.
	DisconnectImmediately DisconnectPolicy = "immediate"
)

type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines one channel's endpoint, identity and reliability settings.
type Config struct {
	Name              string
	URL               string
	ClientID          string
	UserID            string
	RequireID         bool
	RequireUser       bool
	ExchangeTimeout   time.Duration
	AckTimeout        time.Duration
	DrainInterval     time.Duration
	HeartbeatInterval time.Duration
	DisconnectedAfter int
	DisconnectPolicy  DisconnectPolicy
	// FlushOnDrain lets a drain carrying messages cut a parked poll short, so a
	// send never waits out a held exchange before it is transmitted.
	FlushOnDrain      bool
	Backoff           BackoffConfig
	SecurityMode      SecurityMode
	TLS               TLSConfig
	// AuthToken is sent as a bearer token on every exchange when set.
	AuthToken string
}

func DefaultConfig() Config {
	return Config{
		Name:              "lpio",
		URL:               DefaultURL,
		ExchangeTimeout:   30 * time.Second,
		AckTimeout:        10 * time.Second,
		DrainInterval:     200 * time.Millisecond,
		DisconnectedAfter: 5,
		DisconnectPolicy:  DisconnectAfterAttempts,
		FlushOnDrain:      true,
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     10 * time.Second,
			Jitter:       false,
		},
		SecurityMode: SecurityModeDevelopment,
	}
}

// WithDefaults fills every zero-valued field from DefaultConfig.
// HeartbeatInterval stays zero (disabled) unless set.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.Name) == "" {
		c.Name = d.Name
	}
	if strings.TrimSpace(c.URL) == "" {
		c.URL = d.URL
	}
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = d.ExchangeTimeout
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = d.AckTimeout
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = d.DrainInterval
	}
	if c.DisconnectedAfter <= 0 {
		c.DisconnectedAfter = d.DisconnectedAfter
	}
	if strings.TrimSpace(string(c.DisconnectPolicy)) == "" {
		c.DisconnectPolicy = d.DisconnectPolicy
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = d.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = d.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = d.Backoff.MaxDelay
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	return c
}

func (c Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.URL))
	if err != nil {
		return fmt.Errorf("%w: url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url scheme %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url host required", ErrInvalidConfig)
	}
	switch c.DisconnectPolicy {
	case DisconnectAfterAttempts, DisconnectAtMaxDelay, DisconnectImmediately:
	default:
		return fmt.Errorf("%w: disconnect policy %q", ErrInvalidConfig, c.DisconnectPolicy)
	}
	if c.ExchangeTimeout <= 0 || c.AckTimeout <= 0 || c.DrainInterval <= 0 {
		return fmt.Errorf("%w: timeouts and drain interval must be positive", ErrInvalidConfig)
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("%w: heartbeat interval must not be negative", ErrInvalidConfig)
	}
	if c.Backoff.MaxDelay < c.Backoff.InitialDelay {
		return fmt.Errorf("%w: backoff max %v below initial %v", ErrInvalidConfig, c.Backoff.MaxDelay, c.Backoff.InitialDelay)
	}
	return c.ValidateClientTransport()
}

// ValidateIdentity enforces RequireID/RequireUser against the current identity.
func (c Config) ValidateIdentity(clientID, userID string) error {
	if c.RequireID && strings.TrimSpace(clientID) == "" {
		return fmt.Errorf("%w: client id", ErrIdentityRequired)
	}
	if c.RequireUser && strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id", ErrIdentityRequired)
	}
	return nil
}

// DisconnectDue reports whether a failure should surface as disconnected.
// attempts is the backoff attempt count before this failure, delay the retry
// delay computed for it.
func (c Config) DisconnectDue(attempts int, delay, ceiling time.Duration) bool {
	switch c.DisconnectPolicy {
	case DisconnectImmediately:
		return true
	case DisconnectAtMaxDelay:
		return delay >= ceiling
	default:
		return attempts > c.DisconnectedAfter
	}
}
