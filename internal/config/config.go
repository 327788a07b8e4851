package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/lpio/internal/protocol/session"
	"github.com/pelletier/go-toml/v2"
)

// ClientConfig is the on-disk schema for one lpio channel.
// Durations are Go duration strings ("250ms", "30s").
type ClientConfig struct {
	Name              string        `toml:"name"`
	URL               string        `toml:"url"`
	ClientID          string        `toml:"client_id"`
	UserID            string        `toml:"user_id"`
	RequireID         bool          `toml:"require_id"`
	RequireUser       bool          `toml:"require_user"`
	ExchangeTimeout   string        `toml:"exchange_timeout"`
	AckTimeout        string        `toml:"ack_timeout"`
	DrainInterval     string        `toml:"drain_interval"`
	HeartbeatInterval string        `toml:"heartbeat_interval"`
	DisconnectedAfter int           `toml:"disconnected_after"`
	DisconnectPolicy  string        `toml:"disconnect_policy"`
	FlushOnDrain      bool          `toml:"flush_on_drain"`
	SecurityMode      string        `toml:"security_mode"`
	AuthToken         string        `toml:"auth_token"`
	Backoff           BackoffConfig `toml:"backoff"`
	TLS               TLSConfig     `toml:"tls"`
}

type BackoffConfig struct {
	Initial    string  `toml:"initial"`
	Max        string  `toml:"max"`
	Multiplier float64 `toml:"multiplier"`
	Jitter     bool    `toml:"jitter"`
}

type TLSConfig struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// DefaultClientConfig holds the file defaults that a zero value cannot express.
// Keys absent from a file keep these values.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Name:         "lpio",
		FlushOnDrain: session.DefaultConfig().FlushOnDrain,
	}
}

// LoadClientConfig reads path strictly: unknown keys are rejected.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "lpio"
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return fmt.Errorf("client config missing url")
	}
	durations := map[string]string{
		"exchange_timeout":   cfg.ExchangeTimeout,
		"ack_timeout":        cfg.AckTimeout,
		"drain_interval":     cfg.DrainInterval,
		"heartbeat_interval": cfg.HeartbeatInterval,
		"backoff.initial":    cfg.Backoff.Initial,
		"backoff.max":        cfg.Backoff.Max,
	}
	for key, raw := range durations {
		if _, err := parseDuration(raw); err != nil {
			return fmt.Errorf("%s invalid: %w", key, err)
		}
	}
	if cfg.DisconnectedAfter < 0 {
		return fmt.Errorf("disconnected_after must not be negative")
	}
	if cfg.Backoff.Multiplier != 0 && cfg.Backoff.Multiplier < 1 {
		return fmt.Errorf("backoff.multiplier must be >= 1")
	}
	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	return sc.Validate()
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}
