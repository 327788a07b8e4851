package config

import (
	"strings"

	"github.com/danmuck/lpio/internal/protocol/session"
)

// SessionConfig converts the file schema to a session.Config with defaults applied.
func (cfg ClientConfig) SessionConfig() (session.Config, error) {
	out := session.Config{
		Name:              strings.TrimSpace(cfg.Name),
		URL:               strings.TrimSpace(cfg.URL),
		ClientID:          strings.TrimSpace(cfg.ClientID),
		UserID:            strings.TrimSpace(cfg.UserID),
		RequireID:         cfg.RequireID,
		RequireUser:       cfg.RequireUser,
		DisconnectedAfter: cfg.DisconnectedAfter,
		DisconnectPolicy:  session.DisconnectPolicy(strings.ToLower(strings.TrimSpace(cfg.DisconnectPolicy))),
		FlushOnDrain:      cfg.FlushOnDrain,
		SecurityMode:      session.SecurityMode(cfg.SecurityMode),
		Backoff: session.BackoffConfig{
			Multiplier: cfg.Backoff.Multiplier,
			Jitter:     cfg.Backoff.Jitter,
		},
		TLS:       cfg.TLS.Session(),
		AuthToken: strings.TrimSpace(cfg.AuthToken),
	}
	var err error
	if out.ExchangeTimeout, err = parseDuration(cfg.ExchangeTimeout); err != nil {
		return session.Config{}, err
	}
	if out.AckTimeout, err = parseDuration(cfg.AckTimeout); err != nil {
		return session.Config{}, err
	}
	if out.DrainInterval, err = parseDuration(cfg.DrainInterval); err != nil {
		return session.Config{}, err
	}
	if out.HeartbeatInterval, err = parseDuration(cfg.HeartbeatInterval); err != nil {
		return session.Config{}, err
	}
	if out.Backoff.InitialDelay, err = parseDuration(cfg.Backoff.Initial); err != nil {
		return session.Config{}, err
	}
	if out.Backoff.MaxDelay, err = parseDuration(cfg.Backoff.Max); err != nil {
		return session.Config{}, err
	}
	return out.WithDefaults(), nil
}

func (t TLSConfig) Session() session.TLSConfig {
	return session.TLSConfig{
		Enabled:            t.Enabled,
		Mutual:             t.Mutual,
		CertFile:           strings.TrimSpace(t.CertFile),
		KeyFile:            strings.TrimSpace(t.KeyFile),
		CAFile:             strings.TrimSpace(t.CAFile),
		ServerName:         strings.TrimSpace(t.ServerName),
		InsecureSkipVerify: t.InsecureSkipVerify,
	}
}
