package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/lpio/internal/config"
	"github.com/danmuck/lpio/internal/protocol/session"
	"github.com/spf13/cobra"
)

type fileConfig struct {
	Name              string `toml:"name"`
	URL               string `toml:"url"`
	ClientID          string `toml:"client_id"`
	UserID            string `toml:"user_id"`
	RequireID         bool   `toml:"require_id"`
	RequireUser       bool   `toml:"require_user"`
	ExchangeTimeout   string `toml:"exchange_timeout"`
	AckTimeout        string `toml:"ack_timeout"`
	DrainInterval     string `toml:"drain_interval"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
	DisconnectedAfter int    `toml:"disconnected_after"`
	DisconnectPolicy  string `toml:"disconnect_policy"`
	FlushOnDrain      bool   `toml:"flush_on_drain"`
	SecurityMode      string `toml:"security_mode"`
	AuthToken         string `toml:"auth_token"`
	Backoff           struct {
		Initial    string  `toml:"initial"`
		Max        string  `toml:"max"`
		Multiplier float64 `toml:"multiplier"`
		Jitter     bool    `toml:"jitter"`
	} `toml:"backoff"`
	TLS config.TLSConfig `toml:"tls"`
}

// loadChannelConfig overlays the keys present in path onto session.DefaultConfig.
func loadChannelConfig(path string) (session.Config, error) {
	cfg := session.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return session.Config{}, fmt.Errorf("load channel config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return session.Config{}, fmt.Errorf("load channel config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		if v := strings.TrimSpace(raw.Name); v != "" {
			cfg.Name = v
		}
	}
	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("client_id") {
		cfg.ClientID = strings.TrimSpace(raw.ClientID)
	}
	if meta.IsDefined("user_id") {
		cfg.UserID = strings.TrimSpace(raw.UserID)
	}
	if meta.IsDefined("require_id") {
		cfg.RequireID = raw.RequireID
	}
	if meta.IsDefined("require_user") {
		cfg.RequireUser = raw.RequireUser
	}
	if meta.IsDefined("disconnected_after") {
		cfg.DisconnectedAfter = raw.DisconnectedAfter
	}
	if meta.IsDefined("disconnect_policy") {
		cfg.DisconnectPolicy = session.DisconnectPolicy(strings.ToLower(strings.TrimSpace(raw.DisconnectPolicy)))
	}
	if meta.IsDefined("flush_on_drain") {
		cfg.FlushOnDrain = raw.FlushOnDrain
	}
	if meta.IsDefined("security_mode") {
		cfg.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	if meta.IsDefined("auth_token") {
		cfg.AuthToken = strings.TrimSpace(raw.AuthToken)
	}
	if meta.IsDefined("backoff", "multiplier") {
		cfg.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Backoff.Jitter = raw.Backoff.Jitter
	}
	if meta.IsDefined("tls") {
		cfg.TLS = raw.TLS.Session()
	}

	durations := []struct {
		key  []string
		raw  string
		into *time.Duration
	}{
		{[]string{"exchange_timeout"}, raw.ExchangeTimeout, &cfg.ExchangeTimeout},
		{[]string{"ack_timeout"}, raw.AckTimeout, &cfg.AckTimeout},
		{[]string{"drain_interval"}, raw.DrainInterval, &cfg.DrainInterval},
		{[]string{"heartbeat_interval"}, raw.HeartbeatInterval, &cfg.HeartbeatInterval},
		{[]string{"backoff", "initial"}, raw.Backoff.Initial, &cfg.Backoff.InitialDelay},
		{[]string{"backoff", "max"}, raw.Backoff.Max, &cfg.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return session.Config{}, fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.into = v
	}
	return cfg, nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or validate channel config files",
	}

	var output, kind string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(output, kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", kind, output)
			return nil
		},
	}
	initCmd.Flags().StringVar(&output, "output", "lpio.toml", "output path")
	initCmd.Flags().StringVar(&kind, "kind", "client", "template kind: client|mtls")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	var input string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Strictly validate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadClientConfig(input); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated config at %s\n", input)
			return nil
		},
	}
	validateCmd.Flags().StringVar(&input, "input", "lpio.toml", "config path")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
