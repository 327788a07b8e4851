package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/lpio/internal/protocol/session"
	"github.com/danmuck/lpio/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lpio.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadChannelConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, `
url = "http://10.0.0.5:3000/lpio"
user_id = "alice"
ack_timeout = "2s"
disconnect_policy = "Immediate"

[backoff]
max = "3s"
`)
	cfg, err := loadChannelConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := session.DefaultConfig()
	if cfg.URL != "http://10.0.0.5:3000/lpio" {
		t.Fatalf("unexpected url: %q", cfg.URL)
	}
	if cfg.UserID != "alice" {
		t.Fatalf("unexpected user: %q", cfg.UserID)
	}
	if cfg.AckTimeout != 2*time.Second {
		t.Fatalf("unexpected ack timeout: %v", cfg.AckTimeout)
	}
	if cfg.ExchangeTimeout != def.ExchangeTimeout {
		t.Fatalf("exchange timeout should keep default, got %v", cfg.ExchangeTimeout)
	}
	if cfg.DisconnectPolicy != session.DisconnectImmediately {
		t.Fatalf("unexpected policy: %q", cfg.DisconnectPolicy)
	}
	if cfg.Backoff.MaxDelay != 3*time.Second || cfg.Backoff.InitialDelay != def.Backoff.InitialDelay {
		t.Fatalf("unexpected backoff: %+v", cfg.Backoff)
	}
	if cfg.Name != def.Name {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
}

func TestLoadChannelConfigTLSTable(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, `
url = "https://lpio.internal/lpio"

[tls]
enabled = true
mutual = true
cert_file = "c.crt"
key_file = "c.key"
ca_file = "ca.crt"
`)
	cfg, err := loadChannelConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.TLS.Enabled || !cfg.TLS.Mutual {
		t.Fatalf("expected mtls enabled: %+v", cfg.TLS)
	}
	if cfg.TLS.CertFile != "c.crt" || cfg.TLS.KeyFile != "c.key" || cfg.TLS.CAFile != "ca.crt" {
		t.Fatalf("unexpected tls files: %+v", cfg.TLS)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadChannelConfigBadDuration(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "heartbeat_interval = \"abc\"\n")
	_, err := loadChannelConfig(path)
	if err == nil || !strings.Contains(err.Error(), "heartbeat_interval") {
		t.Fatalf("expected heartbeat_interval parse error, got %v", err)
	}
}

func TestLoadChannelConfigUnknownKey(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "retries = 4\n")
	if _, err := loadChannelConfig(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestConnectOptionsFlagsOverrideFile(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "url = \"http://10.0.0.5:3000/lpio\"\nuser_id = \"alice\"\n")
	cfg, err := connectOptions{configPath: path, url: "http://127.0.0.1:4000", user: "carol"}.channelConfig()
	if err != nil {
		t.Fatalf("channel config: %v", err)
	}
	if cfg.URL != "http://127.0.0.1:4000" || cfg.UserID != "carol" {
		t.Fatalf("flags did not override file: url=%q user=%q", cfg.URL, cfg.UserID)
	}
	if _, err := (connectOptions{url: "ftp://nope"}).channelConfig(); err == nil {
		t.Fatalf("expected invalid url error")
	}
}

func TestConfigInitAndValidateCommands(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "lpio.toml")
	var out bytes.Buffer
	cmd := newConfigCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init", "--output", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}

	cmd = newConfigCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"validate", "--input", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out.String(), "validated config") {
		t.Fatalf("unexpected output: %q", out.String())
	}

	// the template must also load through the overlay used by connect.
	if _, err := loadChannelConfig(path); err != nil {
		t.Fatalf("overlay load of template: %v", err)
	}
}
