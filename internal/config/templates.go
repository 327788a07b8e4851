package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "client":
		return clientTemplate, nil
	case "mtls":
		return mtlsTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clientTemplate = `name = "lpio"
url = "http://127.0.0.1:3000/lpio"
user_id = ""
exchange_timeout = "30s"
ack_timeout = "10s"
drain_interval = "200ms"
heartbeat_interval = "25s"
disconnected_after = 5
disconnect_policy = "attempts"
flush_on_drain = true
security_mode = "development"

[backoff]
initial = "100ms"
max = "10s"
multiplier = 2.0
jitter = false
`

const mtlsTemplate = `name = "lpio"
url = "https://lpio.internal:3443/lpio"
exchange_timeout = "30s"
ack_timeout = "10s"
drain_interval = "200ms"
heartbeat_interval = "25s"
disconnect_policy = "max_delay"
flush_on_drain = true
security_mode = "production"

[backoff]
initial = "250ms"
max = "5s"
multiplier = 2.0

[tls]
enabled = true
mutual = true
cert_file = "certs/client.crt"
key_file = "certs/client.key"
ca_file = "certs/ca.crt"
`
