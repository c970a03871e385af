package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadLinkConfigDefaults(t *testing.T) {
	path := writeFile(t, `
transport:
  kind: quic
  address: 127.0.0.1:4433
quic:
  insecure_skip_verify: true
  keep_alive: 5s
`)
	cfg, err := LoadLinkConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport.Role != "initiator" {
		t.Errorf("role = %q", cfg.Transport.Role)
	}
	if !cfg.QUIC.InsecureSkipVerify || cfg.QUIC.KeepAlive != 5*time.Second {
		t.Errorf("quic = %+v", cfg.QUIC)
	}
	if cfg.QUIC.ALPN != "linkkit" || cfg.QUIC.MaxMessageSize != 1<<20 {
		t.Errorf("quic defaults = %+v", cfg.QUIC)
	}
	if cfg.WebSocket.Path != "/" || cfg.WebSocket.HandshakeTimeout != 10*time.Second {
		t.Errorf("websocket defaults = %+v", cfg.WebSocket)
	}
	if cfg.Log.Level != "info" || len(cfg.Log.Outputs) != 1 || cfg.Log.Outputs[0] != "stdout" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
	if cfg.Events.Enabled() {
		t.Errorf("events enabled without brokers")
	}
}

func TestLoadLinkConfigInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"kind", "transport:\n  kind: carrier-pigeon\n", "transport.kind"},
		{"role", "transport:\n  role: bystander\n", "transport.role"},
		{"target", "transport:\n  target: mainframe\n", "transport.target"},
		{"cert pair", "quic:\n  cert_file: a.pem\n", "cert_file"},
		{"log format", "log:\n  format: xml\n", "log.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadLinkConfig(writeFile(t, tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadSignalConfig(t *testing.T) {
	cfg, err := LoadSignalConfig(writeFile(t, `
server:
  addr: 127.0.0.1:7000
auth:
  secret: s3cret
  required: true
events:
  brokers: [localhost:9092]
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Path != "/signal" || cfg.Server.HealthAddr != ":7001" {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if !cfg.Events.Enabled() || cfg.Events.Topic != "linkkit.signaling.events" {
		t.Errorf("events = %+v", cfg.Events)
	}
}

func TestLoadSignalConfigRequiresSecret(t *testing.T) {
	_, err := LoadSignalConfig(writeFile(t, "auth:\n  required: true\n"))
	if err == nil || !strings.Contains(err.Error(), "auth.secret") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadLinkConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestShippedConfigs(t *testing.T) {
	link, err := LoadLinkConfig("../../configs/linkctl.yaml")
	if err != nil {
		t.Fatalf("linkctl.yaml: %v", err)
	}
	if link.Transport.Kind != "websocket" || link.WebRTC.Signaling.URL == "" {
		t.Fatalf("linkctl.yaml = %+v", link.Transport)
	}

	sig, err := LoadSignalConfig("../../configs/signald.yaml")
	if err != nil {
		t.Fatalf("signald.yaml: %v", err)
	}
	if sig.Server.GRPCHealthAddr != ":7002" || sig.Events.Enabled() {
		t.Fatalf("signald.yaml = %+v", sig.Server)
	}
	if sig.Events.BatchTimeout != 50*time.Millisecond {
		t.Fatalf("batch_timeout = %s", sig.Events.BatchTimeout)
	}
}
