package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewFileOutput(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain.log")
	rotated := filepath.Join(dir, "sub", "rotated.log")

	l, err := New(Config{Level: "debug", Format: "json", Outputs: []string{plain}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Debug("plain line", zap.String("k", "v"))
	_ = l.Sync()

	r, err := New(Config{Format: "console", Outputs: []string{rotated}, Rotate: RotateConfig{Enabled: true}})
	if err != nil {
		t.Fatalf("new rotated: %v", err)
	}
	r.Info("rotated line")
	r.Debug("filtered at info level")
	_ = r.Sync()

	data, err := os.ReadFile(plain)
	if err != nil {
		t.Fatalf("read plain: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"plain line"`) || !strings.Contains(string(data), `"k":"v"`) {
		t.Fatalf("plain log = %s", data)
	}

	data, err = os.ReadFile(rotated)
	if err != nil {
		t.Fatalf("read rotated: %v", err)
	}
	if !strings.Contains(string(data), "rotated line") || strings.Contains(string(data), "filtered") {
		t.Fatalf("rotated log = %s", data)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "debug",
		"WARN":    "warn",
		"warning": "warn",
		"error":   "error",
		"":        "info",
		"bogus":   "info",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
