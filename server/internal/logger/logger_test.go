package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nusantararadius/notifyhub/server/internal/config"
)

func TestNew_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(&buf, config.LoggingConfig{Level: "info", Format: "json", Service: "test-svc"})
	l.Info("hello", "k", 1)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if rec["service"] != "test-svc" {
		t.Errorf("service: got %v, want test-svc", rec["service"])
	}
	if rec["msg"] != "hello" {
		t.Errorf("msg: got %v, want hello", rec["msg"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(&buf, config.LoggingConfig{Level: "info", Format: "text"})
	l.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output: got %q", buf.String())
	}
}

func TestNew_LevelVarChangesAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	l, level := New(&buf, config.LoggingConfig{Level: "warn", Format: "json"})

	l.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}

	level.Set(slog.LevelDebug)
	l.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug not logged after level change: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"ERROR", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
