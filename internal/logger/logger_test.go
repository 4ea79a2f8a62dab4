package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc"}
	l, closer := New(cfg)
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc", Async: true}
	l, closer := New(cfg)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
}

func TestLoggerAddsServiceAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "verdant"}, &buf)
	ctx := WithConversationID(WithRequestID(context.Background(), "req-9"), "conversation1")
	l.InfoContext(ctx, "chat stream started")
	closer.Close()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["service"] != "verdant" {
		t.Errorf("expected service attribute, got %v", rec["service"])
	}
	if rec["request_id"] != "req-9" {
		t.Errorf("expected request_id req-9, got %v", rec["request_id"])
	}
	if rec["conversation_id"] != "conversation1" {
		t.Errorf("expected conversation_id, got %v", rec["conversation_id"])
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "warn", Service: "verdant"}, &buf)
	l.Info("dropped")
	closer.Close()
	if buf.Len() != 0 {
		t.Fatalf("info record should be filtered at warn, got %q", buf.String())
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
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()

	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
}

func TestAsyncLoggerKeepsContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "verdant", Async: true}, &buf)
	l.InfoContext(WithRequestID(context.Background(), "req-async"), "queued")
	closer.Close()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["request_id"] != "req-async" {
		t.Errorf("request id lost across the async queue: %v", rec)
	}
}
