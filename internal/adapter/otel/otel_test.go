package otel

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/config"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.Telemetry{}, "verdant", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNewMetricsOnNoopProvider(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.TurnsStarted.Add(context.Background(), 1)
	m.TurnCarbon.Record(context.Background(), 0.001)
}

func TestSpansOnNoopProvider(t *testing.T) {
	ctx, span := StartTurnSpan(context.Background(), "conversation1", "light")
	_, attempt := StartAttemptSpan(ctx, "openai/gpt-5-nano", 1, true)
	attempt.End()
	span.End()
}

func TestEndpointOptions(t *testing.T) {
	if n := len(traceOptions("collector:4317", true)); n != 2 {
		t.Fatalf("expected endpoint + insecure, got %d options", n)
	}
	if n := len(metricOptions("https://collector:4317", false)); n != 1 {
		t.Fatalf("expected endpoint url only, got %d options", n)
	}
}
