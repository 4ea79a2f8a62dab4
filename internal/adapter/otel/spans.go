package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "verdant"

// StartTurnSpan starts a span for one chat turn.
func StartTurnSpan(ctx context.Context, conversationID, tier string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "chat.turn",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("routing.tier", tier),
		),
	)
}

// StartAttemptSpan starts a span for one model attempt within a turn.
func StartAttemptSpan(ctx context.Context, model string, attempt int, stream bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "model.attempt",
		trace.WithAttributes(
			attribute.String("model.name", model),
			attribute.Int("model.attempt", attempt),
			attribute.Bool("model.stream", stream),
		),
	)
}

// StartToolSpan starts a span for a tool context builder.
func StartToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool.context",
		trace.WithAttributes(attribute.String("tool.name", tool)),
	)
}
