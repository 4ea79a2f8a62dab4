package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "verdant"

// Metrics holds all Verdant metric instruments.
type Metrics struct {
	TurnsStarted   metric.Int64Counter
	TurnsCompleted metric.Int64Counter
	TurnsFailed    metric.Int64Counter
	TierDecisions  metric.Int64Counter
	ModelAttempts  metric.Int64Counter
	Failovers      metric.Int64Counter
	ToolFailures   metric.Int64Counter
	TurnDuration   metric.Float64Histogram
	TurnCarbon     metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TurnsStarted, err = meter.Int64Counter("verdant.turns.started",
		metric.WithDescription("Number of chat turns started"))
	if err != nil {
		return nil, err
	}

	m.TurnsCompleted, err = meter.Int64Counter("verdant.turns.completed",
		metric.WithDescription("Number of chat turns completed"))
	if err != nil {
		return nil, err
	}

	m.TurnsFailed, err = meter.Int64Counter("verdant.turns.failed",
		metric.WithDescription("Number of chat turns failed"))
	if err != nil {
		return nil, err
	}

	m.TierDecisions, err = meter.Int64Counter("verdant.routing.decisions",
		metric.WithDescription("Routing decisions by tier"))
	if err != nil {
		return nil, err
	}

	m.ModelAttempts, err = meter.Int64Counter("verdant.model.attempts",
		metric.WithDescription("Model invocation attempts"))
	if err != nil {
		return nil, err
	}

	m.Failovers, err = meter.Int64Counter("verdant.model.failovers",
		metric.WithDescription("Fail-overs to the next candidate model"))
	if err != nil {
		return nil, err
	}

	m.ToolFailures, err = meter.Int64Counter("verdant.tools.failures",
		metric.WithDescription("Tool context builders that fell back to the unavailable instruction"))
	if err != nil {
		return nil, err
	}

	m.TurnDuration, err = meter.Float64Histogram("verdant.turn.duration_seconds",
		metric.WithDescription("Chat turn duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.TurnCarbon, err = meter.Float64Histogram("verdant.turn.carbon_kg",
		metric.WithDescription("Estimated CO2e of a chat turn in kilograms"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
