package service

import "github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/cost"

// UI message stream part types.
const (
	PartStart       = "start"
	PartTextStart   = "text-start"
	PartTextDelta   = "text-delta"
	PartTextEnd     = "text-end"
	PartCarbonStats = "data-carbon-stats"
	PartError       = "error"
	PartFinish      = "finish"
)

// Part is one event of the UI message stream.
type Part struct {
	Type         string      `json:"type"`
	MessageID    string      `json:"messageId,omitempty"`
	ID           string      `json:"id,omitempty"`
	Delta        string      `json:"delta,omitempty"`
	Data         *cost.Stats `json:"data,omitempty"`
	ErrorText    string      `json:"errorText,omitempty"`
	FinishReason string      `json:"finishReason,omitempty"`
}

// StreamWriter receives the parts of one turn in order. Implementations need
// not be safe for concurrent use; the relay writes from one goroutine at a
// time.
type StreamWriter interface {
	WritePart(p Part) error
}
