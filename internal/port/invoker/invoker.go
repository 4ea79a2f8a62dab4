// Package invoker defines the port for running one model completion attempt
// and the newline-delimited JSON event protocol the attempt reports with.
package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/cost"
)

// Kind tags an attempt event.
type Kind string

// Event kinds of the invocation protocol.
const (
	KindToken Kind = "token"
	KindFinal Kind = "final"
	KindUsage Kind = "usage"
	KindError Kind = "error"
)

// Event is one decoded line of attempt output. Exactly the fields of its Kind
// are set.
type Event struct {
	Kind         Kind
	Token        string
	Text         string
	FinishReason string
	Usage        *cost.Usage
	Message      string
}

// Request carries everything a single attempt needs.
type Request struct {
	Message           string
	ConversationID    string
	ConversationPath  string
	Model             string
	MaxTokens         int
	AvailableModels   []string
	HistoryWindow     int
	HistorySummaryMax int
	Stream            bool
}

// Invoker starts model attempts.
type Invoker interface {
	// Invoke starts an attempt. The returned channel yields its events and is
	// closed once the attempt has fully stopped. Cancelling ctx stops it.
	Invoke(ctx context.Context, req Request) (<-chan Event, error)
}

// Args renders req as command-line flags of the invocation process.
func Args(req Request) []string {
	args := []string{
		"--message", req.Message,
		"--conversation-json-path", req.ConversationPath,
		"--conversation-id", req.ConversationID,
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.MaxTokens > 0 {
		args = append(args, "--max-tokens", fmt.Sprint(req.MaxTokens))
	}
	if len(req.AvailableModels) > 0 {
		args = append(args, "--available-models", strings.Join(req.AvailableModels, ","))
	}
	if req.HistoryWindow > 0 {
		args = append(args, "--history-window-messages", fmt.Sprint(req.HistoryWindow))
	}
	if req.HistorySummaryMax > 0 {
		args = append(args, "--history-summary-max-chars", fmt.Sprint(req.HistorySummaryMax))
	}
	args = append(args, fmt.Sprintf("--stream=%t", req.Stream))
	return args
}

// wireEvent is the JSON shape of one protocol line.
type wireEvent struct {
	Type             Kind     `json:"type"`
	Token            string   `json:"token,omitempty"`
	Text             string   `json:"text,omitempty"`
	FinishReason     string   `json:"finish_reason,omitempty"`
	PromptTokens     *int     `json:"prompt_tokens,omitempty"`
	CompletionTokens *int     `json:"completion_tokens,omitempty"`
	TotalTokens      *int     `json:"total_tokens,omitempty"`
	CarbonKg         *float64 `json:"carbon_kg,omitempty"`
	Message          string   `json:"message,omitempty"`
}

// Prefixes of error events the invoker synthesizes itself rather than
// relaying from the process. Their text is diagnostic, not client-facing.
const (
	ProcessFailedPrefix = "invocation process failed"
	ReadFailedPrefix    = "read invocation output"
)

// ErrUnknownEvent is returned by Decode for lines that are JSON but carry no
// known event type.
var ErrUnknownEvent = errors.New("unknown event type")

// Decode parses one protocol line.
func Decode(line []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	switch w.Type {
	case KindToken:
		return Event{Kind: KindToken, Token: w.Token}, nil
	case KindFinal:
		reason := w.FinishReason
		if reason == "" {
			reason = "stop"
		}
		return Event{Kind: KindFinal, Text: w.Text, FinishReason: reason}, nil
	case KindUsage:
		u := &cost.Usage{
			PromptTokens:     nonNegative(w.PromptTokens),
			CompletionTokens: nonNegative(w.CompletionTokens),
			TotalTokens:      nonNegative(w.TotalTokens),
		}
		if u.TotalTokens == 0 {
			u.TotalTokens = u.PromptTokens + u.CompletionTokens
		}
		if w.CarbonKg != nil && *w.CarbonKg >= 0 {
			kg := *w.CarbonKg
			u.CarbonKg = &kg
		}
		return Event{Kind: KindUsage, Usage: u}, nil
	case KindError:
		msg := strings.TrimSpace(w.Message)
		if msg == "" {
			msg = "model invocation failed"
		}
		return Event{Kind: KindError, Message: msg}, nil
	default:
		return Event{}, fmt.Errorf("%w %q", ErrUnknownEvent, w.Type)
	}
}

// Encode renders ev as one protocol line without the trailing newline.
func Encode(ev Event) ([]byte, error) {
	w := wireEvent{Type: ev.Kind}
	switch ev.Kind {
	case KindToken:
		w.Token = ev.Token
	case KindFinal:
		w.Text = ev.Text
		w.FinishReason = ev.FinishReason
	case KindUsage:
		if ev.Usage == nil {
			return nil, errors.New("usage event without usage")
		}
		p, c, t := ev.Usage.PromptTokens, ev.Usage.CompletionTokens, ev.Usage.TotalTokens
		w.PromptTokens, w.CompletionTokens, w.TotalTokens = &p, &c, &t
		w.CarbonKg = ev.Usage.CarbonKg
	case KindError:
		w.Message = ev.Message
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, ev.Kind)
	}
	return json.Marshal(w)
}

func nonNegative(v *int) int {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
