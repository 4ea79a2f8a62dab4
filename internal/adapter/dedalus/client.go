// Package dedalus calls the OpenAI-compatible chat completion API that
// serves every routed model.
package dedalus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/cost"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/history"
)

// Error messages the relay recognizes as the empty response class.
const (
	MsgEmptyResponse = "Dedalus returned an empty assistant response."
	MsgNoChoices     = "Dedalus returned no completion choices."
)

const maxErrorDetail = 500

// Request is one completion call.
type Request struct {
	Model     string
	Messages  []history.ChatMessage
	MaxTokens int
	Stream    bool
}

// Completion is the outcome of a call.
type Completion struct {
	Text         string
	FinishReason string
	Usage        *cost.Usage
}

// Client talks to the upstream API.
type Client struct {
	api *openai.Client
}

// NewClient creates a new upstream client.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{api: openai.NewClientWithConfig(cfg)}
}

// Complete runs req. When streaming, onToken receives every text fragment.
func (c *Client) Complete(ctx context.Context, req Request, onToken func(string)) (Completion, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	creq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		creq.MaxTokens = req.MaxTokens
	}
	if !req.Stream {
		return c.complete(ctx, creq)
	}
	creq.Stream = true
	creq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	return c.stream(ctx, creq, onToken)
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (Completion, error) {
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, friendly(err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New(MsgNoChoices)
	}
	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		return Completion{}, errors.New(MsgEmptyResponse)
	}
	return Completion{
		Text:         choice.Message.Content,
		FinishReason: mapFinishReason(string(choice.FinishReason)),
		Usage:        usageOf(&resp.Usage),
	}, nil
}

func (c *Client) stream(ctx context.Context, req openai.ChatCompletionRequest, onToken func(string)) (Completion, error) {
	s, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return Completion{}, friendly(err)
	}
	defer func() { _ = s.Close() }()

	var text strings.Builder
	out := Completion{FinishReason: "stop"}
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Completion{}, friendly(err)
		}
		if out.Usage == nil {
			out.Usage = usageOf(chunk.Usage)
		}
		for _, choice := range chunk.Choices {
			if tok := choice.Delta.Content; tok != "" {
				text.WriteString(tok)
				if onToken != nil {
					onToken(tok)
				}
			}
			if choice.FinishReason != "" {
				out.FinishReason = mapFinishReason(string(choice.FinishReason))
			}
		}
	}
	out.Text = text.String()
	return out, nil
}

func usageOf(u *openai.Usage) *cost.Usage {
	if u == nil || u.PromptTokens+u.CompletionTokens+u.TotalTokens == 0 {
		return nil
	}
	out := &cost.Usage{
		PromptTokens:     max(u.PromptTokens, 0),
		CompletionTokens: max(u.CompletionTokens, 0),
		TotalTokens:      max(u.TotalTokens, 0),
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}
	return out
}

func mapFinishReason(reason string) string {
	switch reason {
	case "":
		return "stop"
	case "content_filter":
		return "content-filter"
	case "tool_calls":
		return "tool-calls"
	default:
		return reason
	}
}

// friendly rewrites client errors into the messages the relay classifies.
func friendly(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			return fmt.Errorf("Dedalus request failed with status %d.", apiErr.HTTPStatusCode) //nolint:stylecheck // surfaced to users verbatim
		}
		return fmt.Errorf("Dedalus request failed with status %d. %s", apiErr.HTTPStatusCode, truncate(msg)) //nolint:stylecheck // surfaced to users verbatim
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := strings.TrimSpace(string(reqErr.Body))
		if detail == "" {
			return fmt.Errorf("Dedalus request failed with status %d.", reqErr.HTTPStatusCode) //nolint:stylecheck // surfaced to users verbatim
		}
		return fmt.Errorf("Dedalus request failed with status %d. %s", reqErr.HTTPStatusCode, truncate(detail)) //nolint:stylecheck // surfaced to users verbatim
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("Failed to reach Dedalus API: %w", err) //nolint:stylecheck // surfaced to users verbatim
}

// truncate keeps at most maxErrorDetail runes of s.
func truncate(s string) string {
	if r := []rune(s); len(r) > maxErrorDetail {
		return string(r[:maxErrorDetail])
	}
	return s
}
