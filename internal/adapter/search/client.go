// Package search calls the web and deep search servers. Each server speaks
// the OpenAI chat completion protocol and runs its search tools server side.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/tools"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/resilience"
)

const (
	webPrompt = "You are a web research assistant. Use your search tools to find current, factual " +
		"information for the user's query. Reply with concise findings and cite source URLs. " +
		"If nothing relevant is found, reply with exactly " + tools.NoResults + "."
	deepPrompt = "You are a deep research assistant. Use your search tools to investigate the user's " +
		"query thoroughly across several sources, cross-check claims and summarize the evidence " +
		"with source URLs. If nothing relevant is found, reply with exactly " + tools.NoResults + "."
)

var _ tools.Searcher = (*Client)(nil)

// Config configures one search server.
type Config struct {
	Mode    tools.Mode
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client searches through one server.
type Client struct {
	mode    tools.Mode
	model   string
	prompt  string
	hasKey  bool
	api     *openai.Client
	breaker *resilience.Breaker
}

// NewClient creates a search client for cfg.
func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	prompt := webPrompt
	if cfg.Mode == tools.ModeDeep {
		prompt = deepPrompt
	}
	return &Client{
		mode:   cfg.Mode,
		model:  cfg.Model,
		prompt: prompt,
		hasKey: strings.TrimSpace(cfg.APIKey) != "",
		api:    openai.NewClientWithConfig(oc),
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Search asks the server about query. An empty answer counts as NoResults.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	if !c.hasKey {
		return "", fmt.Errorf("%w: missing %s search API key", domain.ErrConfiguration, c.mode)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return tools.NoResults, nil
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.prompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		ToolChoice: "required",
	}

	var answer string
	call := func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return wrapError(err)
		}
		if len(resp.Choices) == 0 {
			answer = ""
			return nil
		}
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("%s search: %w", c.mode, err)
	}
	if answer == "" {
		return tools.NoResults, nil
	}
	return answer, nil
}

func wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstream, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: status %d", domain.ErrUpstream, reqErr.HTTPStatusCode)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
}
