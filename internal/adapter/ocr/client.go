// Package ocr provides an HTTP client for the Mistral document OCR API.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/attachment"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/tools"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/resilience"
)

const maxErrorBody = 500

var _ tools.OCR = (*Client)(nil)

// Client talks to the OCR endpoint.
type Client struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a new OCR client.
func NewClient(url, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type document struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type ocrRequest struct {
	Model              string   `json:"model"`
	Document           document `json:"document"`
	IncludeImageBase64 bool     `json:"include_image_base64"`
}

type ocrResponse struct {
	Pages []tools.Page `json:"pages"`
}

// Pages runs OCR on doc.
func (c *Client) Pages(ctx context.Context, doc attachment.Decoded) ([]tools.Page, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, fmt.Errorf("%w: missing MISTRAL_API_KEY", domain.ErrConfiguration)
	}

	req := ocrRequest{Model: c.model, Document: documentFor(doc)}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal ocr request: %w", err)
	}

	data, err := c.doRequest(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("ocr %s: %w", doc.Name, err)
	}

	var resp ocrResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal ocr response: %w", err)
	}
	return resp.Pages, nil
}

func documentFor(doc attachment.Decoded) document {
	ref := doc.URL
	if ref == "" {
		ref = doc.DataURL()
	}
	if doc.IsImage() {
		return document{Type: "image_url", ImageURL: ref}
	}
	return document{Type: "document_url", DocumentURL: ref}
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	var result []byte
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: http request: %w", domain.ErrUpstream, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%w: ocr API error %d: %s", domain.ErrUpstream, resp.StatusCode, truncate(string(data), maxErrorBody))
		}
		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(ctx, call); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := call(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// truncate trims s and keeps at most n runes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
