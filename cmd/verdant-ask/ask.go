package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/dedalus"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/config"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/conversation"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/cost"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/history"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/invoker"
)

type options struct {
	message           string
	conversationPath  string
	conversationID    string
	model             string
	maxTokens         int
	availableModels   string
	historyWindow     int
	historySummaryMax int
	stream            bool
}

type asker struct {
	upstream config.Upstream
	timeout  time.Duration
	out      io.Writer
	log      *slog.Logger
}

// run performs one completion and returns the process exit code.
func (a *asker) run(ctx context.Context, opts options) int {
	message := strings.TrimSpace(opts.message)
	if message == "" {
		a.fail("Message cannot be empty.")
		return 1
	}
	apiKey := strings.TrimSpace(a.upstream.APIKey)
	if apiKey == "" {
		a.fail("Missing DEDALUS_API_KEY.")
		return 1
	}

	id := strings.TrimSpace(opts.conversationID)
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(opts.conversationPath), filepath.Ext(opts.conversationPath))
	}
	bundle, err := loadBundle(opts.conversationPath, id)
	if err != nil {
		a.fail(err.Error())
		return 1
	}

	model := firstNonEmpty(opts.model, bundle.Model.Name, a.upstream.DefaultModel, conversation.DefaultModel)
	if allowed := parseModels(opts.availableModels); len(allowed) > 0 && !slices.Contains(allowed, model) {
		model = allowed[0]
	}
	window := opts.historyWindow
	if window <= 0 {
		window = history.DefaultWindow
	}
	summaryMax := opts.historySummaryMax
	if summaryMax <= 0 {
		summaryMax = history.DefaultSummaryMax
	}

	msgs := history.Build(bundle.SystemPrompt, bundle.Messages.Messages, window, summaryMax)
	msgs = history.EnsureLatestUser(msgs, message)
	a.log.Info("asking upstream", "conversation_id", id, "model", model, "messages", len(msgs), "stream", opts.stream)

	client := dedalus.NewClient(apiKey, a.upstream.BaseURL, a.timeout)
	res, err := client.Complete(ctx, dedalus.Request{
		Model:     model,
		Messages:  msgs,
		MaxTokens: opts.maxTokens,
		Stream:    opts.stream,
	}, func(tok string) {
		a.emit(invoker.Event{Kind: invoker.KindToken, Token: tok})
	})
	if err != nil {
		a.log.Warn("upstream call failed", "conversation_id", id, "model", model, "error", err)
		a.fail(err.Error())
		return 1
	}
	if strings.TrimSpace(res.Text) == "" {
		a.fail(dedalus.MsgEmptyResponse)
		return 1
	}

	if u := res.Usage; u != nil {
		if kg, ok := cost.CarbonKg(model, u.PromptTokens, u.CompletionTokens); ok {
			u.CarbonKg = &kg
		}
		a.emit(invoker.Event{Kind: invoker.KindUsage, Usage: u})
	}
	a.emit(invoker.Event{Kind: invoker.KindFinal, Text: res.Text, FinishReason: res.FinishReason})
	return 0
}

func (a *asker) fail(msg string) {
	a.emit(invoker.Event{Kind: invoker.KindError, Message: msg})
}

func (a *asker) emit(ev invoker.Event) {
	line, err := invoker.Encode(ev)
	if err != nil {
		a.log.Error("encode event", "kind", ev.Kind, "error", err)
		return
	}
	if _, err := fmt.Fprintf(a.out, "%s\n", line); err != nil {
		a.log.Error("write event", "kind", ev.Kind, "error", err)
	}
}

// loadBundle reads the conversation bundle. A missing file is an empty
// conversation; the server owns every write.
func loadBundle(path, id string) (*conversation.Bundle, error) {
	now := time.Now()
	data, err := os.ReadFile(path) //nolint:gosec // path supplied by the server
	if errors.Is(err, os.ErrNotExist) {
		return conversation.New(id, now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	var b conversation.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse conversation %s: %w", filepath.Base(path), err)
	}
	b.Normalize(id, now)
	return &b, nil
}

func parseModels(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if m := strings.TrimSpace(part); m != "" && !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
