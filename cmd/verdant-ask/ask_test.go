package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/config"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/conversation"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/invoker"
)

func writeBundle(t *testing.T, dir, id string, msgs ...conversation.Message) string {
	t.Helper()
	b := conversation.New(id, time.Now())
	b.Model.Name = "openai/gpt-5-mini"
	b.MergeMessages(msgs)
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, id+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func decodeEvents(t *testing.T, out *bytes.Buffer) []invoker.Event {
	t.Helper()
	var events []invoker.Event
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		ev, err := invoker.Decode(sc.Bytes())
		if err != nil {
			t.Fatalf("stdout line %q is not an event: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func newAsker(baseURL, key string, out io.Writer) *asker {
	return &asker{
		upstream: config.Upstream{APIKey: key, BaseURL: baseURL, DefaultModel: "anthropic/claude-opus-4-5"},
		timeout:  5 * time.Second,
		out:      out,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestRunStreamsEvents(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&seen)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":1000,\"completion_tokens\":100,\"total_tokens\":1100}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := writeBundle(t, dir, "conversation4", conversation.Message{ID: "u1", Role: "user", Text: "hi"})

	var out bytes.Buffer
	code := newAsker(srv.URL, "k", &out).run(context.Background(), options{
		message: "hi", conversationPath: path, stream: true, maxTokens: 900,
	})
	if code != 0 {
		t.Fatalf("exit code %d, output %s", code, out.String())
	}

	events := decodeEvents(t, &out)
	if len(events) != 4 {
		t.Fatalf("expected token, token, usage, final; got %+v", events)
	}
	if events[0].Token != "Hel" || events[1].Token != "lo" {
		t.Fatalf("unexpected tokens %+v", events[:2])
	}
	usage := events[2].Usage
	if usage == nil || usage.CarbonKg == nil {
		t.Fatalf("expected usage with carbon, got %+v", events[2])
	}
	// gpt-5-mini: 0.14 * (1000*0.25e-6 + 100*2e-6)
	if want := 0.14 * (1000*0.25e-06 + 100*2.00e-06); *usage.CarbonKg < want*0.999 || *usage.CarbonKg > want*1.001 {
		t.Fatalf("carbon = %v, want %v", *usage.CarbonKg, want)
	}
	if events[3].Kind != invoker.KindFinal || events[3].Text != "Hello" {
		t.Fatalf("unexpected final %+v", events[3])
	}

	if seen["model"] != "openai/gpt-5-mini" {
		t.Fatalf("conversation model should be used, got %v", seen["model"])
	}
	rawMsgs, _ := seen["messages"].([]any)
	if len(rawMsgs) != 2 {
		t.Fatalf("expected system + user, got %v", rawMsgs)
	}
}

// The requested model is outside a genuinely restricted list, so the first
// allowed model is used instead.
func TestRunAvailableModelsOverride(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&seen)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	path := writeBundle(t, t.TempDir(), "conversation1")
	var out bytes.Buffer
	code := newAsker(srv.URL, "k", &out).run(context.Background(), options{
		message: "hello", conversationPath: path, model: "acme/unknown",
		availableModels: "openai/gpt-5-nano, openai/gpt-5-nano,openai/gpt-5",
	})
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, out.String())
	}
	if seen["model"] != "openai/gpt-5-nano" {
		t.Fatalf("expected first available model, got %v", seen["model"])
	}
	events := decodeEvents(t, &out)
	if len(events) != 1 || events[0].Text != "ok" {
		t.Fatalf("non-streaming run without usage should emit only final, got %+v", events)
	}
}

func TestRunFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"internal"}}`))
	}))
	defer srv.Close()
	path := writeBundle(t, t.TempDir(), "conversation2")

	tests := []struct {
		name string
		key  string
		opts options
		want string
	}{
		{"empty message", "k", options{message: "  ", conversationPath: path}, "Message cannot be empty."},
		{"missing key", "", options{message: "hi", conversationPath: path}, "Missing DEDALUS_API_KEY."},
		{"server error", "k", options{message: "hi", conversationPath: path, stream: true}, "status 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if code := newAsker(srv.URL, tt.key, &out).run(context.Background(), tt.opts); code != 1 {
				t.Fatalf("expected exit code 1, got %d", code)
			}
			events := decodeEvents(t, &out)
			if len(events) != 1 || events[0].Kind != invoker.KindError || !strings.Contains(events[0].Message, tt.want) {
				t.Fatalf("expected one error containing %q, got %+v", tt.want, events)
			}
		})
	}
}

func TestLoadBundleMissingFile(t *testing.T) {
	b, err := loadBundle(filepath.Join(t.TempDir(), "conversation9.json"), "conversation9")
	if err != nil {
		t.Fatalf("loadBundle: %v", err)
	}
	if b.Conversation.ID != "conversation9" || len(b.Messages.Messages) != 0 {
		t.Fatalf("unexpected bundle %+v", b.Conversation)
	}
}

func TestLoadBundleCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversation3.json")
	if err := os.WriteFile(path, []byte("{oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadBundle(path, "conversation3"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRunKeepsFallbackModelListedAfterTierModels(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&seen)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	path := writeBundle(t, t.TempDir(), "conversation1")
	var out bytes.Buffer
	code := newAsker(srv.URL, "k", &out).run(context.Background(), options{
		message: "hello", conversationPath: path, model: "openai/gpt-5-mini",
		availableModels: "anthropic/claude-haiku-4-5-20251001,anthropic/claude-sonnet-4-5-20250929,anthropic/claude-opus-4-5,openai/gpt-5-mini",
	})
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, out.String())
	}
	if seen["model"] != "openai/gpt-5-mini" {
		t.Fatalf("listed model must reach the upstream unchanged, got %v", seen["model"])
	}
}
