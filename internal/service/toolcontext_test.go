package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/attachment"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/tools"
)

func TestBuildWithoutToolsReturnsMessage(t *testing.T) {
	s := NewToolContextService(nil, nil, nil, nil, time.Minute, discardLogger())
	if got := s.Build(context.Background(), ToolRequest{Message: "hi"}); got != "hi" {
		t.Fatalf("expected message unchanged, got %q", got)
	}
}

func TestWebSearchIsCachedUntilExpiry(t *testing.T) {
	web := &fakeSearcher{answer: "Panels reached 47% efficiency."}
	s := NewToolContextService(nil, web, nil, newMemCache(), 3*time.Minute, discardLogger())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	req := ToolRequest{Message: "Solar news?", WebSearch: true}
	first := s.Build(context.Background(), req)
	if !strings.Contains(first, "Web search results:\nPanels reached 47% efficiency.") {
		t.Fatalf("missing search section: %q", first)
	}
	if !strings.HasSuffix(first, "\n\nUser request:\nSolar news?") {
		t.Fatalf("missing user request suffix: %q", first)
	}

	req.Message = "  solar NEWS?  "
	s.Build(context.Background(), req)
	if web.Calls() != 1 {
		t.Fatalf("expected a cache hit for the normalized query, got %d calls", web.Calls())
	}

	now = now.Add(3 * time.Minute)
	s.Build(context.Background(), req)
	if web.Calls() != 2 {
		t.Fatalf("expected a refetch after expiry, got %d calls", web.Calls())
	}
}

func TestSearchFailureInjectsInstruction(t *testing.T) {
	deep := &fakeSearcher{err: errors.New("status 502")}
	s := NewToolContextService(nil, nil, deep, newMemCache(), time.Minute, discardLogger())

	got := s.Build(context.Background(), ToolRequest{Message: "dig", DeepSearch: true, WebSearch: true})
	if !strings.Contains(got, "Deep search unavailable") || !strings.Contains(got, "Do not hallucinate") {
		t.Fatalf("expected unavailable instruction, got %q", got)
	}
	if strings.Contains(got, "Web search") {
		t.Fatalf("deep search supersedes web search: %q", got)
	}
}

func TestMissingSearcherIsUnavailable(t *testing.T) {
	s := NewToolContextService(nil, nil, nil, nil, time.Minute, discardLogger())
	got := s.Build(context.Background(), ToolRequest{Message: "q", WebSearch: true})
	if !strings.Contains(got, "Web search unavailable") {
		t.Fatalf("expected unavailable instruction, got %q", got)
	}
}

func TestNoResultsSentinel(t *testing.T) {
	web := &fakeSearcher{answer: tools.NoResults}
	s := NewToolContextService(nil, web, nil, nil, time.Minute, discardLogger())
	got := s.Build(context.Background(), ToolRequest{Message: "q", WebSearch: true})
	if !strings.Contains(got, "returned no relevant results") {
		t.Fatalf("expected no results note, got %q", got)
	}
}

func TestSearchResultTruncated(t *testing.T) {
	web := &fakeSearcher{answer: strings.Repeat("a", SearchBudget+500)}
	s := NewToolContextService(nil, web, nil, nil, time.Minute, discardLogger())
	got := s.Build(context.Background(), ToolRequest{Message: "q", WebSearch: true})
	if !strings.Contains(got, truncatedMarker) {
		t.Fatal("expected truncation marker")
	}
}

func TestOCRBudgets(t *testing.T) {
	long := strings.Repeat("x", 20_000)
	ocr := &fakeOCR{pages: map[string][]tools.Page{
		"a.pdf": {{Index: 0, Markdown: long}},
		"b.pdf": {{Index: 0, Markdown: long}},
		"c.pdf": {{Index: 0, Markdown: long}},
	}}
	s := NewToolContextService(ocr, nil, nil, nil, time.Minute, discardLogger())

	docs := []attachment.Decoded{{Name: "a.pdf"}, {Name: "b.pdf"}, {Name: "c.pdf"}}
	text, err := s.extract(context.Background(), "c1", docs)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if n := len([]rune(text)); n > OCRTotalBudget {
		t.Fatalf("total budget exceeded: %d", n)
	}
	if strings.Count(text, truncatedMarker) != 3 {
		t.Fatalf("expected every file to carry a truncation marker, got %d", strings.Count(text, truncatedMarker))
	}
	if !strings.Contains(text, "### a.pdf\n") || !strings.Contains(text, "### b.pdf\n") {
		t.Fatal("expected file headers")
	}
}

func TestOCRErrors(t *testing.T) {
	s := NewToolContextService(&fakeOCR{}, nil, nil, nil, time.Minute, discardLogger())

	if _, err := s.extract(context.Background(), "c1", nil); !errors.Is(err, domain.ErrNoValidAttachments) {
		t.Fatalf("expected ErrNoValidAttachments, got %v", err)
	}
	if _, err := s.extract(context.Background(), "c1", []attachment.Decoded{{Name: "blank.png"}}); !errors.Is(err, domain.ErrOCRParseFailed) {
		t.Fatalf("expected ErrOCRParseFailed, got %v", err)
	}
}

func TestDroppedAttachmentsInjectInstruction(t *testing.T) {
	s := NewToolContextService(&fakeOCR{}, nil, nil, nil, time.Minute, discardLogger())
	got := s.Build(context.Background(), ToolRequest{Message: "read this", AttachmentsSent: 1})
	if !strings.Contains(got, "Attachment text unavailable") || !strings.Contains(got, "no supported PDF or image attachment") {
		t.Fatalf("expected unavailable instruction, got %q", got)
	}
}

func TestOCRPartialFailureKeepsOtherFiles(t *testing.T) {
	ocr := &fakeOCR{
		pages: map[string][]tools.Page{"ok.pdf": {{Markdown: "hello"}}},
		errs:  map[string]error{"bad.pdf": domain.ErrUpstream},
	}
	s := NewToolContextService(ocr, nil, nil, nil, time.Minute, discardLogger())
	got := s.Build(context.Background(), ToolRequest{
		Message:         "summarize",
		AttachmentsSent: 2,
		Attachments:     []attachment.Decoded{{Name: "bad.pdf"}, {Name: "ok.pdf"}},
	})
	if !strings.HasPrefix(got, "Attached document text (OCR):\n### ok.pdf\nhello") {
		t.Fatalf("unexpected prompt: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	got := truncate(strings.Repeat("é", 100), 40)
	if n := len([]rune(got)); n != 40 {
		t.Fatalf("expected 40 runes, got %d", n)
	}
}
