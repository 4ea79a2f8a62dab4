package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	verdantotel "github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/otel"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/attachment"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/logger"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/cache"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/tools"
)

// Tool context budgets, in characters.
const (
	OCRFileBudget   = 12_000
	OCRTotalBudget  = 30_000
	SearchBudget    = 12_000
	truncatedMarker = "\n[...truncated]"
)

// Tool names used in logs, spans and metrics.
const (
	toolOCR  = "ocr"
	toolWeb  = "web_search"
	toolDeep = "deep_search"
)

var errToolNotConfigured = errors.New("tool not configured")

// ToolRequest describes the tool context a turn asked for.
type ToolRequest struct {
	ConversationID string
	Message        string
	WebSearch      bool
	DeepSearch     bool
	// AttachmentsSent is the number of attachments on the request before
	// decoding dropped unrecognized ones.
	AttachmentsSent int
	Attachments     []attachment.Decoded
}

// cachedResult is the cache entry of one search result.
type cachedResult struct {
	Text      string    `json:"text"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ToolContextService builds the extra prompt context of a turn from OCR and
// the search servers. Builder failures never fail the turn; they are replaced
// by an instruction telling the model the tool was unavailable.
type ToolContextService struct {
	ocr     tools.OCR
	web     tools.Searcher
	deep    tools.Searcher
	cache   cache.Cache
	ttl     time.Duration
	now     func() time.Time
	log     *slog.Logger
	metrics *verdantotel.Metrics
}

// NewToolContextService creates a ToolContextService. Any collaborator may be
// nil; a nil collaborator reports as unavailable when requested.
func NewToolContextService(ocr tools.OCR, web, deep tools.Searcher, c cache.Cache, ttl time.Duration, log *slog.Logger) *ToolContextService {
	return &ToolContextService{
		ocr:   ocr,
		web:   web,
		deep:  deep,
		cache: c,
		ttl:   ttl,
		now:   time.Now,
		log:   log,
	}
}

// SetMetrics attaches the metric instruments.
func (s *ToolContextService) SetMetrics(m *verdantotel.Metrics) { s.metrics = m }

// Build returns the augmented prompt for req. Without any tool the message is
// returned unchanged.
func (s *ToolContextService) Build(ctx context.Context, req ToolRequest) string {
	wantOCR := req.AttachmentsSent > 0 || len(req.Attachments) > 0
	wantDeep := req.DeepSearch
	wantWeb := req.WebSearch && !req.DeepSearch
	if !wantOCR && !wantWeb && !wantDeep {
		return req.Message
	}

	var ocrSection, webSection, deepSection string
	var g errgroup.Group
	if wantOCR {
		g.Go(func() error {
			ocrSection = s.ocrSection(ctx, req)
			return nil
		})
	}
	if wantWeb {
		g.Go(func() error {
			webSection = s.searchSection(ctx, req, tools.ModeWeb, s.web)
			return nil
		})
	}
	if wantDeep {
		g.Go(func() error {
			deepSection = s.searchSection(ctx, req, tools.ModeDeep, s.deep)
			return nil
		})
	}
	_ = g.Wait()

	var sections []string
	for _, sec := range []string{ocrSection, webSection, deepSection} {
		if sec != "" {
			sections = append(sections, sec)
		}
	}
	return strings.Join(sections, "\n\n") + "\n\nUser request:\n" + req.Message
}

func (s *ToolContextService) ocrSection(ctx context.Context, req ToolRequest) string {
	ctx, span := verdantotel.StartToolSpan(ctx, toolOCR)
	defer span.End()

	text, err := s.extract(ctx, req.ConversationID, req.Attachments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logRecovery(ctx, toolOCR, req.ConversationID, err)
		return "Attachment text unavailable: the attached files could not be read (" + ocrReason(err) + "). " +
			"Tell the user the attachments could not be processed. Do not hallucinate or guess their contents."
	}
	return "Attached document text (OCR):\n" + text
}

// extract runs OCR on every attachment and joins the page markdown within
// the per-file and total budgets.
func (s *ToolContextService) extract(ctx context.Context, conversationID string, docs []attachment.Decoded) (string, error) {
	if len(docs) == 0 {
		return "", domain.ErrNoValidAttachments
	}
	if s.ocr == nil {
		return "", errToolNotConfigured
	}

	var b strings.Builder
	remaining := OCRTotalBudget
	var lastErr error
	for _, doc := range docs {
		if remaining <= 0 {
			break
		}
		pages, err := s.ocr.Pages(ctx, doc)
		if err != nil {
			lastErr = err
			s.log.Warn("ocr attachment failed",
				"conversation_id", conversationID,
				"attachment", doc.Name,
				"request_id", logger.RequestID(ctx),
				"error", err,
			)
			continue
		}
		parts := make([]string, 0, len(pages))
		for _, p := range pages {
			if md := strings.TrimSpace(p.Markdown); md != "" {
				parts = append(parts, md)
			}
		}
		body := strings.Join(parts, "\n\n")
		if body == "" {
			continue
		}
		body = truncate(body, OCRFileBudget)

		entry := fmt.Sprintf("### %s\n%s", doc.Name, body)
		if b.Len() > 0 {
			entry = "\n\n" + entry
		}
		entry = truncate(entry, remaining)
		remaining -= utf8.RuneCountInString(entry)
		b.WriteString(entry)
	}

	if b.Len() == 0 {
		if lastErr != nil {
			return "", lastErr
		}
		return "", domain.ErrOCRParseFailed
	}
	return b.String(), nil
}

func (s *ToolContextService) searchSection(ctx context.Context, req ToolRequest, mode tools.Mode, searcher tools.Searcher) string {
	tool := toolWeb
	label := "Web search"
	if mode == tools.ModeDeep {
		tool = toolDeep
		label = "Deep search"
	}

	ctx, span := verdantotel.StartToolSpan(ctx, tool)
	defer span.End()

	result, err := s.search(ctx, mode, searcher, req.Message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logRecovery(ctx, tool, req.ConversationID, err)
		return label + " unavailable: live results could not be fetched for this request. " +
			"Tell the user search was unavailable. Do not hallucinate search results, sources or citations."
	}
	if result == tools.NoResults {
		return label + " returned no relevant results. Say so rather than inventing findings."
	}
	return label + " results:\n" + result
}

// search answers from the cache when a fresh entry exists, otherwise calls
// the server and caches the truncated result.
func (s *ToolContextService) search(ctx context.Context, mode tools.Mode, searcher tools.Searcher, query string) (string, error) {
	if searcher == nil {
		return "", errToolNotConfigured
	}
	key := cache.ToolKey(string(mode), query)
	if text, ok := s.cached(ctx, key); ok {
		return text, nil
	}

	text, err := searcher.Search(ctx, query)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = tools.NoResults
	}
	text = truncate(text, SearchBudget)
	s.store(ctx, key, text)
	return text, nil
}

func (s *ToolContextService) cached(ctx context.Context, key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Debug("tool cache get failed", "key", key, "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	var entry cachedResult
	if err := json.Unmarshal(data, &entry); err != nil || !s.now().Before(entry.ExpiresAt) {
		_ = s.cache.Delete(ctx, key)
		return "", false
	}
	return entry.Text, true
}

func (s *ToolContextService) store(ctx context.Context, key, text string) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(cachedResult{Text: text, ExpiresAt: s.now().Add(s.ttl)})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.log.Debug("tool cache set failed", "key", key, "error", err)
	}
}

// logRecovery logs a tool failure that was replaced by an instruction.
func (s *ToolContextService) logRecovery(ctx context.Context, tool, conversationID string, err error) {
	s.log.Warn("tool context unavailable, continuing without it",
		"tool", tool,
		"conversation_id", conversationID,
		"request_id", logger.RequestID(ctx),
		"error", err,
	)
	if s.metrics != nil {
		s.metrics.ToolFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

func ocrReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoValidAttachments):
		return "no supported PDF or image attachment"
	case errors.Is(err, domain.ErrOCRParseFailed):
		return "no text could be extracted"
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, errToolNotConfigured):
		return "document reading is not configured"
	default:
		return "the document service failed"
	}
}

// truncate shortens s to at most limit runes, marker included.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(truncatedMarker)
	if keep <= 0 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:keep]) + truncatedMarker
}
