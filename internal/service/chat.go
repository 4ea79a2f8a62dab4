package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	verdantotel "github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/otel"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/convlock"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/attachment"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/conversation"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/routing"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/logger"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/invoker"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/messagequeue"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/store"
)

// CarbonSettings are the client-side routing knobs of a turn.
type CarbonSettings struct {
	RoutingSensitivity *float64 `json:"routingSensitivity,omitempty"`
	HistoryCompression *float64 `json:"historyCompression,omitempty"`
}

// ChatRequest is one chat turn as posted by the UI.
type ChatRequest struct {
	Messages          []conversation.UIMessage `json:"messages"`
	ConversationID    *string                  `json:"conversationId,omitempty"`
	Model             string                   `json:"model,omitempty"`
	WebSearchEnabled  bool                     `json:"webSearchEnabled,omitempty"`
	DeepSearchEnabled bool                     `json:"deepSearchEnabled,omitempty"`
	Attachments       []attachment.Input       `json:"attachments,omitempty"`
	CarbonSettings    *CarbonSettings          `json:"carbonSettings,omitempty"`
	UserID            string                   `json:"userId,omitempty"`
	UserName          string                   `json:"userName,omitempty"`
}

// ChatConfig tunes the relay. UpstreamKeySet reports whether the upstream
// API key is configured; without it every turn is refused before streaming.
type ChatConfig struct {
	DefaultModel    string
	UpstreamKeySet  bool
	FailoverEnabled bool
	FallbackModel   string
	RetryBackoff    time.Duration
	FlushBatch      int
	FlushInterval   time.Duration
	QueueSize       int
}

// DefaultQueueSize is the capacity of the token queue between the attempt
// reader and the client flusher.
const DefaultQueueSize = 256

const maxChainLength = 2

// ChatService runs chat turns: validation, persistence, routing, tool
// context, model invocation with failover, and the client stream.
type ChatService struct {
	conversations store.Conversations
	controls      store.Controls
	locks         *convlock.Locker
	engine        *routing.Engine
	tools         *ToolContextService
	invoker       invoker.Invoker
	cfg           ChatConfig
	log           *slog.Logger
	metrics       *verdantotel.Metrics
	queue         messagequeue.Publisher
	now           func() time.Time
}

// NewChatService creates a ChatService.
func NewChatService(
	conversations store.Conversations,
	controls store.Controls,
	locks *convlock.Locker,
	engine *routing.Engine,
	toolCtx *ToolContextService,
	inv invoker.Invoker,
	cfg ChatConfig,
	log *slog.Logger,
) *ChatService {
	if cfg.FlushBatch < 1 {
		cfg.FlushBatch = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &ChatService{
		conversations: conversations,
		controls:      controls,
		locks:         locks,
		engine:        engine,
		tools:         toolCtx,
		invoker:       inv,
		cfg:           cfg,
		log:           log,
		now:           time.Now,
	}
}

// SetMetrics attaches the metric instruments.
func (s *ChatService) SetMetrics(m *verdantotel.Metrics) { s.metrics = m }

// SetPublisher attaches the optional turn event publisher.
func (s *ChatService) SetPublisher(p messagequeue.Publisher) { s.queue = p }

// Turn is a prepared chat turn holding the conversation lock. Stream runs it;
// Close releases the lock and is safe to call more than once.
type Turn struct {
	svc       *ChatService
	record    store.Record
	decision  routing.Decision
	userText  string
	userID    string
	toolReq   ToolRequest
	started   time.Time
	messageID string

	closeOnce sync.Once
	release   func()
}

// ConversationID returns the id of the conversation the turn writes to.
func (t *Turn) ConversationID() string { return t.record.ID }

// Decision returns the routing decision of the turn.
func (t *Turn) Decision() routing.Decision { return t.decision }

// Close releases the conversation lock.
func (t *Turn) Close() {
	t.closeOnce.Do(t.release)
}

// Prepare validates req, checks the user's prompt threshold, takes the
// conversation lock, persists the prompt snapshot and routes the turn.
// Every error is returned before anything is streamed.
func (s *ChatService) Prepare(ctx context.Context, req ChatRequest) (*Turn, error) {
	userText := strings.TrimSpace(conversation.LatestUserText(req.Messages))
	if userText == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}

	rawID := ""
	if req.ConversationID != nil && strings.TrimSpace(*req.ConversationID) != "" {
		rawID = conversation.SanitizeID(*req.ConversationID)
		if rawID == "" {
			return nil, fmt.Errorf("%w: invalid conversation id", domain.ErrValidation)
		}
	}

	docs, err := attachment.Decode(req.Attachments)
	if err != nil {
		return nil, err
	}

	if !s.cfg.UpstreamKeySet {
		return nil, fmt.Errorf("%w: DEDALUS_API_KEY is not set", domain.ErrConfiguration)
	}

	controls, err := s.controls.LoadControls(ctx)
	if err != nil {
		return nil, fmt.Errorf("load controls: %w", err)
	}
	if limit, ok := controls.Threshold(req.UserID); ok {
		count, err := s.conversations.CountUserPrompts(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("count user prompts: %w", err)
		}
		if count >= limit {
			return nil, fmt.Errorf("%w: %d of %d prompts used", domain.ErrThresholdExceeded, count, limit)
		}
	}

	if rawID == "" {
		rec, err := s.conversations.Ensure(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		rawID = rec.ID
	}

	release, err := s.locks.Acquire(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("acquire conversation lock: %w", err)
	}
	turn := &Turn{svc: s, release: release}
	ok := false
	defer func() {
		if !ok {
			turn.Close()
		}
	}()

	var sens, comp *float64
	if req.CarbonSettings != nil {
		sens, comp = req.CarbonSettings.RoutingSensitivity, req.CarbonSettings.HistoryCompression
	}
	requested := strings.TrimSpace(req.Model)
	if requested == "" {
		requested = s.cfg.DefaultModel
	}
	signals := routing.ToolSignals{
		WebSearchEnabled:  req.WebSearchEnabled,
		DeepSearchEnabled: req.DeepSearchEnabled,
		AttachmentCount:   attachment.Count(req.Attachments),
	}
	decision := s.engine.Decide(routing.Input{
		Message:        userText,
		RequestedModel: requested,
		Tools:          signals,
		Settings:       controls.Effective(req.UserID, sens, comp),
	})

	rec, err := s.conversations.PersistPromptSnapshot(ctx, rawID, req.Messages, store.SnapshotOptions{
		ModelName: decision.Model,
		UserID:    req.UserID,
		UserName:  req.UserName,
	})
	if err != nil {
		return nil, fmt.Errorf("persist prompt snapshot: %w", err)
	}

	turn.record = rec
	turn.decision = decision
	turn.userText = userText
	turn.userID = req.UserID
	turn.started = s.now()
	turn.messageID = uuid.NewString()
	turn.toolReq = ToolRequest{
		ConversationID:  rec.ID,
		Message:         userText,
		WebSearch:       req.WebSearchEnabled,
		DeepSearch:      req.DeepSearchEnabled,
		AttachmentsSent: len(req.Attachments),
		Attachments:     docs,
	}

	s.log.Info("chat turn routed",
		"conversation_id", rec.ID,
		"request_id", logger.RequestID(ctx),
		"tier", decision.Tier,
		"model", decision.Model,
		"score", decision.Score.Total,
	)
	if s.metrics != nil {
		s.metrics.TurnsStarted.Add(ctx, 1)
		s.metrics.TierDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", decision.Tier)))
	}

	ok = true
	return turn, nil
}

// candidates returns the models a turn may try, in order.
func (s *ChatService) candidates(d routing.Decision) []string {
	chain := []string{d.Model}
	switch {
	case d.EscalationAllowed:
		chain = append(chain, d.HeavyModel)
	case s.cfg.FailoverEnabled && s.cfg.FallbackModel != "":
		chain = append(chain, s.cfg.FallbackModel)
	}
	out := make([]string, 0, maxChainLength)
	for _, m := range chain {
		m = strings.TrimSpace(m)
		if m == "" || slices.Contains(out, m) {
			continue
		}
		out = append(out, m)
		if len(out) == maxChainLength {
			break
		}
	}
	return out
}

// errAttemptsExhausted wraps the last attempt error once the chain is spent.
var errAttemptsExhausted = errors.New("all candidate models failed")
