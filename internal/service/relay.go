package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	verdantotel "github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/otel"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/cost"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/logger"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/invoker"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/messagequeue"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/resilience"
)

const (
	maxRetryableAttempts = 2
	publishTimeout       = 5 * time.Second
	maxErrorTextLength   = 400
	msgEmptyResponse     = "empty assistant response"
	msgAllFailed         = "The assistant could not produce a response. Please try again."
	msgProcessFailed     = "The model process failed before completing the response."
)

var (
	retryablePattern = regexp.MustCompile(`(?i)status 5\d\d|failed to reach|connection|timeout|timed out|temporarily unavailable`)
	emptyPattern     = regexp.MustCompile(`(?i)empty assistant response|no completion choices`)
)

// attemptError is a failure the invocation process reported itself. Its
// message is already fit for the client.
type attemptError struct {
	message string
}

func (e *attemptError) Error() string { return e.message }

// attemptResult is what one attempt produced.
type attemptResult struct {
	text         string
	finishReason string
	usage        *cost.Usage
	// streamed is set once any text of the attempt was queued for the client.
	streamed bool
}

// Stream runs the turn and writes its UI message stream to w. It always
// releases the conversation lock before returning.
func (t *Turn) Stream(ctx context.Context, w StreamWriter) {
	defer t.Close()
	s := t.svc

	ctx, span := verdantotel.StartTurnSpan(ctx, t.record.ID, t.decision.Tier)
	defer span.End()
	ctx = logger.WithConversationID(ctx, t.record.ID)

	_ = w.WritePart(Part{Type: PartStart, MessageID: t.messageID})

	prompt := s.tools.Build(ctx, t.toolReq)

	textID := "text-" + t.messageID
	_ = w.WritePart(Part{Type: PartTextStart, ID: textID})

	queue := make(chan string, s.cfg.QueueSize)
	var flushWG sync.WaitGroup
	flushWG.Add(1)
	go func() {
		defer flushWG.Done()
		s.flush(ctx, queue, func(delta string) error {
			return w.WritePart(Part{Type: PartTextDelta, ID: textID, Delta: delta})
		})
	}()

	chain := s.candidates(t.decision)
	var (
		result   attemptResult
		used     string
		lastErr  error
		tried    []string
		streamed bool
	)
	for i, model := range chain {
		if i > 0 {
			s.log.Warn("failing over to next model",
				"conversation_id", t.record.ID,
				"request_id", logger.RequestID(ctx),
				"model", model,
				"previous_model", chain[i-1],
				"error", lastErr,
			)
			if s.metrics != nil {
				s.metrics.Failovers.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
			}
		}
		tried = append(tried, model)
		res, err := t.runModel(ctx, model, prompt, queue)
		if err == nil {
			result, used, lastErr = res, model, nil
			break
		}
		lastErr = err
		if res.streamed {
			streamed = true
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	close(queue)
	flushWG.Wait()

	if ctx.Err() != nil {
		s.log.Info("chat turn aborted", "conversation_id", t.record.ID, "request_id", logger.RequestID(ctx))
		t.recordFailure(ctx, tried, ctx.Err())
		span.SetStatus(codes.Error, "aborted")
		return
	}

	_ = w.WritePart(Part{Type: PartTextEnd, ID: textID})

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		s.log.Error("chat turn failed",
			"conversation_id", t.record.ID,
			"request_id", logger.RequestID(ctx),
			"models", tried,
			"streamed", streamed,
			"error", lastErr,
		)
		_ = w.WritePart(Part{Type: PartError, ErrorText: friendlyError(lastErr)})
		_ = w.WritePart(Part{Type: PartFinish, FinishReason: "error"})
		t.recordFailure(ctx, tried, fmt.Errorf("%w: %w", errAttemptsExhausted, lastErr))
		return
	}

	stats := t.complete(ctx, used, result)
	_ = w.WritePart(Part{Type: PartCarbonStats, Data: &stats})
	_ = w.WritePart(Part{Type: PartFinish, FinishReason: result.finishReason})
	t.recordSuccess(ctx, used, stats)
}

// runModel tries one model: once more without streaming after an empty
// response, and once more after a linear backoff for retryable upstream errors.
func (t *Turn) runModel(ctx context.Context, model, prompt string, queue chan<- string) (attemptResult, error) {
	s := t.svc
	stream := true
	emptyRetried := false
	retryable := 1
	for attempt := 1; ; attempt++ {
		res, err := t.attempt(ctx, model, prompt, stream, attempt, queue)
		if err == nil || res.streamed || ctx.Err() != nil {
			return res, err
		}
		msg := err.Error()
		switch {
		case !emptyRetried && emptyPattern.MatchString(msg):
			emptyRetried = true
			stream = false
			s.log.Warn("empty model response, retrying without streaming",
				"conversation_id", t.record.ID, "model", model, "attempt", attempt)
		case s.cfg.FailoverEnabled && retryable < maxRetryableAttempts && retryablePattern.MatchString(msg):
			s.log.Warn("retryable model error, retrying",
				"conversation_id", t.record.ID, "model", model, "attempt", attempt, "error", err)
			if berr := resilience.LinearBackoff(ctx, s.cfg.RetryBackoff, retryable); berr != nil {
				return res, err
			}
			retryable++
		default:
			return res, err
		}
	}
}

// attempt runs one invocation and relays its text to queue.
func (t *Turn) attempt(ctx context.Context, model, prompt string, stream bool, attempt int, queue chan<- string) (attemptResult, error) {
	s := t.svc
	ctx, span := verdantotel.StartAttemptSpan(ctx, model, attempt, stream)
	defer span.End()
	if s.metrics != nil {
		s.metrics.ModelAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
	}

	events, err := s.invoker.Invoke(ctx, invoker.Request{
		Message:           prompt,
		ConversationID:    t.record.ID,
		ConversationPath:  t.record.Path,
		Model:             model,
		MaxTokens:         t.decision.MaxOutputTokens,
		AvailableModels:   availableFor(t.decision.AvailableModels, model),
		HistoryWindow:     t.decision.HistoryWindow,
		HistorySummaryMax: t.decision.HistorySummaryMax,
		Stream:            stream,
	})
	if err != nil {
		span.RecordError(err)
		return attemptResult{}, err
	}

	var (
		res      attemptResult
		tokens   strings.Builder
		final    string
		failure  string
		enqueued bool
	)
	for ev := range events {
		switch ev.Kind {
		case invoker.KindToken:
			if ev.Token == "" || failure != "" {
				continue
			}
			tokens.WriteString(ev.Token)
			if enqueue(ctx, queue, ev.Token) {
				enqueued = true
			}
		case invoker.KindFinal:
			final = ev.Text
			res.finishReason = ev.FinishReason
		case invoker.KindUsage:
			res.usage = ev.Usage
		case invoker.KindError:
			if failure == "" {
				failure = ev.Message
			}
		}
	}
	res.streamed = enqueued

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if failure != "" {
		span.SetStatus(codes.Error, failure)
		return res, &attemptError{message: failure}
	}

	res.text = tokens.String()
	if tokens.Len() == 0 {
		res.text = final
	}
	if strings.TrimSpace(res.text) == "" {
		span.SetStatus(codes.Error, msgEmptyResponse)
		return res, &attemptError{message: msgEmptyResponse}
	}
	if !res.streamed {
		res.streamed = enqueue(ctx, queue, res.text)
	}
	if res.finishReason == "" {
		res.finishReason = "stop"
	}
	return res, nil
}

// availableFor returns the tier models plus model when the chain reached
// past the tier list, so the process never swaps the attempted model out.
func availableFor(tier []string, model string) []string {
	if len(tier) == 0 || slices.Contains(tier, model) {
		return tier
	}
	out := make([]string, 0, len(tier)+1)
	out = append(out, tier...)
	return append(out, model)
}

func enqueue(ctx context.Context, queue chan<- string, token string) bool {
	select {
	case queue <- token:
		return true
	case <-ctx.Done():
		return false
	}
}

// flush drains queue in batches of FlushBatch tokens with FlushInterval
// between writes, until queue is closed and empty or ctx is done.
func (s *ChatService) flush(ctx context.Context, queue <-chan string, write func(string) error) {
	var timer *time.Timer
	if s.cfg.FlushInterval > 0 {
		timer = time.NewTimer(s.cfg.FlushInterval)
		timer.Stop()
		defer timer.Stop()
	}
	batch := make([]string, 0, s.cfg.FlushBatch)
	broken := false
	for {
		var tok string
		var ok bool
		select {
		case <-ctx.Done():
			return
		case tok, ok = <-queue:
		}
		if !ok {
			return
		}
		batch = append(batch[:0], tok)
		open := true
	fill:
		for len(batch) < s.cfg.FlushBatch {
			select {
			case tok, more := <-queue:
				if !more {
					open = false
					break fill
				}
				batch = append(batch, tok)
			default:
				break fill
			}
		}
		if !broken {
			if err := write(strings.Join(batch, "")); err != nil {
				broken = true
			}
		}
		if !open {
			return
		}
		if timer != nil {
			timer.Reset(s.cfg.FlushInterval)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
	}
}

// complete persists the reply and returns the turn's carbon stats.
func (t *Turn) complete(ctx context.Context, model string, res attemptResult) cost.Stats {
	s := t.svc
	persistCtx := context.WithoutCancel(ctx)
	if model != t.decision.Model {
		if err := s.conversations.SetModel(persistCtx, t.record.ID, model); err != nil {
			s.log.Error("persist fallback model failed", "conversation_id", t.record.ID, "model", model, "error", err)
		}
	}
	if err := s.conversations.AppendAssistantCompletion(persistCtx, t.record.ID, res.text); err != nil {
		s.log.Error("persist assistant reply failed", "conversation_id", t.record.ID, "error", err)
	}

	stats := cost.Compute(model, t.decision.Tier, res.usage, t.userText, res.text)
	s.conversations.AddCarbon(persistCtx, stats.CarbonKg)
	return stats
}

func (t *Turn) recordSuccess(ctx context.Context, model string, stats cost.Stats) {
	s := t.svc
	elapsed := s.now().Sub(t.started)
	s.log.Info("chat turn completed",
		"conversation_id", t.record.ID,
		"request_id", logger.RequestID(ctx),
		"model", model,
		"tier", t.decision.Tier,
		"total_tokens", stats.TotalTokens,
		"carbon_kg", stats.CarbonKg,
		"carbon_source", stats.Source,
		"duration", elapsed,
	)
	if s.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("tier", t.decision.Tier), attribute.String("model", model))
		s.metrics.TurnsCompleted.Add(ctx, 1, attrs)
		s.metrics.TurnDuration.Record(ctx, elapsed.Seconds(), attrs)
		s.metrics.TurnCarbon.Record(ctx, stats.CarbonKg, attrs)
	}
	t.publish(ctx, messagequeue.SubjectChatCompleted, messagequeue.ChatCompletedPayload{
		ConversationID:   t.record.ID,
		UserID:           t.userID,
		Model:            model,
		Tier:             t.decision.Tier,
		FailedOver:       model != t.decision.Model,
		PromptTokens:     stats.PromptTokens,
		CompletionTokens: stats.CompletionTokens,
		TotalTokens:      stats.TotalTokens,
		CarbonKg:         stats.CarbonKg,
		CarbonSource:     stats.Source,
		DurationMs:       elapsed.Milliseconds(),
	})
}

func (t *Turn) recordFailure(ctx context.Context, tried []string, err error) {
	s := t.svc
	if s.metrics != nil {
		s.metrics.TurnsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", t.decision.Tier)))
	}
	if tried == nil {
		tried = []string{}
	}
	t.publish(ctx, messagequeue.SubjectChatFailed, messagequeue.ChatFailedPayload{
		ConversationID: t.record.ID,
		UserID:         t.userID,
		ModelsTried:    tried,
		Error:          err.Error(),
	})
}

func (t *Turn) publish(ctx context.Context, subject string, payload any) {
	s := t.svc
	if s.queue == nil || !s.queue.IsConnected() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.queue.Publish(pubCtx, subject, data); err != nil {
		s.log.Warn("publish turn event failed", "subject", subject, "conversation_id", t.record.ID, "error", err)
	}
}

// friendlyError turns an attempt failure into a short client message.
func friendlyError(err error) string {
	var ae *attemptError
	if errors.As(err, &ae) {
		msg := strings.TrimSpace(ae.message)
		switch {
		case msg == msgEmptyResponse || msg == "":
			return msgAllFailed
		case strings.HasPrefix(msg, invoker.ProcessFailedPrefix), strings.HasPrefix(msg, invoker.ReadFailedPrefix):
			return msgProcessFailed
		}
		if r := []rune(msg); len(r) > maxErrorTextLength {
			msg = string(r[:maxErrorTextLength]) + "..."
		}
		return msg
	}
	return msgProcessFailed
}
