package nats

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/logger"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) (*Queue, string) {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = q.Drain() })
	return q, url
}

func TestQueue_PublishCarriesRequestID(t *testing.T) {
	q, url := testConnect(t)

	sub, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("subscriber connect: %v", err)
	}
	defer sub.Close()
	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe(messagequeue.SubjectChatCompleted, msgs)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer func() { _ = s.Unsubscribe() }()
	if err := sub.Flush(); err != nil {
		t.Fatal(err)
	}

	data, _ := json.Marshal(messagequeue.ChatCompletedPayload{ConversationID: "conversation1", Model: "openai/gpt-5-mini"})
	ctx := logger.WithRequestID(context.Background(), "req-abc-123")
	if err := q.Publish(ctx, messagequeue.SubjectChatCompleted, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case m := <-msgs:
		if got := m.Header.Get(headerRequest); got != "req-abc-123" {
			t.Errorf("expected request id header, got %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueue_PublishRejectsInvalidPayload(t *testing.T) {
	q, _ := testConnect(t)
	err := q.Publish(context.Background(), messagequeue.SubjectChatCompleted, []byte(`{"conversation_id":""}`))
	if err == nil {
		t.Fatal("expected validation error")
	}
}
