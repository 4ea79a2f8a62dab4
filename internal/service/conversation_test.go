package service

import (
	"context"
	"errors"
	"testing"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/settings"
)

func TestConversationLifecycle(t *testing.T) {
	f := newChatFixture(t)
	svc := NewConversationService(f.store, f.locks, discardLogger())
	ctx := context.Background()

	first, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sum, err := svc.Rename(ctx, first.ID, "  Solar  plans ")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if sum.Name != "Solar plans" {
		t.Fatalf("unexpected name %q", sum.Name)
	}
	if _, err := svc.Rename(ctx, first.ID, "   "); !errors.Is(err, domain.ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}

	active, err := svc.LoadActive(ctx)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if active.ID != first.ID {
		t.Fatalf("expected the renamed conversation active, got %s", active.ID)
	}

	res, err := svc.Delete(ctx, second.ID, first.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res.ActiveID != first.ID || len(res.Remaining) != 1 {
		t.Fatalf("unexpected delete result %+v", res)
	}
	if _, err := svc.Delete(ctx, first.ID, ""); !errors.Is(err, domain.ErrLastConversation) {
		t.Fatalf("expected ErrLastConversation, got %v", err)
	}
	if _, err := svc.Load(ctx, "???"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if f.locks.Len() != 0 {
		t.Fatal("locks left behind")
	}
}

func TestDashboardUpdate(t *testing.T) {
	f := newChatFixture(t)
	svc := NewDashboardService(f.store, discardLogger())
	ctx := context.Background()

	sens := 80.0
	c, err := svc.Update(ctx, settings.Update{RoutingSensitivity: &sens, LockedUserKnobs: map[string]bool{"u1": true}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.RoutingSensitivity != 80 || !c.LockedUserKnobs["u1"] {
		t.Fatalf("unexpected controls %+v", c)
	}
	got, err := svc.Controls(ctx)
	if err != nil {
		t.Fatalf("Controls: %v", err)
	}
	if got.RoutingSensitivity != 80 {
		t.Fatalf("update not persisted: %+v", got)
	}
}
