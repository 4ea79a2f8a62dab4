package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/convlock"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/conversation"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/store"
)

// ConversationService serves the conversation sidebar: list, load, create,
// rename and delete. Writes to an existing bundle hold its conversation lock.
type ConversationService struct {
	store store.Conversations
	locks *convlock.Locker
	log   *slog.Logger
}

// NewConversationService creates a ConversationService.
func NewConversationService(st store.Conversations, locks *convlock.Locker, log *slog.Logger) *ConversationService {
	return &ConversationService{store: st, locks: locks, log: log}
}

// List returns all conversations, most recent first.
func (s *ConversationService) List(ctx context.Context) ([]conversation.Summary, error) {
	return s.store.ListForUI(ctx)
}

// Load returns conversation id and makes it active.
func (s *ConversationService) Load(ctx context.Context, id string) (conversation.View, error) {
	if conversation.SanitizeID(id) == "" {
		return conversation.View{}, fmt.Errorf("%w: invalid conversation id", domain.ErrValidation)
	}
	return s.store.LoadForUI(ctx, id)
}

// LoadActive returns the active conversation, falling back to the most
// recent one or a new one.
func (s *ConversationService) LoadActive(ctx context.Context) (conversation.View, error) {
	return s.store.LoadForUI(ctx, "")
}

// Create starts a new conversation and makes it active.
func (s *ConversationService) Create(ctx context.Context) (conversation.View, error) {
	v, err := s.store.CreateForUI(ctx)
	if err != nil {
		return conversation.View{}, fmt.Errorf("create conversation: %w", err)
	}
	s.log.Info("conversation created", "conversation_id", v.ID)
	return v, nil
}

// Rename sets the display name of id.
func (s *ConversationService) Rename(ctx context.Context, id, name string) (conversation.Summary, error) {
	key := conversation.SanitizeID(id)
	if key == "" {
		return conversation.Summary{}, fmt.Errorf("%w: invalid conversation id", domain.ErrValidation)
	}
	release, err := s.locks.Acquire(ctx, key)
	if err != nil {
		return conversation.Summary{}, err
	}
	defer release()
	return s.store.RenameForUI(ctx, key, name)
}

// Delete removes id and returns the conversation that became active.
func (s *ConversationService) Delete(ctx context.Context, id, preferredActiveID string) (store.DeleteResult, error) {
	key := conversation.SanitizeID(id)
	if key == "" {
		return store.DeleteResult{}, fmt.Errorf("%w: invalid conversation id", domain.ErrValidation)
	}
	release, err := s.locks.Acquire(ctx, key)
	if err != nil {
		return store.DeleteResult{}, err
	}
	defer release()

	res, err := s.store.DeleteForUI(ctx, key, preferredActiveID)
	if err != nil {
		return store.DeleteResult{}, err
	}
	s.log.Info("conversation deleted", "conversation_id", res.DeletedID, "active_id", res.ActiveID)
	return res, nil
}
