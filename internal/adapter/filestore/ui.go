package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/conversation"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/store"
)

// LoadForUI returns conversation id, or the active one when id is empty.
// Without a usable active pointer the most recent conversation is used, and
// a new one is created when none exist. The loaded conversation becomes
// active.
func (s *Store) LoadForUI(ctx context.Context, rawID string) (conversation.View, error) {
	var (
		rec store.Record
		err error
	)
	if conversation.SanitizeID(rawID) != "" {
		rec, err = s.EnsureExisting(ctx, rawID)
	} else {
		rec, err = s.resolveActive(ctx)
	}
	if err != nil {
		return conversation.View{}, err
	}
	s.setActive(ctx, rec)
	return conversation.ViewOf(rec.Bundle), nil
}

func (s *Store) resolveActive(ctx context.Context) (store.Record, error) {
	if id := s.readGlobal().ActiveID(); id != "" {
		rec, err := s.readBundle(id)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.WarnContext(ctx, "active conversation unreadable", "conversation_id", id, "error", err)
		}
	}
	recs, err := s.loadAll(ctx)
	if err != nil {
		return store.Record{}, err
	}
	if len(recs) > 0 {
		return recs[0], nil
	}
	return s.allocate()
}

// ListForUI returns every conversation, most recent first.
func (s *Store) ListForUI(ctx context.Context) ([]conversation.Summary, error) {
	recs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return summaries(recs, s.readGlobal().ActiveID()), nil
}

func summaries(recs []store.Record, activeID string) []conversation.Summary {
	out := make([]conversation.Summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, conversation.SummaryOf(r.Bundle, activeID))
	}
	return out
}

// CreateForUI allocates a new conversation and makes it active.
func (s *Store) CreateForUI(ctx context.Context) (conversation.View, error) {
	if err := ctx.Err(); err != nil {
		return conversation.View{}, err
	}
	rec, err := s.allocate()
	if err != nil {
		return conversation.View{}, err
	}
	s.setActive(ctx, rec)
	return conversation.ViewOf(rec.Bundle), nil
}

// RenameForUI sets a sanitized display name and points the global record at
// the renamed conversation, as load and create do.
func (s *Store) RenameForUI(ctx context.Context, rawID, name string) (conversation.Summary, error) {
	clean := conversation.SanitizeName(name)
	if clean == "" {
		return conversation.Summary{}, domain.ErrEmptyName
	}
	rec, err := s.EnsureExisting(ctx, rawID)
	if err != nil {
		return conversation.Summary{}, err
	}
	rec.Bundle.Rename(clean)
	rec.Bundle.Touch(s.now())
	if err := s.writeBundle(rec); err != nil {
		return conversation.Summary{}, err
	}

	s.setActive(ctx, rec)
	return conversation.SummaryOf(rec.Bundle, rec.ID), nil
}

// DeleteForUI removes a conversation and picks the next active one: the
// preferred id if it survives, else the current active id if it survives,
// else the most recent remaining conversation. The only remaining
// conversation cannot be deleted.
func (s *Store) DeleteForUI(ctx context.Context, rawID, preferredActiveID string) (store.DeleteResult, error) {
	target, err := s.EnsureExisting(ctx, rawID)
	if err != nil {
		return store.DeleteResult{}, err
	}
	recs, err := s.loadAll(ctx)
	if err != nil {
		return store.DeleteResult{}, err
	}

	remaining := make([]store.Record, 0, len(recs))
	for _, r := range recs {
		if r.ID != target.ID {
			remaining = append(remaining, r)
		}
	}
	if len(remaining) == 0 {
		return store.DeleteResult{}, domain.ErrLastConversation
	}

	if err := os.Remove(target.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return store.DeleteResult{}, fmt.Errorf("delete conversation %s: %w", target.ID, err)
	}

	next := pickActive(remaining, conversation.SanitizeID(preferredActiveID), s.readGlobal().ActiveID())
	s.setActive(ctx, next)

	return store.DeleteResult{
		DeletedID: target.ID,
		ActiveID:  next.ID,
		Active:    conversation.ViewOf(next.Bundle),
		Remaining: summaries(remaining, next.ID),
	}, nil
}

// pickActive expects remaining sorted by recency and non-empty.
func pickActive(remaining []store.Record, candidates ...string) store.Record {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		for _, r := range remaining {
			if r.ID == c {
				return r
			}
		}
	}
	return remaining[0]
}
