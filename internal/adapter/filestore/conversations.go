package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/conversation"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/store"
)

// Ensure loads id, creates a fresh bundle at id when the file is missing,
// or allocates the next sequential id when id sanitizes to empty.
func (s *Store) Ensure(ctx context.Context, rawID string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	id := conversation.SanitizeID(rawID)
	if id == "" {
		return s.allocate()
	}
	rec, err := s.readBundle(id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return store.Record{}, err
	}
	rec = store.Record{ID: id, Path: s.pathFor(id), Bundle: conversation.New(id, s.now())}
	if err := s.writeBundle(rec); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

// EnsureExisting loads id and fails with domain.ErrNotFound when absent.
func (s *Store) EnsureExisting(ctx context.Context, rawID string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	id := conversation.SanitizeID(rawID)
	if id == "" {
		return store.Record{}, fmt.Errorf("%w: conversation id is required", domain.ErrValidation)
	}
	return s.readBundle(id)
}

// allocate creates conversation<N+1> where N is the highest existing number.
func (s *Store) allocate() (store.Record, error) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return store.Record{}, fmt.Errorf("scan conversations: %w", err)
	}
	highest := 0
	for _, e := range entries {
		if n, ok := conversation.IDNumber(strings.TrimSuffix(e.Name(), ".json")); ok && !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			highest = max(highest, n)
		}
	}
	id := conversation.IDForNumber(highest + 1)
	rec := store.Record{ID: id, Path: s.pathFor(id), Bundle: conversation.New(id, s.now())}
	if err := s.writeBundle(rec); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

// PersistPromptSnapshot merges incoming into the stored transcript by
// message id, never dropping stored messages, and records the model and
// owner when given.
func (s *Store) PersistPromptSnapshot(ctx context.Context, id string, incoming []conversation.UIMessage, opts store.SnapshotOptions) (store.Record, error) {
	var (
		rec store.Record
		err error
	)
	if opts.AllowCreate {
		rec, err = s.Ensure(ctx, id)
	} else {
		rec, err = s.EnsureExisting(ctx, id)
	}
	if err != nil {
		return store.Record{}, err
	}

	now := s.now()
	rec.Bundle.MergeMessages(conversation.FromUI(incoming, now))
	if m := strings.TrimSpace(opts.ModelName); m != "" {
		rec.Bundle.Model.Name = m
	}
	rec.Bundle.SetOwner(opts.UserID, opts.UserName)
	rec.Bundle.Touch(now)

	if err := s.writeBundle(rec); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

// AppendAssistantCompletion appends text as an assistant message. Blank
// text and an exact repeat of the previous assistant message are no-ops.
func (s *Store) AppendAssistantCompletion(ctx context.Context, id, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	rec, err := s.EnsureExisting(ctx, id)
	if err != nil {
		return err
	}
	now := s.now()
	if !rec.Bundle.AppendAssistant(text, now) {
		return nil
	}
	rec.Bundle.Touch(now)
	return s.writeBundle(rec)
}

// SetModel records model on the bundle if it differs.
func (s *Store) SetModel(ctx context.Context, id, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil
	}
	rec, err := s.EnsureExisting(ctx, id)
	if err != nil {
		return err
	}
	if rec.Bundle.Model.Name == model {
		return nil
	}
	rec.Bundle.Model.Name = model
	rec.Bundle.Touch(s.now())
	return s.writeBundle(rec)
}

// CountUserPrompts counts stored user messages across bundles owned by userID.
func (s *Store) CountUserPrompts(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, nil
	}
	recs, err := s.loadAll(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, r := range recs {
		if r.Bundle.Conversation.UserID == userID {
			total += r.Bundle.CountUserMessages()
		}
	}
	return total, nil
}

// loadAll reads every bundle, most recently updated first. Unreadable files
// are logged and skipped.
func (s *Store) loadAll(ctx context.Context) ([]store.Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan conversations: %w", err)
	}
	recs := make([]store.Record, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if id == "" || conversation.SanitizeID(id) != id {
			continue
		}
		rec, err := s.readBundle(id)
		if err != nil {
			s.log.WarnContext(ctx, "skipping unreadable conversation", "conversation_id", id, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	sortByRecency(recs)
	return recs, nil
}

func sortByRecency(recs []store.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].Bundle.Conversation, recs[j].Bundle.Conversation
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		na, _ := conversation.IDNumber(a.ID)
		nb, _ := conversation.IDNumber(b.ID)
		if na != nb {
			return na > nb
		}
		return a.ID < b.ID
	})
}
