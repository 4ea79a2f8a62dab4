// Package store defines the conversation and dashboard persistence ports.
package store

import (
	"context"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/conversation"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/settings"
)

// Record is a loaded conversation with its file location.
type Record struct {
	ID     string
	Path   string
	Bundle *conversation.Bundle
}

// SnapshotOptions controls PersistPromptSnapshot.
type SnapshotOptions struct {
	AllowCreate bool
	ModelName   string
	UserID      string
	UserName    string
}

// DeleteResult reports the outcome of a delete.
type DeleteResult struct {
	DeletedID string                 `json:"deletedId"`
	ActiveID  string                 `json:"activeId"`
	Active    conversation.View      `json:"active"`
	Remaining []conversation.Summary `json:"conversations"`
}

// Conversations is the port for the conversation store. Callers mutating a
// single conversation are expected to hold its conversation lock.
type Conversations interface {
	// Ensure loads id, creates it when missing, or allocates the next
	// sequential id when id is empty.
	Ensure(ctx context.Context, id string) (Record, error)
	// EnsureExisting loads id and fails with domain.ErrNotFound if absent.
	EnsureExisting(ctx context.Context, id string) (Record, error)
	// PersistPromptSnapshot merges incoming UI messages into the stored
	// transcript by id.
	PersistPromptSnapshot(ctx context.Context, id string, incoming []conversation.UIMessage, opts SnapshotOptions) (Record, error)
	// AppendAssistantCompletion appends the assistant reply.
	AppendAssistantCompletion(ctx context.Context, id, text string) error
	// SetModel records the model that actually answered.
	SetModel(ctx context.Context, id, model string) error

	LoadForUI(ctx context.Context, id string) (conversation.View, error)
	ListForUI(ctx context.Context) ([]conversation.Summary, error)
	CreateForUI(ctx context.Context) (conversation.View, error)
	RenameForUI(ctx context.Context, id, name string) (conversation.Summary, error)
	DeleteForUI(ctx context.Context, id, preferredActiveID string) (DeleteResult, error)

	// CountUserPrompts counts stored user messages across the bundles owned
	// by userID.
	CountUserPrompts(ctx context.Context, userID string) (int, error)
	// AddCarbon accumulates kg into the global footprint, best-effort.
	AddCarbon(ctx context.Context, kg float64)
}

// Controls is the port for the dashboard controls file.
type Controls interface {
	LoadControls(ctx context.Context) (settings.Controls, error)
	UpdateControls(ctx context.Context, u settings.Update) (settings.Controls, error)
}
