// Package tools defines the ports for the collaborators that add context to a
// chat prompt: document OCR and the web and deep search servers.
package tools

import (
	"context"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/attachment"
)

// Page is one OCR page.
type Page struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// OCR converts one document into markdown pages.
type OCR interface {
	Pages(ctx context.Context, doc attachment.Decoded) ([]Page, error)
}

// Mode selects a search server.
type Mode string

// Search modes.
const (
	ModeWeb  Mode = "web"
	ModeDeep Mode = "deep"
)

// NoResults is the sentinel a search server answers with when it found
// nothing relevant.
const NoResults = "NO_RESULTS"

// Searcher runs one search against the server of its mode.
type Searcher interface {
	// Search returns the findings for query, or NoResults.
	Search(ctx context.Context, query string) (string, error)
}
