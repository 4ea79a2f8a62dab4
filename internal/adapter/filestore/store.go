// Package filestore implements the conversation and dashboard ports on flat
// JSON files. Every write goes through a temp file in the target directory
// followed by a rename, so readers never observe a partial file.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/config"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/conversation"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/store"
)

var (
	_ store.Conversations = (*Store)(nil)
	_ store.Controls      = (*Store)(nil)
)

// Store keeps one <id>.json bundle per conversation in dir, plus the global
// info and dashboard controls files.
type Store struct {
	dir          string
	globalPath   string
	controlsPath string
	log          *slog.Logger
	now          func() time.Time

	// allocMu serializes sequential id allocation.
	allocMu sync.Mutex
}

// New creates the storage directories and returns a Store.
func New(cfg config.Storage, log *slog.Logger) (*Store, error) {
	dir, err := filepath.Abs(cfg.ConversationsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve conversations dir: %w", err)
	}
	s := &Store{
		dir:          dir,
		globalPath:   cfg.GlobalInfoPath,
		controlsPath: cfg.ControlsPath,
		log:          log,
		now:          time.Now,
	}
	for _, d := range []string{dir, filepath.Dir(s.globalPath), filepath.Dir(s.controlsPath)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}
	return s, nil
}

// Dir returns the absolute conversations directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) readBundle(id string) (store.Record, error) {
	path := s.pathFor(id)
	data, err := os.ReadFile(path) //nolint:gosec // G304: id is sanitized to [a-zA-Z0-9_-]
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store.Record{}, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
		}
		return store.Record{}, fmt.Errorf("read conversation %s: %w", id, err)
	}
	var b conversation.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return store.Record{}, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	b.Normalize(id, s.now())
	return store.Record{ID: id, Path: path, Bundle: &b}, nil
}

func (s *Store) writeBundle(rec store.Record) error {
	if err := writeJSONAtomic(rec.Path, rec.Bundle); err != nil {
		return fmt.Errorf("write conversation %s: %w", rec.ID, err)
	}
	return nil
}

// writeJSONAtomic encodes v with two-space indentation and replaces path
// through a uniquely named sibling temp file.
func writeJSONAtomic(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // G304: derived from store paths
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		cleanup()
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *Store) readGlobal() conversation.GlobalInfo {
	data, err := os.ReadFile(s.globalPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("global info read failed", "path", s.globalPath, "error", err)
	}
	return conversation.DecodeGlobalInfo(data)
}

// updateGlobal read-modify-writes the global info file. Failures are logged
// and swallowed; concurrent updates are last-write-wins.
func (s *Store) updateGlobal(ctx context.Context, fn func(*conversation.GlobalInfo)) {
	g := s.readGlobal()
	fn(&g)
	if err := writeJSONAtomic(s.globalPath, g); err != nil {
		s.log.WarnContext(ctx, "global info write failed", "path", s.globalPath, "error", err)
	}
}

func (s *Store) setActive(ctx context.Context, rec store.Record) {
	s.updateGlobal(ctx, func(g *conversation.GlobalInfo) {
		g.SetActive(rec.ID, rec.Path, rec.Bundle.Conversation.Name)
	})
}

// AddCarbon accumulates kg into the global footprint.
func (s *Store) AddCarbon(ctx context.Context, kg float64) {
	if kg <= 0 {
		return
	}
	s.updateGlobal(ctx, func(g *conversation.GlobalInfo) { g.AddCarbon(kg) })
}

// GlobalInfo returns the current global record.
func (s *Store) GlobalInfo() conversation.GlobalInfo {
	return s.readGlobal()
}
