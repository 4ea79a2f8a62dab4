package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/settings"
)

// LoadControls reads the dashboard controls fresh from disk. A missing file
// yields the defaults; a corrupt one is logged and treated as missing.
func (s *Store) LoadControls(ctx context.Context) (settings.Controls, error) {
	if err := ctx.Err(); err != nil {
		return settings.Controls{}, err
	}
	data, err := os.ReadFile(s.controlsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings.Defaults(), nil
		}
		return settings.Controls{}, fmt.Errorf("read dashboard controls: %w", err)
	}
	c := settings.Defaults()
	if err := json.Unmarshal(data, &c); err != nil {
		s.log.WarnContext(ctx, "dashboard controls unreadable, using defaults", "path", s.controlsPath, "error", err)
		return settings.Defaults(), nil
	}
	return c.Normalize(), nil
}

// UpdateControls applies u to the stored controls and writes them back.
// There is no lock around the read-modify-write.
func (s *Store) UpdateControls(ctx context.Context, u settings.Update) (settings.Controls, error) {
	c, err := s.LoadControls(ctx)
	if err != nil {
		return settings.Controls{}, err
	}
	c = c.Apply(u)
	if err := writeJSONAtomic(s.controlsPath, c); err != nil {
		return settings.Controls{}, fmt.Errorf("write dashboard controls: %w", err)
	}
	return c, nil
}
