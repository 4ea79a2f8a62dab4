package service

import (
	"context"
	"log/slog"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/settings"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/store"
)

// DashboardService reads and updates the admin routing controls.
type DashboardService struct {
	store store.Controls
	log   *slog.Logger
}

// NewDashboardService creates a DashboardService.
func NewDashboardService(st store.Controls, log *slog.Logger) *DashboardService {
	return &DashboardService{store: st, log: log}
}

// Controls returns the current controls.
func (s *DashboardService) Controls(ctx context.Context) (settings.Controls, error) {
	return s.store.LoadControls(ctx)
}

// Update applies a partial change and returns the stored result.
func (s *DashboardService) Update(ctx context.Context, u settings.Update) (settings.Controls, error) {
	c, err := s.store.UpdateControls(ctx, u)
	if err != nil {
		return settings.Controls{}, err
	}
	s.log.Info("dashboard controls updated",
		"routing_sensitivity", c.RoutingSensitivity,
		"history_compression", c.HistoryCompression,
		"thresholds", len(c.UserPromptThresholds),
		"locked_users", len(c.LockedUserKnobs),
	)
	return c, nil
}
