package resilience

import (
	"context"
	"time"
)

// LinearBackoff waits unit*attempt, returning early with ctx.Err() if ctx
// ends first. attempt below one does not wait.
func LinearBackoff(ctx context.Context, unit time.Duration, attempt int) error {
	if attempt < 1 || unit <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(unit * time.Duration(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
