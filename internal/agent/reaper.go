package agent

import (
	"context"
	"time"
)

// CloseInactive closes active conversations with no activity past the
// configured inactivity timeout. Returns how many were closed.
func (a *Agent) CloseInactive(ctx context.Context) (int, error) {
	cutoff := a.now().Add(-a.cfg.InactivityTimeout)
	ids, err := a.store.ListInactiveSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, id := range ids {
		if err := a.End(ctx, id); err != nil {
			a.logger.Warn("closing inactive conversation", "conversation", id, "error", err)
			continue
		}
		closed++
	}
	if closed > 0 {
		a.logger.Info("inactive conversations closed", "count", closed)
	}
	return closed, nil
}

// RunInactivityReaper closes inactive conversations on the given interval
// until ctx is canceled. Blocks; run it in its own goroutine.
func (a *Agent) RunInactivityReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.CloseInactive(ctx); err != nil {
				a.logger.Warn("inactivity sweep failed", "error", err)
			}
		}
	}
}
