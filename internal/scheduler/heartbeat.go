package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cutroom/internal/logging"
	"cutroom/internal/queue"
)

// HeartbeatMonitor keeps processing jobs visibly alive and reclaims the
// ones whose owner died without finishing.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a monitor. A non-positive timeout disables
// reclamation.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:    store,
		logger:   logging.WithComponent(logger, "heartbeat"),
		interval: interval,
		timeout:  timeout,
	}
}

// ReclaimStaleJobs returns jobs with expired heartbeats to pending.
func (h *HeartbeatMonitor) ReclaimStaleJobs(ctx context.Context) error {
	if h.timeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
	}
	return nil
}

// StartLoop refreshes one job's heartbeat until the context ends.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, jobID string) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				h.logger.Warn("heartbeat update failed",
					logging.String(logging.FieldJobID, jobID), logging.Error(err))
			}
		}
	}
}
