package workers

import (
	"chat-delivery/observability"
	"chat-delivery/repositories"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

const retryAfterTickFailure = 30 * time.Second

// RetentionWorker purges read notifications older than maxAge on a cron schedule.
// Unread notifications are never purged.
type RetentionWorker struct {
	log           *slog.Logger
	notifications repositories.INotificationRepository
	metrics       *observability.Metrics
	cron          string
	maxAge        time.Duration
	now           func() time.Time
}

func NewRetentionWorker(
	log *slog.Logger,
	notifications repositories.INotificationRepository,
	metrics *observability.Metrics,
	cron string,
	maxAge time.Duration,
) (*RetentionWorker, error) {
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid retention cron expression: %q", cron)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", maxAge)
	}
	return &RetentionWorker{
		log:           log,
		notifications: notifications,
		metrics:       metrics,
		cron:          cron,
		maxAge:        maxAge,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run sleeps until the next cron tick, purges, and starts over.
func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info("Starting retention worker", "cron", w.cron, "max_age", w.maxAge)
	for {
		next, err := gronx.NextTickAfter(w.cron, w.now(), false)
		wait := time.Until(next)
		if err != nil {
			w.log.Error("Failed to compute next retention tick", "cron", w.cron, "error", err)
			wait = retryAfterTickFailure
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if err != nil {
			continue
		}
		if _, err = w.RunOnce(); err != nil {
			return err
		}
	}
}

// RunOnce purges now and returns how many notifications were removed.
func (w *RetentionWorker) RunOnce() (int, error) {
	cutoff := w.now().Add(-w.maxAge)
	purged, err := w.notifications.DeleteReadBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention run: %w", err)
	}
	w.metrics.NotificationsPurged.Add(float64(purged))
	w.log.Info("Retention run done", "cutoff", cutoff, "purged", purged)
	return purged, nil
}
