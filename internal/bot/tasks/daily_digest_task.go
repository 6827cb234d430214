package tasks

import (
	"context"
	"fmt"
)

// newDailyDigestTask creates the scheduled task that sends the daily group
// activity digest to the administrator.
func newDailyDigestTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "daily_digest")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled daily digest task...")

		if err := deps.Summary.DailyDigest(ctx); err != nil {
			log.ErrorContext(ctx, "Daily digest task failed", "error", err)
			return fmt.Errorf("daily digest failed: %w", err)
		}

		log.InfoContext(ctx, "Daily digest task completed successfully")
		return nil
	}
}
