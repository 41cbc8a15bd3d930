package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"programhub/internal/config"
	"programhub/internal/db"
)

// StartCohortStatusJob rolls cohort statuses forward on a timer: scheduled
// cohorts whose start date has passed become active, and cohorts past their
// end date become completed. Both updates are idempotent, so a missed tick
// is caught up on the next one.
func StartCohortStatusJob(ctx context.Context, cfg config.Config, store *db.Store, logger *zap.Logger) {
	if !cfg.CohortStatusJobEnabled {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.CohortStatusJobInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				tickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				activated, err := store.Queries.ActivateDueCohorts(tickCtx, now)
				if err != nil {
					cancel()
					logger.Error("cohort status job: activate failed", zap.Error(err))
					continue
				}
				completed, err := store.Queries.CompleteDueCohorts(tickCtx, now)
				cancel()
				if err != nil {
					logger.Error("cohort status job: complete failed", zap.Error(err))
					continue
				}
				if activated > 0 || completed > 0 {
					logger.Info("cohort status job advanced cohorts",
						zap.Int64("activated", activated),
						zap.Int64("completed", completed))
				}
			}
		}
	}()
}
