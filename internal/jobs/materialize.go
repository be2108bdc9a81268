package jobs

import (
	"context"
	"log"
	"time"

	"github.com/studently/attendance/internal/config"
	"github.com/studently/attendance/internal/db"
)

// StartMaterializeJob periodically creates the day's attendance rows for
// every enrolled student and scheduled period. Inserts are idempotent, so a
// short interval only costs no-op conflicts.
func StartMaterializeJob(ctx context.Context, cfg config.Config, store *db.Store) {
	if !cfg.MaterializeJobEnabled {
		return
	}
	interval := cfg.MaterializeJobInterval
	if interval <= 0 {
		interval = time.Hour
	}
	timeout := cfg.MaterializeJobTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				day := time.Now().UTC().Truncate(24 * time.Hour)
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				created, err := store.MaterializeDay(tickCtx, day)
				cancel()
				if err != nil {
					log.Printf("materialize job error: %v", err)
					continue
				}
				if created > 0 {
					log.Printf("materialize job created %d attendance records for %s", created, day.Format("2006-01-02"))
				}
			}
		}
	}()
}
