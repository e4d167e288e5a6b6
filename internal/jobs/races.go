package jobs

import (
	"context"
	"time"

	"dles/internal/db"

	"gorm.io/gorm"
)

// RaceCleanup lists the races a cleanup pass touched.
type RaceCleanup struct {
	Deleted   []string
	Completed []string
}

// CleanupRaces deletes waiting races created before now-waitingTTL and
// force-completes active races started before now-activeTTL. A zero TTL
// skips that half.
func CleanupRaces(ctx context.Context, conn *gorm.DB, now time.Time, waitingTTL, activeTTL time.Duration) (RaceCleanup, error) {
	var out RaceCleanup
	conn = conn.WithContext(ctx)

	if waitingTTL > 0 {
		var stale []string
		if err := conn.Model(&db.Race{}).
			Where("status = ? AND created_at <= ?", db.RaceWaiting, now.Add(-waitingTTL)).
			Pluck("id", &stale).Error; err != nil {
			return out, err
		}
		for _, id := range stale {
			var deleted bool
			err := conn.Transaction(func(tx *gorm.DB) error {
				var err error
				deleted, err = db.DeleteRace(tx, id)
				return err
			})
			if err != nil {
				return out, err
			}
			if deleted {
				out.Deleted = append(out.Deleted, id)
			}
		}
	}

	if activeTTL > 0 {
		var stale []string
		if err := conn.Model(&db.Race{}).
			Where("status = ? AND started_at <= ?", db.RaceActive, now.Add(-activeTTL)).
			Pluck("id", &stale).Error; err != nil {
			return out, err
		}
		for _, id := range stale {
			result := conn.Model(&db.Race{}).
				Where("id = ? AND status = ?", id, db.RaceActive).
				Updates(map[string]any{
					"status":       db.RaceCompleted,
					"completed_at": now,
					"version":      gorm.Expr("version + 1"),
				})
			if result.Error != nil {
				return out, result.Error
			}
			if result.RowsAffected > 0 {
				out.Completed = append(out.Completed, id)
			}
		}
	}
	return out, nil
}
