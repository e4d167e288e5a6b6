package jobs

import (
	"context"

	"dles/internal/db"
	"dles/internal/embedcheck"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

type ScanError struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Link  string `json:"link"`
	Error string `json:"error"`
}

// ScanReport summarizes an embed scan. Checked counts games that answered;
// Updated counts games whose stored flag changed.
type ScanReport struct {
	Total   int         `json:"total"`
	Checked int         `json:"checked"`
	Updated int         `json:"updated"`
	Blocked int         `json:"blocked"`
	Allowed int         `json:"allowed"`
	Errors  []ScanError `json:"errors"`
}

// ScanGames checks the given games, or every non-archived game when ids is
// empty, and stores the embed flag of each game whose answer changed it.
func ScanGames(ctx context.Context, conn *gorm.DB, checker *embedcheck.Checker, concurrency int, ids ...string) (ScanReport, error) {
	report := ScanReport{Errors: []ScanError{}}
	var games []db.Game
	query := conn.WithContext(ctx).Order("title asc")
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	} else {
		query = query.Where("archived = ?", false)
	}
	if err := query.Find(&games).Error; err != nil {
		return report, err
	}
	report.Total = len(games)
	if len(games) == 0 {
		return report, nil
	}

	byID := lo.KeyBy(games, func(g db.Game) string { return g.ID })
	targets := lo.Map(games, func(g db.Game, _ int) embedcheck.Target {
		return embedcheck.Target{ID: g.ID, URL: g.Link}
	})
	for _, outcome := range checker.Scan(ctx, targets, concurrency) {
		game := byID[outcome.ID]
		if outcome.Err != nil {
			report.Errors = append(report.Errors, ScanError{
				ID:    game.ID,
				Title: game.Title,
				Link:  game.Link,
				Error: outcome.Err.Error(),
			})
			continue
		}
		report.Checked++
		if outcome.Blocked {
			report.Blocked++
		} else {
			report.Allowed++
		}
		changed, err := StoreEmbedFlag(ctx, conn, game, !outcome.Blocked)
		if err != nil {
			return report, err
		}
		if changed {
			report.Updated++
		}
	}
	return report, nil
}

// StoreEmbedFlag writes supported to the game when it differs from the
// stored tri-state value.
func StoreEmbedFlag(ctx context.Context, conn *gorm.DB, game db.Game, supported bool) (bool, error) {
	if game.EmbedSupported != nil && *game.EmbedSupported == supported {
		return false, nil
	}
	err := conn.WithContext(ctx).Model(&db.Game{}).
		Where("id = ?", game.ID).
		Update("embed_supported", supported).Error
	return err == nil, err
}

// ResetEmbedFlags clears the embed flag back to unknown for the given
// games, or for every game when ids is empty.
func ResetEmbedFlags(ctx context.Context, conn *gorm.DB, ids ...string) (int64, error) {
	query := conn.WithContext(ctx).Model(&db.Game{})
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	} else {
		query = query.Where("embed_supported IS NOT NULL")
	}
	result := query.Update("embed_supported", nil)
	return result.RowsAffected, result.Error
}
