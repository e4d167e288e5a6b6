package db

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserGame is one user's state for one game.
type UserGame struct {
	UserID    string     `gorm:"primaryKey;size:36" json:"userId"`
	GameID    string     `gorm:"primaryKey;size:36" json:"gameId"`
	Game      *Game      `json:"game,omitempty"`
	Played    bool       `gorm:"not null" json:"played"`
	PlayedAt  *time.Time `json:"playedAt"`
	Hidden    bool       `gorm:"not null;index" json:"hidden"`
	UpdatedAt time.Time  `gorm:"not null" json:"updatedAt"`
}

type GamePlayLog struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	UserID   string    `gorm:"size:36;not null;index:idx_play_logs_user_time" json:"userId"`
	GameID   string    `gorm:"size:36;not null;index" json:"gameId"`
	PlayedAt time.Time `gorm:"not null;index:idx_play_logs_user_time" json:"playedAt"`
}

// RecordPlay marks the game played for the user and appends a log row.
func RecordPlay(tx *gorm.DB, userID, gameID string, at time.Time) error {
	state := UserGame{UserID: userID, GameID: gameID, Played: true, PlayedAt: &at, UpdatedAt: at}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "game_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"played", "played_at", "updated_at"}),
	}).Create(&state).Error; err != nil {
		return err
	}
	return tx.Create(&GamePlayLog{UserID: userID, GameID: gameID, PlayedAt: at}).Error
}
