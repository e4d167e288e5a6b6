package db

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Topics is the fixed set of game categories.
var Topics = []string{
	"words",
	"puzzle",
	"geography",
	"trivia",
	"entertainment",
	"gaming",
	"nature",
	"food",
	"sports",
}

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 500
)

func ValidTopic(topic string) bool {
	return lo.Contains(Topics, topic)
}

// ValidLink accepts absolute http and https URLs only.
func ValidLink(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

type Game struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Title          string    `gorm:"size:200;not null" json:"title"`
	Link           string    `gorm:"size:2048;uniqueIndex;not null" json:"link"`
	Topic          string    `gorm:"size:32;index;not null" json:"topic"`
	Archived       bool      `gorm:"not null;default:false;index" json:"archived"`
	EmbedSupported *bool     `json:"embedSupported"`
	PlayCount      int       `gorm:"not null;default:0" json:"playCount"`
	CreatedAt      time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"not null" json:"updatedAt"`
}

func (g *Game) BeforeCreate(*gorm.DB) error {
	if g.ID == "" {
		g.ID = newID()
	}
	return nil
}

// GameRecord is the importable shape of a game.
type GameRecord struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Topic     string `json:"topic"`
	PlayCount int    `json:"playCount,omitempty"`
}

// Normalize trims the record and validates it, returning every problem
// joined into one message.
func (r GameRecord) Normalize() (GameRecord, error) {
	r.Title = strings.TrimSpace(r.Title)
	r.Link = strings.TrimSpace(r.Link)
	r.Topic = strings.ToLower(strings.TrimSpace(r.Topic))
	var issues []string
	if r.Title == "" {
		issues = append(issues, "Title is required")
	} else if len(r.Title) > MaxTitleLength {
		issues = append(issues, "Title too long")
	}
	if !ValidLink(r.Link) {
		issues = append(issues, "URL must use HTTP or HTTPS protocol")
	}
	if !ValidTopic(r.Topic) {
		issues = append(issues, fmt.Sprintf("Invalid topic %q", r.Topic))
	}
	if r.PlayCount < 0 {
		r.PlayCount = 0
	}
	if len(issues) > 0 {
		return r, errors.New(strings.Join(issues, ", "))
	}
	return r, nil
}

// DeleteGames removes games and every row that references them. Play logs
// are kept for stats history.
func DeleteGames(tx *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var raceGameIDs []string
	if err := tx.Model(&RaceGame{}).Where("game_id IN ?", ids).Pluck("id", &raceGameIDs).Error; err != nil {
		return 0, err
	}
	if len(raceGameIDs) > 0 {
		if err := tx.Where("race_game_id IN ?", raceGameIDs).Delete(&RaceGameCompletion{}).Error; err != nil {
			return 0, err
		}
		if err := tx.Where("id IN ?", raceGameIDs).Delete(&RaceGame{}).Error; err != nil {
			return 0, err
		}
	}
	if err := tx.Exec("DELETE FROM game_list_games WHERE game_id IN ?", ids).Error; err != nil {
		return 0, err
	}
	if err := tx.Exec("DELETE FROM preset_list_games WHERE game_id IN ?", ids).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("game_id IN ?", ids).Delete(&UserGame{}).Error; err != nil {
		return 0, err
	}
	result := tx.Where("id IN ?", ids).Delete(&Game{})
	return result.RowsAffected, result.Error
}
