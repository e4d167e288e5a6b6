package db

import (
	"time"

	"gorm.io/gorm"
)

const (
	RaceWaiting   = "waiting"
	RaceActive    = "active"
	RaceCompleted = "completed"
)

type Race struct {
	ID           string            `gorm:"primaryKey;size:36" json:"id"`
	Name         string            `gorm:"size:50;not null" json:"name"`
	Status       string            `gorm:"size:16;not null;index" json:"status"`
	CreatedBy    *string           `gorm:"size:36" json:"createdBy"`
	StartedAt    *time.Time        `json:"startedAt"`
	CompletedAt  *time.Time        `json:"completedAt"`
	Version      int               `gorm:"not null;default:0" json:"version"`
	Participants []RaceParticipant `json:"participants"`
	RaceGames    []RaceGame        `json:"raceGames"`
	CreatedAt    time.Time         `gorm:"not null;index" json:"createdAt"`
	UpdatedAt    time.Time         `gorm:"not null" json:"updatedAt"`
}

func (r *Race) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.Status == "" {
		r.Status = RaceWaiting
	}
	return nil
}

type RaceParticipant struct {
	ID          string               `gorm:"primaryKey;size:36" json:"id"`
	RaceID      string               `gorm:"size:36;index;not null" json:"raceId"`
	UserID      *string              `gorm:"size:36;index" json:"userId"`
	User        *User                `gorm:"constraint:OnDelete:SET NULL" json:"user,omitempty"`
	GuestName   string               `gorm:"size:30" json:"guestName,omitempty"`
	GuestToken  string               `gorm:"size:64" json:"-"`
	FinishedAt  *time.Time           `json:"finishedAt"`
	Completions []RaceGameCompletion `gorm:"foreignKey:ParticipantID" json:"completions"`
	CreatedAt   time.Time            `gorm:"not null" json:"createdAt"`
}

func (p *RaceParticipant) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = newID()
	}
	return nil
}

// DisplayName is the user's name or the guest name.
func (p RaceParticipant) DisplayName() string {
	if p.User != nil && p.User.Name != "" {
		return p.User.Name
	}
	if p.GuestName != "" {
		return p.GuestName
	}
	return "Player"
}

type RaceGame struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	RaceID string `gorm:"size:36;not null;uniqueIndex:idx_race_games_order" json:"raceId"`
	GameID string `gorm:"size:36;not null;index" json:"gameId"`
	Game   Game   `json:"game"`
	Order  int    `gorm:"column:sort_order;not null;uniqueIndex:idx_race_games_order" json:"order"`
}

func (g *RaceGame) BeforeCreate(*gorm.DB) error {
	if g.ID == "" {
		g.ID = newID()
	}
	return nil
}

type RaceGameCompletion struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	RaceGameID     string    `gorm:"size:36;not null;uniqueIndex:idx_completion_pair" json:"raceGameId"`
	ParticipantID  string    `gorm:"size:36;not null;uniqueIndex:idx_completion_pair" json:"participantId"`
	Skipped        bool      `gorm:"not null" json:"skipped"`
	TimeToComplete int       `gorm:"not null" json:"timeToComplete"`
	CompletedAt    time.Time `gorm:"not null" json:"completedAt"`
}

func (c *RaceGameCompletion) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = newID()
	}
	return nil
}

// DeleteRace removes a race and all of its children.
func DeleteRace(tx *gorm.DB, raceID string) (bool, error) {
	var participantIDs []string
	if err := tx.Model(&RaceParticipant{}).Where("race_id = ?", raceID).Pluck("id", &participantIDs).Error; err != nil {
		return false, err
	}
	if len(participantIDs) > 0 {
		if err := tx.Where("participant_id IN ?", participantIDs).Delete(&RaceGameCompletion{}).Error; err != nil {
			return false, err
		}
	}
	for _, model := range []any{&RaceParticipant{}, &RaceGame{}, &RaceEvent{}} {
		if err := tx.Where("race_id = ?", raceID).Delete(model).Error; err != nil {
			return false, err
		}
	}
	result := tx.Delete(&Race{}, "id = ?", raceID)
	return result.RowsAffected > 0, result.Error
}
