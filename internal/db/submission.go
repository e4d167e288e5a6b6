package db

import (
	"time"

	"gorm.io/gorm"
)

const (
	SubmissionPending  = "PENDING"
	SubmissionApproved = "APPROVED"
	SubmissionRejected = "REJECTED"
)

type GameSubmission struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Link        string     `gorm:"size:2048;not null" json:"link"`
	Topic       string     `gorm:"size:32;not null" json:"topic"`
	Description string     `gorm:"size:500;not null;default:''" json:"description"`
	Status      string     `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	SubmittedBy string     `gorm:"size:36;index;not null" json:"submittedBy"`
	User        *User      `gorm:"foreignKey:SubmittedBy" json:"user,omitempty"`
	ReviewedBy  *string    `gorm:"size:36" json:"reviewedBy"`
	ReviewNote  string     `gorm:"size:500" json:"reviewNote"`
	ReviewedAt  *time.Time `json:"reviewedAt"`
	GameID      *string    `gorm:"size:36" json:"gameId"`
	CreatedAt   time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updatedAt"`
}

func (s *GameSubmission) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = newID()
	}
	if s.Status == "" {
		s.Status = SubmissionPending
	}
	return nil
}

// Terminal reports whether the submission has already been reviewed.
func (s GameSubmission) Terminal() bool {
	return s.Status == SubmissionApproved || s.Status == SubmissionRejected
}
