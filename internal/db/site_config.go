package db

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const SiteConfigID = "default"

// SiteConfig is the singleton row of site-wide toggles.
type SiteConfig struct {
	ID                         string    `gorm:"primaryKey;size:16" json:"id"`
	NewGameDays                int       `gorm:"not null" json:"newGameDays"`
	MaintenanceMode            bool      `gorm:"not null" json:"maintenanceMode"`
	WelcomeMessage             *string   `gorm:"size:500" json:"welcomeMessage"`
	ShowWelcomeMessage         bool      `gorm:"not null" json:"showWelcomeMessage"`
	MinPlayStreak              int       `gorm:"not null" json:"minPlayStreak"`
	EnableCommunitySubmissions bool      `gorm:"not null" json:"enableCommunitySubmissions"`
	DefaultSort                string    `gorm:"size:16;not null" json:"defaultSort"`
	MaxCustomLists             int       `gorm:"not null" json:"maxCustomLists"`
	UpdatedAt                  time.Time `gorm:"not null" json:"updatedAt"`
}

func DefaultSiteConfig() SiteConfig {
	return SiteConfig{
		ID:                         SiteConfigID,
		NewGameDays:                7,
		MinPlayStreak:              1,
		EnableCommunitySubmissions: true,
		DefaultSort:                "title",
		MaxCustomLists:             10,
	}
}

// EnsureSiteConfig returns the stored configuration, creating the default
// row when it is missing.
func EnsureSiteConfig(conn *gorm.DB) (SiteConfig, error) {
	var cfg SiteConfig
	err := conn.First(&cfg, "id = ?", SiteConfigID).Error
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return cfg, err
	}
	cfg = DefaultSiteConfig()
	if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&cfg).Error; err != nil {
		return cfg, err
	}
	return cfg, nil
}
