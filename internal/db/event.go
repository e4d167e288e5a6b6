package db

import (
	"time"

	"gorm.io/datatypes"
)

// RaceEvent is the append-only log of race mutations. Clients that cannot
// hold a websocket page through it by id.
type RaceEvent struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	RaceID    string         `gorm:"size:36;index;not null" json:"raceId"`
	Type      string         `gorm:"size:32;not null" json:"type"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt time.Time      `gorm:"not null" json:"createdAt"`
}
