package db

import (
	"time"

	"gorm.io/gorm"
)

const (
	DefaultListColor = "slate"
	// GauntletPresetID is the original collection that preset cleanup
	// never touches.
	GauntletPresetID = "preset-gauntlet"
)

type GameList struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;index;not null" json:"userId"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Color     string    `gorm:"size:32;not null;default:slate" json:"color"`
	Games     []Game    `gorm:"many2many:game_list_games;" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (l *GameList) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.Color == "" {
		l.Color = DefaultListColor
	}
	return nil
}

type PresetList struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Color     string    `gorm:"size:32;not null;default:slate" json:"color"`
	Icon      string    `gorm:"size:64" json:"icon"`
	Order     int       `gorm:"column:sort_order;not null;default:0;index" json:"order"`
	IsActive  bool      `gorm:"not null" json:"isActive"`
	Games     []Game    `gorm:"many2many:preset_list_games;" json:"games"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (p *PresetList) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.Color == "" {
		p.Color = DefaultListColor
	}
	return nil
}

// PresetCleanup describes what CleanupPresetLists did to one list.
type PresetCleanup struct {
	ListID  string
	Name    string
	Removed int
	Kept    int
	Skipped bool
}

// CleanupPresetLists drops games known to block embedding from every
// preset list except the gauntlet collection.
func CleanupPresetLists(conn *gorm.DB) ([]PresetCleanup, error) {
	var lists []PresetList
	if err := conn.Preload("Games").Order("sort_order asc").Find(&lists).Error; err != nil {
		return nil, err
	}
	results := make([]PresetCleanup, 0, len(lists))
	for _, list := range lists {
		result := PresetCleanup{ListID: list.ID, Name: list.Name}
		if list.ID == GauntletPresetID {
			result.Skipped = true
			result.Kept = len(list.Games)
			results = append(results, result)
			continue
		}
		var blocked []Game
		for _, game := range list.Games {
			if game.EmbedSupported != nil && !*game.EmbedSupported {
				blocked = append(blocked, game)
			}
		}
		result.Removed = len(blocked)
		result.Kept = len(list.Games) - len(blocked)
		if len(blocked) > 0 {
			if err := conn.Model(&list).Association("Games").Delete(blocked); err != nil {
				return results, err
			}
		}
		results = append(results, result)
	}
	return results, nil
}
