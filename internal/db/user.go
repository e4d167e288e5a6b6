package db

import (
	"time"

	"dles/internal/roles"

	"gorm.io/gorm"
)

type User struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	Name          string     `gorm:"size:120;not null;default:''" json:"name"`
	Email         string     `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Image         string     `gorm:"size:512" json:"image,omitempty"`
	Role          roles.Role `gorm:"size:16;not null;default:member" json:"role"`
	EmailVerified bool       `gorm:"not null;default:false" json:"emailVerified"`
	CreatedAt     time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updatedAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = newID()
	}
	if u.Role == "" {
		u.Role = roles.Member
	}
	return nil
}

// DeleteUser removes a user together with everything they own. Race
// participation is kept and detached so opponents keep their history.
func DeleteUser(tx *gorm.DB, userID string) (bool, error) {
	var listIDs []string
	if err := tx.Model(&GameList{}).Where("user_id = ?", userID).Pluck("id", &listIDs).Error; err != nil {
		return false, err
	}
	if len(listIDs) > 0 {
		if err := tx.Exec("DELETE FROM game_list_games WHERE game_list_id IN ?", listIDs).Error; err != nil {
			return false, err
		}
	}
	cleanups := []any{&GameList{}, &UserGame{}, &GamePlayLog{}, &Session{}}
	for _, model := range cleanups {
		if err := tx.Where("user_id = ?", userID).Delete(model).Error; err != nil {
			return false, err
		}
	}
	if err := tx.Where("submitted_by = ?", userID).Delete(&GameSubmission{}).Error; err != nil {
		return false, err
	}
	if err := tx.Model(&RaceParticipant{}).Where("user_id = ?", userID).Update("user_id", nil).Error; err != nil {
		return false, err
	}
	result := tx.Delete(&User{}, "id = ?", userID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// PromoteUser sets the role of the user with the given email.
func PromoteUser(conn *gorm.DB, email string, role roles.Role) (User, error) {
	var user User
	if err := conn.Where("email = ?", email).First(&user).Error; err != nil {
		return user, err
	}
	if err := conn.Model(&user).Update("role", role).Error; err != nil {
		return user, err
	}
	user.Role = role
	return user, nil
}
