package server

import (
	"errors"
	"net/http"
	"time"

	"dles/internal/apperr"
	"dles/internal/db"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type listRequest struct {
	Name  string `json:"name" binding:"required,nonblank,max=100"`
	Color string `json:"color" binding:"omitempty,listcolor"`
}

type listUpdateRequest struct {
	Name  *string `json:"name" binding:"omitempty,nonblank,max=100"`
	Color *string `json:"color" binding:"omitempty,listcolor"`
}

type listGameRequest struct {
	GameID string `json:"gameId" binding:"required"`
}

var listMessages = bindMessages{
	"Name":   {"required": "List name is required", "nonblank": "List name is required", "max": "List name too long"},
	"Color":  {"listcolor": "Invalid color"},
	"GameID": {"required": "Game ID required"},
}

type listView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Games     []string  `json:"games"`
	GameCount int       `json:"gameCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newListView(list db.GameList) listView {
	ids := lo.Map(list.Games, func(g db.Game, _ int) string { return g.ID })
	return listView{
		ID:        list.ID,
		UserID:    list.UserID,
		Name:      list.Name,
		Color:     list.Color,
		Games:     ids,
		GameCount: len(ids),
		CreatedAt: list.CreatedAt,
		UpdatedAt: list.UpdatedAt,
	}
}

// ownedList loads a list of the signed-in user. Lists of other users are
// reported as missing.
func (s *Server) ownedList(c *gin.Context, tx *gorm.DB) (db.GameList, error) {
	user, _ := currentUser(c)
	var list db.GameList
	err := tx.Preload("Games").First(&list, "id = ? AND user_id = ?", c.Param("id"), user.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return list, apperr.NotFound("List not found")
	}
	return list, err
}

func (s *Server) userLists(c *gin.Context, userID string) ([]listView, error) {
	var lists []db.GameList
	if err := s.db.WithContext(c.Request.Context()).
		Preload("Games", func(tx *gorm.DB) *gorm.DB { return tx.Select("games.id") }).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&lists).Error; err != nil {
		return nil, err
	}
	return lo.Map(lists, func(l db.GameList, _ int) listView { return newListView(l) }), nil
}

func (s *Server) handleListLists(c *gin.Context) {
	user, _ := currentUser(c)
	views, err := s.userLists(c, user.ID)
	if err != nil {
		s.respondError(c, err, "Failed to fetch lists")
		return
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleCreateList(c *gin.Context) {
	user, _ := currentUser(c)
	var req listRequest
	if !bindJSON(c, &req, listMessages, "Invalid list") {
		return
	}
	site := s.siteConfig(c)
	list := db.GameList{UserID: user.ID, Name: cleanText(req.Name), Color: req.Color}
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db.GameList{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
			return err
		}
		if site.MaxCustomLists > 0 && count >= int64(site.MaxCustomLists) {
			return apperr.Forbidden("List limit reached")
		}
		return tx.Create(&list).Error
	})
	if err != nil {
		s.respondError(c, err, "Failed to create list")
		return
	}
	c.JSON(http.StatusOK, newListView(list))
}

func (s *Server) handleUpdateList(c *gin.Context) {
	var req listUpdateRequest
	if !bindJSON(c, &req, listMessages, "Invalid list") {
		return
	}
	conn := s.db.WithContext(c.Request.Context())
	list, err := s.ownedList(c, conn)
	if err != nil {
		s.respondError(c, err, "Failed to update list")
		return
	}
	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = cleanText(*req.Name)
	}
	if req.Color != nil && *req.Color != "" {
		updates["color"] = *req.Color
	}
	if len(updates) > 0 {
		if err := conn.Model(&db.GameList{}).Where("id = ?", list.ID).Updates(updates).Error; err != nil {
			s.respondError(c, err, "Failed to update list")
			return
		}
	}
	list, err = s.ownedList(c, conn)
	if err != nil {
		s.respondError(c, err, "Failed to update list")
		return
	}
	c.JSON(http.StatusOK, newListView(list))
}

func (s *Server) handleDeleteList(c *gin.Context) {
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		list, err := s.ownedList(c, tx)
		if err != nil {
			return err
		}
		if err := tx.Model(&list).Association("Games").Clear(); err != nil {
			return err
		}
		return tx.Delete(&list).Error
	})
	if err != nil {
		s.respondError(c, err, "Failed to delete list")
		return
	}
	writeSuccess(c)
}

func (s *Server) handleAddListGame(c *gin.Context) {
	s.changeListGame(c, true)
}

func (s *Server) handleRemoveListGame(c *gin.Context) {
	s.changeListGame(c, false)
}

// changeListGame adds or removes one game. Both directions are idempotent.
func (s *Server) changeListGame(c *gin.Context, add bool) {
	var req listGameRequest
	if !bindJSON(c, &req, listMessages, "Game ID required") {
		return
	}
	var list db.GameList
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		list, err = s.ownedList(c, tx)
		if err != nil {
			return err
		}
		if add {
			var game db.Game
			if err := tx.First(&game, "id = ?", req.GameID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.NotFound("Game not found")
				}
				return err
			}
			if err := tx.Exec("INSERT INTO game_list_games (game_list_id, game_id) VALUES (?, ?) ON CONFLICT DO NOTHING", list.ID, game.ID).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Exec("DELETE FROM game_list_games WHERE game_list_id = ? AND game_id = ?", list.ID, req.GameID).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&db.GameList{}).Where("id = ?", list.ID).Update("updated_at", s.now()).Error; err != nil {
			return err
		}
		list, err = s.ownedList(c, tx)
		return err
	})
	if err != nil {
		s.respondError(c, err, "Failed to update list")
		return
	}
	c.JSON(http.StatusOK, newListView(list))
}
