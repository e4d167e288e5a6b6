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

type presetRequest struct {
	Name     string `json:"name" binding:"required,nonblank,max=100"`
	Color    string `json:"color" binding:"omitempty,listcolor"`
	Icon     string `json:"icon" binding:"max=64"`
	IsActive *bool  `json:"isActive"`
}

type presetUpdateRequest struct {
	Name     *string `json:"name" binding:"omitempty,nonblank,max=100"`
	Color    *string `json:"color" binding:"omitempty,listcolor"`
	Icon     *string `json:"icon" binding:"omitempty,max=64"`
	Order    *int    `json:"order" binding:"omitempty,min=0"`
	IsActive *bool   `json:"isActive"`
}

var presetMessages = bindMessages{
	"Name":  listMessages["Name"],
	"Color": listMessages["Color"],
	"Icon":  {"max": "Icon too long"},
	"Order": {"min": "Order must not be negative"},
}

type presetGame struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Topic string `json:"topic"`
	Link  string `json:"link"`
}

type presetView struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Color     string       `json:"color"`
	Icon      string       `json:"icon"`
	Order     int          `json:"order"`
	IsActive  bool         `json:"isActive"`
	Games     []presetGame `json:"games"`
	GameCount int          `json:"gameCount"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func newPresetView(p db.PresetList) presetView {
	games := lo.Map(p.Games, func(g db.Game, _ int) presetGame {
		return presetGame{ID: g.ID, Title: g.Title, Topic: g.Topic, Link: g.Link}
	})
	return presetView{
		ID:        p.ID,
		Name:      p.Name,
		Color:     p.Color,
		Icon:      p.Icon,
		Order:     p.Order,
		IsActive:  p.IsActive,
		Games:     games,
		GameCount: len(games),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (s *Server) presetLists(c *gin.Context, activeOnly bool) ([]presetView, error) {
	query := s.db.WithContext(c.Request.Context()).
		Preload("Games", func(tx *gorm.DB) *gorm.DB { return tx.Order("games.title asc") }).
		Order("sort_order asc").
		Order("name asc")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var lists []db.PresetList
	if err := query.Find(&lists).Error; err != nil {
		return nil, err
	}
	return lo.Map(lists, func(p db.PresetList, _ int) presetView { return newPresetView(p) }), nil
}

func loadPreset(tx *gorm.DB, id string) (db.PresetList, error) {
	var list db.PresetList
	err := tx.Preload("Games", func(tx *gorm.DB) *gorm.DB { return tx.Order("games.title asc") }).
		First(&list, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return list, apperr.NotFound("Preset list not found")
	}
	return list, err
}

func (s *Server) handlePublicPresetLists(c *gin.Context) {
	views, err := s.presetLists(c, true)
	if err != nil {
		s.respondError(c, err, "Failed to fetch preset lists")
		return
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleAdminPresetLists(c *gin.Context) {
	views, err := s.presetLists(c, false)
	if err != nil {
		s.respondError(c, err, "Failed to fetch preset lists")
		return
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleCreatePresetList(c *gin.Context) {
	var req presetRequest
	if !bindJSON(c, &req, presetMessages, "Invalid preset list") {
		return
	}
	list := db.PresetList{
		Name:     normalizeText(req.Name),
		Color:    req.Color,
		Icon:     normalizeText(req.Icon),
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var last int
		if err := tx.Model(&db.PresetList{}).Select("COALESCE(MAX(sort_order), -1)").Scan(&last).Error; err != nil {
			return err
		}
		list.Order = last + 1
		return tx.Create(&list).Error
	})
	if err != nil {
		s.respondError(c, err, "Failed to create preset list")
		return
	}
	c.JSON(http.StatusOK, newPresetView(list))
}

func (s *Server) handleUpdatePresetList(c *gin.Context) {
	var req presetUpdateRequest
	if !bindJSON(c, &req, presetMessages, "Invalid preset list") {
		return
	}
	conn := s.db.WithContext(c.Request.Context())
	list, err := loadPreset(conn, c.Param("id"))
	if err != nil {
		s.respondError(c, err, "Failed to update preset list")
		return
	}
	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = normalizeText(*req.Name)
	}
	if req.Color != nil && *req.Color != "" {
		updates["color"] = *req.Color
	}
	if req.Icon != nil {
		updates["icon"] = normalizeText(*req.Icon)
	}
	if req.Order != nil {
		updates["sort_order"] = *req.Order
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) > 0 {
		if err := conn.Model(&db.PresetList{}).Where("id = ?", list.ID).Updates(updates).Error; err != nil {
			s.respondError(c, err, "Failed to update preset list")
			return
		}
	}
	list, err = loadPreset(conn, list.ID)
	if err != nil {
		s.respondError(c, err, "Failed to update preset list")
		return
	}
	c.JSON(http.StatusOK, newPresetView(list))
}

func (s *Server) handleDeletePresetList(c *gin.Context) {
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		list, err := loadPreset(tx, c.Param("id"))
		if err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM preset_list_games WHERE preset_list_id = ?", list.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&list).Error
	})
	if err != nil {
		s.respondError(c, err, "Failed to delete preset list")
		return
	}
	writeSuccess(c)
}

func (s *Server) handleAddPresetGame(c *gin.Context) {
	s.changePresetGame(c, true)
}

func (s *Server) handleRemovePresetGame(c *gin.Context) {
	s.changePresetGame(c, false)
}

func (s *Server) changePresetGame(c *gin.Context, add bool) {
	var req listGameRequest
	if !bindJSON(c, &req, listMessages, "Game ID required") {
		return
	}
	var list db.PresetList
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		if list, err = loadPreset(tx, c.Param("id")); err != nil {
			return err
		}
		if add {
			var count int64
			if err := tx.Model(&db.Game{}).Where("id = ?", req.GameID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return apperr.NotFound("Game not found")
			}
			err = tx.Exec("INSERT INTO preset_list_games (preset_list_id, game_id) VALUES (?, ?) ON CONFLICT DO NOTHING", list.ID, req.GameID).Error
		} else {
			err = tx.Exec("DELETE FROM preset_list_games WHERE preset_list_id = ? AND game_id = ?", list.ID, req.GameID).Error
		}
		if err != nil {
			return err
		}
		list, err = loadPreset(tx, list.ID)
		return err
	})
	if err != nil {
		s.respondError(c, err, "Failed to update preset list")
		return
	}
	c.JSON(http.StatusOK, newPresetView(list))
}
