package server

import (
	"errors"
	"net/http"
	"time"

	"dles/internal/apperr"
	"dles/internal/db"
	"dles/internal/stats"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userGameRequest struct {
	Played *bool `json:"played"`
	Hidden *bool `json:"hidden"`
}

type hiddenGame struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Topic string `json:"topic"`
}

// enhancedStats builds the dashboard report for userID from the last year
// of play logs.
func (s *Server) enhancedStats(c *gin.Context, userID string) (stats.Report, error) {
	conn := s.db.WithContext(c.Request.Context())
	now := s.now()
	since := stats.StartOfDay(now, s.statsLoc).AddDate(-1, 0, 0)

	var plays []time.Time
	if err := conn.Model(&db.GamePlayLog{}).
		Where("user_id = ? AND played_at >= ?", userID, since).
		Order("played_at asc").
		Pluck("played_at", &plays).Error; err != nil {
		return stats.Report{}, err
	}
	var unique int64
	if err := conn.Model(&db.UserGame{}).
		Joins("JOIN games ON games.id = user_games.game_id").
		Where("user_games.user_id = ? AND user_games.played = ? AND games.archived = ?", userID, true, false).
		Count(&unique).Error; err != nil {
		return stats.Report{}, err
	}
	var total int64
	if err := conn.Model(&db.Game{}).Where("archived = ?", false).Count(&total).Error; err != nil {
		return stats.Report{}, err
	}
	return stats.Build(stats.Input{
		Plays:             plays,
		Loc:               s.statsLoc,
		Now:               now,
		MinPlaysPerDay:    s.siteConfig(c).MinPlayStreak,
		UniqueGamesPlayed: int(unique),
		TotalGames:        int(total),
	}), nil
}

func (s *Server) handleEnhancedStats(c *gin.Context) {
	user, _ := currentUser(c)
	report, err := s.enhancedStats(c, user.ID)
	if err != nil {
		s.respondError(c, err, "Failed to fetch stats")
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleStats is the dashboard summary: plays today, visible catalog size,
// played games per category and the hidden games.
func (s *Server) handleStats(c *gin.Context) {
	user, _ := currentUser(c)
	conn := s.db.WithContext(c.Request.Context())
	today := stats.StartOfDay(s.now(), s.statsLoc)

	var playedToday int64
	if err := conn.Model(&db.GamePlayLog{}).
		Where("user_id = ? AND played_at >= ?", user.ID, today).
		Distinct("game_id").
		Count(&playedToday).Error; err != nil {
		s.respondError(c, err, "Failed to fetch stats")
		return
	}

	var hidden []db.UserGame
	if err := conn.Preload("Game").
		Where("user_id = ? AND hidden = ?", user.ID, true).
		Find(&hidden).Error; err != nil {
		s.respondError(c, err, "Failed to fetch stats")
		return
	}
	hidden = lo.Filter(hidden, func(ug db.UserGame, _ int) bool { return ug.Game != nil })
	hiddenGames := lo.Map(hidden, func(ug db.UserGame, _ int) hiddenGame {
		return hiddenGame{ID: ug.Game.ID, Title: ug.Game.Title, Topic: ug.Game.Topic}
	})
	hiddenActive := lo.CountBy(hidden, func(ug db.UserGame) bool { return !ug.Game.Archived })

	var total int64
	if err := conn.Model(&db.Game{}).Where("archived = ?", false).Count(&total).Error; err != nil {
		s.respondError(c, err, "Failed to fetch stats")
		return
	}

	var topics []string
	if err := conn.Model(&db.UserGame{}).
		Joins("JOIN games ON games.id = user_games.game_id").
		Where("user_games.user_id = ? AND user_games.played = ?", user.ID, true).
		Pluck("games.topic", &topics).Error; err != nil {
		s.respondError(c, err, "Failed to fetch stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"playedToday": playedToday,
		"totalGames":  max(total-int64(hiddenActive), 0),
		"categories":  stats.Categories(topics),
		"hiddenGames": hiddenGames,
	})
}

func (s *Server) handleListUserGames(c *gin.Context) {
	user, _ := currentUser(c)
	var states []db.UserGame
	if err := s.db.WithContext(c.Request.Context()).
		Where("user_id = ?", user.ID).
		Order("updated_at desc").
		Find(&states).Error; err != nil {
		s.respondError(c, err, "Failed to fetch user games")
		return
	}
	c.JSON(http.StatusOK, states)
}

// handleUpdateUserGame sets played and hidden for one game. Marking a game
// played through this route does not append a play log; only real plays do.
func (s *Server) handleUpdateUserGame(c *gin.Context) {
	user, _ := currentUser(c)
	var req userGameRequest
	if !bindJSON(c, &req, bindMessages{}, "Invalid request") {
		return
	}
	if req.Played == nil && req.Hidden == nil {
		writeError(c, http.StatusBadRequest, "Nothing to update")
		return
	}
	gameID := c.Param("gameId")
	now := s.now()
	var state db.UserGame
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var game db.Game
		if err := tx.Select("id").First(&game, "id = ?", gameID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Game not found")
			}
			return err
		}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&state, "user_id = ? AND game_id = ?", user.ID, gameID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		state.UserID, state.GameID, state.UpdatedAt = user.ID, gameID, now
		if req.Played != nil {
			state.Played = *req.Played
			if state.Played {
				state.PlayedAt = &now
			} else {
				state.PlayedAt = nil
			}
		}
		if req.Hidden != nil {
			state.Hidden = *req.Hidden
		}
		return tx.Save(&state).Error
	})
	if err != nil {
		s.respondError(c, err, "Failed to update user game")
		return
	}
	c.JSON(http.StatusOK, state)
}
