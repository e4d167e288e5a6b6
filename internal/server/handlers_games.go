package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"dles/internal/apperr"
	"dles/internal/db"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultGamesLimit = 50
	maxGamesLimit     = 200
)

var gameSortColumns = map[string]string{
	"title":     "title",
	"topic":     "topic",
	"playCount": "play_count",
	"createdAt": "created_at",
}

type gameRequest struct {
	Title string `json:"title" binding:"required,nonblank,max=200"`
	Link  string `json:"link" binding:"required,safeurl"`
	Topic string `json:"topic" binding:"required,topic"`
}

type gameUpdateRequest struct {
	Title *string `json:"title" binding:"omitempty,nonblank,max=200"`
	Link  *string `json:"link" binding:"omitempty,safeurl"`
	Topic *string `json:"topic" binding:"omitempty,topic"`
}

type embedRequest struct {
	EmbedSupported *bool `json:"embedSupported" binding:"required"`
}

var gameMessages = bindMessages{
	"Title": {"required": "Title is required", "nonblank": "Title is required", "max": "Title too long"},
	"Link":  {"required": "Must be a valid URL", "safeurl": "URL must use HTTP or HTTPS protocol"},
	"Topic": {"required": "Invalid topic", "topic": "Invalid topic"},
}

// gameView is a game as the dashboard lists it.
type gameView struct {
	db.Game
	IsNew bool `json:"isNew"`
}

func (s *Server) siteConfig(c *gin.Context) db.SiteConfig {
	var cfg db.SiteConfig
	if err := s.db.WithContext(c.Request.Context()).First(&cfg, "id = ?", db.SiteConfigID).Error; err != nil {
		return db.DefaultSiteConfig()
	}
	return cfg
}

func newGameViews(games []db.Game, newGameDays int, now time.Time) []gameView {
	cutoff := now.AddDate(0, 0, -newGameDays)
	return lo.Map(games, func(g db.Game, _ int) gameView {
		return gameView{Game: g, IsNew: newGameDays > 0 && g.CreatedAt.After(cutoff)}
	})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// matchGames restricts query to games whose title or link contains q,
// ignoring case. An empty q leaves query unchanged.
func matchGames(query *gorm.DB, q string) *gorm.DB {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return query
	}
	like := "%" + likeEscaper.Replace(q) + "%"
	return query.Where(`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(link) LIKE ? ESCAPE '\'`, like, like)
}

func (s *Server) handleListGames(c *gin.Context) {
	site := s.siteConfig(c)
	page, limit := parsePagination(c, defaultGamesLimit, maxGamesLimit)

	query := s.db.WithContext(c.Request.Context()).Model(&db.Game{})
	query = matchGames(query, c.Query("q"))
	if raw := strings.TrimSpace(c.Query("topics")); raw != "" {
		topics := lo.Filter(strings.Split(raw, ","), func(t string, _ int) bool {
			return db.ValidTopic(strings.TrimSpace(t))
		})
		topics = lo.Map(topics, func(t string, _ int) string { return strings.TrimSpace(t) })
		if len(topics) == 0 {
			writeError(c, http.StatusBadRequest, "Invalid topic")
			return
		}
		query = query.Where("topic IN ?", topics)
	}
	switch c.DefaultQuery("archived", "false") {
	case "false":
		query = query.Where("archived = ?", false)
	case "true":
		query = query.Where("archived = ?", true)
	case "all":
	default:
		writeError(c, http.StatusBadRequest, "archived must be true, false or all")
		return
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		s.respondError(c, err, "Failed to fetch games")
		return
	}

	sortKey := c.DefaultQuery("sort", site.DefaultSort)
	column, ok := gameSortColumns[sortKey]
	if !ok {
		column = "title"
	}
	desc := strings.EqualFold(c.Query("order"), "desc")
	var games []db.Game
	err := query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc}).
		Order("id asc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&games).Error
	if err != nil {
		s.respondError(c, err, "Failed to fetch games")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"games":      newGameViews(games, site.NewGameDays, s.now()),
		"total":      total,
		"page":       page,
		"limit":      limit,
		"totalPages": totalPages(total, limit),
	})
}

func (s *Server) loadGame(c *gin.Context, id string) (db.Game, error) {
	var game db.Game
	err := s.db.WithContext(c.Request.Context()).First(&game, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return game, apperr.NotFound("Game not found")
	}
	return game, err
}

func (s *Server) handleGetGame(c *gin.Context) {
	game, err := s.loadGame(c, c.Param("id"))
	if err != nil {
		s.respondError(c, err, "Failed to fetch game")
		return
	}
	site := s.siteConfig(c)
	c.JSON(http.StatusOK, newGameViews([]db.Game{game}, site.NewGameDays, s.now())[0])
}

func (s *Server) handleCreateGame(c *gin.Context) {
	var req gameRequest
	if !bindJSON(c, &req, gameMessages, "Invalid game") {
		return
	}
	record, err := db.GameRecord{Title: req.Title, Link: req.Link, Topic: req.Topic}.Normalize()
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	game := db.Game{Title: record.Title, Link: record.Link, Topic: record.Topic}
	if err := s.db.WithContext(c.Request.Context()).Create(&game).Error; err != nil {
		if db.IsUniqueViolation(err) {
			writeError(c, http.StatusConflict, "A game with this link already exists")
			return
		}
		s.respondError(c, err, "Failed to create game")
		return
	}
	c.JSON(http.StatusOK, game)
}

func (s *Server) handleUpdateGame(c *gin.Context) {
	var req gameUpdateRequest
	if !bindJSON(c, &req, gameMessages, "Invalid game") {
		return
	}
	game, err := s.loadGame(c, c.Param("id"))
	if err != nil {
		s.respondError(c, err, "Failed to update game")
		return
	}
	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Link != nil {
		updates["link"] = strings.TrimSpace(*req.Link)
	}
	if req.Topic != nil {
		updates["topic"] = *req.Topic
	}
	if len(updates) == 0 {
		c.JSON(http.StatusOK, game)
		return
	}
	if err := s.db.WithContext(c.Request.Context()).Model(&game).Updates(updates).Error; err != nil {
		if db.IsUniqueViolation(err) {
			writeError(c, http.StatusConflict, "A game with this link already exists")
			return
		}
		s.respondError(c, err, "Failed to update game")
		return
	}
	game, err = s.loadGame(c, game.ID)
	if err != nil {
		s.respondError(c, err, "Failed to update game")
		return
	}
	c.JSON(http.StatusOK, game)
}

func (s *Server) handleDeleteGame(c *gin.Context) {
	id := c.Param("id")
	var deleted int64
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = db.DeleteGames(tx, []string{id})
		return err
	})
	if err != nil {
		s.respondError(c, err, "Failed to delete game")
		return
	}
	if deleted == 0 {
		writeError(c, http.StatusNotFound, "Game not found")
		return
	}
	writeSuccess(c)
}

func (s *Server) handleSetEmbed(c *gin.Context) {
	var req embedRequest
	if !bindJSON(c, &req, bindMessages{
		"EmbedSupported": {"required": "embedSupported must be a boolean"},
	}, "embedSupported must be a boolean") {
		return
	}
	game, err := s.loadGame(c, c.Param("id"))
	if err != nil {
		s.respondError(c, err, "Failed to update game")
		return
	}
	if err := s.db.WithContext(c.Request.Context()).Model(&game).Update("embed_supported", *req.EmbedSupported).Error; err != nil {
		s.respondError(c, err, "Failed to update game")
		return
	}
	game.EmbedSupported = req.EmbedSupported
	c.JSON(http.StatusOK, game)
}

// handlePlayGame counts a play. Signed-in plays are also recorded against
// the user in the same transaction.
func (s *Server) handlePlayGame(c *gin.Context) {
	id := c.Param("id")
	user, signedIn := currentUser(c)
	now := s.now()
	var game db.Game
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.Game{}).Where("id = ?", id).
			Update("play_count", gorm.Expr("play_count + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperr.NotFound("Game not found")
		}
		if signedIn {
			if err := db.RecordPlay(tx, user.ID, id, now); err != nil {
				return err
			}
		}
		return tx.First(&game, "id = ?", id).Error
	})
	if err != nil {
		s.respondError(c, err, "Failed to update game")
		return
	}
	c.JSON(http.StatusOK, game)
}
