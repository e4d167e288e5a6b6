package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dles/internal/apperr"
	"dles/internal/db"
	"dles/internal/race"
	"dles/internal/raceevents"
	"dles/internal/roles"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxRaceGames       = 50
	maxRaceEventsBatch = 200
	guestCookieMaxAge  = 7 * 24 * 60 * 60
)

var errRaceVersion = apperr.Conflict("Race was updated, retry")

type createRaceRequest struct {
	Name      string   `json:"name" binding:"required,nonblank,max=50"`
	GameIDs   []string `json:"gameIds" binding:"required,min=1,max=50"`
	GuestName string   `json:"guestName" binding:"omitempty,nonblank,max=30"`
}

type joinRaceRequest struct {
	GuestName string `json:"guestName" binding:"omitempty,nonblank,max=30"`
}

type completeGameRequest struct {
	RaceGameID string `json:"raceGameId" binding:"required"`
	Skipped    bool   `json:"skipped"`
}

var raceMessages = bindMessages{
	"Name":       {"required": "Race name is required", "nonblank": "Race name is required", "max": "Race name too long"},
	"GameIDs":    {"required": "Select at least one game", "min": "Select at least one game", "max": "Too many games"},
	"GuestName":  {"nonblank": "Guest name is required", "max": "Guest name too long"},
	"RaceGameID": {"required": "Race game id is required"},
}

type participantView struct {
	ID            string                  `json:"id"`
	UserID        *string                 `json:"userId"`
	Name          string                  `json:"name"`
	IsGuest       bool                    `json:"isGuest"`
	FinishedAt    *time.Time              `json:"finishedAt"`
	Finished      bool                    `json:"finished"`
	FinishSeconds *int                    `json:"finishSeconds,omitempty"`
	Completions   []db.RaceGameCompletion `json:"completions"`
}

type raceGameView struct {
	ID     string `json:"id"`
	GameID string `json:"gameId"`
	Order  int    `json:"order"`
	Title  string `json:"title"`
	Link   string `json:"link"`
	Topic  string `json:"topic"`
}

// raceSnapshot is the full public state of a race.
type raceSnapshot struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Status       string            `json:"status"`
	CreatedBy    *string           `json:"createdBy"`
	StartedAt    *time.Time        `json:"startedAt"`
	CompletedAt  *time.Time        `json:"completedAt"`
	CreatedAt    time.Time         `json:"createdAt"`
	Version      int               `json:"version"`
	WinnerID     *string           `json:"winnerId"`
	Participants []participantView `json:"participants"`
	RaceGames    []raceGameView    `json:"raceGames"`
}

func newRaceSnapshot(r db.Race) raceSnapshot {
	race.SortGames(&r)
	snap := raceSnapshot{
		ID:          r.ID,
		Name:        r.Name,
		Status:      r.Status,
		CreatedBy:   r.CreatedBy,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		CreatedAt:   r.CreatedAt,
		Version:     r.Version,
	}
	if winner, ok := race.Winner(r); ok {
		snap.WinnerID = &winner.ID
	}
	snap.Participants = lo.Map(r.Participants, func(p db.RaceParticipant, _ int) participantView {
		view := participantView{
			ID:          p.ID,
			UserID:      p.UserID,
			Name:        p.DisplayName(),
			IsGuest:     p.UserID == nil,
			FinishedAt:  p.FinishedAt,
			Finished:    race.Finished(r, p),
			Completions: p.Completions,
		}
		if view.Completions == nil {
			view.Completions = []db.RaceGameCompletion{}
		}
		if seconds, ok := race.FinishSeconds(r, p); ok {
			view.FinishSeconds = &seconds
		}
		return view
	})
	snap.RaceGames = lo.Map(r.RaceGames, func(rg db.RaceGame, _ int) raceGameView {
		return raceGameView{
			ID:     rg.ID,
			GameID: rg.GameID,
			Order:  rg.Order,
			Title:  rg.Game.Title,
			Link:   rg.Game.Link,
			Topic:  rg.Game.Topic,
		}
	})
	return snap
}

// joinOrder sorts participants by when they joined. Winner ties depend on it.
func joinOrder(tx *gorm.DB) *gorm.DB {
	return tx.Order("created_at asc").Order("id asc")
}

// loadRace reads a race with its participants, completions and games. With
// lock set the race row is held FOR UPDATE until tx ends.
func loadRace(tx *gorm.DB, id string, lock bool) (db.Race, error) {
	var r db.Race
	query := tx.
		Preload("Participants", joinOrder).
		Preload("Participants.User").
		Preload("Participants.Completions").
		Preload("RaceGames", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order asc") }).
		Preload("RaceGames.Game")
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r, apperr.NotFound("Race not found")
	}
	if err != nil {
		return r, err
	}
	race.SortGames(&r)
	return r, nil
}

func (s *Server) raceSnapshot(ctx context.Context, id string) (raceSnapshot, error) {
	r, err := loadRace(s.db.WithContext(ctx), id, false)
	if err != nil {
		return raceSnapshot{}, err
	}
	return newRaceSnapshot(r), nil
}

// raceError maps state machine rejections onto HTTP kinds.
func raceError(err error) error {
	switch {
	case errors.Is(err, race.ErrNotParticipant):
		return apperr.Forbidden(err.Error())
	case errors.Is(err, race.ErrUnknownGame):
		return apperr.Invalid(err.Error())
	case errors.Is(err, race.ErrNotWaiting),
		errors.Is(err, race.ErrNotActive),
		errors.Is(err, race.ErrNotEnoughPlayers),
		errors.Is(err, race.ErrRaceFull),
		errors.Is(err, race.ErrAlreadyCompleted),
		errors.Is(err, race.ErrOutOfOrder):
		return apperr.Conflict(err.Error())
	}
	return err
}

// bumpVersion advances the race version only if it still equals seen.
func bumpVersion(tx *gorm.DB, raceID string, seen int, updates map[string]any) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["version"] = seen + 1
	result := tx.Model(&db.Race{}).Where("id = ? AND version = ?", raceID, seen).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errRaceVersion
	}
	return nil
}

func newGuestToken() string {
	return uuid.NewString()
}

func (s *Server) handleCreateRace(c *gin.Context) {
	var req createRaceRequest
	if !bindJSON(c, &req, raceMessages, "Invalid race") {
		return
	}
	user, signedIn := currentUser(c)
	guestName := normalizeText(req.GuestName)
	if !signedIn && guestName == "" {
		writeError(c, http.StatusUnauthorized, "Sign in or enter a guest name")
		return
	}
	if !s.enforceRateLimit(c, "race") {
		return
	}
	ids := lo.Uniq(lo.Compact(req.GameIDs))
	if len(ids) == 0 || len(ids) > maxRaceGames {
		writeError(c, http.StatusBadRequest, "Select at least one game")
		return
	}

	r := db.Race{Name: cleanText(req.Name), Status: db.RaceWaiting}
	participant := db.RaceParticipant{}
	if signedIn {
		r.CreatedBy = &user.ID
		participant.UserID = &user.ID
	} else {
		participant.GuestName = cleanText(guestName)
		participant.GuestToken = newGuestToken()
	}

	var event raceevents.Event
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var found []string
		if err := tx.Model(&db.Game{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
			return err
		}
		if missing := lo.Without(ids, found...); len(missing) > 0 {
			return apperr.Invalid("Unknown game ids: " + strings.Join(missing, ", "))
		}
		if err := tx.Create(&r).Error; err != nil {
			return err
		}
		games := make([]db.RaceGame, 0, len(ids))
		for i, id := range ids {
			games = append(games, db.RaceGame{RaceID: r.ID, GameID: id, Order: i})
		}
		if err := tx.Create(&games).Error; err != nil {
			return err
		}
		participant.RaceID = r.ID
		if err := tx.Create(&participant).Error; err != nil {
			return err
		}
		var err error
		event, err = s.appendRaceEvent(tx, r.ID, raceevents.TypeCreated, RaceEventPayload{
			ParticipantID: participant.ID,
			Status:        db.RaceWaiting,
		})
		return err
	})
	if err != nil {
		s.respondError(c, err, "Failed to create race")
		return
	}
	s.publishRaceEvents(c.Request.Context(), event)

	snap, err := s.raceSnapshot(c.Request.Context(), r.ID)
	if err != nil {
		s.respondError(c, err, "Failed to create race")
		return
	}
	resp := gin.H{"race": snap, "participantId": participant.ID}
	if participant.GuestToken != "" {
		s.setCookie(c, raceGuestCookie(r.ID), participant.GuestToken, guestCookieMaxAge)
		resp["guestToken"] = participant.GuestToken
	}
	s.logger.Info("race created", zap.String("race_id", r.ID), zap.Int("games", len(ids)))
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetRace(c *gin.Context) {
	r, err := loadRace(s.db.WithContext(c.Request.Context()), c.Param("id"), false)
	if err != nil {
		s.respondError(c, err, "Failed to fetch race")
		return
	}
	resp := gin.H{"race": newRaceSnapshot(r)}
	if p, ok := raceParticipantFor(c, r); ok {
		resp["participantId"] = p.ID
		resp["nextIndex"] = race.NextIndex(r, p.ID)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleJoinRace(c *gin.Context) {
	var req joinRaceRequest
	if !bindJSON(c, &req, raceMessages, "Invalid join request") {
		return
	}
	user, signedIn := currentUser(c)
	guestName := normalizeText(req.GuestName)
	if !signedIn && guestName == "" {
		writeError(c, http.StatusUnauthorized, "Sign in or enter a guest name")
		return
	}
	raceID := c.Param("id")
	var (
		participant db.RaceParticipant
		event       *raceevents.Event
	)
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		r, err := loadRace(tx, raceID, true)
		if err != nil {
			return err
		}
		if existing, ok := raceParticipantFor(c, r); ok {
			participant = *existing
			return nil
		}
		if err := race.ValidateJoin(r, s.cfg.RaceMaxParticipants); err != nil {
			return raceError(err)
		}
		participant = db.RaceParticipant{RaceID: r.ID}
		if signedIn {
			participant.UserID = &user.ID
		} else {
			participant.GuestName = cleanText(guestName)
			participant.GuestToken = newGuestToken()
		}
		if err := tx.Create(&participant).Error; err != nil {
			return err
		}
		if err := bumpVersion(tx, r.ID, r.Version, nil); err != nil {
			return err
		}
		name := participant.GuestName
		if signedIn {
			name = user.Name
		}
		appended, err := s.appendRaceEvent(tx, r.ID, raceevents.TypeJoined, RaceEventPayload{
			ParticipantID: participant.ID,
			Name:          name,
		})
		event = &appended
		return err
	})
	if err != nil {
		s.respondError(c, err, "Failed to join race")
		return
	}
	if event != nil {
		s.publishRaceEvents(c.Request.Context(), *event)
	}
	snap, err := s.raceSnapshot(c.Request.Context(), raceID)
	if err != nil {
		s.respondError(c, err, "Failed to join race")
		return
	}
	resp := gin.H{"race": snap, "participantId": participant.ID}
	if participant.GuestToken != "" {
		s.setCookie(c, raceGuestCookie(raceID), participant.GuestToken, guestCookieMaxAge)
		resp["guestToken"] = participant.GuestToken
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStartRace(c *gin.Context) {
	raceID := c.Param("id")
	var event raceevents.Event
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		r, err := loadRace(tx, raceID, true)
		if err != nil {
			return err
		}
		if _, ok := raceParticipantFor(c, r); !ok {
			return raceError(race.ErrNotParticipant)
		}
		if err := race.ValidateStart(r); err != nil {
			return raceError(err)
		}
		if err := bumpVersion(tx, r.ID, r.Version, map[string]any{
			"status":     db.RaceActive,
			"started_at": s.now().UTC(),
		}); err != nil {
			return err
		}
		event, err = s.appendRaceEvent(tx, r.ID, raceevents.TypeStarted, RaceEventPayload{Status: db.RaceActive})
		return err
	})
	if err != nil {
		s.respondError(c, err, "Failed to start race")
		return
	}
	s.publishRaceEvents(c.Request.Context(), event)
	snap, err := s.raceSnapshot(c.Request.Context(), raceID)
	if err != nil {
		s.respondError(c, err, "Failed to start race")
		return
	}
	c.JSON(http.StatusOK, gin.H{"race": snap})
}

// handleCompleteRaceGame records one completion. The race row is locked for
// the whole transaction and the version compare-and-set rejects writers that
// read an older state.
func (s *Server) handleCompleteRaceGame(c *gin.Context) {
	var req completeGameRequest
	if !bindJSON(c, &req, raceMessages, "Invalid completion") {
		return
	}
	raceID := c.Param("id")
	now := s.now().UTC()
	var events []raceevents.Event
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		r, err := loadRace(tx, raceID, true)
		if err != nil {
			return err
		}
		p, ok := raceParticipantFor(c, r)
		if !ok {
			return raceError(race.ErrNotParticipant)
		}
		step, err := race.PlanCompletion(r, p.ID, req.RaceGameID, now)
		if err != nil {
			return raceError(err)
		}
		completion := db.RaceGameCompletion{
			RaceGameID:     req.RaceGameID,
			ParticipantID:  p.ID,
			Skipped:        req.Skipped,
			TimeToComplete: step.TimeToComplete,
			CompletedAt:    now,
		}
		if err := tx.Create(&completion).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return raceError(race.ErrAlreadyCompleted)
			}
			return err
		}
		raceUpdates := map[string]any{}
		if step.Finishes {
			if err := tx.Model(&db.RaceParticipant{}).Where("id = ?", p.ID).Update("finished_at", now).Error; err != nil {
				return err
			}
		}
		if step.CompletesRace {
			raceUpdates["status"] = db.RaceCompleted
			raceUpdates["completed_at"] = now
		}
		if err := bumpVersion(tx, r.ID, r.Version, raceUpdates); err != nil {
			return err
		}

		index, seconds := step.Index, step.TimeToComplete
		event, err := s.appendRaceEvent(tx, r.ID, raceevents.TypeCompleted, RaceEventPayload{
			ParticipantID:  p.ID,
			RaceGameID:     req.RaceGameID,
			Index:          &index,
			Skipped:        req.Skipped,
			TimeToComplete: &seconds,
		})
		if err != nil {
			return err
		}
		events = append(events, event)
		if step.Finishes {
			event, err := s.appendRaceEvent(tx, r.ID, raceevents.TypeFinished, RaceEventPayload{
				ParticipantID: p.ID,
				Name:          p.DisplayName(),
			})
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		if step.CompletesRace {
			event, err := s.appendRaceEvent(tx, r.ID, raceevents.TypeRaceDone, RaceEventPayload{Status: db.RaceCompleted})
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		s.respondError(c, err, "Failed to complete game")
		return
	}
	s.publishRaceEvents(c.Request.Context(), events...)
	snap, err := s.raceSnapshot(c.Request.Context(), raceID)
	if err != nil {
		s.respondError(c, err, "Failed to complete game")
		return
	}
	c.JSON(http.StatusOK, gin.H{"race": snap})
}

// handleDeleteRace allows the creator while the race is waiting, and any
// role that manages games at any time.
func (s *Server) handleDeleteRace(c *gin.Context) {
	user, signedIn := currentUser(c)
	raceID := c.Param("id")
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var r db.Race
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, "id = ?", raceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Race not found")
			}
			return err
		}
		isCreator := signedIn && r.CreatedBy != nil && *r.CreatedBy == user.ID
		switch {
		case signedIn && roles.CanManageGames(user.Role):
		case isCreator && r.Status == db.RaceWaiting:
		case isCreator:
			return apperr.Conflict("Race has already started")
		case !signedIn:
			return apperr.Unauthorized("Unauthorized")
		default:
			return apperr.Forbidden("Forbidden")
		}
		_, err := db.DeleteRace(tx, r.ID)
		return err
	})
	if err != nil {
		s.respondError(c, err, "Failed to delete race")
		return
	}
	s.publishRaceEvents(c.Request.Context(), raceevents.Event{
		RaceID: raceID,
		Type:   raceevents.TypeDeleted,
		At:     s.now().UTC(),
	})
	s.logger.Info("race deleted", zap.String("race_id", raceID), zap.String("user_id", user.ID))
	writeSuccess(c)
}

// handleRaceEvents pages through persisted events after the given id.
func (s *Server) handleRaceEvents(c *gin.Context) {
	raceID := c.Param("id")
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "after must be a non-negative integer")
		return
	}
	conn := s.db.WithContext(c.Request.Context())
	var count int64
	if err := conn.Model(&db.Race{}).Where("id = ?", raceID).Count(&count).Error; err != nil {
		s.respondError(c, err, "Failed to fetch race events")
		return
	}
	if count == 0 {
		writeError(c, http.StatusNotFound, "Race not found")
		return
	}
	var records []db.RaceEvent
	if err := conn.Where("race_id = ? AND id > ?", raceID, after).
		Order("id asc").
		Limit(maxRaceEventsBatch).
		Find(&records).Error; err != nil {
		s.respondError(c, err, "Failed to fetch race events")
		return
	}
	events := lo.Map(records, func(r db.RaceEvent, _ int) raceevents.Event { return newRaceEvent(r) })
	next := uint(after)
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "next": next})
}

type raceHistoryEntry struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	CompletedAt   *time.Time `json:"completedAt"`
	Participants  int        `json:"participants"`
	Games         int        `json:"games"`
	Won           bool       `json:"won"`
	Finished      bool       `json:"finished"`
	FinishSeconds *int       `json:"finishSeconds,omitempty"`
}

// handleRaceStats summarizes completed races the caller took part in.
func (s *Server) handleRaceStats(c *gin.Context) {
	user, _ := currentUser(c)
	conn := s.db.WithContext(c.Request.Context())
	var raceIDs []string
	if err := conn.Model(&db.RaceParticipant{}).
		Where("user_id = ?", user.ID).
		Distinct("race_id").
		Pluck("race_id", &raceIDs).Error; err != nil {
		s.respondError(c, err, "Failed to fetch race stats")
		return
	}
	history := []raceHistoryEntry{}
	wins, finishedCount, totalSeconds := 0, 0, 0
	if len(raceIDs) > 0 {
		var races []db.Race
		if err := conn.
			Preload("Participants", joinOrder).
			Preload("Participants.Completions").
			Preload("RaceGames").
			Where("id IN ? AND status = ?", raceIDs, db.RaceCompleted).
			Order("completed_at desc").
			Find(&races).Error; err != nil {
			s.respondError(c, err, "Failed to fetch race stats")
			return
		}
		for _, r := range races {
			entry := raceHistoryEntry{
				ID:           r.ID,
				Name:         r.Name,
				CompletedAt:  r.CompletedAt,
				Participants: len(r.Participants),
				Games:        len(r.RaceGames),
			}
			mine, ok := lo.Find(r.Participants, func(p db.RaceParticipant) bool {
				return p.UserID != nil && *p.UserID == user.ID
			})
			if ok {
				entry.Finished = mine.FinishedAt != nil
				if seconds, ok := race.FinishSeconds(r, mine); ok {
					entry.FinishSeconds = &seconds
					finishedCount++
					totalSeconds += seconds
				}
				if winner, ok := race.Winner(r); ok && winner.ID == mine.ID {
					entry.Won = true
					wins++
				}
			}
			history = append(history, entry)
		}
	}
	average := 0
	if finishedCount > 0 {
		average = totalSeconds / finishedCount
	}
	c.JSON(http.StatusOK, gin.H{
		"totalRaces":           len(history),
		"wins":                 wins,
		"averageFinishSeconds": average,
		"races":                history,
	})
}
