package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"dles/internal/apperr"
	"dles/internal/db"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type submissionRequest struct {
	Title       string `json:"title" binding:"required,nonblank,max=200"`
	Link        string `json:"link" binding:"required,safeurl"`
	Topic       string `json:"topic" binding:"required,topic"`
	Description string `json:"description" binding:"max=500"`
}

type reviewRequest struct {
	ID         string `json:"id" binding:"required"`
	Status     string `json:"status" binding:"required,oneof=APPROVED REJECTED"`
	ReviewNote string `json:"reviewNote" binding:"max=500"`
}

var submissionMessages = bindMessages{
	"Title":       gameMessages["Title"],
	"Link":        gameMessages["Link"],
	"Topic":       gameMessages["Topic"],
	"Description": {"max": "Description too long"},
}

var reviewMessages = bindMessages{
	"ID":         {"required": "Submission id is required"},
	"Status":     {"required": "Invalid status", "oneof": "Invalid status"},
	"ReviewNote": {"max": "Review note too long"},
}

type submitterView struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type submissionView struct {
	db.GameSubmission
	User *submitterView `json:"user,omitempty"`
}

func (s *Server) handleCreateSubmission(c *gin.Context) {
	user, _ := currentUser(c)
	if !s.siteConfig(c).EnableCommunitySubmissions {
		writeError(c, http.StatusForbidden, "Submissions are currently disabled")
		return
	}
	if !s.enforceRateLimit(c, "submission") {
		return
	}
	var req submissionRequest
	if !bindJSON(c, &req, submissionMessages, "Invalid submission") {
		return
	}
	record, err := db.GameRecord{Title: req.Title, Link: req.Link, Topic: req.Topic}.Normalize()
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	submission := db.GameSubmission{
		Title:       cleanText(record.Title),
		Link:        record.Link,
		Topic:       record.Topic,
		Description: cleanText(req.Description),
		SubmittedBy: user.ID,
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&submission).Error; err != nil {
		s.respondError(c, err, "Failed to create submission")
		return
	}
	s.logger.Info("submission created", zap.String("submission_id", submission.ID), zap.String("user_id", user.ID))
	c.JSON(http.StatusOK, submission)
}

func (s *Server) handleMySubmissions(c *gin.Context) {
	user, _ := currentUser(c)
	var submissions []db.GameSubmission
	if err := s.db.WithContext(c.Request.Context()).
		Where("submitted_by = ?", user.ID).
		Order("created_at desc").
		Find(&submissions).Error; err != nil {
		s.respondError(c, err, "Failed to fetch submissions")
		return
	}
	c.JSON(http.StatusOK, submissions)
}

func (s *Server) handleAdminSubmissions(c *gin.Context) {
	query := s.db.WithContext(c.Request.Context()).Preload("User").Order("created_at desc")
	if status := strings.ToUpper(strings.TrimSpace(c.Query("status"))); status != "" {
		switch status {
		case db.SubmissionPending, db.SubmissionApproved, db.SubmissionRejected:
			query = query.Where("status = ?", status)
		default:
			writeError(c, http.StatusBadRequest, "Invalid status")
			return
		}
	}
	var submissions []db.GameSubmission
	if err := query.Find(&submissions).Error; err != nil {
		s.respondError(c, err, "Failed to fetch submissions")
		return
	}
	views := make([]submissionView, 0, len(submissions))
	for _, sub := range submissions {
		view := submissionView{GameSubmission: sub}
		if sub.User != nil {
			view.User = &submitterView{Name: sub.User.Name, Email: sub.User.Email}
		}
		view.GameSubmission.User = nil
		views = append(views, view)
	}
	c.JSON(http.StatusOK, views)
}

// reviewSubmission moves a pending submission to a terminal state. On
// approval the game is created, or reused when its link is already in the
// catalog, and linked from the submission.
func reviewSubmission(tx *gorm.DB, id, reviewerID, status, note string, at time.Time) (db.GameSubmission, error) {
	var submission db.GameSubmission
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&submission, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return submission, apperr.NotFound("Submission not found")
	}
	if err != nil {
		return submission, err
	}
	if submission.Status != db.SubmissionPending {
		return submission, apperr.Conflict("Submission has already been reviewed")
	}
	updates := map[string]any{
		"status":      status,
		"reviewed_by": reviewerID,
		"reviewed_at": at,
		"review_note": note,
	}
	if status == db.SubmissionApproved {
		var game db.Game
		err := tx.Where("link = ?", submission.Link).First(&game).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			game = db.Game{Title: submission.Title, Link: submission.Link, Topic: submission.Topic}
			if err := tx.Create(&game).Error; err != nil {
				return submission, err
			}
		case err != nil:
			return submission, err
		}
		updates["game_id"] = game.ID
	}
	if err := tx.Model(&submission).Updates(updates).Error; err != nil {
		return submission, err
	}
	err = tx.Preload("User").First(&submission, "id = ?", id).Error
	return submission, err
}

func (s *Server) handleReviewSubmission(c *gin.Context) {
	reviewer, _ := currentUser(c)
	var req reviewRequest
	if !bindJSON(c, &req, reviewMessages, "Invalid review") {
		return
	}
	var submission db.GameSubmission
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		submission, err = reviewSubmission(tx, req.ID, reviewer.ID, req.Status, normalizeText(req.ReviewNote), s.now())
		return err
	})
	if err != nil {
		s.respondError(c, err, "Failed to update submission")
		return
	}
	s.logger.Info("submission reviewed",
		zap.String("submission_id", submission.ID),
		zap.String("status", submission.Status),
		zap.String("reviewer_id", reviewer.ID),
	)
	c.JSON(http.StatusOK, submission)
}
