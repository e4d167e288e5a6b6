package server

import (
	"errors"
	"net/http"
	"strings"

	"dles/internal/db"
	"dles/internal/roles"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type roleUpdateRequest struct {
	UserID string `json:"userId" binding:"required"`
	Role   string `json:"role" binding:"required,role"`
}

var roleUpdateMessages = bindMessages{
	"UserID": {"required": "Missing required fields"},
	"Role":   {"required": "Missing required fields", "role": "Invalid role"},
}

type viewAsRequest struct {
	Role string `json:"role" binding:"required,role"`
}

type settingsRequest struct {
	NewGameDays                *int    `json:"newGameDays" binding:"omitempty,min=0,max=365"`
	MaintenanceMode            *bool   `json:"maintenanceMode"`
	WelcomeMessage             *string `json:"welcomeMessage" binding:"omitempty,max=500"`
	ShowWelcomeMessage         *bool   `json:"showWelcomeMessage"`
	MinPlayStreak              *int    `json:"minPlayStreak" binding:"omitempty,min=1,max=100"`
	EnableCommunitySubmissions *bool   `json:"enableCommunitySubmissions"`
	DefaultSort                *string `json:"defaultSort" binding:"omitempty,oneof=title topic playCount createdAt"`
	MaxCustomLists             *int    `json:"maxCustomLists" binding:"omitempty,min=0,max=100"`
}

var settingsMessages = bindMessages{
	"NewGameDays":    {"min": "newGameDays must be between 0 and 365", "max": "newGameDays must be between 0 and 365"},
	"WelcomeMessage": {"max": "Welcome message too long"},
	"MinPlayStreak":  {"min": "minPlayStreak must be between 1 and 100", "max": "minPlayStreak must be between 1 and 100"},
	"DefaultSort":    {"oneof": "Invalid default sort"},
	"MaxCustomLists": {"min": "maxCustomLists must be between 0 and 100", "max": "maxCustomLists must be between 0 and 100"},
}

func (s *Server) handleListUsers(c *gin.Context) {
	var users []db.User
	if err := s.db.WithContext(c.Request.Context()).Order("created_at desc").Find(&users).Error; err != nil {
		s.respondError(c, err, "Failed to fetch users")
		return
	}
	c.JSON(http.StatusOK, users)
}

// handleUpdateUserRole checks, in order: the role is assignable by the
// actor, the target exists, the actor may change the target, and an owner
// is not demoting themselves.
func (s *Server) handleUpdateUserRole(c *gin.Context) {
	actor, _ := currentUser(c)
	var req roleUpdateRequest
	if !bindJSON(c, &req, roleUpdateMessages, "Missing required fields") {
		return
	}
	next := roles.Role(req.Role)
	if !lo.Contains(roles.AssignableRoles(actor.Role), next) {
		writeError(c, http.StatusForbidden, "You cannot assign this role")
		return
	}
	var target db.User
	if err := s.db.WithContext(c.Request.Context()).First(&target, "id = ?", req.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(c, http.StatusNotFound, "User not found")
			return
		}
		s.respondError(c, err, "Failed to update user role")
		return
	}
	if decision := roles.CheckRoleUpdate(actor.ID, actor.Role, target.ID, target.Role, next); !decision.Allowed {
		writeError(c, http.StatusForbidden, decision.Reason)
		return
	}
	if err := s.db.WithContext(c.Request.Context()).Model(&target).Update("role", next).Error; err != nil {
		s.respondError(c, err, "Failed to update user role")
		return
	}
	target.Role = next
	s.logger.Info("user role updated",
		zap.String("actor_id", actor.ID),
		zap.String("user_id", target.ID),
		zap.String("role", string(next)),
	)
	c.JSON(http.StatusOK, target)
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	actor, _ := currentUser(c)
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		writeError(c, http.StatusBadRequest, "User ID required")
		return
	}
	if userID == actor.ID {
		writeError(c, http.StatusForbidden, "Cannot delete yourself")
		return
	}
	var target db.User
	if err := s.db.WithContext(c.Request.Context()).First(&target, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(c, http.StatusNotFound, "User not found")
			return
		}
		s.respondError(c, err, "Failed to delete user")
		return
	}
	if decision := roles.CheckDelete(actor.ID, actor.Role, target.ID, target.Role); !decision.Allowed {
		writeError(c, http.StatusForbidden, decision.Reason)
		return
	}
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		_, err := db.DeleteUser(tx, target.ID)
		return err
	})
	if err != nil {
		s.respondError(c, err, "Failed to delete user")
		return
	}
	s.logger.Info("user deleted", zap.String("actor_id", actor.ID), zap.String("user_id", target.ID))
	writeSuccess(c)
}

func (s *Server) handleCurrentUser(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"permissions":   roles.PermissionsFor(user.Role),
		"effectiveRole": effectiveRole(c, user),
	})
}

func (s *Server) handleSignOut(c *gin.Context) {
	if session, ok := currentSession(c); ok {
		if err := s.sessions.Revoke(c.Request.Context(), session.ID); err != nil {
			s.respondError(c, err, "Failed to sign out")
			return
		}
	}
	s.setCookie(c, sessionCookie, "", -1)
	s.setCookie(c, viewAsCookie, "", -1)
	writeSuccess(c)
}

// handleSetViewAs lets an owner preview the site as another role. It only
// changes what pages render.
func (s *Server) handleSetViewAs(c *gin.Context) {
	user, _ := currentUser(c)
	if user.Role != roles.Owner {
		writeError(c, http.StatusForbidden, "Only the owner can view as another role")
		return
	}
	var req viewAsRequest
	if !bindJSON(c, &req, bindMessages{"Role": {"required": "Invalid role", "role": "Invalid role"}}, "Invalid role") {
		return
	}
	s.setCookie(c, viewAsCookie, req.Role, 0)
	c.JSON(http.StatusOK, gin.H{"effectiveRole": roles.EffectiveRole(user.Role, req.Role)})
}

func (s *Server) handleClearViewAs(c *gin.Context) {
	s.setCookie(c, viewAsCookie, "", -1)
	writeSuccess(c)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.siteConfig(c))
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var req settingsRequest
	if !bindJSON(c, &req, settingsMessages, "Invalid settings") {
		return
	}
	updates := map[string]any{}
	if req.NewGameDays != nil {
		updates["new_game_days"] = *req.NewGameDays
	}
	if req.MaintenanceMode != nil {
		updates["maintenance_mode"] = *req.MaintenanceMode
	}
	if req.WelcomeMessage != nil {
		message := strings.TrimSpace(*req.WelcomeMessage)
		if message == "" {
			updates["welcome_message"] = nil
		} else {
			updates["welcome_message"] = message
		}
	}
	if req.ShowWelcomeMessage != nil {
		updates["show_welcome_message"] = *req.ShowWelcomeMessage
	}
	if req.MinPlayStreak != nil {
		updates["min_play_streak"] = *req.MinPlayStreak
	}
	if req.EnableCommunitySubmissions != nil {
		updates["enable_community_submissions"] = *req.EnableCommunitySubmissions
	}
	if req.DefaultSort != nil {
		updates["default_sort"] = *req.DefaultSort
	}
	if req.MaxCustomLists != nil {
		updates["max_custom_lists"] = *req.MaxCustomLists
	}
	conn := s.db.WithContext(c.Request.Context())
	cfg, err := db.EnsureSiteConfig(conn)
	if err != nil {
		s.respondError(c, err, "Failed to update settings")
		return
	}
	if len(updates) > 0 {
		if err := conn.Model(&cfg).Updates(updates).Error; err != nil {
			s.respondError(c, err, "Failed to update settings")
			return
		}
	}
	if err := conn.First(&cfg, "id = ?", db.SiteConfigID).Error; err != nil {
		s.respondError(c, err, "Failed to update settings")
		return
	}
	c.JSON(http.StatusOK, cfg)
}
