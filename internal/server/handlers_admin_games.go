package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"dles/internal/apperr"
	"dles/internal/db"
	"dles/internal/jobs"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxImportBytes = 5 << 20

type bulkUpdateData struct {
	Topic          *string `json:"topic" binding:"omitempty,topic"`
	Archived       *bool   `json:"archived"`
	EmbedSupported *bool   `json:"embedSupported"`
}

type bulkRequest struct {
	Action  string          `json:"action" binding:"required,oneof=archive unarchive delete update"`
	GameIDs []string        `json:"gameIds" binding:"required,min=1"`
	Data    *bulkUpdateData `json:"data"`
}

var bulkMessages = bindMessages{
	"Action":  {"required": "Invalid action", "oneof": "Invalid action"},
	"GameIDs": {"required": "No games selected", "min": "No games selected"},
	"Topic":   {"topic": "Invalid topic"},
}

func (d *bulkUpdateData) updates() map[string]any {
	out := map[string]any{}
	if d == nil {
		return out
	}
	if d.Topic != nil {
		out["topic"] = *d.Topic
	}
	if d.Archived != nil {
		out["archived"] = *d.Archived
	}
	if d.EmbedSupported != nil {
		out["embed_supported"] = *d.EmbedSupported
	}
	return out
}

// handleBulkGames applies one action to many games. The rows are locked in
// id order first so overlapping bulk requests serialize instead of
// interleaving.
func (s *Server) handleBulkGames(c *gin.Context) {
	var req bulkRequest
	if !bindJSON(c, &req, bulkMessages, "Invalid bulk action") {
		return
	}
	ids := lo.Uniq(lo.Compact(req.GameIDs))
	sort.Strings(ids)
	if len(ids) == 0 {
		writeError(c, http.StatusBadRequest, "No games selected")
		return
	}
	updates := req.Data.updates()
	if req.Action == "update" && len(updates) == 0 {
		writeError(c, http.StatusBadRequest, "No update data provided")
		return
	}

	var count int64
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var locked []string
		if err := tx.Model(&db.Game{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", ids).
			Order("id asc").
			Pluck("id", &locked).Error; err != nil {
			return err
		}
		if len(locked) == 0 {
			return nil
		}
		switch req.Action {
		case "archive":
			updates = map[string]any{"archived": true}
		case "unarchive":
			updates = map[string]any{"archived": false}
		case "delete":
			deleted, err := db.DeleteGames(tx, locked)
			count = deleted
			return err
		}
		result := tx.Model(&db.Game{}).Where("id IN ?", locked).Updates(updates)
		count = result.RowsAffected
		return result.Error
	})
	if err != nil {
		s.respondError(c, err, "Failed to perform bulk action")
		return
	}
	s.logger.Info("bulk game action", zap.String("action", req.Action), zap.Int64("count", count))
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

// readImportRecords accepts a JSON array or a CSV document with a header.
func readImportRecords(c *gin.Context) ([]db.GameRecord, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes+1))
	if err != nil {
		return nil, apperr.Invalid("Could not read import body")
	}
	if len(body) > maxImportBytes {
		return nil, apperr.Invalid("Import file too large")
	}
	contentType := c.ContentType()
	var records []db.GameRecord
	if contentType == "text/csv" || (contentType != "application/json" && !looksLikeJSON(body)) {
		records, err = db.ParseGamesCSV(bytes.NewReader(body))
	} else {
		err = json.Unmarshal(body, &records)
	}
	if err != nil {
		return nil, apperr.Invalid(fmt.Sprintf("Invalid import file: %v", err))
	}
	if len(records) == 0 {
		return nil, apperr.Invalid("No games to import")
	}
	if len(records) > maxImportRecords {
		return nil, apperr.Invalid(fmt.Sprintf("Import is limited to %d games", maxImportRecords))
	}
	return records, nil
}

func looksLikeJSON(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "[")
}

func (s *Server) handleImportGames(c *gin.Context) {
	records, err := readImportRecords(c)
	if err != nil {
		s.respondError(c, err, "Failed to import games")
		return
	}
	result, err := db.UpsertGames(s.db.WithContext(c.Request.Context()), records)
	if err != nil {
		s.respondError(c, err, "Failed to import games")
		return
	}
	s.logger.Info("games imported",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
	)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleScanEmbeds(c *gin.Context) {
	report, err := jobs.ScanGames(c.Request.Context(), s.db, s.checker, s.cfg.EmbedCheckConcurrency)
	if err != nil {
		s.respondError(c, err, "Failed to check embed support")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleScanEmbed(c *gin.Context) {
	game, err := s.loadGame(c, c.Param("id"))
	if err != nil {
		s.respondError(c, err, "Failed to check embed support")
		return
	}
	report, err := jobs.ScanGames(c.Request.Context(), s.db, s.checker, 1, game.ID)
	if err != nil {
		s.respondError(c, err, "Failed to check embed support")
		return
	}
	resp := gin.H{
		"id":      game.ID,
		"blocked": report.Blocked > 0,
		"updated": report.Updated > 0,
	}
	if len(report.Errors) > 0 {
		resp["error"] = report.Errors[0].Error
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleResetEmbeds(c *gin.Context) {
	count, err := jobs.ResetEmbedFlags(c.Request.Context(), s.db)
	if err != nil {
		s.respondError(c, err, "Failed to reset embed support")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

func (s *Server) handleResetEmbed(c *gin.Context) {
	game, err := s.loadGame(c, c.Param("id"))
	if err != nil {
		s.respondError(c, err, "Failed to reset embed support")
		return
	}
	if _, err := jobs.ResetEmbedFlags(c.Request.Context(), s.db, game.ID); err != nil {
		s.respondError(c, err, "Failed to reset embed support")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": game.ID})
}

func (s *Server) writeExport(c *gin.Context, kind string, payload any) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		s.respondError(c, err, "Failed to export "+kind)
		return
	}
	filename := fmt.Sprintf("%s-export-%s.json", kind, s.now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) handleExportGames(c *gin.Context) {
	var games []db.Game
	if err := s.db.WithContext(c.Request.Context()).Order("title asc").Find(&games).Error; err != nil {
		s.respondError(c, err, "Failed to export games")
		return
	}
	s.writeExport(c, "games", games)
}

func (s *Server) handleExportUsers(c *gin.Context) {
	var users []db.User
	if err := s.db.WithContext(c.Request.Context()).Order("created_at desc").Find(&users).Error; err != nil {
		s.respondError(c, err, "Failed to export users")
		return
	}
	s.writeExport(c, "users", users)
}
