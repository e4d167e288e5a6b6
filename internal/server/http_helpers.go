package server

import (
	"errors"
	"net/http"

	"dles/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// respondError writes {"error": ...} for err. Internal failures are logged
// and answered with fallback so the cause never reaches the client.
func (s *Server) respondError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, gorm.ErrRecordNotFound) && apperr.KindOf(err) == apperr.KindInternal {
		err = apperr.NotFound("Not found")
	}
	status := apperr.Status(err)
	if apperr.KindOf(err) == apperr.KindInternal {
		s.logger.Error(fallback,
			zap.String("route", c.FullPath()),
			zap.String("request_id", requestIDFrom(c)),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(status, gin.H{"error": fallback})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err, fallback)})
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func writeSuccess(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}
