package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"dles/internal/db"
	"dles/internal/roles"
	"dles/internal/web"

	"github.com/a-h/templ"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(started)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", requestIDFrom(c)),
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Warn("request", fields...)
		default:
			s.logger.Info("request", fields...)
		}
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					zap.Any("panic", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", requestIDFrom(c)),
					zap.ByteString("stack", debug.Stack()),
				)
				writeError(c, http.StatusInternalServerError, "Internal server error")
			}
		}()
		c.Next()
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", raceGuestHeader, requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// maintenance serves the maintenance page to everyone except admins while
// the site toggle is on. It only wraps page routes; the API stays up.
func (s *Server) maintenance() gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg db.SiteConfig
		if err := s.db.WithContext(c.Request.Context()).First(&cfg, "id = ?", db.SiteConfigID).Error; err != nil || !cfg.MaintenanceMode {
			c.Next()
			return
		}
		if user, ok := currentUser(c); ok && roles.CanAccessAdmin(user.Role) {
			c.Next()
			return
		}
		templ.Handler(web.Maintenance(), templ.WithStatus(http.StatusServiceUnavailable)).ServeHTTP(c.Writer, c.Request)
		c.Abort()
	}
}
