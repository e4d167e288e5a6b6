package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"dles/internal/db"
	"dles/internal/roles"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ctxUserKey    = "dles.user"
	ctxSessionKey = "dles.session"

	raceGuestHeader       = "X-Race-Guest-Token"
	raceGuestCookiePrefix = "race_guest_"
)

// loadSession attaches the signed-in user to the context when the request
// carries a valid session. It never rejects a request.
func (s *Server) loadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c.Request)
		if token == "" {
			c.Next()
			return
		}
		user, session, err := s.sessions.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
			c.Set(ctxUserKey, user)
			c.Set(ctxSessionKey, session)
		case !errors.Is(err, errInvalidSession):
			s.logger.Warn("session lookup failed", zap.String("request_id", requestIDFrom(c)), zap.Error(err))
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) (db.User, bool) {
	value, ok := c.Get(ctxUserKey)
	if !ok {
		return db.User{}, false
	}
	user, ok := value.(db.User)
	return user, ok
}

func currentSession(c *gin.Context) (db.Session, bool) {
	value, ok := c.Get(ctxSessionKey)
	if !ok {
		return db.Session{}, false
	}
	session, ok := value.(db.Session)
	return session, ok
}

func (s *Server) requireUser(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	c.Next()
}

// requireRole authorizes with the stored role of the session user. The
// view-as cookie is deliberately not consulted here.
func (s *Server) requireRole(allowed func(roles.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			writeError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !allowed(user.Role) {
			writeError(c, http.StatusForbidden, "Forbidden")
			return
		}
		c.Next()
	}
}

// effectiveRole is the role pages render for. Only page handlers and the
// current-user endpoint use it.
func effectiveRole(c *gin.Context, user db.User) roles.Role {
	viewAs := ""
	if cookie, err := c.Request.Cookie(viewAsCookie); err == nil {
		viewAs = cookie.Value
	}
	return roles.EffectiveRole(user.Role, viewAs)
}

func raceGuestCookie(raceID string) string {
	return raceGuestCookiePrefix + raceID
}

func guestTokenFrom(c *gin.Context, raceID string) string {
	if token := strings.TrimSpace(c.GetHeader(raceGuestHeader)); token != "" {
		return token
	}
	if cookie, err := c.Request.Cookie(raceGuestCookie(raceID)); err == nil {
		return cookie.Value
	}
	return ""
}

// raceParticipantFor finds the caller among the race participants: by
// user id when signed in, otherwise by guest token.
func raceParticipantFor(c *gin.Context, race db.Race) (*db.RaceParticipant, bool) {
	if user, ok := currentUser(c); ok {
		for i := range race.Participants {
			p := &race.Participants[i]
			if p.UserID != nil && *p.UserID == user.ID {
				return p, true
			}
		}
	}
	token := guestTokenFrom(c, race.ID)
	if token == "" {
		return nil, false
	}
	for i := range race.Participants {
		p := &race.Participants[i]
		if p.GuestToken == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(p.GuestToken), []byte(token)) == 1 {
			return p, true
		}
	}
	return nil, false
}
