package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dles/internal/db"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const (
	sessionCookie = "dles_session"
	viewAsCookie  = "dles_view_as"
)

var errInvalidSession = errors.New("invalid session")

// SessionManager issues and verifies signed session tokens. Each token
// names a sessions row, so signing out revokes it before expiry.
type SessionManager struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionManager(conn *gorm.DB, secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		db:     conn,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a session row for userID and returns its signed token.
func (m *SessionManager) Issue(ctx context.Context, userID string, ttl time.Duration) (string, db.Session, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	now := m.now()
	session := db.Session{UserID: userID, ExpiresAt: now.Add(ttl)}
	if err := m.db.WithContext(ctx).Create(&session).Error; err != nil {
		return "", session, fmt.Errorf("create session: %w", err)
	}
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        session.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", session, fmt.Errorf("sign session: %w", err)
	}
	return signed, session, nil
}

// Authenticate verifies token and loads its user. The role always comes
// from the users table, never from the token.
func (m *SessionManager) Authenticate(ctx context.Context, token string) (db.User, db.Session, error) {
	var user db.User
	var session db.Session
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return user, session, errInvalidSession
	}
	conn := m.db.WithContext(ctx)
	if err := conn.First(&session, "id = ?", claims.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user, session, errInvalidSession
		}
		return user, session, err
	}
	if session.UserID != claims.Subject || !session.Active(m.now()) {
		return user, session, errInvalidSession
	}
	if err := conn.First(&user, "id = ?", session.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user, session, errInvalidSession
		}
		return user, session, err
	}
	return user, session, nil
}

func (m *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	return m.db.WithContext(ctx).Model(&db.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", m.now()).Error
}

func sessionToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func (s *Server) setCookie(c *gin.Context, name, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.IsProd(),
		SameSite: http.SameSiteLaxMode,
	})
}
