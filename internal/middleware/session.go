package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tullo/livechat/internal/auth"
	"github.com/tullo/livechat/internal/session"
)

// Context keys set by SessionMiddleware
const (
	SessionIDKey = "session_id"
	UserIDKey    = "user_id"
)

// SessionMiddleware resolves the signed session cookie, issuing a fresh
// session and anonymous user id when the cookie is missing or invalid.
func SessionMiddleware(jwtService *auth.JWTService, cookieName string, secure bool, log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		if raw, err := c.Cookie(cookieName); err == nil {
			if claims, err := jwtService.ValidateToken(raw); err == nil {
				c.Set(SessionIDKey, session.ID(claims.SessionID))
				c.Set(UserIDKey, claims.UserID)
				c.Next()
				return
			}
			log.Debug("discarding invalid session cookie")
		}

		sid := uuid.NewString()
		uid := uuid.New()
		token, err := jwtService.GenerateToken(sid, uid)
		if err != nil {
			log.Error("failed to issue session", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookieName, token, int(jwtService.MaxAge().Seconds()), "/", "", secure, true)
		c.Set(SessionIDKey, session.ID(sid))
		c.Set(UserIDKey, uid)
		c.Next()
	}
}

// SessionID returns the session resolved by SessionMiddleware
func SessionID(c *gin.Context) session.ID {
	v, _ := c.Get(SessionIDKey)
	id, _ := v.(session.ID)
	return id
}

// UserID returns the user resolved by SessionMiddleware
func UserID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(UserIDKey)
	id, _ := v.(uuid.UUID)
	return id
}
