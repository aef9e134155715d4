package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tullo/livechat/internal/auth"
)

const cookieName = "test_session"

func sessionRouter(jwtService *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SessionMiddleware(jwtService, cookieName, false, nil))
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"session": string(SessionID(c)), "user": UserID(c)})
	})
	return router
}

func TestSessionMiddleware_IssuesCookie(t *testing.T) {
	req := require.New(t)
	jwtService := auth.NewJWTService("secret", time.Hour)
	router := sessionRouter(jwtService)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	req.Equal(http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	req.Len(cookies, 1)
	req.Equal(cookieName, cookies[0].Name)
	req.True(cookies[0].HttpOnly)

	claims, err := jwtService.ValidateToken(cookies[0].Value)
	req.NoError(err)
	req.NotEmpty(claims.SessionID)
	req.NotEqual(uuid.Nil, claims.UserID)
}

func TestSessionMiddleware_ReusesValidCookie(t *testing.T) {
	req := require.New(t)
	jwtService := auth.NewJWTService("secret", time.Hour)
	router := sessionRouter(jwtService)
	uid := uuid.New()
	token, err := jwtService.GenerateToken("sess-1", uid)
	req.NoError(err)

	r := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	req.Equal(http.StatusOK, w.Code)
	req.Empty(w.Result().Cookies())
	req.Contains(w.Body.String(), `"session":"sess-1"`)
	req.Contains(w.Body.String(), uid.String())
}

func TestSessionMiddleware_ReplacesForgedCookie(t *testing.T) {
	req := require.New(t)
	router := sessionRouter(auth.NewJWTService("secret", time.Hour))
	forged, err := auth.NewJWTService("other", time.Hour).GenerateToken("sess-1", uuid.New())
	req.NoError(err)

	r := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.AddCookie(&http.Cookie{Name: cookieName, Value: forged})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	req.Equal(http.StatusOK, w.Code)
	req.Len(w.Result().Cookies(), 1)
	req.NotContains(w.Body.String(), `"session":"sess-1"`)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	uid := uuid.New()
	router := gin.New()
	router.Use(func(c *gin.Context) { c.Set(UserIDKey, uid); c.Next() })
	router.Use(RateLimitMiddleware(NewRateLimiter(1)))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	// burst is twice the rate
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_Prune(t *testing.T) {
	rl := NewRateLimiter(5)
	rl.Allow(uuid.New())
	rl.Allow(uuid.New())

	require.Equal(t, 0, rl.prune(time.Now().Add(-time.Minute)))
	require.Equal(t, 2, rl.prune(time.Now().Add(time.Minute)))
	require.Empty(t, rl.limiters)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware([]string{"http://allowed.test"}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{name: "allowed origin", method: http.MethodGet, origin: "http://allowed.test", wantStatus: http.StatusOK, wantAllow: "http://allowed.test"},
		{name: "unknown origin", method: http.MethodGet, origin: "http://evil.test", wantStatus: http.StatusOK},
		{name: "preflight", method: http.MethodOptions, origin: "http://allowed.test", wantStatus: http.StatusNoContent, wantAllow: "http://allowed.test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/", nil)
			r.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)

			require.Equal(t, tt.wantStatus, w.Code)
			require.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	router := gin.New()
	router.Use(RequestLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Contains(t, buf.String(), "level=ERROR")
	require.Contains(t, buf.String(), "path=/boom")
	require.Contains(t, buf.String(), "status=500")
}
