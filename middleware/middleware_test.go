package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/config"
	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/services"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeAuth map[string]*models.User

func (f fakeAuth) Authenticate(_ context.Context, token string) (*models.User, error) {
	if u, ok := f[token]; ok {
		return u, nil
	}
	return nil, apperrors.Unauthenticated()
}

func whoami(c *gin.Context) {
	u := services.UserFrom(c.Request.Context())
	if u == nil {
		c.String(http.StatusOK, "anonymous")
		return
	}
	c.String(http.StatusOK, u.Email)
}

func newAuthRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	ada := &models.User{ID: primitive.NewObjectID(), Email: "ada@example.com"}
	cfg := &config.Config{CookieName: "session"}

	r := gin.New()
	r.Use(AuthMiddleware(cfg, fakeAuth{"good": ada}))
	r.GET("/me", append(handlers, whoami)...)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		status int
		body   string
	}{
		{"bearer token", "Bearer good", "", http.StatusOK, "ada@example.com"},
		{"lowercase scheme", "bearer good", "", http.StatusOK, "ada@example.com"},
		{"cookie fallback", "", "good", http.StatusOK, "ada@example.com"},
		{"header wins over cookie", "Bearer bad", "good", http.StatusOK, "anonymous"},
		{"no credentials", "", "", http.StatusOK, "anonymous"},
		{"invalid token", "Bearer bad", "", http.StatusOK, "anonymous"},
		{"malformed header", "Token good", "", http.StatusUnauthorized, ""},
	}

	r := newAuthRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "session", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	r := newAuthRouter(RequireAuth())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEventContext(t *testing.T) {
	r := gin.New()
	r.Use(EventContext())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, services.EventSlugFrom(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/?event=from-query", nil)
	req.Header.Set(EventHeader, " from-header ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "from-header", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?event=from-query", nil))
	assert.Equal(t, "from-query", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, w.Body.String())
}

func TestRequestTimeAndLogger(t *testing.T) {
	pinned := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := services.New(services.Options{Clock: func() time.Time { return pinned.Add(time.Hour) }})

	r := gin.New()
	r.Use(RequestLogger(), RequestTime(func() time.Time { return pinned }))
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, svc.Now(c.Request.Context()).Format(time.RFC3339))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "2024-06-01T12:00:00Z", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
