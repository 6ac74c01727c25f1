package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/oksasatya/go-account-lifecycle/internal/application/apperr"
	"github.com/oksasatya/go-account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/go-account-lifecycle/pkg/helpers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"cloudflare wins", map[string]string{"CF-Connecting-IP": "203.0.113.9", "X-Forwarded-For": "198.51.100.1"}, "203.0.113.9"},
		{"left-most forwarded", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "198.51.100.1"},
		{"garbage falls back", map[string]string{"CF-Connecting-IP": "nope", "X-Forwarded-For": "nope"}, "192.0.2.1"},
		{"no headers", nil, "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			var got string
			r.Use(RealIP())
			r.GET("/", func(c *gin.Context) { got = ClientIP(c) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.1:1234"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			r.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	var got string
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { got = c.GetString(CtxRequestIDKey) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
	assert.Equal(t, got, w.Header().Get(RequestIDHeader))

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, incoming, got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", got)
}

type stubSessions map[string]string

func (s stubSessions) RequireAccount(_ context.Context, handle string) (string, error) {
	if id, ok := s[handle]; ok {
		return id, nil
	}
	return "", apperr.Unauthenticated("Please sign in to continue")
}

type stubAccounts map[string]*entity.Account

func (s stubAccounts) RequireVerified(_ context.Context, id string) (*entity.Account, error) {
	a, ok := s[id]
	switch {
	case id == "broken":
		return nil, errors.New("db down")
	case !ok:
		return nil, apperr.Unauthenticated("Please sign in to continue")
	case !a.EmailVerified:
		return nil, apperr.Unverified("verify first")
	}
	return a, nil
}

func guarded() *gin.Engine {
	cookies := helpers.NewCookieManager("__session", "", false)
	sessions := stubSessions{"h-verified": "acc-1", "h-pending": "acc-2", "h-broken": "broken"}
	accounts := stubAccounts{
		"acc-1": {ID: "acc-1", EmailVerified: true},
		"acc-2": {ID: "acc-2"},
	}
	r := gin.New()
	r.GET("/account", RequireSession(sessions, cookies), RequireVerified(accounts, nil), func(c *gin.Context) {
		a := c.MustGet(CtxAccountKey).(*entity.Account)
		c.String(http.StatusOK, a.ID)
	})
	return r
}

func TestSessionGuards(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		status int
	}{
		{"no cookie", "", http.StatusUnauthorized},
		{"unknown handle", "h-unknown", http.StatusUnauthorized},
		{"unverified account", "h-pending", http.StatusForbidden},
		{"store failure", "h-broken", http.StatusInternalServerError},
		{"verified account", "h-verified", http.StatusOK},
	}
	r := guarded()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/account", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "__session", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "acc-1", w.Body.String())
			}
		})
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusOf(apperr.Validation("x", nil)))
	assert.Equal(t, http.StatusBadRequest, StatusOf(apperr.InvalidToken("x")))
	assert.Equal(t, http.StatusConflict, StatusOf(apperr.Conflict("x")))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(apperr.Auth("x")))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(apperr.Unauthenticated("x")))
	assert.Equal(t, http.StatusForbidden, StatusOf(apperr.Unverified("x")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("x")))
}
