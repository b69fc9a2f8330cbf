package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"payment-reconciler/internal/adapter/http/middleware"
	"payment-reconciler/internal/core/ports"
	"payment-reconciler/internal/core/ports/mocks"
	"payment-reconciler/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestJWTAuth_ValidToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("good-token").Return(&ports.TokenClaims{Subject: "ops@example.com"}, nil)

	router := gin.New()
	router.GET("/admin", middleware.JWTAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
		op, ok := middleware.Operator(c)
		assert.True(t, ok)
		c.String(http.StatusOK, op)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops@example.com", w.Body.String())
}

func TestJWTAuth_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		setup  func(m *mocks.MockTokenService)
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "empty bearer", header: "Bearer "},
		{
			name:   "invalid token",
			header: "Bearer bad-token",
			setup: func(m *mocks.MockTokenService) {
				m.EXPECT().Validate("bad-token").Return(nil, errors.New("expired"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			tokenSvc := mocks.NewMockTokenService(ctrl)
			if tt.setup != nil {
				tt.setup(tokenSvc)
			}

			router := gin.New()
			router.GET("/admin", middleware.JWTAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "AUTH_003")
		})
	}
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(response.RequestIDKey))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	id := w.Header().Get(middleware.HeaderRequestID)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, w.Body.String())
}

func TestRequestID_ReusesInbound(t *testing.T) {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(response.RequestIDKey))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-123")
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(middleware.HeaderRequestID))
	assert.Equal(t, "req-123", w.Body.String())
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	long := strings.Repeat("x", 200)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(middleware.HeaderRequestID, long)
	router.ServeHTTP(w, req)

	id := w.Header().Get(middleware.HeaderRequestID)
	assert.NotEmpty(t, id)
	assert.NotEqual(t, long, id)
}

func TestRecovery_ReturnsInternalError(t *testing.T) {
	router := gin.New()
	router.Use(middleware.Recovery(zerolog.Nop()))
	router.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "SYS_001")
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(zerolog.Nop()))
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
