package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"exam-timetable/config"
	"exam-timetable/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func ok(c *gin.Context) { c.String(http.StatusOK, "ok") }

func do(r *gin.Engine, method, target string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ── JWTAuth / RoleAuth ──

func TestJWTAuth(t *testing.T) {
	mgr := jwt.NewManager(&config.AuthConfig{JWTSecret: "test-secret", Issuer: "exam-timetable", AccessTokenTTL: time.Minute})
	token, err := mgr.GenerateAccessToken("u-1", RoleScheduler)
	assert.NoError(t, err)

	r := gin.New()
	r.Use(JWTAuth(mgr, nil, zap.NewNop()))
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id")+"/"+c.GetString("role"))
	})

	t.Run("Valid", func(t *testing.T) {
		w := do(r, "GET", "/me", nil, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "u-1/scheduler", w.Body.String())
	})

	t.Run("MissingHeader", func(t *testing.T) {
		w := do(r, "GET", "/me", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("WrongScheme", func(t *testing.T) {
		w := do(r, "GET", "/me", nil, map[string]string{"Authorization": "Token " + token})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ForeignSecret", func(t *testing.T) {
		other := jwt.NewManager(&config.AuthConfig{JWTSecret: "other", Issuer: "exam-timetable", AccessTokenTTL: time.Minute})
		forged, _ := other.GenerateAccessToken("u-1", RoleAdmin)
		w := do(r, "GET", "/me", nil, map[string]string{"Authorization": "Bearer " + forged})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRoleAuth(t *testing.T) {
	route := func(role string) *gin.Engine {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			if role != "" {
				c.Set("role", role)
			}
		})
		r.POST("/publish", RoleAuth(RoleAdmin), ok)
		r.POST("/jobs", RoleAuth(RoleAdmin, RoleScheduler), ok)
		return r
	}

	assert.Equal(t, http.StatusOK, do(route(RoleAdmin), "POST", "/publish", nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, do(route(RoleScheduler), "POST", "/publish", nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(route(RoleScheduler), "POST", "/jobs", nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, do(route(RoleSolver), "POST", "/jobs", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(route(""), "POST", "/jobs", nil, nil).Code)
}

// ── RateLimit ──

func TestRateLimit(t *testing.T) {
	logger := zap.NewNop()

	t.Run("BlocksAfterLimit", func(t *testing.T) {
		r := gin.New()
		r.POST("/etl/run", RateLimit(NewLimiterStore(nil, logger), 2, logger), ok)
		r.POST("/jobs", RateLimit(NewLimiterStore(nil, logger), 2, logger), ok)

		assert.Equal(t, http.StatusOK, do(r, "POST", "/etl/run", nil, nil).Code)
		assert.Equal(t, http.StatusOK, do(r, "POST", "/etl/run", nil, nil).Code)
		assert.Equal(t, http.StatusTooManyRequests, do(r, "POST", "/etl/run", nil, nil).Code)

		// 按路由分别计数
		assert.Equal(t, http.StatusOK, do(r, "POST", "/jobs", nil, nil).Code)
	})

	t.Run("DisabledWhenZero", func(t *testing.T) {
		r := gin.New()
		r.POST("/etl/run", RateLimit(NewLimiterStore(nil, logger), 0, logger), ok)
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, do(r, "POST", "/etl/run", nil, nil).Code)
		}
	})
}

// ── BodyLimit ──

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/staging", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			_ = c.Error(err)
			return
		}
		c.String(http.StatusOK, "ok")
	})

	assert.Equal(t, http.StatusOK, do(r, "POST", "/staging", strings.NewReader(`{"rows":[]}`), nil).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge,
		do(r, "POST", "/staging", strings.NewReader(strings.Repeat("x", 64)), nil).Code)
}

// ── CORS ──

func TestCORS(t *testing.T) {
	t.Run("AllowedOrigin", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS([]string{"https://exam.example.edu/"}))
		r.GET("/sessions", ok)

		w := do(r, "GET", "/sessions", nil, map[string]string{"Origin": "https://exam.example.edu"})
		assert.Equal(t, "https://exam.example.edu", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("EmptyListPassesThrough", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS([]string{" ", ""}))
		r.GET("/sessions", ok)

		w := do(r, "GET", "/sessions", nil, map[string]string{"Origin": "https://elsewhere.example"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}
