package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/osvaldoandrade/gradeq/pkg/config"
)

func protectedRouter(cfg *config.Config, adminOnly bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := []gin.HandlerFunc{AuthMiddleware(cfg)}
	if adminOnly {
		handlers = append(handlers, RequireAdmin())
	}
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"email": c.GetString("userEmail"), "role": c.GetString("userRole")})
	})
	r.GET("/protected", handlers...)
	return r
}

func get(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func devConfig(t *testing.T) *config.Config {
	cfg, err := config.LoadConfigOptional("")
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestAuthMiddlewareStaticToken(t *testing.T) {
	cfg := devConfig(t)
	cfg.AdminToken = "s3cret"
	r := protectedRouter(cfg, false)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := get(r, tt.header); w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestAuthMiddlewareStaticTokenIsAdmin(t *testing.T) {
	cfg := devConfig(t)
	cfg.AdminToken = "s3cret"
	r := protectedRouter(cfg, true)

	if w := get(r, "Bearer s3cret"); w.Code != http.StatusOK {
		t.Errorf("static admin token should pass RequireAdmin, got %d", w.Code)
	}
}

func TestAuthMiddlewareJWT(t *testing.T) {
	cfg := devConfig(t)
	cfg.JWTSecret = "hmac-secret"
	r := protectedRouter(cfg, true)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "teacher-1",
		"role": "ADMIN",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("hmac-secret"))
	if err != nil {
		t.Fatal(err)
	}

	if w := get(r, "Bearer "+signed); w.Code != http.StatusOK {
		t.Errorf("valid admin JWT rejected: %d %s", w.Code, w.Body)
	}

	user := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "student-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	usigned, _ := user.SignedString([]byte("hmac-secret"))
	if w := get(r, "Bearer "+usigned); w.Code != http.StatusUnauthorized {
		t.Errorf("non-admin JWT should fail RequireAdmin, got %d", w.Code)
	}
}

func TestAuthMiddlewareUnconfigured(t *testing.T) {
	cfg := devConfig(t)
	r := protectedRouter(cfg, false)
	if w := get(r, "Bearer anything"); w.Code != http.StatusInternalServerError {
		t.Errorf("unconfigured auth should 500, got %d", w.Code)
	}
}
