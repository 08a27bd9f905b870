package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/osvaldoandrade/gradeq/pkg/auth"
	"github.com/osvaldoandrade/gradeq/pkg/config"

	_ "github.com/osvaldoandrade/gradeq/pkg/auth/hmac"
	_ "github.com/osvaldoandrade/gradeq/pkg/auth/static"

	"github.com/gin-gonic/gin"
)

func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	validator, err := newValidator(cfg)
	if err != nil {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth validator not configured"})
		}
	}
	return func(c *gin.Context) {
		claims, err := validateBearer(validator, c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		setUserContext(c, cfg, claims)
		c.Next()
	}
}

// newValidator prefers JWT when a secret is configured; a static admin token
// is the dev fallback.
func newValidator(cfg *config.Config) (auth.Validator, error) {
	switch {
	case strings.TrimSpace(cfg.JWTSecret) != "":
		raw, _ := json.Marshal(map[string]string{"secret": cfg.JWTSecret})
		return auth.NewValidator(auth.ProviderConfig{Type: "hmac", Config: raw})
	case strings.TrimSpace(cfg.AdminToken) != "":
		raw, _ := json.Marshal(map[string]any{
			"token": cfg.AdminToken,
			"raw":   map[string]any{"role": "ADMIN"},
		})
		return auth.NewValidator(auth.ProviderConfig{Type: "static", Config: raw})
	default:
		return nil, fmt.Errorf("neither jwtSecret nor adminToken configured")
	}
}

func validateBearer(validator auth.Validator, authHeader string) (*auth.Claims, error) {
	if strings.TrimSpace(authHeader) == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, fmt.Errorf("invalid Authorization format")
	}
	return validator.Validate(parts[1])
}

func setUserContext(c *gin.Context, cfg *config.Config, claims *auth.Claims) {
	c.Set("userClaims", claims)
	email := strings.TrimSpace(claims.Email)
	if email == "" {
		email = strings.TrimSpace(claims.Subject)
	}
	c.Set("userEmail", email)

	role := strings.ToUpper(strings.TrimSpace(claims.Role()))
	if role == "" && cfg.Env == "dev" {
		role = strings.ToUpper(strings.TrimSpace(c.GetHeader("X-Role")))
	}
	if role == "" {
		role = "USER"
	}
	c.Set("userRole", role)
}
