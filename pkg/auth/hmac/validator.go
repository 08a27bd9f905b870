package hmac

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/osvaldoandrade/gradeq/pkg/auth"
)

type validatorConfig struct {
	// Secret is the shared HMAC signing secret.
	Secret string `json:"secret"`

	// Issuer, when set, is enforced against the iss claim.
	Issuer string `json:"issuer,omitempty"`

	// Audience, when set, is enforced against the aud claim.
	Audience string `json:"audience,omitempty"`

	// ClockSkewSeconds loosens exp/nbf validation.
	ClockSkewSeconds int `json:"clockSkewSeconds,omitempty"`
}

type validator struct {
	cfg validatorConfig
}

func NewValidatorFromJSON(raw json.RawMessage) (auth.Validator, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, errors.New("hmac auth: missing config")
	}

	var cfg validatorConfig
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &cfg.Secret); err != nil {
			return nil, fmt.Errorf("hmac auth: invalid config: %w", err)
		}
	} else {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("hmac auth: invalid config: %w", err)
		}
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("hmac auth: secret is required")
	}
	return &validator{cfg: cfg}, nil
}

func (v *validator) Validate(token string) (*auth.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	if v.cfg.ClockSkewSeconds > 0 {
		opts = append(opts, jwt.WithLeeway(time.Duration(v.cfg.ClockSkewSeconds)*time.Second))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(v.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token: unexpected claims type")
	}
	return mapClaims(mc), nil
}

func mapClaims(mc jwt.MapClaims) *auth.Claims {
	claims := &auth.Claims{Raw: map[string]interface{}(mc)}
	if sub, err := mc.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if iss, err := mc.GetIssuer(); err == nil {
		claims.Issuer = iss
	}
	if aud, err := mc.GetAudience(); err == nil {
		claims.Audience = []string(aud)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if email, ok := mc["email"].(string); ok {
		claims.Email = email
	}
	switch scopes := mc["scope"].(type) {
	case string:
		claims.Scopes = strings.Fields(scopes)
	case []interface{}:
		for _, s := range scopes {
			if str, ok := s.(string); ok {
				claims.Scopes = append(claims.Scopes, str)
			}
		}
	}
	return claims
}

func init() {
	auth.RegisterProvider("hmac", NewValidatorFromJSON)
}
