package auth

import (
	"time"
)

// Claims represents authentication token claims
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Scopes    []string
	Raw       map[string]interface{}
}

// HasScope checks if the claims contain a specific scope
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Role returns the role claim, empty when absent.
func (c *Claims) Role() string {
	if c == nil {
		return ""
	}
	if v, ok := c.Raw["role"].(string); ok {
		return v
	}
	return ""
}

// Validator validates authentication tokens
type Validator interface {
	Validate(token string) (*Claims, error)
}
