package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity claims issued by the identity provider. The subject is
// the Identity ID; email and name are profile hints used to provision the identity
// on first sight.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Validate rejects tokens without a subject.
func (c *Claims) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}
