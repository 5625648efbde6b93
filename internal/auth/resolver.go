package auth

import (
	"context"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// KeyResolver picks the validator for a token's issuer and enforces issuer and audience.
type KeyResolver struct {
	validators       map[string]TokenValidator
	allowedIssuers   map[string]bool
	allowedAudiences []string
	parser           *jwt.Parser
}

// NewKeyResolver creates a new KeyResolver
func NewKeyResolver(allowedIssuers []string, allowedAudiences []string) *KeyResolver {
	issuers := make(map[string]bool, len(allowedIssuers))
	for _, issuer := range allowedIssuers {
		issuers[issuer] = true
	}

	return &KeyResolver{
		validators:       make(map[string]TokenValidator),
		allowedIssuers:   issuers,
		allowedAudiences: allowedAudiences,
		parser:           jwt.NewParser(),
	}
}

// RegisterValidator registers a validator for an issuer
func (kr *KeyResolver) RegisterValidator(issuer string, validator TokenValidator) {
	kr.validators[issuer] = validator
}

// Resolve verifies tokenString and returns its claims.
func (kr *KeyResolver) Resolve(_ context.Context, tokenString string) (*Claims, error) {
	issuer, kid, err := kr.peek(tokenString)
	if err != nil {
		return nil, NewAuthError(AuthFailureUnknown, "malformed token", err)
	}

	if !kr.allowedIssuers[issuer] {
		return nil, NewAuthError(AuthFailureInvalidIssuer, fmt.Sprintf("issuer not allowed: %s", issuer), nil)
	}

	validator, ok := kr.validators[issuer]
	if !ok {
		return nil, NewAuthError(AuthFailureInvalidIssuer, fmt.Sprintf("no validator found for issuer: %s", issuer), nil)
	}

	claims, err := validator.Validate(tokenString, kid)
	if err != nil {
		return nil, err
	}

	if claims.Issuer != issuer {
		return nil, NewAuthError(AuthFailureInvalidIssuer, fmt.Sprintf("issuer mismatch: expected %s, got %s", issuer, claims.Issuer), nil)
	}
	if !kr.validAudience(claims.Audience) {
		return nil, NewAuthError(AuthFailureInvalidAudience, fmt.Sprintf("invalid audience: %v", claims.Audience), nil)
	}
	if err := claims.Validate(); err != nil {
		return nil, NewAuthError(AuthFailureInvalidClaims, "token has no subject", err)
	}

	return claims, nil
}

// peek reads issuer and kid without verifying the signature. Nothing read here
// is trusted until the validator has run.
func (kr *KeyResolver) peek(tokenString string) (string, string, error) {
	claims := &jwt.RegisteredClaims{}
	token, _, err := kr.parser.ParseUnverified(tokenString, claims)
	if err != nil {
		return "", "", err
	}

	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		kid = DefaultKid
	}
	return claims.Issuer, kid, nil
}

func (kr *KeyResolver) validAudience(audiences []string) bool {
	for _, aud := range audiences {
		if slices.Contains(kr.allowedAudiences, aud) {
			return true
		}
	}
	return false
}
