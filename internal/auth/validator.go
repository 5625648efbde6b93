package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator verifies a token's signature and time claims.
type TokenValidator interface {
	Validate(tokenString string, kid string) (*Claims, error)
}

// signedValidator verifies tokens for one issuer with one signing family.
type signedValidator struct {
	issuer    string
	clockSkew time.Duration
	methods   []string
	key       func(kid string) (interface{}, bool)
}

// NewHS256Validator verifies HS256 tokens against secrets in keyStore.
func NewHS256Validator(keyStore *KeyStore, issuer string, clockSkew time.Duration) TokenValidator {
	return &signedValidator{
		issuer:    issuer,
		clockSkew: clockSkew,
		methods:   []string{jwt.SigningMethodHS256.Alg()},
		key: func(kid string) (interface{}, bool) {
			return keyStore.GetHS256Key(issuer, kid)
		},
	}
}

// NewRS256Validator verifies RS256 tokens against public keys in keyStore.
func NewRS256Validator(keyStore *KeyStore, issuer string, clockSkew time.Duration) TokenValidator {
	return &signedValidator{
		issuer:    issuer,
		clockSkew: clockSkew,
		methods:   []string{jwt.SigningMethodRS256.Alg()},
		key: func(kid string) (interface{}, bool) {
			return keyStore.GetRS256Key(issuer, kid)
		},
	}
}

func (v *signedValidator) Validate(tokenString string, kid string) (*Claims, error) {
	key, ok := v.key(kid)
	if !ok {
		return nil, NewAuthError(AuthFailureInvalidSignature, fmt.Sprintf("key not found for issuer %s and kid %s", v.issuer, kid), nil)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods(v.methods),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, NewAuthError(AuthFailureTokenExpired, "token expired", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, NewAuthError(AuthFailureInvalidSignature, "invalid signature", err)
		case errors.Is(err, jwt.ErrTokenInvalidClaims):
			return nil, NewAuthError(AuthFailureInvalidClaims, "invalid claims", err)
		default:
			return nil, NewAuthError(AuthFailureUnknown, "failed to parse token", err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, NewAuthError(AuthFailureUnknown, "invalid token", nil)
	}
	return claims, nil
}

type anyValidator []TokenValidator

// NewAnyValidator accepts a token when one of validators does. When all of
// them reject it the first error is returned.
func NewAnyValidator(validators ...TokenValidator) TokenValidator {
	return anyValidator(validators)
}

func (a anyValidator) Validate(tokenString string, kid string) (*Claims, error) {
	var firstErr error
	for _, v := range a {
		claims, err := v.Validate(tokenString, kid)
		if err == nil {
			return claims, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = NewAuthError(AuthFailureUnknown, "no validator configured", nil)
	}
	return nil, firstErr
}
