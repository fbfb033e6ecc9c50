package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned for any token that does not yield a user id.
var ErrInvalidToken = errors.New("invalid token")

// TokenValidator resolves a bearer token into the authenticated user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int, error)
}

// JWTValidator verifies HS256 access tokens issued by the account service.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator constructs a validator for the shared access secret.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// ValidateToken verifies the signature and expiry and returns the user id
// carried in the "id" claim, falling back to "sub".
func (v *JWTValidator) ValidateToken(_ context.Context, token string) (int, error) {
	if token == "" || len(v.secret) == 0 {
		return 0, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}

	userID, ok := userIDFromClaims(claims)
	if !ok || userID <= 0 {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

func userIDFromClaims(claims jwt.MapClaims) (int, bool) {
	if raw, ok := claims["id"]; ok {
		return toInt(raw)
	}
	if raw, ok := claims["sub"]; ok {
		return toInt(raw)
	}
	return 0, false
}

func toInt(raw interface{}) (int, bool) {
	switch v := raw.(type) {
	case float64:
		return int(v), v == float64(int(v))
	case string:
		id, err := strconv.Atoi(v)
		return id, err == nil
	default:
		return 0, false
	}
}
