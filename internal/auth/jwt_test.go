package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestValidateTokenWithIDClaim(t *testing.T) {
	v := NewJWTValidator(testSecret)
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"id":   42,
		"role": "user",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	userID, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, 42, userID)
}

func TestValidateTokenWithSubjectClaim(t *testing.T) {
	v := NewJWTValidator(testSecret)
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "7"})

	userID, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, 7, userID)
}

func TestValidateTokenRejects(t *testing.T) {
	v := NewJWTValidator(testSecret)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"id": 1}),
		"expired":      sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"id": 1, "exp": time.Now().Add(-time.Minute).Unix()}),
		"no user":      sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"role": "user"}),
		"zero id":      sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"id": 0}),
		"none alg":     sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"id": 1}),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
