package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/config"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID: "student-1",
		Role:   models.RoleStudent,
		Email:  "student@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity",
			Audience:  jwt.ClaimStrings{"tutorhub"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestTokenVerifierAcceptsValidToken(t *testing.T) {
	verifier := NewTokenVerifier(config.JWTConfig{Secret: "secret", Issuer: "identity", Audience: []string{"tutorhub"}})

	claims, err := verifier.ValidateToken(signToken(t, jwt.SigningMethodHS256, "secret", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "student-1", claims.ActorID())
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestTokenVerifierFallsBackToSubject(t *testing.T) {
	verifier := NewTokenVerifier(config.JWTConfig{Secret: "secret"})
	c := validClaims()
	c.UserID = ""
	c.Subject = "teacher-9"
	c.Role = models.RoleTeacher

	claims, err := verifier.ValidateToken(signToken(t, jwt.SigningMethodHS256, "secret", c))
	require.NoError(t, err)
	assert.Equal(t, "teacher-9", claims.ActorID())
}

func TestTokenVerifierRejects(t *testing.T) {
	verifier := NewTokenVerifier(config.JWTConfig{Secret: "secret", Issuer: "identity", Audience: []string{"tutorhub"}})

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"other-api"}

	badRole := validClaims()
	badRole.Role = "JANITOR"

	noSubject := validClaims()
	noSubject.UserID = ""

	cases := map[string]string{
		"wrong secret":   signToken(t, jwt.SigningMethodHS256, "other", validClaims()),
		"wrong method":   signToken(t, jwt.SigningMethodHS512, "secret", validClaims()),
		"expired":        signToken(t, jwt.SigningMethodHS256, "secret", expired),
		"no expiry":      signToken(t, jwt.SigningMethodHS256, "secret", noExpiry),
		"wrong issuer":   signToken(t, jwt.SigningMethodHS256, "secret", wrongIssuer),
		"wrong audience": signToken(t, jwt.SigningMethodHS256, "secret", wrongAudience),
		"unknown role":   signToken(t, jwt.SigningMethodHS256, "secret", badRole),
		"no subject":     signToken(t, jwt.SigningMethodHS256, "secret", noSubject),
		"garbage":        "not-a-token",
	}
	for name, token := range cases {
		_, err := verifier.ValidateToken(token)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, appErrors.ErrUnauthorized), name)
	}
}
