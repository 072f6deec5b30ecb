package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func TestGenerateAndValidateJWT(t *testing.T) {
	tokenString, expiresAt, err := GenerateJWT("admin@sunrise.test", testSecret, time.Hour)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := ValidateJWT(tokenString, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "admin@sunrise.test", claims.Email)
	assert.Equal(t, "admin@sunrise.test", claims.Subject)
}

func TestValidateJWTWrongSecret(t *testing.T) {
	tokenString, _, err := GenerateJWT("admin@sunrise.test", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ValidateJWT(tokenString, "some-other-secret")
	assert.Error(t, err)
}

func TestValidateJWTExpired(t *testing.T) {
	tokenString, _, err := GenerateJWT("admin@sunrise.test", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ValidateJWT(tokenString, testSecret)
	assert.Error(t, err)
}

func TestValidateJWTGarbage(t *testing.T) {
	_, err := ValidateJWT("not-a-token", testSecret)
	assert.Error(t, err)
}
