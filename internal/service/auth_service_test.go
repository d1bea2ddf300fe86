package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/config"
	"leadflow/internal/model"
)

func testAuth() *AuthService {
	return NewAuthService(config.AuthConfig{
		HostUsername:    "admin",
		HostPassword:    "hunter2",
		HostClientID:    "acme",
		JWTSecret:       "test-secret",
		SessionTokenTTL: time.Hour,
	})
}

func TestLogin(t *testing.T) {
	auth := testAuth()

	_, err := auth.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	resp, err := auth.Login("admin", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "acme", resp.ClientID)

	claims, err := auth.ValidateHostToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.HostID, claims.HostID)
	assert.Equal(t, "acme", claims.ClientID)
}

func TestSessionToken(t *testing.T) {
	auth := testAuth()

	token, err := auth.GenerateSessionToken("s1", "dog-walking")
	require.NoError(t, err)

	claims, err := auth.ValidateSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.SessionID)
	assert.Equal(t, "dog-walking", claims.FormID)

	_, err = auth.ValidateHostToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "a session token does not grant host access")
}

func TestRejectsForeignAndExpiredTokens(t *testing.T) {
	auth := testAuth()

	other := NewAuthService(config.AuthConfig{JWTSecret: "other-secret"})
	foreign, err := other.GenerateSessionToken("s1", "dog-walking")
	require.NoError(t, err)
	_, err = auth.ValidateSessionToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &model.SessionClaims{
		SessionID: "s1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = auth.ValidateSessionToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.ValidateSessionToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
