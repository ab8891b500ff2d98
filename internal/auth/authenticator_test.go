package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/omnipdfs/relay/internal/ierr"
	"github.com/stretchr/testify/assert"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	assert.NoError(t, err)

	return tokenString
}

func TestAuthenticator_AuthenticateJWT(t *testing.T) {
	authenticator := NewAuthenticator("test-secret", []string{"test-api-key"})

	t.Run("valid jwt", func(t *testing.T) {
		tokenString := signToken(t, "test-secret", jwt.MapClaims{
			"sub":  "user-1",
			"name": "Ada Lovelace",
			"exp":  time.Now().Add(time.Hour).Unix(),
			"iat":  time.Now().Unix(),
			"aud":  "omnipdfs",
		})

		identity, err := authenticator.AuthenticateJWT(tokenString)

		assert.NoError(t, err)
		assert.NotNil(t, identity)
		assert.Equal(t, "user-1", identity.UserId)
		assert.Equal(t, "Ada Lovelace", identity.UserName)
		assert.False(t, identity.IsAdmin)
	})

	t.Run("display name falls back to email", func(t *testing.T) {
		tokenString := signToken(t, "test-secret", jwt.MapClaims{
			"sub":   "user-2",
			"email": "grace@example.com",
			"exp":   time.Now().Add(time.Hour).Unix(),
			"iat":   time.Now().Unix(),
			"aud":   "omnipdfs",
		})

		identity, err := authenticator.AuthenticateJWT(tokenString)

		assert.NoError(t, err)
		assert.Equal(t, "grace@example.com", identity.UserName)
	})

	t.Run("invalid jwt signature", func(t *testing.T) {
		tokenString := signToken(t, "invalid-secret", jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
			"iat": time.Now().Unix(),
			"aud": "omnipdfs",
		})

		identity, err := authenticator.AuthenticateJWT(tokenString)

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.IsType(t, ierr.Error{}, err)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, err.(ierr.Error).Code)
	})

	t.Run("expired jwt", func(t *testing.T) {
		tokenString := signToken(t, "test-secret", jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
			"iat": time.Now().Unix(),
			"aud": "omnipdfs",
		})

		identity, err := authenticator.AuthenticateJWT(tokenString)

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, ierr.CodeOf(err))
	})

	t.Run("wrong audience", func(t *testing.T) {
		tokenString := signToken(t, "test-secret", jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
			"iat": time.Now().Unix(),
			"aud": "another-service",
		})

		identity, err := authenticator.AuthenticateJWT(tokenString)

		assert.Error(t, err)
		assert.Nil(t, identity)
	})

	t.Run("missing subject", func(t *testing.T) {
		tokenString := signToken(t, "test-secret", jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
			"iat": time.Now().Unix(),
			"aud": "omnipdfs",
		})

		identity, err := authenticator.AuthenticateJWT(tokenString)

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, ierr.CodeOf(err))
	})
}

func TestAuthenticator_AuthenticateAPIKey(t *testing.T) {
	authenticator := NewAuthenticator("test-secret", []string{"", "test-api-key"})

	t.Run("valid api key", func(t *testing.T) {
		identity, err := authenticator.AuthenticateAPIKey("test-api-key")

		assert.NoError(t, err)
		assert.NotNil(t, identity)
		assert.Equal(t, "api", identity.UserId)
		assert.True(t, identity.IsAdmin)
	})

	t.Run("invalid api key", func(t *testing.T) {
		identity, err := authenticator.AuthenticateAPIKey("invalid-api-key")

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, ierr.CodeOf(err))
	})

	t.Run("empty key never matches", func(t *testing.T) {
		identity, err := authenticator.AuthenticateAPIKey("")

		assert.Error(t, err)
		assert.Nil(t, identity)
	})
}

func TestAuthenticator_AuthenticateRequest(t *testing.T) {
	authenticator := NewAuthenticator("test-secret", []string{"test-api-key"})
	tokenString := signToken(t, "test-secret", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
		"aud": "omnipdfs",
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/documents/doc1/ws", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)

		identity, err := authenticator.AuthenticateRequest(req)

		assert.NoError(t, err)
		assert.Equal(t, "user-1", identity.UserId)
	})

	t.Run("token query parameter", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/documents/doc1/ws?token="+tokenString, nil)

		identity, err := authenticator.AuthenticateRequest(req)

		assert.NoError(t, err)
		assert.Equal(t, "user-1", identity.UserId)
	})

	t.Run("api key", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/documents/doc1/presence", nil)
		req.Header.Set("Authorization", "Bearer test-api-key")

		identity, err := authenticator.AuthenticateRequest(req)

		assert.NoError(t, err)
		assert.True(t, identity.IsAdmin)
	})

	t.Run("missing credentials", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/documents/doc1/ws", nil)

		identity, err := authenticator.AuthenticateRequest(req)

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, ierr.CodeOf(err))
	})
}
