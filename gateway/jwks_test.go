package gateway

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"login-handshake/internal/devauth"
)

func newDevAuth(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := devauth.New(devauth.Config{Issuer: "devauth"})
	require.NoError(t, err)
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestNewJWKSVerifier_FailsOnUnreachableSet(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL + devauth.JWKSPath
	srv.Close()

	_, err := NewJWKSVerifier(context.Background(), url, "")
	assert.ErrorIs(t, err, ErrFetchJWKSet)
}

func TestJWKSVerifier_RejectsForeignTokens(t *testing.T) {
	srv := newDevAuth(t)
	v, err := NewJWKSVerifier(context.Background(), srv.URL+devauth.JWKSPath, "devauth")
	require.NoError(t, err)

	assert.ErrorIs(t, v.Verify(context.Background(), ""), ErrEmptyToken)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	claims := jwt.RegisteredClaims{
		Issuer:    "devauth",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	noKid, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	assert.Error(t, v.Verify(context.Background(), noKid))

	foreign := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	foreign.Header["kid"] = "someone-else"
	signed, err := foreign.SignedString(key)
	require.NoError(t, err)
	assert.Error(t, v.Verify(context.Background(), signed))

	hmac, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	assert.Error(t, v.Verify(context.Background(), hmac))
}
