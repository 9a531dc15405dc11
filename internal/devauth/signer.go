package devauth

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"
)

// signer issues RS256 session tokens and publishes the matching public key.
type signer struct {
	key    *rsa.PrivateKey
	keyID  string
	issuer string
	ttl    time.Duration
}

func newSigner(issuer string, ttl time.Duration) (*signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &signer{
		key:    key,
		keyID:  uuid.NewString(),
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

func (s *signer) sign(subject, sessionID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID
	return token.SignedString(s.key)
}

func (s *signer) keySet() (jwk.Set, error) {
	key, err := jwk.New(&s.key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("build jwk: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, s.keyID); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, err
	}
	set := jwk.NewSet()
	set.Add(key)
	return set, nil
}
