package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/jwk"
)

var (
	ErrFetchJWKSet    = errors.New("failed to fetch JWK set")
	ErrMissingKeyID   = errors.New("token header has no kid")
	ErrUnknownKeyID   = errors.New("no key with the token's kid")
	ErrFailedToGetRaw = errors.New("failed to get raw key")
	ErrEmptyToken     = errors.New("session carries no token")
	ErrInvalidIssuer  = errors.New("token issuer mismatch")
)

const defaultJWKSRefresh = 5 * time.Minute

// JWKSVerifier validates session tokens as JWTs signed by a key published in
// a JWK set. The set is cached and refreshed in the background.
type JWKSVerifier struct {
	autoRefresh *jwk.AutoRefresh
	jwksURL     string
	issuer      string
}

var _ TokenVerifier = (*JWKSVerifier)(nil)

// NewJWKSVerifier registers jwksURL with an auto-refreshing cache and fetches
// it once so a misconfigured URL fails at startup. An empty issuer skips the
// iss check.
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer string) (*JWKSVerifier, error) {
	ar := jwk.NewAutoRefresh(ctx)
	ar.Configure(jwksURL, jwk.WithRefreshInterval(defaultJWKSRefresh))

	if _, err := ar.Fetch(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchJWKSet, err)
	}
	return &JWKSVerifier{
		autoRefresh: ar,
		jwksURL:     jwksURL,
		issuer:      issuer,
	}, nil
}

// Verify checks the signature, expiry and issuer of token.
func (v *JWKSVerifier) Verify(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	keyFunc := func(t *jwt.Token) (interface{}, error) {
		keyID, ok := t.Header["kid"].(string)
		if !ok || keyID == "" {
			return nil, ErrMissingKeyID
		}

		keySet, err := v.autoRefresh.Fetch(ctx, v.jwksURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetchJWKSet, err)
		}

		key, found := keySet.LookupKeyID(keyID)
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKeyID, keyID)
		}

		var pubKey interface{}
		if err := key.Raw(&pubKey); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToGetRaw, err)
		}
		return pubKey, nil
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
	)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("invalid token")
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return ErrInvalidIssuer
	}
	return nil
}
