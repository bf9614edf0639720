// Package auth verifies the bearer credentials presented to the gateway.
// Verification is a pure function of (header, secret); recording the outcome
// in counters or logs is the caller's business.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingCredential indicates the Authorization header was absent.
	ErrMissingCredential = errors.New("auth: missing credential")
	// ErrMalformedCredential indicates the header did not split into "<scheme> <token>".
	ErrMalformedCredential = errors.New("auth: malformed credential")
	// ErrInvalidCredential indicates signature or claim decoding failed.
	ErrInvalidCredential = errors.New("auth: invalid credential")
)

// Claims is the payload carried inside a gateway bearer token. The gateway
// verifies signature and shape only; origin and gendate are not interpreted.
type Claims struct {
	// Origin identifies the submitting lab or system.
	Origin string `json:"origin"`
	// GenDate is the ISO-8601 generation timestamp recorded by the issuer.
	GenDate string `json:"gendate"`
	jwt.RegisteredClaims
}

// Verify checks an Authorization header value against the shared secret.
//
// An empty secret disables authentication entirely and always succeeds with
// zero Claims; the server logs that condition loudly at startup. The token is
// an HS256-signed JWT whose claims must include origin and gendate. An exp
// claim is honored when present; its absence is accepted.
func Verify(authorization, secret string) (Claims, error) {
	if secret == "" {
		return Claims{}, nil
	}
	if strings.TrimSpace(authorization) == "" {
		return Claims{}, ErrMissingCredential
	}
	fields := strings.Fields(authorization)
	if len(fields) != 2 {
		return Claims{}, fmt.Errorf("%w: expected \"<scheme> <token>\"", ErrMalformedCredential)
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(fields[1], &claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.Origin == "" {
		return Claims{}, fmt.Errorf("%w: missing origin claim", ErrInvalidCredential)
	}
	if claims.GenDate == "" {
		return Claims{}, fmt.Errorf("%w: missing gendate claim", ErrInvalidCredential)
	}
	return claims, nil
}

// Sign mints an HS256 bearer token for origin, valid for ttl (0 omits the
// exp claim). Used by the token subcommand and by tests; the gateway itself
// never signs.
func Sign(origin, secret string, now time.Time, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("auth: secret required to sign")
	}
	if origin == "" {
		return "", errors.New("auth: origin required to sign")
	}
	claims := Claims{
		Origin:  origin,
		GenDate: now.UTC().Format(time.RFC3339),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
