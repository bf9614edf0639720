package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"pkt.systems/spoold/internal/auth"
)

const testSecret = "sjöbris-9341"

func bearer(t *testing.T, origin, secret string, ttl time.Duration) string {
	t.Helper()
	token, err := auth.Sign(origin, secret, time.Now(), ttl)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return "Bearer " + token
}

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	header := bearer(t, "lab-gothenburg", testSecret, time.Hour)
	claims, err := auth.Verify(header, testSecret)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Origin != "lab-gothenburg" {
		t.Fatalf("unexpected origin %q", claims.Origin)
	}
	if claims.GenDate == "" {
		t.Fatal("expected gendate claim")
	}
}

func TestVerifyWithoutExpiry(t *testing.T) {
	t.Parallel()

	header := bearer(t, "lab", testSecret, 0)
	if _, err := auth.Verify(header, testSecret); err != nil {
		t.Fatalf("tokens without exp must verify: %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()

	token, err := auth.Sign("lab", testSecret, time.Now().Add(-2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := auth.Verify("Bearer "+token, testSecret); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for expired token, got %v", err)
	}
}

func TestVerifyDisabled(t *testing.T) {
	t.Parallel()

	if _, err := auth.Verify("", ""); err != nil {
		t.Fatalf("empty secret must disable verification, got %v", err)
	}
	if _, err := auth.Verify("garbage", ""); err != nil {
		t.Fatalf("empty secret must accept any header, got %v", err)
	}
}

func TestVerifyMissing(t *testing.T) {
	t.Parallel()

	if _, err := auth.Verify("", testSecret); !errors.Is(err, auth.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if _, err := auth.Verify("   ", testSecret); !errors.Is(err, auth.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential for blank header, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	t.Parallel()

	for _, header := range []string{"Bearer", "no-scheme-token", "Bearer a b"} {
		if _, err := auth.Verify(header, testSecret); !errors.Is(err, auth.ErrMalformedCredential) {
			t.Fatalf("header %q: expected ErrMalformedCredential, got %v", header, err)
		}
	}
}

func TestVerifyInvalid(t *testing.T) {
	t.Parallel()

	header := bearer(t, "lab", "other-secret", time.Hour)
	if _, err := auth.Verify(header, testSecret); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for wrong key, got %v", err)
	}
	if _, err := auth.Verify("Bearer not.a.jwt", testSecret); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for junk token, got %v", err)
	}
}

func TestVerifyRejectsMissingClaims(t *testing.T) {
	t.Parallel()

	// Correctly signed tokens lacking origin or gendate must still fail.
	for _, claims := range []jwt.MapClaims{
		{"gendate": "2026-01-01T00:00:00Z"},
		{"origin": "lab"},
	} {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("SignedString: %v", err)
		}
		if _, err := auth.Verify("Bearer "+token, testSecret); !errors.Is(err, auth.ErrInvalidCredential) {
			t.Fatalf("claims %v: expected ErrInvalidCredential, got %v", claims, err)
		}
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	t.Parallel()

	token, err := auth.Sign("lab", testSecret, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tampered := strings.Replace("Bearer "+token, "Bearer ", "Bearer x", 1)
	if _, err := auth.Verify(tampered, testSecret); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for tampered token, got %v", err)
	}
}

func TestVerifyIsIdempotent(t *testing.T) {
	t.Parallel()

	header := bearer(t, "lab", testSecret, time.Hour)
	first, err1 := auth.Verify(header, testSecret)
	second, err2 := auth.Verify(header, testSecret)
	if err1 != nil || err2 != nil {
		t.Fatalf("Verify errors: %v / %v", err1, err2)
	}
	if first.Origin != second.Origin || first.GenDate != second.GenDate {
		t.Fatalf("verification not stable: %+v vs %+v", first, second)
	}
}
