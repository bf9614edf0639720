package ident_test

import (
	"strings"
	"testing"

	"pkt.systems/spoold/internal/ident"
)

func TestNewLengthAndAlphabet(t *testing.T) {
	t.Parallel()

	for i := 0; i < 10000; i++ {
		id := ident.New(ident.DefaultLength)
		if len(id) != ident.DefaultLength {
			t.Fatalf("expected %d chars, got %d (%q)", ident.DefaultLength, len(id), id)
		}
		if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
			t.Fatalf("identifier %q contains path separators", id)
		}
		if !ident.Valid(id) {
			t.Fatalf("generated identifier %q failed validation", id)
		}
	}
}

func TestNewDefaultsLength(t *testing.T) {
	t.Parallel()

	if got := len(ident.New(0)); got != ident.DefaultLength {
		t.Fatalf("expected default length %d, got %d", ident.DefaultLength, got)
	}
	if got := len(ident.New(-3)); got != ident.DefaultLength {
		t.Fatalf("expected default length %d, got %d", ident.DefaultLength, got)
	}
	if got := len(ident.New(8)); got != 8 {
		t.Fatalf("expected length 8, got %d", got)
	}
}

func TestNewIsCollisionFree(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := ident.New(ident.DefaultLength)
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate identifier %q after %d draws", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id string
		ok bool
	}{
		{"abcDEF123", true},
		{"", false},
		{"with/slash", false},
		{"dot.dot", false},
		{"..", false},
		{"trailing ", false},
		{"submission-x", false},
		{strings.Repeat("Z", 64), true},
	}
	for _, tc := range cases {
		if got := ident.Valid(tc.id); got != tc.ok {
			t.Fatalf("Valid(%q) = %v, want %v", tc.id, got, tc.ok)
		}
	}
}
