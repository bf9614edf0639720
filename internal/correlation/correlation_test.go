package correlation

import (
	"context"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	valid := "abc-123"
	if got, ok := Normalize(valid); !ok || got != valid {
		t.Fatalf("expected %q to normalize, got %q ok=%v", valid, got, ok)
	}
	if got, ok := Normalize("  xyz  "); !ok || got != "xyz" {
		t.Fatalf("expected trimmed normalize to xyz, got %q ok=%v", got, ok)
	}
	if _, ok := Normalize(""); ok {
		t.Fatal("empty id should be invalid")
	}
	if _, ok := Normalize(strings.Repeat("a", MaxIDLength+1)); ok {
		t.Fatal("overlong id should be invalid")
	}
	if _, ok := Normalize("bad\x01suffix"); ok {
		t.Fatal("non-printable should be invalid")
	}
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	if Has(ctx) {
		t.Fatal("expected empty context to have no correlation id")
	}
	ctx = Set(ctx, "")
	if Has(ctx) {
		t.Fatal("invalid id must not be stored")
	}
	ctx = Set(ctx, "req-42")
	if got := ID(ctx); got != "req-42" {
		t.Fatalf("expected req-42, got %q", got)
	}
}

func TestGenerateIsNormalizable(t *testing.T) {
	id := Generate()
	if id == "" {
		t.Fatal("expected non-empty generated id")
	}
	if _, ok := Normalize(id); !ok {
		t.Fatalf("generated id %q failed normalization", id)
	}
}
