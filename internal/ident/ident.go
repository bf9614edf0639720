// Package ident generates the identifiers under which submissions are
// spooled. Identifiers are fixed-length alphanumeric strings so they can be
// embedded directly in a filesystem path component; uniqueness relies on the
// birthday bound over the alphabet and length, not on unpredictability.
package ident

import "math/rand/v2"

// Alphabet is the character set identifiers are drawn from. Every rune is
// safe as part of a single path segment.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultLength gives ~190 bits of identifier space, enough to skip
// existence checks before spooling. Shorter lengths require a pre-write
// collision check.
const DefaultLength = 32

// New returns a random identifier of length n drawn uniformly from Alphabet.
// n <= 0 falls back to DefaultLength.
func New(n int) string {
	if n <= 0 {
		n = DefaultLength
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = Alphabet[rand.IntN(len(Alphabet))]
	}
	return string(buf)
}

// Valid reports whether id is non-empty and consists solely of Alphabet
// characters. Caller-supplied identifiers must pass this check before being
// interpolated into a spool path.
func Valid(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
