// Package token mints the opaque access tokens that resolve uploaded
// documents. Tokens are the only externally presented handle, so they must be
// unguessable: fixed length, URL-safe alphabet, crypto/rand.
package token

import (
	"crypto/rand"
	"fmt"
)

// Length is the fixed token length in characters.
const Length = 64

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// New returns a fresh random token.
func New() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	// 64-character alphabet, so masking the low 6 bits keeps the
	// distribution uniform.
	for i, b := range buf {
		buf[i] = alphabet[b&0x3f]
	}
	return string(buf), nil
}

// Valid reports whether s has the exact shape of a minted token. Handlers use
// it to reject malformed tokens before touching the registry.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, c := range []byte(s) {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
