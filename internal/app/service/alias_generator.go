package service

import (
	"crypto/rand"
	"fmt"
)

// aliasAlphabet is the URL-safe alphabet: 64 characters, so each byte of
// randomness maps to exactly one character without modulo bias.
const aliasAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// DefaultAliasLength matches the 7-character aliases handed out when the
// caller does not supply one.
const DefaultAliasLength = 7

// AliasGenerator produces short, URL-safe, non-enumerable random aliases.
// It is pure: collision handling belongs to the create path, which retries
// with a fresh candidate.
type AliasGenerator struct {
	length int
}

// NewAliasGenerator returns a generator for aliases of the given length.
// Non-positive lengths fall back to the default.
func NewAliasGenerator(length int) *AliasGenerator {
	if length <= 0 {
		length = DefaultAliasLength
	}
	return &AliasGenerator{length: length}
}

// Generate returns one random alias candidate from a CSPRNG.
func (g *AliasGenerator) Generate() (string, error) {
	buf := make([]byte, g.length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate alias: %w", err)
	}
	for i, b := range buf {
		buf[i] = aliasAlphabet[int(b)&63]
	}
	return string(buf), nil
}
