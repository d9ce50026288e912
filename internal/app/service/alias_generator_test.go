package service

import (
	"regexp"
	"testing"
)

func TestAliasGenerator_LengthAndCharset(t *testing.T) {
	gen := NewAliasGenerator(7)
	valid := regexp.MustCompile(`^[A-Za-z0-9_-]{7}$`)

	for i := 0; i < 200; i++ {
		alias, err := gen.Generate()
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}
		if !valid.MatchString(alias) {
			t.Fatalf("alias %q violates charset/length", alias)
		}
	}
}

func TestAliasGenerator_DefaultLength(t *testing.T) {
	gen := NewAliasGenerator(0)
	alias, err := gen.Generate()
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(alias) != DefaultAliasLength {
		t.Fatalf("expected %d characters, got %d", DefaultAliasLength, len(alias))
	}
}

func TestAliasGenerator_NoImmediateRepeats(t *testing.T) {
	gen := NewAliasGenerator(7)
	seen := make(map[string]bool, 1000)

	for i := 0; i < 1000; i++ {
		alias, err := gen.Generate()
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}
		if seen[alias] {
			t.Fatalf("alias %q repeated within 1000 draws", alias)
		}
		seen[alias] = true
	}
}
