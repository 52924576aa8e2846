package internal

import (
	"strings"
	"testing"
)

func TestNewOpaqueTokenShape(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		tok, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("NewOpaqueToken error: %v", err)
		}
		if len(tok) != 43 {
			t.Fatalf("expected 43 characters, got %d (%q)", len(tok), tok)
		}
		if strings.ContainsAny(tok, "+/=") {
			t.Fatalf("expected URL-safe alphabet, got %q", tok)
		}
		if !IsOpaqueToken(tok) {
			t.Fatalf("expected %q to be recognized as opaque token", tok)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestHashTokenIsStable(t *testing.T) {
	a := HashToken("token-value")
	b := HashToken("token-value")
	if a != b {
		t.Fatal("expected deterministic digest")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(a))
	}
	if a == HashToken("token-valuf") {
		t.Fatal("expected different inputs to hash differently")
	}
}

func TestEqualHash(t *testing.T) {
	h := HashToken("x")
	if !EqualHash(h, h) {
		t.Fatal("expected equal digests to match")
	}
	if EqualHash(h, h[:len(h)-1]) {
		t.Fatal("expected length mismatch to fail")
	}
	if EqualHash(h, HashToken("y")) {
		t.Fatal("expected different digests to fail")
	}
}

func TestIsOpaqueTokenRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "short", strings.Repeat("!", 43), strings.Repeat("A", 44)} {
		if IsOpaqueToken(in) {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}
