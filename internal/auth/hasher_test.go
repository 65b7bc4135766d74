package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	again, _ := h.Hash("secret123")
	if hash == again {
		t.Fatalf("expected salted hashes to differ")
	}

	ok, err := h.Verify("secret123", hash)
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v", ok, err)
	}
	ok, err = h.Verify("wrong", hash)
	if err != nil || ok {
		t.Fatalf("Verify(wrong) = %v, %v", ok, err)
	}
}

func TestBcryptHasherRejectsEmptyPassword(t *testing.T) {
	if _, err := NewBcryptHasher(bcrypt.MinCost).Hash(""); err == nil {
		t.Fatalf("expected error for empty password")
	}
}

func TestBcryptHasherInvalidCostFallsBack(t *testing.T) {
	if got := NewBcryptHasher(99).cost; got != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", got)
	}
}
