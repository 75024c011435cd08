package utils

import (
	"strconv"
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID("acc")
	b := GenerateID("acc")
	if !strings.HasPrefix(a, "acc-") {
		t.Fatalf("GenerateID = %q, want acc- prefix", a)
	}
	if a == b {
		t.Fatalf("GenerateID returned the same id twice: %q", a)
	}
	if !ValidateAccountID(a) {
		t.Errorf("ValidateAccountID(%q) = false", a)
	}
}

func TestGenerateOTP_Range(t *testing.T) {
	for i := 0; i < 500; i++ {
		otp, err := GenerateOTP()
		if err != nil {
			t.Fatalf("GenerateOTP: %v", err)
		}
		if len(otp) != 6 {
			t.Fatalf("otp %q has %d digits, want 6", otp, len(otp))
		}
		n, err := strconv.Atoi(otp)
		if err != nil {
			t.Fatalf("otp %q is not numeric: %v", otp, err)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("otp %d outside [100000, 999999]", n)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}

func TestHasher_HashAndCheck(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.HashPassword("secret123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "secret123" {
		t.Fatal("hash equals plaintext")
	}
	if !h.CheckPassword("secret123", hash) {
		t.Error("CheckPassword rejected the right password")
	}
	if h.CheckPassword("wrong", hash) {
		t.Error("CheckPassword accepted a wrong password")
	}
}

func TestHasher_CostClamped(t *testing.T) {
	if h := NewHasher(0); h.Cost < 4 {
		t.Errorf("zero cost should fall back to default, got %d", h.Cost)
	}
	if h := NewHasher(2); h.Cost != 4 {
		t.Errorf("cost below min should clamp to 4, got %d", h.Cost)
	}
	if h := NewHasher(99); h.Cost != 31 {
		t.Errorf("cost above max should clamp to 31, got %d", h.Cost)
	}
}
