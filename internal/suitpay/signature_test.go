package suitpay

import "testing"

func TestSignDeterministic(t *testing.T) {
	a := Sign("secret", "tx1", "off_1", "PAID_OUT")
	b := Sign("secret", "tx1", "off_1", "PAID_OUT")
	if a != b {
		t.Fatalf("same inputs produced different signatures: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestVerifySignature(t *testing.T) {
	sig := Sign("secret", "tx1", "off_1", "PAID_OUT")

	if !VerifySignature("secret", sig, "tx1", "off_1", "PAID_OUT") {
		t.Error("valid signature rejected")
	}
	if VerifySignature("secret", sig, "tx1", "off_2", "PAID_OUT") {
		t.Error("signature accepted for different values")
	}
	if VerifySignature("other", sig, "tx1", "off_1", "PAID_OUT") {
		t.Error("signature accepted under wrong secret")
	}
	if VerifySignature("secret", "", "tx1", "off_1", "PAID_OUT") {
		t.Error("empty signature accepted")
	}
}

func TestVerifySignatureCaseInsensitiveHex(t *testing.T) {
	sig := Sign("secret", "tx1")
	upper := ""
	for _, r := range sig {
		if r >= 'a' && r <= 'f' {
			r = r - 'a' + 'A'
		}
		upper += string(r)
	}
	if !VerifySignature("secret", upper, "tx1") {
		t.Error("uppercase hex signature rejected")
	}
}
