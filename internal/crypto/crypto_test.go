package crypto_test

import (
	"bytes"
	"testing"

	"mlsgroup/internal/crypto"
)

func TestHPKE_SealOpen(t *testing.T) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	kem, ct, err := crypto.SealHPKE(pub.Slice(), []byte("info"), []byte("aad"), []byte("secret"))
	if err != nil {
		t.Fatalf("SealHPKE: %v", err)
	}
	pt, err := crypto.OpenHPKE(priv.Slice(), kem, []byte("info"), []byte("aad"), ct)
	if err != nil {
		t.Fatalf("OpenHPKE: %v", err)
	}
	if string(pt) != "secret" {
		t.Fatalf("got %q, want %q", pt, "secret")
	}
}

func TestHPKE_WrongInfoFails(t *testing.T) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	kem, ct, err := crypto.SealHPKE(pub.Slice(), []byte("a"), nil, []byte("secret"))
	if err != nil {
		t.Fatalf("SealHPKE: %v", err)
	}
	if _, err := crypto.OpenHPKE(priv.Slice(), kem, []byte("b"), nil, ct); err == nil {
		t.Fatal("expected open with a different info to fail")
	}
}

func TestSignWithLabel_LabelSeparates(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	sig := crypto.SignWithLabel(priv, "LeafNodeTBS", []byte("content"))
	if !crypto.VerifyWithLabel(pub.Slice(), "LeafNodeTBS", []byte("content"), sig) {
		t.Fatal("signature should verify under its own label")
	}
	if crypto.VerifyWithLabel(pub.Slice(), "KeyPackageTBS", []byte("content"), sig) {
		t.Fatal("signature must not verify under another label")
	}
	if crypto.VerifyWithLabel([]byte("short"), "LeafNodeTBS", []byte("content"), sig) {
		t.Fatal("malformed key must not verify")
	}
}

func TestExpandWithLabel_Deterministic(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 32)
	a, err := crypto.ExpandWithLabel(secret, "key", []byte("ctx"), 16)
	if err != nil {
		t.Fatalf("ExpandWithLabel: %v", err)
	}
	b, _ := crypto.ExpandWithLabel(secret, "key", []byte("ctx"), 16)
	c, _ := crypto.ExpandWithLabel(secret, "nonce", []byte("ctx"), 16)
	if !bytes.Equal(a, b) || len(a) != 16 {
		t.Fatal("expansion must be deterministic and sized")
	}
	if bytes.Equal(a, c) {
		t.Fatal("different labels must give different output")
	}
}

func TestFingerprint_Length(t *testing.T) {
	if got := crypto.Fingerprint([]byte("pub")); len(got) != 20 {
		t.Fatalf("fingerprint length %d, want 20", len(got))
	}
}
