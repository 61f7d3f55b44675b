package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"golang.org/x/crypto/cryptobyte"

	"mlsgroup/internal/codec"
	"mlsgroup/internal/domain"
)

// GenerateEd25519 returns a new Ed25519 signing key pair.
func GenerateEd25519() (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, err
	}
	copy(priv[:], sk)
	copy(pub[:], pk)
	return priv, pub, nil
}

// SignWithLabel signs content under a domain-separation label.
func SignWithLabel(priv domain.Ed25519Private, label string, content []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), signContent(label, content))
}

// VerifyWithLabel verifies a SignWithLabel signature. Keys of the wrong
// length never verify.
func VerifyWithLabel(pub []byte, label string, content, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), signContent(label, content), sig)
}

func signContent(label string, content []byte) []byte {
	b := cryptobyte.NewBuilder(nil)
	codec.WriteOpaque(b, []byte(labelPrefix+label))
	codec.WriteOpaque(b, content)
	return b.BytesOrPanic()
}
