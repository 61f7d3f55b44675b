package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/hkdf"

	"mlsgroup/internal/codec"
)

const labelPrefix = "MLS 1.0 "

// HashSize is the output size of Hash and the KDF.
const HashSize = sha256.Size

// Hash returns SHA-256 over the concatenation of parts.
func Hash(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// Extract is HKDF-Extract with SHA-256.
func Extract(salt, ikm []byte) []byte {
	return hkdf.Extract(sha256.New, ikm, salt)
}

// ExpandWithLabel is HKDF-Expand with a labelled, length-bound info string.
func ExpandWithLabel(secret []byte, label string, context []byte, length int) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint16(uint16(length))
	codec.WriteOpaque(b, []byte(labelPrefix+label))
	codec.WriteOpaque(b, context)
	info, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, secret, info), out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeriveSecret expands secret under label to HashSize bytes.
func DeriveSecret(secret []byte, label string) ([]byte, error) {
	return ExpandWithLabel(secret, label, nil, HashSize)
}

// RefHash hashes value under a reference label.
func RefHash(label string, value []byte) []byte {
	b := cryptobyte.NewBuilder(nil)
	codec.WriteOpaque(b, []byte(label))
	codec.WriteOpaque(b, value)
	return Hash(b.BytesOrPanic())
}

// MAC returns HMAC-SHA256 of data under key.
func MAC(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

// VerifyMAC compares tag against MAC(key, data) in constant time.
func VerifyMAC(key, data, tag []byte) bool {
	return hmac.Equal(MAC(key, data), tag)
}
