package crypto

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"

	"mlsgroup/internal/util/memzero"
)

const (
	// KeySize and NonceSize are the ChaCha20-Poly1305 parameter sizes.
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSize
)

// ErrDecrypt is returned when an AEAD open fails.
var ErrDecrypt = errors.New("crypto: message authentication failed")

// Seal encrypts plaintext with ChaCha20-Poly1305.
func Seal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts a Seal ciphertext.
func Open(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

// SealHPKE encrypts plaintext to the X25519 public key pub. A fresh
// ephemeral key is generated per call and returned as kemOutput.
func SealHPKE(pub, info, aad, plaintext []byte) (kemOutput, ciphertext []byte, err error) {
	ephPriv, ephPub, err := GenerateX25519()
	if err != nil {
		return nil, nil, err
	}
	defer memzero.Zero(ephPriv[:])

	shared, err := DH(ephPriv.Slice(), pub)
	if err != nil {
		return nil, nil, err
	}
	defer memzero.Zero(shared)

	key, nonce, err := hpkeKeys(shared, ephPub[:], pub, info)
	if err != nil {
		return nil, nil, err
	}
	defer memzero.Zero(key)

	ct, err := Seal(key, nonce, aad, plaintext)
	if err != nil {
		return nil, nil, err
	}
	return ephPub[:], ct, nil
}

// OpenHPKE decrypts a SealHPKE ciphertext with the recipient private key.
func OpenHPKE(priv, kemOutput, info, aad, ciphertext []byte) ([]byte, error) {
	shared, err := DH(priv, kemOutput)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(shared)

	pub, err := PublicX25519(priv)
	if err != nil {
		return nil, err
	}
	key, nonce, err := hpkeKeys(shared, kemOutput, pub, info)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	return Open(key, nonce, aad, ciphertext)
}

func hpkeKeys(shared, kemOutput, recipient, info []byte) (key, nonce []byte, err error) {
	secret := Extract(append(append([]byte(nil), kemOutput...), recipient...), shared)
	defer memzero.Zero(secret)
	if key, err = ExpandWithLabel(secret, "hpke key", info, KeySize); err != nil {
		return nil, nil, err
	}
	if nonce, err = ExpandWithLabel(secret, "hpke nonce", info, NonceSize); err != nil {
		return nil, nil, err
	}
	return key, nonce, nil
}
