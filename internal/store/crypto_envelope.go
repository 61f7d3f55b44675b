package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"mlsgroup/internal/util/memzero"
)

const sealedFormatVersion = 2

// ErrWrongPassphrase is returned when a sealed file cannot be opened, either
// because the passphrase is wrong or the file was modified.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted file")

// sealed is the on-disk JSON envelope of a passphrase-protected payload.
// Kind names the payload and is authenticated together with the salt.
type sealed struct {
	V      int    `json:"v"`
	Kind   string `json:"kind"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

type kdfParams struct{ N, R, P int }

func defaultKDF() kdfParams { return kdfParams{N: 1 << 15, R: 8, P: 1} }

// Upper bounds accepted when opening, so a crafted file cannot make scrypt
// allocate unbounded memory.
func (k kdfParams) valid() bool {
	return k.N >= 1<<10 && k.N <= 1<<20 && k.N&(k.N-1) == 0 &&
		k.R >= 1 && k.R <= 32 && k.P >= 1 && k.P <= 16
}

func (s *sealed) aad() []byte {
	return append([]byte(fmt.Sprintf("v%d/%s/", s.V, s.Kind)), s.Salt...)
}

// seal encrypts raw under a key derived from passphrase. Each call draws a
// fresh salt, so the fixed nonce is never reused with the same key.
func seal(kind, passphrase string, raw []byte, kdf kdfParams) ([]byte, error) {
	env := sealed{V: sealedFormatVersion, Kind: kind, N: kdf.N, R: kdf.R, P: kdf.P}
	env.Salt = make([]byte, 16)
	if _, err := rand.Read(env.Salt); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), env.Salt, kdf.N, kdf.R, kdf.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	env.Cipher = aead.Seal(nil, nonce[:], raw, env.aad())
	return json.Marshal(env)
}

// open reverses seal. kind must match the kind the payload was sealed with.
func open(kind, passphrase string, b []byte) ([]byte, error) {
	var env sealed
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode sealed file: %w", err)
	}
	if env.V != sealedFormatVersion {
		return nil, fmt.Errorf("unsupported sealed file version %d", env.V)
	}
	if env.Kind != kind {
		return nil, fmt.Errorf("sealed file holds %q, want %q", env.Kind, kind)
	}
	if kdf := (kdfParams{N: env.N, R: env.R, P: env.P}); !kdf.valid() {
		return nil, fmt.Errorf("sealed file has out of range scrypt parameters N=%d r=%d p=%d", env.N, env.R, env.P)
	}
	key, err := scrypt.Key([]byte(passphrase), env.Salt, env.N, env.R, env.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], env.Cipher, env.aad())
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}
