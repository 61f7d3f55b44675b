package identity

import (
	"errors"
	"fmt"
	"unicode"

	"mlsgroup/internal/crypto"
	"mlsgroup/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
	// maxNameLength bounds the basic credential carried in every leaf.
	maxNameLength = 255
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
	// ErrInvalidName is returned for an empty or oversized credential name.
	ErrInvalidName = fmt.Errorf("name must be 1 to %d bytes", maxNameLength)
)

// Service manages the local signing identity using a backing store.
//
// The identity is an Ed25519 key pair plus the name that goes into the
// member's basic credential.
type Service struct {
	store domain.IdentityStore
}

// New returns an identity service backed by the given store.
func New(s domain.IdentityStore) *Service { return &Service{store: s} }

// GenerateIdentity creates a new signing identity, saves it encrypted with
// the passphrase, and returns it with a fingerprint of the signature key.
func (s *Service) GenerateIdentity(
	passphrase string,
	name []byte,
) (domain.LocalIdentity, domain.Fingerprint, error) {
	if !isSecurePassphrase(passphrase) {
		return domain.LocalIdentity{}, "", ErrWeakPassphrase
	}
	if len(name) == 0 || len(name) > maxNameLength {
		return domain.LocalIdentity{}, "", ErrInvalidName
	}

	signingKey, _, err := crypto.GenerateEd25519()
	if err != nil {
		return domain.LocalIdentity{}, "", err
	}
	id := domain.LocalIdentity{
		Name:       append([]byte(nil), name...),
		SigningKey: signingKey,
	}
	if err := s.store.SaveIdentity(passphrase, id); err != nil {
		return domain.LocalIdentity{}, "", err
	}
	return id, fingerprint(id), nil
}

// LoadIdentity decrypts and returns the local identity.
func (s *Service) LoadIdentity(passphrase string) (domain.LocalIdentity, error) {
	id, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return domain.LocalIdentity{}, err
	}
	if len(id.Name) == 0 {
		return domain.LocalIdentity{}, errors.New("stored identity has no name")
	}
	return id, nil
}

// FingerprintIdentity returns a short fingerprint of the local signature key.
func (s *Service) FingerprintIdentity(passphrase string) (domain.Fingerprint, error) {
	id, err := s.LoadIdentity(passphrase)
	if err != nil {
		return "", err
	}
	return fingerprint(id), nil
}

func fingerprint(id domain.LocalIdentity) domain.Fingerprint {
	pub := id.SigningKey.Public()
	return domain.Fingerprint(crypto.Fingerprint(pub.Slice()))
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
