package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"mlsgroup/internal/domain"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/util/memzero"
)

const (
	identityFilename = "identity.json.enc"
	identityKind     = "signing-identity"
)

// IdentityFileStore keeps the local signing identity in one
// passphrase-sealed file under dir.
type IdentityFileStore struct {
	dir string
	kdf kdfParams
	mu  sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir, kdf: defaultKDF()}
}

// Path is the location of the identity file.
func (s *IdentityFileStore) Path() string { return filepath.Join(s.dir, identityFilename) }

// SaveIdentity seals id with passphrase and replaces any previous file.
func (s *IdentityFileStore) SaveIdentity(passphrase string, id domain.LocalIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	defer memzero.Zero(raw)
	b, err := seal(identityKind, passphrase, raw, s.kdf)
	if err != nil {
		return fmt.Errorf("seal identity: %w", err)
	}
	return writeFile(s.Path(), b, 0o600)
}

// LoadIdentity opens the identity file. A missing file is reported as
// types.ErrNotFound.
func (s *IdentityFileStore) LoadIdentity(passphrase string) (domain.LocalIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(s.Path())
	if err != nil {
		return domain.LocalIdentity{}, err
	}
	if b == nil {
		return domain.LocalIdentity{}, fmt.Errorf("identity file %s: %w", s.Path(), types.ErrNotFound)
	}
	raw, err := open(identityKind, passphrase, b)
	if err != nil {
		return domain.LocalIdentity{}, err
	}
	defer memzero.Zero(raw)
	var id domain.LocalIdentity
	if err := json.Unmarshal(raw, &id); err != nil {
		return domain.LocalIdentity{}, fmt.Errorf("decode identity: %w", err)
	}
	return id, nil
}

// Compile-time assertion that IdentityFileStore implements domain.IdentityStore.
var _ domain.IdentityStore = (*IdentityFileStore)(nil)
