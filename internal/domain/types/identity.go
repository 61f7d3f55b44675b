package types

import (
	"bytes"

	"mlsgroup/internal/protocol/wire"
)

type (
	// Credential binds an application identity to a signature key.
	Credential = wire.Credential
	// CredentialType tags a credential body.
	CredentialType = wire.CredentialType
)

// CredentialTypeBasic is the only credential type the default provider accepts.
const CredentialTypeBasic = wire.CredentialTypeBasic

// NewBasicCredential returns a basic credential for identity.
func NewBasicCredential(identity []byte) Credential {
	return Credential{Type: CredentialTypeBasic, Identity: append([]byte(nil), identity...)}
}

// SigningIdentity is a member's public signature key plus its credential.
type SigningIdentity struct {
	SignatureKey []byte     `json:"signature_key"`
	Credential   Credential `json:"credential"`
}

// Equal reports whether both identities carry the same key and credential.
func (s SigningIdentity) Equal(o SigningIdentity) bool {
	return bytes.Equal(s.SignatureKey, o.SignatureKey) && s.Credential.Equal(o.Credential)
}

// SignatureSecretKey is the private half of a SigningIdentity's key.
type SignatureSecretKey = Ed25519Private

// Member is an occupied roster slot.
type Member struct {
	Index           uint32
	SigningIdentity SigningIdentity
}

// LocalIdentity is this participant's long-term signing identity as kept on
// disk.
type LocalIdentity struct {
	Name       []byte         `json:"name"`
	SigningKey Ed25519Private `json:"signing_key"`
}

// SigningIdentity returns the public identity for id.
func (id LocalIdentity) SigningIdentity() SigningIdentity {
	pub := id.SigningKey.Public()
	return SigningIdentity{
		SignatureKey: pub.Slice(),
		Credential:   NewBasicCredential(id.Name),
	}
}
