package interfaces

import domaintypes "mlsgroup/internal/domain/types"

// IdentityService creates and loads the local signing identity.
type IdentityService interface {
	GenerateIdentity(passphrase string, name []byte) (
		domaintypes.LocalIdentity,
		domaintypes.Fingerprint,
		error,
	)
	LoadIdentity(passphrase string) (domaintypes.LocalIdentity, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
}
