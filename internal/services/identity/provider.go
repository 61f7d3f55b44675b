package identity

import (
	"mlsgroup/internal/domain"
	"mlsgroup/internal/domain/types"
)

// BasicProvider is the default credential policy. It accepts every basic
// credential, treats the credential bytes as the member's identity and lets
// any member change identity.
type BasicProvider struct{}

// NewBasicProvider returns the default identity provider.
func NewBasicProvider() BasicProvider { return BasicProvider{} }

func (BasicProvider) ValidateMember(domain.SigningIdentity, *uint64, domain.MemberValidationContext) error {
	return nil
}

func (BasicProvider) ValidateExternalSender(domain.SigningIdentity, *uint64, domain.ExtensionList) error {
	return nil
}

// Identity returns the raw bytes of a basic credential and
// types.ErrMissingBasicCredential for any other credential type.
func (BasicProvider) Identity(id domain.SigningIdentity, _ domain.ExtensionList) ([]byte, error) {
	if id.Credential.Type != types.CredentialTypeBasic {
		return nil, types.ErrMissingBasicCredential
	}
	return append([]byte(nil), id.Credential.Identity...), nil
}

func (BasicProvider) ValidSuccessor(_, _ domain.SigningIdentity, _ domain.ExtensionList) (bool, error) {
	return true, nil
}

func (BasicProvider) SupportedTypes() []domain.CredentialType {
	return []domain.CredentialType{types.CredentialTypeBasic}
}

var _ domain.IdentityProvider = BasicProvider{}
