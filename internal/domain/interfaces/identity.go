package interfaces

import domaintypes "mlsgroup/internal/domain/types"

// IdentityProvider is the application's credential policy.
//
// Timestamps are unix seconds; nil means "now is unknown". A nil extensions
// argument to ValidateExternalSender means no extension list applies.
type IdentityProvider interface {
	ValidateMember(
		identity domaintypes.SigningIdentity,
		timestamp *uint64,
		ctx domaintypes.MemberValidationContext,
	) error
	ValidateExternalSender(
		identity domaintypes.SigningIdentity,
		timestamp *uint64,
		extensions domaintypes.ExtensionList,
	) error
	// Identity returns the application-level identity used to enforce
	// uniqueness of group members.
	Identity(identity domaintypes.SigningIdentity, extensions domaintypes.ExtensionList) ([]byte, error)
	// ValidSuccessor reports whether successor may replace predecessor.
	ValidSuccessor(
		predecessor domaintypes.SigningIdentity,
		successor domaintypes.SigningIdentity,
		extensions domaintypes.ExtensionList,
	) (bool, error)
	SupportedTypes() []domaintypes.CredentialType
}
