package domain

import (
	interfaces "mlsgroup/internal/domain/interfaces"
	types "mlsgroup/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Fingerprint             = types.Fingerprint
	X25519Public            = types.X25519Public
	X25519Private           = types.X25519Private
	Ed25519Public           = types.Ed25519Public
	Ed25519Private          = types.Ed25519Private
	SignatureSecretKey      = types.SignatureSecretKey
	Credential              = types.Credential
	CredentialType          = types.CredentialType
	SigningIdentity         = types.SigningIdentity
	LocalIdentity           = types.LocalIdentity
	Member                  = types.Member
	CipherSuite             = types.CipherSuite
	Extension               = types.Extension
	ExtensionList           = types.ExtensionList
	GroupContext            = types.GroupContext
	EpochRecord             = types.EpochRecord
	GroupState              = types.GroupState
	KeyPackageData          = types.KeyPackageData
	Proposal                = types.Proposal
	ReceivedMessage         = types.ReceivedMessage
	CommitEffect            = types.CommitEffect
	MemberValidationContext = types.MemberValidationContext
	Error                   = types.Error
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityStore       = interfaces.IdentityStore
	IdentityService     = interfaces.IdentityService
	IdentityProvider    = interfaces.IdentityProvider
	GroupStateStorage   = interfaces.GroupStateStorage
	KeyPackageStorage   = interfaces.KeyPackageStorage
	PreSharedKeyStorage = interfaces.PreSharedKeyStorage
	Engine              = interfaces.Engine
	GroupEngine         = interfaces.GroupEngine
)
