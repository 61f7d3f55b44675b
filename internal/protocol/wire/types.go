package wire

import (
	"errors"
	"fmt"
)

// ProtocolVersion identifies the protocol revision of a message.
type ProtocolVersion uint16

// MLS10 is the only protocol version understood by this package.
const MLS10 ProtocolVersion = 1

// CipherSuite identifies the algorithm set a group runs under.
type CipherSuite uint16

// CipherSuiteX25519ChaCha20 is MLS_128_DHKEMX25519_CHACHA20POLY1305_SHA256_Ed25519.
const CipherSuiteX25519ChaCha20 CipherSuite = 0x0003

// WireFormat tags the body of an MLSMessage.
type WireFormat uint16

const (
	WireFormatPublicMessage  WireFormat = 1
	WireFormatPrivateMessage WireFormat = 2
	WireFormatWelcome        WireFormat = 3
	WireFormatGroupInfo      WireFormat = 4
	WireFormatKeyPackage     WireFormat = 5
)

func (w WireFormat) String() string {
	switch w {
	case WireFormatPublicMessage:
		return "public_message"
	case WireFormatPrivateMessage:
		return "private_message"
	case WireFormatWelcome:
		return "welcome"
	case WireFormatGroupInfo:
		return "group_info"
	case WireFormatKeyPackage:
		return "key_package"
	default:
		return fmt.Sprintf("wire_format(%d)", uint16(w))
	}
}

// ContentType tags framed content. Zero means "no content".
type ContentType uint8

const (
	ContentTypeApplication ContentType = 1
	ContentTypeProposal    ContentType = 2
	ContentTypeCommit      ContentType = 3
)

func (c ContentType) String() string {
	switch c {
	case 0:
		return "none"
	case ContentTypeApplication:
		return "application"
	case ContentTypeProposal:
		return "proposal"
	case ContentTypeCommit:
		return "commit"
	default:
		return fmt.Sprintf("content_type(%d)", uint8(c))
	}
}

// SenderType tags who produced framed content.
type SenderType uint8

const (
	SenderTypeMember            SenderType = 1
	SenderTypeExternal          SenderType = 2
	SenderTypeNewMemberProposal SenderType = 3
	SenderTypeNewMemberCommit   SenderType = 4
)

func (t SenderType) String() string {
	switch t {
	case SenderTypeMember:
		return "member"
	case SenderTypeExternal:
		return "external"
	case SenderTypeNewMemberProposal:
		return "new_member_proposal"
	case SenderTypeNewMemberCommit:
		return "new_member_commit"
	default:
		return fmt.Sprintf("sender_type(%d)", uint8(t))
	}
}

// CredentialType tags a credential body.
type CredentialType uint16

// CredentialTypeBasic is a credential carrying a bare identity string.
const CredentialTypeBasic CredentialType = 1

// ExtensionType tags an extension body.
type ExtensionType uint16

const (
	ExtensionTypeRatchetTree     ExtensionType = 0x0002
	ExtensionTypeExternalSenders ExtensionType = 0x0005
)

// ProposalType tags a proposal body.
type ProposalType uint16

const (
	ProposalTypeAdd                    ProposalType = 1
	ProposalTypeUpdate                 ProposalType = 2
	ProposalTypeRemove                 ProposalType = 3
	ProposalTypePSK                    ProposalType = 4
	ProposalTypeReInit                 ProposalType = 5
	ProposalTypeExternalInit           ProposalType = 6
	ProposalTypeGroupContextExtensions ProposalType = 7
)

func (p ProposalType) String() string {
	switch p {
	case ProposalTypeAdd:
		return "add"
	case ProposalTypeUpdate:
		return "update"
	case ProposalTypeRemove:
		return "remove"
	case ProposalTypePSK:
		return "psk"
	case ProposalTypeReInit:
		return "reinit"
	case ProposalTypeExternalInit:
		return "external_init"
	case ProposalTypeGroupContextExtensions:
		return "group_context_extensions"
	default:
		return fmt.Sprintf("proposal_type(%d)", uint16(p))
	}
}

// PSKType tags a pre-shared key identifier.
type PSKType uint8

// PSKTypeExternal is a key supplied out of band by the application.
const PSKTypeExternal PSKType = 1

var (
	// ErrUnknownWireFormat is returned for an MLSMessage with an unrecognised body tag.
	ErrUnknownWireFormat = errors.New("wire: unknown wire format")
	// ErrUnsupportedVersion is returned for a protocol version other than MLS10.
	ErrUnsupportedVersion = errors.New("wire: unsupported protocol version")
	// ErrUnknownContentType is returned for an unrecognised content type tag.
	ErrUnknownContentType = errors.New("wire: unknown content type")
	// ErrUnknownSenderType is returned for an unrecognised sender type tag.
	ErrUnknownSenderType = errors.New("wire: unknown sender type")
	// ErrUnknownProposalType is returned for an unrecognised proposal type tag.
	ErrUnknownProposalType = errors.New("wire: unknown proposal type")
	// ErrDuplicateExtension is returned when an extension list repeats a type.
	ErrDuplicateExtension = errors.New("wire: duplicate extension")
)
