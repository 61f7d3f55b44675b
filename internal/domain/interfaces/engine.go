package interfaces

import (
	domaintypes "mlsgroup/internal/domain/types"
	"mlsgroup/internal/protocol/wire"
)

// ProposalInfo is a proposal as tracked by a GroupEngine.
type ProposalInfo struct {
	Proposal wire.Proposal
	Sender   wire.Sender
	Ref      []byte
}

// CommitOptions selects what a commit carries beyond the cached proposals.
type CommitOptions struct {
	AuthenticatedData []byte
	// Add and Remove are committed by value in the same commit.
	Add    []*wire.MLSMessage
	Remove []uint32
	// NewSigner and NewIdentity rotate the committer's signing identity.
	// They are set together or not at all.
	NewSigner   *domaintypes.SignatureSecretKey
	NewIdentity *domaintypes.SigningIdentity
}

// CommitResult is the output of a commit the local member created and
// already applied.
type CommitResult struct {
	Commit    *wire.MLSMessage
	Welcome   *wire.MLSMessage // nil unless members were added
	GroupInfo *wire.MLSMessage
	Applied   []ProposalInfo
	Unused    []ProposalInfo
}

// CommitInfo describes a received commit.
type CommitInfo struct {
	Applied []ProposalInfo
	Unused  []ProposalInfo
	Removed bool
	ReInit  *wire.ReInit
}

// Processed is the result of GroupEngine.Process. Exactly one of
// Application, Proposal and Commit is set, according to ContentType.
type Processed struct {
	ContentType       wire.ContentType
	Sender            domaintypes.Member
	AuthenticatedData []byte

	Application []byte
	Proposal    *ProposalInfo
	Commit      *CommitInfo
}

// GroupEngine is the cryptographic state of one group. It is not safe for
// concurrent use; callers serialize access and operate on a Clone when a
// failed call must leave the original untouched.
type GroupEngine interface {
	Context() domaintypes.GroupContext
	Index() uint32
	Roster() []domaintypes.Member
	MemberAt(index uint32) (domaintypes.Member, bool)
	// Active is false once the local member was removed or the group was
	// reinitialized.
	Active() bool
	Clone() (GroupEngine, error)

	ProposeAdd(keyPackage *wire.MLSMessage, aad []byte) (*wire.MLSMessage, error)
	ProposeUpdate(signer *domaintypes.SignatureSecretKey, identity *domaintypes.SigningIdentity, aad []byte) (*wire.MLSMessage, error)
	ProposeRemove(index uint32, aad []byte) (*wire.MLSMessage, error)
	ProposeExternalPSK(pskID []byte, aad []byte) (*wire.MLSMessage, error)
	ProposeReInit(groupID []byte, suite domaintypes.CipherSuite, extensions domaintypes.ExtensionList, aad []byte) (*wire.MLSMessage, error)
	Commit(opts CommitOptions) (*CommitResult, error)
	EncryptApplication(plaintext, aad []byte) (*wire.MLSMessage, error)
	Process(msg *wire.MLSMessage) (*Processed, error)
	// ValidateControl checks a Welcome, GroupInfo or KeyPackage without
	// changing state.
	ValidateControl(msg *wire.MLSMessage) error

	PendingProposals() []ProposalInfo
	HasOwnProposals() bool
	ClearProposals()
	ExportSecret(label, context []byte, length int) ([]byte, error)
	// Snapshot returns the group snapshot and the record of the current epoch.
	Snapshot() (state []byte, current domaintypes.EpochRecord, err error)
}

// EpochLoader fetches a stored epoch record.
type EpochLoader func(epochID uint64) ([]byte, error)

// Engine creates GroupEngines for one local signing identity.
type Engine interface {
	GenerateKeyPackage() (*wire.MLSMessage, error)
	CreateGroup(groupID []byte, extensions domaintypes.ExtensionList) (GroupEngine, error)
	JoinGroup(welcome *wire.MLSMessage) (GroupEngine, domaintypes.ExtensionList, error)
	LoadGroup(state []byte, epoch EpochLoader) (GroupEngine, error)
}
