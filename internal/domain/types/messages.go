package types

import "fmt"

// Proposal is a requested change to the group that has not been committed.
// It is one of AddProposal, UpdateProposal, RemoveProposal,
// PreSharedKeyProposal or ReInitProposal.
type Proposal interface {
	isProposal()
}

// AddProposal admits the owner of KeyPackage.
type AddProposal struct {
	KeyPackage []byte
	Identity   SigningIdentity
}

// UpdateProposal refreshes the sender's leaf, possibly with a new identity.
type UpdateProposal struct {
	NewIdentity SigningIdentity
	SenderIndex uint32
}

// RemoveProposal evicts the member at Index.
type RemoveProposal struct {
	Index uint32
}

// PreSharedKeyProposal injects an external pre-shared key into the next epoch.
type PreSharedKeyProposal struct {
	PSKID []byte
}

// ReInitProposal asks the group to restart under new parameters.
type ReInitProposal struct {
	GroupID     []byte
	CipherSuite CipherSuite
	Extensions  ExtensionList
}

func (AddProposal) isProposal()          {}
func (UpdateProposal) isProposal()       {}
func (RemoveProposal) isProposal()       {}
func (PreSharedKeyProposal) isProposal() {}
func (ReInitProposal) isProposal()       {}

// ConversionError reports a proposal that could not be expressed as a
// Proposal. It is returned alongside the proposals that did convert.
type ConversionError struct {
	ProposalType uint16
	Err          error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert proposal type %d: %v", e.ProposalType, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// CommitEffect describes what a processed commit did to the local member.
// It is one of NewEpoch, Removed or ReInit.
type CommitEffect interface {
	isCommitEffect()
}

// NewEpoch means the group advanced and the local member is still in it.
type NewEpoch struct {
	AppliedProposals []Proposal
	UnusedProposals  []Proposal
	ConversionErrors []*ConversionError
}

// Removed means the commit evicted the local member.
type Removed struct{}

// ReInit means the commit ends this group in favour of a new one.
type ReInit struct {
	GroupID     []byte
	CipherSuite CipherSuite
	Extensions  ExtensionList
}

func (NewEpoch) isCommitEffect() {}
func (Removed) isCommitEffect()  {}
func (ReInit) isCommitEffect()   {}

// ReceivedMessage is the result of processing one inbound message. It is one
// of ApplicationMessage, CommitMessage, ProposalMessage, GroupInfoMessage,
// WelcomeMessage or KeyPackageMessage.
type ReceivedMessage interface {
	isReceivedMessage()
}

// ApplicationMessage is decrypted application data.
type ApplicationMessage struct {
	Sender            Member
	Data              []byte
	AuthenticatedData []byte
}

// CommitMessage is a commit that has been applied.
type CommitMessage struct {
	Committer Member
	Effect    CommitEffect
}

// ProposalMessage is a proposal that has been validated and cached.
type ProposalMessage struct {
	Sender            Member
	Proposal          Proposal
	AuthenticatedData []byte
}

// GroupInfoMessage, WelcomeMessage and KeyPackageMessage mark control
// messages that were validated but do not change group state.
type (
	GroupInfoMessage  struct{}
	WelcomeMessage    struct{}
	KeyPackageMessage struct{}
)

func (ApplicationMessage) isReceivedMessage() {}
func (CommitMessage) isReceivedMessage()      {}
func (ProposalMessage) isReceivedMessage()    {}
func (GroupInfoMessage) isReceivedMessage()   {}
func (WelcomeMessage) isReceivedMessage()     {}
func (KeyPackageMessage) isReceivedMessage()  {}

// MemberValidationContext tells an identity provider which group state a
// credential is checked against. It is one of ForCommit, ForNewGroup or
// NoValidationContext.
type MemberValidationContext interface {
	isMemberValidationContext()
}

// ForCommit validates a member introduced by a commit. NewExtensions is the
// extension set that will be in effect after the commit, if it changes.
type ForCommit struct {
	CurrentContext GroupContext
	NewExtensions  ExtensionList
}

// ForNewGroup validates the creator of a new group.
type ForNewGroup struct {
	CurrentContext GroupContext
}

// NoValidationContext validates a credential with no group state, e.g. a
// roster received in a Welcome.
type NoValidationContext struct{}

func (ForCommit) isMemberValidationContext()           {}
func (ForNewGroup) isMemberValidationContext()         {}
func (NoValidationContext) isMemberValidationContext() {}
