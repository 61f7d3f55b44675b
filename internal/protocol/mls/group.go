package mls

import (
	"bytes"
	"errors"
	"fmt"

	"mlsgroup/internal/codec"
	"mlsgroup/internal/crypto"
	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/protocol/wire"
	"mlsgroup/internal/util/memzero"
)

// Group is the engine state of one group as seen by the local member.
type Group struct {
	cfg *Config

	context    wire.GroupContext
	roster     []*wire.LeafNode
	index      uint32
	signer     types.Ed25519Private
	leafSecret []byte
	interim    []byte
	status     status
	reinit     *wire.ReInit
	proposals  []cachedProposal

	epoch epochState
}

var _ interfaces.GroupEngine = (*Group)(nil)

func (g *Group) Context() types.GroupContext {
	c := g.context
	return types.GroupContext{
		ProtocolVersion:         c.Version,
		CipherSuite:             c.CipherSuite,
		GroupID:                 append([]byte(nil), c.GroupID...),
		Epoch:                   c.Epoch,
		TreeHash:                append([]byte(nil), c.TreeHash...),
		ConfirmedTranscriptHash: append([]byte(nil), c.ConfirmedTranscriptHash...),
		Extensions:              append(wire.Extensions(nil), c.Extensions...),
	}
}

func (g *Group) Index() uint32 { return g.index }

func (g *Group) Active() bool { return g.status == statusActive }

// Roster lists occupied slots in index order.
func (g *Group) Roster() []types.Member {
	out := make([]types.Member, 0, len(g.roster))
	for i, leaf := range g.roster {
		if leaf != nil {
			out = append(out, memberOf(uint32(i), leaf))
		}
	}
	return out
}

func (g *Group) MemberAt(index uint32) (types.Member, bool) {
	leaf := g.leaf(index)
	if leaf == nil {
		return types.Member{}, false
	}
	return memberOf(index, leaf), true
}

func (g *Group) leaf(index uint32) *wire.LeafNode {
	if int64(index) >= int64(len(g.roster)) {
		return nil
	}
	return g.roster[index]
}

func memberOf(index uint32, leaf *wire.LeafNode) types.Member {
	return types.Member{Index: index, SigningIdentity: identityOf(leaf)}
}

func identityOf(leaf *wire.LeafNode) types.SigningIdentity {
	return types.SigningIdentity{
		SignatureKey: append([]byte(nil), leaf.SignatureKey...),
		Credential: wire.Credential{
			Type:     leaf.Credential.Type,
			Identity: append([]byte(nil), leaf.Credential.Identity...),
		},
	}
}

func (g *Group) snapshot() *snapshot {
	return &snapshot{
		context:    g.context,
		roster:     g.roster,
		index:      g.index,
		signer:     g.signer,
		leafSecret: g.leafSecret,
		interim:    g.interim,
		status:     g.status,
		reinit:     g.reinit,
		proposals:  g.proposals,
	}
}

// Snapshot serializes the group. The epoch secret is only in the returned
// record.
func (g *Group) Snapshot() ([]byte, types.EpochRecord, error) {
	state, err := codec.Marshal(g.snapshot())
	if err != nil {
		return nil, types.EpochRecord{}, types.E(types.KindCodec, "snapshot", err)
	}
	rec, err := codec.Marshal(&g.epoch)
	if err != nil {
		return nil, types.EpochRecord{}, types.E(types.KindCodec, "snapshot", err)
	}
	return state, types.EpochRecord{ID: g.context.Epoch, Data: rec}, nil
}

// Clone returns a deep copy that shares only the engine configuration.
func (g *Group) Clone() (interfaces.GroupEngine, error) {
	return g.clone()
}

func (g *Group) clone() (*Group, error) {
	state, rec, err := g.Snapshot()
	if err != nil {
		return nil, err
	}
	return restore(g.cfg, state, rec.Data)
}

// restore decodes a snapshot and epoch record into a Group and then zeroes
// both buffers, which carry the signing key and the epoch secret.
func restore(cfg *Config, state, record []byte) (*Group, error) {
	defer memzero.ZeroAll(state, record)
	var sn snapshot
	if err := codec.Unmarshal(state, &sn); err != nil {
		return nil, types.E(types.KindCodec, "clone", err)
	}
	c := fromSnapshot(cfg, &sn)
	if err := codec.Unmarshal(record, &c.epoch); err != nil {
		return nil, types.E(types.KindCodec, "clone", err)
	}
	return c, nil
}

func (g *Group) PendingProposals() []interfaces.ProposalInfo {
	out := make([]interfaces.ProposalInfo, 0, len(g.proposals))
	for i := range g.proposals {
		out = append(out, g.proposals[i].info())
	}
	return out
}

func (c *cachedProposal) info() interfaces.ProposalInfo {
	return interfaces.ProposalInfo{
		Proposal: c.proposal,
		Sender:   c.sender,
		Ref:      append([]byte(nil), c.ref...),
	}
}

// HasOwnProposals reports whether the local member authored any cached
// proposal.
func (g *Group) HasOwnProposals() bool {
	for i := range g.proposals {
		if g.isOwn(&g.proposals[i]) {
			return true
		}
	}
	return false
}

func (g *Group) isOwn(c *cachedProposal) bool {
	return c.sender.Type == wire.SenderTypeMember && c.sender.Index == g.index
}

func (g *Group) ClearProposals() {
	for i := range g.proposals {
		memzero.Zero(g.proposals[i].updateLeafSecret)
	}
	g.proposals = nil
}

// ExportSecret derives length bytes from the exporter secret of the current
// epoch.
func (g *Group) ExportSecret(label, context []byte, length int) ([]byte, error) {
	const op = "export secret"
	if err := g.requireActive(); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	if length <= 0 || length > 0xffff {
		return nil, types.E(types.KindUsage, op, fmt.Errorf("invalid length %d", length))
	}
	keys, err := deriveEpochKeys(g.epoch.epochSecret)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	defer keys.wipe()
	derived, err := crypto.DeriveSecret(keys.exporter, string(label))
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	defer memzero.Zero(derived)
	out, err := crypto.ExpandWithLabel(derived, "exported", crypto.Hash(context), length)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	return out, nil
}

func (g *Group) requireActive() error {
	if g.status != statusActive {
		return types.ErrGroupInactive
	}
	return nil
}

func (g *Group) contextBytes() ([]byte, error) {
	return codec.Marshal(&g.context)
}

func (g *Group) validateCredentialType(cred wire.Credential) error {
	for _, t := range g.cfg.Provider.SupportedTypes() {
		if t == cred.Type {
			return nil
		}
	}
	return fmt.Errorf("credential type %d is not supported", cred.Type)
}

// validateLeaf checks a leaf's signature and credential against the
// identity provider.
func (g *Group) validateLeaf(leaf *wire.LeafNode, vctx types.MemberValidationContext) error {
	if len(leaf.EncryptionKey) != 32 {
		return types.E(types.KindProtocol, "", fmt.Errorf("leaf encryption key has %d bytes", len(leaf.EncryptionKey)))
	}
	tbs, err := marshalWith(leaf.MarshalTBS)
	if err != nil {
		return types.E(types.KindCodec, "", err)
	}
	if !crypto.VerifyWithLabel(leaf.SignatureKey, "LeafNodeTBS", tbs, leaf.Signature) {
		return types.E(types.KindProtocol, "", fmt.Errorf("leaf node: %w", types.ErrInvalidSignature))
	}
	if err := g.validateCredentialType(leaf.Credential); err != nil {
		return types.E(types.KindValidation, "", err)
	}
	if err := g.cfg.Provider.ValidateMember(identityOf(leaf), g.cfg.timestamp(), vctx); err != nil {
		return types.E(types.KindValidation, "", err)
	}
	return nil
}

// validateKeyPackage checks a key package offered for addition.
func (g *Group) validateKeyPackage(kp *wire.KeyPackage, vctx types.MemberValidationContext) error {
	if kp.Version != wire.MLS10 {
		return types.E(types.KindProtocol, "", wire.ErrUnsupportedVersion)
	}
	if kp.CipherSuite != g.context.CipherSuite {
		return types.E(types.KindProtocol, "", types.ErrUnsupportedCipherSuite)
	}
	if kp.NotAfter < uint64(g.cfg.Now().Unix()) {
		return types.E(types.KindProtocol, "", types.ErrKeyPackageExpired)
	}
	if len(kp.InitKey) != 32 || bytes.Equal(kp.InitKey, kp.LeafNode.EncryptionKey) {
		return types.E(types.KindProtocol, "", errors.New("invalid key package init key"))
	}
	tbs, err := marshalWith(kp.MarshalTBS)
	if err != nil {
		return types.E(types.KindCodec, "", err)
	}
	if !crypto.VerifyWithLabel(kp.LeafNode.SignatureKey, "KeyPackageTBS", tbs, kp.Signature) {
		return types.E(types.KindProtocol, "", fmt.Errorf("key package: %w", types.ErrInvalidSignature))
	}
	return g.validateLeaf(&kp.LeafNode, vctx)
}

// checkSuccessor asks the provider whether next may replace prev when the
// signing identity changes.
func (g *Group) checkSuccessor(prev, next *wire.LeafNode) error {
	a, b := identityOf(prev), identityOf(next)
	if a.Equal(b) {
		return nil
	}
	ok, err := g.cfg.Provider.ValidSuccessor(a, b, g.context.Extensions)
	if err != nil {
		return types.E(types.KindValidation, "", err)
	}
	if !ok {
		return types.E(types.KindValidation, "", errors.New("identity of member is not a valid successor"))
	}
	return nil
}

// checkUnique fails if two occupied leaves map to the same application
// identity.
func (g *Group) checkUnique(roster []*wire.LeafNode, extensions wire.Extensions) error {
	seen := make(map[string]uint32, len(roster))
	for i, leaf := range roster {
		if leaf == nil {
			continue
		}
		id, err := g.cfg.Provider.Identity(identityOf(leaf), extensions)
		if err != nil {
			return types.E(types.KindValidation, "", err)
		}
		if prev, dup := seen[string(id)]; dup {
			return types.E(types.KindValidation, "", fmt.Errorf("%w: leaves %d and %d", types.ErrDuplicateIdentity, prev, i))
		}
		seen[string(id)] = uint32(i)
	}
	return nil
}
