package mls

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mlsgroup/internal/crypto"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/protocol/wire"
	"mlsgroup/internal/util/memzero"
)

const proposalRefLabel = "MLS 1.0 Proposal Reference"

func (g *Group) ProposeAdd(kp *wire.MLSMessage, aad []byte) (*wire.MLSMessage, error) {
	const op = "propose add"
	if err := g.requireActive(); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	if kp == nil || kp.WireFormat != wire.WireFormatKeyPackage {
		return nil, types.E(types.KindProtocol, op, types.ErrUnexpectedMessageFormat)
	}
	if err := g.validateKeyPackage(kp.KeyPackage, g.commitContext()); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	return g.propose(op, wire.Proposal{Type: wire.ProposalTypeAdd, KeyPackage: kp.KeyPackage}, aad, nil, nil)
}

// ProposeUpdate proposes a fresh leaf for the local member. signer and
// identity rotate the signing identity; both or neither must be set.
func (g *Group) ProposeUpdate(signer *types.SignatureSecretKey, identity *types.SigningIdentity, aad []byte) (*wire.MLSMessage, error) {
	const op = "propose update"
	if err := g.requireActive(); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	if (signer == nil) != (identity == nil) {
		return nil, types.E(types.KindUsage, op, types.ErrInconsistentOptionalParameters)
	}
	current := g.roster[g.index]
	sgn, id := g.signer, identityOf(current)
	if signer != nil {
		pub := signer.Public()
		if !bytes.Equal(pub[:], identity.SignatureKey) {
			return nil, types.E(types.KindUsage, op, errors.New("signer does not match identity"))
		}
		sgn, id = *signer, *identity
	}

	leafPriv, leafPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	defer memzero.Zero(leafPriv[:])
	leaf, err := signLeaf(sgn, id, leafPub[:])
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	if err := g.checkSuccessor(current, leaf); err != nil {
		return nil, types.E(types.KindValidation, op, err)
	}
	if err := g.validateLeaf(leaf, g.commitContext()); err != nil {
		return nil, types.E(types.KindValidation, op, err)
	}

	var newSigner *types.Ed25519Private
	if signer != nil {
		s := *signer
		newSigner = &s
	}
	return g.propose(op, wire.Proposal{Type: wire.ProposalTypeUpdate, LeafNode: leaf}, aad,
		append([]byte(nil), leafPriv[:]...), newSigner)
}

func (g *Group) ProposeRemove(index uint32, aad []byte) (*wire.MLSMessage, error) {
	const op = "propose remove"
	if err := g.requireActive(); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	if g.leaf(index) == nil {
		return nil, types.E(types.KindUsage, op, fmt.Errorf("no member at index %d", index))
	}
	return g.propose(op, wire.Proposal{Type: wire.ProposalTypeRemove, Removed: index}, aad, nil, nil)
}

// ProposeExternalPSK proposes injecting the pre-shared key stored under
// pskID. The key must be available locally.
func (g *Group) ProposeExternalPSK(pskID []byte, aad []byte) (*wire.MLSMessage, error) {
	const op = "propose psk"
	if err := g.requireActive(); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	if g.cfg.PSKs == nil {
		return nil, types.E(types.KindProtocol, op, types.ErrMissingPSK)
	}
	if _, ok, err := g.cfg.PSKs.Get(pskID); err != nil {
		return nil, types.E(types.KindStorage, op, err)
	} else if !ok {
		return nil, types.E(types.KindProtocol, op, types.ErrMissingPSK)
	}
	nonce := make([]byte, crypto.HashSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	psk := &wire.PreSharedKeyID{ID: append([]byte(nil), pskID...), Nonce: nonce}
	return g.propose(op, wire.Proposal{Type: wire.ProposalTypePSK, PSK: psk}, aad, nil, nil)
}

// ProposeReInit proposes ending the group in favour of a new one. A nil
// groupID is replaced with a random UUID.
func (g *Group) ProposeReInit(groupID []byte, suite types.CipherSuite, extensions types.ExtensionList, aad []byte) (*wire.MLSMessage, error) {
	const op = "propose reinit"
	if err := g.requireActive(); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	if suite != CipherSuite {
		return nil, types.E(types.KindProtocol, op, types.ErrUnsupportedCipherSuite)
	}
	if groupID == nil {
		id := uuid.New()
		groupID = id[:]
	}
	r := &wire.ReInit{
		GroupID:     append([]byte(nil), groupID...),
		Version:     wire.MLS10,
		CipherSuite: suite,
		Extensions:  extensions,
	}
	return g.propose(op, wire.Proposal{Type: wire.ProposalTypeReInit, ReInit: r}, aad, nil, nil)
}

// propose frames p as a public message from the local member and caches it.
func (g *Group) propose(op string, p wire.Proposal, aad, leafSecret []byte, signer *types.Ed25519Private) (*wire.MLSMessage, error) {
	ctxBytes, err := g.contextBytes()
	if err != nil {
		return nil, types.E(types.KindCodec, op, err)
	}
	keys, err := deriveEpochKeys(g.epoch.epochSecret)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	defer keys.wipe()

	sender := wire.Sender{Type: wire.SenderTypeMember, Index: g.index}
	pm := &wire.PublicMessage{Content: wire.FramedContent{
		GroupID:           g.context.GroupID,
		Epoch:             g.context.Epoch,
		Sender:            sender,
		AuthenticatedData: aad,
		ContentType:       wire.ContentTypeProposal,
		Proposal:          &p,
	}}
	if err := g.sign(pm, ctxBytes); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	if err := setMembershipTag(pm, ctxBytes, keys.membership); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	ref, err := proposalRef(pm)
	if err != nil {
		return nil, types.E(types.KindCodec, op, err)
	}
	g.proposals = append(g.proposals, cachedProposal{
		ref:              ref,
		sender:           sender,
		proposal:         p,
		updateLeafSecret: leafSecret,
		updateSigner:     signer,
	})
	return &wire.MLSMessage{Version: wire.MLS10, WireFormat: wire.WireFormatPublicMessage, Public: pm}, nil
}

func proposalRef(pm *wire.PublicMessage) ([]byte, error) {
	auth, err := pm.AuthenticatedContent()
	if err != nil {
		return nil, err
	}
	return crypto.RefHash(proposalRefLabel, auth), nil
}

func (g *Group) findProposal(ref []byte) *cachedProposal {
	for i := range g.proposals {
		if bytes.Equal(g.proposals[i].ref, ref) {
			return &g.proposals[i]
		}
	}
	return nil
}

// validateProposal checks a proposal sent by the member at sender.
func (g *Group) validateProposal(p *wire.Proposal, sender uint32) error {
	switch p.Type {
	case wire.ProposalTypeAdd:
		return g.validateKeyPackage(p.KeyPackage, g.commitContext())
	case wire.ProposalTypeUpdate:
		prev := g.leaf(sender)
		if prev == nil {
			return fmt.Errorf("update from empty leaf %d", sender)
		}
		if err := g.checkSuccessor(prev, p.LeafNode); err != nil {
			return err
		}
		return g.validateLeaf(p.LeafNode, g.commitContext())
	case wire.ProposalTypeRemove:
		if g.leaf(p.Removed) == nil {
			return fmt.Errorf("remove of empty leaf %d", p.Removed)
		}
		return nil
	case wire.ProposalTypePSK:
		return nil
	case wire.ProposalTypeReInit:
		if p.ReInit.CipherSuite != CipherSuite {
			return types.E(types.KindProtocol, "", types.ErrUnsupportedCipherSuite)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", types.ErrUnsupportedProposal, p.Type)
	}
}
