package mls

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"math"

	"mlsgroup/internal/codec"
	"mlsgroup/internal/crypto"
	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/protocol/wire"
	"mlsgroup/internal/util/memzero"
)

// Process authenticates and applies a public or private message addressed
// to the current epoch. The receiver is unchanged on error.
func (g *Group) Process(msg *wire.MLSMessage) (*interfaces.Processed, error) {
	const op = "process message"
	if err := g.requireActive(); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	var (
		out *interfaces.Processed
		err error
	)
	switch msg.WireFormat {
	case wire.WireFormatPublicMessage:
		out, err = g.processPublic(msg.Public)
	case wire.WireFormatPrivateMessage:
		out, err = g.processPrivate(msg.Private)
	default:
		err = types.ErrUnexpectedMessageFormat
	}
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	return out, nil
}

func (g *Group) checkAddressing(groupID []byte, epoch uint64) error {
	if !bytes.Equal(groupID, g.context.GroupID) {
		return types.ErrWrongGroup
	}
	if epoch != g.context.Epoch {
		return types.ErrWrongEpoch
	}
	return nil
}

func (g *Group) processPublic(pm *wire.PublicMessage) (*interfaces.Processed, error) {
	c := &pm.Content
	if err := g.checkAddressing(c.GroupID, c.Epoch); err != nil {
		return nil, err
	}
	if c.Sender.Type != wire.SenderTypeMember {
		return nil, types.ErrUnsupportedSender
	}
	sender := g.leaf(c.Sender.Index)
	if sender == nil {
		return nil, fmt.Errorf("sender leaf %d is empty", c.Sender.Index)
	}

	ctxBytes, err := g.contextBytes()
	if err != nil {
		return nil, err
	}
	keys, err := deriveEpochKeys(g.epoch.epochSecret)
	if err != nil {
		return nil, err
	}
	defer keys.wipe()

	input, err := membershipInput(pm, ctxBytes)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifyMAC(keys.membership, input, pm.MembershipTag) {
		return nil, errors.New("membership tag mismatch")
	}
	tbs, err := c.TBS(wire.WireFormatPublicMessage, ctxBytes)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifyWithLabel(sender.SignatureKey, "FramedContentTBS", tbs, pm.Signature) {
		return nil, fmt.Errorf("framed content: %w", types.ErrInvalidSignature)
	}

	out := &interfaces.Processed{
		ContentType:       c.ContentType,
		Sender:            memberOf(c.Sender.Index, sender),
		AuthenticatedData: append([]byte(nil), c.AuthenticatedData...),
	}
	switch c.ContentType {
	case wire.ContentTypeProposal:
		info, err := g.processProposal(pm)
		if err != nil {
			return nil, err
		}
		out.Proposal = info
	case wire.ContentTypeCommit:
		if c.Sender.Index == g.index {
			return nil, errors.New("commit from the local member was already applied")
		}
		info, err := g.processCommit(pm, ctxBytes, keys)
		if err != nil {
			return nil, err
		}
		out.Commit = info
	default:
		return nil, types.ErrUnexpectedMessageFormat
	}
	return out, nil
}

// processProposal caches a proposal. A proposal already in the cache, such
// as the echo of one the local member sent, is returned as is.
func (g *Group) processProposal(pm *wire.PublicMessage) (*interfaces.ProposalInfo, error) {
	ref, err := proposalRef(pm)
	if err != nil {
		return nil, err
	}
	if existing := g.findProposal(ref); existing != nil {
		info := existing.info()
		return &info, nil
	}
	sender := pm.Content.Sender
	if sender.Index == g.index {
		return nil, errors.New("proposal from the local member is not in the cache")
	}
	p := *pm.Content.Proposal
	if err := g.validateProposal(&p, sender.Index); err != nil {
		return nil, err
	}
	g.proposals = append(g.proposals, cachedProposal{ref: ref, sender: sender, proposal: p})
	info := g.proposals[len(g.proposals)-1].info()
	return &info, nil
}

// EncryptApplication frames plaintext as a private application message
// from the local member.
func (g *Group) EncryptApplication(plaintext, aad []byte) (*wire.MLSMessage, error) {
	const op = "encrypt application"
	if err := g.requireActive(); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	if g.epoch.generation == math.MaxUint32 {
		return nil, types.E(types.KindProtocol, op, errors.New("application generations exhausted; commit to start a new epoch"))
	}
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
	fc := wire.FramedContent{
		GroupID:           g.context.GroupID,
		Epoch:             g.context.Epoch,
		Sender:            sender,
		AuthenticatedData: aad,
		ContentType:       wire.ContentTypeApplication,
		Application:       plaintext,
	}
	tbs, err := fc.TBS(wire.WireFormatPrivateMessage, ctxBytes)
	if err != nil {
		return nil, types.E(types.KindCodec, op, err)
	}
	content, err := codec.Marshal(&wire.ApplicationContent{
		Data:      plaintext,
		Signature: crypto.SignWithLabel(g.signer, "FramedContentTBS", tbs),
	})
	if err != nil {
		return nil, types.E(types.KindCodec, op, err)
	}

	sd := wire.SenderData{LeafIndex: g.index, Generation: g.epoch.generation}
	if _, err := rand.Read(sd.ReuseGuard[:]); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	key, nonce, err := applicationKey(keys.encryption, g.index, sd.Generation)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	defer memzero.Zero(key)
	applyReuseGuard(nonce, sd.ReuseGuard)

	pm := &wire.PrivateMessage{
		GroupID:           g.context.GroupID,
		Epoch:             g.context.Epoch,
		ContentType:       wire.ContentTypeApplication,
		AuthenticatedData: aad,
	}
	if pm.Ciphertext, err = crypto.Seal(key, nonce, pm.ContentAAD(), content); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	sdBytes, err := codec.Marshal(&sd)
	if err != nil {
		return nil, types.E(types.KindCodec, op, err)
	}
	sdKey, sdNonce, err := senderDataKey(keys.senderData, pm.Ciphertext)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	defer memzero.Zero(sdKey)
	if pm.EncryptedSenderData, err = crypto.Seal(sdKey, sdNonce, pm.SenderDataAAD(), sdBytes); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}

	g.epoch.generation++
	return &wire.MLSMessage{Version: wire.MLS10, WireFormat: wire.WireFormatPrivateMessage, Private: pm}, nil
}

func (g *Group) processPrivate(pm *wire.PrivateMessage) (*interfaces.Processed, error) {
	if err := g.checkAddressing(pm.GroupID, pm.Epoch); err != nil {
		return nil, err
	}
	if pm.ContentType != wire.ContentTypeApplication {
		return nil, fmt.Errorf("%w: encrypted %s content", types.ErrUnexpectedMessageFormat, pm.ContentType)
	}
	ctxBytes, err := g.contextBytes()
	if err != nil {
		return nil, err
	}
	keys, err := deriveEpochKeys(g.epoch.epochSecret)
	if err != nil {
		return nil, err
	}
	defer keys.wipe()

	sdKey, sdNonce, err := senderDataKey(keys.senderData, pm.Ciphertext)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(sdKey)
	sdBytes, err := crypto.Open(sdKey, sdNonce, pm.SenderDataAAD(), pm.EncryptedSenderData)
	if err != nil {
		return nil, fmt.Errorf("sender data: %w", err)
	}
	var sd wire.SenderData
	if err := codec.Unmarshal(sdBytes, &sd); err != nil {
		return nil, err
	}
	sender := g.leaf(sd.LeafIndex)
	switch {
	case sender == nil:
		return nil, fmt.Errorf("sender leaf %d is empty", sd.LeafIndex)
	case sd.LeafIndex == g.index:
		return nil, errors.New("cannot decrypt a message sent by the local member")
	case g.epoch.hasSeen(sd.LeafIndex, sd.Generation):
		return nil, types.ErrReplay
	}

	key, nonce, err := applicationKey(keys.encryption, sd.LeafIndex, sd.Generation)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	applyReuseGuard(nonce, sd.ReuseGuard)
	pt, err := crypto.Open(key, nonce, pm.ContentAAD(), pm.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("application content: %w", err)
	}
	var content wire.ApplicationContent
	if err := codec.Unmarshal(pt, &content); err != nil {
		return nil, err
	}

	fc := wire.FramedContent{
		GroupID:           pm.GroupID,
		Epoch:             pm.Epoch,
		Sender:            wire.Sender{Type: wire.SenderTypeMember, Index: sd.LeafIndex},
		AuthenticatedData: pm.AuthenticatedData,
		ContentType:       wire.ContentTypeApplication,
		Application:       content.Data,
	}
	tbs, err := fc.TBS(wire.WireFormatPrivateMessage, ctxBytes)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifyWithLabel(sender.SignatureKey, "FramedContentTBS", tbs, content.Signature) {
		return nil, fmt.Errorf("application content: %w", types.ErrInvalidSignature)
	}

	g.epoch.seen = append(g.epoch.seen, seenKey{leaf: sd.LeafIndex, generation: sd.Generation})
	return &interfaces.Processed{
		ContentType:       wire.ContentTypeApplication,
		Sender:            memberOf(sd.LeafIndex, sender),
		AuthenticatedData: append([]byte(nil), pm.AuthenticatedData...),
		Application:       content.Data,
	}, nil
}

// ValidateControl checks a Welcome, GroupInfo or KeyPackage message against
// the current group without changing it.
func (g *Group) ValidateControl(msg *wire.MLSMessage) error {
	const op = "validate message"
	switch msg.WireFormat {
	case wire.WireFormatKeyPackage:
		if err := g.validateKeyPackage(msg.KeyPackage, g.commitContext()); err != nil {
			return types.E(types.KindProtocol, op, err)
		}
	case wire.WireFormatWelcome:
		if msg.Welcome.CipherSuite != g.context.CipherSuite {
			return types.E(types.KindProtocol, op, types.ErrUnsupportedCipherSuite)
		}
	case wire.WireFormatGroupInfo:
		if err := g.validateGroupInfo(msg.GroupInfo); err != nil {
			return types.E(types.KindProtocol, op, err)
		}
	default:
		return types.E(types.KindProtocol, op, types.ErrUnexpectedMessageFormat)
	}
	return nil
}

func (g *Group) validateGroupInfo(gi *wire.GroupInfo) error {
	if err := g.checkAddressing(gi.GroupContext.GroupID, gi.GroupContext.Epoch); err != nil {
		return err
	}
	if gi.GroupContext.CipherSuite != g.context.CipherSuite {
		return types.ErrUnsupportedCipherSuite
	}
	signer := g.leaf(gi.Signer)
	if signer == nil {
		return fmt.Errorf("group info signer leaf %d is empty", gi.Signer)
	}
	tbs, err := marshalWith(gi.MarshalTBS)
	if err != nil {
		return err
	}
	if !crypto.VerifyWithLabel(signer.SignatureKey, "GroupInfoTBS", tbs, gi.Signature) {
		return fmt.Errorf("group info: %w", types.ErrInvalidSignature)
	}
	return nil
}
