package mls

import (
	"bytes"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mlsgroup/internal/codec"
	"mlsgroup/internal/crypto"
	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/protocol/wire"
	"mlsgroup/internal/util/memzero"
)

// JoinGroup joins the group a Welcome describes using one of the locally
// stored key packages. The key package is deleted once the join succeeds.
// The returned extensions are the group info extensions minus the roster.
func (e *Engine) JoinGroup(msg *wire.MLSMessage) (interfaces.GroupEngine, types.ExtensionList, error) {
	const op = "join group"

	if msg == nil || msg.WireFormat != wire.WireFormatWelcome {
		return nil, nil, types.E(types.KindProtocol, op, types.ErrUnexpectedMessageFormat)
	}
	w := msg.Welcome
	if w.CipherSuite != CipherSuite {
		return nil, nil, types.E(types.KindProtocol, op, types.ErrUnsupportedCipherSuite)
	}

	var (
		ref     []byte
		data    types.KeyPackageData
		secrets *wire.EncryptedGroupSecrets
	)
	for i := range w.Secrets {
		d, ok, err := e.cfg.KeyPackages.Get(w.Secrets[i].NewMember)
		if err != nil {
			return nil, nil, types.E(types.KindStorage, op, err)
		}
		if ok {
			ref, data, secrets = w.Secrets[i].NewMember, d, &w.Secrets[i]
			break
		}
	}
	if secrets == nil {
		return nil, nil, types.E(types.KindProtocol, op,
			fmt.Errorf("%w: welcome is not addressed to a local key package", types.ErrNotFound))
	}
	defer data.Erase()

	kpMsg, err := wire.Decode(data.KeyPackageBytes)
	if err != nil {
		return nil, nil, types.E(types.KindCodec, op, err)
	}
	if kpMsg.WireFormat != wire.WireFormatKeyPackage {
		return nil, nil, types.E(types.KindCodec, op, types.ErrUnexpectedMessageFormat)
	}
	kp := kpMsg.KeyPackage
	pub := e.cfg.Signer.Public()
	if !bytes.Equal(pub[:], kp.LeafNode.SignatureKey) {
		return nil, nil, types.E(types.KindProtocol, op, errors.New("key package belongs to a different signing identity"))
	}

	gsBytes, err := crypto.OpenHPKE(data.InitKeySecret, secrets.Secrets.KEMOutput, w.EncryptedGroupInfo, nil, secrets.Secrets.Ciphertext)
	if err != nil {
		return nil, nil, types.E(types.KindProtocol, op, fmt.Errorf("open group secrets: %w", err))
	}
	defer memzero.Zero(gsBytes)
	var gs wire.GroupSecrets
	if err := codec.Unmarshal(gsBytes, &gs); err != nil {
		return nil, nil, types.E(types.KindCodec, op, err)
	}
	defer memzero.Zero(gs.JoinerSecret)

	psk, err := pskSecret(gs.PSKs, e.cfg.PSKs)
	if err != nil {
		return nil, nil, types.E(types.KindProtocol, op, err)
	}
	member := crypto.Extract(gs.JoinerSecret, psk)
	defer memzero.ZeroAll(member, psk)
	welcomeSecret, err := crypto.DeriveSecret(member, "welcome")
	if err != nil {
		return nil, nil, types.E(types.KindProtocol, op, err)
	}
	defer memzero.Zero(welcomeSecret)
	key, nonce, err := welcomeKeys(welcomeSecret)
	if err != nil {
		return nil, nil, types.E(types.KindProtocol, op, err)
	}
	defer memzero.Zero(key)
	giBytes, err := crypto.Open(key, nonce, nil, w.EncryptedGroupInfo)
	if err != nil {
		return nil, nil, types.E(types.KindProtocol, op, fmt.Errorf("open group info: %w", err))
	}
	var gi wire.GroupInfo
	if err := codec.Unmarshal(giBytes, &gi); err != nil {
		return nil, nil, types.E(types.KindCodec, op, err)
	}

	g, err := e.groupFromInfo(&gi, member, kp)
	if err != nil {
		return nil, nil, types.E(types.KindProtocol, op, err)
	}
	g.leafSecret = append([]byte(nil), data.LeafNodeKeySecret...)

	if err := e.cfg.KeyPackages.Delete(ref); err != nil {
		return nil, nil, types.E(types.KindStorage, op, err)
	}
	e.cfg.Logger.Debug("joined group",
		zap.Binary("group_id", g.context.GroupID),
		zap.Uint64("epoch", g.context.Epoch),
		zap.Uint32("index", g.index))
	return g, gi.Extensions.Without(wire.ExtensionTypeRatchetTree), nil
}

// groupFromInfo verifies a decrypted group info and builds the joiner's
// group state from it.
func (e *Engine) groupFromInfo(gi *wire.GroupInfo, member []byte, kp *wire.KeyPackage) (*Group, error) {
	ctx := gi.GroupContext
	if ctx.Version != wire.MLS10 {
		return nil, wire.ErrUnsupportedVersion
	}
	if ctx.CipherSuite != CipherSuite {
		return nil, types.ErrUnsupportedCipherSuite
	}
	tree, ok := gi.Extensions.Find(wire.ExtensionTypeRatchetTree)
	if !ok {
		return nil, errors.New("group info carries no roster")
	}
	roster, err := wire.DecodeRoster(tree.Data)
	if err != nil {
		return nil, types.E(types.KindCodec, "", err)
	}
	th, err := treeHash(roster)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(th, ctx.TreeHash) {
		return nil, errors.New("roster does not match the tree hash")
	}
	if int64(gi.Signer) >= int64(len(roster)) || roster[gi.Signer] == nil {
		return nil, fmt.Errorf("group info signer leaf %d is empty", gi.Signer)
	}
	tbs, err := marshalWith(gi.MarshalTBS)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifyWithLabel(roster[gi.Signer].SignatureKey, "GroupInfoTBS", tbs, gi.Signature) {
		return nil, fmt.Errorf("group info: %w", types.ErrInvalidSignature)
	}

	ctxBytes, err := codec.Marshal(&ctx)
	if err != nil {
		return nil, err
	}
	epochSecret, err := crypto.ExpandWithLabel(member, "epoch", ctxBytes, crypto.HashSize)
	if err != nil {
		return nil, err
	}
	keys, err := deriveEpochKeys(epochSecret)
	if err != nil {
		return nil, err
	}
	defer keys.wipe()
	if !crypto.VerifyMAC(keys.confirm, ctx.ConfirmedTranscriptHash, gi.ConfirmationTag) {
		return nil, errors.New("confirmation tag mismatch")
	}

	own, err := codec.Marshal(&kp.LeafNode)
	if err != nil {
		return nil, err
	}
	index := -1
	for i, leaf := range roster {
		if leaf == nil {
			continue
		}
		enc, err := codec.Marshal(leaf)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(enc, own) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, errors.New("roster does not contain the local key package")
	}

	g := &Group{
		cfg:     e.cfg,
		context: ctx,
		roster:  roster,
		index:   uint32(index),
		signer:  e.cfg.Signer,
		interim: interimTranscriptHash(ctx.ConfirmedTranscriptHash, gi.ConfirmationTag),
		epoch:   epochState{epochSecret: epochSecret},
	}
	for _, leaf := range roster {
		if leaf == nil {
			continue
		}
		if err := g.validateLeaf(leaf, types.NoValidationContext{}); err != nil {
			return nil, err
		}
	}
	if err := g.checkUnique(roster, ctx.Extensions); err != nil {
		return nil, err
	}
	return g, nil
}
