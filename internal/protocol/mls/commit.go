package mls

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mlsgroup/internal/codec"
	"mlsgroup/internal/crypto"
	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/protocol/wire"
	"mlsgroup/internal/util/memzero"
)

// proposalEntry is one proposal listed in a commit.
type proposalEntry struct {
	info   interfaces.ProposalInfo
	cached *cachedProposal // nil for proposals carried by value
}

type addedMember struct {
	index uint32
	kp    *wire.KeyPackage
}

// transition is the roster change a commit's proposals produce.
type transition struct {
	roster  []*wire.LeafNode
	added   []addedMember
	psks    []wire.PreSharedKeyID
	reinit  *wire.ReInit
	removed map[uint32]bool
	updated map[uint32]*proposalEntry
}

// applyProposals applies entries to a copy of the roster in the order
// updates, removes, adds, pre-shared keys, reinit. Any entry that is not
// valid for this committer fails the whole commit.
func (g *Group) applyProposals(entries []proposalEntry, committer uint32) (*transition, error) {
	tr := &transition{
		roster:  append([]*wire.LeafNode(nil), g.roster...),
		removed: make(map[uint32]bool),
		updated: make(map[uint32]*proposalEntry),
	}
	var updates, removes, adds, psks, reinits []*proposalEntry
	for i := range entries {
		e := &entries[i]
		switch e.info.Proposal.Type {
		case wire.ProposalTypeUpdate:
			updates = append(updates, e)
		case wire.ProposalTypeRemove:
			removes = append(removes, e)
		case wire.ProposalTypeAdd:
			adds = append(adds, e)
		case wire.ProposalTypePSK:
			psks = append(psks, e)
		case wire.ProposalTypeReInit:
			reinits = append(reinits, e)
		default:
			return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedProposal, e.info.Proposal.Type)
		}
	}
	if len(reinits) > 0 && len(entries) != 1 {
		return nil, errors.New("reinit must be committed alone")
	}

	for _, e := range removes {
		idx := e.info.Proposal.Removed
		switch {
		case idx == committer:
			return nil, errors.New("committer cannot remove itself")
		case g.leaf(idx) == nil:
			return nil, fmt.Errorf("remove of empty leaf %d", idx)
		case tr.removed[idx]:
			return nil, fmt.Errorf("leaf %d removed twice", idx)
		}
		tr.removed[idx] = true
	}
	for _, e := range updates {
		s := e.info.Sender.Index
		switch {
		case e.info.Sender.Type != wire.SenderTypeMember:
			return nil, types.ErrUnsupportedSender
		case s == committer:
			return nil, errors.New("committer cannot commit its own update")
		case g.leaf(s) == nil:
			return nil, fmt.Errorf("update from empty leaf %d", s)
		case tr.removed[s]:
			return nil, fmt.Errorf("leaf %d both updated and removed", s)
		case tr.updated[s] != nil:
			return nil, fmt.Errorf("leaf %d updated twice", s)
		}
		tr.updated[s] = e
	}

	for s, e := range tr.updated {
		leaf := *e.info.Proposal.LeafNode
		tr.roster[s] = &leaf
	}
	for idx := range tr.removed {
		tr.roster[idx] = nil
	}
	for _, e := range adds {
		kp := e.info.Proposal.KeyPackage
		leaf := kp.LeafNode
		slot := -1
		for i, l := range tr.roster {
			if l == nil {
				slot = i
				break
			}
		}
		if slot < 0 {
			slot = len(tr.roster)
			tr.roster = append(tr.roster, nil)
		}
		tr.roster[slot] = &leaf
		tr.added = append(tr.added, addedMember{index: uint32(slot), kp: kp})
	}
	seen := make(map[string]bool)
	for _, e := range psks {
		id := e.info.Proposal.PSK
		if seen[string(id.ID)] {
			return nil, fmt.Errorf("pre-shared key %x listed twice", id.ID)
		}
		seen[string(id.ID)] = true
		tr.psks = append(tr.psks, *id)
	}
	if len(reinits) == 1 {
		r := *reinits[0].info.Proposal.ReInit
		tr.reinit = &r
	}

	for len(tr.roster) > 0 && tr.roster[len(tr.roster)-1] == nil {
		tr.roster = tr.roster[:len(tr.roster)-1]
	}
	return tr, nil
}

func (tr *transition) isAdded(idx uint32) bool {
	for _, a := range tr.added {
		if a.index == idx {
			return true
		}
	}
	return false
}

// selectProposals splits the cache into what the local member will commit
// and what it leaves unused, then appends the by-value changes in opts.
func (g *Group) selectProposals(opts *interfaces.CommitOptions) (applied []proposalEntry, unused []interfaces.ProposalInfo, err error) {
	self := wire.Sender{Type: wire.SenderTypeMember, Index: g.index}
	byValue := len(opts.Add) > 0 || len(opts.Remove) > 0

	if !byValue {
		for i := range g.proposals {
			if g.proposals[i].proposal.Type != wire.ProposalTypeReInit {
				continue
			}
			applied = []proposalEntry{{info: g.proposals[i].info(), cached: &g.proposals[i]}}
			for j := range g.proposals {
				if j != i {
					unused = append(unused, g.proposals[j].info())
				}
			}
			return applied, unused, nil
		}
	}

	removed := make(map[uint32]bool)
	for _, idx := range opts.Remove {
		if idx == g.index || g.leaf(idx) == nil || removed[idx] {
			return nil, nil, types.E(types.KindUsage, "", fmt.Errorf("cannot remove leaf %d", idx))
		}
		removed[idx] = true
	}
	take := make([]bool, len(g.proposals))
	for i := range g.proposals {
		p := &g.proposals[i].proposal
		if p.Type != wire.ProposalTypeRemove {
			continue
		}
		if p.Removed != g.index && g.leaf(p.Removed) != nil && !removed[p.Removed] {
			removed[p.Removed] = true
			take[i] = true
		}
	}

	// Identities that stay in the group, used to drop duplicate adds.
	present := make(map[string]bool)
	addIdentity := func(id types.SigningIdentity) (bool, error) {
		key, err := g.cfg.Provider.Identity(id, g.context.Extensions)
		if err != nil {
			return false, types.E(types.KindValidation, "", err)
		}
		if present[string(key)] {
			return false, nil
		}
		present[string(key)] = true
		return true, nil
	}

	updated := make(map[uint32]bool)
	pskSeen := make(map[string]bool)
	for i := range g.proposals {
		c := &g.proposals[i]
		switch c.proposal.Type {
		case wire.ProposalTypeUpdate:
			s := c.sender.Index
			if !g.isOwn(c) && g.leaf(s) != nil && !removed[s] && !updated[s] {
				updated[s] = true
				take[i] = true
			}
		case wire.ProposalTypePSK:
			id := string(c.proposal.PSK.ID)
			if !pskSeen[id] && g.pskAvailable(c.proposal.PSK.ID) {
				pskSeen[id] = true
				take[i] = true
			}
		}
	}

	for i, leaf := range g.roster {
		if leaf == nil || removed[uint32(i)] {
			continue
		}
		id := identityOf(leaf)
		switch {
		case uint32(i) == g.index && opts.NewIdentity != nil:
			id = *opts.NewIdentity
		case updated[uint32(i)]:
			for j := range g.proposals {
				c := &g.proposals[j]
				if take[j] && c.proposal.Type == wire.ProposalTypeUpdate && c.sender.Index == uint32(i) {
					id = identityOf(c.proposal.LeafNode)
				}
			}
		}
		if _, err := addIdentity(id); err != nil {
			return nil, nil, err
		}
	}
	for i := range g.proposals {
		c := &g.proposals[i]
		if c.proposal.Type != wire.ProposalTypeAdd {
			continue
		}
		ok, err := addIdentity(identityOf(&c.proposal.KeyPackage.LeafNode))
		if err != nil {
			return nil, nil, err
		}
		take[i] = ok
	}

	for i := range g.proposals {
		if take[i] {
			applied = append(applied, proposalEntry{info: g.proposals[i].info(), cached: &g.proposals[i]})
		} else {
			unused = append(unused, g.proposals[i].info())
		}
	}

	for _, m := range opts.Add {
		if m == nil || m.WireFormat != wire.WireFormatKeyPackage {
			return nil, nil, types.E(types.KindProtocol, "", types.ErrUnexpectedMessageFormat)
		}
		if err := g.validateKeyPackage(m.KeyPackage, g.commitContext()); err != nil {
			return nil, nil, err
		}
		ok, err := addIdentity(identityOf(&m.KeyPackage.LeafNode))
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, types.E(types.KindValidation, "", types.ErrDuplicateIdentity)
		}
		applied = append(applied, proposalEntry{info: interfaces.ProposalInfo{
			Proposal: wire.Proposal{Type: wire.ProposalTypeAdd, KeyPackage: m.KeyPackage},
			Sender:   self,
		}})
	}
	for _, idx := range opts.Remove {
		applied = append(applied, proposalEntry{info: interfaces.ProposalInfo{
			Proposal: wire.Proposal{Type: wire.ProposalTypeRemove, Removed: idx},
			Sender:   self,
		}})
	}
	return applied, unused, nil
}

func (g *Group) pskAvailable(id []byte) bool {
	if g.cfg.PSKs == nil {
		return false
	}
	_, ok, err := g.cfg.PSKs.Get(id)
	return err == nil && ok
}

func (g *Group) commitContext() types.MemberValidationContext {
	return types.ForCommit{CurrentContext: g.Context()}
}

// epochStep is the key schedule output for the epoch a commit creates.
type epochStep struct {
	context         wire.GroupContext
	joiner          []byte
	welcome         []byte
	epochSecret     []byte
	confirmationTag []byte
	interim         []byte
}

func (s *epochStep) wipe() {
	memzero.ZeroAll(s.joiner, s.welcome)
}

func (g *Group) step(pm *wire.PublicMessage, roster []*wire.LeafNode, commitSecret, initSecret []byte, psks []wire.PreSharedKeyID) (*epochStep, error) {
	th, err := treeHash(roster)
	if err != nil {
		return nil, err
	}
	confirmed, err := confirmedTranscriptHash(g.interim, pm)
	if err != nil {
		return nil, err
	}
	ctx := wire.GroupContext{
		Version:                 g.context.Version,
		CipherSuite:             g.context.CipherSuite,
		GroupID:                 g.context.GroupID,
		Epoch:                   g.context.Epoch + 1,
		TreeHash:                th,
		ConfirmedTranscriptHash: confirmed,
		Extensions:              g.context.Extensions,
	}
	ctxBytes, err := codec.Marshal(&ctx)
	if err != nil {
		return nil, err
	}
	joiner, err := joinerSecret(initSecret, commitSecret, ctxBytes)
	if err != nil {
		return nil, err
	}
	psk, err := pskSecret(psks, g.cfg.PSKs)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(psk)
	welcome, epochSecret, err := fromJoiner(joiner, psk, ctxBytes)
	if err != nil {
		return nil, err
	}
	keys, err := deriveEpochKeys(epochSecret)
	if err != nil {
		return nil, err
	}
	defer keys.wipe()
	tag := crypto.MAC(keys.confirm, confirmed)
	return &epochStep{
		context:         ctx,
		joiner:          joiner,
		welcome:         welcome,
		epochSecret:     epochSecret,
		confirmationTag: tag,
		interim:         interimTranscriptHash(confirmed, tag),
	}, nil
}

// Commit commits the cached proposals plus the by-value changes in opts and
// moves the group to the next epoch. The receiver is unchanged on error.
func (g *Group) Commit(opts interfaces.CommitOptions) (*interfaces.CommitResult, error) {
	const op = "commit"

	if err := g.requireActive(); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	if (opts.NewSigner == nil) != (opts.NewIdentity == nil) {
		return nil, types.E(types.KindUsage, op, types.ErrInconsistentOptionalParameters)
	}
	signer, id := g.signer, identityOf(g.roster[g.index])
	if opts.NewSigner != nil {
		pub := opts.NewSigner.Public()
		if !bytes.Equal(pub[:], opts.NewIdentity.SignatureKey) {
			return nil, types.E(types.KindUsage, op, errors.New("new signer does not match new identity"))
		}
		signer, id = *opts.NewSigner, *opts.NewIdentity
	}

	applied, unused, err := g.selectProposals(&opts)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	tr, err := g.applyProposals(applied, g.index)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}

	leafPriv, leafPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	defer memzero.Zero(leafPriv[:])
	leaf, err := signLeaf(signer, id, leafPub[:])
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	if err := g.checkSuccessor(g.roster[g.index], leaf); err != nil {
		return nil, types.E(types.KindValidation, op, err)
	}
	if err := g.validateLeaf(leaf, g.commitContext()); err != nil {
		return nil, types.E(types.KindValidation, op, err)
	}
	tr.roster[g.index] = leaf
	if err := g.checkUnique(tr.roster, g.context.Extensions); err != nil {
		return nil, types.E(types.KindValidation, op, err)
	}

	oldCtx, err := g.contextBytes()
	if err != nil {
		return nil, types.E(types.KindCodec, op, err)
	}
	keys, err := deriveEpochKeys(g.epoch.epochSecret)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	defer keys.wipe()

	commitSecret := make([]byte, crypto.HashSize)
	if _, err := rand.Read(commitSecret); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	defer memzero.Zero(commitSecret)
	secrets, err := sealToMembers(tr.roster, func(i uint32) bool {
		return i != g.index && !tr.isAdded(i)
	}, commitSecret, oldCtx)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}

	commit := &wire.Commit{Path: &wire.UpdatePath{LeafNode: *leaf, Secrets: secrets}}
	for _, e := range applied {
		if e.cached != nil {
			commit.Proposals = append(commit.Proposals, wire.ProposalOrRef{Reference: e.cached.ref})
			continue
		}
		p := e.info.Proposal
		commit.Proposals = append(commit.Proposals, wire.ProposalOrRef{Proposal: &p})
	}
	pm := &wire.PublicMessage{Content: wire.FramedContent{
		GroupID:           g.context.GroupID,
		Epoch:             g.context.Epoch,
		Sender:            wire.Sender{Type: wire.SenderTypeMember, Index: g.index},
		AuthenticatedData: opts.AuthenticatedData,
		ContentType:       wire.ContentTypeCommit,
		Commit:            commit,
	}}
	if err := g.sign(pm, oldCtx); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}

	next, err := g.step(pm, tr.roster, commitSecret, keys.init, tr.psks)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	defer next.wipe()
	pm.ConfirmationTag = next.confirmationTag
	if err := setMembershipTag(pm, oldCtx, keys.membership); err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}

	gi, err := groupInfo(next, tr.roster, g.index, signer)
	if err != nil {
		return nil, types.E(types.KindProtocol, op, err)
	}
	res := &interfaces.CommitResult{
		Commit:    &wire.MLSMessage{Version: wire.MLS10, WireFormat: wire.WireFormatPublicMessage, Public: pm},
		GroupInfo: &wire.MLSMessage{Version: wire.MLS10, WireFormat: wire.WireFormatGroupInfo, GroupInfo: gi},
		Unused:    unused,
	}
	for _, e := range applied {
		res.Applied = append(res.Applied, e.info)
	}
	if len(tr.added) > 0 {
		if res.Welcome, err = welcome(next, gi, tr); err != nil {
			return nil, types.E(types.KindProtocol, op, err)
		}
	}

	g.ClearProposals()
	g.context = next.context
	g.roster = tr.roster
	g.signer = signer
	memzero.Zero(g.leafSecret)
	g.leafSecret = append([]byte(nil), leafPriv[:]...)
	g.interim = next.interim
	g.epoch.wipe()
	g.epoch = epochState{epochSecret: next.epochSecret}
	if tr.reinit != nil {
		g.status, g.reinit = statusReInit, tr.reinit
	}
	g.cfg.Logger.Debug("commit created",
		zap.Uint64("epoch", g.context.Epoch),
		zap.Int("applied", len(res.Applied)),
		zap.Int("unused", len(res.Unused)),
		zap.Int("added", len(tr.added)))
	return res, nil
}

// sealToMembers encrypts secret to every occupied leaf accepted by include.
func sealToMembers(roster []*wire.LeafNode, include func(uint32) bool, secret, info []byte) ([]wire.PathSecret, error) {
	var recipients []uint32
	for i, leaf := range roster {
		if leaf != nil && include(uint32(i)) {
			recipients = append(recipients, uint32(i))
		}
	}
	out := make([]wire.PathSecret, len(recipients))
	var eg errgroup.Group
	for i, r := range recipients {
		i, r := i, r
		eg.Go(func() error {
			kem, ct, err := crypto.SealHPKE(roster[r].EncryptionKey, info, nil, secret)
			if err != nil {
				return fmt.Errorf("seal to leaf %d: %w", r, err)
			}
			out[i] = wire.PathSecret{Recipient: r, Ciphertext: wire.HPKECiphertext{KEMOutput: kem, Ciphertext: ct}}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func groupInfo(next *epochStep, roster []*wire.LeafNode, signerIndex uint32, signer types.Ed25519Private) (*wire.GroupInfo, error) {
	tree, err := wire.EncodeRoster(roster)
	if err != nil {
		return nil, err
	}
	gi := &wire.GroupInfo{
		GroupContext:    next.context,
		Extensions:      wire.Extensions{{Type: wire.ExtensionTypeRatchetTree, Data: tree}},
		ConfirmationTag: next.confirmationTag,
		Signer:          signerIndex,
	}
	tbs, err := marshalWith(gi.MarshalTBS)
	if err != nil {
		return nil, err
	}
	gi.Signature = crypto.SignWithLabel(signer, "GroupInfoTBS", tbs)
	return gi, nil
}

// welcome seals the joiner secret to every added member and encrypts the
// group info under the welcome secret.
func welcome(next *epochStep, gi *wire.GroupInfo, tr *transition) (*wire.MLSMessage, error) {
	giBytes, err := codec.Marshal(gi)
	if err != nil {
		return nil, err
	}
	key, nonce, err := welcomeKeys(next.welcome)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	encGI, err := crypto.Seal(key, nonce, nil, giBytes)
	if err != nil {
		return nil, err
	}
	gsBytes, err := codec.Marshal(&wire.GroupSecrets{JoinerSecret: next.joiner, PSKs: tr.psks})
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(gsBytes)

	w := &wire.Welcome{CipherSuite: CipherSuite, EncryptedGroupInfo: encGI}
	w.Secrets = make([]wire.EncryptedGroupSecrets, len(tr.added))
	var eg errgroup.Group
	for i, a := range tr.added {
		i, a := i, a
		eg.Go(func() error {
			ref, err := KeyPackageRef(a.kp)
			if err != nil {
				return err
			}
			kem, ct, err := crypto.SealHPKE(a.kp.InitKey, encGI, nil, gsBytes)
			if err != nil {
				return err
			}
			w.Secrets[i] = wire.EncryptedGroupSecrets{
				NewMember: ref,
				Secrets:   wire.HPKECiphertext{KEMOutput: kem, Ciphertext: ct},
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &wire.MLSMessage{Version: wire.MLS10, WireFormat: wire.WireFormatWelcome, Welcome: w}, nil
}

// sign signs pm's content with the local signer.
func (g *Group) sign(pm *wire.PublicMessage, groupContext []byte) error {
	tbs, err := pm.Content.TBS(wire.WireFormatPublicMessage, groupContext)
	if err != nil {
		return err
	}
	pm.Signature = crypto.SignWithLabel(g.signer, "FramedContentTBS", tbs)
	return nil
}

func setMembershipTag(pm *wire.PublicMessage, groupContext, membershipKey []byte) error {
	input, err := membershipInput(pm, groupContext)
	if err != nil {
		return err
	}
	pm.MembershipTag = crypto.MAC(membershipKey, input)
	return nil
}

// processCommit applies a commit received from another member.
func (g *Group) processCommit(pm *wire.PublicMessage, oldCtx []byte, keys *epochKeys) (*interfaces.CommitInfo, error) {
	committer := pm.Content.Sender.Index
	c := pm.Content.Commit
	if c.Path == nil {
		return nil, errors.New("commit carries no update path")
	}

	entries := make([]proposalEntry, 0, len(c.Proposals))
	referenced := make(map[string]bool)
	for _, por := range c.Proposals {
		if por.Proposal == nil {
			cp := g.findProposal(por.Reference)
			if cp == nil {
				return nil, fmt.Errorf("unknown proposal reference %x", por.Reference)
			}
			if referenced[string(cp.ref)] {
				return nil, fmt.Errorf("proposal %x referenced twice", cp.ref)
			}
			referenced[string(cp.ref)] = true
			entries = append(entries, proposalEntry{info: cp.info(), cached: cp})
			continue
		}
		p := *por.Proposal
		if p.Type == wire.ProposalTypeUpdate {
			return nil, errors.New("update proposals cannot be committed by value")
		}
		if err := g.validateProposal(&p, committer); err != nil {
			return nil, err
		}
		entries = append(entries, proposalEntry{info: interfaces.ProposalInfo{
			Proposal: p,
			Sender:   pm.Content.Sender,
		}})
	}

	tr, err := g.applyProposals(entries, committer)
	if err != nil {
		return nil, err
	}
	leaf := c.Path.LeafNode
	if err := g.checkSuccessor(g.roster[committer], &leaf); err != nil {
		return nil, err
	}
	if err := g.validateLeaf(&leaf, g.commitContext()); err != nil {
		return nil, err
	}
	tr.roster[committer] = &leaf
	if err := g.checkUnique(tr.roster, g.context.Extensions); err != nil {
		return nil, err
	}

	info := &interfaces.CommitInfo{}
	for _, e := range entries {
		info.Applied = append(info.Applied, e.info)
	}
	for i := range g.proposals {
		if !referenced[string(g.proposals[i].ref)] {
			info.Unused = append(info.Unused, g.proposals[i].info())
		}
	}

	if tr.removed[g.index] {
		info.Removed = true
		g.ClearProposals()
		g.roster = tr.roster
		g.context.Epoch++
		memzero.Zero(g.leafSecret)
		g.leafSecret = nil
		g.epoch.wipe()
		g.status = statusRemoved
		g.cfg.Logger.Debug("removed from group", zap.Uint64("epoch", g.context.Epoch))
		return info, nil
	}

	leafSecret, signer := g.leafSecret, g.signer
	if e := tr.updated[g.index]; e != nil {
		if e.cached == nil || e.cached.updateLeafSecret == nil {
			return nil, errors.New("committed update of local leaf is unknown")
		}
		leafSecret = e.cached.updateLeafSecret
		if e.cached.updateSigner != nil {
			signer = *e.cached.updateSigner
		}
	}
	var sealed *wire.HPKECiphertext
	for i := range c.Path.Secrets {
		if c.Path.Secrets[i].Recipient == g.index {
			sealed = &c.Path.Secrets[i].Ciphertext
			break
		}
	}
	if sealed == nil {
		return nil, errors.New("commit path carries no secret for the local member")
	}
	commitSecret, err := crypto.OpenHPKE(leafSecret, sealed.KEMOutput, oldCtx, nil, sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("open commit secret: %w", err)
	}
	defer memzero.Zero(commitSecret)

	next, err := g.step(pm, tr.roster, commitSecret, keys.init, tr.psks)
	if err != nil {
		return nil, err
	}
	defer next.wipe()
	if !hmac.Equal(next.confirmationTag, pm.ConfirmationTag) {
		return nil, errors.New("confirmation tag mismatch")
	}

	newLeafSecret := append([]byte(nil), leafSecret...)
	g.ClearProposals()
	g.context = next.context
	g.roster = tr.roster
	g.signer = signer
	memzero.Zero(g.leafSecret)
	g.leafSecret = newLeafSecret
	g.interim = next.interim
	g.epoch.wipe()
	g.epoch = epochState{epochSecret: next.epochSecret}
	if tr.reinit != nil {
		g.status, g.reinit = statusReInit, tr.reinit
		info.ReInit = tr.reinit
	}
	g.cfg.Logger.Debug("commit applied",
		zap.Uint64("epoch", g.context.Epoch),
		zap.Uint32("committer", committer),
		zap.Int("applied", len(info.Applied)))
	return info, nil
}
