package group_test

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlsgroup/internal/crypto"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/message"
	"mlsgroup/internal/metrics"
	"mlsgroup/internal/protocol/mls"
	"mlsgroup/internal/protocol/wire"
	"mlsgroup/internal/services/group"
	"mlsgroup/internal/services/identity"
	"mlsgroup/internal/store"
)

type participant struct {
	signer types.SignatureSecretKey
	id     types.SigningIdentity
	store  *store.MemoryStore
	engine *mls.Engine
}

func newParticipant(t *testing.T, name string) *participant {
	t.Helper()
	signer, _, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	p := &participant{
		signer: signer,
		id:     types.LocalIdentity{Name: []byte(name), SigningKey: signer}.SigningIdentity(),
		store:  store.NewMemoryStore(0),
	}
	p.engine, err = mls.New(mls.Config{
		Signer:      signer,
		Identity:    p.id,
		KeyPackages: p.store.KeyPackages(),
		PSKs:        p.store.PSKs(),
		Provider:    identity.NewBasicProvider(),
	})
	require.NoError(t, err)
	return p
}

func (p *participant) create(t *testing.T, opts ...group.Option) *group.Group {
	t.Helper()
	ge, err := p.engine.CreateGroup(nil, nil)
	require.NoError(t, err)
	return group.New(ge, p.store, opts...)
}

func (p *participant) keyPackage(t *testing.T) *message.Message {
	t.Helper()
	kp, err := p.engine.GenerateKeyPackage()
	require.NoError(t, err)
	m, err := message.New(kp)
	require.NoError(t, err)
	return deliver(t, m)
}

func (p *participant) join(t *testing.T, welcome *message.Message) *group.Group {
	t.Helper()
	ge, _, err := p.engine.JoinGroup(welcome.Wire())
	require.NoError(t, err)
	return group.New(ge, p.store)
}

// deliver passes m through its byte encoding, like a delivery service would.
func deliver(t *testing.T, m *message.Message) *message.Message {
	t.Helper()
	out, err := message.Parse(m.Bytes())
	require.NoError(t, err)
	return out
}

// twoMembers returns alice (index 0) and bob (index 1) at epoch 1.
func twoMembers(t *testing.T) (alice, bob *participant, ga, gb *group.Group) {
	t.Helper()
	alice, bob = newParticipant(t, "alice"), newParticipant(t, "bob")
	ga = alice.create(t)
	out, err := ga.AddMembers([]*message.Message{bob.keyPackage(t)})
	require.NoError(t, err)
	_, err = ga.ProcessIncomingMessage(deliver(t, out.CommitMessage))
	require.NoError(t, err)
	gb = bob.join(t, deliver(t, out.WelcomeMessage))
	return alice, bob, ga, gb
}

func TestCreate_EpochAndIndexZero(t *testing.T) {
	g := newParticipant(t, "alice").create(t)

	assert.Zero(t, g.CurrentEpoch())
	assert.Zero(t, g.CurrentMemberIndex())
	assert.Len(t, g.Members(), 1)
	assert.NotEmpty(t, g.GroupID())
	assert.True(t, g.Active())
}

func TestAddMember_OwnCommitEchoAndJoin(t *testing.T) {
	alice, bob := newParticipant(t, "alice"), newParticipant(t, "bob")
	ga := alice.create(t)

	out, err := ga.AddMembers([]*message.Message{bob.keyPackage(t)})
	require.NoError(t, err)
	require.NotNil(t, out.WelcomeMessage)
	require.NotNil(t, out.GroupInfo)
	require.Len(t, out.AppliedProposals, 1)
	add, ok := out.AppliedProposals[0].(types.AddProposal)
	require.True(t, ok)
	assert.True(t, add.Identity.Equal(bob.id))

	echo, err := ga.ProcessIncomingMessage(deliver(t, out.CommitMessage))
	require.NoError(t, err)
	cm, ok := echo.(types.CommitMessage)
	require.True(t, ok)
	assert.Zero(t, cm.Committer.Index)
	assert.IsType(t, types.NewEpoch{}, cm.Effect)
	assert.Equal(t, uint64(1), ga.CurrentEpoch())

	// a second delivery of the same commit is for a past epoch.
	_, err = ga.ProcessIncomingMessage(deliver(t, out.CommitMessage))
	require.ErrorIs(t, err, types.ErrWrongEpoch)

	gb := bob.join(t, deliver(t, out.WelcomeMessage))
	assert.Equal(t, uint64(1), gb.CurrentEpoch())
	assert.Equal(t, uint32(1), gb.CurrentMemberIndex())
	assert.Equal(t, ga.GroupID(), gb.GroupID())
	assert.Equal(t, ga.Members(), gb.Members())
}

func TestJoin_ConsumesKeyPackage(t *testing.T) {
	_, bob, _, _ := twoMembers(t)
	assert.Zero(t, bob.store.KeyPackages().Len())
}

func TestApplicationMessage_RoundTrip(t *testing.T) {
	_, _, ga, gb := twoMembers(t)

	msg, err := ga.EncryptApplicationMessage([]byte("hello bob"), []byte("aad"), false)
	require.NoError(t, err)
	got, err := gb.ProcessIncomingMessage(deliver(t, msg))
	require.NoError(t, err)

	app, ok := got.(types.ApplicationMessage)
	require.True(t, ok)
	assert.Equal(t, []byte("hello bob"), app.Data)
	assert.Equal(t, []byte("aad"), app.AuthenticatedData)
	assert.Zero(t, app.Sender.Index)

	_, err = gb.ProcessIncomingMessage(deliver(t, msg))
	require.ErrorIs(t, err, types.ErrReplay)
}

func TestApplicationMessage_ConcurrentSenders(t *testing.T) {
	_, _, ga, gb := twoMembers(t)

	const n = 8
	msgs := make([]*message.Message, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := ga.EncryptApplicationMessage([]byte{byte(i)}, nil, false)
			assert.NoError(t, err)
			msgs[i] = m
		}(i)
	}
	wg.Wait()

	for i, m := range msgs {
		require.NotNil(t, m)
		got, err := gb.ProcessIncomingMessage(deliver(t, m))
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, got.(types.ApplicationMessage).Data)
	}
}

func TestClearProposalCache_DropsUpdate(t *testing.T) {
	_, _, ga, _ := twoMembers(t)

	_, err := ga.ProposeUpdate(nil)
	require.NoError(t, err)
	pending, convErrs := ga.PendingProposals()
	require.Len(t, pending, 1)
	assert.Empty(t, convErrs)

	require.NoError(t, ga.ClearProposalCache())
	pending, _ = ga.PendingProposals()
	assert.Empty(t, pending)

	out, err := ga.Commit(nil)
	require.NoError(t, err)
	for _, p := range out.AppliedProposals {
		_, isUpdate := p.(types.UpdateProposal)
		assert.False(t, isUpdate)
	}
	assert.Empty(t, out.UnusedProposals)
	assert.Equal(t, uint64(2), ga.CurrentEpoch())
}

func TestCommit_AppliesForeignUpdate(t *testing.T) {
	_, _, ga, gb := twoMembers(t)

	prop, err := gb.ProposeUpdate([]byte("rotate"))
	require.NoError(t, err)
	got, err := ga.ProcessIncomingMessage(deliver(t, prop))
	require.NoError(t, err)
	pm, ok := got.(types.ProposalMessage)
	require.True(t, ok)
	assert.Equal(t, uint32(1), pm.Sender.Index)
	assert.Equal(t, []byte("rotate"), pm.AuthenticatedData)
	assert.Equal(t, uint32(1), pm.Proposal.(types.UpdateProposal).SenderIndex)

	out, err := ga.Commit(nil)
	require.NoError(t, err)
	require.Len(t, out.AppliedProposals, 1)
	assert.Nil(t, out.WelcomeMessage)

	got, err = gb.ProcessIncomingMessage(deliver(t, out.CommitMessage))
	require.NoError(t, err)
	effect := got.(types.CommitMessage).Effect.(types.NewEpoch)
	require.Len(t, effect.AppliedProposals, 1)
	assert.Equal(t, ga.CurrentEpoch(), gb.CurrentEpoch())

	a, err := ga.ExportSecret([]byte("label"), []byte("ctx"), 32)
	require.NoError(t, err)
	b, err := gb.ExportSecret([]byte("label"), []byte("ctx"), 32)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncrypt_DirtyWithOwnProposal(t *testing.T) {
	_, _, ga, gb := twoMembers(t)

	prop, err := ga.ProposeUpdate(nil)
	require.NoError(t, err)

	_, err = ga.EncryptApplicationMessage([]byte("x"), nil, false)
	require.ErrorIs(t, err, types.ErrProtocol)
	require.ErrorIs(t, err, types.ErrCommitRequired)

	// staple the proposal to the application message instead.
	app, err := ga.EncryptApplicationMessage([]byte("x"), prop.Bytes(), true)
	require.NoError(t, err)

	received := deliver(t, app)
	got, err := gb.ProcessIncomingMessage(received)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got.(types.ApplicationMessage).Data)

	inner := message.ContentTypeProposal
	stapled, err := received.UncheckedAuthData(message.ContentTypeApplication, &inner)
	require.NoError(t, err)
	require.NotNil(t, stapled)
	assert.True(t, stapled.Equal(prop))

	got, err = gb.ProcessIncomingMessage(stapled)
	require.NoError(t, err)
	assert.Zero(t, got.(types.ProposalMessage).Proposal.(types.UpdateProposal).SenderIndex)
}

func TestProcess_WrongEpochLeavesStateUnchanged(t *testing.T) {
	_, _, ga, gb := twoMembers(t)

	old, err := gb.EncryptApplicationMessage([]byte("late"), nil, false)
	require.NoError(t, err)
	_, err = ga.Commit(nil)
	require.NoError(t, err)

	before := ga.Context()
	_, err = ga.ProcessIncomingMessage(deliver(t, old))
	require.ErrorIs(t, err, types.ErrProtocol)
	require.ErrorIs(t, err, types.ErrWrongEpoch)
	assert.Equal(t, before, ga.Context())
}

func TestProcess_WrongGroup(t *testing.T) {
	_, _, ga, _ := twoMembers(t)
	other := newParticipant(t, "carol").create(t)

	msg, err := other.EncryptApplicationMessage([]byte("x"), nil, false)
	require.NoError(t, err)
	_, err = ga.ProcessIncomingMessage(deliver(t, msg))
	require.ErrorIs(t, err, types.ErrWrongGroup)
}

func TestProcess_ExternalSenderUnsupported(t *testing.T) {
	_, _, ga, gb := twoMembers(t)

	prop, err := gb.ProposeRemove(0, nil)
	require.NoError(t, err)
	w, err := wire.Decode(prop.Bytes())
	require.NoError(t, err)
	w.Public.Content.Sender = wire.Sender{Type: wire.SenderTypeExternal}
	w.Public.MembershipTag = nil
	forged, err := message.New(w)
	require.NoError(t, err)

	_, err = ga.ProcessIncomingMessage(deliver(t, forged))
	require.ErrorIs(t, err, types.ErrProtocol)
	require.ErrorIs(t, err, types.ErrUnsupportedSender)
	pending, _ := ga.PendingProposals()
	assert.Empty(t, pending)
}

func TestProcess_ControlMessages(t *testing.T) {
	alice, bob := newParticipant(t, "alice"), newParticipant(t, "bob")
	ga := alice.create(t)

	got, err := ga.ProcessIncomingMessage(bob.keyPackage(t))
	require.NoError(t, err)
	assert.IsType(t, types.KeyPackageMessage{}, got)

	out, err := ga.AddMembers([]*message.Message{bob.keyPackage(t)})
	require.NoError(t, err)
	got, err = ga.ProcessIncomingMessage(deliver(t, out.GroupInfo))
	require.NoError(t, err)
	assert.IsType(t, types.GroupInfoMessage{}, got)
	got, err = ga.ProcessIncomingMessage(deliver(t, out.WelcomeMessage))
	require.NoError(t, err)
	assert.IsType(t, types.WelcomeMessage{}, got)
	assert.Equal(t, uint64(1), ga.CurrentEpoch())
}

func TestProposeAddMembers_CommitAddsAll(t *testing.T) {
	alice, bob, carol := newParticipant(t, "alice"), newParticipant(t, "bob"), newParticipant(t, "carol")
	ga := alice.create(t)

	props, err := ga.ProposeAddMembers([]*message.Message{bob.keyPackage(t), carol.keyPackage(t)})
	require.NoError(t, err)
	require.Len(t, props, 2)
	pending, _ := ga.PendingProposals()
	assert.Len(t, pending, 2)
	assert.Zero(t, ga.CurrentEpoch())

	out, err := ga.Commit(nil)
	require.NoError(t, err)
	require.Len(t, out.AppliedProposals, 2)
	for _, p := range out.AppliedProposals {
		assert.IsType(t, types.AddProposal{}, p)
	}
	require.NotNil(t, out.WelcomeMessage)
	assert.Equal(t, uint64(1), ga.CurrentEpoch())
	assert.Len(t, ga.Members(), 3)

	gb := bob.join(t, deliver(t, out.WelcomeMessage))
	gc := carol.join(t, deliver(t, out.WelcomeMessage))
	assert.Equal(t, uint32(1), gb.CurrentMemberIndex())
	assert.Equal(t, uint32(2), gc.CurrentMemberIndex())
}

func TestProposeAddMembers_AllOrNothing(t *testing.T) {
	alice := newParticipant(t, "alice")
	ga := alice.create(t)

	_, err := ga.ProposeAddMembers(nil)
	require.ErrorIs(t, err, types.ErrUsage)

	good := newParticipant(t, "bob").keyPackage(t)
	bad := newParticipant(t, "carol").keyPackage(t)
	bad.Wire().KeyPackage.Signature[0] ^= 1

	_, err = ga.ProposeAddMembers([]*message.Message{good, bad})
	require.ErrorIs(t, err, types.ErrInvalidSignature)
	pending, _ := ga.PendingProposals()
	assert.Empty(t, pending)
	assert.Zero(t, ga.CurrentEpoch())
}

func TestAddMembers_FailureLeavesStateUnchanged(t *testing.T) {
	alice, bob := newParticipant(t, "alice"), newParticipant(t, "bob")
	ga := alice.create(t)

	_, err := ga.AddMembers([]*message.Message{bob.keyPackage(t), bob.keyPackage(t)})
	require.ErrorIs(t, err, types.ErrValidation)
	require.ErrorIs(t, err, types.ErrDuplicateIdentity)
	assert.Zero(t, ga.CurrentEpoch())
	assert.Len(t, ga.Members(), 1)

	_, err = ga.AddMembers(nil)
	require.ErrorIs(t, err, types.ErrUsage)
}

func TestProposeExternalPSK(t *testing.T) {
	alice, bob, ga, gb := twoMembers(t)

	_, err := ga.ProposeExternalPSK([]byte("missing"), nil)
	require.ErrorIs(t, err, types.ErrMissingPSK)
	pending, _ := ga.PendingProposals()
	assert.Empty(t, pending)

	alice.store.PSKs().Insert([]byte("shared"), []byte("secret"))
	bob.store.PSKs().Insert([]byte("shared"), []byte("secret"))
	prop, err := ga.ProposeExternalPSK([]byte("shared"), nil)
	require.NoError(t, err)
	got, err := gb.ProcessIncomingMessage(deliver(t, prop))
	require.NoError(t, err)
	psk := got.(types.ProposalMessage).Proposal.(types.PreSharedKeyProposal)
	assert.Equal(t, types.EncodePSKID([]byte("shared")), psk.PSKID)

	out, err := ga.Commit(nil)
	require.NoError(t, err)
	_, err = gb.ProcessIncomingMessage(deliver(t, out.CommitMessage))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gb.CurrentEpoch())
}

func TestProposeUpdateOptional_Pairing(t *testing.T) {
	alice := newParticipant(t, "alice")
	ga := alice.create(t)

	_, err := ga.ProposeUpdateOptional(&alice.signer, nil, nil)
	require.ErrorIs(t, err, types.ErrUsage)
	require.ErrorIs(t, err, types.ErrInconsistentOptionalParameters)

	_, err = ga.ProposeUpdateOptional(nil, nil, nil)
	require.NoError(t, err)
}

func TestCommitNewIdentity(t *testing.T) {
	_, _, ga, gb := twoMembers(t)

	signer, _, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	id := types.LocalIdentity{Name: []byte("alice@laptop"), SigningKey: signer}.SigningIdentity()

	out, err := ga.CommitNewIdentity(signer, id)
	require.NoError(t, err)
	_, err = gb.ProcessIncomingMessage(deliver(t, out.CommitMessage))
	require.NoError(t, err)

	m, ok := gb.MemberAtIndex(0)
	require.True(t, ok)
	assert.True(t, m.SigningIdentity.Equal(id))
	_, ok = gb.MemberAtIndex(7)
	assert.False(t, ok)
}

func TestRemoveMembers(t *testing.T) {
	_, _, ga, gb := twoMembers(t)

	out, err := ga.RemoveMembers([]uint32{1})
	require.NoError(t, err)
	require.Len(t, out.AppliedProposals, 1)
	assert.Equal(t, types.RemoveProposal{Index: 1}, out.AppliedProposals[0])

	got, err := gb.ProcessIncomingMessage(deliver(t, out.CommitMessage))
	require.NoError(t, err)
	assert.Equal(t, types.Removed{}, got.(types.CommitMessage).Effect)
	assert.False(t, gb.Active())

	_, err = gb.EncryptApplicationMessage([]byte("x"), nil, false)
	require.ErrorIs(t, err, types.ErrGroupInactive)
}

func TestReInit(t *testing.T) {
	_, _, ga, gb := twoMembers(t)

	prop, err := ga.ProposeReInit([]byte("next-group"), nil, nil)
	require.NoError(t, err)
	got, err := gb.ProcessIncomingMessage(deliver(t, prop))
	require.NoError(t, err)
	assert.Equal(t, []byte("next-group"), got.(types.ProposalMessage).Proposal.(types.ReInitProposal).GroupID)

	out, err := ga.Commit(nil)
	require.NoError(t, err)
	echo, err := ga.ProcessIncomingMessage(deliver(t, out.CommitMessage))
	require.NoError(t, err)
	assert.Equal(t, []byte("next-group"), echo.(types.CommitMessage).Effect.(types.ReInit).GroupID)

	got, err = gb.ProcessIncomingMessage(deliver(t, out.CommitMessage))
	require.NoError(t, err)
	effect := got.(types.CommitMessage).Effect.(types.ReInit)
	assert.Equal(t, []byte("next-group"), effect.GroupID)
	assert.Equal(t, mls.CipherSuite, effect.CipherSuite)
	assert.False(t, gb.Active())
}

func TestWriteToStorage_InsertThenUpdate(t *testing.T) {
	alice := newParticipant(t, "alice")
	ga := alice.create(t)
	gid := ga.GroupID()

	require.NoError(t, ga.WriteToStorage())
	_, ok, err := alice.store.Epoch(gid, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	// same epoch again is an update, not a duplicate insert.
	_, err = ga.EncryptApplicationMessage([]byte("x"), nil, false)
	require.NoError(t, err)
	require.NoError(t, ga.WriteToStorage())

	_, err = ga.Commit(nil)
	require.NoError(t, err)
	require.NoError(t, ga.WriteToStorage())
	maxID, ok, err := alice.store.MaxEpochID(gid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), maxID)

	state, ok, err := alice.store.State(gid)
	require.NoError(t, err)
	require.True(t, ok)
	loaded, err := alice.engine.LoadGroup(state, func(id uint64) ([]byte, error) {
		data, _, err := alice.store.Epoch(gid, id)
		return data, err
	})
	require.NoError(t, err)
	assert.Equal(t, ga.Context(), loaded.Context())
}

type panickingStorage struct {
	*store.MemoryStore
}

func (panickingStorage) MaxEpochID([]byte) (uint64, bool, error) {
	panic("storage backend crashed")
}

func TestPanicPoisonsSession(t *testing.T) {
	alice := newParticipant(t, "alice")
	ge, err := alice.engine.CreateGroup(nil, nil)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	g := group.New(ge, panickingStorage{alice.store}, group.WithMetrics(metrics.NewGroupMetrics(reg)))

	err = g.WriteToStorage()
	require.ErrorIs(t, err, types.ErrCallback)
	require.ErrorIs(t, err, types.ErrSessionPoisoned)

	_, err = g.Commit(nil)
	require.ErrorIs(t, err, types.ErrSessionPoisoned)
	assert.Zero(t, g.CurrentEpoch())
	assert.Len(t, g.Members(), 1)

	n, err := testutil.GatherAndCount(reg, "group_poisoned_session_count")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_CountsReceivedMessages(t *testing.T) {
	alice, bob := newParticipant(t, "alice"), newParticipant(t, "bob")
	reg := prometheus.NewRegistry()
	ga := alice.create(t, group.WithMetrics(metrics.NewGroupMetrics(reg)))

	out, err := ga.AddMembers([]*message.Message{bob.keyPackage(t)})
	require.NoError(t, err)
	_, err = ga.ProcessIncomingMessage(deliver(t, out.CommitMessage))
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "group_received_message_count")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = testutil.GatherAndCount(reg, "group_epoch_advance_count")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
