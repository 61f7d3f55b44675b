package message_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/message"
	"mlsgroup/internal/protocol/wire"
)

func proposalMessage(t *testing.T) *message.Message {
	t.Helper()
	m, err := message.New(&wire.MLSMessage{
		Version:    wire.MLS10,
		WireFormat: wire.WireFormatPublicMessage,
		Public: &wire.PublicMessage{
			Content: wire.FramedContent{
				GroupID:     []byte("group"),
				Epoch:       3,
				Sender:      wire.Sender{Type: wire.SenderTypeMember, Index: 1},
				ContentType: wire.ContentTypeProposal,
				Proposal:    &wire.Proposal{Type: wire.ProposalTypeRemove, Removed: 2},
			},
			Signature:     []byte("sig"),
			MembershipTag: []byte("tag"),
		},
	})
	require.NoError(t, err)
	return m
}

func privateMessage(t *testing.T, ct wire.ContentType, aad []byte) *message.Message {
	t.Helper()
	m, err := message.New(&wire.MLSMessage{
		Version:    wire.MLS10,
		WireFormat: wire.WireFormatPrivateMessage,
		Private: &wire.PrivateMessage{
			GroupID:             []byte("group"),
			Epoch:               3,
			ContentType:         ct,
			AuthenticatedData:   aad,
			EncryptedSenderData: []byte("sender"),
			Ciphertext:          []byte("ciphertext"),
		},
	})
	require.NoError(t, err)
	return m
}

func TestParse_RoundTrip(t *testing.T) {
	orig := proposalMessage(t)

	parsed, err := message.Parse(orig.Bytes())
	require.NoError(t, err)
	require.True(t, parsed.Equal(orig))
	require.Equal(t, orig.Bytes(), parsed.Bytes())

	gid, ok := parsed.GroupID()
	require.True(t, ok)
	require.Equal(t, []byte("group"), gid)
	epoch, ok := parsed.Epoch()
	require.True(t, ok)
	require.Equal(t, uint64(3), epoch)
	require.Equal(t, message.ContentTypeProposal, parsed.ContentType())
	require.Equal(t, wire.WireFormatPublicMessage, parsed.WireFormat())
}

func TestParse_GarbageIsCodecError(t *testing.T) {
	_, err := message.Parse([]byte{0x00, 0x01, 0xff})
	require.ErrorIs(t, err, types.ErrCodec)
}

func TestUncheckedAuthData_ReturnsStapledProposal(t *testing.T) {
	inner := proposalMessage(t)
	outer := privateMessage(t, message.ContentTypeApplication, inner.Bytes())

	want := message.ContentTypeProposal
	got, err := outer.UncheckedAuthData(message.ContentTypeApplication, &want)
	require.NoError(t, err)
	require.True(t, got.Equal(inner))
}

func TestUncheckedAuthData_EmptyIsNil(t *testing.T) {
	outer := privateMessage(t, message.ContentTypeApplication, nil)
	got, err := outer.UncheckedAuthData(message.ContentTypeApplication, nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUncheckedAuthData_OuterMismatchCarriesBothTypes(t *testing.T) {
	outer := privateMessage(t, message.ContentTypeApplication, proposalMessage(t).Bytes())

	inner := message.ContentTypeProposal
	_, err := outer.UncheckedAuthData(message.ContentTypeCommit, &inner)
	require.ErrorIs(t, err, types.ErrProtocol)

	var mismatch *message.ContentTypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, message.ContentTypeCommit, mismatch.Expected)
	require.Equal(t, message.ContentTypeApplication, mismatch.Actual)
}

func TestUncheckedAuthData_InnerMismatch(t *testing.T) {
	outer := privateMessage(t, message.ContentTypeApplication, proposalMessage(t).Bytes())

	inner := message.ContentTypeCommit
	_, err := outer.UncheckedAuthData(message.ContentTypeApplication, &inner)

	var mismatch *message.ContentTypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, message.ContentTypeCommit, mismatch.Expected)
	require.Equal(t, message.ContentTypeProposal, mismatch.Actual)
}

func TestUncheckedAuthData_PublicMessageRejected(t *testing.T) {
	_, err := proposalMessage(t).UncheckedAuthData(message.ContentTypeProposal, nil)
	require.ErrorIs(t, err, types.ErrProtocol)
	require.ErrorIs(t, err, types.ErrUnexpectedMessageFormat)
}

func TestUncheckedAuthData_GarbageInnerIsCodecError(t *testing.T) {
	outer := privateMessage(t, message.ContentTypeApplication, []byte{0xde, 0xad})
	_, err := outer.UncheckedAuthData(message.ContentTypeApplication, nil)
	require.ErrorIs(t, err, types.ErrCodec)
}
