package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mlsgroup/internal/protocol/wire"
)

func sampleLeaf(id string) wire.LeafNode {
	return wire.LeafNode{
		EncryptionKey: []byte("enc-" + id),
		SignatureKey:  []byte("sig-" + id),
		Credential:    wire.Credential{Type: wire.CredentialTypeBasic, Identity: []byte(id)},
		Signature:     []byte("leaf-signature"),
	}
}

func TestDecode_CommitRoundTrip(t *testing.T) {
	kp := &wire.KeyPackage{
		Version:     wire.MLS10,
		CipherSuite: wire.CipherSuiteX25519ChaCha20,
		InitKey:     []byte("init"),
		LeafNode:    sampleLeaf("bob"),
		NotAfter:    1700000000,
		Signature:   []byte("kp-signature"),
	}
	msg := &wire.MLSMessage{
		Version:    wire.MLS10,
		WireFormat: wire.WireFormatPublicMessage,
		Public: &wire.PublicMessage{
			Content: wire.FramedContent{
				GroupID:           []byte("group"),
				Epoch:             7,
				Sender:            wire.Sender{Type: wire.SenderTypeMember, Index: 2},
				AuthenticatedData: []byte("aad"),
				ContentType:       wire.ContentTypeCommit,
				Commit: &wire.Commit{
					Proposals: []wire.ProposalOrRef{
						{Proposal: &wire.Proposal{Type: wire.ProposalTypeAdd, KeyPackage: kp}},
						{Reference: []byte("ref")},
						{Proposal: &wire.Proposal{Type: wire.ProposalTypeRemove, Removed: 1}},
					},
					Path: &wire.UpdatePath{
						LeafNode: sampleLeaf("alice"),
						Secrets: []wire.PathSecret{{
							Recipient:  1,
							Ciphertext: wire.HPKECiphertext{KEMOutput: []byte("kem"), Ciphertext: []byte("ct")},
						}},
					},
				},
			},
			Signature:       []byte("sig"),
			ConfirmationTag: []byte("tag"),
			MembershipTag:   []byte("mtag"),
		},
	}

	enc, err := wire.Encode(msg)
	require.NoError(t, err)

	got, err := wire.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, msg, got)

	again, err := wire.Encode(got)
	require.NoError(t, err)
	require.Equal(t, enc, again)

	gid, ok := got.GroupID()
	require.True(t, ok)
	require.Equal(t, []byte("group"), gid)
	require.Equal(t, wire.ContentTypeCommit, got.ContentType())
}

func TestDecode_RejectsTrailingBytes(t *testing.T) {
	msg := &wire.MLSMessage{
		Version:    wire.MLS10,
		WireFormat: wire.WireFormatPrivateMessage,
		Private: &wire.PrivateMessage{
			GroupID:             []byte("g"),
			Epoch:               1,
			ContentType:         wire.ContentTypeApplication,
			EncryptedSenderData: []byte("sd"),
			Ciphertext:          []byte("ct"),
		},
	}
	enc, err := wire.Encode(msg)
	require.NoError(t, err)

	_, err = wire.Decode(append(enc, 0))
	require.Error(t, err)
}

func TestDecode_RejectsUnknownWireFormat(t *testing.T) {
	_, err := wire.Decode([]byte{0x00, 0x01, 0x00, 0x09})
	require.ErrorIs(t, err, wire.ErrUnknownWireFormat)
}

func TestDecode_RejectsApplicationInPublicMessage(t *testing.T) {
	msg := &wire.MLSMessage{
		Version:    wire.MLS10,
		WireFormat: wire.WireFormatPublicMessage,
		Public: &wire.PublicMessage{
			Content: wire.FramedContent{
				GroupID:     []byte("g"),
				Sender:      wire.Sender{Type: wire.SenderTypeMember},
				ContentType: wire.ContentTypeApplication,
				Application: []byte("hi"),
			},
		},
	}
	enc, err := wire.Encode(msg)
	require.NoError(t, err)
	_, err = wire.Decode(enc)
	require.ErrorIs(t, err, wire.ErrUnknownContentType)
}

func TestRoster_BlankLeaves(t *testing.T) {
	a, c := sampleLeaf("a"), sampleLeaf("c")
	data, err := wire.EncodeRoster([]*wire.LeafNode{&a, nil, &c})
	require.NoError(t, err)

	leaves, err := wire.DecodeRoster(data)
	require.NoError(t, err)
	require.Len(t, leaves, 3)
	require.Nil(t, leaves[1])
	require.Equal(t, []byte("c"), leaves[2].Credential.Identity)
}

func TestExtensions_RejectDuplicates(t *testing.T) {
	gc := &wire.GroupContext{
		Version:     wire.MLS10,
		CipherSuite: wire.CipherSuiteX25519ChaCha20,
		GroupID:     []byte("g"),
		Extensions: wire.Extensions{
			{Type: 0x0a0a, Data: []byte("x")},
			{Type: 0x0a0a, Data: []byte("y")},
		},
	}
	msg := &wire.MLSMessage{
		Version:    wire.MLS10,
		WireFormat: wire.WireFormatGroupInfo,
		GroupInfo:  &wire.GroupInfo{GroupContext: *gc},
	}
	enc, err := wire.Encode(msg)
	require.NoError(t, err)
	_, err = wire.Decode(enc)
	require.ErrorIs(t, err, wire.ErrDuplicateExtension)
}
